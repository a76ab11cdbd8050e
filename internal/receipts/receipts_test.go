package receipts

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func ledgers() map[string]func(t *testing.T) Ledger {
	return map[string]func(t *testing.T) Ledger{
		"memory": func(t *testing.T) Ledger {
			return NewMemory()
		},
		"sqlite": func(t *testing.T) Ledger {
			l, err := OpenSQLite(filepath.Join(t.TempDir(), FileName))
			require.NoError(t, err)
			return l
		},
	}
}

func collect(t *testing.T, l Ledger, from uint32, limit int) []uint32 {
	var res []uint32
	err := l.Ascend(from, func(pgno uint32) bool {
		res = append(res, pgno)
		return len(res) < limit
	})
	require.NoError(t, err)
	return res
}

func TestLedger(t *testing.T) {
	for name, open := range ledgers() {
		t.Run(name, func(t *testing.T) {
			l := open(t)
			defer func() {
				require.NoError(t, l.Close())
			}()

			for _, pgno := range []uint32{5, 1, 3, 9} {
				fresh, err := l.Record(pgno)
				require.NoError(t, err)
				require.True(t, fresh, "page %d", pgno)
			}

			fresh, err := l.Record(3)
			require.NoError(t, err)
			require.False(t, fresh, "duplicate must be detected")

			n, err := l.Len()
			require.NoError(t, err)
			require.Equal(t, 4, n)

			require.Equal(t, []uint32{3, 5, 9}, collect(t, l, 2, 10))
			require.Equal(t, []uint32{1, 3}, collect(t, l, 0, 2))

			require.NoError(t, l.Forget(5))
			require.NoError(t, l.Forget(100))
			require.Equal(t, []uint32{1, 3, 9}, collect(t, l, 0, 10))

			fresh, err = l.Record(5)
			require.NoError(t, err)
			require.True(t, fresh, "forgotten page must be recordable again")

			require.NoError(t, l.Reset())
			n, err = l.Len()
			require.NoError(t, err)
			require.Zero(t, n)
		})
	}
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)

	l, err := OpenSQLite(path)
	require.NoError(t, err)
	_, err = l.Record(7)
	require.NoError(t, err)
	require.NoError(t, l.Close())

	l, err = OpenSQLite(path)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, l.Close())
	}()

	fresh, err := l.Record(7)
	require.NoError(t, err)
	require.False(t, fresh)
}
