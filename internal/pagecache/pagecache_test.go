package pagecache

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/sirkon/deepequal"
	"github.com/sirkon/errors"

	"github.com/sirkon/repinit/internal/testlog"
	"github.com/sirkon/repinit/internal/types"
	"github.com/sirkon/repinit/internal/wire"
)

func sampleMeta(order types.Order) Meta {
	return Meta{
		ID:         types.NewFileID(),
		Kind:       wire.DBKindQueue,
		Order:      order,
		PageSize:   MinPageSize,
		LastPage:   0,
		QueueFirst: 3,
		QueueLast:  9,
	}
}

func TestFilePages(t *testing.T) {
	s := NewStore(4)
	path := filepath.Join(t.TempDir(), "sub", "a.db")
	meta := sampleMeta(types.NativeOrder())

	f, err := s.Create(path, meta)
	if err != nil {
		testlog.Fatal(t, errors.Wrap(err, "create file"))
	}

	for pgno := uint32(1); pgno <= 6; pgno++ {
		if err := f.WritePage(pgno, bytes.Repeat([]byte{byte(pgno)}, 10)); err != nil {
			testlog.Fatal(t, errors.Wrap(err, "write page").Uint32("page", pgno))
		}
	}
	if err := f.Close(); err != nil {
		testlog.Fatal(t, errors.Wrap(err, "close file"))
	}

	// Открываем заново с пустым кешем: данные должны читаться с диска.
	s.EvictByIdentity(meta.ID)
	f, err = s.Open(path)
	if err != nil {
		testlog.Fatal(t, errors.Wrap(err, "reopen file"))
	}
	defer f.Close()

	if f.Meta().LastPage != 6 {
		t.Errorf("expected last page 6, got %d", f.Meta().LastPage)
	}

	data, err := f.ReadPage(5)
	if err != nil {
		testlog.Fatal(t, errors.Wrap(err, "read page"))
	}
	if len(data) != MinPageSize || data[0] != 5 || data[10] != 0 {
		t.Errorf("unexpected page content %v", data[:12])
	}

	if _, err := f.ReadPage(7); !errors.Is(err, ErrPageNotFound) {
		t.Errorf("page not found expected, got %v", err)
	}
}

func TestMetaPageSwap(t *testing.T) {
	for _, from := range []types.Order{types.LittleEndian, types.BigEndian} {
		t.Run(from.String(), func(t *testing.T) {
			meta := sampleMeta(from)
			meta.LastPage = 0x01020304
			page := make([]byte, meta.PageSize)
			EncodeMeta(page, meta)
			page[MetaSize] = 0x77
			orig := append([]byte(nil), page...)

			swapped, err := SwapMetaPage(page, from.Opposite())
			if err != nil {
				testlog.Fatal(t, errors.Wrap(err, "swap meta page"))
			}
			if !bytes.Equal(page, orig) {
				t.Error("source page must not be modified")
			}

			got, err := DecodeMeta(swapped)
			if err != nil {
				testlog.Fatal(t, errors.Wrap(err, "decode swapped meta"))
			}
			want := meta
			want.Order = from.Opposite()
			if !deepequal.Equal(want, got) {
				deepequal.SideBySide(t, "swapped meta", want, got)
			}
			if swapped[MetaSize] != 0x77 {
				t.Error("data after meta header must be untouched")
			}

			back, err := SwapMetaPage(swapped, from)
			if err != nil {
				testlog.Fatal(t, errors.Wrap(err, "swap back"))
			}
			if !bytes.Equal(back, orig) {
				t.Error("double swap must reproduce original bytes")
			}
		})
	}
}

func TestMemoryDatabases(t *testing.T) {
	s := NewStore(8)
	meta := sampleMeta(types.NativeOrder())
	f, err := s.CreateMem("mem-b", meta)
	if err != nil {
		testlog.Fatal(t, errors.Wrap(err, "create memory database"))
	}
	if err := f.WritePage(2, []byte("hello")); err != nil {
		testlog.Fatal(t, errors.Wrap(err, "write page"))
	}
	if _, err := s.CreateMem("mem-a", meta); err != nil {
		testlog.Fatal(t, errors.Wrap(err, "create second memory database"))
	}

	deepequal.SideBySide(t, "memory names", []string{"mem-a", "mem-b"}, s.MemNames())

	if n := s.EvictByIdentity(meta.ID); n == 0 {
		t.Error("cached pages expected to be evicted")
	}
	if s.Cache().Len() != 0 {
		t.Errorf("cache must be empty, got %d pages", s.Cache().Len())
	}

	g, err := s.OpenMem("mem-b")
	if err != nil {
		testlog.Fatal(t, errors.Wrap(err, "open memory database"))
	}
	data, err := g.ReadPage(2)
	if err != nil {
		testlog.Fatal(t, errors.Wrap(err, "read page"))
	}
	if !bytes.HasPrefix(data, []byte("hello")) {
		t.Errorf("unexpected page content %q", data[:5])
	}

	s.RemoveMem("mem-b")
	s.RemoveMem("mem-b")
	if _, err := s.OpenMem("mem-b"); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("file not found expected, got %v", err)
	}
}

func TestCacheLRU(t *testing.T) {
	c := NewCache(2)
	var a, b types.FileID
	a[0], b[0] = 1, 2

	c.Put(a, 1, []byte("a1"))
	c.Put(a, 2, []byte("a2"))
	c.Get(a, 1)
	c.Put(b, 1, []byte("b1"))

	if _, ok := c.Get(a, 2); ok {
		t.Error("least recently used page must be evicted")
	}
	if _, ok := c.Get(a, 1); !ok {
		t.Error("recently used page must stay")
	}
}
