package resync

import (
	"fmt"
	"os"
	"sync/atomic"
	"testing"

	"github.com/sirkon/deepequal"
	"github.com/sirkon/errors"

	"github.com/sirkon/repinit/internal/logging"
	"github.com/sirkon/repinit/internal/pagexfer"
	"github.com/sirkon/repinit/internal/testlog"
	"github.com/sirkon/repinit/internal/transport"
	"github.com/sirkon/repinit/internal/wire"
)

// cutAfter фильтр потерь: клиент получает limit страниц, после чего
// до него перестаёт доходить что-либо.
func cutAfter(limit int64) transport.DropFunc {
	var pages atomic.Int64
	var cut atomic.Bool

	return func(from, to transport.PeerID, msg wire.Message) bool {
		if to != clientID {
			return false
		}
		if cut.Load() {
			return true
		}
		if _, ok := msg.(*wire.Page); ok && pages.Add(1) > limit {
			cut.Store(true)
			return true
		}

		return false
	}
}

func TestResyncCrashResume(t *testing.T) {
	for _, limit := range []int64{0, 1, 3, 7, 12, 18, 100} {
		t.Run(fmt.Sprintf("cut after %d pages", limit), func(t *testing.T) {
			hub := transport.NewHub(4, logging.Nop())
			defer hub.Close()

			serve := nodeConfig{
				serve: pagexfer.ServerConfig{QueueBatchPages: 3},
			}
			provider := newNode(t, hub, providerID, t.TempDir(), serve)
			populateProvider(t, provider)

			client := newNode(t, hub, clientID, t.TempDir(), nodeConfig{})
			populateClient(t, client)

			hub.SetDrop(cutAfter(limit))
			if err := client.coord.Begin(providerID); err != nil {
				testlog.Fatal(t, errors.Wrap(err, "begin resync"))
			}
			hub.Wait()

			interrupted := client.coord.Status().Phase == PhaseFetchingFile
			if exists, err := client.ledger.Exists(); err != nil || exists != interrupted {
				t.Fatalf("ledger must exist only while fetching, got exists=%v err=%v interrupted=%v", exists, err, interrupted)
			}

			hub.SetDrop(nil)
			client.restart(t, hub, nodeConfig{})

			if err := client.coord.Recover(); err != nil {
				testlog.Fatal(t, errors.Wrap(err, "recover"))
			}
			if exists, err := client.ledger.Exists(); err != nil || exists {
				t.Fatalf("ledger must be gone after recovery, got exists=%v err=%v", exists, err)
			}
			if interrupted {
				if list := client.enumerate(t); len(list) != 0 {
					t.Errorf("recovery must leave no databases behind, got %d", len(list))
				}
			}

			if err := client.coord.Begin(providerID); err != nil {
				testlog.Fatal(t, errors.Wrap(err, "begin resync after recovery"))
			}
			hub.Wait()

			if phase := client.coord.Status().Phase; phase != PhaseAwaitingLogReplay {
				t.Fatalf("expected phase %s, got %s", PhaseAwaitingLogReplay, phase)
			}
			requireSameDatabases(t, provider, client)
		})
	}
}

func TestRecover(t *testing.T) {
	t.Run("no ledger", func(t *testing.T) {
		hub := transport.NewHub(1, logging.Nop())
		defer hub.Close()

		client := newNode(t, hub, clientID, t.TempDir(), nodeConfig{})
		populateClient(t, client)
		before := client.enumerate(t)

		if err := client.coord.Recover(); err != nil {
			testlog.Fatal(t, errors.Wrap(err, "recover"))
		}
		if after := client.enumerate(t); !deepequal.Equal(before, after) {
			t.Error("recovery without ledger must not touch databases")
			deepequal.SideBySide(t, "databases", before, after)
		}
	})

	t.Run("removal list only", func(t *testing.T) {
		hub := transport.NewHub(1, logging.Nop())
		defer hub.Close()

		client := newNode(t, hub, clientID, t.TempDir(), nodeConfig{})
		populateClient(t, client)
		before := client.enumerate(t)
		pos := client.log.CurrentPosition()

		if err := client.ledger.Begin(before); err != nil {
			testlog.Fatal(t, errors.Wrap(err, "write removal list"))
		}
		if err := client.coord.Recover(); err != nil {
			testlog.Fatal(t, errors.Wrap(err, "recover"))
		}

		if exists, err := client.ledger.Exists(); err != nil || exists {
			t.Errorf("ledger must be removed, got exists=%v err=%v", exists, err)
		}
		if after := client.enumerate(t); !deepequal.Equal(before, after) {
			t.Error("partially written ledger must not cause removals")
			deepequal.SideBySide(t, "databases", before, after)
		}
		if got := client.log.CurrentPosition(); got != pos {
			t.Errorf("log must be kept, position moved from %s to %s", pos, got)
		}
	})

	t.Run("both lists", func(t *testing.T) {
		hub := transport.NewHub(1, logging.Nop())
		defer hub.Close()

		client := newNode(t, hub, clientID, t.TempDir(), nodeConfig{})
		populateClient(t, client)
		removal := client.enumerate(t)

		// Часть получаемых баз уже создана, часть ещё нет.
		fetched := client.createDB(t, "data/fetched.db", wire.DBKindBtree, 2, 0x40)
		closeDB(t, fetched)
		fetch := client.enumerate(t)[:1]
		fetch = append(fetch, wire.FileDescriptor{
			ID:       newMeta(wire.DBKindQueue).ID,
			Index:    1,
			Kind:     wire.DBKindQueue,
			PageSize: 512,
			MaxPage:  10,
			Order:    fetch[0].Order,
			Name:     []byte("data/never.db"),
		})

		if err := client.ledger.Begin(removal); err != nil {
			testlog.Fatal(t, errors.Wrap(err, "write removal list"))
		}
		if err := client.ledger.AppendFetch(fetch); err != nil {
			testlog.Fatal(t, errors.Wrap(err, "write fetch list"))
		}
		if _, err := client.receipts.Record(5); err != nil {
			testlog.Fatal(t, errors.Wrap(err, "record page receipt"))
		}

		if err := client.coord.Recover(); err != nil {
			testlog.Fatal(t, errors.Wrap(err, "recover"))
		}

		if exists, err := client.ledger.Exists(); err != nil || exists {
			t.Errorf("ledger must be removed, got exists=%v err=%v", exists, err)
		}
		if list := client.enumerate(t); len(list) != 0 {
			t.Errorf("all databases from both lists must be removed, %d left", len(list))
		}
		if _, err := os.Stat(client.path("data/fetched.db")); !os.IsNotExist(err) {
			t.Errorf("partially fetched database must be removed, stat error %v", err)
		}
		if pos, first := client.log.CurrentPosition(), client.log.FirstPosition(); pos != first {
			t.Errorf("log must be reset, got %s..%s", first, pos)
		}
		if n, err := client.receipts.Len(); err != nil || n != 0 {
			t.Errorf("page receipts must be reset, got %d err=%v", n, err)
		}

		// Повтор ничего не делает.
		if err := client.coord.Recover(); err != nil {
			testlog.Fatal(t, errors.Wrap(err, "repeat recovery"))
		}
	})

	t.Run("busy", func(t *testing.T) {
		hub := transport.NewHub(1, logging.Nop())
		defer hub.Close()

		client := newNode(t, hub, clientID, t.TempDir(), nodeConfig{})
		hub.Join(providerID, func(transport.PeerID, wire.Message) {})

		if err := client.coord.Begin(providerID); err != nil {
			testlog.Fatal(t, errors.Wrap(err, "begin resync"))
		}
		if err := client.coord.Recover(); !errors.Is(err, ErrBusy) {
			t.Errorf("recovery during resync must fail with busy error, got %v", err)
		}
		if err := client.coord.Begin(providerID); !errors.Is(err, ErrBusy) {
			t.Errorf("second begin must fail with busy error, got %v", err)
		}
		hub.Wait()
	})
}
