package resync

import (
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/sirkon/errors"

	"github.com/sirkon/repinit/internal/catalog"
	"github.com/sirkon/repinit/internal/ledger"
	"github.com/sirkon/repinit/internal/logging"
	"github.com/sirkon/repinit/internal/pagecache"
	"github.com/sirkon/repinit/internal/pagelock"
	"github.com/sirkon/repinit/internal/receipts"
	"github.com/sirkon/repinit/internal/reperr"
	"github.com/sirkon/repinit/internal/resync/internal/mocks"
	"github.com/sirkon/repinit/internal/testlog"
	"github.com/sirkon/repinit/internal/transport"
	"github.com/sirkon/repinit/internal/types"
	"github.com/sirkon/repinit/internal/wire"
)

type mocked struct {
	coord    *Coordinator
	store    *pagecache.Store
	catalog  *catalog.Catalog
	ledger   *ledger.Ledger
	receipts *receipts.Memory
	clock    *clock
}

func newMocked(t *testing.T, log Log, sender Sender, shipper LogShipper) *mocked {
	t.Helper()

	home := t.TempDir()
	store := pagecache.NewStore(16)
	res := &mocked{
		store:    store,
		catalog:  catalog.New(home, nil, store, logging.Nop()),
		ledger:   ledger.New(home),
		receipts: receipts.NewMemory(),
		clock:    newClock(),
	}
	res.coord = New(
		Config{
			Gaps: testGaps,
			Now:  res.clock.Now,
		},
		Deps{
			Catalog:  res.catalog,
			Ledger:   res.ledger,
			Log:      log,
			Sender:   sender,
			Receipts: res.receipts,
			Locks:    pagelock.New(),
			Shipper:  shipper,
		},
	)

	return res
}

func memDescriptor(index, maxPage uint32) wire.FileDescriptor {
	return wire.FileDescriptor{
		ID:       types.NewFileID(),
		Index:    index,
		Kind:     wire.DBKindBtree,
		PageSize: pagecache.MinPageSize,
		MaxPage:  maxPage,
		Order:    types.NativeOrder(),
		Flags:    wire.FileInMemory,
		Name:     []byte("mem"),
	}
}

func metaPage(d wire.FileDescriptor) []byte {
	page := make([]byte, d.PageSize)
	pagecache.EncodeMeta(page, pagecache.Meta{
		ID:       d.ID,
		Kind:     d.Kind,
		Order:    types.NativeOrder(),
		PageSize: d.PageSize,
		LastPage: d.MaxPage,
	})
	return page
}

func page(d wire.FileDescriptor, pgno uint32) *wire.Page {
	payload := []byte{byte(pgno), 0xEE}
	if pgno == 0 {
		payload = metaPage(d)
	}

	return &wire.Page{
		FileIndex: d.Index,
		Number:    pgno,
		Order:     types.NativeOrder(),
		Payload:   payload,
	}
}

func handle(t *testing.T, c *Coordinator, from transport.PeerID, msg wire.Message) {
	t.Helper()

	if err := c.Handle(from, msg); err != nil {
		testlog.Fatal(t, errors.Wrap(err, "handle "+msg.Kind().String()))
	}
}

func TestBeginRequestsInventory(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mocks.NewSenderMock(ctrl)
	m := newMocked(t, mocks.NewLogMock(ctrl), sender, nil)

	sender.EXPECT().Send(providerID, &wire.InventoryRequest{}).Return(nil)
	if err := m.coord.Begin(providerID); err != nil {
		testlog.Fatal(t, errors.Wrap(err, "begin resync"))
	}

	status := m.coord.Status()
	if status.Phase != PhaseAwaitingFileList {
		t.Errorf("expected phase %s, got %s", PhaseAwaitingFileList, status.Phase)
	}
	if status.Provider != providerID || status.File != -1 {
		t.Errorf("unexpected status %+v", status)
	}
}

func TestRemovalFailureUnwinds(t *testing.T) {
	ctrl := gomock.NewController(t)
	log := mocks.NewLogMock(ctrl)
	sender := mocks.NewSenderMock(ctrl)
	m := newMocked(t, log, sender, nil)
	if _, err := m.store.CreateMem("local", newMeta(wire.DBKindBtree)); err != nil {
		testlog.Fatal(t, errors.Wrap(err, "create in-memory database"))
	}

	gomock.InOrder(
		sender.EXPECT().Send(providerID, &wire.InventoryRequest{}).Return(nil),
		log.EXPECT().Flush().Return(nil),
		log.EXPECT().TruncateAndReset(uint32(3)).Return(errors.New("disk is gone")),
		sender.EXPECT().Send(providerID, &wire.InventoryRequest{}).Return(nil).Times(2),
	)

	if err := m.coord.Begin(providerID); err != nil {
		testlog.Fatal(t, errors.Wrap(err, "begin resync"))
	}
	attempt := m.coord.Status().Attempt

	handle(t, m.coord, providerID, &wire.InventoryReply{
		Start:   types.NewLSN(3, 16),
		Current: types.NewLSN(3, 400),
		Files:   wire.FileList{memDescriptor(0, 3)},
	})

	status := m.coord.Status()
	if status.Phase != PhaseAwaitingFileList {
		t.Fatalf("failed removal must return to %s, got %s", PhaseAwaitingFileList, status.Phase)
	}
	if status.Attempt == attempt {
		t.Error("a new attempt identifier is expected after a failure")
	}

	rec, ok, err := m.ledger.Read()
	if err != nil || !ok || rec.HasFetch || len(rec.Removal) != 1 {
		t.Errorf("ledger must keep the removal list only, got %+v ok=%v err=%v", rec, ok, err)
	}
	if names := m.store.MemNames(); len(names) != 1 {
		t.Errorf("nothing must be removed before the log is reset, got %v", names)
	}

	// Повтор запроса списка файлов с удвоением интервала.
	m.coord.Tick(m.clock.Now())
	m.coord.Tick(m.clock.Advance(testGaps.Min))
	m.coord.Tick(m.clock.Advance(testGaps.Min))
	m.coord.Tick(m.clock.Advance(testGaps.Min))
}

func TestFetchWithRerequest(t *testing.T) {
	ctrl := gomock.NewController(t)
	log := mocks.NewLogMock(ctrl)
	sender := mocks.NewSenderMock(ctrl)
	m := newMocked(t, log, sender, nil)

	d := memDescriptor(0, 3)
	start := types.NewLSN(1, 16)
	end := types.NewLSN(1, 120)

	gomock.InOrder(
		sender.EXPECT().Send(providerID, &wire.InventoryRequest{}).Return(nil),
		log.EXPECT().Flush().Return(nil),
		log.EXPECT().TruncateAndReset(uint32(1)).Return(nil),
		sender.EXPECT().Send(providerID, &wire.PageRequest{File: d, Page: 0, MaxPage: 3}).Return(nil),
		sender.EXPECT().Send(providerID, &wire.PageRequest{File: d, Page: 1, MaxPage: 1}).Return(nil),
		sender.EXPECT().Send(providerID, &wire.LogRangeRequest{From: start, To: end}).Return(nil),
	)

	if err := m.coord.Begin(providerID); err != nil {
		testlog.Fatal(t, errors.Wrap(err, "begin resync"))
	}
	handle(t, m.coord, providerID, &wire.InventoryReply{
		Start:   start,
		Current: end,
		Files:   wire.FileList{d},
	})

	handle(t, m.coord, providerID, page(d, 0))
	handle(t, m.coord, providerID, page(d, 2))

	status := m.coord.Status()
	if status.Phase != PhaseFetchingFile || status.Ready != 1 || !status.HasWaiting || status.Waiting != 2 {
		t.Fatalf("unexpected status after a gap %+v", status)
	}
	if exists, err := m.ledger.Exists(); err != nil || !exists {
		t.Fatalf("ledger must exist while fetching, got exists=%v err=%v", exists, err)
	}

	// Ответов нет дольше интервала, пропуск запрашивается снова.
	m.coord.Tick(m.clock.Now())
	m.coord.Tick(m.clock.Advance(testGaps.Min))

	err := m.coord.Handle(providerID, page(memDescriptor(7, 3), 1))
	if !reperr.Is(err, reperr.KindStale) {
		t.Errorf("page of another file must be stale, got %v", err)
	}
	err = m.coord.Handle(clientID, &wire.PageRequest{File: d, Page: 0, MaxPage: 1})
	if !reperr.Is(err, reperr.KindStale) {
		t.Errorf("page request during resync must be stale, got %v", err)
	}
	err = m.coord.Handle(clientID, &wire.InventoryRequest{})
	if !reperr.Is(err, reperr.KindStale) {
		t.Errorf("inventory request during resync must be stale, got %v", err)
	}

	handle(t, m.coord, providerID, page(d, 1))
	handle(t, m.coord, providerID, page(d, 3))

	status = m.coord.Status()
	if status.Phase != PhaseAwaitingLogReplay {
		t.Fatalf("expected phase %s, got %s", PhaseAwaitingLogReplay, status.Phase)
	}
	if exists, err := m.ledger.Exists(); err != nil || exists {
		t.Errorf("ledger must be removed, got exists=%v err=%v", exists, err)
	}

	expected := Stats{
		Files:    1,
		Pages:    4,
		Requests: 2,
	}
	if status.Stats != expected {
		t.Errorf("expected stats %+v, got %+v", expected, status.Stats)
	}

	f, err := m.store.OpenMem("mem")
	if err != nil {
		testlog.Fatal(t, errors.Wrap(err, "open fetched database"))
	}
	data, err := f.ReadPage(2)
	if err != nil {
		testlog.Fatal(t, errors.Wrap(err, "read fetched page"))
	}
	if data[0] != 2 || data[1] != 0xEE {
		t.Errorf("unexpected page content % x", data[:2])
	}

	err = m.coord.Handle(providerID, page(d, 3))
	if !reperr.Is(err, reperr.KindStale) {
		t.Errorf("late page must be stale, got %v", err)
	}
}

func TestAbort(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mocks.NewSenderMock(ctrl)
	m := newMocked(t, mocks.NewLogMock(ctrl), sender, nil)

	sender.EXPECT().Send(providerID, &wire.InventoryRequest{}).Return(nil).Times(2)

	if err := m.coord.Begin(providerID); err != nil {
		testlog.Fatal(t, errors.Wrap(err, "begin resync"))
	}
	m.coord.Abort()
	if phase := m.coord.Status().Phase; phase != PhaseIdle {
		t.Fatalf("expected idle phase after abort, got %s", phase)
	}

	// Ответ на брошенную попытку игнорируется.
	err := m.coord.Handle(providerID, &wire.InventoryReply{})
	if !reperr.Is(err, reperr.KindStale) {
		t.Errorf("inventory reply after abort must be stale, got %v", err)
	}

	if err := m.coord.Begin(providerID); err != nil {
		testlog.Fatal(t, errors.Wrap(err, "begin resync after abort"))
	}
}

func TestBroadcastProvider(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mocks.NewSenderMock(ctrl)
	log := mocks.NewLogMock(ctrl)
	m := newMocked(t, log, sender, nil)

	gomock.InOrder(
		sender.EXPECT().Send(transport.Broadcast, &wire.InventoryRequest{}).Return(nil),
		log.EXPECT().Flush().Return(nil),
		log.EXPECT().TruncateAndReset(uint32(1)).Return(nil),
		sender.EXPECT().Send(transport.PeerID(5), &wire.LogRangeRequest{}).Return(nil),
	)

	if err := m.coord.Begin(transport.Broadcast); err != nil {
		testlog.Fatal(t, errors.Wrap(err, "begin resync"))
	}

	// Первый ответивший становится поставщиком, остальные ответы устаревшие.
	handle(t, m.coord, 5, &wire.InventoryReply{})
	err := m.coord.Handle(6, &wire.InventoryReply{})
	if !reperr.Is(err, reperr.KindStale) {
		t.Errorf("second inventory reply must be stale, got %v", err)
	}

	status := m.coord.Status()
	if status.Provider != 5 || status.Phase != PhaseAwaitingLogReplay {
		t.Errorf("unexpected status %+v", status)
	}
}

func TestServeInventory(t *testing.T) {
	ctrl := gomock.NewController(t)
	log := mocks.NewLogMock(ctrl)
	sender := mocks.NewSenderMock(ctrl)
	m := newMocked(t, log, sender, nil)

	meta := newMeta(wire.DBKindQueue)
	f, err := m.store.CreateMem("queue", meta)
	if err != nil {
		testlog.Fatal(t, errors.Wrap(err, "create in-memory database"))
	}
	fill(t, f, 2, 0x11)

	start := types.NewLSN(4, 100)
	current := types.NewLSN(5, 16)
	var reply *wire.InventoryReply
	gomock.InOrder(
		log.EXPECT().Flush().Return(nil),
		log.EXPECT().ServeFrom().Return(start, nil),
		log.EXPECT().VersionAt(start).Return(uint32(2), nil),
		log.EXPECT().CurrentPosition().Return(current),
		sender.EXPECT().Send(clientID, gomock.Any()).DoAndReturn(func(to transport.PeerID, msg wire.Message) error {
			reply = msg.(*wire.InventoryReply)
			return nil
		}),
	)

	handle(t, m.coord, clientID, &wire.InventoryRequest{})

	if reply == nil {
		t.Fatal("no inventory reply was sent")
	}
	if reply.Start != start || reply.Current != current || reply.LogVersion != 2 {
		t.Errorf("unexpected log boundaries %+v", reply)
	}
	if len(reply.Files) != 1 || string(reply.Files[0].Name) != "queue" || reply.Files[0].MaxPage != 2 {
		t.Errorf("unexpected file list %+v", reply.Files)
	}

	log.EXPECT().Flush().Return(errors.New("disk is gone"))
	err = m.coord.Handle(clientID, &wire.InventoryRequest{})
	if !reperr.Is(err, reperr.KindStorage) {
		t.Errorf("flush failure must be a storage error, got %v", err)
	}
}

func TestServeLog(t *testing.T) {
	from := types.NewLSN(1, 16)
	to := types.NewLSN(2, 64)
	req := &wire.LogRangeRequest{From: from, To: to}

	t.Run("no shipper", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		m := newMocked(t, mocks.NewLogMock(ctrl), mocks.NewSenderMock(ctrl), nil)

		handle(t, m.coord, clientID, req)
	})

	t.Run("ship records", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		log := mocks.NewLogMock(ctrl)
		shipper := mocks.NewLogShipperMock(ctrl)
		m := newMocked(t, log, mocks.NewSenderMock(ctrl), shipper)

		gomock.InOrder(
			log.EXPECT().Flush().Return(nil),
			log.EXPECT().ReadRange(from, to, gomock.Any()).DoAndReturn(
				func(from, to types.LSN, fn func(types.LSN, []byte) error) error {
					if err := fn(from, []byte("first")); err != nil {
						return err
					}
					return fn(types.NewLSN(2, 16), []byte("second"))
				},
			),
		)
		gomock.InOrder(
			shipper.EXPECT().ShipLog(clientID, from, []byte("first")).Return(nil),
			shipper.EXPECT().ShipLog(clientID, types.NewLSN(2, 16), []byte("second")).Return(nil),
		)

		handle(t, m.coord, clientID, req)
	})

	t.Run("shipping failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		log := mocks.NewLogMock(ctrl)
		shipper := mocks.NewLogShipperMock(ctrl)
		m := newMocked(t, log, mocks.NewSenderMock(ctrl), shipper)

		log.EXPECT().Flush().Return(nil)
		log.EXPECT().ReadRange(from, to, gomock.Any()).DoAndReturn(
			func(from, to types.LSN, fn func(types.LSN, []byte) error) error {
				return fn(from, []byte("first"))
			},
		)
		shipper.EXPECT().ShipLog(clientID, from, gomock.Any()).Return(errors.New("peer is gone"))

		if err := m.coord.Handle(clientID, req); err == nil {
			t.Error("shipping failure must be reported")
		}
	})
}

func TestTickWithoutSession(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := newMocked(t, mocks.NewLogMock(ctrl), mocks.NewSenderMock(ctrl), nil)

	m.coord.Tick(m.clock.Advance(time.Hour))
	if status := m.coord.Status(); status.Phase != PhaseIdle || status.File != -1 {
		t.Errorf("unexpected idle status %+v", status)
	}
	if err := m.coord.LogReplayDone(); !errors.Is(err, ErrUnexpectedPhase) {
		t.Errorf("log replay completion without resync must fail, got %v", err)
	}
}

func TestAbortDuringRemoval(t *testing.T) {
	ctrl := gomock.NewController(t)
	log := mocks.NewLogMock(ctrl)
	sender := mocks.NewSenderMock(ctrl)
	m := newMocked(t, log, sender, nil)
	if _, err := m.store.CreateMem("local", newMeta(wire.DBKindBtree)); err != nil {
		testlog.Fatal(t, errors.Wrap(err, "create in-memory database"))
	}

	gomock.InOrder(
		sender.EXPECT().Send(providerID, &wire.InventoryRequest{}).Return(nil),
		log.EXPECT().Flush().Return(nil),
		log.EXPECT().TruncateAndReset(uint32(3)).DoAndReturn(func(uint32) error {
			// Удаление идёт без блокировки сессии.
			if phase := m.coord.Status().Phase; phase != PhaseRemovingOldState {
				t.Errorf("expected phase %s during removal, got %s", PhaseRemovingOldState, phase)
			}
			m.coord.Abort()
			if err := m.coord.Begin(providerID); !errors.Is(err, ErrBusy) {
				t.Errorf("begin must wait for removal to finish, got %v", err)
			}
			if err := m.coord.Recover(); !errors.Is(err, ErrBusy) {
				t.Errorf("recover must wait for removal to finish, got %v", err)
			}
			return nil
		}),
		// Следующая попытка разбирает журнал брошенной.
		log.EXPECT().TruncateAndReset(uint32(1)).Return(nil),
		sender.EXPECT().Send(providerID, &wire.InventoryRequest{}).Return(nil),
	)

	if err := m.coord.Begin(providerID); err != nil {
		testlog.Fatal(t, errors.Wrap(err, "begin resync"))
	}
	handle(t, m.coord, providerID, &wire.InventoryReply{
		Start:   types.NewLSN(3, 16),
		Current: types.NewLSN(3, 400),
		Files:   wire.FileList{memDescriptor(0, 3)},
	})

	if status := m.coord.Status(); status.Phase != PhaseIdle {
		t.Fatalf("aborted attempt must not start fetching, got phase %s", status.Phase)
	}
	rec, ok, err := m.ledger.Read()
	if err != nil || !ok || !rec.HasFetch {
		t.Fatalf("ledger of the aborted attempt must survive, got %+v ok=%v err=%v", rec, ok, err)
	}

	if err := m.coord.Begin(providerID); err != nil {
		testlog.Fatal(t, errors.Wrap(err, "begin resync after aborted removal"))
	}
	if _, ok, _ := m.ledger.Read(); ok {
		t.Error("ledger must be processed by the next attempt")
	}
}

func TestUnsafeInventoryRejected(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mocks.NewSenderMock(ctrl)
	m := newMocked(t, mocks.NewLogMock(ctrl), sender, nil)
	if _, err := m.store.CreateMem("local", newMeta(wire.DBKindBtree)); err != nil {
		testlog.Fatal(t, errors.Wrap(err, "create in-memory database"))
	}

	sender.EXPECT().Send(providerID, &wire.InventoryRequest{}).Return(nil)
	if err := m.coord.Begin(providerID); err != nil {
		testlog.Fatal(t, errors.Wrap(err, "begin resync"))
	}

	unsafe := memDescriptor(0, 3)
	unsafe.Flags = 0
	unsafe.Name = []byte("../../victim.db")
	oversized := memDescriptor(1, 3)
	oversized.PageSize = wire.MaxPageSize * 2

	for _, d := range []wire.FileDescriptor{unsafe, oversized} {
		err := m.coord.Handle(providerID, &wire.InventoryReply{
			Start:   types.NewLSN(3, 16),
			Current: types.NewLSN(3, 400),
			Files:   wire.FileList{d},
		})
		if !reperr.Is(err, reperr.KindProtocol) {
			t.Errorf("protocol error expected for %q, got %v", d.Name, err)
		}
	}

	if phase := m.coord.Status().Phase; phase != PhaseAwaitingFileList {
		t.Errorf("rejected reply must keep phase %s, got %s", PhaseAwaitingFileList, phase)
	}
	if _, ok, err := m.ledger.Read(); ok || err != nil {
		t.Errorf("nothing must be recorded for a rejected reply, ok=%v err=%v", ok, err)
	}
	if names := m.store.MemNames(); len(names) != 1 {
		t.Errorf("nothing must be removed for a rejected reply, got %v", names)
	}
}

func TestStaleBulkNotCounted(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mocks.NewSenderMock(ctrl)
	m := newMocked(t, mocks.NewLogMock(ctrl), sender, nil)

	d := memDescriptor(0, 3)
	bulk := &wire.BulkPages{Pages: []wire.Page{*page(d, 1), *page(d, 2)}}

	if err := m.coord.Handle(providerID, bulk); !reperr.Is(err, reperr.KindStale) {
		t.Errorf("bulk without resync must be stale, got %v", err)
	}

	sender.EXPECT().Send(providerID, &wire.InventoryRequest{}).Return(nil)
	if err := m.coord.Begin(providerID); err != nil {
		testlog.Fatal(t, errors.Wrap(err, "begin resync"))
	}
	if err := m.coord.Handle(providerID, bulk); !reperr.Is(err, reperr.KindStale) {
		t.Errorf("bulk while awaiting file list must be stale, got %v", err)
	}

	if bulks := m.coord.Status().Stats.Bulks; bulks != 0 {
		t.Errorf("stale bulks must not be counted, got %d", bulks)
	}
}
