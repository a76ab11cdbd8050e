package resync

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirkon/errors"

	"github.com/sirkon/repinit/internal/pagexfer"
	"github.com/sirkon/repinit/internal/reperr"
	"github.com/sirkon/repinit/internal/transport"
	"github.com/sirkon/repinit/internal/wire"
)

func (c *Coordinator) begin(provider transport.PeerID, out *outbox) error {
	if c.session != nil {
		return errors.Wrap(ErrBusy, "begin resync").Stg("phase", c.session.phase)
	}
	if c.removing {
		return errors.Wrap(ErrBusy, "begin resync").Str("phase", "removal of aborted attempt")
	}

	if err := c.recover(); err != nil {
		return errors.Wrap(err, "recover abandoned resync")
	}

	c.session = &session{
		id:           uuid.New(),
		provider:     provider,
		current:      -1,
		inventoryGap: c.cfg.Gaps.Min,
	}
	c.logger.ResyncStarted(c.session.id, uint32(provider))
	c.setPhase(PhaseAwaitingFileList)
	c.requestInventory(c.cfg.Now(), out)

	return nil
}

func (c *Coordinator) requestInventory(now time.Time, out *outbox) {
	s := c.session
	s.lastInventory = now
	out.add(s.provider, &wire.InventoryRequest{})
}

// onInventory ответ поставщика со списком файлов. Удаление старого
// состояния идёт без блокировки сессии: в фазе RemovingOldState прочие
// сообщения устаревшие, а Begin и Recover отвечают ErrBusy.
func (c *Coordinator) onInventory(from transport.PeerID, m *wire.InventoryReply) error {
	c.lock.Lock()
	s, err := c.acceptInventory(from, m)
	c.lock.Unlock()
	if err != nil {
		return err
	}

	removeErr := c.removeOldState(m)

	var out outbox
	c.lock.Lock()
	c.removing = false
	if c.session == s {
		c.afterRemoval(m, removeErr, &out)
	}
	c.lock.Unlock()

	c.flush(out)
	return nil
}

// acceptInventory проверка ответа и переход в фазу удаления.
func (c *Coordinator) acceptInventory(from transport.PeerID, m *wire.InventoryReply) (*session, error) {
	s := c.session
	if s == nil || s.phase != PhaseAwaitingFileList {
		return nil, reperr.Stale(errors.Wrap(ErrUnexpectedPhase, "handle inventory reply").Stg("phase", c.phase()))
	}
	if s.provider != transport.Broadcast && from != s.provider {
		return nil, reperr.Stale(errors.New("inventory reply from another peer").
			Stg("from", from).
			Stg("provider", s.provider))
	}

	for i := range m.Files {
		if err := c.catalog.Check(&m.Files[i]); err != nil {
			return nil, errors.Wrap(err, "check inventory reply").Stg("from", from)
		}
	}

	s.provider = from
	c.logger.InventoryReceived(s.id, len(m.Files), m.Start, m.Current)

	c.setPhase(PhaseRemovingOldState)
	c.removing = true

	return s, nil
}

// afterRemoval переход к получению первого файла или откат попытки.
func (c *Coordinator) afterRemoval(m *wire.InventoryReply, removeErr error, out *outbox) {
	if removeErr != nil {
		c.failAttempt(removeErr, out)
		return
	}

	s := c.session
	s.files = m.Files
	s.start = m.Start
	s.end = m.Current
	s.logVersion = m.LogVersion

	if err := c.startFile(0, out); err != nil {
		c.failAttempt(err, out)
	}
}

// removeOldState удаление локального состояния. Журнал намерений
// пишется до первого разрушающего действия и дополняется списком
// получаемых файлов только после удаления.
func (c *Coordinator) removeOldState(m *wire.InventoryReply) error {
	local, err := c.catalog.EnumerateLocal()
	if err != nil {
		return errors.Wrap(err, "enumerate local databases")
	}

	if err := c.ledger.Begin(local); err != nil {
		return errors.Wrap(err, "record removal list")
	}

	if err := c.log.Flush(); err != nil {
		return reperr.Storage(errors.Wrap(err, "flush log"))
	}

	first := m.Start.File
	if first == 0 {
		first = 1
	}
	if err := c.log.TruncateAndReset(first); err != nil {
		return reperr.Storage(errors.Wrap(err, "reset log").Uint32("first-log-file", first))
	}

	for i := range local {
		if err := c.catalog.RemoveByDescriptor(&local[i]); err != nil {
			return errors.Wrap(err, "remove local database").Str("name", string(local[i].Name))
		}
	}

	if err := c.ledger.AppendFetch(m.Files); err != nil {
		return errors.Wrap(err, "record fetch list")
	}

	return nil
}

// startFile переход к получению файла i или к накату лога, если
// все файлы получены.
func (c *Coordinator) startFile(i int, out *outbox) error {
	s := c.session
	if i >= len(s.files) {
		return c.finish(out)
	}

	d := s.files[i]
	c.dbLock.Lock()
	if c.db != nil {
		_ = c.db.Close()
		c.db = nil
	}
	f, err := c.catalog.Create(&d)
	if err == nil {
		c.db = f
	}
	c.dbLock.Unlock()
	if err != nil {
		return reperr.Storage(errors.Wrap(err, "create local database copy").Str("name", string(d.Name)))
	}

	now := c.cfg.Now()
	tr, err := pagexfer.NewTracker(d, c.receipts, dbWriter{c: c}, c.cfg.Gaps, now)
	if err != nil {
		return reperr.Storage(errors.Wrap(err, "set up page tracking"))
	}

	s.current = i
	s.tracker = tr
	s.wrapped = false
	c.setPhase(PhaseFetchingFile)
	c.logger.FileStarted(s.id, d.Index, string(d.Name), d.MaxPage)
	c.request(tr.Start(now), out)

	return nil
}

func (c *Coordinator) request(req *wire.PageRequest, out *outbox) {
	s := c.session
	to := s.provider
	if req.AnyPeer {
		to = transport.Anywhere
	}

	s.stats.Requests++
	out.add(to, req)
}

func (c *Coordinator) fetching(what string) (*session, error) {
	s := c.session
	if s == nil || s.phase != PhaseFetchingFile {
		return nil, reperr.Stale(errors.Wrap(ErrUnexpectedPhase, "handle "+what).Stg("phase", c.phase()))
	}

	return s, nil
}

func (c *Coordinator) onPage(m *wire.Page, out *outbox) error {
	s, err := c.fetching("page")
	if err != nil {
		return err
	}

	res, err := s.tracker.Receive(m, c.cfg.Now())
	if err == nil {
		if res.Fresh {
			s.stats.Pages++
		} else {
			s.stats.Duplicates++
		}
	}

	return c.outcome(res, err, m.Number, out)
}

func (c *Coordinator) onMissing(m *wire.PageMissing, out *outbox) error {
	s, err := c.fetching("missing page")
	if err != nil {
		return err
	}

	res, err := s.tracker.Missing(m, c.cfg.Now())
	if err == nil {
		if res.Fresh {
			s.stats.Missing++
		} else {
			s.stats.Duplicates++
		}
	}

	return c.outcome(res, err, m.Page, out)
}

func (c *Coordinator) onMore(m *wire.PageMore, out *outbox) error {
	s, err := c.fetching("page-more")
	if err != nil {
		return err
	}

	res, err := s.tracker.More(m, c.cfg.Now())
	return c.outcome(res, err, m.Page, out)
}

func (c *Coordinator) onBulk(m *wire.BulkPages, out *outbox) error {
	s, err := c.fetching("bulk pages")
	if err != nil {
		return err
	}
	s.stats.Bulks++

	var first error
	for i := range m.Pages {
		err := c.onPage(&m.Pages[i], out)
		if err != nil && first == nil {
			first = err
		}
	}

	return first
}

// outcome реакция на результат обработки страницы pgno.
func (c *Coordinator) outcome(res pagexfer.Outcome, err error, pgno uint32, out *outbox) error {
	s := c.session
	if err != nil {
		switch reperr.KindOf(err) {
		case reperr.KindStale, reperr.KindProtocol:
			return err
		case reperr.KindStorage:
			c.logger.PageWriteFailed(s.id, s.tracker.File().Index, pgno, err)
		}

		c.failAttempt(err, out)
		return nil
	}

	if res.Request != nil {
		if !res.Request.AnyPeer {
			c.logger.GapRerequest(s.id, res.Request.File.Index, res.Request.Page, res.Request.MaxPage, s.tracker.Gap())
		}
		c.request(res.Request, out)
	}

	if res.Complete {
		if err := c.fileDone(out); err != nil {
			c.failAttempt(err, out)
		}
	}

	return nil
}

// fileDone все страницы текущего файла получены.
func (c *Coordinator) fileDone(out *outbox) error {
	s := c.session
	tr := s.tracker
	d := tr.File()

	if d.Kind == wire.DBKindQueue {
		again, err := c.queueCompletion(out)
		if err != nil {
			return errors.Wrap(err, "check queue bounds")
		}
		if again {
			return nil
		}
	}

	c.dbLock.Lock()
	err := reperr.First(c.db.Sync(), c.db.Close())
	c.db = nil
	c.dbLock.Unlock()
	if err != nil {
		return reperr.Storage(errors.Wrap(err, "sync local database copy").Str("name", string(d.Name)))
	}

	s.stats.Files++
	c.logger.FileCompleted(s.id, d.Index, tr.Received())

	return c.startFile(s.current+1, out)
}

// queueCompletion повторное чтение головы и хвоста очереди, которые
// могли сдвинуться за время передачи. Возвращает true если нужны
// ещё страницы.
func (c *Coordinator) queueCompletion(out *outbox) (bool, error) {
	s := c.session
	tr := s.tracker

	f, err := c.catalog.Open(tr.File())
	if err != nil {
		return false, reperr.Storage(errors.Wrap(err, "reopen queue database"))
	}
	meta := f.Meta()
	if err := f.Close(); err != nil {
		return false, reperr.Storage(errors.Wrap(err, "close queue database"))
	}

	now := c.cfg.Now()
	switch {
	case meta.QueueLast > tr.MaxPage():
		tr.Extend(meta.QueueLast)
		c.request(tr.Start(now), out)
		return true, nil

	case meta.QueueWrapped() && meta.QueueLast > 0 && !s.wrapped:
		s.wrapped = true
		if err := tr.Rewind(1, meta.QueueLast); err != nil {
			return false, reperr.Storage(errors.Wrap(err, "rewind to wrapped queue range"))
		}
		c.request(tr.Start(now), out)
		return true, nil

	default:
		return false, nil
	}
}

// finish все файлы получены: запрос лога у поставщика и удаление журнала.
func (c *Coordinator) finish(out *outbox) error {
	s := c.session
	s.tracker = nil
	c.setPhase(PhaseAwaitingLogReplay)

	out.add(s.provider, &wire.LogRangeRequest{
		From: s.start,
		To:   s.end,
	})
	c.logger.LogReplayRequested(s.id, s.start, s.end)

	if err := c.receipts.Reset(); err != nil {
		return reperr.Storage(errors.Wrap(err, "reset page receipts"))
	}
	if err := c.ledger.Remove(); err != nil {
		return errors.Wrap(err, "remove ledger")
	}

	return nil
}

// failAttempt откат попытки к фазе до удаления. Следующий запрос
// списка файлов уйдёт по Tick.
func (c *Coordinator) failAttempt(err error, out *outbox) {
	s := c.session
	c.logger.AttemptFailed(s.id, s.phase.String(), err)
	c.closeDB()

	s.tracker = nil
	s.files = nil
	s.current = -1
	s.wrapped = false
	s.stats = Stats{}

	c.setPhase(PhaseAwaitingFileList)
	s.id = uuid.New()
	c.logger.ResyncStarted(s.id, uint32(s.provider))
	s.lastInventory = c.cfg.Now()
	s.inventoryGap = c.cfg.Gaps.Min
}

func (c *Coordinator) tick(now time.Time, out *outbox) {
	s := c.session
	if s == nil {
		return
	}

	switch s.phase {
	case PhaseAwaitingFileList:
		if now.Sub(s.lastInventory) < s.inventoryGap {
			return
		}

		c.requestInventory(now, out)
		s.inventoryGap *= 2
		if s.inventoryGap > c.cfg.Gaps.Max {
			s.inventoryGap = c.cfg.Gaps.Max
		}

	case PhaseFetchingFile:
		res := s.tracker.Tick(now)
		if res.Request != nil {
			c.logger.GapRerequest(s.id, res.Request.File.Index, res.Request.Page, res.Request.MaxPage, s.tracker.Gap())
			c.request(res.Request, out)
		}
	}
}

// dbWriter запись страниц в открытую локальную копию под её блокировкой.
type dbWriter struct {
	c *Coordinator
}

func (w dbWriter) WritePage(pgno uint32, data []byte) error {
	w.c.dbLock.Lock()
	defer w.c.dbLock.Unlock()

	if w.c.db == nil {
		return errors.New("no local database copy is open")
	}

	return w.c.db.WritePage(pgno, data)
}
