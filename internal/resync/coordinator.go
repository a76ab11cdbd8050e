// Package resync координатор повторной инициализации: клиентская
// машина состояний и обслуживание запросов на стороне поставщика.
package resync

import (
	"sync"
	"time"

	"github.com/sirkon/errors"

	"github.com/sirkon/repinit/internal/catalog"
	"github.com/sirkon/repinit/internal/ledger"
	"github.com/sirkon/repinit/internal/logging"
	"github.com/sirkon/repinit/internal/pagecache"
	"github.com/sirkon/repinit/internal/pagexfer"
	"github.com/sirkon/repinit/internal/receipts"
	"github.com/sirkon/repinit/internal/reperr"
	"github.com/sirkon/repinit/internal/transport"
	"github.com/sirkon/repinit/internal/wire"
)

const (
	// ErrBusy повторная инициализация уже идёт.
	ErrBusy errors.Const = "resync is in progress"

	// ErrUnexpectedPhase сообщение или вызов не соответствует текущей фазе.
	ErrUnexpectedPhase errors.Const = "unexpected resync phase"

	// ErrAborted попытка прервана.
	ErrAborted errors.Const = "resync attempt aborted"
)

// New конструктор координатора.
func New(cfg Config, deps Deps) *Coordinator {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Gaps.Min <= 0 {
		cfg.Gaps.Min = time.Millisecond
	}
	if cfg.Gaps.Max < cfg.Gaps.Min {
		cfg.Gaps.Max = cfg.Gaps.Min
	}
	if deps.Logger == nil {
		deps.Logger = logging.Nop()
	}

	return &Coordinator{
		cfg:      cfg,
		catalog:  deps.Catalog,
		ledger:   deps.Ledger,
		log:      deps.Log,
		sender:   deps.Sender,
		receipts: deps.Receipts,
		server:   pagexfer.NewServer(deps.Catalog, deps.Locks, cfg.Serve),
		shipper:  deps.Shipper,
		logger:   deps.Logger,
	}
}

// Coordinator координатор повторной инициализации. Один и тот же
// координатор обслуживает запросы других узлов и ведёт собственную
// повторную инициализацию.
//
// Блокировки берутся в порядке: сначала сессии, затем локальной
// копии базы. Сообщения отправляются после снятия блокировок.
type Coordinator struct {
	cfg      Config
	catalog  *catalog.Catalog
	ledger   *ledger.Ledger
	log      Log
	sender   Sender
	receipts receipts.Ledger
	server   *pagexfer.Server
	shipper  LogShipper
	logger   logging.Logger

	lock     sync.Mutex
	session  *session
	last     Stats
	removing bool // Идёт удаление старого состояния, возможно уже прерванной попытки.

	dbLock sync.Mutex
	db     *pagecache.File
}

// Begin начало повторной инициализации от узла provider. Оставшийся
// от прерванной попытки журнал сначала обрабатывается как при запуске.
func (c *Coordinator) Begin(provider transport.PeerID) error {
	var out outbox
	c.lock.Lock()
	err := c.begin(provider, &out)
	c.lock.Unlock()

	c.flush(out)
	return err
}

// HandleMessage обработчик входящих сообщений для транспорта.
// Ошибки только журналируются.
func (c *Coordinator) HandleMessage(from transport.PeerID, msg wire.Message) {
	err := c.Handle(from, msg)
	switch reperr.KindOf(err) {
	case reperr.KindNone:
	case reperr.KindStale:
		index, pgno := position(msg)
		c.logger.StaleMessage(msg.Kind().String(), index, pgno)
	case reperr.KindProtocol:
		c.logger.ProtocolError(uint32(from), err)
	default:
		c.logger.ServeFailed(uint32(from), msg.Kind().String(), err)
	}
}

// Handle обработка входящего сообщения.
func (c *Coordinator) Handle(from transport.PeerID, msg wire.Message) error {
	switch m := msg.(type) {
	case *wire.InventoryRequest:
		return c.serveInventory(from)
	case *wire.InventoryReply:
		return c.onInventory(from, m)
	case *wire.PageRequest:
		return c.servePages(from, m)
	case *wire.Page:
		return c.withSession(func(out *outbox) error {
			return c.onPage(m, out)
		})
	case *wire.PageMissing:
		return c.withSession(func(out *outbox) error {
			return c.onMissing(m, out)
		})
	case *wire.PageMore:
		return c.withSession(func(out *outbox) error {
			return c.onMore(m, out)
		})
	case *wire.BulkPages:
		return c.withSession(func(out *outbox) error {
			return c.onBulk(m, out)
		})
	case *wire.LogRangeRequest:
		return c.serveLog(from, m)
	default:
		return reperr.Protocol(errors.Newf("unexpected message %T", msg))
	}
}

// Tick периодическая проверка: повтор запроса списка файлов или
// дозапрос страниц если ответы давно не приходили.
func (c *Coordinator) Tick(now time.Time) {
	var out outbox
	c.lock.Lock()
	c.tick(now, &out)
	c.lock.Unlock()

	c.flush(out)
}

// Abort отказ от текущей попытки. Журнал намерений остаётся и будет
// обработан при следующем Begin или Recover.
func (c *Coordinator) Abort() {
	c.lock.Lock()
	defer c.lock.Unlock()

	s := c.session
	if s == nil {
		return
	}

	c.logger.AttemptFailed(s.id, s.phase.String(), ErrAborted)
	c.closeDB()
	c.setPhase(PhaseIdle)
	c.session = nil
}

// LogReplayDone накат лога завершён, повторная инициализация окончена.
func (c *Coordinator) LogReplayDone() error {
	c.lock.Lock()
	defer c.lock.Unlock()

	s := c.session
	if s == nil || s.phase != PhaseAwaitingLogReplay {
		return errors.Wrap(ErrUnexpectedPhase, "complete log replay").Stg("phase", c.phase())
	}

	c.logger.ResyncFinished(s.id, s.stats.Files, s.stats.Pages)
	c.setPhase(PhaseIdle)
	c.last = s.stats
	c.session = nil

	return nil
}

// Status снимок текущего состояния.
func (c *Coordinator) Status() Status {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.session == nil {
		return Status{
			Phase: PhaseIdle,
			File:  -1,
			Stats: c.last,
		}
	}

	return c.session.status()
}

// Stats итоги текущей или последней завершённой попытки.
func (c *Coordinator) Stats() Stats {
	return c.Status().Stats
}

// Close закрытие открытой локальной копии.
func (c *Coordinator) Close() error {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.dbLock.Lock()
	defer c.dbLock.Unlock()

	if c.db == nil {
		return nil
	}

	err := c.db.Close()
	c.db = nil
	if err != nil {
		return errors.Wrap(err, "close local database copy")
	}

	return nil
}

func (c *Coordinator) withSession(fn func(out *outbox) error) error {
	var out outbox
	c.lock.Lock()
	err := fn(&out)
	c.lock.Unlock()

	c.flush(out)
	return err
}

func (c *Coordinator) flush(out outbox) {
	for _, o := range out {
		if err := c.sender.Send(o.to, o.msg); err != nil {
			c.logger.SendFailed(uint32(o.to), o.msg.Kind().String(), err)
		}
	}
}

func (c *Coordinator) phase() Phase {
	if c.session == nil {
		return PhaseIdle
	}

	return c.session.phase
}

func (c *Coordinator) setPhase(to Phase) {
	s := c.session
	if s.phase == to {
		return
	}

	c.logger.PhaseChanged(s.id, s.phase.String(), to.String())
	s.phase = to
}

func (c *Coordinator) busy() bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.session != nil || c.removing
}

// closeDB закрытие локальной копии. Ошибка закрытия не важна:
// данные либо уже сброшены, либо попытка всё равно отменяется.
func (c *Coordinator) closeDB() {
	c.dbLock.Lock()
	defer c.dbLock.Unlock()

	if c.db != nil {
		_ = c.db.Close()
		c.db = nil
	}
}

func position(msg wire.Message) (index uint32, pgno uint32) {
	switch m := msg.(type) {
	case *wire.Page:
		return m.FileIndex, m.Number
	case *wire.PageMissing:
		return m.FileIndex, m.Page
	case *wire.PageMore:
		return m.FileIndex, m.Page
	case *wire.PageRequest:
		return m.File.Index, m.Page
	default:
		return 0, 0
	}
}
