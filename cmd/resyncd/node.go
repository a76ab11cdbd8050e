package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/sirkon/errors"
	"go.uber.org/zap"

	"github.com/sirkon/repinit/internal/catalog"
	"github.com/sirkon/repinit/internal/config"
	"github.com/sirkon/repinit/internal/ledger"
	"github.com/sirkon/repinit/internal/logging"
	"github.com/sirkon/repinit/internal/logio"
	"github.com/sirkon/repinit/internal/pagecache"
	"github.com/sirkon/repinit/internal/pagelock"
	"github.com/sirkon/repinit/internal/pagexfer"
	"github.com/sirkon/repinit/internal/receipts"
	"github.com/sirkon/repinit/internal/reperr"
	"github.com/sirkon/repinit/internal/resync"
	"github.com/sirkon/repinit/internal/transport"
)

// bus транспорт узла.
type bus interface {
	resync.Sender
	start(ctx context.Context, h transport.Handler) error
	Close() error
}

type udpBus struct {
	*transport.UDP
}

func (b udpBus) start(_ context.Context, h transport.Handler) error {
	b.UDP.Start(h)
	return nil
}

type redisBus struct {
	*transport.RedisBus
}

func (b redisBus) start(ctx context.Context, h transport.Handler) error {
	return b.RedisBus.Start(ctx, h)
}

// node узел со всеми подсистемами собранными по настройкам.
type node struct {
	cfg      *config.Config
	zap      *zap.Logger
	logger   logging.Logger
	store    *pagecache.Store
	catalog  *catalog.Catalog
	ledger   *ledger.Ledger
	log      *logio.Log
	receipts receipts.Ledger
	bus      bus
	coord    *resync.Coordinator

	closers []closer
}

type closer struct {
	name string
	fn   func() error
}

// loadNode чтение настроек и подготовка локальных подсистем. Транспорт
// и координатор подключаются отдельно через connect.
func loadNode(path string) (*node, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, errors.Wrap(err, "load config").Str("path", path)
	}

	level, err := cfg.Level()
	if err != nil {
		return nil, errors.Wrap(err, "parse log level")
	}

	if err := os.MkdirAll(cfg.Home, 0755); err != nil {
		return nil, errors.Wrap(err, "create home directory").Str("home", cfg.Home)
	}

	n := &node{cfg: cfg}
	n.zap = logging.NewJSON(os.Stderr, level)
	n.logger = logging.NewZap(n.zap)
	n.onClose("sync logger", func() error {
		_ = n.zap.Sync()
		return nil
	})

	n.store = pagecache.NewStore(cfg.PageCachePages)
	n.catalog = catalog.New(cfg.Home, cfg.DataDirs, n.store, n.logger, catalog.WithPageLimit(cfg.PageSizeLimit()))
	n.ledger = ledger.New(cfg.Home)

	n.log, err = logio.Open(cfg.Home, logio.WithFileLimit(cfg.LogFileLimit))
	if err != nil {
		_ = n.close()
		return nil, errors.Wrap(err, "open log").Str("home", cfg.Home)
	}
	n.onClose("close log", n.log.Close)

	switch cfg.Receipts {
	case config.ReceiptsSQLite:
		rc, err := receipts.OpenSQLite(filepath.Join(cfg.Home, receipts.FileName))
		if err != nil {
			_ = n.close()
			return nil, errors.Wrap(err, "open page receipts")
		}
		n.receipts = rc
	default:
		n.receipts = receipts.NewMemory()
	}
	n.onClose("close page receipts", n.receipts.Close)

	return n, nil
}

// connect подключение транспорта и создание координатора.
func (n *node) connect() error {
	cfg := n.cfg

	switch cfg.Transport {
	case config.TransportRedis:
		b, err := transport.NewRedisBus(
			transport.RedisConfig{
				URL:     cfg.RedisURL,
				Prefix:  cfg.RedisPrefix,
				Self:    transport.PeerID(cfg.PeerID),
				Workers: cfg.Workers,
			},
			n.logger,
		)
		if err != nil {
			return errors.Wrap(err, "set up redis transport")
		}
		n.bus = redisBus{b}

	default:
		peers := make(map[transport.PeerID]string, len(cfg.Peers))
		for id, addr := range cfg.Peers {
			peers[transport.PeerID(id)] = addr
		}

		u, err := transport.ListenUDP(
			transport.UDPConfig{
				Self:    transport.PeerID(cfg.PeerID),
				Listen:  cfg.Listen,
				Peers:   peers,
				Workers: cfg.Workers,
			},
			n.logger,
		)
		if err != nil {
			return errors.Wrap(err, "set up udp transport")
		}
		n.bus = udpBus{u}
	}
	n.onClose("close transport", n.bus.Close)

	n.coord = resync.New(
		resync.Config{
			Gaps: pagexfer.Gaps{
				Min: cfg.RequestGapMin.Duration,
				Max: cfg.RequestGapMax.Duration,
			},
			Serve: pagexfer.ServerConfig{
				Bulk:            cfg.Bulk,
				BulkSize:        cfg.BulkSize,
				QueueBatchPages: cfg.QueueBatchPages,
			},
		},
		resync.Deps{
			Catalog:  n.catalog,
			Ledger:   n.ledger,
			Log:      n.log,
			Sender:   n.bus,
			Receipts: n.receipts,
			Locks:    pagelock.New(),
			Logger:   n.logger,
		},
	)
	n.onClose("close coordinator", n.coord.Close)

	return nil
}

// recover обработка журнала без подключения к сети.
func (n *node) recover() error {
	coord := resync.New(resync.Config{}, resync.Deps{
		Catalog:  n.catalog,
		Ledger:   n.ledger,
		Log:      n.log,
		Receipts: n.receipts,
		Logger:   n.logger,
	})

	return coord.Recover()
}

func (n *node) onClose(name string, fn func() error) {
	n.closers = append(n.closers, closer{name: name, fn: fn})
}

// close освобождение ресурсов в обратном порядке.
func (n *node) close() error {
	var cleanup reperr.Cleanup
	for i := len(n.closers) - 1; i >= 0; i-- {
		cleanup.Add(n.closers[i].name, n.closers[i].fn)
	}
	n.closers = nil

	return cleanup.Run()
}
