package resync

import (
	"github.com/sirkon/errors"

	"github.com/sirkon/repinit/internal/reperr"
	"github.com/sirkon/repinit/internal/transport"
	"github.com/sirkon/repinit/internal/types"
	"github.com/sirkon/repinit/internal/wire"
)

// serveInventory ответ на запрос списка файлов. Узел, который сам
// проходит повторную инициализацию, поставщиком быть не может.
func (c *Coordinator) serveInventory(from transport.PeerID) error {
	if c.busy() {
		return reperr.Stale(errors.Wrap(ErrBusy, "serve inventory"))
	}

	reply, err := c.inventory()
	if err != nil {
		return errors.Wrap(err, "collect inventory")
	}

	if err := c.sender.Send(from, reply); err != nil {
		c.logger.SendFailed(uint32(from), reply.Kind().String(), err)
	}

	return nil
}

// inventory список файлов и границы лога. Начало берётся до перечисления
// файлов: лог с этой позиции покрывает все изменения, которые могли
// попасть в файлы во время передачи.
func (c *Coordinator) inventory() (*wire.InventoryReply, error) {
	if err := c.log.Flush(); err != nil {
		return nil, reperr.Storage(errors.Wrap(err, "flush log"))
	}

	start, err := c.log.ServeFrom()
	if err != nil {
		return nil, reperr.Storage(errors.Wrap(err, "get log start position"))
	}

	version, err := c.log.VersionAt(start)
	if err != nil {
		return nil, reperr.Storage(errors.Wrap(err, "get log version").Stg("position", start))
	}

	files, err := c.catalog.EnumerateLocal()
	if err != nil {
		return nil, errors.Wrap(err, "enumerate local databases")
	}
	for i := range files {
		if err := c.catalog.Check(&files[i]); err != nil {
			return nil, errors.Wrap(err, "check local database")
		}
	}

	return &wire.InventoryReply{
		Start:      start,
		Current:    c.log.CurrentPosition(),
		LogVersion: version,
		Files:      files,
	}, nil
}

// servePages ответ на запрос диапазона страниц.
func (c *Coordinator) servePages(from transport.PeerID, req *wire.PageRequest) error {
	if c.busy() {
		return reperr.Stale(errors.Wrap(ErrBusy, "serve pages"))
	}

	_, err := c.server.Serve(req, func(msg wire.Message) {
		if err := c.sender.Send(from, msg); err != nil {
			c.logger.SendFailed(uint32(from), msg.Kind().String(), err)
		}
	})
	if err != nil {
		return errors.Wrap(err, "serve page request").
			Uint32("file-index", req.File.Index).
			Uint32("page", req.Page).
			Uint32("max-page", req.MaxPage)
	}

	return nil
}

// serveLog передача записей лога узлу закончившему получение файлов.
func (c *Coordinator) serveLog(from transport.PeerID, req *wire.LogRangeRequest) error {
	if c.shipper == nil {
		c.logger.LogRangeDropped(uint32(from), req.From, req.To)
		return nil
	}

	if err := c.log.Flush(); err != nil {
		return reperr.Storage(errors.Wrap(err, "flush log"))
	}

	err := c.log.ReadRange(req.From, req.To, func(pos types.LSN, data []byte) error {
		if err := c.shipper.ShipLog(from, pos, data); err != nil {
			return errors.Wrap(err, "ship log record").Stg("position", pos)
		}

		return nil
	})
	if err != nil {
		return errors.Wrap(err, "read log range").
			Stg("from", req.From).
			Stg("to", req.To)
	}

	return nil
}
