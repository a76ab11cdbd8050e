package pagexfer

import (
	"bytes"

	"github.com/sirkon/errors"
	"github.com/sirkon/varsize"

	"github.com/sirkon/repinit/internal/pagecache"
	"github.com/sirkon/repinit/internal/pagelock"
	"github.com/sirkon/repinit/internal/reperr"
	"github.com/sirkon/repinit/internal/types"
	"github.com/sirkon/repinit/internal/wire"
)

// missingRun сколько отсутствующих страниц за концом файла сообщается
// на один запрос. Остаток диапазона получатель запросит заново после
// wire.PageMore.
const missingRun = 256

// Opener открытие локальной копии файла по его описанию.
type Opener interface {
	Open(d *wire.FileDescriptor) (*pagecache.File, error)
}

// ServerConfig настройки обслуживания запросов страниц.
type ServerConfig struct {
	// Bulk упаковывать страницы в пачки.
	Bulk bool
	// BulkSize предельный размер пачки в байтах.
	BulkSize int
	// QueueBatchPages сколько страниц очереди отдавать на один запрос.
	// Ноль снимает ограничение.
	QueueBatchPages int
}

// ServeStats итоги обслуживания одного запроса.
type ServeStats struct {
	Sent      int
	Missing   int
	Contended int
	Bulks     int
	More      bool
}

// NewServer конструктор обслуживания запросов страниц.
func NewServer(files Opener, locks *pagelock.Table, cfg ServerConfig) *Server {
	return &Server{
		files: files,
		locks: locks,
		cfg:   cfg,
	}
}

// Server обслуживание запросов страниц на стороне поставщика.
type Server struct {
	files Opener
	locks *pagelock.Table
	cfg   ServerConfig
}

// Serve ответ на запрос диапазона страниц. Ответы передаются в emit
// по мере готовности. Страницы чью блокировку не удалось взять сразу
// пропускаются, отсутствующие страницы отмечаются через wire.PageMissing.
// За концом файла отмечается не больше missingRun страниц, после чего
// ответ обрывается через wire.PageMore.
func (s *Server) Serve(req *wire.PageRequest, emit func(msg wire.Message)) (ServeStats, error) {
	var stats ServeStats
	if req.MaxPage < req.Page {
		return stats, reperr.Protocol(errors.New("inverted page range").
			Uint32("page", req.Page).
			Uint32("max-page", req.MaxPage))
	}

	f, err := s.files.Open(&req.File)
	if err != nil {
		if !errors.Is(err, pagecache.ErrFileNotFound) {
			return stats, reperr.Storage(errors.Wrap(err, "open file").Str("file", string(req.File.Name)))
		}

		// Файл удалён после инвентаризации.
		for pgno := req.Page; ; pgno++ {
			if stats.Missing == missingRun {
				emit(&wire.PageMore{FileIndex: req.File.Index, Page: pgno - 1})
				stats.More = true
				return stats, nil
			}

			emit(&wire.PageMissing{FileIndex: req.File.Index, Page: pgno})
			stats.Missing++
			if pgno == req.MaxPage {
				break
			}
		}
		return stats, nil
	}
	defer func() {
		_ = f.Close()
	}()

	meta := f.Meta()
	bulk := bulkPacker{
		limit: s.cfg.BulkSize,
		emit: func(msg *wire.BulkPages) {
			emit(msg)
			stats.Bulks++
		},
	}

	var tail int
	for pgno := req.Page; ; pgno++ {
		queueCut := meta.Kind == wire.DBKindQueue && s.cfg.QueueBatchPages > 0 && stats.Sent >= s.cfg.QueueBatchPages
		tailCut := pgno > meta.LastPage && tail == missingRun
		if queueCut || tailCut {
			bulk.flush()
			emit(&wire.PageMore{FileIndex: req.File.Index, Page: pgno - 1})
			stats.More = true
			return stats, nil
		}
		if pgno > meta.LastPage {
			tail++
		}

		if err := s.servePage(f, meta, req.File.Index, pgno, &stats, &bulk, emit); err != nil {
			bulk.flush()
			return stats, err
		}

		if pgno == req.MaxPage {
			break
		}
	}

	bulk.flush()
	return stats, nil
}

func (s *Server) servePage(
	f *pagecache.File,
	meta pagecache.Meta,
	index uint32,
	pgno uint32,
	stats *ServeStats,
	bulk *bulkPacker,
	emit func(msg wire.Message),
) error {
	missing := func() {
		// Порядок ответов следует порядку страниц.
		bulk.flush()
		emit(&wire.PageMissing{FileIndex: index, Page: pgno})
		stats.Missing++
	}

	if pgno > meta.LastPage {
		missing()
		return nil
	}

	h, ok := s.locks.TryAcquire(pagelock.Key{File: meta.ID, Page: pgno}, pagelock.Shared)
	if !ok {
		stats.Contended++
		return nil
	}
	data, err := f.ReadPage(pgno)
	s.locks.Release(h)

	if err != nil {
		if errors.Is(err, pagecache.ErrPageNotFound) {
			missing()
			return nil
		}

		return reperr.Storage(errors.Wrap(err, "read page").Uint32("page", pgno))
	}

	page := &wire.Page{
		FileIndex: index,
		Number:    pgno,
		Order:     types.NativeOrder(),
		Payload:   bytes.Clone(data),
	}
	stats.Sent++

	if s.cfg.Bulk {
		bulk.add(page)
		return nil
	}

	emit(page)
	return nil
}

// bulkPacker набор страниц в пачку не больше limit байт.
type bulkPacker struct {
	limit int
	size  int
	pages []wire.Page
	emit  func(msg *wire.BulkPages)
}

func (b *bulkPacker) add(page *wire.Page) {
	l := page.Len()
	l += varsize.Uint(uint64(l))
	if len(b.pages) > 0 && b.size+l > b.limit {
		b.flush()
	}

	b.pages = append(b.pages, *page)
	b.size += l
}

func (b *bulkPacker) flush() {
	if len(b.pages) == 0 {
		return
	}

	b.emit(&wire.BulkPages{Pages: b.pages})
	b.pages = nil
	b.size = 0
}
