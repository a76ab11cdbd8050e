// Package pagexfer передача страниц текущего файла: обслуживание
// запросов на стороне поставщика и учёт полученных страниц с
// дозапросом пропусков на стороне клиента.
package pagexfer

import (
	"time"

	"github.com/sirkon/errors"

	"github.com/sirkon/repinit/internal/pagecache"
	"github.com/sirkon/repinit/internal/receipts"
	"github.com/sirkon/repinit/internal/reperr"
	"github.com/sirkon/repinit/internal/types"
	"github.com/sirkon/repinit/internal/wire"
)

// ErrStale сообщение относится не к текущему файлу.
const ErrStale errors.Const = "message refers to another file"

// PageWriter приёмник полученных страниц.
type PageWriter interface {
	WritePage(pgno uint32, data []byte) error
}

// Gaps настройки адаптивного интервала дозапросов.
type Gaps struct {
	Min time.Duration
	Max time.Duration
}

// Outcome результат обработки очередного сообщения.
type Outcome struct {
	Fresh    bool              // Страница получена впервые.
	Advanced bool              // Граница готовности сдвинулась.
	Complete bool              // Все страницы до MaxPage получены.
	Request  *wire.PageRequest // Дозапрос который надо отправить.
}

// NewTracker учёт получения страниц файла file. Страницы пишутся в dst,
// отметки о получении ведутся в rc, который очищается.
func NewTracker(file wire.FileDescriptor, rc receipts.Ledger, dst PageWriter, gaps Gaps, now time.Time) (*Tracker, error) {
	if err := rc.Reset(); err != nil {
		return nil, errors.Wrap(err, "reset page receipts")
	}

	if gaps.Min <= 0 {
		gaps.Min = time.Millisecond
	}
	if gaps.Max < gaps.Min {
		gaps.Max = gaps.Min
	}

	return &Tracker{
		file:        file,
		rc:          rc,
		dst:         dst,
		gaps:        gaps,
		gap:         gaps.Min,
		maxPage:     file.MaxPage,
		lastArrival: now,
		lastRequest: now,
	}, nil
}

// Tracker учёт получения страниц одного файла. Не потокобезопасен,
// вызовы должны делаться под блокировкой сессии.
type Tracker struct {
	file wire.FileDescriptor
	rc   receipts.Ledger
	dst  PageWriter

	ready        uint32 // Все страницы ниже получены.
	waiting      uint32 // Наименьшая полученная страница выше ready.
	hasWaiting   bool
	maxRequested uint32
	maxPage      uint32
	received     uint64
	missing      uint64
	duplicates   uint64
	requests     uint64

	gaps        Gaps
	gap         time.Duration
	lastArrival time.Time
	lastRequest time.Time
}

// File описание получаемого файла.
func (t *Tracker) File() *wire.FileDescriptor {
	return &t.file
}

// Ready граница готовности: все страницы ниже неё получены.
func (t *Tracker) Ready() uint32 {
	return t.ready
}

// Waiting первая полученная страница за пропуском.
func (t *Tracker) Waiting() (uint32, bool) {
	return t.waiting, t.hasWaiting
}

// MaxRequested наибольшая запрошенная страница.
func (t *Tracker) MaxRequested() uint32 {
	return t.maxRequested
}

// MaxPage последняя страница которую необходимо получить.
func (t *Tracker) MaxPage() uint32 {
	return t.maxPage
}

// Received количество записанных страниц.
func (t *Tracker) Received() uint64 {
	return t.received
}

// MissingPages количество страниц отсутствующих у поставщика.
func (t *Tracker) MissingPages() uint64 {
	return t.missing
}

// Duplicates количество повторно полученных страниц.
func (t *Tracker) Duplicates() uint64 {
	return t.duplicates
}

// Requests количество отправленных запросов.
func (t *Tracker) Requests() uint64 {
	return t.requests
}

// Gap текущий интервал дозапросов.
func (t *Tracker) Gap() time.Duration {
	return t.gap
}

// Complete все страницы получены.
func (t *Tracker) Complete() bool {
	return t.ready > t.maxPage
}

// Start первичный запрос всего оставшегося диапазона.
func (t *Tracker) Start(now time.Time) *wire.PageRequest {
	return t.request(t.ready, t.maxPage, false, now)
}

// Receive обработка полученной страницы.
func (t *Tracker) Receive(page *wire.Page, now time.Time) (Outcome, error) {
	if page.FileIndex != t.file.Index {
		return Outcome{}, reperr.Stale(errors.Wrap(ErrStale, "check page file").
			Uint32("file-index", page.FileIndex).
			Uint32("current-file-index", t.file.Index))
	}

	fresh, err := t.rc.Record(page.Number)
	if err != nil {
		return Outcome{}, errors.Wrap(err, "record page receipt").Uint32("page", page.Number)
	}
	if !fresh {
		t.duplicates++
		return t.after(Outcome{}, now), nil
	}

	data := page.Payload
	if page.Number == 0 && page.Foreign(types.NativeOrder()) {
		data, err = pagecache.SwapMetaPage(data, types.NativeOrder())
		if err != nil {
			t.forget(page.Number)
			return Outcome{}, reperr.Protocol(errors.Wrap(err, "convert meta page byte order"))
		}
	}

	if err := t.dst.WritePage(page.Number, data); err != nil {
		t.forget(page.Number)
		return Outcome{}, reperr.Storage(errors.Wrap(err, "write page").Uint32("page", page.Number))
	}

	t.received++
	t.lastArrival = now
	return t.after(t.arrived(page.Number), now), nil
}

// Missing обработка сообщения об отсутствующей у поставщика странице.
// Страница считается полученной, но ничего не пишется.
func (t *Tracker) Missing(msg *wire.PageMissing, now time.Time) (Outcome, error) {
	if msg.FileIndex != t.file.Index {
		return Outcome{}, reperr.Stale(errors.Wrap(ErrStale, "check missing page file").
			Uint32("file-index", msg.FileIndex).
			Uint32("current-file-index", t.file.Index))
	}

	fresh, err := t.rc.Record(msg.Page)
	if err != nil {
		return Outcome{}, errors.Wrap(err, "record missing page receipt").Uint32("page", msg.Page)
	}
	if !fresh {
		t.duplicates++
		return t.after(Outcome{}, now), nil
	}

	t.missing++
	t.lastArrival = now
	return t.after(t.arrived(msg.Page), now), nil
}

// More обработка сигнала об оборванном поставщиком ответе: оставшиеся
// страницы немедленно запрашиваются у любого отвечающего узла.
func (t *Tracker) More(msg *wire.PageMore, now time.Time) (Outcome, error) {
	if msg.FileIndex != t.file.Index {
		return Outcome{}, reperr.Stale(errors.Wrap(ErrStale, "check page-more file").
			Uint32("file-index", msg.FileIndex).
			Uint32("current-file-index", t.file.Index))
	}

	var res Outcome
	res.Complete = t.Complete()
	if msg.Page < t.maxPage {
		res.Request = t.request(msg.Page+1, t.maxPage, true, now)
	}

	return res, nil
}

// Tick периодическая проверка: если страницы давно не приходили,
// то пропуск или хвост файла запрашиваются повторно, а интервал
// удваивается.
func (t *Tracker) Tick(now time.Time) Outcome {
	var res Outcome
	if t.Complete() {
		res.Complete = true
		return res
	}

	if now.Sub(t.lastArrival) < t.gap || now.Sub(t.lastRequest) < t.gap {
		return res
	}

	res.Request = t.rerequest(now)
	t.backoff()
	return res
}

// Extend расширение получаемого диапазона до страницы to.
func (t *Tracker) Extend(to uint32) {
	if to > t.maxPage {
		t.maxPage = to
	}
}

// Rewind повторное получение страниц [from, to]: отметки о них
// снимаются, граница готовности отодвигается назад.
func (t *Tracker) Rewind(from, to uint32) error {
	for pgno := from; pgno <= to; pgno++ {
		if err := t.rc.Forget(pgno); err != nil {
			return errors.Wrap(err, "forget page receipt").Uint32("page", pgno)
		}
		if pgno == to {
			break
		}
	}

	t.ready = from
	t.maxPage = to
	t.hasWaiting = false
	t.waiting = 0
	if err := t.scan(); err != nil {
		return errors.Wrap(err, "scan page receipts")
	}

	return nil
}

// arrived сдвиг границ после получения страницы pgno.
func (t *Tracker) arrived(pgno uint32) Outcome {
	var res Outcome
	res.Fresh = true

	switch {
	case pgno < t.ready:
		// Устаревший повтор, например после Rewind.
	case pgno == t.ready:
		t.ready++
		res.Advanced = true
		if t.hasWaiting && t.ready == t.waiting {
			if err := t.scan(); err != nil {
				// Отметки недоступны: граница остаётся, дозапрос всё исправит.
				t.hasWaiting = false
			}
		}
	default:
		if !t.hasWaiting || pgno < t.waiting {
			t.waiting = pgno
			t.hasWaiting = true
		}
	}

	if res.Advanced {
		t.gap = t.gaps.Min
	}

	return res
}

// scan сдвиг ready вперёд по непрерывно полученным страницам с
// поиском следующего пропуска.
func (t *Tracker) scan() error {
	t.hasWaiting = false
	return t.rc.Ascend(t.ready, func(pgno uint32) bool {
		if pgno > t.maxPage {
			return false
		}

		if pgno == t.ready {
			t.ready++
			return true
		}

		t.waiting = pgno
		t.hasWaiting = true
		return false
	})
}

func (t *Tracker) after(res Outcome, now time.Time) Outcome {
	if t.Complete() {
		res.Complete = true
		return res
	}

	if t.hasWaiting && now.Sub(t.lastRequest) >= t.gap {
		res.Request = t.rerequest(now)
		t.backoff()
	}

	return res
}

// rerequest запрос известного пропуска, а если пропуска нет, то всего
// хвоста начиная с ready.
func (t *Tracker) rerequest(now time.Time) *wire.PageRequest {
	to := t.maxPage
	if t.hasWaiting {
		to = t.waiting - 1
	}

	return t.request(t.ready, to, false, now)
}

func (t *Tracker) request(from, to uint32, anyPeer bool, now time.Time) *wire.PageRequest {
	if to > t.maxRequested {
		t.maxRequested = to
	}
	t.lastRequest = now
	t.requests++

	return &wire.PageRequest{
		File:    t.file,
		Page:    from,
		MaxPage: to,
		AnyPeer: anyPeer,
	}
}

func (t *Tracker) backoff() {
	t.gap *= 2
	if t.gap > t.gaps.Max {
		t.gap = t.gaps.Max
	}
}

// forget откат отметки после неудачной записи. Об ошибке сообщает
// вызывающий, поэтому ошибка отката не возвращается.
func (t *Tracker) forget(pgno uint32) {
	_ = t.rc.Forget(pgno)
}
