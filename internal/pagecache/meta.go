package pagecache

import (
	"github.com/sirkon/errors"

	"github.com/sirkon/repinit/internal/types"
	"github.com/sirkon/repinit/internal/wire"
)

// metaMagic сигнатура мета-страницы.
const metaMagic uint32 = 0x52455049

// Раскладка мета-страницы.
const (
	metaOffMagic      = 0
	metaOffOrder      = 4
	metaOffKind       = 5
	metaOffPageSize   = 8
	metaOffLastPage   = 12
	metaOffQueueFirst = 16
	metaOffQueueLast  = 20
	metaOffID         = 24

	// MetaSize размер заголовка мета-страницы.
	MetaSize = metaOffID + types.FileIDSize

	// MinPageSize минимальный размер страницы.
	MinPageSize = 512
)

// ErrNotDatabase файл не является базой данных.
const ErrNotDatabase errors.Const = "not a database file"

// Meta содержимое мета-страницы (страница номер 0).
type Meta struct {
	ID         types.FileID
	Kind       wire.DBKind
	Order      types.Order // Порядок байтов числовых полей файла.
	PageSize   uint32
	LastPage   uint32
	QueueFirst uint32 // Голова очереди, только для wire.DBKindQueue.
	QueueLast  uint32 // Хвост очереди, только для wire.DBKindQueue.
}

// QueueWrapped проверка, что хвост очереди перешёл через конец файла
// и оказался перед головой.
func (m Meta) QueueWrapped() bool {
	return m.Kind == wire.DBKindQueue && m.QueueLast < m.QueueFirst
}

// EncodeMeta запись мета-данных в начало страницы в порядке m.Order.
// Остаток страницы не изменяется.
func EncodeMeta(page []byte, m Meta) {
	order := m.Order.ByteOrder()
	order.PutUint32(page[metaOffMagic:], metaMagic)
	page[metaOffOrder] = byte(m.Order)
	page[metaOffKind] = byte(m.Kind)
	page[metaOffKind+1] = 0
	page[metaOffKind+2] = 0
	order.PutUint32(page[metaOffPageSize:], m.PageSize)
	order.PutUint32(page[metaOffLastPage:], m.LastPage)
	order.PutUint32(page[metaOffQueueFirst:], m.QueueFirst)
	order.PutUint32(page[metaOffQueueLast:], m.QueueLast)
	copy(page[metaOffID:], m.ID[:])
}

// DecodeMeta чтение мета-данных из начала страницы. Порядок байтов
// определяется флагом записанным в самой странице.
func DecodeMeta(page []byte) (Meta, error) {
	var m Meta
	if len(page) < MetaSize {
		return m, errors.Wrap(ErrNotDatabase, "meta page is too short").Int("meta-page-length", len(page))
	}

	m.Order = types.Order(page[metaOffOrder])
	if !m.Order.Valid() {
		return m, errors.Wrap(ErrNotDatabase, "invalid byte order flag")
	}

	order := m.Order.ByteOrder()
	if magic := order.Uint32(page[metaOffMagic:]); magic != metaMagic {
		return m, errors.Wrap(ErrNotDatabase, "magic mismatch").Uint32("magic", magic)
	}

	m.Kind = wire.DBKind(page[metaOffKind])
	switch m.Kind {
	case wire.DBKindBtree, wire.DBKindQueue:
	default:
		return m, errors.Wrap(ErrNotDatabase, "unknown database kind").Int("database-kind", int(m.Kind))
	}

	m.PageSize = order.Uint32(page[metaOffPageSize:])
	if m.PageSize < MinPageSize || m.PageSize > wire.MaxPageSize {
		return m, errors.Wrap(ErrNotDatabase, "invalid page size").Uint32("page-size", m.PageSize)
	}

	m.LastPage = order.Uint32(page[metaOffLastPage:])
	m.QueueFirst = order.Uint32(page[metaOffQueueFirst:])
	m.QueueLast = order.Uint32(page[metaOffQueueLast:])
	copy(m.ID[:], page[metaOffID:])

	return m, nil
}

// SwapMetaPage перекодирует числовые поля мета-страницы в порядок to.
// Страницы с данными непрозрачны и не затрагиваются, их нужно передавать
// только если pgno равен нулю. Исходный слайс не изменяется.
func SwapMetaPage(page []byte, to types.Order) ([]byte, error) {
	m, err := DecodeMeta(page)
	if err != nil {
		return nil, errors.Wrap(err, "decode meta page")
	}

	res := append([]byte(nil), page...)
	m.Order = to
	EncodeMeta(res, m)

	return res, nil
}
