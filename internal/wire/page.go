package wire

import (
	"encoding/binary"

	"github.com/sirkon/errors"
	"github.com/sirkon/varsize"

	"github.com/sirkon/repinit/internal/types"
	"github.com/sirkon/repinit/internal/uvarints"
	"github.com/sirkon/repinit/internal/wirebuf"
)

// pageFixedSize порядок, резерв, индекс файла, номер страницы.
const pageFixedSize = 1 + 1 + 4 + 4

// Page страница файла. Числовые поля кодируются в порядке Order,
// тот же порядок описывает содержимое страницы.
type Page struct {
	FileIndex uint32
	Number    uint32
	Order     types.Order
	Payload   []byte
}

// Foreign проверка, что содержимое страницы записано в порядке отличном
// от порядка байтов получателя.
func (p *Page) Foreign(native types.Order) bool {
	return p.Order != native
}

// Len длина сериализованной страницы.
func (p *Page) Len() int {
	return pageFixedSize + varsize.Len(p.Payload) + len(p.Payload)
}

// EncodeTo сериализация страницы.
func (p *Page) EncodeTo(dst []byte) (int, error) {
	if len(p.Payload) > MaxPageSize {
		return 0, errors.New("page payload is too large").
			Int("page-payload-length", len(p.Payload)).
			Int("page-payload-length-limit", MaxPageSize)
	}

	l := p.Len()
	if len(dst) < l {
		return 0, wirebuf.ErrNeedsMoreSpace
	}

	order := p.Order.ByteOrder()
	dst[0] = byte(p.Order)
	dst[1] = 0
	order.PutUint32(dst[2:], p.FileIndex)
	order.PutUint32(dst[6:], p.Number)
	n := pageFixedSize
	n += binary.PutUvarint(dst[n:], uint64(len(p.Payload)))
	n += copy(dst[n:], p.Payload)

	return n, nil
}

// DecodePage десериализация страницы. Содержимое копируется.
func DecodePage(src []byte) (Page, int, error) {
	var res Page

	order, err := readOrder(src)
	if err != nil {
		return res, 0, err
	}

	c := newCursor(src, order)
	c.pos = 2
	if res.FileIndex, err = c.u32(); err != nil {
		return res, 0, err
	}
	if res.Number, err = c.u32(); err != nil {
		return res, 0, err
	}
	payload, err := c.blob(MaxPageSize)
	if err != nil {
		return res, 0, err
	}

	res.Order = order
	res.Payload = append([]byte(nil), payload...)

	return res, c.pos, nil
}

func readCount(src []byte, limit int) (int, int, error) {
	count, n, err := uvarints.Read(src)
	if err != nil {
		if err == uvarints.ErrorTruncated {
			return 0, 0, ErrTruncated
		}

		return 0, 0, errMalformed("count")
	}
	if count > uint64(limit) {
		return 0, 0, errMalformed("count is out of limit").
			Uint64("count", count).
			Int("count-limit", limit)
	}

	return int(count), n, nil
}
