package wire

import (
	"encoding/binary"

	"github.com/sirkon/repinit/internal/types"
	"github.com/sirkon/repinit/internal/uvarints"
)

// cursor последовательная вычитка полей из буфера в заданном порядке байтов.
type cursor struct {
	buf   []byte
	pos   int
	order binary.ByteOrder
}

func newCursor(buf []byte, order types.Order) *cursor {
	return &cursor{
		buf:   buf,
		order: order.ByteOrder(),
	}
}

func (c *cursor) rest() int {
	return len(c.buf) - c.pos
}

func (c *cursor) u8() (uint8, error) {
	if c.rest() < 1 {
		return 0, ErrTruncated
	}

	v := c.buf[c.pos]
	c.pos++
	return v, nil
}

func (c *cursor) u16() (uint16, error) {
	if c.rest() < 2 {
		return 0, ErrTruncated
	}

	v := c.order.Uint16(c.buf[c.pos:])
	c.pos += 2
	return v, nil
}

func (c *cursor) u32() (uint32, error) {
	if c.rest() < 4 {
		return 0, ErrTruncated
	}

	v := c.order.Uint32(c.buf[c.pos:])
	c.pos += 4
	return v, nil
}

func (c *cursor) lsn() (types.LSN, error) {
	if c.rest() < types.LSNSize {
		return types.LSN{}, ErrTruncated
	}

	v := types.LSNDecode(c.buf[c.pos:], c.order)
	c.pos += types.LSNSize
	return v, nil
}

func (c *cursor) fixed(n int) ([]byte, error) {
	if c.rest() < n {
		return nil, ErrTruncated
	}

	v := c.buf[c.pos : c.pos+n]
	c.pos += n
	return v, nil
}

// blob вычитывает кусок данных с длиной закодированной в uvarint.
func (c *cursor) blob(limit int) ([]byte, error) {
	l, n, err := uvarints.Read(c.buf[c.pos:])
	if err != nil {
		if err == uvarints.ErrorTruncated {
			return nil, ErrTruncated
		}

		return nil, errMalformed("blob length")
	}
	if l > uint64(limit) {
		return nil, errMalformed("blob length is out of limit").
			Uint64("blob-length", l).
			Int("blob-length-limit", limit)
	}
	c.pos += n

	return c.fixed(int(l))
}

func readOrder(buf []byte) (types.Order, error) {
	if len(buf) < 1 {
		return 0, ErrTruncated
	}

	o := types.Order(buf[0])
	if !o.Valid() {
		return 0, errMalformed("byte order flag").Int("byte-order-flag", int(buf[0]))
	}

	return o, nil
}
