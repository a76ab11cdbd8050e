package wire

import (
	"encoding/binary"

	"github.com/sirkon/errors"

	"github.com/sirkon/repinit/internal/reperr"
	"github.com/sirkon/repinit/internal/types"
	"github.com/sirkon/repinit/internal/wirebuf"
)

// envelopeSize код сообщения и порядок байтов его полей.
const envelopeSize = 2

// Encode сериализация сообщения в порядке байтов текущей машины.
func Encode(msg Message) ([]byte, error) {
	buf := wirebuf.New(256)
	if err := Marshal(buf, msg, types.NativeOrder()); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Marshal сериализация сообщения в конец буфера. Собственные числовые
// поля сообщения кодируются в порядке order, вложенные страницы и
// описания файлов несут собственный флаг порядка.
func Marshal(buf *wirebuf.Buffer, msg Message, order types.Order) error {
	start := buf.Len()
	if err := marshal(buf, msg, order); err != nil {
		buf.Truncate(start)
		err = errors.Wrap(err, "marshal "+msg.Kind().String())
		if errors.Is(err, wirebuf.ErrCapacityLimit) {
			return reperr.Resource(err)
		}

		return err
	}

	return nil
}

func marshal(buf *wirebuf.Buffer, msg Message, order types.Order) error {
	if _, err := buf.Write([]byte{byte(msg.Kind()), byte(order)}); err != nil {
		return err
	}

	w := fieldWriter{
		buf:   buf,
		order: order.ByteOrder(),
	}

	switch m := msg.(type) {
	case *InventoryRequest:
		return nil

	case *InventoryReply:
		w.lsn(m.Start)
		w.lsn(m.Current)
		w.u32(m.LogVersion)
		if w.err != nil {
			return w.err
		}
		if _, err := buf.Append(m.Files); err != nil {
			return errors.Wrap(err, "append file list")
		}
		return nil

	case *PageRequest:
		if _, err := buf.Append(&m.File); err != nil {
			return errors.Wrap(err, "append file descriptor")
		}
		w.u32(m.Page)
		w.u32(m.MaxPage)
		w.bool(m.AnyPeer)
		return w.err

	case *Page:
		if _, err := buf.Append(m); err != nil {
			return errors.Wrap(err, "append page")
		}
		return nil

	case *PageMissing:
		w.u32(m.FileIndex)
		w.u32(m.Page)
		return w.err

	case *PageMore:
		w.u32(m.FileIndex)
		w.u32(m.Page)
		return w.err

	case *BulkPages:
		w.uvarint(uint64(len(m.Pages)))
		for i := range m.Pages {
			w.uvarint(uint64(m.Pages[i].Len()))
			if w.err != nil {
				return w.err
			}
			if _, err := buf.Append(&m.Pages[i]); err != nil {
				return errors.Wrap(err, "append bulk page").Int("bulk-position", i)
			}
		}
		return w.err

	case *LogRangeRequest:
		w.lsn(m.From)
		w.lsn(m.To)
		return w.err

	default:
		return errors.Newf("unsupported message type %T", msg)
	}
}

// Decode десериализация сообщения. Ошибки помечены как ошибки протокола.
func Decode(data []byte) (Message, error) {
	msg, err := decode(data)
	if err != nil {
		return nil, reperr.Protocol(errors.Wrap(err, "decode message").Int("message-length", len(data)))
	}

	return msg, nil
}

func decode(data []byte) (Message, error) {
	if len(data) < envelopeSize {
		return nil, ErrTruncated
	}

	kind := Kind(data[0])
	order, err := readOrder(data[1:])
	if err != nil {
		return nil, err
	}

	c := newCursor(data, order)
	c.pos = envelopeSize

	var msg Message
	switch kind {
	case KindInventoryRequest:
		msg = &InventoryRequest{}

	case KindInventoryReply:
		var m InventoryReply
		if m.Start, err = c.lsn(); err != nil {
			return nil, err
		}
		if m.Current, err = c.lsn(); err != nil {
			return nil, err
		}
		if m.LogVersion, err = c.u32(); err != nil {
			return nil, err
		}
		files, n, err := DecodeFileList(data[c.pos:])
		if err != nil {
			return nil, errors.Wrap(err, "decode file list")
		}
		c.pos += n
		m.Files = files
		msg = &m

	case KindPageRequest:
		var m PageRequest
		file, n, err := DecodeFileDescriptor(data[c.pos:])
		if err != nil {
			return nil, errors.Wrap(err, "decode file descriptor")
		}
		c.pos += n
		m.File = file
		if m.Page, err = c.u32(); err != nil {
			return nil, err
		}
		if m.MaxPage, err = c.u32(); err != nil {
			return nil, err
		}
		flag, err := c.u8()
		if err != nil {
			return nil, err
		}
		m.AnyPeer = flag != 0
		if m.Page > m.MaxPage {
			return nil, errMalformed("page range").
				Uint32("range-first-page", m.Page).
				Uint32("range-last-page", m.MaxPage)
		}
		msg = &m

	case KindPage:
		page, n, err := DecodePage(data[c.pos:])
		if err != nil {
			return nil, errors.Wrap(err, "decode page")
		}
		c.pos += n
		msg = &page

	case KindPageMissing:
		var m PageMissing
		if m.FileIndex, err = c.u32(); err != nil {
			return nil, err
		}
		if m.Page, err = c.u32(); err != nil {
			return nil, err
		}
		msg = &m

	case KindPageMore:
		var m PageMore
		if m.FileIndex, err = c.u32(); err != nil {
			return nil, err
		}
		if m.Page, err = c.u32(); err != nil {
			return nil, err
		}
		msg = &m

	case KindBulkPages:
		m, err := decodeBulk(c)
		if err != nil {
			return nil, errors.Wrap(err, "decode bulk pages")
		}
		msg = m

	case KindLogRangeRequest:
		var m LogRangeRequest
		if m.From, err = c.lsn(); err != nil {
			return nil, err
		}
		if m.To, err = c.lsn(); err != nil {
			return nil, err
		}
		msg = &m

	default:
		return nil, errMalformed("message kind").Int("message-kind", int(kind))
	}

	if c.rest() != 0 {
		return nil, errMalformed("trailing bytes after message").
			Stg("message-kind", kind).
			Int("trailing-bytes", c.rest())
	}

	return msg, nil
}

func decodeBulk(c *cursor) (*BulkPages, error) {
	count, n, err := readCount(c.buf[c.pos:], len(c.buf))
	if err != nil {
		return nil, errors.Wrap(err, "read pages count")
	}
	c.pos += n

	res := &BulkPages{
		Pages: make([]Page, 0, count),
	}
	for i := 0; i < count; i++ {
		entry, err := c.blob(MaxPageSize + pageFixedSize + binary.MaxVarintLen32)
		if err != nil {
			return nil, errors.Wrap(err, "read bulk entry").Int("bulk-position", i)
		}

		page, used, err := DecodePage(entry)
		if err != nil {
			return nil, errors.Wrap(err, "decode bulk entry").Int("bulk-position", i)
		}
		if used != len(entry) {
			return nil, errMalformed("bulk entry length mismatch").
				Int("bulk-position", i).
				Int("bulk-entry-length", len(entry)).
				Int("bulk-entry-used", used)
		}

		res.Pages = append(res.Pages, page)
	}

	return res, nil
}

// fieldWriter запись числовых полей сообщения с запоминанием первой ошибки.
type fieldWriter struct {
	buf   *wirebuf.Buffer
	order binary.ByteOrder
	tmp   [binary.MaxVarintLen64]byte
	err   error
}

func (w *fieldWriter) write(p []byte) {
	if w.err != nil {
		return
	}

	_, w.err = w.buf.Write(p)
}

func (w *fieldWriter) u32(v uint32) {
	w.order.PutUint32(w.tmp[:4], v)
	w.write(w.tmp[:4])
}

func (w *fieldWriter) lsn(v types.LSN) {
	types.LSNEncode(w.tmp[:types.LSNSize], w.order, v)
	w.write(w.tmp[:types.LSNSize])
}

func (w *fieldWriter) bool(v bool) {
	w.tmp[0] = 0
	if v {
		w.tmp[0] = 1
	}
	w.write(w.tmp[:1])
}

func (w *fieldWriter) uvarint(v uint64) {
	n := binary.PutUvarint(w.tmp[:], v)
	w.write(w.tmp[:n])
}
