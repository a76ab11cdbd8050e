package logio

import (
	"os"

	"github.com/sirkon/errors"

	"github.com/sirkon/repinit/internal/types"
	"github.com/sirkon/repinit/internal/uvarints"
)

// ReadRange вычитка записей лога с позициями в [from, to). Нулевая
// from означает начало лога. Обработка прекращается на первой ошибке fn.
func (l *Log) ReadRange(from, to types.LSN, fn func(pos types.LSN, data []byte) error) error {
	l.lock.Lock()
	if l.dst != nil {
		if err := l.dst.Flush(); err != nil {
			l.lock.Unlock()
			return errors.Wrap(err, "flush buffered records")
		}
	}
	first := types.NewLSN(l.first, fileHeaderSize)
	end := types.NewLSN(l.current, fileHeaderSize)
	if l.dst != nil {
		end.Offset = uint32(l.dst.Size())
	}
	l.lock.Unlock()

	if from.IsZero() {
		from = first
	}
	if types.LSNLess(end, to) {
		to = end
	}

	if types.LSNLess(from, first) {
		return errors.Wrap(ErrPositionOutOfRange, "check range start").
			Stg("from", from).
			Stg("first-position", first)
	}
	if types.LSNLess(to, from) {
		return nil
	}

	for n := from.File; n <= to.File; n++ {
		data, err := os.ReadFile(l.dir.Join(fileName(n)))
		if err != nil {
			if os.IsNotExist(err) {
				return errors.Wrap(ErrPositionOutOfRange, "look for log file").Uint32("log-file", n)
			}
			return errors.Wrap(err, "read log file").Uint32("log-file", n)
		}

		pos := fileHeaderSize
		if n == from.File && int(from.Offset) > pos {
			pos = int(from.Offset)
		}
		limit := len(data)
		if n == to.File && int(to.Offset) < limit {
			limit = int(to.Offset)
		}

		for pos < limit {
			length, size, err := uvarints.Read(data[pos:limit])
			if err != nil {
				return errors.Wrap(ErrLogIntegrityCompromised, "decode record length").
					Uint32("log-file", n).
					Int("offset", pos)
			}
			if uint64(limit-pos-size) < length {
				return errors.Wrap(ErrLogIntegrityCompromised, "record is truncated").
					Uint32("log-file", n).
					Int("offset", pos)
			}

			rec := data[pos+size : pos+size+int(length)]
			if err := fn(types.NewLSN(n, uint32(pos)), rec); err != nil {
				return err
			}
			pos += size + int(length)
		}
	}

	return nil
}
