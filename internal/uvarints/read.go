package uvarints

import (
	"encoding/binary"

	"github.com/sirkon/errors"
)

const (
	// ErrorInvalidEncoding ошибка отдаваемая когда закодированное значение явно некорректно.
	ErrorInvalidEncoding errors.Const = "not a correct ULEB 128 encoded uint64"

	// ErrorTruncated буфер закончился посреди закодированного значения.
	ErrorTruncated errors.Const = "ULEB 128 encoded value is truncated"
)

// Read вычитывает кодированное в uvarint значение из буфера.
// Возвращает значение и количество использованных байтов.
func Read(buf []byte) (uint64, int, error) {
	var x uint64
	var s uint
	for i := range buf {
		if i == binary.MaxVarintLen64 {
			return 0, 0, ErrorInvalidEncoding
		}

		b := buf[i]
		if b < 0x80 {
			if i == binary.MaxVarintLen64-1 && b > 1 {
				return 0, 0, ErrorInvalidEncoding
			}

			return x | uint64(b)<<s, i + 1, nil
		}

		x |= uint64(b&0x7f) << s
		s += 7
	}

	return 0, 0, ErrorTruncated
}
