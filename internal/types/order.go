package types

import (
	"encoding/binary"
	"fmt"
)

// Order порядок байтов в котором отправитель закодировал числовые поля.
type Order uint8

const (
	// LittleEndian порядок от младшего к старшему.
	LittleEndian Order = 0
	// BigEndian порядок от старшего к младшему.
	BigEndian Order = 1
)

var nativeOrder = func() Order {
	var buf [2]byte
	binary.NativeEndian.PutUint16(buf[:], 1)
	if buf[0] == 1 {
		return LittleEndian
	}

	return BigEndian
}()

// NativeOrder порядок байтов текущей машины.
func NativeOrder() Order {
	return nativeOrder
}

// ByteOrder возвращает реализацию порядка байтов из encoding/binary.
func (o Order) ByteOrder() binary.ByteOrder {
	if o == BigEndian {
		return binary.BigEndian
	}

	return binary.LittleEndian
}

// Valid проверка значения флага порядка.
func (o Order) Valid() bool {
	return o == LittleEndian || o == BigEndian
}

// Opposite возвращает порядок байтов противоположный данному.
func (o Order) Opposite() Order {
	if o == BigEndian {
		return LittleEndian
	}

	return BigEndian
}

func (o Order) String() string {
	switch o {
	case LittleEndian:
		return "little-endian"
	case BigEndian:
		return "big-endian"
	default:
		return fmt.Sprintf("unknown byte order %d", o)
	}
}
