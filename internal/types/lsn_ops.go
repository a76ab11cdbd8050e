package types

import (
	"encoding/binary"
	"fmt"
)

// LSNEncode сериализация позиции в заданном порядке байтов.
// Внимание: размер буфера не проверяется и в случае размера меньшего 8 байт
// будет паника.
func LSNEncode(buf []byte, order binary.ByteOrder, lsn LSN) {
	order.PutUint32(buf, lsn.File)
	order.PutUint32(buf[4:], lsn.Offset)
}

// LSNDecode десериализация позиции.
// Внимание: размер буфера не проверяется и в случае размера меньшего 8 байт
// будет паника.
func LSNDecode(buf []byte, order binary.ByteOrder) LSN {
	return LSN{
		File:   order.Uint32(buf),
		Offset: order.Uint32(buf[4:]),
	}
}

// IsZero проверка, что позиция не задана.
func (l LSN) IsZero() bool {
	return l.File == 0 && l.Offset == 0
}

// LSNLess проверка, что позиция a находится в логе раньше b.
func LSNLess(a, b LSN) bool {
	return LSNCmp(a, b) < 0
}

// LSNCmp сравнение позиций.
// Возвращает:
//   - -1 если левая позиция раньше
//   - 0 если позиции совпадают
//   - 1 если левая позиция позже
func LSNCmp(a, b LSN) int {
	switch {
	case a.File < b.File:
		return -1
	case a.File > b.File:
		return 1
	case a.Offset < b.Offset:
		return -1
	case a.Offset > b.Offset:
		return 1
	default:
		return 0
	}
}

func (l LSN) String() string {
	return fmt.Sprintf("%08x", l.File) + "-" + fmt.Sprintf("%08x", l.Offset)
}
