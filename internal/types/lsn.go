package types

// NewLSN конструктор позиции в логе.
func NewLSN(file uint32, offset uint32) LSN {
	return LSN{
		File:   file,
		Offset: offset,
	}
}

// LSN позиция записи в логе: номер файла лога и смещение в нём.
type LSN struct {
	File   uint32
	Offset uint32
}

// LSNSize размер кодированной позиции в логе.
const LSNSize = 8
