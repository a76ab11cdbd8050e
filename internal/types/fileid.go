package types

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// FileIDSize длина идентификатора файла базы данных.
const FileIDSize = 20

// FileID неизменный идентификатор файла базы данных, записывается в
// мета-страницу при создании и переживает переименования.
type FileID [FileIDSize]byte

// NewFileID создаёт новый уникальный идентификатор: 16 байт UUID и
// 4 младших байта времени создания.
func NewFileID() FileID {
	var res FileID
	u := uuid.New()
	copy(res[:16], u[:])
	binary.LittleEndian.PutUint32(res[16:], uint32(time.Now().UnixNano()))

	return res
}

// FileIDEqual проверка на совпадение идентификаторов.
func FileIDEqual(a, b FileID) bool {
	return bytes.Equal(a[:], b[:])
}

// IsZero проверка на пустой идентификатор.
func (id FileID) IsZero() bool {
	return id == FileID{}
}

func (id FileID) String() string {
	return hex.EncodeToString(id[:])
}
