package wire

import (
	"bytes"
	"encoding/binary"
	"path"
	"strings"

	"github.com/sirkon/errors"
	"github.com/sirkon/varsize"

	"github.com/sirkon/repinit/internal/types"
	"github.com/sirkon/repinit/internal/wirebuf"
)

// DBKind вид базы данных.
type DBKind uint8

const (
	// DBKindBtree обычная база данных со страницами произвольного доступа.
	DBKindBtree DBKind = 1
	// DBKindQueue база данных только с добавлением в хвост, "очередь".
	DBKindQueue DBKind = 2
)

func (k DBKind) String() string {
	switch k {
	case DBKindBtree:
		return "btree"
	case DBKindQueue:
		return "queue"
	default:
		return "unknown"
	}
}

// FileFlags флаги специфичные для вида файла.
type FileFlags uint8

const (
	// FileInMemory база данных существует только в памяти и адресуется
	// по имени, а не по пути.
	FileInMemory FileFlags = 1 << iota
)

// fileDescriptorFixedSize размер полей фиксированной длины:
// порядок, вид, флаги, резерв, индекс, размер страницы, последняя страница, идентификатор.
const fileDescriptorFixedSize = 1 + 1 + 1 + 1 + 4 + 4 + 4 + types.FileIDSize

// FileDescriptor описание файла базы данных участвующего в повторной инициализации.
type FileDescriptor struct {
	ID       types.FileID
	Index    uint32
	Kind     DBKind
	PageSize uint32
	MaxPage  uint32
	Order    types.Order // Порядок байтов отправителя.
	Flags    FileFlags
	Name     []byte // Путь относительно домашней директории или имя базы в памяти.
}

// InMemory проверка, что база данных живёт только в памяти.
func (d *FileDescriptor) InMemory() bool {
	return d.Flags&FileInMemory != 0
}

// Len длина сериализованного описания.
func (d *FileDescriptor) Len() int {
	return fileDescriptorFixedSize + varsize.Len(d.Name) + len(d.Name)
}

// EncodeTo сериализация описания в порядке байтов d.Order.
func (d *FileDescriptor) EncodeTo(dst []byte) (int, error) {
	if len(d.Name) > MaxNameSize {
		return 0, errors.New("file name is too long").
			Int("file-name-length", len(d.Name)).
			Int("file-name-length-limit", MaxNameSize)
	}

	l := d.Len()
	if len(dst) < l {
		return 0, wirebuf.ErrNeedsMoreSpace
	}

	order := d.Order.ByteOrder()
	dst[0] = byte(d.Order)
	dst[1] = byte(d.Kind)
	dst[2] = byte(d.Flags)
	dst[3] = 0
	order.PutUint32(dst[4:], d.Index)
	order.PutUint32(dst[8:], d.PageSize)
	order.PutUint32(dst[12:], d.MaxPage)
	copy(dst[16:], d.ID[:])
	n := fileDescriptorFixedSize
	n += binary.PutUvarint(dst[n:], uint64(len(d.Name)))
	n += copy(dst[n:], d.Name)

	return n, nil
}

// DecodeFileDescriptor десериализация описания файла.
// Возвращает описание и количество использованных байтов.
func DecodeFileDescriptor(src []byte) (FileDescriptor, int, error) {
	var res FileDescriptor

	order, err := readOrder(src)
	if err != nil {
		return res, 0, err
	}

	c := newCursor(src, order)
	c.pos = 1
	kind, err := c.u8()
	if err != nil {
		return res, 0, err
	}
	flags, err := c.u8()
	if err != nil {
		return res, 0, err
	}
	if _, err := c.u8(); err != nil {
		return res, 0, err
	}
	if res.Index, err = c.u32(); err != nil {
		return res, 0, err
	}
	if res.PageSize, err = c.u32(); err != nil {
		return res, 0, err
	}
	if res.MaxPage, err = c.u32(); err != nil {
		return res, 0, err
	}
	id, err := c.fixed(types.FileIDSize)
	if err != nil {
		return res, 0, err
	}
	name, err := c.blob(MaxNameSize)
	if err != nil {
		return res, 0, err
	}

	res.Kind = DBKind(kind)
	switch res.Kind {
	case DBKindBtree, DBKindQueue:
	default:
		return res, 0, errMalformed("database kind").Int("database-kind", int(kind))
	}
	if res.PageSize == 0 || res.PageSize > MaxPageSize {
		return res, 0, errMalformed("page size").Uint32("page-size", res.PageSize)
	}

	res.Order = order
	res.Flags = FileFlags(flags)
	if err := CheckName(name, res.InMemory()); err != nil {
		return res, 0, err
	}
	copy(res.ID[:], id)
	res.Name = append([]byte(nil), name...)

	return res, c.pos, nil
}

// CheckName проверка имени базы. Имя базы на диске это путь со слешами
// в очищенной форме, относительный и не поднимающийся выше начала.
func CheckName(name []byte, inMemory bool) error {
	switch {
	case len(name) == 0:
		return errMalformed("empty file name")
	case bytes.IndexByte(name, 0) >= 0:
		return errMalformed("file name contains zero byte")
	case inMemory:
		return nil
	case bytes.IndexByte(name, '\\') >= 0 || bytes.IndexByte(name, ':') >= 0:
		return errMalformed("file name is not a slash separated path").Str("file-name", string(name))
	}

	p := string(name)
	if path.IsAbs(p) {
		return errMalformed("absolute file name").Str("file-name", p)
	}
	if clean := path.Clean(p); clean != p || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return errMalformed("file name is not a clean relative path").Str("file-name", p)
	}

	return nil
}

// FileList упорядоченный список описаний файлов.
type FileList []FileDescriptor

// EncodeTo сериализация списка: количество файлов в uvarint и далее описания.
func (l FileList) EncodeTo(dst []byte) (int, error) {
	need := varsize.Len(l)
	for i := range l {
		need += l[i].Len()
	}
	if len(dst) < need {
		return 0, wirebuf.ErrNeedsMoreSpace
	}

	n := binary.PutUvarint(dst, uint64(len(l)))
	for i := range l {
		written, err := l[i].EncodeTo(dst[n:])
		if err != nil {
			return 0, errors.Wrap(err, "encode file descriptor").Int("file-list-position", i)
		}
		n += written
	}

	return n, nil
}

// DecodeFileList десериализация списка описаний файлов.
func DecodeFileList(src []byte) (FileList, int, error) {
	count, pos, err := readCount(src, MaxFiles)
	if err != nil {
		return nil, 0, err
	}

	res := make(FileList, 0, count)
	for i := 0; i < count; i++ {
		d, n, err := DecodeFileDescriptor(src[pos:])
		if err != nil {
			return nil, 0, errors.Wrap(err, "decode file descriptor").Int("file-list-position", i)
		}

		res = append(res, d)
		pos += n
	}

	return res, pos, nil
}
