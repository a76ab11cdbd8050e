// Package logio лог изменений: директория с файлами log.NNNNNNNNNN,
// каждая запись которых адресуется позицией types.LSN.
package logio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/sirkon/errors"

	"github.com/sirkon/repinit/internal/dir"
	"github.com/sirkon/repinit/internal/mpio"
	"github.com/sirkon/repinit/internal/types"
	"github.com/sirkon/repinit/internal/uvarints"
)

// Open открытие лога в директории path. Директория создаётся при
// необходимости, недописанный хвост последнего файла отрезается.
func Open(path string, opts ...Option) (*Log, error) {
	d, err := dir.New(path)
	if err != nil {
		return nil, errors.Wrap(err, "open log directory")
	}

	res := &Log{
		dir:     d,
		limit:   defaultFileLimit,
		bufsize: defaultBufferSize,
		version: FormatVersion,
	}
	for _, opt := range opts {
		if err := opt.apply(res); err != nil {
			return nil, errors.Wrap(err, "apply "+opt.String())
		}
	}

	numbers, err := res.files()
	if err != nil {
		return nil, errors.Wrap(err, "list log files")
	}

	if len(numbers) == 0 {
		if err := res.create(1); err != nil {
			return nil, errors.Wrap(err, "create first log file")
		}
		res.first = 1
		return res, nil
	}

	res.first = numbers[0]
	if err := res.reopen(numbers[len(numbers)-1]); err != nil {
		return nil, errors.Wrap(err, "reopen last log file").Uint32("log-file", numbers[len(numbers)-1])
	}

	return res, nil
}

// Log лог изменений.
type Log struct {
	lock sync.Mutex
	dir  *dir.Dir

	limit   int64
	bufsize int
	version uint32

	first   uint32
	current uint32
	curver  uint32
	dst     *mpio.Writer
}

// Append добавление записи в лог. Возвращает позицию записи.
func (l *Log) Append(data []byte) (types.LSN, error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	if l.dst == nil {
		return types.LSN{}, ErrClosed
	}

	rec := make([]byte, 0, uvarints.LengthInt(uint64(len(data)))+len(data))
	rec = binary.AppendUvarint(rec, uint64(len(data)))
	rec = append(rec, data...)

	size := l.dst.Size()
	if size > fileHeaderSize && size+int64(len(rec)) > l.limit {
		if err := l.rotate(); err != nil {
			return types.LSN{}, errors.Wrap(err, "rotate log file")
		}
		size = l.dst.Size()
	}

	if _, err := l.dst.Write(rec); err != nil {
		return types.LSN{}, errors.Wrap(err, "write log record")
	}

	return types.NewLSN(l.current, uint32(size)), nil
}

// Flush сброс буферизованных записей на диск с fsync.
func (l *Log) Flush() error {
	l.lock.Lock()
	defer l.lock.Unlock()

	if l.dst == nil {
		return ErrClosed
	}

	if err := l.dst.Sync(); err != nil {
		return errors.Wrap(err, "sync log file").Uint32("log-file", l.current)
	}

	return nil
}

// CurrentPosition позиция следующей записи.
func (l *Log) CurrentPosition() types.LSN {
	l.lock.Lock()
	defer l.lock.Unlock()

	if l.dst == nil {
		return types.NewLSN(l.current, fileHeaderSize)
	}

	return types.NewLSN(l.current, uint32(l.dst.Size()))
}

// FirstPosition позиция первой записи которая ещё хранится в логе.
func (l *Log) FirstPosition() types.LSN {
	l.lock.Lock()
	defer l.lock.Unlock()

	return types.NewLSN(l.first, fileHeaderSize)
}

// Version версия формата записей текущего файла лога.
func (l *Log) Version() uint32 {
	l.lock.Lock()
	defer l.lock.Unlock()

	return l.curver
}

// VersionAt версия формата записей файла содержащего данную позицию.
func (l *Log) VersionAt(pos types.LSN) (uint32, error) {
	l.lock.Lock()
	if pos.File == l.current {
		v := l.curver
		l.lock.Unlock()
		return v, nil
	}
	first, current := l.first, l.current
	l.lock.Unlock()

	if pos.File < first || pos.File > current {
		return 0, errors.Wrap(ErrPositionOutOfRange, "look for log file").Stg("position", pos)
	}

	file, err := os.Open(l.dir.Join(fileName(pos.File)))
	if err != nil {
		return 0, errors.Wrap(err, "open log file").Uint32("log-file", pos.File)
	}
	defer func() {
		_ = file.Close()
	}()

	var buf [fileHeaderSize]byte
	if _, err := io.ReadFull(file, buf[:]); err != nil {
		return 0, errors.Wrap(err, "read log file header").Uint32("log-file", pos.File)
	}

	v, _, err := decodeHeader(buf[:])
	if err != nil {
		return 0, errors.Wrap(err, "decode log file header").Uint32("log-file", pos.File)
	}

	return v, nil
}

// TruncateAndReset удаление всех файлов лога и контрольной точки с
// созданием пустого файла с номером first. Повторный вызов безопасен.
func (l *Log) TruncateAndReset(first uint32) error {
	l.lock.Lock()
	defer l.lock.Unlock()

	if first == 0 {
		first = 1
	}

	if l.dst != nil {
		if err := l.dst.Close(); err != nil {
			return errors.Wrap(err, "close current log file").Uint32("log-file", l.current)
		}
		l.dst = nil
	}

	numbers, err := l.files()
	if err != nil {
		return errors.Wrap(err, "list log files")
	}

	for _, n := range numbers {
		if err := l.dir.Remove(fileName(n)); err != nil {
			return errors.Wrap(err, "remove log file").Uint32("log-file", n)
		}
	}

	if err := l.dir.Remove(CheckpointName); err != nil {
		return errors.Wrap(err, "remove checkpoint")
	}

	if err := l.create(first); err != nil {
		return errors.Wrap(err, "create log file").Uint32("log-file", first)
	}
	l.first = first

	if err := l.dst.Sync(); err != nil {
		return errors.Wrap(err, "sync new log file")
	}

	if err := l.dir.Sync(); err != nil {
		return errors.Wrap(err, "sync log directory")
	}

	return nil
}

// Close закрытие лога.
func (l *Log) Close() error {
	l.lock.Lock()
	defer l.lock.Unlock()

	if l.dst == nil {
		return nil
	}

	dst := l.dst
	l.dst = nil
	if err := dst.Close(); err != nil {
		return errors.Wrap(err, "close log file").Uint32("log-file", l.current)
	}

	return nil
}

func (l *Log) rotate() error {
	if err := l.dst.Sync(); err != nil {
		return errors.Wrap(err, "sync log file").Uint32("log-file", l.current)
	}

	if err := l.dst.Close(); err != nil {
		return errors.Wrap(err, "close log file").Uint32("log-file", l.current)
	}
	l.dst = nil

	if err := l.create(l.current + 1); err != nil {
		return errors.Wrap(err, "create next log file").Uint32("log-file", l.current+1)
	}

	return nil
}

func (l *Log) create(n uint32) error {
	file, err := os.OpenFile(l.dir.Join(fileName(n)), os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0644)
	if err != nil {
		return errors.Wrap(err, "open file")
	}

	var buf [fileHeaderSize]byte
	encodeHeader(buf[:], l.version, n)
	if _, err := file.Write(buf[:]); err != nil {
		_ = file.Close()
		return errors.Wrap(err, "write header")
	}

	dst, err := mpio.NewWriter(file, fileHeaderSize, l.bufsize)
	if err != nil {
		_ = file.Close()
		return errors.Wrap(err, "set up writer")
	}

	l.dst = dst
	l.current = n
	l.curver = l.version
	return nil
}

func (l *Log) reopen(n uint32) error {
	data, err := os.ReadFile(l.dir.Join(fileName(n)))
	if err != nil {
		return errors.Wrap(err, "read file")
	}

	if len(data) < fileHeaderSize {
		// Заголовок не успел записаться, файл пустой по содержанию.
		return l.create(n)
	}

	v, num, err := decodeHeader(data)
	if err != nil {
		return errors.Wrap(err, "decode header")
	}
	if num != n {
		return errors.Wrap(ErrLogIntegrityCompromised, "file number mismatch").
			Uint32("name-number", n).
			Uint32("header-number", num)
	}

	end := validEnd(data)

	file, err := os.OpenFile(l.dir.Join(fileName(n)), os.O_RDWR, 0644)
	if err != nil {
		return errors.Wrap(err, "open file")
	}

	if end < len(data) {
		if err := file.Truncate(int64(end)); err != nil {
			_ = file.Close()
			return errors.Wrap(err, "cut torn tail").Int("valid-length", end)
		}
	}

	dst, err := mpio.NewWriter(file, int64(end), l.bufsize)
	if err != nil {
		_ = file.Close()
		return errors.Wrap(err, "set up writer")
	}

	l.dst = dst
	l.current = n
	l.curver = v
	return nil
}

func (l *Log) files() ([]uint32, error) {
	names, err := l.dir.List(filePrefix + "*")
	if err != nil {
		return nil, err
	}

	var res []uint32
	for _, name := range names {
		n, ok := parseFileName(name)
		if !ok {
			continue
		}
		res = append(res, n)
	}

	return res, nil
}

// validEnd конец последней целой записи в данных файла.
func validEnd(data []byte) int {
	pos := fileHeaderSize
	for pos < len(data) {
		length, n, err := uvarints.Read(data[pos:])
		if err != nil {
			break
		}
		if uint64(len(data)-pos-n) < length {
			break
		}
		pos += n + int(length)
	}

	return pos
}

func encodeHeader(buf []byte, version, n uint32) {
	binary.LittleEndian.PutUint32(buf[0:4], fileMagic)
	binary.LittleEndian.PutUint32(buf[4:8], version)
	binary.LittleEndian.PutUint32(buf[8:12], n)
	binary.LittleEndian.PutUint32(buf[12:16], 0)
}

func decodeHeader(buf []byte) (version uint32, n uint32, err error) {
	if binary.LittleEndian.Uint32(buf[0:4]) != fileMagic {
		return 0, 0, errors.Wrap(ErrLogIntegrityCompromised, "invalid log file signature")
	}

	return binary.LittleEndian.Uint32(buf[4:8]), binary.LittleEndian.Uint32(buf[8:12]), nil
}

func fileName(n uint32) string {
	return fmt.Sprintf("%s%010d", filePrefix, n)
}

func parseFileName(name string) (uint32, bool) {
	rest, ok := strings.CutPrefix(name, filePrefix)
	if !ok || len(rest) != 10 {
		return 0, false
	}

	n, err := strconv.ParseUint(rest, 10, 32)
	if err != nil || n == 0 {
		return 0, false
	}

	return uint32(n), true
}
