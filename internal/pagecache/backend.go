package pagecache

import (
	"io"
	"os"
	"sync"
)

// backend носитель данных файла базы: файл на диске или память.
type backend interface {
	io.ReaderAt
	io.WriterAt
	Size() (int64, error)
	Sync() error
	Close() error
}

type osBackend struct {
	*os.File
}

func (b osBackend) Size() (int64, error) {
	stat, err := b.Stat()
	if err != nil {
		return 0, err
	}

	return stat.Size(), nil
}

// memBackend содержимое базы данных живущей только в памяти. Переживает
// закрытие File до явного удаления из Store.
type memBackend struct {
	lock sync.RWMutex
	data []byte
}

func (b *memBackend) ReadAt(p []byte, off int64) (int, error) {
	b.lock.RLock()
	defer b.lock.RUnlock()

	if off >= int64(len(b.data)) {
		return 0, io.EOF
	}

	n := copy(p, b.data[off:])
	if n < len(p) {
		return n, io.EOF
	}

	return n, nil
}

func (b *memBackend) WriteAt(p []byte, off int64) (int, error) {
	b.lock.Lock()
	defer b.lock.Unlock()

	end := int(off) + len(p)
	if end > len(b.data) {
		if end > cap(b.data) {
			nd := make([]byte, end, end*2)
			copy(nd, b.data)
			b.data = nd
		} else {
			b.data = b.data[:end]
		}
	}

	return copy(b.data[off:], p), nil
}

func (b *memBackend) Size() (int64, error) {
	b.lock.RLock()
	defer b.lock.RUnlock()

	return int64(len(b.data)), nil
}

func (b *memBackend) Sync() error {
	return nil
}

func (b *memBackend) Close() error {
	return nil
}
