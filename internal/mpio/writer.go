// Package mpio буферизованная запись в файл с гарантией, что
// переданный в одном вызове кусок данных не будет разрезан между
// буфером и диском.
package mpio

import (
	"os"
	"sync"

	"github.com/sirkon/errors"
)

// ErrWriterFailed писалка в состоянии ошибки после неудачного сброса.
const ErrWriterFailed errors.Const = "writer is in failed state"

// NewWriter конструктор Writer для готового файла, запись
// начинается с позиции pos.
func NewWriter(file *os.File, pos int64, bufsize int) (*Writer, error) {
	if _, err := file.Seek(pos, 0); err != nil {
		return nil, errors.Wrap(err, "seek to write position").Int64("write-position", pos)
	}

	return &Writer{
		file:  file,
		size:  pos,
		total: pos,
		buf:   make([]byte, 0, bufsize),
	}, nil
}

// Writer буферизованная писалка.
type Writer struct {
	lock sync.Mutex
	file *os.File

	failed bool

	size  int64 // Количество байт сброшенных в файл.
	total int64 // Количество байт в файле и в буфере.
	buf   []byte
}

// Write запись данных. Кусок длиннее буфера пишется напрямую в файл
// после сброса накопленного.
func (w *Writer) Write(p []byte) (int, error) {
	w.lock.Lock()
	defer w.lock.Unlock()

	if w.failed {
		return 0, ErrWriterFailed
	}

	if len(w.buf)+len(p) > cap(w.buf) {
		if err := w.flush(); err != nil {
			return 0, errors.Wrap(err, "flush buffered data to release buffer")
		}
	}

	if len(p) > cap(w.buf) {
		if _, err := w.file.Write(p); err != nil {
			w.failed = true
			return 0, errors.Wrap(err, "write large piece").Int("piece-length", len(p))
		}
		w.size += int64(len(p))
		w.total += int64(len(p))
		return len(p), nil
	}

	w.buf = append(w.buf, p...)
	w.total += int64(len(p))
	return len(p), nil
}

// Flush сброс буфера в файл.
func (w *Writer) Flush() error {
	w.lock.Lock()
	defer w.lock.Unlock()

	return w.flush()
}

// Sync сброс буфера и fsync файла.
func (w *Writer) Sync() error {
	w.lock.Lock()
	defer w.lock.Unlock()

	if err := w.flush(); err != nil {
		return errors.Wrap(err, "flush buffer")
	}

	if err := w.file.Sync(); err != nil {
		w.failed = true
		return errors.Wrap(err, "sync file")
	}

	return nil
}

// Close закрывает файл после сброса буфера.
func (w *Writer) Close() error {
	w.lock.Lock()
	defer w.lock.Unlock()

	if err := w.flush(); err != nil {
		_ = w.file.Close()
		return errors.Wrap(err, "flush buffer")
	}

	if err := w.file.Close(); err != nil {
		return errors.Wrap(err, "close file")
	}

	return nil
}

// Name имя файла.
func (w *Writer) Name() string {
	return w.file.Name()
}

// Size размер файла с учётом буфера.
func (w *Writer) Size() int64 {
	w.lock.Lock()
	defer w.lock.Unlock()

	return w.total
}

// Flushed количество байт уже переданных в файл.
func (w *Writer) Flushed() int64 {
	w.lock.Lock()
	defer w.lock.Unlock()

	return w.size
}

func (w *Writer) flush() error {
	if w.failed {
		return ErrWriterFailed
	}

	if len(w.buf) == 0 {
		return nil
	}

	if _, err := w.file.Write(w.buf); err != nil {
		w.failed = true
		return err
	}

	w.size += int64(len(w.buf))
	w.buf = w.buf[:0]

	return nil
}
