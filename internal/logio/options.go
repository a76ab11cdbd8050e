package logio

import (
	"fmt"

	"github.com/sirkon/errors"
)

// Option тип опции для открытия лога.
type Option interface {
	String() string
	apply(l *Log) error
}

// WithFileLimit задаёт размер файла после которого лог переходит на новый файл.
func WithFileLimit(size int64) Option {
	return fileLimit(size)
}

// WithBufferSize задаёт размер буфера записи.
func WithBufferSize(size int) Option {
	return bufferSize(size)
}

// WithVersion задаёт версию формата записей для новых файлов лога.
func WithVersion(v uint32) Option {
	return version(v)
}

type fileLimit int64

func (o fileLimit) String() string {
	return fmt.Sprintf("set log file limit to %d bytes", int64(o))
}

func (o fileLimit) apply(l *Log) error {
	if o <= fileHeaderSize {
		return errors.New("file limit is too low").Int64("file-limit", int64(o))
	}
	if o > fileLimitHardLimit {
		return errors.New("file limit is too large").
			Int64("file-limit", int64(o)).
			Int64("maximal-file-limit", fileLimitHardLimit)
	}

	l.limit = int64(o)
	return nil
}

type bufferSize int

func (o bufferSize) String() string {
	return fmt.Sprintf("set log writer buffer size to %d bytes", int(o))
}

func (o bufferSize) apply(l *Log) error {
	if o <= 0 {
		return errors.New("buffer size must be positive").Int("buffer-size", int(o))
	}

	l.bufsize = int(o)
	return nil
}

type version uint32

func (o version) String() string {
	return fmt.Sprintf("set log format version to %d", uint32(o))
}

func (o version) apply(l *Log) error {
	if o == 0 {
		return errors.New("log format version must not be zero")
	}

	l.version = uint32(o)
	return nil
}
