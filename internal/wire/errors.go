package wire

import "github.com/sirkon/errors"

const (
	// ErrTruncated данных меньше чем требует запись.
	ErrTruncated errors.Const = "truncated record"

	// ErrMalformed данные записи противоречат формату.
	ErrMalformed errors.Const = "malformed record"
)

// Ограничения на размеры полей.
const (
	// MaxPageSize максимальный размер страницы.
	MaxPageSize = 64 * 1024
	// MaxNameSize максимальная длина имени файла.
	MaxNameSize = 4096
	// MaxFiles максимальное количество файлов в списке.
	MaxFiles = 1 << 20
)

func errMalformed(what string) errors.Error {
	return errors.Wrap(ErrMalformed, what)
}
