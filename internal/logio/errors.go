package logio

import "github.com/sirkon/errors"

const (
	// ErrLogIntegrityCompromised в логе найдено что-то противоречащее его устройству.
	ErrLogIntegrityCompromised errors.Const = "log integrity compromised"

	// ErrPositionOutOfRange позиция вне сохранённого лога.
	ErrPositionOutOfRange errors.Const = "log position is out of range"

	// ErrClosed лог закрыт.
	ErrClosed errors.Const = "log is closed"
)
