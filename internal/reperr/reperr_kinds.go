package reperr

import "github.com/sirkon/errors"

// KindOf получить вид ошибки. Ошибки без пометки считаются внутренними.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}

	var target *Error
	if !errors.As(err, &target) {
		return KindInternal
	}

	return target.Kind
}

// Kind вид ошибки повторной инициализации.
type Kind int32

const (
	// KindNone ошибки нет.
	KindNone Kind = 0

	// KindInternal неклассифицированная ошибка.
	KindInternal Kind = 1000

	// KindProtocol испорченное или обрезанное сообщение. Сообщение
	// отбрасывается, сессия продолжается.
	KindProtocol Kind = 2000

	// KindResource не удалось выделить ресурс, состояние не меняется
	// и операцию можно повторить.
	KindResource Kind = 3000

	// KindStorage ошибка удаления, открытия, чтения или записи файла.
	// Текущая попытка откатывается к фазе до удаления.
	KindStorage Kind = 4000

	// KindStale сообщение относится к файлу или фазе которые уже неактуальны.
	KindStale Kind = 5000
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "OK"
	case KindInternal:
		return "INTERNAL_ERROR"
	case KindProtocol:
		return "PROTOCOL_ERROR"
	case KindResource:
		return "RESOURCE_ERROR"
	case KindStorage:
		return "STORAGE_ERROR"
	case KindStale:
		return "STALE"
	default:
		return "UNKNOWN_ERROR"
	}
}
