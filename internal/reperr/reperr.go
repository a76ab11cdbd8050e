package reperr

import "strings"

// Error ошибка с пометкой вида.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Err != nil {
		b.WriteByte('[')
		b.WriteString(e.Err.Error())
		b.WriteByte(']')
	}

	return b.String()
}

// Unwrap для errors.Is и errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

func mark(kind Kind, err error) error {
	if err == nil {
		return nil
	}

	return &Error{
		Kind: kind,
		Err:  err,
	}
}

// Protocol помечает ошибку как ошибку формата сообщения.
func Protocol(err error) error {
	return mark(KindProtocol, err)
}

// Resource помечает ошибку как ошибку выделения ресурса.
func Resource(err error) error {
	return mark(KindResource, err)
}

// Storage помечает ошибку как ошибку файлового хранилища.
func Storage(err error) error {
	return mark(KindStorage, err)
}

// Stale помечает ошибку как признак устаревшего сообщения.
func Stale(err error) error {
	return mark(KindStale, err)
}

// Is проверка на вид ошибки.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
