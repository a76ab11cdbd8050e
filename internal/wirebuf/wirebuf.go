// Package wirebuf растущий буфер для сериализации записей.
package wirebuf

import "github.com/sirkon/errors"

// ErrNeedsMoreSpace возвращается кодировщиком, если места в приёмнике
// недостаточно для записи.
const ErrNeedsMoreSpace errors.Const = "needs more space"

// ErrCapacityLimit буфер не может вырасти дальше предельного размера.
const ErrCapacityLimit errors.Const = "buffer capacity limit reached"

// maxCapacity предельный размер буфера, 64Мб.
const maxCapacity = 64 * 1024 * 1024

// Encoder запись, умеющая сериализоваться в заданный приёмник.
// Если места не хватает, то возвращается ErrNeedsMoreSpace и приёмник
// остаётся нетронутым.
type Encoder interface {
	EncodeTo(dst []byte) (int, error)
}

// New конструктор буфера с начальной вместимостью.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 64
	}

	return &Buffer{
		buf: make([]byte, 0, capacity),
	}
}

// Buffer растущий буфер. Уже записанный префикс сохраняется при росте,
// поэтому ссылки на результат Bytes() после Append недействительны.
type Buffer struct {
	buf []byte
}

// Append сериализация записи в конец буфера. При нехватке места
// буфер удваивается и запись повторяется.
func (b *Buffer) Append(rec Encoder) (int, error) {
	for {
		n, err := rec.EncodeTo(b.buf[len(b.buf):cap(b.buf)])
		if err == nil {
			b.buf = b.buf[:len(b.buf)+n]
			return n, nil
		}

		if !errors.Is(err, ErrNeedsMoreSpace) {
			return 0, err
		}

		if err := b.grow(); err != nil {
			return 0, err
		}
	}
}

// Write для реализации io.Writer.
func (b *Buffer) Write(p []byte) (int, error) {
	for cap(b.buf)-len(b.buf) < len(p) {
		if err := b.grow(); err != nil {
			return 0, err
		}
	}

	b.buf = append(b.buf, p...)
	return len(p), nil
}

// Bytes возвращает записанные данные.
func (b *Buffer) Bytes() []byte {
	return b.buf
}

// Len длина записанных данных.
func (b *Buffer) Len() int {
	return len(b.buf)
}

// Truncate отбрасывает данные после первых n байтов.
func (b *Buffer) Truncate(n int) {
	if n < len(b.buf) {
		b.buf = b.buf[:n]
	}
}

// Reset сброс данных с сохранением вместимости.
func (b *Buffer) Reset() {
	b.buf = b.buf[:0]
}

func (b *Buffer) grow() error {
	newcap := cap(b.buf) * 2
	if newcap > maxCapacity {
		return errors.Wrap(ErrCapacityLimit, "grow buffer").
			Int("buffer-capacity", cap(b.buf)).
			Int("buffer-capacity-limit", maxCapacity)
	}

	nb := make([]byte, len(b.buf), newcap)
	copy(nb, b.buf)
	b.buf = nb
	return nil
}
