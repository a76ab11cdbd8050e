// Package pagelock неблокирующие блокировки страниц.
package pagelock

import (
	"sync"

	"github.com/sirkon/repinit/internal/types"
)

// Mode режим блокировки.
type Mode int

const (
	// Shared разделяемая блокировка на чтение.
	Shared Mode = iota
	// Exclusive исключительная блокировка на запись.
	Exclusive
)

// Key адрес блокируемой страницы.
type Key struct {
	File types.FileID
	Page uint32
}

// Handle выданная блокировка.
type Handle struct {
	key  Key
	mode Mode
}

// Key адрес заблокированной страницы.
func (h Handle) Key() Key {
	return h.key
}

type entry struct {
	shared    int
	exclusive bool
}

// New конструктор таблицы блокировок.
func New() *Table {
	return &Table{
		locks: map[Key]*entry{},
	}
}

// Table таблица блокировок страниц. Ожидания нет: блокировка либо
// выдаётся сразу, либо не выдаётся.
type Table struct {
	lock  sync.Mutex
	locks map[Key]*entry
}

// TryAcquire попытка взять блокировку без ожидания.
func (t *Table) TryAcquire(key Key, mode Mode) (Handle, bool) {
	t.lock.Lock()
	defer t.lock.Unlock()

	e := t.locks[key]
	if e == nil {
		e = &entry{}
		t.locks[key] = e
	}

	switch mode {
	case Shared:
		if e.exclusive {
			return Handle{}, false
		}
		e.shared++
	case Exclusive:
		if e.exclusive || e.shared > 0 {
			return Handle{}, false
		}
		e.exclusive = true
	}

	return Handle{key: key, mode: mode}, true
}

// Release снятие блокировки.
func (t *Table) Release(h Handle) {
	t.lock.Lock()
	defer t.lock.Unlock()

	e := t.locks[h.key]
	if e == nil {
		return
	}

	switch h.mode {
	case Shared:
		if e.shared > 0 {
			e.shared--
		}
	case Exclusive:
		e.exclusive = false
	}

	if e.shared == 0 && !e.exclusive {
		delete(t.locks, h.key)
	}
}

// Held количество страниц с активными блокировками.
func (t *Table) Held() int {
	t.lock.Lock()
	defer t.lock.Unlock()

	return len(t.locks)
}
