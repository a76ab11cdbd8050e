package receipts

import (
	"sync"

	"github.com/google/btree"
)

var _ Ledger = &Memory{}

// NewMemory учёт страниц в памяти.
func NewMemory() *Memory {
	return &Memory{
		tree: btree.NewOrderedG[uint32](32),
	}
}

// Memory учёт страниц в памяти на упорядоченном дереве.
type Memory struct {
	lock sync.Mutex
	tree *btree.BTreeG[uint32]
}

// Record для реализации Ledger.
func (m *Memory) Record(pgno uint32) (bool, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	_, replaced := m.tree.ReplaceOrInsert(pgno)
	return !replaced, nil
}

// Forget для реализации Ledger.
func (m *Memory) Forget(pgno uint32) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.tree.Delete(pgno)
	return nil
}

// Ascend для реализации Ledger.
func (m *Memory) Ascend(from uint32, fn func(pgno uint32) bool) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.tree.AscendGreaterOrEqual(from, fn)
	return nil
}

// Reset для реализации Ledger.
func (m *Memory) Reset() error {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.tree.Clear(false)
	return nil
}

// Len для реализации Ledger.
func (m *Memory) Len() (int, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	return m.tree.Len(), nil
}

// Close для реализации Ledger.
func (m *Memory) Close() error {
	return nil
}
