package pagecache

import (
	"sync"

	"github.com/sirkon/repinit/internal/dllist"
	"github.com/sirkon/repinit/internal/types"
)

type pageKey struct {
	id   types.FileID
	pgno uint32
}

type cachedPage struct {
	key  pageKey
	data []byte
}

// Cache общий LRU кеш страниц всех файлов.
type Cache struct {
	lock   sync.Mutex
	limit  int
	order  *dllist.DLList[cachedPage]
	pages  map[pageKey]*dllist.Node[cachedPage]
	byFile map[types.FileID]map[uint32]struct{}
}

// NewCache конструктор кеша на limit страниц.
func NewCache(limit int) *Cache {
	if limit <= 0 {
		limit = 1
	}

	return &Cache{
		limit:  limit,
		order:  dllist.New[cachedPage](),
		pages:  map[pageKey]*dllist.Node[cachedPage]{},
		byFile: map[types.FileID]map[uint32]struct{}{},
	}
}

// Get получение копии страницы из кеша.
func (c *Cache) Get(id types.FileID, pgno uint32) ([]byte, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	n, ok := c.pages[pageKey{id: id, pgno: pgno}]
	if !ok {
		return nil, false
	}

	c.order.MoveToBack(n)
	return append([]byte(nil), n.Value().data...), true
}

// Put сохранение копии страницы. При переполнении вытесняется
// давно не использованная страница.
func (c *Cache) Put(id types.FileID, pgno uint32, data []byte) {
	c.lock.Lock()
	defer c.lock.Unlock()

	key := pageKey{id: id, pgno: pgno}
	v := cachedPage{
		key:  key,
		data: append([]byte(nil), data...),
	}
	if n, ok := c.pages[key]; ok {
		n.SetValue(v)
		c.order.MoveToBack(n)
		return
	}

	for c.order.Len() >= c.limit {
		c.remove(c.order.First())
	}

	c.pages[key] = c.order.Push(v)
	file := c.byFile[id]
	if file == nil {
		file = map[uint32]struct{}{}
		c.byFile[id] = file
	}
	file[pgno] = struct{}{}
}

// EvictByIdentity удаление из кеша всех страниц файла.
func (c *Cache) EvictByIdentity(id types.FileID) int {
	c.lock.Lock()
	defer c.lock.Unlock()

	file := c.byFile[id]
	count := len(file)
	for pgno := range file {
		c.remove(c.pages[pageKey{id: id, pgno: pgno}])
	}

	return count
}

// Len количество страниц в кеше.
func (c *Cache) Len() int {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.order.Len()
}

func (c *Cache) remove(n *dllist.Node[cachedPage]) {
	key := n.Value().key
	c.order.Delete(n)
	delete(c.pages, key)

	file := c.byFile[key.id]
	delete(file, key.pgno)
	if len(file) == 0 {
		delete(c.byFile, key.id)
	}
}
