// Package catalog перечень локальных баз данных: файлов в директориях
// данных и в домашней директории, а также баз в памяти.
package catalog

import (
	"path/filepath"
	"strings"

	"github.com/sirkon/errors"

	"github.com/sirkon/repinit/internal/dir"
	"github.com/sirkon/repinit/internal/logging"
	"github.com/sirkon/repinit/internal/pagecache"
	"github.com/sirkon/repinit/internal/reperr"
	"github.com/sirkon/repinit/internal/types"
	"github.com/sirkon/repinit/internal/wire"
)

const (
	// ReservedPrefix префикс служебных файлов: регионы, журнал повторной
	// инициализации, учёт полученных страниц, экстенты очередей.
	ReservedPrefix = "__db"

	// QueueExtentPrefix префикс файлов экстентов базы вида очередь.
	QueueExtentPrefix = "__dbq."

	// ConfigName имя файла конфигурации окружения.
	ConfigName = "DB_CONFIG"

	logPrefix = "log."
)

// New конструктор каталога. Директории данных задаются относительно
// домашней директории и не могут выходить за её пределы: имена баз
// передаются другим узлам как пути относительно домашней директории.
func New(home string, dataDirs []string, store *pagecache.Store, logger logging.Logger, opts ...Option) *Catalog {
	c := &Catalog{
		home:      home,
		dataDirs:  dataDirs,
		store:     store,
		logger:    logger,
		pageLimit: wire.MaxPageSize,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Option опция каталога.
type Option func(c *Catalog)

// WithPageLimit наибольший размер страницы, который может пройти через
// транспорт узла.
func WithPageLimit(limit uint32) Option {
	return func(c *Catalog) {
		if limit > 0 && limit < c.pageLimit {
			c.pageLimit = limit
		}
	}
}

// Catalog каталог локальных баз данных.
type Catalog struct {
	home      string
	dataDirs  []string
	store     *pagecache.Store
	logger    logging.Logger
	pageLimit uint32
}

// Home домашняя директория.
func (c *Catalog) Home() string {
	return c.home
}

// Store хранилище файлов с которым работает каталог.
func (c *Catalog) Store() *pagecache.Store {
	return c.store
}

// Reserved проверка, что имя файла зарезервировано под служебные нужды
// и не может быть базой данных.
func Reserved(name string) bool {
	switch {
	case strings.HasPrefix(name, ReservedPrefix):
		return true
	case strings.HasPrefix(name, logPrefix):
		return true
	case name == ConfigName:
		return true
	default:
		return false
	}
}

// EnumerateLocal перечисление всех локальных баз данных с назначением
// им последовательных индексов: сначала директории данных в порядке
// конфигурации, затем домашняя директория, затем базы в памяти.
//
// Первый файл найденный в очередной директории сравнивается по
// идентификатору с уже найденными. При совпадении директория считается
// повтором одной из предыдущих и пропускается целиком.
func (c *Catalog) EnumerateLocal() (wire.FileList, error) {
	var res wire.FileList
	seen := map[types.FileID]struct{}{}

	dirs := append(append([]string{}, c.dataDirs...), "")
	for _, rel := range dirs {
		if rel != "" && !filepath.IsLocal(rel) {
			return nil, errors.New("data directory must be inside home directory").Str("data-dir", rel)
		}

		path := c.resolve(rel)
		names, err := dir.Open(path).ListFunc(func(name string) (bool, error) {
			return !Reserved(name), nil
		})
		if err != nil {
			return nil, reperr.Storage(errors.Wrap(err, "list directory").Str("dir", path))
		}

		var found wire.FileList
		for _, name := range names {
			full := filepath.Join(path, name)
			meta, err := c.store.ReadMeta(full)
			if err != nil {
				c.logger.CatalogSkipped(full, err)
				continue
			}

			if len(found) == 0 && len(res) > 0 {
				if _, ok := seen[meta.ID]; ok {
					c.logger.DuplicateDirectory(path, name)
					break
				}
			}

			found = append(found, c.descriptor(meta, c.name(rel, name), 0))
		}

		for _, d := range found {
			d.Index = uint32(len(res))
			seen[d.ID] = struct{}{}
			res = append(res, d)
		}
	}

	for _, name := range c.store.MemNames() {
		f, err := c.store.OpenMem(name)
		if err != nil {
			c.logger.CatalogSkipped(name, err)
			continue
		}
		meta := f.Meta()
		if err := f.Close(); err != nil {
			return nil, reperr.Storage(errors.Wrap(err, "close in-memory database").Str("name", name))
		}

		res = append(res, c.descriptor(meta, name, wire.FileInMemory))
		res[len(res)-1].Index = uint32(len(res) - 1)
	}

	return res, nil
}

// RemoveByDescriptor удаление базы данных описанной d вместе с её
// экстентами и страницами в кеше. Удаление отсутствующей базы не
// является ошибкой.
func (c *Catalog) RemoveByDescriptor(d *wire.FileDescriptor) error {
	defer c.store.EvictByIdentity(d.ID)

	if d.InMemory() {
		c.store.RemoveMem(string(d.Name))
		return nil
	}

	path, err := c.Path(d)
	if err != nil {
		return errors.Wrap(err, "resolve database path")
	}
	parent := dir.Open(filepath.Dir(path))
	base := filepath.Base(path)

	if err := parent.Remove(base); err != nil {
		return reperr.Storage(errors.Wrap(err, "remove database file").Str("path", path))
	}

	if d.Kind != wire.DBKindQueue {
		return nil
	}

	extents, err := parent.List(QueueExtentPrefix + base + ".*")
	if err != nil {
		return reperr.Storage(errors.Wrap(err, "list queue extents").Str("path", path))
	}

	for _, extent := range extents {
		if err := parent.Remove(extent); err != nil {
			return reperr.Storage(errors.Wrap(err, "remove queue extent").Str("extent", extent))
		}
	}

	return nil
}

// Check проверка, что базу описанную d можно передать и сохранить
// локально: страница проходит через транспорт, а имя указывает внутрь
// домашней директории.
func (c *Catalog) Check(d *wire.FileDescriptor) error {
	if d.PageSize > c.pageLimit {
		return reperr.Protocol(errors.New("page size exceeds transport limit").
			Str("name", string(d.Name)).
			Uint32("page-size", d.PageSize).
			Uint32("page-size-limit", c.pageLimit))
	}
	if d.InMemory() {
		return nil
	}

	_, err := c.Path(d)
	return err
}

// Path путь к файлу базы данных на диске. Имя приходит от другого узла,
// поэтому допускаются только пути внутри домашней директории, не
// совпадающие со служебными файлами.
func (c *Catalog) Path(d *wire.FileDescriptor) (string, error) {
	if err := wire.CheckName(d.Name, false); err != nil {
		return "", reperr.Protocol(errors.Wrap(err, "check database name"))
	}

	name := filepath.FromSlash(string(d.Name))
	if !filepath.IsLocal(name) {
		return "", reperr.Protocol(errors.New("database name points outside home directory").Str("name", string(d.Name)))
	}
	if Reserved(filepath.Base(name)) {
		return "", reperr.Protocol(errors.New("database name is reserved").Str("name", string(d.Name)))
	}

	return filepath.Join(c.home, name), nil
}

// Open открытие локальной копии базы данных описанной d.
func (c *Catalog) Open(d *wire.FileDescriptor) (*pagecache.File, error) {
	if d.InMemory() {
		return c.store.OpenMem(string(d.Name))
	}

	path, err := c.Path(d)
	if err != nil {
		return nil, errors.Wrap(err, "resolve database path")
	}

	return c.store.Open(path)
}

// Create создание пустой локальной копии базы данных описанной d.
// Мета-страница будет заменена первой полученной страницей 0.
func (c *Catalog) Create(d *wire.FileDescriptor) (*pagecache.File, error) {
	meta := pagecache.Meta{
		ID:       d.ID,
		Kind:     d.Kind,
		Order:    types.NativeOrder(),
		PageSize: d.PageSize,
	}

	if d.InMemory() {
		return c.store.CreateMem(string(d.Name), meta)
	}

	path, err := c.Path(d)
	if err != nil {
		return nil, errors.Wrap(err, "resolve database path")
	}

	return c.store.Create(path, meta)
}

func (c *Catalog) resolve(rel string) string {
	if rel == "" {
		return filepath.Clean(c.home)
	}

	return filepath.Join(c.home, rel)
}

func (c *Catalog) name(rel, name string) string {
	if rel == "" {
		return name
	}

	return filepath.ToSlash(filepath.Join(rel, name))
}

func (c *Catalog) descriptor(meta pagecache.Meta, name string, flags wire.FileFlags) wire.FileDescriptor {
	return wire.FileDescriptor{
		ID:       meta.ID,
		Kind:     meta.Kind,
		PageSize: meta.PageSize,
		MaxPage:  meta.LastPage,
		Order:    meta.Order,
		Flags:    flags,
		Name:     []byte(name),
	}
}
