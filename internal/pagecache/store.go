package pagecache

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirkon/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/sirkon/repinit/internal/types"
)

// ErrFileNotFound файла или базы в памяти нет.
const ErrFileNotFound errors.Const = "database file not found"

// NewStore конструктор хранилища файлов с кешем на cachePages страниц.
func NewStore(cachePages int) *Store {
	return &Store{
		cache: NewCache(cachePages),
		mem:   map[string]*memBackend{},
	}
}

// Store доступ к файлам баз данных на диске и в памяти с общим кешем страниц.
type Store struct {
	cache *Cache

	lock sync.Mutex
	mem  map[string]*memBackend
}

// Cache общий кеш страниц.
func (s *Store) Cache() *Cache {
	return s.cache
}

// Create создание файла по пути path с заданными мета-данными.
// Существующий файл перезаписывается.
func (s *Store) Create(path string, meta Meta) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrap(err, "create parent directory")
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "create file")
	}

	res, err := s.initFile(osBackend{File: file}, meta)
	if err != nil {
		_ = file.Close()
		return nil, err
	}

	return res, nil
}

// Open открытие существующего файла.
func (s *Store) Open(path string) (*File, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(ErrFileNotFound, path)
		}

		return nil, errors.Wrap(err, "open file")
	}

	res, err := s.openFile(osBackend{File: file})
	if err != nil {
		_ = file.Close()
		return nil, err
	}

	return res, nil
}

// ReadMeta чтение мета-данных файла без открытия его на запись.
func (s *Store) ReadMeta(path string) (Meta, error) {
	file, err := os.Open(path)
	if err != nil {
		return Meta{}, errors.Wrap(err, "open file")
	}
	defer func() {
		_ = file.Close()
	}()

	return readMeta(file)
}

// CreateMem создание базы данных в памяти. Существующая база с тем же
// именем заменяется.
func (s *Store) CreateMem(name string, meta Meta) (*File, error) {
	b := &memBackend{}
	res, err := s.initFile(b, meta)
	if err != nil {
		return nil, err
	}

	s.lock.Lock()
	s.mem[name] = b
	s.lock.Unlock()

	return res, nil
}

// OpenMem открытие базы данных в памяти.
func (s *Store) OpenMem(name string) (*File, error) {
	s.lock.Lock()
	b, ok := s.mem[name]
	s.lock.Unlock()

	if !ok {
		return nil, errors.Wrap(ErrFileNotFound, name)
	}

	return s.openFile(b)
}

// RemoveMem удаление базы данных в памяти. Отсутствие базы не является ошибкой.
func (s *Store) RemoveMem(name string) {
	s.lock.Lock()
	defer s.lock.Unlock()

	delete(s.mem, name)
}

// MemNames упорядоченный список имён баз данных в памяти.
func (s *Store) MemNames() []string {
	s.lock.Lock()
	names := maps.Keys(s.mem)
	s.lock.Unlock()

	slices.Sort(names)
	return names
}

// EvictByIdentity удаление из кеша страниц файла с данным идентификатором.
func (s *Store) EvictByIdentity(id types.FileID) int {
	return s.cache.EvictByIdentity(id)
}

func (s *Store) initFile(b backend, meta Meta) (*File, error) {
	if meta.PageSize < MinPageSize {
		return nil, errors.New("page size is too small").
			Uint32("page-size", meta.PageSize).
			Int("page-size-limit", MinPageSize)
	}

	page := make([]byte, meta.PageSize)
	EncodeMeta(page, meta)
	if _, err := b.WriteAt(page, 0); err != nil {
		return nil, errors.Wrap(err, "write meta page")
	}

	return &File{
		store: s,
		b:     b,
		meta:  meta,
	}, nil
}

func (s *Store) openFile(b backend) (*File, error) {
	meta, err := readMeta(b)
	if err != nil {
		return nil, err
	}

	return &File{
		store: s,
		b:     b,
		meta:  meta,
	}, nil
}

func readMeta(src io.ReaderAt) (Meta, error) {
	var buf [MetaSize]byte
	if _, err := src.ReadAt(buf[:], 0); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return Meta{}, errors.Wrap(ErrNotDatabase, "file is too short")
		}

		return Meta{}, errors.Wrap(err, "read meta page")
	}

	meta, err := DecodeMeta(buf[:])
	if err != nil {
		return Meta{}, errors.Wrap(err, "decode meta page")
	}

	return meta, nil
}
