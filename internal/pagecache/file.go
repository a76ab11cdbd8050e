package pagecache

import (
	"io"
	"sync"

	"github.com/sirkon/errors"
)

// ErrPageNotFound страницы с таким номером в файле нет.
const ErrPageNotFound errors.Const = "page not found"

// File открытый файл базы данных.
type File struct {
	store *Store
	b     backend

	lock sync.Mutex
	meta Meta
}

// Meta текущие мета-данные файла.
func (f *File) Meta() Meta {
	f.lock.Lock()
	defer f.lock.Unlock()

	return f.meta
}

// ReadPage чтение страницы через общий кеш.
func (f *File) ReadPage(pgno uint32) ([]byte, error) {
	f.lock.Lock()
	meta := f.meta
	f.lock.Unlock()

	if pgno > meta.LastPage {
		return nil, errors.Wrap(ErrPageNotFound, "page is beyond the last one").
			Uint32("page", pgno).
			Uint32("last-page", meta.LastPage)
	}

	if data, ok := f.store.cache.Get(meta.ID, pgno); ok {
		return data, nil
	}

	data := make([]byte, meta.PageSize)
	n, err := f.b.ReadAt(data, int64(pgno)*int64(meta.PageSize))
	if err != nil && !(err == io.EOF && n > 0) {
		if err == io.EOF {
			return nil, errors.Wrap(ErrPageNotFound, "page is beyond the end of file").Uint32("page", pgno)
		}

		return nil, errors.Wrap(err, "read page").Uint32("page", pgno)
	}

	f.store.cache.Put(meta.ID, pgno, data)
	return data, nil
}

// WritePage запись страницы. Короткие данные дополняются нулями до
// размера страницы. Запись мета-страницы заменяет мета-данные файла
// сохраняя его идентификатор, запись за последней страницей расширяет файл.
func (f *File) WritePage(pgno uint32, data []byte) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	if len(data) > int(f.meta.PageSize) {
		return errors.New("page data is larger than page size").
			Int("page-data-length", len(data)).
			Uint32("page-size", f.meta.PageSize)
	}

	page := data
	if len(page) < int(f.meta.PageSize) {
		page = make([]byte, f.meta.PageSize)
		copy(page, data)
	}

	meta := f.meta
	if pgno == 0 {
		m, err := DecodeMeta(page)
		if err != nil {
			return errors.Wrap(err, "decode incoming meta page")
		}
		if m.PageSize != meta.PageSize {
			return errors.New("incoming meta page changes page size").
				Uint32("page-size", meta.PageSize).
				Uint32("incoming-page-size", m.PageSize)
		}

		m.ID = meta.ID
		if m.LastPage < meta.LastPage {
			m.LastPage = meta.LastPage
		}
		meta = m
	} else if pgno > meta.LastPage {
		meta.LastPage = pgno
	}

	if _, err := f.b.WriteAt(page, int64(pgno)*int64(meta.PageSize)); err != nil {
		return errors.Wrap(err, "write page").Uint32("page", pgno)
	}
	f.store.cache.Put(meta.ID, pgno, page)

	if meta != f.meta || pgno == 0 {
		if err := f.writeMeta(meta); err != nil {
			return errors.Wrap(err, "update meta page")
		}
	}

	return nil
}

// SetQueueBounds обновление голов и хвоста очереди.
func (f *File) SetQueueBounds(first, last uint32) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	meta := f.meta
	meta.QueueFirst = first
	meta.QueueLast = last

	return f.writeMeta(meta)
}

// Sync сброс данных на носитель.
func (f *File) Sync() error {
	return f.b.Sync()
}

// Close закрытие файла.
func (f *File) Close() error {
	return f.b.Close()
}

func (f *File) writeMeta(meta Meta) error {
	page := make([]byte, meta.PageSize)
	if _, err := f.b.ReadAt(page, 0); err != nil && err != io.EOF {
		return errors.Wrap(err, "read meta page")
	}

	EncodeMeta(page, meta)
	if _, err := f.b.WriteAt(page, 0); err != nil {
		return errors.Wrap(err, "write meta page")
	}

	f.meta = meta
	f.store.cache.Put(meta.ID, 0, page)
	return nil
}
