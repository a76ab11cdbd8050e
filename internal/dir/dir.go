package dir

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/sirkon/errors"
)

// New создание новой директории, если её ещё нет.
func New(p string) (res *Dir, err error) {
	res = &Dir{
		path: p,
	}

	stat, err := os.Stat(p)
	if err == nil {
		if !stat.IsDir() {
			return nil, errors.Newf("'%s' exists and it is not a directory", p)
		}

		return res, nil
	}

	if !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "check path")
	}

	if err := os.MkdirAll(p, 0755); err != nil {
		return nil, errors.Wrap(err, "create directory")
	}

	return res, nil
}

// Open представление существующей директории без попытки её создать.
func Open(p string) *Dir {
	return &Dir{
		path: p,
	}
}

// Dir представление директории.
type Dir struct {
	path string
}

// Path путь к директории.
func (d *Dir) Path() string {
	return d.path
}

// Join путь к файлу в директории.
func (d *Dir) Join(name string) string {
	return filepath.Join(d.path, name)
}

// List получение отсортированных имён файлов в директории
// удовлетворяющих шаблону. Директории исключаются.
func (d *Dir) List(pattern string) ([]string, error) {
	return d.ListFunc(func(name string) (bool, error) {
		ok, err := filepath.Match(pattern, name)
		if err != nil {
			return false, errors.Wrapf(err, "match file '%s' against the pattern", name)
		}

		return ok, nil
	})
}

// ListFunc получение отсортированных имён файлов для которых
// фильтр вернул true. Отсутствующая директория даёт пустой список.
func (d *Dir) ListFunc(filter func(name string) (bool, error)) ([]string, error) {
	files, err := os.ReadDir(d.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, errors.Wrapf(err, "read directory '%s'", d.path)
	}

	var res []string
	for _, file := range files {
		if file.IsDir() {
			continue
		}

		ok, err := filter(file.Name())
		if err != nil {
			return nil, err
		}

		if !ok {
			continue
		}

		res = append(res, file.Name())
	}

	sort.Strings(res)
	return res, nil
}

// Remove удаление файла. Отсутствие файла ошибкой не считается.
func (d *Dir) Remove(name string) error {
	if err := os.Remove(d.Join(name)); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "remove '%s'", name)
	}

	return nil
}

// Sync fsync самой директории, чтобы закрепить создания,
// переименования и удаления файлов в ней.
func (d *Dir) Sync() error {
	f, err := os.Open(d.path)
	if err != nil {
		return errors.Wrap(err, "open directory")
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "sync directory")
	}

	if err := f.Close(); err != nil {
		return errors.Wrap(err, "close directory")
	}

	return nil
}
