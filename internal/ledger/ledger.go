// Package ledger журнал намерений повторной инициализации. Наличие
// файла журнала означает, что удаление старых баз данных и получение
// новых ещё не завершены.
package ledger

import (
	"encoding/binary"
	"os"

	"github.com/sirkon/errors"

	"github.com/sirkon/repinit/internal/dir"
	"github.com/sirkon/repinit/internal/reperr"
	"github.com/sirkon/repinit/internal/wire"
	"github.com/sirkon/repinit/internal/wirebuf"
)

const (
	// FileName имя файла журнала в домашней директории.
	FileName = "__db.rep.init"

	// ErrUnknownFormat журнал записан в неизвестном формате.
	ErrUnknownFormat errors.Const = "unknown ledger format"

	// formatMarker первое слово файла, отличает журнал от мусора.
	formatMarker uint32 = 0x52494e54

	ledgerVersion    uint32 = 1
	payloadVersion   uint32 = 1
	fetchListVersion uint32 = 1

	sectionHeaderSize = 4 + 4
	fileHeaderSize    = 4 + 4 + sectionHeaderSize
)

// Record содержимое журнала.
type Record struct {
	// Removal локальные базы которые удаляются.
	Removal wire.FileList
	// Fetch базы которые будут получены от поставщика.
	Fetch wire.FileList
	// HasFetch список получаемых баз был дописан полностью.
	HasFetch bool
}

// New журнал в домашней директории home.
func New(home string) *Ledger {
	return &Ledger{
		dir: dir.Open(home),
	}
}

// Ledger журнал намерений.
type Ledger struct {
	dir *dir.Dir
}

// Path путь к файлу журнала.
func (l *Ledger) Path() string {
	return l.dir.Join(FileName)
}

// Begin создание журнала со списком удаляемых баз. Возвращается только
// после fsync файла и директории.
func (l *Ledger) Begin(removal wire.FileList) error {
	buf := wirebuf.New(fileHeaderSize + 256)
	var head [fileHeaderSize]byte
	binary.LittleEndian.PutUint32(head[0:4], formatMarker)
	binary.LittleEndian.PutUint32(head[4:8], ledgerVersion)
	if _, err := buf.Write(head[:]); err != nil {
		return errors.Wrap(err, "write ledger header")
	}

	if _, err := buf.Append(removal); err != nil {
		return reperr.Resource(errors.Wrap(err, "encode removal list"))
	}
	data := buf.Bytes()
	binary.LittleEndian.PutUint32(data[8:12], payloadVersion)
	binary.LittleEndian.PutUint32(data[12:16], uint32(len(data)-fileHeaderSize))

	file, err := os.OpenFile(l.Path(), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return reperr.Storage(errors.Wrap(err, "create ledger file"))
	}

	if err := writeSync(file, data); err != nil {
		return reperr.Storage(errors.Wrap(err, "write removal list"))
	}

	if err := l.dir.Sync(); err != nil {
		return reperr.Storage(errors.Wrap(err, "sync home directory"))
	}

	return nil
}

// AppendFetch дописывание списка получаемых баз с fsync.
func (l *Ledger) AppendFetch(fetch wire.FileList) error {
	buf := wirebuf.New(sectionHeaderSize + 256)
	var head [sectionHeaderSize]byte
	if _, err := buf.Write(head[:]); err != nil {
		return errors.Wrap(err, "write section header")
	}

	if _, err := buf.Append(fetch); err != nil {
		return reperr.Resource(errors.Wrap(err, "encode fetch list"))
	}
	data := buf.Bytes()
	binary.LittleEndian.PutUint32(data[0:4], fetchListVersion)
	binary.LittleEndian.PutUint32(data[4:8], uint32(len(data)-sectionHeaderSize))

	file, err := os.OpenFile(l.Path(), os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return reperr.Storage(errors.Wrap(err, "open ledger file"))
	}

	if err := writeSync(file, data); err != nil {
		return reperr.Storage(errors.Wrap(err, "write fetch list"))
	}

	return nil
}

// Exists проверка наличия журнала.
func (l *Ledger) Exists() (bool, error) {
	if _, err := os.Stat(l.Path()); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, reperr.Storage(errors.Wrap(err, "check ledger file"))
	}

	return true, nil
}

// Read чтение журнала. Второе значение false если журнала нет.
//
// Недописанный список удаляемых баз означает, что до удаления дело не
// дошло, такой журнал читается как пустой. Недописанный список
// получаемых баз читается как его отсутствие.
func (l *Ledger) Read() (Record, bool, error) {
	data, err := os.ReadFile(l.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, false, nil
		}

		return Record{}, false, reperr.Storage(errors.Wrap(err, "read ledger file"))
	}

	var res Record
	if len(data) < fileHeaderSize {
		return res, true, nil
	}

	if marker := binary.LittleEndian.Uint32(data[0:4]); marker != formatMarker {
		return Record{}, true, errors.Wrap(ErrUnknownFormat, "check format marker").Uint32("marker", marker)
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != ledgerVersion {
		return Record{}, true, errors.Wrap(ErrUnknownFormat, "check ledger version").Uint32("ledger-version", v)
	}

	removal, rest, ok, err := readSection(data[8:], payloadVersion)
	if err != nil {
		return Record{}, true, errors.Wrap(err, "read removal list")
	}
	if !ok {
		return res, true, nil
	}
	res.Removal = removal

	fetch, _, ok, err := readSection(rest, fetchListVersion)
	if err != nil {
		return Record{}, true, errors.Wrap(err, "read fetch list")
	}
	if ok {
		res.Fetch = fetch
		res.HasFetch = true
	}

	return res, true, nil
}

// Remove удаление журнала с fsync директории.
func (l *Ledger) Remove() error {
	if err := l.dir.Remove(FileName); err != nil {
		return reperr.Storage(errors.Wrap(err, "remove ledger file"))
	}

	if err := l.dir.Sync(); err != nil {
		return reperr.Storage(errors.Wrap(err, "sync home directory"))
	}

	return nil
}

// readSection вычитка секции [версия][длина][список]. Если секция
// обрезана, то ok = false.
func readSection(data []byte, version uint32) (list wire.FileList, rest []byte, ok bool, err error) {
	if len(data) < sectionHeaderSize {
		return nil, nil, false, nil
	}

	if v := binary.LittleEndian.Uint32(data[0:4]); v != version {
		return nil, nil, false, errors.Wrap(ErrUnknownFormat, "check section version").
			Uint32("section-version", v).
			Uint32("expected-version", version)
	}

	length := binary.LittleEndian.Uint32(data[4:8])
	payload := data[sectionHeaderSize:]
	if uint64(len(payload)) < uint64(length) {
		return nil, nil, false, nil
	}

	list, n, err := wire.DecodeFileList(payload[:length])
	if err != nil {
		return nil, nil, false, errors.Wrap(err, "decode file list")
	}
	if n != int(length) {
		return nil, nil, false, errors.Wrap(ErrUnknownFormat, "file list length mismatch").
			Int("decoded-length", n).
			Uint32("section-length", length)
	}

	return list, payload[length:], true, nil
}

func writeSync(file *os.File, data []byte) error {
	if _, err := file.Write(data); err != nil {
		_ = file.Close()
		return errors.Wrap(err, "write")
	}

	if err := file.Sync(); err != nil {
		_ = file.Close()
		return errors.Wrap(err, "sync")
	}

	if err := file.Close(); err != nil {
		return errors.Wrap(err, "close")
	}

	return nil
}
