package receipts

import (
	"database/sql"
	_ "embed"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirkon/errors"

	"github.com/sirkon/repinit/internal/reperr"
)

// FileName имя файла учёта страниц в домашней директории.
const FileName = "__db.rep.pg"

//go:embed schema.sql
var schemaSQL string

var _ Ledger = &SQLite{}

// OpenSQLite открытие или создание учёта страниц в файле SQLite.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, reperr.Storage(errors.Wrap(err, "open database"))
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, reperr.Storage(errors.Wrap(err, "connect to database"))
	}

	// SQLite допускает только одного писателя.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, reperr.Storage(errors.Wrap(err, "apply pragma").Str("pragma", pragma))
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, reperr.Storage(errors.Wrap(err, "apply schema"))
	}

	return &SQLite{db: db}, nil
}

// SQLite учёт страниц переживающий перезапуск процесса.
type SQLite struct {
	db *sql.DB
}

// Record для реализации Ledger.
func (s *SQLite) Record(pgno uint32) (bool, error) {
	res, err := s.db.Exec("INSERT OR IGNORE INTO receipts (pgno) VALUES (?)", pgno)
	if err != nil {
		return false, reperr.Storage(errors.Wrap(err, "insert receipt").Uint32("page", pgno))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, reperr.Storage(errors.Wrap(err, "get affected rows"))
	}

	return n == 1, nil
}

// Forget для реализации Ledger.
func (s *SQLite) Forget(pgno uint32) error {
	if _, err := s.db.Exec("DELETE FROM receipts WHERE pgno = ?", pgno); err != nil {
		return reperr.Storage(errors.Wrap(err, "delete receipt").Uint32("page", pgno))
	}

	return nil
}

// Ascend для реализации Ledger.
func (s *SQLite) Ascend(from uint32, fn func(pgno uint32) bool) error {
	rows, err := s.db.Query("SELECT pgno FROM receipts WHERE pgno >= ? ORDER BY pgno", from)
	if err != nil {
		return reperr.Storage(errors.Wrap(err, "query receipts"))
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var pgno uint32
		if err := rows.Scan(&pgno); err != nil {
			return reperr.Storage(errors.Wrap(err, "scan receipt"))
		}

		if !fn(pgno) {
			return nil
		}
	}

	if err := rows.Err(); err != nil {
		return reperr.Storage(errors.Wrap(err, "iterate receipts"))
	}

	return nil
}

// Reset для реализации Ledger.
func (s *SQLite) Reset() error {
	if _, err := s.db.Exec("DELETE FROM receipts"); err != nil {
		return reperr.Storage(errors.Wrap(err, "delete receipts"))
	}

	return nil
}

// Len для реализации Ledger.
func (s *SQLite) Len() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM receipts").Scan(&n); err != nil {
		return 0, reperr.Storage(errors.Wrap(err, "count receipts"))
	}

	return n, nil
}

// Close для реализации Ledger.
func (s *SQLite) Close() error {
	if err := s.db.Close(); err != nil {
		return reperr.Storage(errors.Wrap(err, "close database"))
	}

	return nil
}
