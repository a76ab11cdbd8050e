// Package receipts учёт полученных страниц текущего файла.
package receipts

// Ledger учёт номеров полученных страниц.
type Ledger interface {
	// Record отметка страницы как полученной. fresh = false если
	// страница уже была отмечена ранее.
	Record(pgno uint32) (fresh bool, err error)
	// Forget снятие отметки, используется при неудачной записи страницы.
	Forget(pgno uint32) error
	// Ascend обход отмеченных страниц начиная с from по возрастанию
	// пока fn возвращает true.
	Ascend(from uint32, fn func(pgno uint32) bool) error
	// Reset снятие всех отметок.
	Reset() error
	// Len количество отмеченных страниц.
	Len() (int, error)
	// Close освобождение ресурсов.
	Close() error
}
