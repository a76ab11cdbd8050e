package testlog

// TestingPrinter обёртка над *testing.T для вывода данных.
type TestingPrinter interface {
	Helper()
	Log(a ...any)
	Error(a ...any)
	Fatal(a ...any)
}
