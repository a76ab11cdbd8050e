package logio

const (
	// fileHeaderSize размер заголовка в начале каждого файла лога.
	fileHeaderSize = 16

	// fileMagic сигнатура файла лога.
	fileMagic = 0x474c5052

	// FormatVersion версия формата записей лога используемая по-умолчанию.
	FormatVersion = 1

	// defaultFileLimit размер файла лога после которого происходит переход на следующий.
	defaultFileLimit = 10 * 1024 * 1024 // 10Мб

	// fileLimitHardLimit размер файла не может превышать 1Гб, смещение в LSN 32-битное.
	fileLimitHardLimit = 1024 * 1024 * 1024

	// defaultBufferSize размер буфера записи по-умолчанию.
	defaultBufferSize = 64 * 1024

	// filePrefix префикс имён файлов лога.
	filePrefix = "log."

	// CheckpointName имя файла с позицией последней контрольной точки.
	CheckpointName = "log.ckp"

	checkpointSize = 4 + 8
)
