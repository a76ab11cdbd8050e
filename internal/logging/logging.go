package logging

import (
	"time"

	"github.com/google/uuid"

	"github.com/sirkon/repinit/internal/types"
)

// Logger абстракция предназначенная для логирования в строго определённых ситуациях.
// Реализация логирования должна делаться пользователями библиотеки.
type Logger interface {
	ResyncStarted(attempt uuid.UUID, provider uint32)
	PhaseChanged(attempt uuid.UUID, from, to string)
	InventoryReceived(attempt uuid.UUID, files int, start, current types.LSN)
	FileStarted(attempt uuid.UUID, index uint32, name string, maxPage uint32)
	FileCompleted(attempt uuid.UUID, index uint32, pages uint64)
	GapRerequest(attempt uuid.UUID, index, from, to uint32, gap time.Duration)
	PageWriteFailed(attempt uuid.UUID, index, pgno uint32, err error)
	LogReplayRequested(attempt uuid.UUID, from, to types.LSN)
	ResyncFinished(attempt uuid.UUID, files int, pages uint64)
	AttemptFailed(attempt uuid.UUID, phase string, err error)

	StaleMessage(kind string, index, pgno uint32)
	ProtocolError(from uint32, err error)
	ServeFailed(from uint32, kind string, err error)
	LogRangeDropped(from uint32, start, end types.LSN)
	SendFailed(to uint32, kind string, err error)

	RecoveryPerformed(removed int, full bool)
	CatalogSkipped(path string, err error)
	DuplicateDirectory(dir, file string)
}
