package logging

import (
	"time"

	"github.com/google/uuid"

	"github.com/sirkon/repinit/internal/types"
)

// Nop логгер который ничего не пишет.
func Nop() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (nopLogger) ResyncStarted(uuid.UUID, uint32)                               {}
func (nopLogger) PhaseChanged(uuid.UUID, string, string)                        {}
func (nopLogger) InventoryReceived(uuid.UUID, int, types.LSN, types.LSN)        {}
func (nopLogger) FileStarted(uuid.UUID, uint32, string, uint32)                 {}
func (nopLogger) FileCompleted(uuid.UUID, uint32, uint64)                       {}
func (nopLogger) GapRerequest(uuid.UUID, uint32, uint32, uint32, time.Duration) {}
func (nopLogger) PageWriteFailed(uuid.UUID, uint32, uint32, error)              {}
func (nopLogger) LogReplayRequested(uuid.UUID, types.LSN, types.LSN)            {}
func (nopLogger) ResyncFinished(uuid.UUID, int, uint64)                         {}
func (nopLogger) AttemptFailed(uuid.UUID, string, error)                        {}
func (nopLogger) StaleMessage(string, uint32, uint32)                           {}
func (nopLogger) ProtocolError(uint32, error)                                   {}
func (nopLogger) ServeFailed(uint32, string, error)                             {}
func (nopLogger) LogRangeDropped(uint32, types.LSN, types.LSN)                  {}
func (nopLogger) SendFailed(uint32, string, error)                              {}
func (nopLogger) RecoveryPerformed(int, bool)                                   {}
func (nopLogger) CatalogSkipped(string, error)                                  {}
func (nopLogger) DuplicateDirectory(string, string)                             {}
