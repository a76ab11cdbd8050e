package logging

import (
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sirkon/repinit/internal/types"
)

// NewJSON логгер пишущий JSON записи в w начиная с уровня level.
func NewJSON(w io.Writer, level zapcore.Level) *zap.Logger {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(w),
		level,
	)

	return zap.New(core)
}

// NewZap реализация Logger поверх zap.
func NewZap(log *zap.Logger) Logger {
	return zapLogger{log: log}
}

type zapLogger struct {
	log *zap.Logger
}

func (l zapLogger) ResyncStarted(attempt uuid.UUID, provider uint32) {
	l.log.Info("resync started", attemptField(attempt), zap.Uint32("provider", provider))
}

func (l zapLogger) PhaseChanged(attempt uuid.UUID, from, to string) {
	l.log.Debug("phase changed", attemptField(attempt), zap.String("from", from), zap.String("to", to))
}

func (l zapLogger) InventoryReceived(attempt uuid.UUID, files int, start, current types.LSN) {
	l.log.Info(
		"inventory received",
		attemptField(attempt),
		zap.Int("files", files),
		zap.Stringer("log_start", start),
		zap.Stringer("log_current", current),
	)
}

func (l zapLogger) FileStarted(attempt uuid.UUID, index uint32, name string, maxPage uint32) {
	l.log.Info(
		"file fetch started",
		attemptField(attempt),
		zap.Uint32("file_index", index),
		zap.String("file_name", name),
		zap.Uint32("max_page", maxPage),
	)
}

func (l zapLogger) FileCompleted(attempt uuid.UUID, index uint32, pages uint64) {
	l.log.Info("file fetch completed", attemptField(attempt), zap.Uint32("file_index", index), zap.Uint64("pages", pages))
}

func (l zapLogger) GapRerequest(attempt uuid.UUID, index, from, to uint32, gap time.Duration) {
	l.log.Debug(
		"re-request pages",
		attemptField(attempt),
		zap.Uint32("file_index", index),
		zap.Uint32("from_page", from),
		zap.Uint32("to_page", to),
		zap.Duration("gap", gap),
	)
}

func (l zapLogger) PageWriteFailed(attempt uuid.UUID, index, pgno uint32, err error) {
	l.log.Warn(
		"page write failed",
		attemptField(attempt),
		zap.Uint32("file_index", index),
		zap.Uint32("page", pgno),
		zap.Error(err),
	)
}

func (l zapLogger) LogReplayRequested(attempt uuid.UUID, from, to types.LSN) {
	l.log.Info("log replay requested", attemptField(attempt), zap.Stringer("from", from), zap.Stringer("to", to))
}

func (l zapLogger) ResyncFinished(attempt uuid.UUID, files int, pages uint64) {
	l.log.Info("resync finished", attemptField(attempt), zap.Int("files", files), zap.Uint64("pages", pages))
}

func (l zapLogger) AttemptFailed(attempt uuid.UUID, phase string, err error) {
	l.log.Error("resync attempt failed", attemptField(attempt), zap.String("phase", phase), zap.Error(err))
}

func (l zapLogger) StaleMessage(kind string, index, pgno uint32) {
	l.log.Debug("stale message ignored", zap.String("kind", kind), zap.Uint32("file_index", index), zap.Uint32("page", pgno))
}

func (l zapLogger) ProtocolError(from uint32, err error) {
	l.log.Warn("malformed message dropped", zap.Uint32("peer", from), zap.Error(err))
}

func (l zapLogger) ServeFailed(from uint32, kind string, err error) {
	l.log.Warn("request serving failed", zap.Uint32("peer", from), zap.String("kind", kind), zap.Error(err))
}

func (l zapLogger) LogRangeDropped(from uint32, start, end types.LSN) {
	l.log.Info("log range request dropped", zap.Uint32("peer", from), zap.Stringer("from", start), zap.Stringer("to", end))
}

func (l zapLogger) SendFailed(to uint32, kind string, err error) {
	l.log.Debug("send failed", zap.Uint32("peer", to), zap.String("kind", kind), zap.Error(err))
}

func (l zapLogger) RecoveryPerformed(removed int, full bool) {
	l.log.Warn("interrupted resync recovered", zap.Int("removed_files", removed), zap.Bool("full", full))
}

func (l zapLogger) CatalogSkipped(path string, err error) {
	l.log.Debug("not a database, skipped", zap.String("path", path), zap.Error(err))
}

func (l zapLogger) DuplicateDirectory(dir, file string) {
	l.log.Warn("directory duplicates an earlier one, skipped", zap.String("dir", dir), zap.String("file", file))
}

func attemptField(attempt uuid.UUID) zap.Field {
	return zap.Stringer("attempt", attempt)
}
