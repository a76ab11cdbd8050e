package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/sirkon/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sirkon/repinit/internal/types"
)

func TestZapLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewZap(zap.New(core))

	attempt := uuid.New()
	log.ResyncStarted(attempt, 2)
	log.GapRerequest(attempt, 1, 5, 9, 0)
	log.AttemptFailed(attempt, "removing", errors.New("disk is gone"))

	entries := logs.All()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries got %d", len(entries))
	}

	if v := entries[0].ContextMap()["attempt"]; v != attempt.String() {
		t.Errorf("expected attempt %s got %v", attempt, v)
	}
	if v := entries[1].ContextMap()["to_page"]; v != uint32(9) {
		t.Errorf("expected to_page 9 got %v", v)
	}
	if entries[2].Level != zapcore.ErrorLevel {
		t.Errorf("failed attempt must be logged as error, got %s", entries[2].Level)
	}
}

func TestJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewZap(NewJSON(&buf, zapcore.InfoLevel))

	log.InventoryReceived(uuid.Nil, 3, types.NewLSN(1, 16), types.NewLSN(2, 100))
	log.StaleMessage("page", 1, 2)

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("single json record expected, got %q: %s", buf.String(), err)
	}

	if rec["message"] != "inventory received" || rec["files"] != float64(3) {
		t.Errorf("unexpected record %v", rec)
	}
}
