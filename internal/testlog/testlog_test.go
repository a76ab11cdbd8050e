package testlog_test

import (
	stderrs "errors"
	"testing"

	"github.com/sirkon/errors"

	"github.com/sirkon/repinit/internal/testlog"
)

func TestLogging(t *testing.T) {
	t.Run("log-std-error", func(t *testing.T) {
		testlog.Log(t, stderrs.New("not an error"))
	})

	t.Run("log-ctxed-error", func(t *testing.T) {
		testlog.Log(t, errors.New("ctx error").Int("page", 12).Str("file", "a.db"))
	})

	t.Run("check-nil", func(t *testing.T) {
		if testlog.Check(t, nil) {
			t.Error("nil error must not be reported")
		}
	})
}
