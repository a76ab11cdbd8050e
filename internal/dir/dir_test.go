package dir

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirkon/deepequal"
	"github.com/sirkon/errors"

	"github.com/sirkon/repinit/internal/testlog"
)

func TestDir(t *testing.T) {
	d, err := New(filepath.Join(t.TempDir(), "a", "b"))
	if err != nil {
		testlog.Fatal(t, errors.Wrap(err, "create directory"))
	}

	for _, name := range []string{"log.0000000002", "log.0000000001", "data.db"} {
		if err := os.WriteFile(d.Join(name), nil, 0644); err != nil {
			testlog.Fatal(t, errors.Wrap(err, "create file "+name))
		}
	}
	if err := os.Mkdir(d.Join("log.dir"), 0755); err != nil {
		testlog.Fatal(t, errors.Wrap(err, "create nested directory"))
	}

	names, err := d.List("log.*")
	if err != nil {
		testlog.Fatal(t, errors.Wrap(err, "list log files"))
	}
	expected := []string{"log.0000000001", "log.0000000002"}
	if !deepequal.Equal(expected, names) {
		t.Error("log files mismatch")
		deepequal.SideBySide(t, "names", expected, names)
	}

	if err := d.Remove("data.db"); err != nil {
		testlog.Error(t, errors.Wrap(err, "remove file"))
	}
	if err := d.Remove("data.db"); err != nil {
		testlog.Error(t, errors.Wrap(err, "remove missing file"))
	}
	if err := d.Sync(); err != nil {
		testlog.Error(t, errors.Wrap(err, "sync directory"))
	}

	missing, err := Open(d.Join("missing")).List("*")
	if err != nil {
		testlog.Error(t, errors.Wrap(err, "list missing directory"))
	}
	if len(missing) != 0 {
		t.Errorf("missing directory must be listed as empty, got %v", missing)
	}
}
