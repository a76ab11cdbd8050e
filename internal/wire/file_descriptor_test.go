package wire

import (
	"testing"

	"github.com/sirkon/errors"

	"github.com/sirkon/repinit/internal/reperr"
	"github.com/sirkon/repinit/internal/testlog"
	"github.com/sirkon/repinit/internal/types"
)

func TestCheckName(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		inMemory bool
		ok       bool
	}{
		{name: "plain", file: "main.db", ok: true},
		{name: "nested", file: "data/users/a.db", ok: true},
		{name: "empty", file: ""},
		{name: "absolute", file: "/etc/passwd"},
		{name: "parent", file: "../escaped.db"},
		{name: "parent-only", file: ".."},
		{name: "dot", file: "."},
		{name: "inner-parent", file: "data/../../escaped.db"},
		{name: "not-clean", file: "./main.db"},
		{name: "double-slash", file: "data//a.db"},
		{name: "backslash", file: `..\escaped.db`},
		{name: "drive", file: "C:/escaped.db"},
		{name: "zero-byte", file: "a.db\x00"},
		{name: "memory-any", file: "../sessions", inMemory: true, ok: true},
		{name: "memory-empty", file: "", inMemory: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckName([]byte(tt.file), tt.inMemory)
			if tt.ok {
				if err != nil {
					testlog.Error(t, errors.Wrap(err, "check name"))
				}
				return
			}

			if !errors.Is(err, ErrMalformed) {
				t.Errorf("malformed name error expected for %q, got %v", tt.file, err)
			}
		})
	}
}

func TestDecodeRejectsUnsafeName(t *testing.T) {
	d := sampleDescriptor(types.NativeOrder())
	d.Flags = 0
	d.Name = []byte("../../victim.db")

	data, err := Encode(&InventoryReply{Files: FileList{d}})
	if err != nil {
		testlog.Fatal(t, errors.Wrap(err, "encode inventory reply"))
	}

	if _, err := Decode(data); !reperr.Is(err, reperr.KindProtocol) {
		t.Errorf("protocol error expected for unsafe file name, got %v", err)
	}
}
