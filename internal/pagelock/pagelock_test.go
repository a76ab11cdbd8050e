package pagelock

import (
	"testing"

	"github.com/sirkon/repinit/internal/types"
)

func TestTryAcquire(t *testing.T) {
	tbl := New()
	key := Key{File: types.FileID{1}, Page: 4}

	r1, ok := tbl.TryAcquire(key, Shared)
	if !ok {
		t.Fatal("first shared lock must be granted")
	}
	r2, ok := tbl.TryAcquire(key, Shared)
	if !ok {
		t.Fatal("shared locks must be compatible")
	}
	if _, ok := tbl.TryAcquire(key, Exclusive); ok {
		t.Fatal("exclusive lock must not be granted over shared ones")
	}

	tbl.Release(r1)
	tbl.Release(r2)
	w, ok := tbl.TryAcquire(key, Exclusive)
	if !ok {
		t.Fatal("exclusive lock must be granted after release")
	}
	if _, ok := tbl.TryAcquire(key, Shared); ok {
		t.Fatal("shared lock must not be granted over exclusive one")
	}
	if _, ok := tbl.TryAcquire(Key{File: types.FileID{1}, Page: 5}, Shared); !ok {
		t.Fatal("locks on other pages are independent")
	}

	tbl.Release(w)
	if tbl.Held() != 1 {
		t.Errorf("only the page 5 lock must remain, got %d", tbl.Held())
	}
}
