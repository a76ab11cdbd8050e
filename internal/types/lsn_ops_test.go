package types_test

import (
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/sirkon/repinit/internal/types"
)

func ExampleLSN() {
	a := types.NewLSN(1, 2)
	b := types.NewLSN(1, 3)
	c := types.NewLSN(2, 0)
	fmt.Println(a)
	fmt.Println(types.LSNLess(a, a))
	fmt.Println(types.LSNLess(a, b))
	fmt.Println(types.LSNLess(b, c))
	fmt.Println(types.LSNCmp(c, a))

	// Output:
	// 00000001-00000002
	// false
	// true
	// true
	// 1
}

func ExampleLSNDecode() {
	lsn := types.NewLSN(12, 13)

	var buf [types.LSNSize]byte
	types.LSNEncode(buf[:], binary.BigEndian, lsn)
	fmt.Println(buf)
	fmt.Println(types.LSNDecode(buf[:], binary.BigEndian))

	// Output:
	// [0 0 0 12 0 0 0 13]
	// 0000000c-0000000d
}

func TestLSNOps(t *testing.T) {
	t.Run("small-buffer-encode", func(t *testing.T) {
		defer func() {
			if r := recover(); r != nil {
				t.Logf("got expected panic: %v", r)
			} else {
				t.Error("the test had to raise a panic")
			}
		}()

		var buf [7]byte
		types.LSNEncode(buf[:], binary.LittleEndian, types.NewLSN(1, 2))
	})

	t.Run("zero", func(t *testing.T) {
		if !(types.LSN{}).IsZero() {
			t.Error("empty lsn must be zero")
		}
		if types.NewLSN(0, 1).IsZero() {
			t.Error("lsn with offset must not be zero")
		}
	})

	t.Run("order", func(t *testing.T) {
		native := types.NativeOrder()
		if !native.Valid() {
			t.Errorf("invalid native order %s", native)
		}
		if native.Opposite() == native {
			t.Error("opposite order must differ")
		}
		if types.Order(7).Valid() {
			t.Error("order 7 must be invalid")
		}
	})

	t.Run("file-id", func(t *testing.T) {
		a := types.NewFileID()
		b := types.NewFileID()
		if a.IsZero() || types.FileIDEqual(a, b) {
			t.Errorf("file ids %s and %s must be distinct and non zero", a, b)
		}
	})
}
