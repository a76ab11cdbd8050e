package dllist

import (
	"testing"

	"github.com/sirkon/deepequal"
)

func values[T any](l *DLList[T]) []T {
	var res []T
	for n := l.First(); n != nil; n = n.Next() {
		res = append(res, n.Value())
	}

	return res
}

func TestDLList(t *testing.T) {
	l := New[int]()
	one := l.Push(1)
	two := l.Push(2)
	l.Push(3)

	l.MoveToBack(one)
	deepequal.SideBySide(t, "after move", []int{2, 3, 1}, values(l))

	l.Delete(two)
	if !deepequal.Equal([]int{3, 1}, values(l)) {
		t.Error("unexpected content after delete")
		deepequal.SideBySide(t, "after delete", []int{3, 1}, values(l))
	}

	if l.Len() != 2 {
		t.Errorf("expected length 2, got %d", l.Len())
	}
}
