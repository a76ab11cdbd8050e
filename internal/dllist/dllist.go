package dllist

// New конструктор пустого двусвязного списка.
func New[T any]() *DLList[T] {
	return &DLList[T]{}
}

// DLList двусвязный список.
// WARNING: Не предоставляет гарантий безопасности при многопоточном доступе.
type DLList[T any] struct {
	first *Node[T]
	last  *Node[T]
	size  int
}

// Push добавление нового значения в конец списка с возвратом созданного узла.
func (l *DLList[T]) Push(v T) *Node[T] {
	n := &Node[T]{
		value: v,
	}
	l.link(n)

	return n
}

// MoveToBack перенос узла в конец списка.
func (l *DLList[T]) MoveToBack(n *Node[T]) {
	if l.last == n {
		return
	}

	l.Delete(n)
	l.link(n)
}

// First получение первого элемента списка.
func (l *DLList[T]) First() *Node[T] {
	return l.first
}

// Len количество элементов в списке.
func (l *DLList[T]) Len() int {
	return l.size
}

// Delete удаление данного узла из списка.
func (l *DLList[T]) Delete(n *Node[T]) {
	if n.prev != nil {
		n.prev.next = n.next
	}

	if n.next != nil {
		n.next.prev = n.prev
	}

	if l.first == n {
		l.first = n.next
	}

	if l.last == n {
		l.last = n.prev
	}

	n.cleanup()
	l.size--
}

func (l *DLList[T]) link(n *Node[T]) {
	n.prev = l.last
	n.next = nil
	l.size++

	if l.first == nil {
		l.first = n
		l.last = n
		return
	}

	l.last.next = n
	l.last = n
}
