// Package dlist implements an intrusive circular doubly linked list.
//
// Nodes are embedded in the records they link, so pushing and removing never
// allocates. A List is a sentinel node whose zero value is an empty list; it
// must not be copied once nodes have been linked into it.
package dlist

// Node is the link embedded in a listed record. Value points back at the
// record that owns the node and is set by the owner, usually at init time.
type Node[T any] struct {
	next, prev *Node[T]
	Value      *T
}

// Linked reports whether n is currently part of a list.
func (n *Node[T]) Linked() bool { return n.next != nil }

// List is a circular list anchored at a sentinel node.
type List[T any] struct {
	root Node[T]
}

// Init empties the list. Nodes still linked are abandoned, not unlinked.
func (l *List[T]) Init() *List[T] {
	l.root.next = &l.root
	l.root.prev = &l.root
	return l
}

func (l *List[T]) lazyInit() {
	if l.root.next == nil {
		l.Init()
	}
}

// Empty reports whether the list has no nodes.
func (l *List[T]) Empty() bool {
	return l.root.next == nil || l.root.next == &l.root
}

// Front returns the first node or nil if the list is empty.
func (l *List[T]) Front() *Node[T] {
	if l.Empty() {
		return nil
	}
	return l.root.next
}

// Back returns the last node or nil if the list is empty.
func (l *List[T]) Back() *Node[T] {
	if l.Empty() {
		return nil
	}
	return l.root.prev
}

// Next returns the node after n or nil if n is the last node.
func (l *List[T]) Next(n *Node[T]) *Node[T] {
	if n.next == &l.root {
		return nil
	}
	return n.next
}

// Len walks the list and counts its nodes.
func (l *List[T]) Len() (count int) {
	for n := l.Front(); n != nil; n = l.Next(n) {
		count++
	}
	return count
}

// PushBack links n at the tail of the list. n must not be linked.
func (l *List[T]) PushBack(n *Node[T]) {
	l.lazyInit()
	l.insert(n, l.root.prev)
}

// InsertBefore links n just before mark. A nil mark appends n to the tail.
func (l *List[T]) InsertBefore(n, mark *Node[T]) {
	if mark == nil {
		l.PushBack(n)
		return
	}
	l.insert(n, mark.prev)
}

// PopFront unlinks and returns the first node, or nil if the list is empty.
func (l *List[T]) PopFront() *Node[T] {
	n := l.Front()
	if n != nil {
		l.Remove(n)
	}
	return n
}

// Remove unlinks n. Removing an unlinked node is a no-op.
func (l *List[T]) Remove(n *Node[T]) {
	if !n.Linked() {
		return
	}
	n.prev.next = n.next
	n.next.prev = n.prev
	n.next = nil
	n.prev = nil
}

func (l *List[T]) insert(n, at *Node[T]) {
	n.prev = at
	n.next = at.next
	at.next.prev = n
	at.next = n
}
