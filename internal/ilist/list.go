// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ilist provides an intrusive circular doubly-linked list.
//
// A [Node] is meant to be embedded in the structures that need to be
// linked together — ready queues, waiter queues, the timeout queue,
// thread-local-storage entries, and the heap and slab free lists all
// reuse this single primitive, matching the kernel source's convention
// of expressing every queue as the same intrusive list shape.
//
// Every operation is O(1) and allocation-free. A [Node] belongs to at
// most one list at a time; linking it into a second list without first
// removing it from the first corrupts both.
package ilist

import "unsafe"

// Owner recovers the struct embedding n as its Node field back to a
// *T. n must point at the embedded Node field of a T value, and that
// field must be T's first field (the standard intrusive-container
// layout used throughout this module: Thread, Mutex waiters, timer
// descriptors, heap and slab free-list entries all embed Node first).
// This is the Go equivalent of C's container_of and is the one place in
// the kernel that relies on struct layout via unsafe.Pointer.
func Owner[T any](n *Node) *T {
	return (*T)(unsafe.Pointer(n))
}

// Node is an intrusive list element. The zero value is an unlinked node.
//
// Embed Node by value in the struct that needs to participate in a list,
// then use [Owner] (with Node as the embedding struct's first field) to
// recover the owner from a list traversal.
type Node struct {
	next *Node
	prev *Node
}

// Init establishes n as an empty, unlinked node (or list head). Safe to
// call on the zero value; Init is required before first use of a Node
// used as a list head (see [List]).
func (n *Node) Init() *Node {
	n.next = n
	n.prev = n
	return n
}

// IsLinked reports whether n is currently part of some list (other than
// being its own, empty head).
func (n *Node) IsLinked() bool {
	return n.next != nil && n.next != n
}

// Remove unlinks n from whatever list it is on. Safe to call on an
// already-unlinked node (no-op).
func (n *Node) Remove() {
	if n.next == nil {
		return
	}
	n.next.prev = n.prev
	n.prev.next = n.next
	n.next = n
	n.prev = n
}

// InsertAfter links n immediately after at, which must already be linked
// (or be a list head).
func (n *Node) InsertAfter(at *Node) {
	n.prev = at
	n.next = at.next
	at.next.prev = n
	at.next = n
}

// InsertBefore links n immediately before at, which must already be
// linked (or be a list head).
func (n *Node) InsertBefore(at *Node) {
	n.next = at
	n.prev = at.prev
	at.prev.next = n
	at.prev = n
}

// Next returns the following node, which is the list's head sentinel
// (see [List.End]) once traversal reaches the end. Callers compare
// against [List.IsLast] (or [List.End]) rather than against nil.
func (n *Node) Next() *Node { return n.next }

// Prev returns the preceding node, which is the list's head sentinel
// once traversal reaches the start. Callers compare against
// [List.IsFirst] (or [List.End]) rather than against nil.
func (n *Node) Prev() *Node { return n.prev }

// List is a circular intrusive list with a dedicated sentinel head node.
// The head is never itself a payload; Front/Back return the first/last
// real element or nil when the list is empty.
type List struct {
	head Node
}

// NewList returns an initialized, empty list.
func NewList() *List {
	l := &List{}
	l.head.Init()
	return l
}

// Init (re-)establishes l as empty. Required before first use when a List
// is embedded by value rather than constructed via [NewList].
func (l *List) Init() {
	l.head.Init()
}

// IsEmpty reports whether the list has no elements.
func (l *List) IsEmpty() bool {
	return l.head.next == &l.head
}

// PushFront links n as the new first element.
func (l *List) PushFront(n *Node) {
	n.InsertAfter(&l.head)
}

// PushBack links n as the new last element.
func (l *List) PushBack(n *Node) {
	n.InsertBefore(&l.head)
}

// Front returns the first element, or nil if the list is empty.
func (l *List) Front() *Node {
	if l.IsEmpty() {
		return nil
	}
	return l.head.next
}

// Back returns the last element, or nil if the list is empty.
func (l *List) Back() *Node {
	if l.IsEmpty() {
		return nil
	}
	return l.head.prev
}

// IsLast reports whether n is the last element of the list it is on.
func (l *List) IsLast(n *Node) bool {
	return n.next == &l.head
}

// IsFirst reports whether n is the first element of the list it is on.
func (l *List) IsFirst(n *Node) bool {
	return n.prev == &l.head
}

// Rotate moves the current front element to the back. Used by the
// scheduler to implement round-robin within a priority level: the head
// of a ready queue is popped and, if other threads remain at that
// priority, pushed back to the tail.
func (l *List) Rotate() {
	front := l.Front()
	if front == nil || l.IsLast(front) {
		return
	}
	front.Remove()
	l.PushBack(front)
}

// End reports the sentinel boundary value returned by [Node.Next] and
// [Node.Prev] when traversal reaches the head. Traversal code compares
// against this directly; it exists so callers never need access to the
// unexported head field.
func (l *List) End() *Node {
	return &l.head
}

// InsertSorted links n into the list at the position determined by less,
// which must report whether candidate belongs strictly before existing.
// Used for priority-ordered waiter lists (§4.5.5) and the ascending
// wake-tick timeout queue (§4.4): new entries with equal key are placed
// after existing equal-key entries, preserving FIFO order among ties.
func (l *List) InsertSorted(n *Node, less func(candidate, existing *Node) bool) {
	for cur := l.head.next; cur != &l.head; cur = cur.next {
		if less(n, cur) {
			n.InsertBefore(cur)
			return
		}
	}
	l.PushBack(n)
}

// Range calls fn for every element from front to back, in order. fn must
// not modify the list's linkage for the node it was called with beyond
// removing that node itself; to remove while ranging, capture Next()
// before calling fn.
func Range(l *List, fn func(n *Node)) {
	for cur := l.head.next; cur != &l.head; {
		next := cur.next
		fn(cur)
		cur = next
	}
}
