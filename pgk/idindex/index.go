package idindex

import "sync"

type node struct {
	id     uint64
	height int
	left   *node
	right  *node
	parent *node
}

func height(n *node) int {
	if n == nil {
		return 0
	}

	return n.height
}

func (n *node) fix() {
	n.height = 1 + max(height(n.left), height(n.right))
}

func (n *node) balance() int {
	return height(n.left) - height(n.right)
}

// Index set of status ids backed by an AVL tree.
// Every operation takes the instance lock for its own duration only.
type Index struct {
	mu    sync.Mutex
	root  *node
	count int
}

// New new index
func New() *Index {
	return &Index{}
}

// InsertIfAbsent adds id, false when id is already present
func (x *Index) InsertIfAbsent(id uint64) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	var parent *node
	cur := x.root
	for cur != nil {
		parent = cur
		switch {
		case id < cur.id:
			cur = cur.left
		case id > cur.id:
			cur = cur.right
		default:
			return false
		}
	}

	n := &node{id: id, height: 1, parent: parent}
	switch {
	case parent == nil:
		x.root = n
	case id < parent.id:
		parent.left = n
	default:
		parent.right = n
	}
	x.count++
	x.retrace(parent)

	return true
}

// Remove removes id, false when id is not present
func (x *Index) Remove(id uint64) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	n := x.find(id)
	if n == nil {
		return false
	}

	// two children: take the successor's id and unlink the successor instead
	if n.left != nil && n.right != nil {
		succ := minNode(n.right)
		n.id = succ.id
		n = succ
	}

	child := n.left
	if child == nil {
		child = n.right
	}
	if child != nil {
		child.parent = n.parent
	}
	x.replaceChild(n.parent, n, child)
	x.count--
	x.retrace(n.parent)

	return true
}

// Contains membership test
func (x *Index) Contains(id uint64) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	return x.find(id) != nil
}

// Count number of ids
func (x *Index) Count() int {
	x.mu.Lock()
	defer x.mu.Unlock()

	return x.count
}

// Clear removes every id
func (x *Index) Clear() {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.root = nil
	x.count = 0
}

// Ascend calls fn for each id in ascending order until fn returns false.
// fn must not call back into the index.
func (x *Index) Ascend(fn func(id uint64) bool) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.root == nil {
		return
	}
	for n := minNode(x.root); n != nil; n = successor(n) {
		if !fn(n.id) {
			return
		}
	}
}

func (x *Index) find(id uint64) *node {
	cur := x.root
	for cur != nil {
		switch {
		case id < cur.id:
			cur = cur.left
		case id > cur.id:
			cur = cur.right
		default:
			return cur
		}
	}

	return nil
}

func minNode(n *node) *node {
	for n.left != nil {
		n = n.left
	}

	return n
}

func successor(n *node) *node {
	if n.right != nil {
		return minNode(n.right)
	}
	p := n.parent
	for p != nil && n == p.right {
		n = p
		p = p.parent
	}

	return p
}

// replaceChild points parent (or root) at next where it pointed at prev
func (x *Index) replaceChild(parent, prev, next *node) {
	switch {
	case parent == nil:
		x.root = next
	case parent.left == prev:
		parent.left = next
	default:
		parent.right = next
	}
}

func (x *Index) rotateLeft(n *node) *node {
	r := n.right
	n.right = r.left
	if r.left != nil {
		r.left.parent = n
	}
	r.parent = n.parent
	x.replaceChild(n.parent, n, r)
	r.left = n
	n.parent = r
	n.fix()
	r.fix()

	return r
}

func (x *Index) rotateRight(n *node) *node {
	l := n.left
	n.left = l.right
	if l.right != nil {
		l.right.parent = n
	}
	l.parent = n.parent
	x.replaceChild(n.parent, n, l)
	l.right = n
	n.parent = l
	n.fix()
	l.fix()

	return l
}

// rebalance restores the AVL property at n and returns the subtree root
func (x *Index) rebalance(n *node) *node {
	n.fix()
	switch b := n.balance(); {
	case b > 1:
		if n.left.balance() < 0 {
			x.rotateLeft(n.left)
		}
		return x.rotateRight(n)
	case b < -1:
		if n.right.balance() > 0 {
			x.rotateRight(n.right)
		}
		return x.rotateLeft(n)
	}

	return n
}

// retrace walks from n to the root fixing heights and balance
func (x *Index) retrace(n *node) {
	for n != nil {
		n = x.rebalance(n).parent
	}
}
