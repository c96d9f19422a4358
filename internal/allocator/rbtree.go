package allocator

// Augmented intrusive red-black tree over *freeBlock, specialized to the
// two orderings the free-block manager needs (by start address, by size).
//
// This is a direct port of the classic Linux-kernel-style augmented
// red-black tree (color stored in the low bit of the parent pointer,
// "augmented erase" that relinks the in-order successor instead of
// copying keys) as described in RBTreeGeneric.h. A *freeBlock never
// lives on the Go heap: every node is materialized over memory obtained
// from mapPages (see os_unix.go), so storing a tagged *freeBlock inside a
// uintptr and converting it back with unsafe.Pointer never races with a
// moving collector - there is nothing here for the Go GC to move or scan.

import "unsafe"

const (
	red   uintptr = 0
	black uintptr = 1
)

// rbLinks is one intrusive tree-node slot. freeBlock embeds two of these
// (addrLinks, sizeLinks) so the same descriptor participates in both
// indices simultaneously (spec §3, §4.1).
type rbLinks struct {
	parentColor uintptr
	left, right *freeBlock
}

func ptrFromUintptr(v uintptr) *freeBlock { return (*freeBlock)(unsafe.Pointer(v)) } //nolint:govet
func uintptrFromPtr(n *freeBlock) uintptr { return uintptr(unsafe.Pointer(n)) }

// linksFn selects which embedded rbLinks a tree instance operates on,
// playing the role of the C++ template's `NodeType T::*nodeMember`.
type linksFn func(*freeBlock) *rbLinks

// rbTree is one ordered index (either the address tree or the size
// tree). Keys are derived from the node itself via keyOf; comparisons
// always go through keyOf so the same implementation serves both trees.
type rbTree struct {
	root  *freeBlock
	links linksFn
	keyOf func(*freeBlock) uintptr
}

func newRBTree(links linksFn, keyOf func(*freeBlock) uintptr) *rbTree {
	return &rbTree{links: links, keyOf: keyOf}
}

func (t *rbTree) isEmpty() bool { return t.root == nil }

func (t *rbTree) parentColor(n *freeBlock) uintptr { return t.links(n).parentColor }

func (t *rbTree) parent(n *freeBlock) *freeBlock { return ptrFromUintptr(t.parentColor(n) &^ 1) }

func (t *rbTree) redParent(n *freeBlock) *freeBlock { return ptrFromUintptr(t.parentColor(n)) }

func (t *rbTree) isBlack(n *freeBlock) bool { return t.parentColor(n)&1 == 1 }

func (t *rbTree) isRed(n *freeBlock) bool { return !t.isBlack(n) }

func (t *rbTree) setParent(n, p *freeBlock) {
	l := t.links(n)
	l.parentColor = (l.parentColor & 1) | uintptrFromPtr(p)
}

func (t *rbTree) setParentColor(n, p *freeBlock, color uintptr) {
	t.links(n).parentColor = uintptrFromPtr(p) | color
}

func (t *rbTree) setBlack(n *freeBlock) { t.links(n).parentColor |= black }

func (t *rbTree) left(n *freeBlock) *freeBlock  { return t.links(n).left }
func (t *rbTree) right(n *freeBlock) *freeBlock { return t.links(n).right }
func (t *rbTree) setLeft(n, c *freeBlock)       { t.links(n).left = c }
func (t *rbTree) setRight(n, c *freeBlock)      { t.links(n).right = c }

func (t *rbTree) changeChild(old, newNode, parent *freeBlock) {
	if parent != nil {
		if t.left(parent) == old {
			t.setLeft(parent, newNode)
		} else {
			t.setRight(parent, newNode)
		}
	} else {
		t.root = newNode
	}
}

func (t *rbTree) rotateSetParents(old, newNode *freeBlock, color uintptr) {
	parent := t.parent(old)
	t.links(newNode).parentColor = t.links(old).parentColor
	t.setParentColor(old, newNode, color)
	t.changeChild(old, newNode, parent)
}

func (t *rbTree) cmpKey(key uintptr, n *freeBlock) int {
	v := t.keyOf(n)
	switch {
	case key < v:
		return -1
	case key > v:
		return 1
	default:
		return 0
	}
}

// search, ceil, floor, min, max - O(log N) pure lookups (spec §4.1).

func (t *rbTree) search(key uintptr) *freeBlock {
	n := t.root
	for n != nil {
		switch {
		case key < t.keyOf(n):
			n = t.left(n)
		case key > t.keyOf(n):
			n = t.right(n)
		default:
			return n
		}
	}

	return nil
}

func (t *rbTree) ceil(key uintptr) *freeBlock {
	var ceilNode *freeBlock

	n := t.root
	for n != nil {
		switch {
		case key < t.keyOf(n):
			ceilNode = n
			n = t.left(n)
		case key > t.keyOf(n):
			n = t.right(n)
		default:
			return n
		}
	}

	return ceilNode
}

func (t *rbTree) floor(key uintptr) *freeBlock {
	var floorNode *freeBlock

	n := t.root
	for n != nil {
		switch {
		case key < t.keyOf(n):
			n = t.left(n)
		case key > t.keyOf(n):
			floorNode = n
			n = t.right(n)
		default:
			return n
		}
	}

	return floorNode
}

func (t *rbTree) first() *freeBlock {
	n := t.root
	if n == nil {
		return nil
	}

	for t.left(n) != nil {
		n = t.left(n)
	}

	return n
}

func (t *rbTree) last() *freeBlock {
	n := t.root
	if n == nil {
		return nil
	}

	for t.right(n) != nil {
		n = t.right(n)
	}

	return n
}

func (t *rbTree) min() *freeBlock { return t.first() }
func (t *rbTree) max() *freeBlock { return t.last() }

func (t *rbTree) next(node *freeBlock) *freeBlock {
	if t.right(node) != nil {
		n := t.right(node)
		for t.left(n) != nil {
			n = t.left(n)
		}

		return n
	}

	n := node

	parent := t.parent(n)
	for parent != nil && n == t.right(parent) {
		n = parent
		parent = t.parent(n)
	}

	return parent
}

func (t *rbTree) prev(node *freeBlock) *freeBlock {
	if t.left(node) != nil {
		n := t.left(node)
		for t.right(n) != nil {
			n = t.right(n)
		}

		return n
	}

	n := node

	parent := t.parent(n)
	for parent != nil && n == t.left(parent) {
		n = parent
		parent = t.parent(n)
	}

	return parent
}

// insert places item in the tree, rejecting duplicate keys by returning
// the existing node unchanged (spec §4.1).
func (t *rbTree) insert(item *freeBlock) *freeBlock {
	link := &t.root

	var parent *freeBlock

	for *link != nil {
		cur := *link

		switch {
		case t.keyOf(item) < t.keyOf(cur):
			parent = cur
			link = &t.links(cur).left
		case t.keyOf(item) > t.keyOf(cur):
			parent = cur
			link = &t.links(cur).right
		default:
			return cur
		}
	}

	t.links(item).parentColor = uintptrFromPtr(parent)
	t.links(item).left, t.links(item).right = nil, nil
	*link = item

	item.propagate(nil)

	t.insertRebalance(item)

	return item
}

func (t *rbTree) insertRebalance(node *freeBlock) {
	parent := t.redParent(node)

	for {
		if parent == nil {
			t.setParentColor(node, nil, black)
			break
		}

		if t.isBlack(parent) {
			break
		}

		gparent := t.redParent(parent)

		uncle := t.right(gparent)
		if parent != uncle {
			if uncle != nil && t.isRed(uncle) {
				t.setParentColor(uncle, gparent, black)
				t.setParentColor(parent, gparent, black)
				node = gparent
				parent = t.parent(node)
				t.setParentColor(node, parent, red)

				continue
			}

			tmp := t.right(parent)
			if node == tmp {
				tmp = t.left(node)
				t.setRight(parent, tmp)
				t.setLeft(node, parent)

				if tmp != nil {
					t.setParentColor(tmp, parent, black)
				}

				t.setParentColor(parent, node, red)
				parent.onRotate(node)
				parent = node
				tmp = t.right(node)
			}

			t.setLeft(gparent, tmp)
			t.setRight(parent, gparent)

			if tmp != nil {
				t.setParentColor(tmp, gparent, black)
			}

			t.rotateSetParents(gparent, parent, black)
			gparent.onRotate(parent)

			break
		}

		uncle = t.left(gparent)
		if uncle != nil && t.isRed(uncle) {
			t.setParentColor(uncle, gparent, black)
			t.setParentColor(parent, gparent, black)
			node = gparent
			parent = t.parent(node)
			t.setParentColor(node, parent, red)

			continue
		}

		tmp := t.left(parent)
		if node == tmp {
			tmp = t.right(node)
			t.setLeft(parent, tmp)
			t.setRight(node, parent)

			if tmp != nil {
				t.setParentColor(tmp, parent, black)
			}

			t.setParentColor(parent, node, red)
			parent.onRotate(node)
			parent = node
			tmp = t.left(node)
		}

		t.setRight(gparent, tmp)
		t.setLeft(parent, gparent)

		if tmp != nil {
			t.setParentColor(tmp, gparent, black)
		}

		t.rotateSetParents(gparent, parent, black)
		gparent.onRotate(parent)

		break
	}
}

// erase unlinks node structurally (the "augmented erase" form) and
// returns the subtree root rebalancing must start from, or nil if no
// rebalancing is needed. The three branches mirror eraseAugmented: no
// left child, no right child, or a full splice of the in-order
// successor into node's position.
func (t *rbTree) erase(node *freeBlock) *freeBlock {
	child := t.right(node)
	left := t.left(node)

	var parent, rebalance, propagateFrom *freeBlock

	var pc uintptr

	switch {
	case left == nil:
		pc = t.parentColor(node)
		parent = ptrFromUintptr(pc &^ 1)
		t.changeChild(node, child, parent)

		if child != nil {
			t.links(child).parentColor = pc
		} else if pc&1 == 1 {
			rebalance = parent
		}

		propagateFrom = parent
	case child == nil:
		pc = t.parentColor(node)
		t.links(left).parentColor = pc
		parent = ptrFromUintptr(pc &^ 1)
		t.changeChild(node, left, parent)
		propagateFrom = parent
	default:
		successor := child
		successorLeft := t.left(child)

		var child2 *freeBlock

		if successorLeft == nil {
			parent = successor
			child2 = t.right(successor)
			node.copyInto(successor)
		} else {
			for successorLeft != nil {
				parent = successor
				successor = successorLeft
				successorLeft = t.left(successor)
			}

			child2 = t.right(successor)
			t.setLeft(parent, child2)
			t.setRight(successor, child)
			t.setParent(child, successor)
			node.copyInto(successor)
			parent.propagate(successor)
		}

		nodeLeft := t.left(node)
		t.setLeft(successor, nodeLeft)
		t.setParent(nodeLeft, successor)

		pc = t.parentColor(node)
		grand := ptrFromUintptr(pc &^ 1)
		t.changeChild(node, successor, grand)

		if child2 != nil {
			t.links(successor).parentColor = pc
			t.setParentColor(child2, parent, black)
		} else {
			pc2 := t.parentColor(successor)
			t.links(successor).parentColor = pc

			if pc2&1 == 1 {
				rebalance = parent
			}
		}

		propagateFrom = successor
	}

	if propagateFrom != nil {
		propagateFrom.propagate(nil)
	}

	return rebalance
}

// remove deletes node from the tree, rebalancing afterward. node must
// currently be in the tree (spec §4.1).
func (t *rbTree) remove(node *freeBlock) {
	parent := t.erase(node)
	if parent == nil {
		return
	}

	var n *freeBlock

	for {
		sibling := t.right(parent)
		if n != sibling {
			if t.isRed(sibling) {
				tmp1 := t.left(sibling)
				t.setRight(parent, tmp1)
				t.setLeft(sibling, parent)
				t.setParentColor(tmp1, parent, black)
				t.rotateSetParents(parent, sibling, red)
				parent.onRotate(sibling)
				sibling = tmp1
			}

			tmp1 := t.right(sibling)
			if tmp1 == nil || t.isBlack(tmp1) {
				tmp2 := t.left(sibling)
				if tmp2 == nil || t.isBlack(tmp2) {
					t.setParentColor(sibling, parent, red)

					if t.isRed(parent) {
						t.setBlack(parent)
					} else {
						n = parent
						parent = t.parent(n)

						if parent != nil {
							continue
						}
					}

					break
				}

				tmp1 = t.right(tmp2)
				t.setLeft(sibling, tmp1)
				t.setRight(tmp2, sibling)
				t.setRight(parent, tmp2)

				if tmp1 != nil {
					t.setParentColor(tmp1, sibling, black)
				}

				sibling.onRotate(tmp2)
				tmp1 = sibling
				sibling = tmp2
			}

			tmp2 := t.left(sibling)
			t.setRight(parent, tmp2)
			t.setLeft(sibling, parent)
			t.setParentColor(tmp1, sibling, black)

			if tmp2 != nil {
				t.setParent(tmp2, parent)
			}

			t.rotateSetParents(parent, sibling, black)
			parent.onRotate(sibling)

			break
		}

		sibling = t.left(parent)
		if t.isRed(sibling) {
			tmp1 := t.right(sibling)
			t.setLeft(parent, tmp1)
			t.setRight(sibling, parent)
			t.setParentColor(tmp1, parent, black)
			t.rotateSetParents(parent, sibling, red)
			parent.onRotate(sibling)
			sibling = tmp1
		}

		tmp1 := t.left(sibling)
		if tmp1 == nil || t.isBlack(tmp1) {
			tmp2 := t.right(sibling)
			if tmp2 == nil || t.isBlack(tmp2) {
				t.setParentColor(sibling, parent, red)

				if t.isRed(parent) {
					t.setBlack(parent)
				} else {
					n = parent
					parent = t.parent(n)

					if parent != nil {
						continue
					}
				}

				break
			}

			tmp1 = t.left(tmp2)
			t.setRight(sibling, tmp1)
			t.setLeft(tmp2, sibling)
			t.setLeft(parent, tmp2)

			if tmp1 != nil {
				t.setParentColor(tmp1, sibling, black)
			}

			sibling.onRotate(tmp2)
			tmp1 = sibling
			sibling = tmp2
		}

		tmp2 := t.right(sibling)
		t.setLeft(parent, tmp2)
		t.setRight(sibling, parent)
		t.setParentColor(tmp1, sibling, black)

		if tmp2 != nil {
			t.setParent(tmp2, parent)
		}

		t.rotateSetParents(parent, sibling, black)
		parent.onRotate(sibling)

		break
	}
}

// replace swaps newNode into victim's tree position in O(1); their keys
// must compare equal (spec §4.1, §9 "replace-in-place optimization").
func (t *rbTree) replace(victim, newNode *freeBlock) {
	parent := t.parent(victim)

	t.changeChild(victim, newNode, parent)

	if t.left(victim) != nil {
		t.setParent(t.left(victim), newNode)
	}

	if t.right(victim) != nil {
		t.setParent(t.right(victim), newNode)
	}

	*t.links(newNode) = *t.links(victim)
}

func blackHeight(t *rbTree, n *freeBlock) int {
	if n == nil {
		return 1
	}

	lh := blackHeight(t, t.left(n))
	if lh == 0 {
		return 0
	}

	rh := blackHeight(t, t.right(n))
	if rh == 0 {
		return 0
	}

	if lh != rh {
		return 0
	}

	if t.isBlack(n) {
		return lh + 1
	}

	return lh
}

func checkRedProperty(t *rbTree, n *freeBlock) bool {
	if n == nil {
		return true
	}

	if !checkRedProperty(t, t.left(n)) || !checkRedProperty(t, t.right(n)) {
		return false
	}

	if t.isRed(n) {
		if l := t.left(n); l != nil && t.isRed(l) {
			return false
		}

		if r := t.right(n); r != nil && t.isRed(r) {
			return false
		}
	}

	return true
}

func isBalanced(t *rbTree, n *freeBlock) (maxH, minH int, ok bool) {
	if n == nil {
		return 0, 0, true
	}

	lMax, lMin, ok := isBalanced(t, t.left(n))
	if !ok {
		return 0, 0, false
	}

	rMax, rMin, ok := isBalanced(t, t.right(n))
	if !ok {
		return 0, 0, false
	}

	maxH = max(lMax, rMax) + 1
	minH = min(lMin, rMin) + 1

	return maxH, minH, maxH <= 2*minH
}

// check verifies the red-black invariants: equal black-height on every
// root-to-leaf path, no red node with a red child, and max <= 2*min
// height (spec §4.1 checker, §8 invariants).
func (t *rbTree) check() bool {
	if blackHeight(t, t.root) == 0 {
		return false
	}

	if !checkRedProperty(t, t.root) {
		return false
	}

	_, _, balanced := isBalanced(t, t.root)

	return balanced
}
