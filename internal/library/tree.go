package library

import "sort"

// Node is one tag value at one level of a Tree. Nodes refer to each other by
// index into Tree.Nodes.
type Node struct {
	Tag      string
	Value    string
	Count    int
	Parent   int // -1 for the root
	Children []int
}

// Tree is an arena of nodes. Nodes[0] is the root and counts every file.
type Tree struct {
	Tags  []string
	Nodes []Node
}

// NewTree returns an empty tree with one level per tag.
func NewTree(tags []string) *Tree {
	return &Tree{
		Tags:  append([]string(nil), tags...),
		Nodes: []Node{{Parent: -1}},
	}
}

// Root returns the root node.
func (t *Tree) Root() Node {
	return t.Nodes[0]
}

// Add counts one file with the given value per level.
func (t *Tree) Add(values []string) {
	cur := 0
	t.Nodes[cur].Count++
	for level, v := range values {
		if level >= len(t.Tags) {
			break
		}
		cur = t.child(cur, level, v)
		t.Nodes[cur].Count++
	}
}

func (t *Tree) child(parent, level int, value string) int {
	for _, c := range t.Nodes[parent].Children {
		if t.Nodes[c].Value == value {
			return c
		}
	}
	t.Nodes = append(t.Nodes, Node{Tag: t.Tags[level], Value: value, Parent: parent})
	idx := len(t.Nodes) - 1
	t.Nodes[parent].Children = append(t.Nodes[parent].Children, idx)
	return idx
}

// Find follows values from the root and returns the matching node index.
func (t *Tree) Find(values ...string) (int, bool) {
	cur := 0
outer:
	for _, v := range values {
		for _, c := range t.Nodes[cur].Children {
			if t.Nodes[c].Value == v {
				cur = c
				continue outer
			}
		}
		return -1, false
	}
	return cur, true
}

// Walk visits nodes depth first, children sorted by value. The root is
// visited at depth 0.
func (t *Tree) Walk(fn func(depth int, n Node)) {
	var visit func(idx, depth int)
	visit = func(idx, depth int) {
		n := t.Nodes[idx]
		fn(depth, n)
		children := append([]int(nil), n.Children...)
		sort.Slice(children, func(i, j int) bool {
			return t.Nodes[children[i]].Value < t.Nodes[children[j]].Value
		})
		for _, c := range children {
			visit(c, depth+1)
		}
	}
	visit(0, 0)
}
