// Package tree rebuilds hierarchical reply structure from the flat,
// order-irrelevant comment collection. Build is O(n): one pass to index
// children by parent id, one walk to attach.
package tree

import (
	"sort"

	"github.com/google/uuid"

	"bayou/internal/models"
)

// Node is one comment with its replies attached.
type Node struct {
	Comment  *models.Comment
	Children []*Node
}

// Build reconstructs the reply forest. Top-level comments (nil parent)
// become roots, ordered by ascending createdAt with ties broken by id.
// Orphaned replies (parent id referencing a missing or deleted comment)
// are attached as roots rather than dropped; that is the fallback policy,
// not an error. Every input record appears in the result exactly once.
func Build(comments []*models.Comment) []*Node {
	nodes := make(map[uuid.UUID]*Node, len(comments))
	for _, c := range comments {
		nodes[c.ID] = &Node{Comment: c}
	}

	var roots []*Node
	byParent := make(map[uuid.UUID][]*Node)
	for _, c := range comments {
		node := nodes[c.ID]
		switch {
		case c.ParentID == nil:
			roots = append(roots, node)
		default:
			if _, ok := nodes[*c.ParentID]; !ok {
				// Orphan: parent deleted or never existed.
				roots = append(roots, node)
				continue
			}
			byParent[*c.ParentID] = append(byParent[*c.ParentID], node)
		}
	}

	visited := make(map[uuid.UUID]bool, len(comments))
	var attach func(n *Node)
	attach = func(n *Node) {
		if visited[n.Comment.ID] {
			return
		}
		visited[n.Comment.ID] = true
		n.Children = n.Children[:0]
		for _, child := range byParent[n.Comment.ID] {
			if !visited[child.Comment.ID] {
				n.Children = append(n.Children, child)
			}
		}
		sortSiblings(n.Children)
		for _, child := range n.Children {
			attach(child)
		}
	}
	for _, root := range roots {
		attach(root)
	}

	// A parent cycle leaves its members unreachable from any root. The
	// records must still render; surface them as roots with whatever
	// subtree hangs off them.
	for _, c := range comments {
		if node := nodes[c.ID]; !visited[c.ID] {
			roots = append(roots, node)
			attach(node)
		}
	}

	sortSiblings(roots)
	return roots
}

// Depth returns the nesting depth a reply to parentID would have, with
// top-level comments at depth 1. Unknown parents report depth 1, matching
// the orphans-as-roots policy.
func Depth(comments []*models.Comment, parentID uuid.UUID) int {
	byID := make(map[uuid.UUID]*models.Comment, len(comments))
	for _, c := range comments {
		byID[c.ID] = c
	}

	depth := 1
	seen := make(map[uuid.UUID]bool)
	current, ok := byID[parentID]
	for ok {
		if seen[current.ID] {
			break // defensive: cycles must not hang the write path
		}
		seen[current.ID] = true
		depth++
		if current.ParentID == nil {
			break
		}
		current, ok = byID[*current.ParentID]
	}
	return depth
}

// Count returns the total number of nodes in the forest.
func Count(roots []*Node) int {
	total := 0
	for _, r := range roots {
		total += 1 + Count(r.Children)
	}
	return total
}

// sortSiblings orders siblings by ascending createdAt, ties broken by id
// so rendering is stable across reloads. This is intentionally the
// opposite direction from thread listings, which sort newest first.
func sortSiblings(nodes []*Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := nodes[i].Comment, nodes[j].Comment
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
}
