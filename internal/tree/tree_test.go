package tree

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bayou/internal/models"
)

func comment(id uuid.UUID, parent *uuid.UUID, createdAt time.Time) *models.Comment {
	return &models.Comment{
		ID:        id,
		ParentID:  parent,
		Content:   "c-" + id.String()[:8],
		CreatedAt: createdAt,
	}
}

func TestBuildNestedForest(t *testing.T) {
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	rootA := uuid.New()
	rootB := uuid.New()
	replyA1 := uuid.New()
	replyA2 := uuid.New()
	replyA1a := uuid.New()

	// Deliberately shuffled input: builds must not depend on insertion order.
	comments := []*models.Comment{
		comment(replyA1a, &replyA1, base.Add(4*time.Minute)),
		comment(rootB, nil, base.Add(1*time.Minute)),
		comment(replyA2, &rootA, base.Add(3*time.Minute)),
		comment(rootA, nil, base),
		comment(replyA1, &rootA, base.Add(2*time.Minute)),
	}

	roots := Build(comments)
	require.Len(t, roots, 2)

	// Siblings ascending by createdAt.
	assert.Equal(t, rootA, roots[0].Comment.ID)
	assert.Equal(t, rootB, roots[1].Comment.ID)

	require.Len(t, roots[0].Children, 2)
	assert.Equal(t, replyA1, roots[0].Children[0].Comment.ID)
	assert.Equal(t, replyA2, roots[0].Children[1].Comment.ID)

	require.Len(t, roots[0].Children[0].Children, 1)
	assert.Equal(t, replyA1a, roots[0].Children[0].Children[0].Comment.ID)

	assert.Equal(t, len(comments), Count(roots))
}

func TestBuildSiblingTieBreak(t *testing.T) {
	at := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	a := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	b := uuid.MustParse("00000000-0000-0000-0000-00000000000b")

	// Identical timestamps: id decides, so rendering is stable.
	roots := Build([]*models.Comment{
		comment(b, nil, at),
		comment(a, nil, at),
	})
	require.Len(t, roots, 2)
	assert.Equal(t, a, roots[0].Comment.ID)
	assert.Equal(t, b, roots[1].Comment.ID)
}

func TestBuildOrphanBecomesRoot(t *testing.T) {
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	missing := uuid.New()
	root := uuid.New()
	orphan := uuid.New()
	orphanChild := uuid.New()

	roots := Build([]*models.Comment{
		comment(root, nil, base),
		comment(orphan, &missing, base.Add(time.Minute)),
		comment(orphanChild, &orphan, base.Add(2*time.Minute)),
	})

	require.Len(t, roots, 2)
	assert.Equal(t, root, roots[0].Comment.ID)
	assert.Equal(t, orphan, roots[1].Comment.ID)
	// The orphan keeps its own subtree.
	require.Len(t, roots[1].Children, 1)
	assert.Equal(t, orphanChild, roots[1].Children[0].Comment.ID)
	assert.Equal(t, 3, Count(roots))
}

func TestBuildSurvivesParentCycle(t *testing.T) {
	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	x := uuid.New()
	y := uuid.New()
	root := uuid.New()

	// x and y point at each other; neither is reachable from a root.
	roots := Build([]*models.Comment{
		comment(root, nil, base),
		comment(x, &y, base.Add(time.Minute)),
		comment(y, &x, base.Add(2*time.Minute)),
	})

	// Every record appears exactly once, cycle or not.
	assert.Equal(t, 3, Count(roots))
	seen := make(map[uuid.UUID]int)
	var walk func(nodes []*Node)
	walk = func(nodes []*Node) {
		for _, n := range nodes {
			seen[n.Comment.ID]++
			walk(n.Children)
		}
	}
	walk(roots)
	assert.Equal(t, map[uuid.UUID]int{root: 1, x: 1, y: 1}, seen)
}

func TestBuildEmptyAndSingle(t *testing.T) {
	assert.Empty(t, Build(nil))

	only := uuid.New()
	roots := Build([]*models.Comment{comment(only, nil, time.Now())})
	require.Len(t, roots, 1)
	assert.Empty(t, roots[0].Children)
}

func TestDepth(t *testing.T) {
	base := time.Now().UTC()
	root := uuid.New()
	child := uuid.New()
	grandchild := uuid.New()
	comments := []*models.Comment{
		comment(root, nil, base),
		comment(child, &root, base.Add(time.Minute)),
		comment(grandchild, &child, base.Add(2*time.Minute)),
	}

	// A reply to a root lands at depth 2, and so on down.
	assert.Equal(t, 2, Depth(comments, root))
	assert.Equal(t, 3, Depth(comments, child))
	assert.Equal(t, 4, Depth(comments, grandchild))

	// Unknown parent: the reply would be rendered as a root.
	assert.Equal(t, 1, Depth(comments, uuid.New()))
}

func TestDepthCycleDoesNotHang(t *testing.T) {
	base := time.Now().UTC()
	x := uuid.New()
	y := uuid.New()
	comments := []*models.Comment{
		comment(x, &y, base),
		comment(y, &x, base),
	}
	d := Depth(comments, x)
	assert.GreaterOrEqual(t, d, 1)
	assert.LessOrEqual(t, d, 3)
}
