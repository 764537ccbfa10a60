package actors

import (
	stdctx "context"
	"log/slog"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"

	"bayou/internal/authority"
	"bayou/internal/models"
	"bayou/internal/moderation"
	"bayou/internal/reactions"
	"bayou/internal/store"
	enginesync "bayou/internal/sync"
	"bayou/internal/tree"
	"bayou/internal/utils"
)

// Message types for ThreadActor
type (
	CreateThreadMsg struct {
		Title    string     `json:"title"`
		Body     string     `json:"body"`
		AuthorID *uuid.UUID `json:"authorId,omitempty"`
		Category string     `json:"category"`
		Tags     []string   `json:"tags"`
	}

	ListThreadsMsg struct {
		Category string `json:"category,omitempty"`
		Limit    int    `json:"limit,omitempty"`
	}

	GetThreadViewMsg struct {
		ThreadID uuid.UUID `json:"threadId"`
		ViewerID uuid.UUID `json:"viewerId"`
	}

	PostCommentMsg struct {
		ThreadID uuid.UUID  `json:"threadId"`
		ParentID *uuid.UUID `json:"parentCommentId,omitempty"`
		Content  string     `json:"content"`
		AuthorID uuid.UUID  `json:"authorId"`
	}

	EditCommentMsg struct {
		ThreadID  uuid.UUID `json:"threadId"`
		CommentID uuid.UUID `json:"commentId"`
		EditorID  uuid.UUID `json:"editorId"`
		Content   string    `json:"content"`
	}

	DeleteCommentMsg struct {
		ThreadID    uuid.UUID `json:"threadId"`
		CommentID   uuid.UUID `json:"commentId"`
		RequesterID uuid.UUID `json:"requesterId"`
	}

	ToggleReactionMsg struct {
		ThreadID  uuid.UUID `json:"threadId"`
		CommentID uuid.UUID `json:"commentId"`
		UserID    uuid.UUID `json:"userId"`
		Symbol    string    `json:"symbol"`
	}

	CensorThreadMsg struct {
		ThreadID uuid.UUID `json:"threadId"`
		AdminID  uuid.UUID `json:"adminId"`
		Reason   string    `json:"reason"`
	}

	CensorCommentMsg struct {
		ThreadID  uuid.UUID `json:"threadId"`
		CommentID uuid.UUID `json:"commentId"`
		AdminID   uuid.UUID `json:"adminId"`
		Reason    string    `json:"reason"`
	}

	DeleteThreadMsg struct {
		ThreadID    uuid.UUID `json:"threadId"`
		RequesterID uuid.UUID `json:"requesterId"`
	}
)

// CommentView is one rendered node of the reply tree.
type CommentView struct {
	ID             uuid.UUID      `json:"id"`
	AuthorID       uuid.UUID      `json:"authorId"`
	AuthorUsername string         `json:"authorUsername"`
	DisplayContent string         `json:"displayContent"`
	Badges         []string       `json:"badges,omitempty"`
	Score          int            `json:"score"`
	PerSymbol      map[string]int `json:"reactions,omitempty"`
	UserVote       string         `json:"userVote,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	Children       []*CommentView `json:"children"`
}

// ThreadViewResponse is a fully rendered thread with its reply tree.
type ThreadViewResponse struct {
	ID           uuid.UUID      `json:"id"`
	DisplayTitle string         `json:"displayTitle"`
	DisplayBody  string         `json:"displayBody"`
	Badges       []string       `json:"badges,omitempty"`
	Category     string         `json:"category"`
	Tags         []string       `json:"tags"`
	CommentCount int            `json:"commentCount"`
	CreatedAt    time.Time      `json:"createdAt"`
	Comments     []*CommentView `json:"comments"`
}

// ThreadActor serializes all thread and comment mutations. One actor
// instance handles every thread; per-entity contention is already
// resolved by the store's single-field mutations, the actor exists to
// keep the validate-then-write sequences from interleaving.
type ThreadActor struct {
	store     store.Store
	sync      *enginesync.Controller
	authority *authority.Ledger
	maxDepth  int
	log       *slog.Logger
}

func NewThreadActor(st store.Store, sc *enginesync.Controller, al *authority.Ledger, maxDepth int, log *slog.Logger) actor.Actor {
	if log == nil {
		log = slog.Default()
	}
	return &ThreadActor{store: st, sync: sc, authority: al, maxDepth: maxDepth, log: log}
}

func (a *ThreadActor) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *actor.Started:
		a.log.Info("thread actor started", "pid", context.Self().String())

	case *CreateThreadMsg:
		a.handleCreateThread(context, msg)

	case *ListThreadsMsg:
		a.handleListThreads(context, msg)

	case *GetThreadViewMsg:
		a.handleGetThreadView(context, msg)

	case *PostCommentMsg:
		a.handlePostComment(context, msg)

	case *EditCommentMsg:
		a.handleEditComment(context, msg)

	case *DeleteCommentMsg:
		a.handleDeleteComment(context, msg)

	case *ToggleReactionMsg:
		a.handleToggleReaction(context, msg)

	case *CensorThreadMsg:
		a.handleCensorThread(context, msg)

	case *CensorCommentMsg:
		a.handleCensorComment(context, msg)

	case *DeleteThreadMsg:
		a.handleDeleteThread(context, msg)
	}
}

func (a *ThreadActor) handleCreateThread(context actor.Context, msg *CreateThreadMsg) {
	if msg.Title == "" {
		context.Respond(utils.NewAppError(utils.ErrInvalidInput, "Thread title is required", nil))
		return
	}

	ctx := stdctx.Background()
	now := time.Now().UTC()
	thread := &models.Thread{
		ID:        uuid.New(),
		Title:     msg.Title,
		Body:      msg.Body,
		AuthorID:  msg.AuthorID,
		Category:  msg.Category,
		Tags:      msg.Tags,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.Put(ctx, store.ThreadPath(thread.ID), thread); err != nil {
		context.Respond(utils.NewTransientStoreError("create thread", err))
		return
	}
	context.Respond(thread)
}

func (a *ThreadActor) handleListThreads(context actor.Context, msg *ListThreadsMsg) {
	ctx := stdctx.Background()
	q := store.Query{
		Collection: store.ThreadsCollection,
		OrderBy:    "createdAt",
		Desc:       true, // listings are newest-first, unlike sibling order inside a thread
		Limit:      msg.Limit,
	}
	if msg.Category != "" {
		q.Filters = append(q.Filters, store.Filter{Field: "category", Op: "==", Value: msg.Category})
	}

	snaps, err := a.store.Query(ctx, q)
	if err != nil {
		context.Respond(utils.NewTransientStoreError("list threads", err))
		return
	}

	threads := make([]*models.Thread, 0, len(snaps))
	for _, snap := range snaps {
		var t models.Thread
		if err := snap.Decode(&t); err != nil {
			continue
		}
		threads = append(threads, &t)
	}
	context.Respond(threads)
}

func (a *ThreadActor) handleGetThreadView(context actor.Context, msg *GetThreadViewMsg) {
	ctx := stdctx.Background()

	var thread models.Thread
	if err := a.store.Get(ctx, store.ThreadPath(msg.ThreadID), &thread); err != nil {
		context.Respond(err)
		return
	}

	comments, err := a.loadComments(ctx, msg.ThreadID)
	if err != nil {
		context.Respond(err)
		return
	}

	roots := tree.Build(comments)
	threadView := moderation.RenderThread(&thread)
	response := &ThreadViewResponse{
		ID:           thread.ID,
		DisplayTitle: threadView.DisplayTitle,
		DisplayBody:  threadView.DisplayBody,
		Badges:       threadView.Badges,
		Category:     thread.Category,
		Tags:         thread.Tags,
		CommentCount: thread.CommentCount,
		CreatedAt:    thread.CreatedAt,
		Comments:     a.renderNodes(ctx, roots, msg.ViewerID),
	}
	context.Respond(response)
}

func (a *ThreadActor) renderNodes(ctx stdctx.Context, nodes []*tree.Node, viewerID uuid.UUID) []*CommentView {
	views := make([]*CommentView, 0, len(nodes))
	for _, node := range nodes {
		c := node.Comment
		overlay := moderation.RenderComment(c)
		tally := reactions.Compute(c.Reactions, viewerID.String())
		views = append(views, &CommentView{
			ID:             c.ID,
			AuthorID:       c.AuthorID,
			AuthorUsername: a.sync.Cache().Username(ctx, c.AuthorID),
			DisplayContent: overlay.DisplayContent,
			Badges:         overlay.Badges,
			Score:          tally.Score,
			PerSymbol:      tally.PerSymbol,
			UserVote:       tally.UserVote,
			CreatedAt:      c.CreatedAt,
			Children:       a.renderNodes(ctx, node.Children, viewerID),
		})
	}
	return views
}

func (a *ThreadActor) handlePostComment(context actor.Context, msg *PostCommentMsg) {
	ctx := stdctx.Background()

	var thread models.Thread
	if err := a.store.Get(ctx, store.ThreadPath(msg.ThreadID), &thread); err != nil {
		context.Respond(err)
		return
	}

	comments, err := a.loadComments(ctx, msg.ThreadID)
	if err != nil {
		context.Respond(err)
		return
	}

	if msg.ParentID != nil {
		parentKnown := false
		for _, c := range comments {
			if c.ID == *msg.ParentID {
				parentKnown = true
				break
			}
		}
		if !parentKnown {
			context.Respond(utils.NewNotFoundError("parent comment " + msg.ParentID.String()))
			return
		}
		if depth := tree.Depth(comments, *msg.ParentID); depth > a.maxDepth {
			context.Respond(utils.NewAppError(utils.ErrInvalidInput, "Maximum reply depth exceeded", nil))
			return
		}
	}

	comment := &models.Comment{
		ID:        uuid.New(),
		ThreadID:  msg.ThreadID,
		ParentID:  msg.ParentID,
		Content:   msg.Content,
		AuthorID:  msg.AuthorID,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.Put(ctx, store.CommentPath(msg.ThreadID, comment.ID), comment); err != nil {
		context.Respond(utils.NewTransientStoreError("post comment", err))
		return
	}

	// Independent counter write; the sweep recovers if it is lost.
	a.sync.BumpCounter(ctx, commentCountTarget(msg.ThreadID), 1)

	context.Respond(comment)
}

func (a *ThreadActor) handleEditComment(context actor.Context, msg *EditCommentMsg) {
	ctx := stdctx.Background()
	path := store.CommentPath(msg.ThreadID, msg.CommentID)

	var comment models.Comment
	if err := a.store.Get(ctx, path, &comment); err != nil {
		context.Respond(err)
		return
	}

	fields := map[string]any{"content": msg.Content}
	if comment.AuthorID != msg.EditorID {
		admin, err := a.authority.IsAdmin(ctx, msg.EditorID)
		if err != nil {
			context.Respond(err)
			return
		}
		if !admin {
			context.Respond(utils.NewUnauthorizedError("not the comment author"))
			return
		}
		// Attribution is stamped here, at write time. An admin editing
		// their own comment takes the branch above and stays unflagged.
		fields["editedByAdmin"] = msg.EditorID
	}

	if err := a.store.Patch(ctx, path, fields); err != nil {
		context.Respond(utils.NewTransientStoreError("edit comment", err))
		return
	}
	context.Respond(&models.StatusResponse{Success: true, Message: "Comment updated"})
}

func (a *ThreadActor) handleDeleteComment(context actor.Context, msg *DeleteCommentMsg) {
	ctx := stdctx.Background()
	path := store.CommentPath(msg.ThreadID, msg.CommentID)

	var comment models.Comment
	if err := a.store.Get(ctx, path, &comment); err != nil {
		context.Respond(err)
		return
	}

	if comment.AuthorID != msg.RequesterID {
		admin, err := a.authority.IsAdmin(ctx, msg.RequesterID)
		if err != nil {
			context.Respond(err)
			return
		}
		if !admin {
			context.Respond(utils.NewUnauthorizedError("not the comment author"))
			return
		}
	}

	if err := a.store.Delete(ctx, path); err != nil {
		context.Respond(utils.NewTransientStoreError("delete comment", err))
		return
	}
	a.sync.BumpCounter(ctx, commentCountTarget(msg.ThreadID), -1)

	context.Respond(&models.StatusResponse{Success: true, Message: "Comment deleted"})
}

func (a *ThreadActor) handleToggleReaction(context actor.Context, msg *ToggleReactionMsg) {
	if !reactions.ValidSymbol(msg.Symbol) {
		context.Respond(utils.NewAppError(utils.ErrInvalidInput, "Invalid reaction symbol: "+msg.Symbol, nil))
		return
	}

	ctx := stdctx.Background()
	path := store.CommentPath(msg.ThreadID, msg.CommentID)

	var comment models.Comment
	if err := a.store.Get(ctx, path, &comment); err != nil {
		context.Respond(err)
		return
	}

	updated := reactions.Toggle(comment.Reactions, msg.Symbol, msg.UserID.String())
	if err := a.store.Patch(ctx, path, map[string]any{"reactions": updated}); err != nil {
		context.Respond(utils.NewTransientStoreError("toggle reaction", err))
		return
	}

	context.Respond(reactions.Compute(updated, msg.UserID.String()))
}

func (a *ThreadActor) handleCensorThread(context actor.Context, msg *CensorThreadMsg) {
	ctx := stdctx.Background()

	admin, err := a.authority.IsAdmin(ctx, msg.AdminID)
	if err != nil {
		context.Respond(err)
		return
	}
	if !admin {
		context.Respond(utils.NewUnauthorizedError("censorship requires admin"))
		return
	}

	var thread models.Thread
	if err := a.store.Get(ctx, store.ThreadPath(msg.ThreadID), &thread); err != nil {
		context.Respond(err)
		return
	}
	if thread.Censored {
		// Cascade already ran or is in flight; re-censoring is a no-op.
		context.Respond(&models.StatusResponse{Success: true, Message: "Thread already censored"})
		return
	}

	// Flip the flag only. The redaction itself (overwriting title/body
	// and shadowing the originals) runs in the update trigger, so it
	// also covers writes arriving through other surfaces.
	err = a.store.Patch(ctx, store.ThreadPath(msg.ThreadID), map[string]any{
		"censored":     true,
		"censorReason": msg.Reason,
		"editedBy":     msg.AdminID,
		"updatedAt":    store.ServerTimestamp(),
	})
	if err != nil {
		context.Respond(utils.NewTransientStoreError("censor thread", err))
		return
	}
	context.Respond(&models.StatusResponse{Success: true, Message: "Thread censored"})
}

func (a *ThreadActor) handleCensorComment(context actor.Context, msg *CensorCommentMsg) {
	ctx := stdctx.Background()

	admin, err := a.authority.IsAdmin(ctx, msg.AdminID)
	if err != nil {
		context.Respond(err)
		return
	}
	if !admin {
		context.Respond(utils.NewUnauthorizedError("censorship requires admin"))
		return
	}

	path := store.CommentPath(msg.ThreadID, msg.CommentID)
	var comment models.Comment
	if err := a.store.Get(ctx, path, &comment); err != nil {
		context.Respond(err)
		return
	}

	// Content stays on the record; the overlay hides it at render time.
	err = a.store.Patch(ctx, path, map[string]any{
		"censored":     true,
		"censorReason": msg.Reason,
	})
	if err != nil {
		context.Respond(utils.NewTransientStoreError("censor comment", err))
		return
	}
	context.Respond(&models.StatusResponse{Success: true, Message: "Comment censored"})
}

func (a *ThreadActor) handleDeleteThread(context actor.Context, msg *DeleteThreadMsg) {
	ctx := stdctx.Background()

	var thread models.Thread
	if err := a.store.Get(ctx, store.ThreadPath(msg.ThreadID), &thread); err != nil {
		context.Respond(err)
		return
	}

	authorized := thread.AuthorID != nil && *thread.AuthorID == msg.RequesterID
	if !authorized {
		admin, err := a.authority.IsAdmin(ctx, msg.RequesterID)
		if err != nil {
			context.Respond(err)
			return
		}
		authorized = admin
	}
	if !authorized {
		context.Respond(utils.NewUnauthorizedError("not the thread author"))
		return
	}

	if err := a.store.Delete(ctx, store.ThreadPath(msg.ThreadID)); err != nil {
		context.Respond(utils.NewTransientStoreError("delete thread", err))
		return
	}

	// Best-effort cascade; a failed child delete is logged and left to
	// the cleanup sweep.
	snaps, err := a.store.Query(ctx, store.Query{Collection: store.ThreadCommentsCollection(msg.ThreadID)})
	if err != nil {
		a.log.Warn("orphaned comments after thread delete", "thread", msg.ThreadID, "error", err)
	} else {
		for _, snap := range snaps {
			if err := a.store.Delete(ctx, snap.Path); err != nil {
				a.log.Warn("comment cleanup failed", "path", snap.Path, "error", err)
			}
		}
	}

	context.Respond(&models.StatusResponse{Success: true, Message: "Thread deleted"})
}

func (a *ThreadActor) loadComments(ctx stdctx.Context, threadID uuid.UUID) ([]*models.Comment, error) {
	snaps, err := a.store.Query(ctx, store.Query{
		Collection: store.ThreadCommentsCollection(threadID),
		OrderBy:    "createdAt",
	})
	if err != nil {
		return nil, utils.NewTransientStoreError("load comments", err)
	}

	comments := make([]*models.Comment, 0, len(snaps))
	for _, snap := range snaps {
		var c models.Comment
		if err := snap.Decode(&c); err != nil {
			continue
		}
		comments = append(comments, &c)
	}
	return comments, nil
}

func commentCountTarget(threadID uuid.UUID) enginesync.ReconcileTarget {
	return enginesync.ReconcileTarget{
		ParentPath:      store.ThreadPath(threadID),
		ChildCollection: store.ThreadCommentsCollection(threadID),
		Field:           "commentCount",
	}
}
