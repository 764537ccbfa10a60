package actors

import (
	stdctx "context"
	"log/slog"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"bayou/internal/authority"
	"bayou/internal/models"
	"bayou/internal/moderation"
	"bayou/internal/store"
	enginesync "bayou/internal/sync"
	"bayou/internal/utils"
)

// Message types for ConversationActor
type (
	CreateConversationMsg struct {
		CreatorID    uuid.UUID   `json:"creatorId"`
		Participants []uuid.UUID `json:"participants"`
		Name         string      `json:"name,omitempty"`
	}

	ListConversationsMsg struct {
		UserID uuid.UUID `json:"userId"`
	}

	GetConversationViewMsg struct {
		ConversationID uuid.UUID `json:"conversationId"`
		ViewerID       uuid.UUID `json:"viewerId"`
	}

	SendMessageMsg struct {
		ConversationID uuid.UUID `json:"conversationId"`
		SenderID       uuid.UUID `json:"senderId"`
		Content        string    `json:"content"`
	}

	EditMessageMsg struct {
		ConversationID uuid.UUID `json:"conversationId"`
		MessageID      uuid.UUID `json:"messageId"`
		EditorID       uuid.UUID `json:"editorId"`
		Content        string    `json:"content"`
	}

	CensorMessageMsg struct {
		ConversationID uuid.UUID `json:"conversationId"`
		MessageID      uuid.UUID `json:"messageId"`
		AdminID        uuid.UUID `json:"adminId"`
		Reason         string    `json:"reason"`
	}

	DeleteMessageMsg struct {
		ConversationID uuid.UUID `json:"conversationId"`
		MessageID      uuid.UUID `json:"messageId"`
		RequesterID    uuid.UUID `json:"requesterId"`
	}

	MarkReadMsg struct {
		ConversationID uuid.UUID `json:"conversationId"`
		MessageID      uuid.UUID `json:"messageId"`
		ReaderID       uuid.UUID `json:"readerId"`
	}

	DeleteConversationMsg struct {
		ConversationID uuid.UUID `json:"conversationId"`
		RequesterID    uuid.UUID `json:"requesterId"`
	}
)

// MessageView is one rendered message.
type MessageView struct {
	ID             uuid.UUID `json:"id"`
	SenderID       uuid.UUID `json:"senderId"`
	SenderUsername string    `json:"senderUsername"`
	DisplayContent string    `json:"displayContent"`
	Badges         []string  `json:"badges,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	IsRead         bool      `json:"isRead"`
}

// ConversationViewResponse is a rendered conversation with its messages
// in ascending creation order.
type ConversationViewResponse struct {
	ID            uuid.UUID      `json:"id"`
	DisplayName   string         `json:"displayName"`
	Participants  []uuid.UUID    `json:"participants"`
	LastMessage   string         `json:"lastMessage,omitempty"`
	LastMessageAt *time.Time     `json:"lastMessageAt,omitempty"`
	UnreadCount   int            `json:"unreadCount"`
	Messages      []*MessageView `json:"messages"`
}

// ConversationActor serializes conversation and message mutations and
// keeps the preview cache opportunistically fresh.
type ConversationActor struct {
	store     store.Store
	sync      *enginesync.Controller
	authority *authority.Ledger
	log       *slog.Logger
}

func NewConversationActor(st store.Store, sc *enginesync.Controller, al *authority.Ledger, log *slog.Logger) actor.Actor {
	if log == nil {
		log = slog.Default()
	}
	return &ConversationActor{store: st, sync: sc, authority: al, log: log}
}

func (a *ConversationActor) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *actor.Started:
		a.log.Info("conversation actor started", "pid", context.Self().String())

	case *CreateConversationMsg:
		a.handleCreateConversation(context, msg)

	case *ListConversationsMsg:
		a.handleListConversations(context, msg)

	case *GetConversationViewMsg:
		a.handleGetConversationView(context, msg)

	case *SendMessageMsg:
		a.handleSendMessage(context, msg)

	case *EditMessageMsg:
		a.handleEditMessage(context, msg)

	case *CensorMessageMsg:
		a.handleCensorMessage(context, msg)

	case *DeleteMessageMsg:
		a.handleDeleteMessage(context, msg)

	case *MarkReadMsg:
		a.handleMarkRead(context, msg)

	case *DeleteConversationMsg:
		a.handleDeleteConversation(context, msg)
	}
}

func (a *ConversationActor) handleCreateConversation(context actor.Context, msg *CreateConversationMsg) {
	participants := msg.Participants
	if !lo.Contains(participants, msg.CreatorID) {
		participants = append(participants, msg.CreatorID)
	}
	participants = lo.Uniq(participants)

	conversation := &models.Conversation{
		ID:           uuid.New(),
		Participants: participants,
		Name:         msg.Name,
		CreatedAt:    time.Now().UTC(),
	}

	ctx := stdctx.Background()
	if err := a.store.Put(ctx, store.ConversationPath(conversation.ID), conversation); err != nil {
		context.Respond(utils.NewTransientStoreError("create conversation", err))
		return
	}
	context.Respond(conversation)
}

func (a *ConversationActor) handleListConversations(context actor.Context, msg *ListConversationsMsg) {
	ctx := stdctx.Background()
	snaps, err := a.store.Query(ctx, store.Query{
		Collection: store.ConversationsCollection,
		Filters:    []store.Filter{{Field: "participants", Op: "array-contains", Value: msg.UserID}},
		OrderBy:    "lastMessageAt",
		Desc:       true,
	})
	if err != nil {
		context.Respond(utils.NewTransientStoreError("list conversations", err))
		return
	}

	conversations := make([]*models.Conversation, 0, len(snaps))
	for _, snap := range snaps {
		var c models.Conversation
		if err := snap.Decode(&c); err != nil {
			continue
		}
		conversations = append(conversations, &c)
	}
	context.Respond(conversations)
}

func (a *ConversationActor) handleGetConversationView(context actor.Context, msg *GetConversationViewMsg) {
	ctx := stdctx.Background()

	conversation, err := a.memberConversation(ctx, msg.ConversationID, msg.ViewerID)
	if err != nil {
		context.Respond(err)
		return
	}

	snaps, err := a.store.Query(ctx, store.Query{
		Collection: store.ConversationMessagesCollection(msg.ConversationID),
		OrderBy:    "createdAt",
	})
	if err != nil {
		context.Respond(utils.NewTransientStoreError("load messages", err))
		return
	}

	response := &ConversationViewResponse{
		ID:            conversation.ID,
		DisplayName:   conversation.DisplayName(),
		Participants:  conversation.Participants,
		LastMessage:   conversation.LastMessage,
		LastMessageAt: conversation.LastMessageAt,
		Messages:      make([]*MessageView, 0, len(snaps)),
	}
	for _, snap := range snaps {
		var m models.Message
		if err := snap.Decode(&m); err != nil {
			continue
		}
		overlay := moderation.RenderMessage(&m)
		response.Messages = append(response.Messages, &MessageView{
			ID:             m.ID,
			SenderID:       m.SenderID,
			SenderUsername: a.sync.Cache().Username(ctx, m.SenderID),
			DisplayContent: overlay.DisplayContent,
			Badges:         overlay.Badges,
			CreatedAt:      m.CreatedAt,
			IsRead:         m.IsRead,
		})
		if !m.IsRead && m.SenderID != msg.ViewerID {
			response.UnreadCount++
		}
	}
	context.Respond(response)
}

func (a *ConversationActor) handleSendMessage(context actor.Context, msg *SendMessageMsg) {
	ctx := stdctx.Background()

	if _, err := a.memberConversation(ctx, msg.ConversationID, msg.SenderID); err != nil {
		context.Respond(err)
		return
	}

	message := &models.Message{
		ID:             uuid.New(),
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		CreatedAt:      time.Now().UTC(),
	}
	if err := a.store.Put(ctx, store.MessagePath(msg.ConversationID, message.ID), message); err != nil {
		context.Respond(utils.NewTransientStoreError("send message", err))
		return
	}

	// Opportunistic preview write, outside any transaction with the
	// message insert; ReconcilePreview recovers if it is lost.
	a.sync.SetPreview(ctx, msg.ConversationID, message)

	context.Respond(message)
}

func (a *ConversationActor) handleEditMessage(context actor.Context, msg *EditMessageMsg) {
	ctx := stdctx.Background()
	path := store.MessagePath(msg.ConversationID, msg.MessageID)

	var message models.Message
	if err := a.store.Get(ctx, path, &message); err != nil {
		context.Respond(err)
		return
	}

	fields := map[string]any{"content": msg.Content}
	if message.SenderID != msg.EditorID {
		admin, err := a.authority.IsAdmin(ctx, msg.EditorID)
		if err != nil {
			context.Respond(err)
			return
		}
		if !admin {
			context.Respond(utils.NewUnauthorizedError("not the message sender"))
			return
		}
		fields["editedByAdmin"] = msg.EditorID
	}

	if err := a.store.Patch(ctx, path, fields); err != nil {
		context.Respond(utils.NewTransientStoreError("edit message", err))
		return
	}
	context.Respond(&models.StatusResponse{Success: true, Message: "Message updated"})
}

func (a *ConversationActor) handleCensorMessage(context actor.Context, msg *CensorMessageMsg) {
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

	path := store.MessagePath(msg.ConversationID, msg.MessageID)
	var message models.Message
	if err := a.store.Get(ctx, path, &message); err != nil {
		context.Respond(err)
		return
	}

	err = a.store.Patch(ctx, path, map[string]any{
		"censored":     true,
		"censorReason": msg.Reason,
	})
	if err != nil {
		context.Respond(utils.NewTransientStoreError("censor message", err))
		return
	}

	// The cached preview may be showing the censored text.
	if err := a.sync.ReconcilePreview(ctx, msg.ConversationID); err != nil {
		a.log.Warn("preview reconcile after censor failed", "conversation", msg.ConversationID, "error", err)
	}
	context.Respond(&models.StatusResponse{Success: true, Message: "Message censored"})
}

func (a *ConversationActor) handleDeleteMessage(context actor.Context, msg *DeleteMessageMsg) {
	ctx := stdctx.Background()
	path := store.MessagePath(msg.ConversationID, msg.MessageID)

	var message models.Message
	if err := a.store.Get(ctx, path, &message); err != nil {
		context.Respond(err)
		return
	}

	if message.SenderID != msg.RequesterID {
		admin, err := a.authority.IsAdmin(ctx, msg.RequesterID)
		if err != nil {
			context.Respond(err)
			return
		}
		if !admin {
			context.Respond(utils.NewUnauthorizedError("not the message sender"))
			return
		}
	}

	if err := a.store.Delete(ctx, path); err != nil {
		context.Respond(utils.NewTransientStoreError("delete message", err))
		return
	}

	// Deleting the previewed message invalidates the cache; recompute
	// from the remaining latest message (or clear when none remain).
	if err := a.sync.ReconcilePreview(ctx, msg.ConversationID); err != nil {
		a.log.Warn("preview reconcile after delete failed", "conversation", msg.ConversationID, "error", err)
	}
	context.Respond(&models.StatusResponse{Success: true, Message: "Message deleted"})
}

func (a *ConversationActor) handleMarkRead(context actor.Context, msg *MarkReadMsg) {
	ctx := stdctx.Background()

	if _, err := a.memberConversation(ctx, msg.ConversationID, msg.ReaderID); err != nil {
		context.Respond(err)
		return
	}

	path := store.MessagePath(msg.ConversationID, msg.MessageID)
	var message models.Message
	if err := a.store.Get(ctx, path, &message); err != nil {
		context.Respond(err)
		return
	}
	if message.SenderID == msg.ReaderID || message.IsRead {
		context.Respond(&models.StatusResponse{Success: true})
		return
	}

	err := a.store.Patch(ctx, path, map[string]any{
		"isRead": true,
		"readAt": store.ServerTimestamp(),
	})
	if err != nil {
		context.Respond(utils.NewTransientStoreError("mark read", err))
		return
	}
	context.Respond(&models.StatusResponse{Success: true})
}

func (a *ConversationActor) handleDeleteConversation(context actor.Context, msg *DeleteConversationMsg) {
	ctx := stdctx.Background()

	conversation, err := a.memberConversation(ctx, msg.ConversationID, msg.RequesterID)
	if err != nil {
		// Admins may delete conversations they are not part of.
		if utils.IsErrorCode(err, utils.ErrUnauthorized) {
			admin, adminErr := a.authority.IsAdmin(ctx, msg.RequesterID)
			if adminErr != nil || !admin {
				context.Respond(err)
				return
			}
			conversation = &models.Conversation{ID: msg.ConversationID}
		} else {
			context.Respond(err)
			return
		}
	}

	if err := a.store.Delete(ctx, store.ConversationPath(conversation.ID)); err != nil {
		context.Respond(utils.NewTransientStoreError("delete conversation", err))
		return
	}

	snaps, err := a.store.Query(ctx, store.Query{Collection: store.ConversationMessagesCollection(msg.ConversationID)})
	if err != nil {
		a.log.Warn("orphaned messages after conversation delete", "conversation", msg.ConversationID, "error", err)
	} else {
		for _, snap := range snaps {
			if err := a.store.Delete(ctx, snap.Path); err != nil {
				a.log.Warn("message cleanup failed", "path", snap.Path, "error", err)
			}
		}
	}
	context.Respond(&models.StatusResponse{Success: true, Message: "Conversation deleted"})
}

// memberConversation loads a conversation and rejects callers that are
// not participants, before any write is attempted.
func (a *ConversationActor) memberConversation(ctx stdctx.Context, conversationID, uid uuid.UUID) (*models.Conversation, error) {
	var conversation models.Conversation
	if err := a.store.Get(ctx, store.ConversationPath(conversationID), &conversation); err != nil {
		return nil, err
	}
	if !conversation.HasParticipant(uid) {
		return nil, utils.NewUnauthorizedError("not a conversation participant")
	}
	return &conversation, nil
}
