package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"bayou/internal/engine/actors"
	"bayou/internal/middleware"
	"bayou/internal/utils"
)

// CreateThreadRequest represents a request to open a new thread
type CreateThreadRequest struct {
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
}

// CommentRequest represents a request to post or edit a comment
type CommentRequest struct {
	ThreadID  string `json:"threadId"`
	CommentID string `json:"commentId,omitempty"`
	ParentID  string `json:"parentCommentId,omitempty"`
	Content   string `json:"content"`
}

// ReactionRequest represents a reaction toggle on a comment
type ReactionRequest struct {
	ThreadID  string `json:"threadId"`
	CommentID string `json:"commentId"`
	Symbol    string `json:"symbol"`
}

// CensorRequest represents a moderation action on a thread or comment
type CensorRequest struct {
	ThreadID  string `json:"threadId"`
	CommentID string `json:"commentId,omitempty"`
	Reason    string `json:"reason"`
}

// HandleThreads handles thread listing and creation
func (s *Server) HandleThreads() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			limit := 0
			if raw := r.URL.Query().Get("limit"); raw != "" {
				parsed, err := strconv.Atoi(raw)
				if err != nil || parsed < 0 {
					s.respondError(w, utils.NewAppError(utils.ErrInvalidInput, "invalid limit", err))
					return
				}
				limit = parsed
			}
			result, err := s.ask(s.Engine.GetThreadActor(), &actors.ListThreadsMsg{
				Category: r.URL.Query().Get("category"),
				Limit:    limit,
			})
			if err != nil {
				s.respondError(w, err)
				return
			}
			s.respondJSON(w, http.StatusOK, result)

		case http.MethodPost:
			identity, ok := middleware.GetIdentityFromContext(r.Context())
			if !ok {
				s.respondError(w, utils.NewUnauthorizedError("missing identity"))
				return
			}
			var req CreateThreadRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				s.respondError(w, utils.NewAppError(utils.ErrInvalidInput, "invalid request body", err))
				return
			}
			authorID := identity.UID
			result, err := s.ask(s.Engine.GetThreadActor(), &actors.CreateThreadMsg{
				Title:    req.Title,
				Body:     req.Body,
				AuthorID: &authorID,
				Category: req.Category,
				Tags:     req.Tags,
			})
			if err != nil {
				s.respondError(w, err)
				return
			}
			s.respondJSON(w, http.StatusCreated, result)

		case http.MethodDelete:
			identity, ok := middleware.GetIdentityFromContext(r.Context())
			if !ok {
				s.respondError(w, utils.NewUnauthorizedError("missing identity"))
				return
			}
			threadID, err := uuid.Parse(r.URL.Query().Get("id"))
			if err != nil {
				s.respondError(w, utils.NewAppError(utils.ErrInvalidInput, "invalid thread ID", err))
				return
			}
			result, err := s.ask(s.Engine.GetThreadActor(), &actors.DeleteThreadMsg{
				ThreadID:    threadID,
				RequesterID: identity.UID,
			})
			if err != nil {
				s.respondError(w, err)
				return
			}
			s.respondJSON(w, http.StatusOK, result)

		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

// HandleThreadView returns a single thread rendered with its reply tree
func (s *Server) HandleThreadView() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		identity, ok := middleware.GetIdentityFromContext(r.Context())
		if !ok {
			s.respondError(w, utils.NewUnauthorizedError("missing identity"))
			return
		}
		threadID, err := uuid.Parse(r.URL.Query().Get("id"))
		if err != nil {
			s.respondError(w, utils.NewAppError(utils.ErrInvalidInput, "invalid thread ID", err))
			return
		}
		result, err := s.ask(s.Engine.GetThreadActor(), &actors.GetThreadViewMsg{
			ThreadID: threadID,
			ViewerID: identity.UID,
		})
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, result)
	}
}

// HandleComment handles comment creation, editing and deletion
func (s *Server) HandleComment() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := middleware.GetIdentityFromContext(r.Context())
		if !ok {
			s.respondError(w, utils.NewUnauthorizedError("missing identity"))
			return
		}

		var req CommentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, utils.NewAppError(utils.ErrInvalidInput, "invalid request body", err))
			return
		}
		threadID, err := uuid.Parse(req.ThreadID)
		if err != nil {
			s.respondError(w, utils.NewAppError(utils.ErrInvalidInput, "invalid thread ID", err))
			return
		}

		switch r.Method {
		case http.MethodPost:
			var parentID *uuid.UUID
			if req.ParentID != "" {
				parsed, err := uuid.Parse(req.ParentID)
				if err != nil {
					s.respondError(w, utils.NewAppError(utils.ErrInvalidInput, "invalid parent comment ID", err))
					return
				}
				parentID = &parsed
			}
			result, err := s.ask(s.Engine.GetThreadActor(), &actors.PostCommentMsg{
				ThreadID: threadID,
				ParentID: parentID,
				Content:  req.Content,
				AuthorID: identity.UID,
			})
			if err != nil {
				s.respondError(w, err)
				return
			}
			s.respondJSON(w, http.StatusCreated, result)

		case http.MethodPut:
			commentID, err := uuid.Parse(req.CommentID)
			if err != nil {
				s.respondError(w, utils.NewAppError(utils.ErrInvalidInput, "invalid comment ID", err))
				return
			}
			result, err := s.ask(s.Engine.GetThreadActor(), &actors.EditCommentMsg{
				ThreadID:  threadID,
				CommentID: commentID,
				EditorID:  identity.UID,
				Content:   req.Content,
			})
			if err != nil {
				s.respondError(w, err)
				return
			}
			s.respondJSON(w, http.StatusOK, result)

		case http.MethodDelete:
			commentID, err := uuid.Parse(req.CommentID)
			if err != nil {
				s.respondError(w, utils.NewAppError(utils.ErrInvalidInput, "invalid comment ID", err))
				return
			}
			result, err := s.ask(s.Engine.GetThreadActor(), &actors.DeleteCommentMsg{
				ThreadID:    threadID,
				CommentID:   commentID,
				RequesterID: identity.UID,
			})
			if err != nil {
				s.respondError(w, err)
				return
			}
			s.respondJSON(w, http.StatusOK, result)

		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

// HandleReaction toggles a reaction symbol on a comment
func (s *Server) HandleReaction() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		identity, ok := middleware.GetIdentityFromContext(r.Context())
		if !ok {
			s.respondError(w, utils.NewUnauthorizedError("missing identity"))
			return
		}
		var req ReactionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, utils.NewAppError(utils.ErrInvalidInput, "invalid request body", err))
			return
		}
		threadID, err := uuid.Parse(req.ThreadID)
		if err != nil {
			s.respondError(w, utils.NewAppError(utils.ErrInvalidInput, "invalid thread ID", err))
			return
		}
		commentID, err := uuid.Parse(req.CommentID)
		if err != nil {
			s.respondError(w, utils.NewAppError(utils.ErrInvalidInput, "invalid comment ID", err))
			return
		}
		result, err := s.ask(s.Engine.GetThreadActor(), &actors.ToggleReactionMsg{
			ThreadID:  threadID,
			CommentID: commentID,
			UserID:    identity.UID,
			Symbol:    req.Symbol,
		})
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, result)
	}
}

// HandleCensor applies a moderation redaction to a thread or, when a
// comment ID is present, to a single comment
func (s *Server) HandleCensor() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		identity, ok := middleware.GetIdentityFromContext(r.Context())
		if !ok {
			s.respondError(w, utils.NewUnauthorizedError("missing identity"))
			return
		}
		var req CensorRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, utils.NewAppError(utils.ErrInvalidInput, "invalid request body", err))
			return
		}
		threadID, err := uuid.Parse(req.ThreadID)
		if err != nil {
			s.respondError(w, utils.NewAppError(utils.ErrInvalidInput, "invalid thread ID", err))
			return
		}

		var msg any
		if req.CommentID != "" {
			commentID, err := uuid.Parse(req.CommentID)
			if err != nil {
				s.respondError(w, utils.NewAppError(utils.ErrInvalidInput, "invalid comment ID", err))
				return
			}
			msg = &actors.CensorCommentMsg{
				ThreadID:  threadID,
				CommentID: commentID,
				AdminID:   identity.UID,
				Reason:    req.Reason,
			}
		} else {
			msg = &actors.CensorThreadMsg{
				ThreadID: threadID,
				AdminID:  identity.UID,
				Reason:   req.Reason,
			}
		}

		result, err := s.ask(s.Engine.GetThreadActor(), msg)
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, result)
	}
}
