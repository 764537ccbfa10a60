package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"bayou/internal/engine/actors"
	"bayou/internal/middleware"
	"bayou/internal/utils"
)

// CreateConversationRequest represents a request to start a conversation.
// A conversation whose only participant is the creator acts as a private
// notes space.
type CreateConversationRequest struct {
	Participants []string `json:"participants"`
	Name         string   `json:"name,omitempty"`
}

// MessageRequest represents a request to send, edit or delete a message
type MessageRequest struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId,omitempty"`
	Content        string `json:"content,omitempty"`
}

// CensorMessageRequest represents a moderation action on a message
type CensorMessageRequest struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	Reason         string `json:"reason"`
}

// HandleConversations handles conversation listing and creation
func (s *Server) HandleConversations() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := middleware.GetIdentityFromContext(r.Context())
		if !ok {
			s.respondError(w, utils.NewUnauthorizedError("missing identity"))
			return
		}

		switch r.Method {
		case http.MethodGet:
			result, err := s.ask(s.Engine.GetConversationActor(), &actors.ListConversationsMsg{
				UserID: identity.UID,
			})
			if err != nil {
				s.respondError(w, err)
				return
			}
			s.respondJSON(w, http.StatusOK, result)

		case http.MethodPost:
			var req CreateConversationRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				s.respondError(w, utils.NewAppError(utils.ErrInvalidInput, "invalid request body", err))
				return
			}
			participants := make([]uuid.UUID, 0, len(req.Participants))
			for _, raw := range req.Participants {
				parsed, err := uuid.Parse(raw)
				if err != nil {
					s.respondError(w, utils.NewAppError(utils.ErrInvalidInput, "invalid participant ID", err))
					return
				}
				participants = append(participants, parsed)
			}
			result, err := s.ask(s.Engine.GetConversationActor(), &actors.CreateConversationMsg{
				CreatorID:    identity.UID,
				Participants: participants,
				Name:         req.Name,
			})
			if err != nil {
				s.respondError(w, err)
				return
			}
			s.respondJSON(w, http.StatusCreated, result)

		case http.MethodDelete:
			conversationID, err := uuid.Parse(r.URL.Query().Get("id"))
			if err != nil {
				s.respondError(w, utils.NewAppError(utils.ErrInvalidInput, "invalid conversation ID", err))
				return
			}
			result, err := s.ask(s.Engine.GetConversationActor(), &actors.DeleteConversationMsg{
				ConversationID: conversationID,
				RequesterID:    identity.UID,
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

// HandleConversationView returns one conversation with its rendered
// messages and the viewer's unread count
func (s *Server) HandleConversationView() http.HandlerFunc {
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
		conversationID, err := uuid.Parse(r.URL.Query().Get("id"))
		if err != nil {
			s.respondError(w, utils.NewAppError(utils.ErrInvalidInput, "invalid conversation ID", err))
			return
		}
		result, err := s.ask(s.Engine.GetConversationActor(), &actors.GetConversationViewMsg{
			ConversationID: conversationID,
			ViewerID:       identity.UID,
		})
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, result)
	}
}

// HandleMessage handles sending, editing and deleting messages
func (s *Server) HandleMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := middleware.GetIdentityFromContext(r.Context())
		if !ok {
			s.respondError(w, utils.NewUnauthorizedError("missing identity"))
			return
		}

		var req MessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, utils.NewAppError(utils.ErrInvalidInput, "invalid request body", err))
			return
		}
		conversationID, err := uuid.Parse(req.ConversationID)
		if err != nil {
			s.respondError(w, utils.NewAppError(utils.ErrInvalidInput, "invalid conversation ID", err))
			return
		}

		switch r.Method {
		case http.MethodPost:
			result, err := s.ask(s.Engine.GetConversationActor(), &actors.SendMessageMsg{
				ConversationID: conversationID,
				SenderID:       identity.UID,
				Content:        req.Content,
			})
			if err != nil {
				s.respondError(w, err)
				return
			}
			s.respondJSON(w, http.StatusCreated, result)

		case http.MethodPut:
			messageID, err := uuid.Parse(req.MessageID)
			if err != nil {
				s.respondError(w, utils.NewAppError(utils.ErrInvalidInput, "invalid message ID", err))
				return
			}
			result, err := s.ask(s.Engine.GetConversationActor(), &actors.EditMessageMsg{
				ConversationID: conversationID,
				MessageID:      messageID,
				EditorID:       identity.UID,
				Content:        req.Content,
			})
			if err != nil {
				s.respondError(w, err)
				return
			}
			s.respondJSON(w, http.StatusOK, result)

		case http.MethodDelete:
			messageID, err := uuid.Parse(req.MessageID)
			if err != nil {
				s.respondError(w, utils.NewAppError(utils.ErrInvalidInput, "invalid message ID", err))
				return
			}
			result, err := s.ask(s.Engine.GetConversationActor(), &actors.DeleteMessageMsg{
				ConversationID: conversationID,
				MessageID:      messageID,
				RequesterID:    identity.UID,
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

// HandleMarkRead records that the caller has read a message
func (s *Server) HandleMarkRead() http.HandlerFunc {
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
		var req MessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, utils.NewAppError(utils.ErrInvalidInput, "invalid request body", err))
			return
		}
		conversationID, err := uuid.Parse(req.ConversationID)
		if err != nil {
			s.respondError(w, utils.NewAppError(utils.ErrInvalidInput, "invalid conversation ID", err))
			return
		}
		messageID, err := uuid.Parse(req.MessageID)
		if err != nil {
			s.respondError(w, utils.NewAppError(utils.ErrInvalidInput, "invalid message ID", err))
			return
		}
		result, err := s.ask(s.Engine.GetConversationActor(), &actors.MarkReadMsg{
			ConversationID: conversationID,
			MessageID:      messageID,
			ReaderID:       identity.UID,
		})
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, result)
	}
}

// HandleCensorMessage applies a moderation redaction to a message
func (s *Server) HandleCensorMessage() http.HandlerFunc {
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
		var req CensorMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, utils.NewAppError(utils.ErrInvalidInput, "invalid request body", err))
			return
		}
		conversationID, err := uuid.Parse(req.ConversationID)
		if err != nil {
			s.respondError(w, utils.NewAppError(utils.ErrInvalidInput, "invalid conversation ID", err))
			return
		}
		messageID, err := uuid.Parse(req.MessageID)
		if err != nil {
			s.respondError(w, utils.NewAppError(utils.ErrInvalidInput, "invalid message ID", err))
			return
		}
		result, err := s.ask(s.Engine.GetConversationActor(), &actors.CensorMessageMsg{
			ConversationID: conversationID,
			MessageID:      messageID,
			AdminID:        identity.UID,
			Reason:         req.Reason,
		})
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, result)
	}
}
