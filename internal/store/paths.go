package store

import "github.com/google/uuid"

// Persisted layout. Collections named here are the only ones the engine
// touches.
const (
	ThreadsCollection       = "threads"
	ConversationsCollection = "conversations"
	WhitelistCollection     = "admin_whitelist"
	ProfilesCollection      = "profiles"
)

func ThreadPath(threadID uuid.UUID) string {
	return ThreadsCollection + "/" + threadID.String()
}

func ThreadCommentsCollection(threadID uuid.UUID) string {
	return ThreadPath(threadID) + "/comments"
}

func CommentPath(threadID, commentID uuid.UUID) string {
	return ThreadCommentsCollection(threadID) + "/" + commentID.String()
}

func ConversationPath(conversationID uuid.UUID) string {
	return ConversationsCollection + "/" + conversationID.String()
}

func ConversationMessagesCollection(conversationID uuid.UUID) string {
	return ConversationPath(conversationID) + "/messages"
}

func MessagePath(conversationID, messageID uuid.UUID) string {
	return ConversationMessagesCollection(conversationID) + "/" + messageID.String()
}

func WhitelistPath(uid uuid.UUID) string {
	return WhitelistCollection + "/" + uid.String()
}

func ProfilePath(uid uuid.UUID) string {
	return ProfilesCollection + "/" + uid.String()
}
