// Package moderation is the read-side censorship and attribution overlay.
// Rendering never mutates the underlying record and never erases censored
// content: the original stays in the record's shadow fields for audit
// tooling, it just never leaves through a View.
package moderation

import (
	"bayou/internal/models"
)

// RedactionPlaceholder replaces the content of censored records in every
// rendered view.
const RedactionPlaceholder = "[removed by moderator]"

// Badge names attached to rendered records.
const (
	BadgeCensored       = "censored"
	BadgeModeratorEdit  = "edited by moderator"
	BadgeSystemAuthored = "system"
)

// View is the renderable form of a comment or message.
type View struct {
	DisplayContent string
	Badges         []string
}

// ThreadView is the renderable form of a thread.
type ThreadView struct {
	DisplayTitle string
	DisplayBody  string
	Badges       []string
}

// RenderComment applies the overlay to one comment.
func RenderComment(c *models.Comment) View {
	v := View{DisplayContent: c.Content}
	if c.Censored {
		v.DisplayContent = redacted(c.CensorReason)
		v.Badges = append(v.Badges, BadgeCensored)
	}
	// Attribution is stamped at write time. A moderator editing their own
	// comment never sets EditedByAdmin, so self-edits are not flagged.
	if c.EditedByAdmin != nil {
		v.Badges = append(v.Badges, BadgeModeratorEdit)
	}
	return v
}

// RenderMessage applies the overlay to one message.
func RenderMessage(m *models.Message) View {
	v := View{DisplayContent: m.Content}
	if m.Censored {
		v.DisplayContent = redacted(m.CensorReason)
		v.Badges = append(v.Badges, BadgeCensored)
	}
	if m.EditedByAdmin != nil {
		v.Badges = append(v.Badges, BadgeModeratorEdit)
	}
	return v
}

// RenderThread applies the overlay to one thread. A set EditedBy that
// differs from the author marks a moderator edit; equal ids are a normal
// self-edit and carry no badge.
func RenderThread(t *models.Thread) ThreadView {
	v := ThreadView{DisplayTitle: t.Title, DisplayBody: t.Body}
	if t.Censored {
		v.DisplayTitle = RedactionPlaceholder
		v.DisplayBody = redacted(t.CensorReason)
		v.Badges = append(v.Badges, BadgeCensored)
	}
	if t.EditedBy != nil && (t.AuthorID == nil || *t.EditedBy != *t.AuthorID) {
		v.Badges = append(v.Badges, BadgeModeratorEdit)
	}
	if t.AuthorID == nil {
		v.Badges = append(v.Badges, BadgeSystemAuthored)
	}
	return v
}

func redacted(reason string) string {
	if reason == "" {
		return RedactionPlaceholder
	}
	return RedactionPlaceholder + ": " + reason
}
