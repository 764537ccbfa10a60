package moderation

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"bayou/internal/models"
)

func TestRenderCommentCensored(t *testing.T) {
	c := &models.Comment{
		ID:           uuid.New(),
		Content:      "rude remark",
		Censored:     true,
		CensorReason: "harassment",
	}
	v := RenderComment(c)

	assert.Equal(t, RedactionPlaceholder+": harassment", v.DisplayContent)
	assert.Contains(t, v.Badges, BadgeCensored)
	// The original text never leaks through the rendered view.
	assert.NotContains(t, v.DisplayContent, "rude remark")
	// And the record itself stays untouched for audit tooling.
	assert.Equal(t, "rude remark", c.Content)
}

func TestRenderCommentCensoredWithoutReason(t *testing.T) {
	v := RenderComment(&models.Comment{Content: "x", Censored: true})
	assert.Equal(t, RedactionPlaceholder, v.DisplayContent)
}

func TestRenderCommentModeratorEdit(t *testing.T) {
	admin := uuid.New()
	v := RenderComment(&models.Comment{
		Content:       "toned down",
		EditedByAdmin: &admin,
	})
	assert.Equal(t, "toned down", v.DisplayContent)
	assert.Equal(t, []string{BadgeModeratorEdit}, v.Badges)
}

func TestRenderCommentPlain(t *testing.T) {
	v := RenderComment(&models.Comment{Content: "hello"})
	assert.Equal(t, "hello", v.DisplayContent)
	assert.Empty(t, v.Badges)
}

func TestRenderMessageCensoredAndEdited(t *testing.T) {
	admin := uuid.New()
	v := RenderMessage(&models.Message{
		Content:       "secret",
		Censored:      true,
		CensorReason:  "doxxing",
		EditedByAdmin: &admin,
	})
	assert.True(t, strings.HasPrefix(v.DisplayContent, RedactionPlaceholder))
	assert.Equal(t, []string{BadgeCensored, BadgeModeratorEdit}, v.Badges)
}

func TestRenderThreadCensored(t *testing.T) {
	author := uuid.New()
	th := &models.Thread{
		Title:        "original title",
		Body:         "original body",
		AuthorID:     &author,
		Censored:     true,
		CensorReason: "spam",
		ShadowTitle:  "original title",
		ShadowBody:   "original body",
	}
	v := RenderThread(th)

	assert.Equal(t, RedactionPlaceholder, v.DisplayTitle)
	assert.Equal(t, RedactionPlaceholder+": spam", v.DisplayBody)
	assert.Contains(t, v.Badges, BadgeCensored)
	// Shadow copies exist on the record but are never rendered.
	assert.NotContains(t, v.DisplayTitle, "original")
	assert.NotContains(t, v.DisplayBody, "original")
}

func TestRenderThreadSelfEditUnflagged(t *testing.T) {
	author := uuid.New()
	v := RenderThread(&models.Thread{
		Title:    "t",
		Body:     "b",
		AuthorID: &author,
		EditedBy: &author,
	})
	assert.Empty(t, v.Badges)
}

func TestRenderThreadModeratorEdit(t *testing.T) {
	author := uuid.New()
	admin := uuid.New()
	v := RenderThread(&models.Thread{
		Title:    "t",
		Body:     "b",
		AuthorID: &author,
		EditedBy: &admin,
	})
	assert.Equal(t, []string{BadgeModeratorEdit}, v.Badges)
}

func TestRenderThreadSystemAuthored(t *testing.T) {
	v := RenderThread(&models.Thread{Title: "announcement", Body: "b"})
	assert.Contains(t, v.Badges, BadgeSystemAuthored)
}
