// Package domain contains the core concepts of the news distribution system.
// A NewsItem is the unit of content; its AuthorID is stamped by the server
// from the authenticated connection and never taken from the client.
package domain

import (
	"time"
)

// NewsItem is a published news record. Once persisted, AuthorID is
// immutable: only the owning author may update or delete the item.
type NewsItem struct {
	DocumentID  string    `json:"documentId"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Category    string    `json:"category"`
	PublishDate time.Time `json:"publishDate"`
	AuthorID    string    `json:"authorId"`
}

// Merge returns a copy of the item with the non-nil fields of the patch
// applied. Fields omitted by the client keep their existing value, so a
// partial update can never blank out a record.
func (n NewsItem) Merge(patch NewsPatch) NewsItem {
	if patch.Title != nil {
		n.Title = *patch.Title
	}
	if patch.Content != nil {
		n.Content = *patch.Content
	}
	if patch.Category != nil {
		n.Category = *patch.Category
	}
	if patch.PublishDate != nil {
		n.PublishDate = patch.PublishDate.UTC()
	}
	return n
}

// NewsPatch carries the optional fields of an update command.
// A nil pointer means "keep the stored value".
type NewsPatch struct {
	Title       *string
	Content     *string
	Category    *string
	PublishDate *time.Time
}
