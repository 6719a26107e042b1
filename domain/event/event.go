// Package event defines the server-to-client events produced by the
// dispatcher. Events addressed to a single connection are written back
// directly; mutation events go through the fanout engine.
package event

import "news-lab/domain"

type Event interface {
	Kind() string
}

type Subscribed struct{}

func (Subscribed) Kind() string { return "subscribed" }

type NewsList struct {
	News []domain.NewsItem
}

func (NewsList) Kind() string { return "newsList" }

// NewsPublished announces a freshly created item. On the wire it is a
// "news" frame carrying action "publish", as the original clients expect.
type NewsPublished struct {
	Item domain.NewsItem
}

func (NewsPublished) Kind() string { return "news" }

type NewsUpdated struct {
	Item domain.NewsItem
}

func (NewsUpdated) Kind() string { return "update" }

type NewsDeleted struct {
	DocumentID string
}

func (NewsDeleted) Kind() string { return "delete" }

type Pong struct{}

func (Pong) Kind() string { return "pong" }

type Error struct {
	Message string
}

func (Error) Kind() string { return "error" }
