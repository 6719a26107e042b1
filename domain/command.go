package domain

import "time"

// Command is the tagged union of everything a client can ask the server
// to do. The protocol codec decodes one wire frame into exactly one of
// the concrete types below; the dispatcher switches on them exhaustively.
type Command interface {
	Kind() string
}

type AuthCommand struct {
	UserID string `validate:"required_without=Token"`
	Token  string
}

func (AuthCommand) Kind() string { return "auth" }

type PublishCommand struct {
	DocumentID  string
	Title       string `validate:"required"`
	Content     string `validate:"required"`
	Category    string `validate:"required"`
	PublishDate *time.Time
}

func (PublishCommand) Kind() string { return "publish" }

type UpdateCommand struct {
	DocumentID string `validate:"required"`
	Patch      NewsPatch
}

func (UpdateCommand) Kind() string { return "update" }

type DeleteCommand struct {
	DocumentID string `validate:"required"`
}

func (DeleteCommand) Kind() string { return "delete" }

type SubscribeCommand struct{}

func (SubscribeCommand) Kind() string { return "subscribe" }

type GetAllNewsCommand struct{}

func (GetAllNewsCommand) Kind() string { return "getAllNews" }

type PingCommand struct{}

func (PingCommand) Kind() string { return "ping" }

type SearchCommand struct {
	Query string `validate:"required"`
}

func (SearchCommand) Kind() string { return "search" }
