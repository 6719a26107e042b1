// Package protocol converts raw wire frames to typed commands and typed
// events back to frames. One frame is a single JSON object; framing
// (newline-delimited stream or message-oriented transport) is owned by
// the transport layer, so the codec sees whole frames on both paths.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"news-lab/domain"
	"news-lab/domain/event"
	errs "news-lab/errors"
)

// wireFrame is the superset of every field appearing on the wire, in
// either direction. The "type" discriminator is matched case-insensitively
// because the original clients are not consistent about casing.
type wireFrame struct {
	Type        string     `json:"type"`
	Action      string     `json:"action,omitempty"`
	UserID      string     `json:"userId,omitempty"`
	Token       string     `json:"token,omitempty"`
	DocumentID  string     `json:"documentId,omitempty"`
	Title       *string    `json:"title,omitempty"`
	Content     *string    `json:"content,omitempty"`
	Category    *string    `json:"category,omitempty"`
	PublishDate string     `json:"publishDate,omitempty"`
	AuthorID    string     `json:"authorId,omitempty"`
	Query       string     `json:"query,omitempty"`
	Message     string     `json:"message,omitempty"`
	News        []wireItem `json:"news,omitempty"`
}

type wireItem struct {
	DocumentID  string `json:"documentId"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	Category    string `json:"category"`
	PublishDate string `json:"publishDate"`
	AuthorID    string `json:"authorId"`
}

type Codec struct {
	validate *validator.Validate
}

func NewCodec() *Codec {
	return &Codec{validate: validator.New()}
}

// DecodeCommand parses one frame into a typed command.
// Malformed JSON and unrecognized kinds yield ErrMalformedFrame and
// ErrUnknownKind respectively; both are meant to be logged and ignored.
// A recognized kind with missing required fields yields ErrValidation,
// which the dispatcher reports back to the sender only.
func (c *Codec) DecodeCommand(frame []byte) (domain.Command, error) {
	var f wireFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrMalformedFrame, err)
	}
	if f.Type == "" {
		return nil, fmt.Errorf("%w: missing type field", errs.ErrMalformedFrame)
	}

	var cmd domain.Command
	switch strings.ToLower(f.Type) {
	case "auth":
		cmd = domain.AuthCommand{UserID: f.UserID, Token: f.Token}
	case "publish":
		cmd = domain.PublishCommand{
			DocumentID:  f.DocumentID,
			Title:       lo.FromPtr(f.Title),
			Content:     lo.FromPtr(f.Content),
			Category:    lo.FromPtr(f.Category),
			PublishDate: parsePublishDate(f.PublishDate),
		}
	case "update":
		cmd = domain.UpdateCommand{
			DocumentID: f.DocumentID,
			Patch: domain.NewsPatch{
				Title:       f.Title,
				Content:     f.Content,
				Category:    f.Category,
				PublishDate: parsePublishDate(f.PublishDate),
			},
		}
	case "delete":
		cmd = domain.DeleteCommand{DocumentID: f.DocumentID}
	case "subscribe":
		cmd = domain.SubscribeCommand{}
	case "getallnews":
		cmd = domain.GetAllNewsCommand{}
	case "ping":
		cmd = domain.PingCommand{}
	case "search":
		cmd = domain.SearchCommand{Query: f.Query}
	default:
		return nil, fmt.Errorf("%w: %q", errs.ErrUnknownKind, f.Type)
	}

	if err := c.validate.Struct(cmd); err != nil {
		return nil, fmt.Errorf("%w: %s", errs.ErrValidation, missingFields(err))
	}
	return cmd, nil
}

// parsePublishDate is deliberately lenient: an absent or unparsable date
// returns nil and the dispatcher falls back to "now" on publish or to the
// stored value on update, matching the original behavior.
func parsePublishDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return lo.ToPtr(t.UTC())
}

func missingFields(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return "invalid fields"
	}
	fields := lo.Map(ve, func(fe validator.FieldError, _ int) string {
		return strings.ToLower(fe.Field()[:1]) + fe.Field()[1:]
	})
	return "missing or invalid field(s): " + strings.Join(fields, ", ")
}

// EncodeEvent serializes a server event into a single frame.
func (c *Codec) EncodeEvent(e event.Event) ([]byte, error) {
	var f wireFrame
	switch evt := e.(type) {
	case event.Subscribed:
		f = wireFrame{Type: "subscribed"}
	case event.NewsList:
		f = wireFrame{
			Type: "newsList",
			News: lo.Map(evt.News, func(item domain.NewsItem, _ int) wireItem {
				return toWireItem(item)
			}),
		}
	case event.NewsPublished:
		f = itemFrame("news", evt.Item)
		f.Action = "publish"
	case event.NewsUpdated:
		f = itemFrame("update", evt.Item)
	case event.NewsDeleted:
		f = wireFrame{Type: "delete", DocumentID: evt.DocumentID}
	case event.Pong:
		f = wireFrame{Type: "pong"}
	case event.Error:
		f = wireFrame{Type: "error", Message: evt.Message}
	default:
		return nil, fmt.Errorf("unencodable event kind %q", e.Kind())
	}
	return json.Marshal(f)
}

// EncodeCommand serializes a client command. The server never calls this;
// it exists for the terminal client and for tests driving a real socket.
func (c *Codec) EncodeCommand(cmd domain.Command) ([]byte, error) {
	var f wireFrame
	switch cm := cmd.(type) {
	case domain.AuthCommand:
		f = wireFrame{Type: "auth", UserID: cm.UserID, Token: cm.Token}
	case domain.PublishCommand:
		f = wireFrame{
			Type:        "publish",
			DocumentID:  cm.DocumentID,
			Title:       lo.ToPtr(cm.Title),
			Content:     lo.ToPtr(cm.Content),
			Category:    lo.ToPtr(cm.Category),
			PublishDate: formatPublishDate(cm.PublishDate),
		}
	case domain.UpdateCommand:
		f = wireFrame{
			Type:        "update",
			DocumentID:  cm.DocumentID,
			Title:       cm.Patch.Title,
			Content:     cm.Patch.Content,
			Category:    cm.Patch.Category,
			PublishDate: formatPublishDate(cm.Patch.PublishDate),
		}
	case domain.DeleteCommand:
		f = wireFrame{Type: "delete", DocumentID: cm.DocumentID}
	case domain.SubscribeCommand:
		f = wireFrame{Type: "subscribe"}
	case domain.GetAllNewsCommand:
		f = wireFrame{Type: "getAllNews"}
	case domain.PingCommand:
		f = wireFrame{Type: "ping"}
	case domain.SearchCommand:
		f = wireFrame{Type: "search", Query: cm.Query}
	default:
		return nil, fmt.Errorf("unencodable command kind %q", cmd.Kind())
	}
	return json.Marshal(f)
}

// DecodeEvent parses a server frame, for the terminal client and tests.
func (c *Codec) DecodeEvent(frame []byte) (event.Event, error) {
	var f wireFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrMalformedFrame, err)
	}
	switch strings.ToLower(f.Type) {
	case "subscribed":
		return event.Subscribed{}, nil
	case "newslist":
		return event.NewsList{
			News: lo.Map(f.News, func(item wireItem, _ int) domain.NewsItem {
				return fromWireItem(item)
			}),
		}, nil
	case "news":
		return event.NewsPublished{Item: frameItem(f)}, nil
	case "update":
		return event.NewsUpdated{Item: frameItem(f)}, nil
	case "delete":
		return event.NewsDeleted{DocumentID: f.DocumentID}, nil
	case "pong":
		return event.Pong{}, nil
	case "error":
		return event.Error{Message: f.Message}, nil
	default:
		return nil, fmt.Errorf("%w: %q", errs.ErrUnknownKind, f.Type)
	}
}

func itemFrame(kind string, item domain.NewsItem) wireFrame {
	return wireFrame{
		Type:        kind,
		DocumentID:  item.DocumentID,
		Title:       lo.ToPtr(item.Title),
		Content:     lo.ToPtr(item.Content),
		Category:    lo.ToPtr(item.Category),
		PublishDate: item.PublishDate.UTC().Format(time.RFC3339),
		AuthorID:    item.AuthorID,
	}
}

func frameItem(f wireFrame) domain.NewsItem {
	item := domain.NewsItem{
		DocumentID: f.DocumentID,
		Title:      lo.FromPtr(f.Title),
		Content:    lo.FromPtr(f.Content),
		Category:   lo.FromPtr(f.Category),
		AuthorID:   f.AuthorID,
	}
	if t := parsePublishDate(f.PublishDate); t != nil {
		item.PublishDate = *t
	}
	return item
}

func toWireItem(item domain.NewsItem) wireItem {
	return wireItem{
		DocumentID:  item.DocumentID,
		Title:       item.Title,
		Content:     item.Content,
		Category:    item.Category,
		PublishDate: item.PublishDate.UTC().Format(time.RFC3339),
		AuthorID:    item.AuthorID,
	}
}

func fromWireItem(item wireItem) domain.NewsItem {
	out := domain.NewsItem{
		DocumentID: item.DocumentID,
		Title:      item.Title,
		Content:    item.Content,
		Category:   item.Category,
		AuthorID:   item.AuthorID,
	}
	if t := parsePublishDate(item.PublishDate); t != nil {
		out.PublishDate = *t
	}
	return out
}

func formatPublishDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
