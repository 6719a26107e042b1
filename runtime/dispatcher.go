package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/abadojack/whatlanggo"
	"github.com/samber/lo"

	"news-lab/auth"
	"news-lab/contract"
	"news-lab/domain"
	"news-lab/domain/event"
	errs "news-lab/errors"
	"news-lab/moderation"
	"news-lab/protocol"
)

// Client-facing error messages are fixed strings. Whatever the store or
// the token library actually said goes to the log, never onto the wire.
const (
	msgAuthRequired           = "authentication required"
	msgAuthFailed             = "authentication failed"
	msgNotFoundOrUnauthorized = "news not found or unauthorized"
	msgPublishFailed          = "publish failed"
	msgUpdateFailed           = "update failed"
	msgDeleteFailed           = "delete failed"
	msgInternalError          = "internal server error"
)

const searchResultLimit = 25

// Dispatcher is the per-connection state machine. A connection starts
// unauthenticated; a successful auth command binds a user id to it.
// publish/update/delete demand authentication and, for update/delete,
// ownership of the targeted item. Every per-command failure is converted
// into an error event to the sender only and never escapes the receive
// loop.
type Dispatcher struct {
	log         *slog.Logger
	repository  contract.NewsRepository
	broadcaster contract.Broadcaster
	codec       *protocol.Codec
	moderator   *moderation.Moderator
	verifier    *auth.Verifier // nil means trusted userId mode
}

func NewDispatcher(log *slog.Logger, repository contract.NewsRepository,
	broadcaster contract.Broadcaster, codec *protocol.Codec,
	moderator *moderation.Moderator, verifier *auth.Verifier) *Dispatcher {
	return &Dispatcher{
		log:         log,
		repository:  repository,
		broadcaster: broadcaster,
		codec:       codec,
		moderator:   moderator,
		verifier:    verifier,
	}
}

// HandleFrame decodes and executes one raw frame. The returned error is
// non-nil only when the sender's own transport failed; protocol and
// command errors are consumed here so the receive loop keeps reading.
func (d *Dispatcher) HandleFrame(ctx context.Context, conn *Connection, frame []byte) error {
	cmd, err := d.codec.DecodeCommand(frame)
	switch {
	case errors.Is(err, errs.ErrMalformedFrame), errors.Is(err, errs.ErrUnknownKind):
		d.log.Warn("Ignoring frame", "connection_id", conn.ID, "error", err)
		return nil
	case errors.Is(err, errs.ErrValidation):
		return d.reply(ctx, conn, event.Error{Message: err.Error()})
	case err != nil:
		d.log.Error("Unexpected decode failure", "connection_id", conn.ID, "error", err)
		return d.reply(ctx, conn, event.Error{Message: msgInternalError})
	}
	return d.Handle(ctx, conn, cmd)
}

// Handle executes a decoded command against the connection's current
// authentication state.
func (d *Dispatcher) Handle(ctx context.Context, conn *Connection, cmd domain.Command) error {
	d.log.Debug("Processing command", "kind", cmd.Kind(), "connection_id", conn.ID)

	switch c := cmd.(type) {
	case domain.AuthCommand:
		return d.handleAuth(ctx, conn, c)
	case domain.PublishCommand:
		return d.handlePublish(ctx, conn, c)
	case domain.UpdateCommand:
		return d.handleUpdate(ctx, conn, c)
	case domain.DeleteCommand:
		return d.handleDelete(ctx, conn, c)
	case domain.SubscribeCommand:
		if err := d.reply(ctx, conn, event.Subscribed{}); err != nil {
			return err
		}
		return d.sendNewsList(ctx, conn)
	case domain.GetAllNewsCommand:
		return d.sendNewsList(ctx, conn)
	case domain.PingCommand:
		return d.reply(ctx, conn, event.Pong{})
	case domain.SearchCommand:
		return d.handleSearch(ctx, conn, c)
	default:
		d.log.Warn("No handler for command kind", "kind", cmd.Kind())
		return nil
	}
}

func (d *Dispatcher) handleAuth(ctx context.Context, conn *Connection, cmd domain.AuthCommand) error {
	userID := cmd.UserID
	if d.verifier != nil {
		var err error
		userID, err = d.verifier.VerifyToken(cmd.Token)
		if err != nil {
			d.log.Warn("Token verification failed", "connection_id", conn.ID, "error", err)
			return d.reply(ctx, conn, event.Error{Message: msgAuthFailed})
		}
	}
	if userID == "" {
		return d.reply(ctx, conn, event.Error{Message: msgAuthFailed})
	}
	conn.Authenticate(userID)
	d.log.Info("Connection authenticated", "connection_id", conn.ID, "user_id", userID)
	return nil
}

func (d *Dispatcher) handlePublish(ctx context.Context, conn *Connection, cmd domain.PublishCommand) error {
	if !conn.Authenticated() {
		return d.reply(ctx, conn, event.Error{Message: msgAuthRequired})
	}

	publishDate := time.Now().UTC()
	if cmd.PublishDate != nil {
		publishDate = cmd.PublishDate.UTC()
	}

	title, content := d.censor(cmd.Title), d.censor(cmd.Content)
	item := domain.NewsItem{
		DocumentID:  cmd.DocumentID,
		Title:       title,
		Content:     content,
		Category:    cmd.Category,
		PublishDate: publishDate,
		AuthorID:    conn.UserID(),
	}

	stored, err := d.repository.Add(ctx, item)
	if err != nil {
		d.log.Error("Publish failed", "connection_id", conn.ID, "error", err)
		return d.reply(ctx, conn, event.Error{Message: msgPublishFailed})
	}

	lang := whatlanggo.Detect(stored.Content)
	d.log.Info("News published",
		"document_id", stored.DocumentID,
		"author_id", stored.AuthorID,
		"category", stored.Category,
		"lang", lang.Lang.Iso6391())

	d.broadcaster.Broadcast(ctx, event.NewsPublished{Item: stored}, "")
	return nil
}

func (d *Dispatcher) handleUpdate(ctx context.Context, conn *Connection, cmd domain.UpdateCommand) error {
	if !conn.Authenticated() {
		return d.reply(ctx, conn, event.Error{Message: msgAuthRequired})
	}

	existing, err := d.fetchOwned(ctx, conn, cmd.DocumentID)
	if err != nil {
		return d.rejectMutation(ctx, conn, err)
	}

	patch := cmd.Patch
	if patch.Title != nil {
		patch.Title = lo.ToPtr(d.censor(*patch.Title))
	}
	if patch.Content != nil {
		patch.Content = lo.ToPtr(d.censor(*patch.Content))
	}

	updated := existing.Merge(patch)
	if err := d.repository.Replace(ctx, updated); err != nil {
		d.log.Error("Update failed", "document_id", cmd.DocumentID, "error", err)
		return d.reply(ctx, conn, event.Error{Message: msgUpdateFailed})
	}

	d.broadcaster.Broadcast(ctx, event.NewsUpdated{Item: updated}, "")
	return nil
}

func (d *Dispatcher) handleDelete(ctx context.Context, conn *Connection, cmd domain.DeleteCommand) error {
	if !conn.Authenticated() {
		return d.reply(ctx, conn, event.Error{Message: msgAuthRequired})
	}

	if _, err := d.fetchOwned(ctx, conn, cmd.DocumentID); err != nil {
		return d.rejectMutation(ctx, conn, err)
	}

	if err := d.repository.Delete(ctx, cmd.DocumentID); err != nil {
		d.log.Error("Delete failed", "document_id", cmd.DocumentID, "error", err)
		return d.reply(ctx, conn, event.Error{Message: msgDeleteFailed})
	}

	d.broadcaster.Broadcast(ctx, event.NewsDeleted{DocumentID: cmd.DocumentID}, "")
	return nil
}

func (d *Dispatcher) handleSearch(ctx context.Context, conn *Connection, cmd domain.SearchCommand) error {
	items, err := d.repository.Search(ctx, cmd.Query, searchResultLimit)
	if err != nil {
		d.log.Error("Search failed", "connection_id", conn.ID, "error", err)
		return d.reply(ctx, conn, event.Error{Message: msgInternalError})
	}
	return d.reply(ctx, conn, event.NewsList{News: items})
}

func (d *Dispatcher) sendNewsList(ctx context.Context, conn *Connection) error {
	items, err := d.repository.ListAll(ctx)
	if err != nil {
		d.log.Error("Listing news failed", "connection_id", conn.ID, "error", err)
		return d.reply(ctx, conn, event.Error{Message: msgInternalError})
	}
	return d.reply(ctx, conn, event.NewsList{News: items})
}

// fetchOwned loads the item and checks the connection's user owns it.
// Absence and ownership mismatch are indistinguishable to the client; the
// same message covers both so the protocol leaks nothing about other
// authors' documents.
func (d *Dispatcher) fetchOwned(ctx context.Context, conn *Connection, documentID string) (domain.NewsItem, error) {
	existing, found, err := d.repository.GetByID(ctx, documentID)
	if err != nil {
		return domain.NewsItem{}, err
	}
	if !found {
		return domain.NewsItem{}, errs.ErrNotFound
	}
	if existing.AuthorID != conn.UserID() {
		return domain.NewsItem{}, errs.ErrUnauthorized
	}
	return existing, nil
}

func (d *Dispatcher) rejectMutation(ctx context.Context, conn *Connection, err error) error {
	if errors.Is(err, errs.ErrNotFound) || errors.Is(err, errs.ErrUnauthorized) {
		return d.reply(ctx, conn, event.Error{Message: msgNotFoundOrUnauthorized})
	}
	d.log.Error("Ownership check failed", "connection_id", conn.ID, "error", err)
	return d.reply(ctx, conn, event.Error{Message: msgInternalError})
}

func (d *Dispatcher) censor(text string) string {
	if d.moderator == nil {
		return text
	}
	censored, found := d.moderator.Censor(text)
	if len(found) > 0 {
		d.log.Info("Censored banned words", "count", len(found))
	}
	return censored
}

// reply writes an event to the sender only. A write failure means the
// sender's transport is gone; the receive loop tears the connection down.
func (d *Dispatcher) reply(ctx context.Context, conn *Connection, e event.Event) error {
	frame, err := d.codec.EncodeEvent(e)
	if err != nil {
		d.log.Error("Failed to encode reply", "kind", e.Kind(), "error", err)
		return nil
	}
	if err := conn.Send(ctx, frame); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrConnClosed, err)
	}
	return nil
}
