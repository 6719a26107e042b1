//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"news-lab/domain"
	"news-lab/domain/event"
)

// NewsRepository is the gateway to the durable news store. Implementations
// carry no concurrency logic of their own; every failure is surfaced as an
// error wrapping errors.ErrStoreUnavailable so callers can report it
// without leaking the cause to clients.
type NewsRepository interface {
	// Add normalizes the id and publish date and returns the stored record.
	Add(ctx context.Context, item domain.NewsItem) (domain.NewsItem, error)
	// Replace is a full-record upsert; item.DocumentID must be non-empty.
	// Existence and ownership checks are the caller's responsibility.
	Replace(ctx context.Context, item domain.NewsItem) error
	// Delete is idempotent: deleting an absent id is a success.
	Delete(ctx context.Context, documentID string) error
	GetByID(ctx context.Context, documentID string) (domain.NewsItem, bool, error)
	// ListAll returns every item ordered by publish date descending.
	ListAll(ctx context.Context) ([]domain.NewsItem, error)
	// Search ranks items matching the query against the full-text index.
	Search(ctx context.Context, query string, limit int) ([]domain.NewsItem, error)
}

// Conn is one framed transport session. ReadFrame and WriteFrame carry a
// whole wire frame regardless of the underlying framing (newline-delimited
// stream or message-oriented transport). Close must be safe to call more
// than once.
type Conn interface {
	ReadFrame(ctx context.Context) ([]byte, error)
	WriteFrame(ctx context.Context, frame []byte) error
	Close() error
}

// Broadcaster delivers an event to every registered connection except the
// excluded one. It never reports failure to the caller; per-recipient
// errors tear down the failed connection only.
type Broadcaster interface {
	Broadcast(ctx context.Context, e event.Event, excludeConnectionID string)
}

// ConnHandler runs the full lifecycle of one accepted connection:
// registration, receive loop, deregistration. Both the TCP accept loop
// and the WebSocket endpoint hand their connections to the same handler.
type ConnHandler interface {
	HandleConn(ctx context.Context, conn Conn)
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself; the supervisor restarts it after a crash.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker,
// used for logging and supervision without manual naming in the interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
