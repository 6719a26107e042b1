package runtime

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"news-lab/auth"
	"news-lab/domain"
	"news-lab/domain/event"
	"news-lab/mocks"
	"news-lab/moderation"
	"news-lab/protocol"
)

// fakeConn records every frame written to it so tests can assert on the
// exact event stream a client would observe.
type fakeConn struct {
	mu       sync.Mutex
	frames   [][]byte
	writeErr error
}

func (f *fakeConn) ReadFrame(_ context.Context) ([]byte, error) { return nil, io.EOF }

func (f *fakeConn) WriteFrame(_ context.Context, frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.frames = append(f.frames, append([]byte(nil), frame...))
	return nil
}

func (f *fakeConn) Close() error { return nil }

func (f *fakeConn) events(t *testing.T, codec *protocol.Codec) []event.Event {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]event.Event, 0, len(f.frames))
	for _, frame := range f.frames {
		e, err := codec.DecodeEvent(frame)
		require.NoError(t, err)
		out = append(out, e)
	}
	return out
}

type dispatcherFixture struct {
	dispatcher  *Dispatcher
	repository  *mocks.MockNewsRepository
	broadcaster *mocks.MockBroadcaster
	codec       *protocol.Codec
	transport   *fakeConn
	conn        *Connection
}

func newDispatcherFixture(t *testing.T, opts ...func(*Dispatcher)) *dispatcherFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockNewsRepository(ctrl)
	broadcaster := mocks.NewMockBroadcaster(ctrl)
	codec := protocol.NewCodec()
	log := logs.GetLoggerFromLevel(slog.LevelError)

	d := NewDispatcher(log, repo, broadcaster, codec, nil, nil)
	for _, opt := range opts {
		opt(d)
	}

	transport := &fakeConn{}
	return &dispatcherFixture{
		dispatcher:  d,
		repository:  repo,
		broadcaster: broadcaster,
		codec:       codec,
		transport:   transport,
		conn:        NewConnection(transport),
	}
}

func TestDispatcher_Publish_Unauthenticated(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t)

	// When a connection publishes without having authenticated
	err := f.dispatcher.Handle(context.Background(), f.conn, domain.PublishCommand{
		Title: "T", Content: "C", Category: "Gen",
	})
	req.NoError(err)

	// Then exactly one error goes to the sender and nothing is stored
	req.Equal([]event.Event{event.Error{Message: "authentication required"}},
		f.transport.events(t, f.codec))
}

func TestDispatcher_Publish_StampsAuthorAndBroadcasts(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t)
	ctx := context.Background()

	// Given an authenticated connection
	req.NoError(f.dispatcher.Handle(ctx, f.conn, domain.AuthCommand{UserID: "u1"}))

	published := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	stored := domain.NewsItem{
		DocumentID: "server-id", Title: "T", Content: "C", Category: "Gen",
		PublishDate: published, AuthorID: "u1",
	}
	f.repository.EXPECT().
		Add(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, item domain.NewsItem) (domain.NewsItem, error) {
			// The author comes from the connection, never from the frame
			req.Equal("u1", item.AuthorID)
			req.Equal(published, item.PublishDate)
			return stored, nil
		})
	f.broadcaster.EXPECT().Broadcast(gomock.Any(), event.NewsPublished{Item: stored}, "")

	// When it publishes with an explicit publish date
	err := f.dispatcher.Handle(ctx, f.conn, domain.PublishCommand{
		Title: "T", Content: "C", Category: "Gen", PublishDate: lo.ToPtr(published),
	})
	req.NoError(err)

	// Then the sender gets no direct reply; delivery happens via broadcast
	req.Empty(f.transport.events(t, f.codec))
}

func TestDispatcher_Publish_DefaultsPublishDateToNow(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t)
	ctx := context.Background()

	req.NoError(f.dispatcher.Handle(ctx, f.conn, domain.AuthCommand{UserID: "u1"}))

	f.repository.EXPECT().
		Add(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, item domain.NewsItem) (domain.NewsItem, error) {
			req.WithinDuration(time.Now().UTC(), item.PublishDate, 5*time.Second)
			return item, nil
		})
	f.broadcaster.EXPECT().Broadcast(gomock.Any(), gomock.Any(), "")

	err := f.dispatcher.Handle(ctx, f.conn, domain.PublishCommand{
		Title: "T", Content: "C", Category: "Gen",
	})
	req.NoError(err)
}

func TestDispatcher_Publish_StoreFailure(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t)
	ctx := context.Background()

	req.NoError(f.dispatcher.Handle(ctx, f.conn, domain.AuthCommand{UserID: "u1"}))

	f.repository.EXPECT().
		Add(gomock.Any(), gomock.Any()).
		Return(domain.NewsItem{}, io.ErrClosedPipe)

	err := f.dispatcher.Handle(ctx, f.conn, domain.PublishCommand{
		Title: "T", Content: "C", Category: "Gen",
	})
	req.NoError(err)

	// The wire message is fixed; the underlying error stays in the log
	req.Equal([]event.Event{event.Error{Message: "publish failed"}},
		f.transport.events(t, f.codec))
}

func TestDispatcher_Publish_CensorsBannedWords(t *testing.T) {
	req := require.New(t)
	moderator, err := moderation.NewModerator([]string{"idiot"}, '*')
	req.NoError(err)
	f := newDispatcherFixture(t, func(d *Dispatcher) { d.moderator = moderator })
	ctx := context.Background()

	req.NoError(f.dispatcher.Handle(ctx, f.conn, domain.AuthCommand{UserID: "u1"}))

	f.repository.EXPECT().
		Add(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, item domain.NewsItem) (domain.NewsItem, error) {
			req.Equal("Some *****", item.Title)
			req.Equal("What an *****!", item.Content)
			return item, nil
		})
	f.broadcaster.EXPECT().Broadcast(gomock.Any(), gomock.Any(), "")

	err = f.dispatcher.Handle(ctx, f.conn, domain.PublishCommand{
		Title: "Some idiot", Content: "What an idiot!", Category: "Gen",
	})
	req.NoError(err)
}

func TestDispatcher_Update_MergesPartialPatch(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t)
	ctx := context.Background()

	req.NoError(f.dispatcher.Handle(ctx, f.conn, domain.AuthCommand{UserID: "u1"}))

	existing := domain.NewsItem{
		DocumentID: "d1", Title: "Old", Content: "Keep me", Category: "Gen",
		PublishDate: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), AuthorID: "u1",
	}
	merged := existing
	merged.Title = "New"

	f.repository.EXPECT().GetByID(gomock.Any(), "d1").Return(existing, true, nil)
	f.repository.EXPECT().Replace(gomock.Any(), merged).Return(nil)
	f.broadcaster.EXPECT().Broadcast(gomock.Any(), event.NewsUpdated{Item: merged}, "")

	err := f.dispatcher.Handle(ctx, f.conn, domain.UpdateCommand{
		DocumentID: "d1",
		Patch:      domain.NewsPatch{Title: lo.ToPtr("New")},
	})
	req.NoError(err)
	req.Empty(f.transport.events(t, f.codec))
}

func TestDispatcher_Update_RejectedForNonOwner(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t)
	ctx := context.Background()

	req.NoError(f.dispatcher.Handle(ctx, f.conn, domain.AuthCommand{UserID: "u2"}))

	someoneElses := domain.NewsItem{DocumentID: "d1", AuthorID: "u1"}
	f.repository.EXPECT().GetByID(gomock.Any(), "d1").Return(someoneElses, true, nil)

	err := f.dispatcher.Handle(ctx, f.conn, domain.UpdateCommand{
		DocumentID: "d1",
		Patch:      domain.NewsPatch{Title: lo.ToPtr("hijack")},
	})
	req.NoError(err)

	// Same message as "not found": the protocol does not reveal whether
	// the document exists
	req.Equal([]event.Event{event.Error{Message: "news not found or unauthorized"}},
		f.transport.events(t, f.codec))
}

func TestDispatcher_Delete_OwnerBroadcasts(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t)
	ctx := context.Background()

	req.NoError(f.dispatcher.Handle(ctx, f.conn, domain.AuthCommand{UserID: "u1"}))

	owned := domain.NewsItem{DocumentID: "d1", AuthorID: "u1"}
	f.repository.EXPECT().GetByID(gomock.Any(), "d1").Return(owned, true, nil)
	f.repository.EXPECT().Delete(gomock.Any(), "d1").Return(nil)
	f.broadcaster.EXPECT().Broadcast(gomock.Any(), event.NewsDeleted{DocumentID: "d1"}, "")

	err := f.dispatcher.Handle(ctx, f.conn, domain.DeleteCommand{DocumentID: "d1"})
	req.NoError(err)
}

func TestDispatcher_Delete_MissingDocument(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t)
	ctx := context.Background()

	req.NoError(f.dispatcher.Handle(ctx, f.conn, domain.AuthCommand{UserID: "u1"}))

	f.repository.EXPECT().GetByID(gomock.Any(), "ghost").Return(domain.NewsItem{}, false, nil)

	err := f.dispatcher.Handle(ctx, f.conn, domain.DeleteCommand{DocumentID: "ghost"})
	req.NoError(err)
	req.Equal([]event.Event{event.Error{Message: "news not found or unauthorized"}},
		f.transport.events(t, f.codec))
}

func TestDispatcher_Delete_Unauthenticated(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t)

	err := f.dispatcher.Handle(context.Background(), f.conn, domain.DeleteCommand{DocumentID: "d1"})
	req.NoError(err)
	req.Equal([]event.Event{event.Error{Message: "authentication required"}},
		f.transport.events(t, f.codec))
}

func TestDispatcher_Subscribe_AcksThenSendsCurrentNews(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t)

	items := []domain.NewsItem{{DocumentID: "d1", Title: "T"}}
	f.repository.EXPECT().ListAll(gomock.Any()).Return(items, nil)

	err := f.dispatcher.Handle(context.Background(), f.conn, domain.SubscribeCommand{})
	req.NoError(err)

	req.Equal([]event.Event{
		event.Subscribed{},
		event.NewsList{News: items},
	}, f.transport.events(t, f.codec))
}

func TestDispatcher_GetAllNews_StoreFailure(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t)

	f.repository.EXPECT().ListAll(gomock.Any()).Return(nil, io.ErrClosedPipe)

	err := f.dispatcher.Handle(context.Background(), f.conn, domain.GetAllNewsCommand{})
	req.NoError(err)
	req.Equal([]event.Event{event.Error{Message: "internal server error"}},
		f.transport.events(t, f.codec))
}

func TestDispatcher_Ping(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t)

	// Ping works before authentication
	err := f.dispatcher.Handle(context.Background(), f.conn, domain.PingCommand{})
	req.NoError(err)
	req.Equal([]event.Event{event.Pong{}}, f.transport.events(t, f.codec))
}

func TestDispatcher_Search_RepliesToSenderOnly(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t)

	items := []domain.NewsItem{{DocumentID: "d1", Title: "Budget"}}
	f.repository.EXPECT().Search(gomock.Any(), "budget", searchResultLimit).Return(items, nil)

	err := f.dispatcher.Handle(context.Background(), f.conn, domain.SearchCommand{Query: "budget"})
	req.NoError(err)
	req.Equal([]event.Event{event.NewsList{News: items}}, f.transport.events(t, f.codec))
}

func TestDispatcher_HandleFrame_MalformedIsIgnored(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t)

	// Malformed frames and unknown kinds are dropped without a reply
	req.NoError(f.dispatcher.HandleFrame(context.Background(), f.conn, []byte(`{oops`)))
	req.NoError(f.dispatcher.HandleFrame(context.Background(), f.conn, []byte(`{"type":"dance"}`)))
	req.Empty(f.transport.events(t, f.codec))
}

func TestDispatcher_HandleFrame_ValidationErrorGoesToSender(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t)

	err := f.dispatcher.HandleFrame(context.Background(), f.conn, []byte(`{"type":"publish","title":"T"}`))
	req.NoError(err)

	events := f.transport.events(t, f.codec)
	req.Len(events, 1)
	errEvent, ok := events[0].(event.Error)
	req.True(ok)
	req.Contains(errEvent.Message, "content")
}

func TestDispatcher_Auth_TokenMode(t *testing.T) {
	req := require.New(t)
	const secret = "test-secret"
	f := newDispatcherFixture(t, func(d *Dispatcher) { d.verifier = auth.NewVerifier(secret) })
	ctx := context.Background()

	t.Run("valid token binds the embedded user", func(t *testing.T) {
		token, err := auth.GenerateToken(secret, "u1", time.Hour)
		req.NoError(err)

		req.NoError(f.dispatcher.Handle(ctx, f.conn, domain.AuthCommand{Token: token}))
		req.Equal("u1", f.conn.UserID())
	})

	t.Run("forged token is rejected", func(t *testing.T) {
		forged, err := auth.GenerateToken("wrong-secret", "u2", time.Hour)
		req.NoError(err)

		other := &fakeConn{}
		conn := NewConnection(other)
		req.NoError(f.dispatcher.Handle(ctx, conn, domain.AuthCommand{Token: forged}))
		req.False(conn.Authenticated())
		req.Equal([]event.Event{event.Error{Message: "authentication failed"}},
			other.events(t, f.codec))
	})
}
