package protocol

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"news-lab/domain"
	"news-lab/domain/event"
	errs "news-lab/errors"
)

func TestCodec_DecodeCommand_Publish(t *testing.T) {
	req := require.New(t)
	codec := NewCodec()

	frame := []byte(`{"type":"publish","title":"T","content":"C","category":"Gen","publishDate":"2024-05-01T10:00:00Z"}`)

	cmd, err := codec.DecodeCommand(frame)
	req.NoError(err)

	publish, ok := cmd.(domain.PublishCommand)
	req.True(ok)
	req.Equal("T", publish.Title)
	req.Equal("C", publish.Content)
	req.Equal("Gen", publish.Category)
	req.NotNil(publish.PublishDate)
	req.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), *publish.PublishDate)
}

func TestCodec_DecodeCommand_Publish_UnparsableDateIsNil(t *testing.T) {
	req := require.New(t)
	codec := NewCodec()

	// Given a date the original clients sometimes send in a local format
	frame := []byte(`{"type":"publish","title":"T","content":"C","category":"Gen","publishDate":"01/05/2024"}`)

	cmd, err := codec.DecodeCommand(frame)
	req.NoError(err)

	// Then the dispatcher falls back to "now"
	req.Nil(cmd.(domain.PublishCommand).PublishDate)
}

func TestCodec_DecodeCommand_Publish_MissingFields(t *testing.T) {
	req := require.New(t)
	codec := NewCodec()

	_, err := codec.DecodeCommand([]byte(`{"type":"publish","title":"T"}`))
	req.ErrorIs(err, errs.ErrValidation)
	req.Contains(err.Error(), "content")
	req.Contains(err.Error(), "category")
}

func TestCodec_DecodeCommand_Update_PartialPatch(t *testing.T) {
	req := require.New(t)
	codec := NewCodec()

	frame := []byte(`{"type":"update","documentId":"d1","title":"New title"}`)

	cmd, err := codec.DecodeCommand(frame)
	req.NoError(err)

	update, ok := cmd.(domain.UpdateCommand)
	req.True(ok)
	req.Equal("d1", update.DocumentID)
	req.NotNil(update.Patch.Title)
	req.Equal("New title", *update.Patch.Title)
	// Omitted fields stay nil so merge keeps the stored values
	req.Nil(update.Patch.Content)
	req.Nil(update.Patch.Category)
	req.Nil(update.Patch.PublishDate)
}

func TestCodec_DecodeCommand_KindIsCaseInsensitive(t *testing.T) {
	req := require.New(t)
	codec := NewCodec()

	tests := []struct {
		frame string
		kind  string
	}{
		{`{"type":"GetAllNews"}`, "getAllNews"},
		{`{"type":"PING"}`, "ping"},
		{`{"type":"Subscribe"}`, "subscribe"},
		{`{"type":"DELETE","documentId":"d1"}`, "delete"},
	}
	for _, tt := range tests {
		cmd, err := codec.DecodeCommand([]byte(tt.frame))
		req.NoError(err)
		req.Equal(tt.kind, cmd.Kind())
	}
}

func TestCodec_DecodeCommand_Rejections(t *testing.T) {
	req := require.New(t)
	codec := NewCodec()

	tests := []struct {
		name     string
		frame    string
		expected error
	}{
		{"malformed json", `{nope`, errs.ErrMalformedFrame},
		{"missing type", `{"title":"T"}`, errs.ErrMalformedFrame},
		{"unknown kind", `{"type":"ковабунга"}`, errs.ErrUnknownKind},
		{"auth without identity", `{"type":"auth"}`, errs.ErrValidation},
		{"delete without id", `{"type":"delete"}`, errs.ErrValidation},
		{"search without query", `{"type":"search"}`, errs.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.DecodeCommand([]byte(tt.frame))
			req.ErrorIs(err, tt.expected)
		})
	}
}

func TestCodec_EncodeEvent_NewsPublished(t *testing.T) {
	req := require.New(t)
	codec := NewCodec()

	item := domain.NewsItem{
		DocumentID:  "d1",
		Title:       "T",
		Content:     "C",
		Category:    "Gen",
		PublishDate: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		AuthorID:    "u1",
	}

	frame, err := codec.EncodeEvent(event.NewsPublished{Item: item})
	req.NoError(err)

	var decoded map[string]any
	req.NoError(json.Unmarshal(frame, &decoded))
	req.Equal("news", decoded["type"])
	req.Equal("publish", decoded["action"])
	req.Equal("d1", decoded["documentId"])
	req.Equal("u1", decoded["authorId"])
	req.Equal("2024-05-01T10:00:00Z", decoded["publishDate"])
}

func TestCodec_EventRoundTrip(t *testing.T) {
	req := require.New(t)
	codec := NewCodec()

	item := domain.NewsItem{
		DocumentID:  "d1",
		Title:       "T",
		Content:     "C",
		Category:    "Gen",
		PublishDate: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		AuthorID:    "u1",
	}

	events := []event.Event{
		event.Subscribed{},
		event.NewsList{News: []domain.NewsItem{item}},
		event.NewsUpdated{Item: item},
		event.NewsDeleted{DocumentID: "d1"},
		event.Pong{},
		event.Error{Message: "boom"},
	}
	for _, original := range events {
		frame, err := codec.EncodeEvent(original)
		req.NoError(err)
		decoded, err := codec.DecodeEvent(frame)
		req.NoError(err)
		req.Equal(original, decoded)
	}
}

func TestCodec_CommandRoundTrip_Publish(t *testing.T) {
	req := require.New(t)
	codec := NewCodec()

	original := domain.PublishCommand{Title: "T", Content: "C", Category: "Gen"}

	frame, err := codec.EncodeCommand(original)
	req.NoError(err)
	decoded, err := codec.DecodeCommand(frame)
	req.NoError(err)
	req.Equal(original, decoded)
}

func TestCodec_DecodeCommand_ValidationNeverWrapsUnknown(t *testing.T) {
	req := require.New(t)
	codec := NewCodec()

	// A validation failure must stay distinguishable from a protocol
	// failure: the first is reported to the sender, the second is not.
	_, err := codec.DecodeCommand([]byte(`{"type":"publish"}`))
	req.ErrorIs(err, errs.ErrValidation)
	req.False(errors.Is(err, errs.ErrMalformedFrame))
	req.False(errors.Is(err, errs.ErrUnknownKind))
}
