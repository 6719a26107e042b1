package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"news-lab/domain"
	errs "news-lab/errors"
)

const keyPrefix = "news:"

// NewsRepository persists news items in BadgerDB and mirrors them into a
// Bluge full-text index. Badger is the authoritative store; the index only
// resolves search queries back to document ids.
type NewsRepository struct {
	db    *badger.DB
	index *bluge.Writer
	log   *slog.Logger
}

func NewNewsRepository(db *badger.DB, index *bluge.Writer, log *slog.Logger) *NewsRepository {
	return &NewsRepository{db: db, index: index, log: log}
}

// Add assigns a server-side id when the client did not supply one
// (idempotent-create clients send their own) and normalizes the publish
// date to UTC before storing.
func (r *NewsRepository) Add(_ context.Context, item domain.NewsItem) (domain.NewsItem, error) {
	if item.DocumentID == "" {
		item.DocumentID = uuid.NewString()
	}
	item.PublishDate = item.PublishDate.UTC()
	if err := r.put(item); err != nil {
		return domain.NewsItem{}, err
	}
	return item, nil
}

// Replace is a full-record upsert. The caller is responsible for the
// existence and ownership checks; this only refuses an empty id.
func (r *NewsRepository) Replace(_ context.Context, item domain.NewsItem) error {
	if item.DocumentID == "" {
		return fmt.Errorf("%w: documentId is required", errs.ErrValidation)
	}
	item.PublishDate = item.PublishDate.UTC()
	return r.put(item)
}

// Delete treats an absent id as success so retried deletes stay silent.
func (r *NewsRepository) Delete(_ context.Context, documentID string) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyPrefix + documentID))
	})
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStoreUnavailable, err)
	}
	if err := r.index.Delete(bluge.Identifier(documentID)); err != nil {
		// The store is already consistent; a stale index entry only
		// surfaces as a search hit that resolves to nothing.
		r.log.Warn("Failed to remove item from search index",
			"document_id", documentID, "error", err)
	}
	return nil
}

func (r *NewsRepository) GetByID(_ context.Context, documentID string) (domain.NewsItem, bool, error) {
	var raw []byte
	err := r.db.View(func(txn *badger.Txn) error {
		entry, err := txn.Get([]byte(keyPrefix + documentID))
		if err != nil {
			return err
		}
		raw, err = entry.ValueCopy(nil)
		return err
	})
	switch {
	case err == badger.ErrKeyNotFound:
		return domain.NewsItem{}, false, nil
	case err != nil:
		return domain.NewsItem{}, false, fmt.Errorf("%w: %v", errs.ErrStoreUnavailable, err)
	}

	var item domain.NewsItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return domain.NewsItem{}, false, fmt.Errorf("%w: %v", errs.ErrStoreUnavailable, err)
	}
	return item, true, nil
}

// ListAll scans the news prefix and sorts by publish date descending,
// the order every newsList frame carries.
func (r *NewsRepository) ListAll(_ context.Context) ([]domain.NewsItem, error) {
	var rawItems [][]byte
	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := it.Item().Value(func(value []byte) error {
				rawItems = append(rawItems, append([]byte(nil), value...))
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStoreUnavailable, err)
	}

	items := make([]domain.NewsItem, 0, len(rawItems))
	for _, raw := range rawItems {
		var item domain.NewsItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrStoreUnavailable, err)
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].PublishDate.After(items[j].PublishDate)
	})
	return items, nil
}

// Search runs a match query across title, content and category and
// resolves the ranked ids against Badger. Items deleted since the last
// index merge are silently skipped.
func (r *NewsRepository) Search(ctx context.Context, query string, limit int) ([]domain.NewsItem, error) {
	reader, err := r.index.Reader()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStoreUnavailable, err)
	}
	defer reader.Close()

	q := bluge.NewBooleanQuery().
		AddShould(bluge.NewMatchQuery(query).SetField("title")).
		AddShould(bluge.NewMatchQuery(query).SetField("content")).
		AddShould(bluge.NewMatchQuery(query).SetField("category"))

	iterator, err := reader.Search(ctx, bluge.NewTopNSearch(limit, q))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStoreUnavailable, err)
	}

	var ids []string
	match, err := iterator.Next()
	for err == nil && match != nil {
		if visitErr := match.VisitStoredFields(func(field string, value []byte) bool {
			if field == "_id" {
				ids = append(ids, string(value))
			}
			return true
		}); visitErr != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrStoreUnavailable, visitErr)
		}
		match, err = iterator.Next()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStoreUnavailable, err)
	}

	var items []domain.NewsItem
	for _, id := range lo.Uniq(ids) {
		item, found, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if found {
			items = append(items, item)
		}
	}
	return items, nil
}

func (r *NewsRepository) put(item domain.NewsItem) error {
	raw, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStoreUnavailable, err)
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+item.DocumentID), raw)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStoreUnavailable, err)
	}

	doc := bluge.NewDocument(item.DocumentID).
		AddField(bluge.NewTextField("title", item.Title).StoreValue()).
		AddField(bluge.NewTextField("content", item.Content)).
		AddField(bluge.NewTextField("category", item.Category))
	if err := r.index.Update(doc.ID(), doc); err != nil {
		r.log.Warn("Failed to index item for search",
			"document_id", item.DocumentID, "error", err)
	}
	return nil
}
