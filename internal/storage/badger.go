package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/hyperjump/ruiji/internal/models"
)

// BadgerStorage implements Storage on BadgerDB. Badger's serializable
// transactions detect concurrent writers; the stored version detects stale reads.
type BadgerStorage struct {
	db *badger.DB
}

// BadgerOptions configures the BadgerDB storage.
type BadgerOptions struct {
	// Dir is the directory for BadgerDB data files. Required unless InMemory.
	Dir string
	// InMemory runs BadgerDB without disk persistence.
	InMemory bool
	// Logger receives badger warnings and errors. Nil silences badger.
	Logger *zap.Logger
}

// badgerDocument is the value stored under a document key.
type badgerDocument struct {
	Version     int64           `json:"version"`
	TextVector  []byte          `json:"text_vector,omitempty"`
	ImageVector []byte          `json:"image_vector,omitempty"`
	Metadata    models.Metadata `json:"metadata"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NewBadgerStorage opens a BadgerDB-backed Storage.
func NewBadgerStorage(opts BadgerOptions) (*BadgerStorage, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("storage: BadgerOptions.Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dbOpts = dbOpts.WithLogger(zapBadgerLogger{logger.Sugar().Named("badger")})
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &BadgerStorage{db: db}, nil
}

func collectionKey(name string) []byte {
	return append([]byte("c\x00"), name...)
}

func documentPrefix(collection string) []byte {
	k := append([]byte("d\x00"), collection...)
	return append(k, 0)
}

func documentKey(collection string, id int64) []byte {
	return binary.BigEndian.AppendUint64(documentPrefix(collection), uint64(id))
}

// CreateCollection stores c unless a collection with that name exists.
func (b *BadgerStorage) CreateCollection(_ context.Context, c *Collection) (*Collection, bool, error) {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	var (
		result  *Collection
		created bool
	)
	err := b.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(collectionKey(c.Name))
		if err == nil {
			existing := &Collection{}
			if err := item.Value(func(v []byte) error { return json.Unmarshal(v, existing) }); err != nil {
				return err
			}
			result, created = existing, false
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		data, err := json.Marshal(c)
		if err != nil {
			return err
		}
		result, created = c, true
		return txn.Set(collectionKey(c.Name), data)
	})
	if errors.Is(err, badger.ErrConflict) {
		// A concurrent creator won; report what it stored.
		existing, gerr := b.GetCollection(context.Background(), c.Name)
		return existing, false, gerr
	}
	if err != nil {
		return nil, false, err
	}
	return result, created, nil
}

// GetCollection returns a collection by name.
func (b *BadgerStorage) GetCollection(_ context.Context, name string) (*Collection, error) {
	c := &Collection{}
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(collectionKey(name))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error { return json.Unmarshal(v, c) })
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", models.ErrIndexMissing, name)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// DropCollection removes the collection key first so in-flight writers conflict, then its documents.
func (b *BadgerStorage) DropCollection(_ context.Context, name string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(collectionKey(name))
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}
	return b.db.DropPrefix(documentPrefix(name))
}

// GetDocument returns a document by collection and ID.
func (b *BadgerStorage) GetDocument(_ context.Context, collection string, id int64) (*models.Document, error) {
	var doc *models.Document
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(documentKey(collection, id))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			doc, err = decodeBadgerDocument(id, v)
			return err
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: document %d", models.ErrNotFound, id)
	}
	return doc, err
}

// PutDocument writes doc under an optimistic version check.
func (b *BadgerStorage) PutDocument(_ context.Context, collection string, doc *models.Document, expectedVersion int64) (int64, error) {
	newVersion := expectedVersion + 1
	err := b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(collectionKey(collection)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", models.ErrIndexMissing, collection)
			}
			return err
		}
		key := documentKey(collection, doc.ID)
		var current int64
		item, err := txn.Get(key)
		switch {
		case err == nil:
			err = item.Value(func(v []byte) error {
				var stored badgerDocument
				if err := json.Unmarshal(v, &stored); err != nil {
					return err
				}
				current = stored.Version
				return nil
			})
			if err != nil {
				return err
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		if current != expectedVersion {
			return fmt.Errorf("%w: document %d is at version %d, expected %d",
				models.ErrWriteConflict, doc.ID, current, expectedVersion)
		}
		data, err := json.Marshal(badgerDocument{
			Version:     newVersion,
			TextVector:  float32SliceToBytes(doc.TextVector),
			ImageVector: float32SliceToBytes(doc.ImageVector),
			Metadata:    doc.Metadata,
			UpdatedAt:   time.Now(),
		})
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
	if errors.Is(err, badger.ErrConflict) {
		return 0, fmt.Errorf("%w: document %d: %v", models.ErrWriteConflict, doc.ID, err)
	}
	if err != nil {
		return 0, err
	}
	doc.Version = newVersion
	return newVersion, nil
}

// ForEachDocument iterates documents of a collection in ID byte order.
func (b *BadgerStorage) ForEachDocument(_ context.Context, collection string, fn func(*models.Document) error) error {
	prefix := documentPrefix(collection)
	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			id := int64(binary.BigEndian.Uint64(item.Key()[len(prefix):]))
			var doc *models.Document
			err := item.Value(func(v []byte) error {
				var err error
				doc, err = decodeBadgerDocument(id, v)
				return err
			})
			if err != nil {
				return err
			}
			if err := fn(doc); err != nil {
				return err
			}
		}
		return nil
	})
}

// CountDocuments counts document keys without loading values.
func (b *BadgerStorage) CountDocuments(_ context.Context, collection string) (int64, error) {
	prefix := documentPrefix(collection)
	var n int64
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Close closes the database.
func (b *BadgerStorage) Close() error {
	return b.db.Close()
}

func decodeBadgerDocument(id int64, v []byte) (*models.Document, error) {
	var stored badgerDocument
	if err := json.Unmarshal(v, &stored); err != nil {
		return nil, fmt.Errorf("failed to decode document %d: %w", id, err)
	}
	md := stored.Metadata
	if md == nil {
		md = models.Metadata{}
	}
	return &models.Document{
		ID:          id,
		Version:     stored.Version,
		TextVector:  bytesToFloat32Slice(stored.TextVector),
		ImageVector: bytesToFloat32Slice(stored.ImageVector),
		Metadata:    md,
	}, nil
}

// zapBadgerLogger routes badger warnings and errors to zap and drops the chatter.
type zapBadgerLogger struct {
	s *zap.SugaredLogger
}

func (l zapBadgerLogger) Errorf(f string, v ...interface{})   { l.s.Errorf(f, v...) }
func (l zapBadgerLogger) Warningf(f string, v ...interface{}) { l.s.Warnf(f, v...) }
func (zapBadgerLogger) Infof(string, ...interface{})          {}
func (zapBadgerLogger) Debugf(string, ...interface{})         {}
