// Package settings persists user preferences as a small key/value store
// backed by BadgerDB. Values are free-form strings; the service itself only
// interprets a handful of keys such as the output folder.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/mimikastudio/mimika/internal/apperr"
)

// OutputFolderKey selects the directory the output store writes to.
const OutputFolderKey = "output_folder"

// Record is one stored setting with its last write time.
type Record struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is a badger-backed settings table.
type Store struct {
	db *badger.DB
}

// Options configures Open.
type Options struct {
	// Dir is the badger data directory. Required unless InMemory is set.
	Dir string
	// InMemory runs badger without disk persistence, for tests.
	InMemory bool
}

// Open opens or creates the settings database.
func Open(opts Options) (*Store, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("settings: Options.Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir).WithLogger(quietLogger{})
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("opening settings db: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Get returns the record for key, or a NotFound error.
func (s *Store) Get(key string) (Record, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Record{}, apperr.New(apperr.BadRequest, "setting key must not be empty")
	}

	var rec Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Record{}, apperr.New(apperr.NotFound, "setting %q not found", key)
	}
	if err != nil {
		return Record{}, fmt.Errorf("reading setting %q: %w", key, err)
	}
	return rec, nil
}

// GetDefault returns the stored value for key, or def when the key is
// missing.
func (s *Store) GetDefault(key, def string) string {
	rec, err := s.Get(key)
	if err != nil {
		return def
	}
	return rec.Value
}

// Set upserts key to value, stamping the write time.
func (s *Store) Set(key, value string) (Record, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Record{}, apperr.New(apperr.BadRequest, "setting key must not be empty")
	}

	rec := Record{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	buf, err := json.Marshal(rec)
	if err != nil {
		return Record{}, fmt.Errorf("encoding setting %q: %w", key, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), buf)
	})
	if err != nil {
		return Record{}, fmt.Errorf("writing setting %q: %w", key, err)
	}
	return rec, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return apperr.New(apperr.BadRequest, "setting key must not be empty")
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("deleting setting %q: %w", key, err)
	}
	return nil
}

// All returns every stored record sorted by key.
func (s *Store) All() ([]Record, error) {
	var records []Record
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var rec Record
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing settings: %w", err)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Key < records[j].Key })
	return records, nil
}

// quietLogger suppresses badger's info and debug chatter.
type quietLogger struct{}

func (quietLogger) Errorf(string, ...interface{})   {}
func (quietLogger) Warningf(string, ...interface{}) {}
func (quietLogger) Infof(string, ...interface{})    {}
func (quietLogger) Debugf(string, ...interface{})   {}
