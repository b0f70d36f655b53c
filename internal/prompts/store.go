package prompts

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

// StorageKey is the fixed key the collection is stored under.
const StorageKey = "bioradio.prompts"

// LevelStore keeps the collection as a JSON array under StorageKey.
type LevelStore struct {
	db *leveldb.DB
}

// OpenLevelStore opens (creating if needed) the database at path.
func OpenLevelStore(path string) (*LevelStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open prompt db: %w", err)
	}
	return &LevelStore{db: db}, nil
}

// NewMemStore returns a store backed by in-memory storage.
func NewMemStore() (*LevelStore, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &LevelStore{db: db}, nil
}

func (s *LevelStore) Load() ([]Prompt, error) {
	data, err := s.db.Get([]byte(StorageKey), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var items []Prompt
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", StorageKey, err)
	}
	return items, nil
}

func (s *LevelStore) Save(items []Prompt) error {
	if items == nil {
		items = []Prompt{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return err
	}
	return s.db.Put([]byte(StorageKey), data, nil)
}

func (s *LevelStore) Close() error {
	return s.db.Close()
}
