// Package ledger keeps a local record of every image this tool signed.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// ErrNotFound is returned when no record matches
var ErrNotFound = errors.New("ledger: record not found")

const (
	recordPrefix = "rec:"
	hashPrefix   = "hash:"
)

// Record describes one signing
type Record struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Input       string    `json:"input"`
	Output      string    `json:"output"`
	Hash        string    `json:"hash"`
	Nonce       string    `json:"nonce"`
	NTime       string    `json:"ntime"`
	Version     string    `json:"version"`
	Extranonce2 string    `json:"extranonce2"`
	Status      string    `json:"status"`
	Source      string    `json:"source"`
	JobID       string    `json:"job_id,omitempty"`
	Profile     string    `json:"profile"`
	Digest      string    `json:"digest"`
	Offsets     []int     `json:"offsets"`
	Fingerprint string    `json:"fingerprint"`
}

type Store struct {
	db *badger.DB
}

// Open opens or creates the ledger under dataDir
func Open(dataDir string) (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions(filepath.Join(dataDir, "badger")).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens a ledger that is discarded on Close
func OpenInMemory() (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores rec, assigning an ID and timestamp when missing
func (s *Store) Put(rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(recordPrefix+rec.ID), val); err != nil {
			return err
		}
		return txn.Set(hashKey(rec.Hash, rec.ID), []byte(rec.ID))
	})
}

// Get returns the record with id, or the unique record whose id starts
// with id
func (s *Store) Get(id string) (*Record, error) {
	var rec *Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(recordPrefix + id))
		if err == nil {
			rec, err = decode(item)
			return err
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		matches, err := scan(txn, recordPrefix+id)
		if err != nil {
			return err
		}
		switch len(matches) {
		case 0:
			return ErrNotFound
		case 1:
			rec = matches[0]
			return nil
		default:
			return fmt.Errorf("ledger: id prefix %q is ambiguous (%d records)", id, len(matches))
		}
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// FindByHash returns every record for an image hash, newest first
func (s *Store) FindByHash(hash string) ([]*Record, error) {
	var out []*Record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(hashPrefix + strings.ToLower(hash) + ":")
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			id, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			item, err := txn.Get([]byte(recordPrefix + string(id)))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			rec, err := decode(item)
			if err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortNewest(out)
	return out, nil
}

// List returns up to limit records, newest first; limit <= 0 returns all
func (s *Store) List(limit int) ([]*Record, error) {
	var out []*Record
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		out, err = scan(txn, recordPrefix)
		return err
	})
	if err != nil {
		return nil, err
	}
	sortNewest(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Delete removes a record and its hash index entry
func (s *Store) Delete(id string) error {
	rec, err := s.Get(id)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(recordPrefix + rec.ID)); err != nil {
			return err
		}
		return txn.Delete(hashKey(rec.Hash, rec.ID))
	})
}

func scan(txn *badger.Txn, prefix string) ([]*Record, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	var out []*Record
	for it.Rewind(); it.Valid(); it.Next() {
		rec, err := decode(it.Item())
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func decode(item *badger.Item) (*Record, error) {
	var rec Record
	err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decode record %s: %w", item.Key(), err)
	}
	return &rec, nil
}

func hashKey(hash, id string) []byte {
	return []byte(hashPrefix + strings.ToLower(hash) + ":" + id)
}

func sortNewest(recs []*Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].CreatedAt.After(recs[j].CreatedAt)
	})
}
