package storage

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/chainkeep/chainkeep/internal/ledger"
)

var (
	OrganizationsBucket = []byte("organizations")
	GroupsBucket        = []byte("groups")
	MembersBucket       = []byte("members")
	MetadataBucket      = []byte("metadata")
)

// Store persists one JSON document per entity chain, keyed by entity id, in
// one bucket per hierarchy level. Every put is a single bbolt transaction, so
// a crash mid-write never leaves a half-written document visible.
type Store struct {
	db *bolt.DB
}

// Document is the persisted shape of an entity chain.
type Document struct {
	ID          string          `json:"id"`
	DisplayName string          `json:"display_name"`
	ParentID    string          `json:"parent_id,omitempty"`
	ParentLink  string          `json:"parent_link_hash,omitempty"`
	Difficulty  int             `json:"difficulty"`
	Chain       []*ledger.Block `json:"chain"`
}

func New(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{OrganizationsBucket, GroupsBucket, MembersBucket, MetadataBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveDocument writes one entity document into the given level bucket.
func (s *Store) SaveDocument(bucket []byte, doc *Document) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return fmt.Errorf("bucket not found: %s", bucket)
		}

		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to marshal document: %w", err)
		}

		return b.Put([]byte(doc.ID), data)
	})
}

// GetDocument reads one entity document by id.
func (s *Store) GetDocument(bucket []byte, id string) (*Document, error) {
	var doc Document

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return fmt.Errorf("bucket not found: %s", bucket)
		}

		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("document not found: %s", id)
		}

		return json.Unmarshal(data, &doc)
	})

	if err != nil {
		return nil, err
	}

	return &doc, nil
}

// LoadLevel returns every document of one level in key order.
func (s *Store) LoadLevel(bucket []byte) ([]*Document, error) {
	var docs []*Document

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return fmt.Errorf("bucket not found: %s", bucket)
		}

		return b.ForEach(func(k, v []byte) error {
			var doc Document
			if err := json.Unmarshal(v, &doc); err != nil {
				return fmt.Errorf("failed to unmarshal document %s: %w", k, err)
			}
			docs = append(docs, &doc)
			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	return docs, nil
}

func (s *Store) SetMetadata(key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(MetadataBucket)
		return bucket.Put([]byte(key), []byte(value))
	})
}

func (s *Store) GetMetadata(key string) (string, error) {
	var value string

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(MetadataBucket)
		data := bucket.Get([]byte(key))
		if data == nil {
			return fmt.Errorf("metadata key not found: %s", key)
		}
		value = string(data)
		return nil
	})

	return value, err
}
