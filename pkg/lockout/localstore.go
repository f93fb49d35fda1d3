package lockout

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketMirrors  = []byte("lockout_mirrors")
	bucketAttempts = []byte("attempt_log")
)

// attemptRetention bounds the local attempt log; entries older than this
// are pruned on every append.
const attemptRetention = 24 * time.Hour

// attemptKeyFormat is fixed width (nanoseconds always padded to nine
// digits, timestamps always UTC) so the bucket's lexical key order is
// chronological order.
const attemptKeyFormat = "2006-01-02T15:04:05.000000000Z"

// BoltStore is the bbolt-backed Storage for desktop and kiosk clients.
// One file per device, shared by every account that signs in on it.
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore creates or opens the device-local database at path and
// ensures the buckets exist.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketMirrors, bucketAttempts} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// LoadMirror returns the stored mirror for an email, or nil.
func (s *BoltStore) LoadMirror(email string) (*Mirror, error) {
	var mirror *Mirror
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketMirrors).Get([]byte(email))
		if v == nil {
			return nil
		}
		var m Mirror
		if err := json.Unmarshal(v, &m); err != nil {
			return fmt.Errorf("unmarshal mirror: %w", err)
		}
		mirror = &m
		return nil
	})
	return mirror, err
}

// SaveMirror overwrites the mirror for its email.
func (s *BoltStore) SaveMirror(mirror *Mirror) error {
	data, err := json.Marshal(mirror)
	if err != nil {
		return fmt.Errorf("marshal mirror: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMirrors).Put([]byte(mirror.Email), data)
	})
}

// ClearMirror removes the mirror for an email.
func (s *BoltStore) ClearMirror(email string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMirrors).Delete([]byte(email))
	})
}

// AppendAttempt writes one log entry and prunes expired ones.
// Key format: "{attemptKeyFormat}::{email}".
func (s *BoltStore) AppendAttempt(entry AttemptEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal attempt entry: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAttempts)

		cutoff := []byte(entry.Timestamp.Add(-attemptRetention).UTC().Format(attemptKeyFormat))
		c := b.Cursor()
		var expired [][]byte
		for k, _ := c.First(); k != nil && string(k) < string(cutoff); k, _ = c.Next() {
			keyCopy := make([]byte, len(k))
			copy(keyCopy, k)
			expired = append(expired, keyCopy)
		}
		for _, k := range expired {
			if err := b.Delete(k); err != nil {
				return err
			}
		}

		key := []byte(entry.Timestamp.UTC().Format(attemptKeyFormat) + "::" + entry.Email)
		return b.Put(key, data)
	})
}

// RecentFailures counts failed entries for an email since the given time.
func (s *BoltStore) RecentFailures(email string, since time.Time) (int, error) {
	count := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketAttempts).Cursor()
		start := []byte(since.UTC().Format(attemptKeyFormat))
		for k, v := c.Seek(start); k != nil; k, v = c.Next() {
			var entry AttemptEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				continue
			}
			if entry.Email == email && !entry.Success {
				count++
			}
		}
		return nil
	})
	return count, err
}

// ClearAttempts removes every log entry for an email.
func (s *BoltStore) ClearAttempts(email string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAttempts)
		c := b.Cursor()
		var keys [][]byte
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var entry AttemptEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				continue
			}
			if entry.Email == email {
				keyCopy := make([]byte, len(k))
				copy(keyCopy, k)
				keys = append(keys, keyCopy)
			}
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}
