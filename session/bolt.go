package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/ruteri/sui-escrow-gateway/cryptoutils"
	"github.com/ruteri/sui-escrow-gateway/interfaces"
	"go.etcd.io/bbolt"
)

var (
	bucketSession = []byte("session")
	keyCurrent    = []byte("current")
)

// BoltStore keeps the session in a bbolt file. With a passphrase the record is
// sealed at rest. Clear rewrites the file so freed pages holding earlier
// versions of the record do not survive a logout.
type BoltStore struct {
	path       string
	passphrase []byte

	// mu guards db, which Clear swaps for the compacted file.
	mu sync.RWMutex
	db *bbolt.DB
}

var _ interfaces.SessionStore = (*BoltStore)(nil)

// OpenBoltStore opens or creates the database at path. An empty passphrase
// stores the record in plaintext.
func OpenBoltStore(path string, passphrase string) (*BoltStore, error) {
	db, err := openBolt(path)
	if err != nil {
		return nil, err
	}

	s := &BoltStore{path: path, db: db}
	if passphrase != "" {
		s.passphrase = []byte(passphrase)
	}
	return s, nil
}

func openBolt(path string) (*bbolt.DB, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSession)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}
	return db, nil
}

func (s *BoltStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// handle returns the open database under the read lock. Callers release it.
func (s *BoltStore) handle() (*bbolt.DB, error) {
	s.mu.RLock()
	if s.db == nil {
		s.mu.RUnlock()
		return nil, fmt.Errorf("%w: session database is closed", interfaces.ErrBackendUnavailable)
	}
	return s.db, nil
}

// Save merges patch into the stored record. A patch that replaces a previous
// login also rewrites the file so the old record does not linger on freed pages.
func (s *BoltStore) Save(_ context.Context, patch *interfaces.AuthSession) error {
	replaced, err := s.merge(patch)
	if err != nil || !replaced {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return fmt.Errorf("%w: session database is closed", interfaces.ErrBackendUnavailable)
	}
	return s.rewrite()
}

func (s *BoltStore) merge(patch *interfaces.AuthSession) (replaced bool, err error) {
	db, err := s.handle()
	if err != nil {
		return false, err
	}
	defer s.mu.RUnlock()

	err = db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketSession)

		merged := &interfaces.AuthSession{}
		if data := bucket.Get(keyCurrent); data != nil {
			current, err := s.decode(data)
			if err != nil {
				return err
			}
			merged = current
			replaced = patch != nil && patch.Nonce != "" && patch.Nonce != current.Nonce
		}
		merged.Merge(patch)

		data, err := s.encode(merged)
		if err != nil {
			return err
		}
		if err := bucket.Put(keyCurrent, data); err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}
		return nil
	})
	return replaced && err == nil, err
}

func (s *BoltStore) Load(_ context.Context) (*interfaces.AuthSession, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	defer s.mu.RUnlock()

	var session *interfaces.AuthSession
	err = db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketSession).Get(keyCurrent)
		if data == nil {
			return interfaces.ErrSessionNotFound
		}
		var err error
		session, err = s.decode(data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Clear deletes the record, compacts the live data into a new file that
// replaces the old one, and zeroes the old file. Deleting a bbolt value only
// frees its pages.
func (s *BoltStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return fmt.Errorf("%w: session database is closed", interfaces.ErrBackendUnavailable)
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketSession).Delete(keyCurrent); err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return s.rewrite()
}

// rewrite must be called with mu held.
func (s *BoltStore) rewrite() error {
	tmp := s.path + ".compact"
	_ = os.Remove(tmp)

	dst, err := bbolt.Open(tmp, 0600, nil)
	if err != nil {
		return fmt.Errorf("failed to create compacted session file: %w", err)
	}
	if err := bbolt.Compact(dst, s.db, 0); err != nil {
		dst.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to compact session file: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close compacted session file: %w", err)
	}

	if err := s.db.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close session file: %w", err)
	}
	s.db = nil

	// Keep a handle on the old inode so it can be zeroed after the swap.
	old, err := os.OpenFile(s.path, os.O_WRONLY, 0)
	if err != nil {
		os.Remove(tmp)
		return s.reopen(fmt.Errorf("failed to open session file: %w", err))
	}
	defer old.Close()

	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return s.reopen(fmt.Errorf("failed to replace session file: %w", err))
	}
	if err := s.reopen(nil); err != nil {
		return err
	}
	return zeroFile(old)
}

// reopen opens the database at path again and returns cause, or the open error.
func (s *BoltStore) reopen(cause error) error {
	db, err := openBolt(s.path)
	if err != nil {
		return err
	}
	s.db = db
	return cause
}

func zeroFile(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat session file: %w", err)
	}
	zeros := make([]byte, 64*1024)
	for off := int64(0); off < info.Size(); off += int64(len(zeros)) {
		n := int64(len(zeros))
		if rest := info.Size() - off; rest < n {
			n = rest
		}
		if _, err := f.WriteAt(zeros[:n], off); err != nil {
			return fmt.Errorf("failed to scrub session file: %w", err)
		}
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync session file: %w", err)
	}
	return nil
}
