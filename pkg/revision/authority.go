package revision

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cuemby/mcci/pkg/log"
	"github.com/cuemby/mcci/pkg/types"
	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"
)

var (
	// ErrFingerprintMismatch is returned by Open when the stored schema
	// fingerprint differs from the running one and strict checking is on.
	ErrFingerprintMismatch = errors.New("revision: schema fingerprint mismatch")

	// ErrExhausted is returned when a variable has used every revision number.
	ErrExhausted = errors.New("revision: revision space exhausted")
)

var (
	// Bucket names
	bucketRevisions = []byte("revisions")
	bucketMeta      = []byte("meta")

	keySignature = []byte("signature")
)

// FileName is the database file created in the data directory.
const FileName = "revisions.db"

// Authority hands out revision numbers.
type Authority interface {
	// GetRevision returns the latest revision allocated for v, or 0 if none.
	GetRevision(v types.VariableID) (types.Revision, error)

	// IncRevision allocates and returns the next revision for v. Revisions
	// are strictly increasing and never reused, across restarts included.
	IncRevision(v types.VariableID) (types.Revision, error)
}

// BoltAuthority implements Authority on a BoltDB file. Every allocation is
// committed before it is returned.
type BoltAuthority struct {
	mu        sync.Mutex
	db        *bolt.DB
	cache     map[types.VariableID]types.Revision
	signature string
	logger    zerolog.Logger
}

// Open opens or creates the revision database in dataDir and checks it
// against fingerprint. A database without a signature adopts fingerprint.
// A differing signature fails with ErrFingerprintMismatch when strict is set,
// and is overwritten otherwise.
func Open(dataDir, fingerprint string, strict bool) (*BoltAuthority, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, FileName)

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	a := &BoltAuthority{
		db:     db,
		cache:  make(map[types.VariableID]types.Revision),
		logger: log.WithComponent("revision"),
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketRevisions, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}

		meta := tx.Bucket(bucketMeta)
		stored := string(meta.Get(keySignature))
		switch {
		case stored == "":
			a.logger.Info().Str("signature", fingerprint).Msg("Recording schema signature")
		case stored == fingerprint:
			a.signature = stored
			return nil
		case strict:
			return fmt.Errorf("%w: stored %s, running %s", ErrFingerprintMismatch, stored, fingerprint)
		default:
			a.logger.Warn().
				Str("stored", stored).
				Str("running", fingerprint).
				Msg("Schema signature changed, overwriting")
		}
		a.signature = fingerprint
		return meta.Put(keySignature, []byte(fingerprint))
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return a, nil
}

// Inspect opens an existing revision database in dataDir without checking
// or changing its signature. It fails if no database exists, or after a
// second if another process holds it open.
func Inspect(dataDir string) (*BoltAuthority, error) {
	dbPath := filepath.Join(dataDir, FileName)
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("no revision database: %w", err)
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	a := &BoltAuthority{
		db:     db,
		cache:  make(map[types.VariableID]types.Revision),
		logger: log.WithComponent("revision"),
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketRevisions, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		a.signature = string(tx.Bucket(bucketMeta).Get(keySignature))
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

// Close closes the database
func (a *BoltAuthority) Close() error {
	return a.db.Close()
}

// Signature returns the schema fingerprint the database is bound to.
func (a *BoltAuthority) Signature() string {
	return a.signature
}

// Path returns the database file path.
func (a *BoltAuthority) Path() string {
	return a.db.Path()
}

func varKey(v types.VariableID) []byte {
	var k [4]byte
	binary.BigEndian.PutUint32(k[:], uint32(v))
	return k[:]
}

func decodeRevision(data []byte) (types.Revision, error) {
	if data == nil {
		return 0, nil
	}
	if len(data) != 4 {
		return 0, fmt.Errorf("corrupt revision record of %d bytes", len(data))
	}
	return types.Revision(binary.BigEndian.Uint32(data)), nil
}

// GetRevision returns the latest revision of v.
func (a *BoltAuthority) GetRevision(v types.VariableID) (types.Revision, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if rev, ok := a.cache[v]; ok {
		return rev, nil
	}

	var rev types.Revision
	err := a.db.View(func(tx *bolt.Tx) error {
		var err error
		rev, err = decodeRevision(tx.Bucket(bucketRevisions).Get(varKey(v)))
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read revision of variable %d: %w", v, err)
	}
	a.cache[v] = rev
	return rev, nil
}

// IncRevision allocates the next revision of v.
func (a *BoltAuthority) IncRevision(v types.VariableID) (types.Revision, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var rev types.Revision
	err := a.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRevisions)
		cur, err := decodeRevision(b.Get(varKey(v)))
		if err != nil {
			return err
		}
		if cur == math.MaxUint32 {
			return ErrExhausted
		}
		rev = cur + 1
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], uint32(rev))
		return b.Put(varKey(v), buf[:])
	})
	if err != nil {
		return 0, fmt.Errorf("failed to allocate revision of variable %d: %w", v, err)
	}
	a.cache[v] = rev
	return rev, nil
}

// Revisions returns the latest revision of every variable that has one.
func (a *BoltAuthority) Revisions() (map[types.VariableID]types.Revision, error) {
	out := make(map[types.VariableID]types.Revision)
	err := a.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRevisions).ForEach(func(k, v []byte) error {
			if len(k) != 4 {
				return fmt.Errorf("corrupt variable key of %d bytes", len(k))
			}
			rev, err := decodeRevision(v)
			if err != nil {
				return err
			}
			out[types.VariableID(binary.BigEndian.Uint32(k))] = rev
			return nil
		})
	})
	return out, err
}

// Reset drops every revision counter and the stored signature.
func (a *BoltAuthority) Reset() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	err := a.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketRevisions, bucketMeta} {
			if err := tx.DeleteBucket(bucket); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to reset revisions: %w", err)
	}
	clear(a.cache)
	a.signature = ""
	return nil
}
