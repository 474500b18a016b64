// Package bolt persists blocklist rules in a bbolt database.
package bolt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	bbolt "go.etcd.io/bbolt"
	bberrors "go.etcd.io/bbolt/errors"

	"github.com/haukened/rr-fwd/internal/dns/domain"
	"github.com/haukened/rr-fwd/internal/dns/repos/blocklist"
)

var (
	bucketExact  = []byte("exact")
	bucketSuffix = []byte("suffix")
	bucketMeta   = []byte("meta")

	keyVersion = []byte("version")
	keyUpdated = []byte("updated")
)

// boltStore implements blocklist.Store using bbolt.
// Both rule buckets are keyed by canonical name; values hold the rule's
// AddedAt (unix nanoseconds, big-endian) followed by its source.
type boltStore struct {
	db *bbolt.DB
}

// New opens (or creates) a Bolt database at path and ensures buckets exist.
func New(path string) (blocklist.Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open blocklist db %s: %w", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketExact, bucketSuffix, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &boltStore{db: db}, nil
}

func (s *boltStore) Close() error { return s.db.Close() }

// RebuildAll replaces every rule and the snapshot metadata in one transaction.
func (s *boltStore) RebuildAll(rules []domain.BlockRule, version uint64, updatedUnix int64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		exact, err := recreateBucket(tx, bucketExact)
		if err != nil {
			return err
		}
		suffix, err := recreateBucket(tx, bucketSuffix)
		if err != nil {
			return err
		}
		for _, r := range rules {
			var b *bbolt.Bucket
			switch r.Kind {
			case domain.BlockRuleExact:
				b = exact
			case domain.BlockRuleSuffix:
				b = suffix
			default:
				return fmt.Errorf("rule %q: unsupported kind %s", r.Name, r.Kind)
			}
			if err := b.Put([]byte(r.Name), encodeValue(r)); err != nil {
				return fmt.Errorf("put rule %q: %w", r.Name, err)
			}
		}

		meta := tx.Bucket(bucketMeta)
		if err := meta.Put(keyVersion, binary.BigEndian.AppendUint64(nil, version)); err != nil {
			return err
		}
		//gosec:disable G115 -- stored as raw bits, decoded the same way.
		return meta.Put(keyUpdated, binary.BigEndian.AppendUint64(nil, uint64(updatedUnix)))
	})
}

func recreateBucket(tx *bbolt.Tx, name []byte) (*bbolt.Bucket, error) {
	if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bberrors.ErrBucketNotFound) {
		return nil, err
	}
	return tx.CreateBucket(name)
}

// FirstMatch looks up cn as an exact rule, then walks its suffix anchors from
// cn itself toward the apex.
func (s *boltStore) FirstMatch(cn string) (domain.BlockRule, bool, error) {
	var (
		rule  domain.BlockRule
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketExact).Get([]byte(cn)); v != nil {
			rule, found = decodeValue(cn, domain.BlockRuleExact, v), true
			return nil
		}
		suffix := tx.Bucket(bucketSuffix)
		for anchor := cn; anchor != ""; {
			if v := suffix.Get([]byte(anchor)); v != nil {
				rule, found = decodeValue(anchor, domain.BlockRuleSuffix, v), true
				return nil
			}
			i := strings.IndexByte(anchor, '.')
			if i < 0 {
				break
			}
			anchor = anchor[i+1:]
		}
		return nil
	})
	if err != nil {
		return domain.BlockRule{}, false, err
	}
	return rule, found, nil
}

func (s *boltStore) Stats() blocklist.StoreStats {
	st := blocklist.StoreStats{}
	_ = s.db.View(func(tx *bbolt.Tx) error {
		st.ExactKeys = uint64(tx.Bucket(bucketExact).Stats().KeyN)
		st.SuffixKeys = uint64(tx.Bucket(bucketSuffix).Stats().KeyN)
		meta := tx.Bucket(bucketMeta)
		if v := meta.Get(keyVersion); len(v) == 8 {
			st.Version = binary.BigEndian.Uint64(v)
		}
		if v := meta.Get(keyUpdated); len(v) == 8 {
			//gosec:disable G115 -- round-trips RebuildAll's encoding.
			st.UpdatedUnix = int64(binary.BigEndian.Uint64(v))
		}
		return nil
	})
	return st
}

func encodeValue(r domain.BlockRule) []byte {
	//gosec:disable G115 -- stored as raw bits, decoded the same way.
	v := binary.BigEndian.AppendUint64(make([]byte, 0, 8+len(r.Source)), uint64(r.AddedAt.UnixNano()))
	return append(v, r.Source...)
}

// decodeValue copies out of v; bbolt values are only valid inside the transaction.
func decodeValue(name string, kind domain.BlockRuleKind, v []byte) domain.BlockRule {
	r := domain.BlockRule{Name: name, Kind: kind}
	if len(v) >= 8 {
		//gosec:disable G115 -- round-trips encodeValue.
		r.AddedAt = time.Unix(0, int64(binary.BigEndian.Uint64(v[:8])))
		r.Source = string(v[8:])
	}
	return r
}
