// Package deployment caches the on-chain addresses of deployed artifacts,
// keyed by name and guarded by the content hash of what was deployed.
package deployment

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

var (
	ErrNotFound        = errors.New("deployment record not found")
	ErrContentMismatch = errors.New("deployed content does not match")
)

type Record struct {
	Name        string
	Address     string
	ContentHash string

	CreatedAt     time.Time
	LastUpdatedAt time.Time
}

// Store persists deployment records. Save upserts by name.
type Store interface {
	Save(ctx context.Context, record *Record) error

	// Get returns ErrNotFound when no record exists for name.
	Get(ctx context.Context, name string) (*Record, error)

	// GetIfContentMatches returns the record for name only when it was
	// deployed from content hashing to contentHash, and ErrContentMismatch
	// when a record exists for different content.
	GetIfContentMatches(ctx context.Context, name, contentHash string) (*Record, error)

	Delete(ctx context.Context, name string) error
}

// ContentHash returns the hex encoded SHA-256 of an artifact.
func ContentHash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// PublicKey decodes the record's address.
func (r *Record) PublicKey() (ed25519.PublicKey, error) {
	decoded, err := base58.Decode(r.Address)
	if err != nil {
		return nil, errors.Wrap(err, "invalid base58 address")
	}
	if len(decoded) != ed25519.PublicKeySize {
		return nil, errors.Errorf("invalid address length %d", len(decoded))
	}
	return decoded, nil
}

// Matches reports whether the record was deployed from content hashing to
// contentHash. Records without a hash never match.
func (r *Record) Matches(contentHash string) bool {
	return len(r.ContentHash) > 0 && r.ContentHash == contentHash
}

func (r *Record) Validate() error {
	if len(r.Name) == 0 {
		return errors.New("name is required")
	}

	if len(r.Address) == 0 {
		return errors.New("address is required")
	}

	if _, err := r.PublicKey(); err != nil {
		return err
	}

	if len(r.ContentHash) > 0 {
		decoded, err := hex.DecodeString(r.ContentHash)
		if err != nil || len(decoded) != sha256.Size {
			return errors.New("content hash must be a hex encoded sha256 digest")
		}
	}

	return nil
}

func (r *Record) Clone() Record {
	return Record{
		Name:          r.Name,
		Address:       r.Address,
		ContentHash:   r.ContentHash,
		CreatedAt:     r.CreatedAt,
		LastUpdatedAt: r.LastUpdatedAt,
	}
}

func (r *Record) CopyTo(dst *Record) {
	dst.Name = r.Name
	dst.Address = r.Address
	dst.ContentHash = r.ContentHash
	dst.CreatedAt = r.CreatedAt
	dst.LastUpdatedAt = r.LastUpdatedAt
}
