// Package store persists the session snapshot and UI preferences in a
// local sqlite database. Only the allow-listed snapshot fields ever touch
// disk; the refresh token is sealed with a secret key when one is
// configured.
package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"time"

	"github.com/goliatone/go-errors"
	fintrack "github.com/goliatone/go-fintrack"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"golang.org/x/crypto/nacl/secretbox"
)

const defaultScope = "default"

// OpenSQLite opens (creating if needed) the sqlite database at dsn and
// wraps it with bun.
func OpenSQLite(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to open sqlite database")
	}
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

// SessionRecord is the bun model for a persisted session snapshot. One row
// per scope; writes are last-write-wins upserts.
type SessionRecord struct {
	bun.BaseModel `bun:"table:session_snapshots"`

	ID           uuid.UUID `bun:"id,pk,nullzero,type:uuid"`
	Scope        string    `bun:"scope,notnull,unique"`
	UserID       string    `bun:"user_id"`
	Name         string    `bun:"name"`
	Email        string    `bun:"email"`
	Role         string    `bun:"role"`
	RefreshToken string    `bun:"refresh_token"`
	CreatedAt    time.Time `bun:"created_at,default:current_timestamp"`
	UpdatedAt    time.Time `bun:"updated_at,default:current_timestamp"`
}

// Store implements fintrack.SnapshotStore over bun/sqlite.
type Store struct {
	db     *bun.DB
	repo   repository.Repository[*SessionRecord]
	scope  string
	key    *[32]byte
	logger fintrack.Logger
}

// Option customizes the Store.
type Option func(*Store)

// WithScope isolates snapshots when several apps share a database file.
func WithScope(scope string) Option {
	return func(s *Store) {
		if scope != "" {
			s.scope = scope
		}
	}
}

// WithSealingKey enables secretbox sealing of the refresh token at rest.
func WithSealingKey(key [32]byte) Option {
	return func(s *Store) {
		k := key
		s.key = &k
	}
}

// WithLogger sets the logger.
func WithLogger(logger fintrack.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New builds a Store over db. Call Migrate before first use.
func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		scope:  defaultScope,
		logger: fintrack.NewDefaultLogger(),
	}

	s.repo = repository.NewRepository[*SessionRecord](db, repository.ModelHandlers[*SessionRecord]{
		NewRecord: func() *SessionRecord { return &SessionRecord{} },
		GetID: func(r *SessionRecord) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID: func(r *SessionRecord, id uuid.UUID) {
			if r != nil {
				r.ID = id
			}
		},
	})

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// Migrate creates the backing tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().
		Model((*SessionRecord)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to create session_snapshots table")
	}

	if _, err := s.db.NewCreateTable().
		Model((*PreferenceRecord)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to create ui_preferences table")
	}

	return nil
}

// Persist writes the snapshot for this scope, replacing any previous one.
func (s *Store) Persist(ctx context.Context, snap fintrack.Snapshot) error {
	record := &SessionRecord{
		ID:        s.recordID(),
		Scope:     s.scope,
		UpdatedAt: time.Now(),
	}

	if snap.User != nil {
		record.UserID = snap.User.ID
		record.Name = snap.User.Name
		record.Email = snap.User.Email
		record.Role = string(snap.User.Role)
	}

	if snap.RefreshToken != "" {
		sealed, err := s.seal(snap.RefreshToken)
		if err != nil {
			return err
		}
		record.RefreshToken = sealed
	}

	if _, err := s.repo.Upsert(ctx, record); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to persist session snapshot")
	}
	return nil
}

// Restore loads the snapshot for this scope. A missing row is a plain
// cache miss, not an error.
func (s *Store) Restore(ctx context.Context) (fintrack.Snapshot, bool, error) {
	record, err := s.repo.GetByIdentifier(ctx, s.recordID().String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return fintrack.Snapshot{}, false, nil
		}
		return fintrack.Snapshot{}, false, errors.Wrap(err, errors.CategoryInternal, "failed to restore session snapshot")
	}

	snap := fintrack.Snapshot{}
	if record.UserID != "" || record.Email != "" {
		snap.User = &fintrack.Profile{
			ID:    record.UserID,
			Name:  record.Name,
			Email: record.Email,
			Role:  fintrack.UserRole(record.Role),
		}
	}

	if record.RefreshToken != "" {
		token, err := s.open(record.RefreshToken)
		if err != nil {
			// Undecryptable token (rotated key, corrupt row): drop it and
			// keep the profile part of the snapshot.
			s.logger.Warn("failed to unseal refresh token, discarding", "error", err)
		} else {
			snap.RefreshToken = token
		}
	}

	return snap, true, nil
}

// Clear removes the snapshot for this scope.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.NewDelete().
		Model((*SessionRecord)(nil)).
		Where("scope = ?", s.scope).
		Exec(ctx); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to clear session snapshot")
	}
	return nil
}

// recordID derives a stable row ID from the scope so persist is an upsert
// against the same row every time.
func (s *Store) recordID() uuid.UUID {
	if id, err := hashid.NewUUID("session:" + s.scope); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("session:"+s.scope))
}

func (s *Store) seal(plaintext string) (string, error) {
	if s.key == nil {
		return plaintext, nil
	}

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to generate nonce")
	}

	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, s.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (s *Store) open(stored string) (string, error) {
	if s.key == nil {
		return stored, nil
	}

	sealed, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "stored token is not base64")
	}
	if len(sealed) < 24 {
		return "", errors.New("stored token is truncated", errors.CategoryInternal)
	}

	var nonce [24]byte
	copy(nonce[:], sealed[:24])

	plaintext, ok := secretbox.Open(nil, sealed[24:], &nonce, s.key)
	if !ok {
		return "", errors.New("failed to unseal stored token", errors.CategoryInternal)
	}
	return string(plaintext), nil
}

var _ fintrack.SnapshotStore = (*Store)(nil)
