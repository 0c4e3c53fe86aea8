package store

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Durable preference keys that survive logout. Session snapshots get
// wiped on sign-out, these do not.
const (
	PrefLocale = "ui.locale"
	PrefTheme  = "ui.theme"
)

// PreferenceRecord is the bun model for a durable UI preference.
type PreferenceRecord struct {
	bun.BaseModel `bun:"table:ui_preferences"`

	ID        uuid.UUID `bun:"id,pk,nullzero,type:uuid"`
	Scope     string    `bun:"scope,notnull"`
	Key       string    `bun:"key,notnull"`
	Value     string    `bun:"value"`
	UpdatedAt time.Time `bun:"updated_at,default:current_timestamp"`
}

// Preferences reads and writes durable UI preferences.
type Preferences struct {
	db    *bun.DB
	repo  repository.Repository[*PreferenceRecord]
	scope string
}

// NewPreferences builds a Preferences store. Pass the same scope used for
// the session store so both live next to each other.
func NewPreferences(db *bun.DB, scope string) *Preferences {
	if scope == "" {
		scope = defaultScope
	}

	repo := repository.NewRepository[*PreferenceRecord](db, repository.ModelHandlers[*PreferenceRecord]{
		NewRecord: func() *PreferenceRecord { return &PreferenceRecord{} },
		GetID: func(r *PreferenceRecord) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID: func(r *PreferenceRecord, id uuid.UUID) {
			if r != nil {
				r.ID = id
			}
		},
	})

	return &Preferences{
		db:    db,
		repo:  repo,
		scope: scope,
	}
}

// Get returns the stored value, or def when the key was never set.
func (p *Preferences) Get(ctx context.Context, key, def string) (string, error) {
	record, err := p.repo.GetByIdentifier(ctx, p.recordID(key).String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return def, nil
		}
		return def, errors.Wrap(err, errors.CategoryInternal, "failed to read preference")
	}
	return record.Value, nil
}

// Set stores the value, replacing any previous one.
func (p *Preferences) Set(ctx context.Context, key, value string) error {
	record := &PreferenceRecord{
		ID:        p.recordID(key),
		Scope:     p.scope,
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now(),
	}

	if _, err := p.repo.Upsert(ctx, record); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to write preference")
	}
	return nil
}

// Locale returns the stored UI locale.
func (p *Preferences) Locale(ctx context.Context, def string) (string, error) {
	return p.Get(ctx, PrefLocale, def)
}

// SetLocale stores the UI locale.
func (p *Preferences) SetLocale(ctx context.Context, locale string) error {
	return p.Set(ctx, PrefLocale, locale)
}

// Theme returns the stored UI theme.
func (p *Preferences) Theme(ctx context.Context, def string) (string, error) {
	return p.Get(ctx, PrefTheme, def)
}

// SetTheme stores the UI theme.
func (p *Preferences) SetTheme(ctx context.Context, theme string) error {
	return p.Set(ctx, PrefTheme, theme)
}

func (p *Preferences) recordID(key string) uuid.UUID {
	seed := "pref:" + p.scope + ":" + key
	if id, err := hashid.NewUUID(seed); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed))
}
