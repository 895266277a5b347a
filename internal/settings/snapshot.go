// Package settings keeps an in-memory snapshot of the app_settings records.
package settings

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync/atomic"
	"time"

	"github.com/router-for-me/PersistedObjects/internal/crud"
	"github.com/router-for-me/PersistedObjects/internal/model"
	"github.com/router-for-me/PersistedObjects/internal/store"
	log "github.com/sirupsen/logrus"
)

// Setting keys and defaults.
const (
	// SiteNameKey names the admin UI.
	SiteNameKey = "site_name"
	// DefaultSiteName is the fallback admin UI name.
	DefaultSiteName = "Persisted Objects"
)

// snapshot holds the values read by the last refresh.
type snapshot struct {
	updatedAt time.Time
	values    map[string]string
}

// Snapshot caches setting values. It is refreshed at startup and after every settings write.
type Snapshot struct {
	store   *store.Store
	current atomic.Pointer[snapshot]
}

// NewSnapshot returns an empty snapshot over st. st must serve a model with
// "key" and "value" fields.
func NewSnapshot(st *store.Store) *Snapshot {
	s := &Snapshot{store: st}
	s.current.Store(&snapshot{values: map[string]string{}})
	return s
}

// Refresh reloads every setting from the store.
func (s *Snapshot) Refresh(ctx context.Context) error {
	if s == nil || s.store == nil {
		return errors.New("settings: nil store")
	}
	values := map[string]string{}
	latest := time.Time{}
	for skip := 0; ; skip += store.MaxLimit {
		page, err := s.store.Filter(ctx, store.FilterOptions{
			Skip:           skip,
			Limit:          store.MaxLimit,
			UseModelOutput: true,
			DisableTotal:   true,
		})
		if err != nil {
			return fmt.Errorf("settings: refresh: %w", err)
		}
		for _, rec := range page.Items {
			key, _ := rec["key"].(string)
			key = strings.TrimSpace(key)
			if key == "" {
				continue
			}
			values[key] = fmt.Sprint(valueOrEmpty(rec["value"]))
			if updated, ok := rec[model.UpdatedAtColumn].(time.Time); ok && updated.After(latest) {
				latest = updated
			}
		}
		if page.Fetch < store.MaxLimit {
			break
		}
	}
	s.current.Store(&snapshot{updatedAt: latest, values: values})
	return nil
}

func valueOrEmpty(v any) any {
	if v == nil {
		return ""
	}
	return v
}

// Value returns the cached value for key.
func (s *Snapshot) Value(key string) (string, bool) {
	v, ok := s.current.Load().values[strings.TrimSpace(key)]
	return v, ok
}

// ValueOr returns the cached value for key, or fallback when it is unset or blank.
func (s *Snapshot) ValueOr(key, fallback string) string {
	if v, ok := s.Value(key); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

// SiteName returns the configured admin UI name.
func (s *Snapshot) SiteName() string {
	return s.ValueOr(SiteNameKey, DefaultSiteName)
}

// All returns a copy of every cached value.
func (s *Snapshot) All() map[string]string {
	return maps.Clone(s.current.Load().values)
}

// UpdatedAt returns the newest updated_at seen by the last refresh.
func (s *Snapshot) UpdatedAt() time.Time {
	return s.current.Load().updatedAt
}

// Hooks returns after-hooks that refresh the snapshot when settings change.
func (s *Snapshot) Hooks() crud.Hooks {
	refresh := func(ctx context.Context, _ store.Record) error {
		if err := s.Refresh(ctx); err != nil {
			log.WithError(err).Warn("settings snapshot refresh failed")
			return err
		}
		return nil
	}
	return crud.Hooks{AfterCreate: refresh, AfterUpdate: refresh, AfterDelete: refresh}
}
