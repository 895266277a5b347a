package schema

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/router-for-me/PersistedObjects/internal/apperrors"
	"github.com/router-for-me/PersistedObjects/internal/db"
	"github.com/router-for-me/PersistedObjects/internal/model"
	"github.com/router-for-me/PersistedObjects/internal/models"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Materializer creates model tables once per process.
type Materializer struct {
	conn      *gorm.DB
	dialect   string
	snapshots bool

	mu       sync.Mutex
	tables   map[string]*Table
	attempts map[string]int
	group    singleflight.Group
}

// MaterializerOption customizes a Materializer.
type MaterializerOption func(*Materializer)

// WithSnapshots records every materialized table in the persisted_tables system table.
func WithSnapshots() MaterializerOption {
	return func(m *Materializer) { m.snapshots = true }
}

// NewMaterializer constructs a materializer bound to a connection.
func NewMaterializer(conn *gorm.DB, opts ...MaterializerOption) *Materializer {
	m := &Materializer{
		conn:     conn,
		dialect:  db.DialectName(conn),
		tables:   make(map[string]*Table),
		attempts: make(map[string]int),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Dialect returns the dialect tables are rendered for.
func (m *Materializer) Dialect() string { return m.dialect }

// Materialize ensures the table for def exists and returns its shape.
// Repeated calls for the same definition are served from the cache.
func (m *Materializer) Materialize(ctx context.Context, def *model.Definition) (*Table, error) {
	if def == nil {
		return nil, apperrors.Config("", "nil definition")
	}
	if t, ok := m.cached(def.Table()); ok {
		return checkFingerprint(t, def)
	}

	// The flight is shared by concurrent callers and runs detached from any one caller's cancellation.
	flightCtx := context.WithoutCancel(ctx)
	result, err, _ := m.group.Do(def.Table(), func() (any, error) {
		if t, ok := m.cached(def.Table()); ok {
			return t, nil
		}
		t, errBuild := Build(def, m.dialect)
		if errBuild != nil {
			return nil, errBuild
		}
		if errCreate := m.create(flightCtx, t); errCreate != nil {
			return nil, errCreate
		}
		m.mu.Lock()
		m.tables[t.Name] = t
		m.mu.Unlock()
		if m.snapshots {
			m.recordSnapshot(flightCtx, t)
		}
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return checkFingerprint(result.(*Table), def)
}

// MaterializeAll materializes every registered model in registration order and stops at the first error.
func (m *Materializer) MaterializeAll(ctx context.Context, registry *model.Registry) ([]*Table, error) {
	defs := registry.All()
	out := make([]*Table, 0, len(defs))
	for _, def := range defs {
		t, err := m.Materialize(ctx, def)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Table returns a materialized table by name.
func (m *Materializer) Table(name string) (*Table, bool) {
	return m.cached(name)
}

func (m *Materializer) cached(name string) (*Table, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[name]
	return t, ok
}

func checkFingerprint(t *Table, def *model.Definition) (*Table, error) {
	if t.Fingerprint != def.Fingerprint() {
		return nil, apperrors.Config(def.Name(), "table %q is already materialized with a different definition (model %s)", t.Name, t.Model)
	}
	return t, nil
}

// create runs the DDL. Objects that already exist are accepted so other processes may race on startup.
func (m *Materializer) create(ctx context.Context, t *Table) error {
	m.mu.Lock()
	m.attempts[t.Name]++
	m.mu.Unlock()

	for _, stmt := range t.CreateStatements() {
		errExec := m.conn.WithContext(ctx).Exec(stmt).Error
		if errExec == nil {
			continue
		}
		// Concurrent CREATE TABLE IF NOT EXISTS on postgres can collide on pg_type.
		if db.IsAlreadyExists(errExec) || db.IsUniqueViolation(errExec) {
			log.WithFields(log.Fields{"table": t.Name}).Debugf("materialize: object already exists: %v", errExec)
			continue
		}
		return fmt.Errorf("schema: create table %s: %w", t.Name, errExec)
	}
	log.WithFields(log.Fields{
		"table":   t.Name,
		"model":   t.Model,
		"columns": len(t.Columns),
		"blob":    len(t.BlobFields),
	}).Info("materialized table")
	return nil
}

// recordSnapshot upserts the derived table and warns when it drifted from the previous snapshot.
func (m *Materializer) recordSnapshot(ctx context.Context, t *Table) {
	payload, errMarshal := json.Marshal(t)
	if errMarshal != nil {
		log.WithError(errMarshal).Warn("materialize: encode snapshot")
		return
	}
	conn := m.conn.WithContext(ctx)

	var previous models.TableSnapshot
	errFind := conn.Where("table_name = ?", t.Name).Take(&previous).Error
	switch {
	case errFind == nil && previous.Fingerprint != t.Fingerprint:
		log.WithFields(log.Fields{
			"table":    t.Name,
			"previous": previous.Fingerprint,
			"current":  t.Fingerprint,
		}).Warn("model definition changed since the table was created; existing columns are not altered")
	case errFind != nil && !errors.Is(errFind, gorm.ErrRecordNotFound):
		log.WithError(errFind).WithField("table", t.Name).Warn("materialize: read snapshot")
		return
	}

	now := time.Now().UTC()
	row := models.TableSnapshot{
		Table:       t.Name,
		ModelName:   t.Model,
		Fingerprint: t.Fingerprint,
		Definition:  datatypes.JSON(payload),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	errSave := conn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "table_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"model_name", "fingerprint", "definition", "updated_at"}),
	}).Create(&row).Error
	if errSave != nil {
		log.WithError(errSave).WithField("table", t.Name).Warn("materialize: save snapshot")
	}
}

// Snapshots returns every recorded table snapshot ordered by table name.
func Snapshots(ctx context.Context, conn *gorm.DB) ([]models.TableSnapshot, error) {
	var rows []models.TableSnapshot
	if err := conn.WithContext(ctx).Order("table_name ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("schema: list snapshots: %w", err)
	}
	return rows, nil
}
