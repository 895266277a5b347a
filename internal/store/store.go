package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/router-for-me/PersistedObjects/internal/apperrors"
	"github.com/router-for-me/PersistedObjects/internal/db"
	"github.com/router-for-me/PersistedObjects/internal/fields"
	"github.com/router-for-me/PersistedObjects/internal/model"
	"github.com/router-for-me/PersistedObjects/internal/schema"
	"github.com/router-for-me/PersistedObjects/internal/security"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store persists records of one model.
type Store struct {
	conn         *gorm.DB
	materializer *schema.Materializer
	def          *model.Definition
	shape        *schema.Table
	codec        *codec
	now          func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithCipher enables encryption of the JSON column for models that request it.
func WithCipher(c *security.JSONCipher) Option {
	return func(s *Store) { s.codec.cipher = c }
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New builds a store for def. The table is materialized on first use.
func New(conn *gorm.DB, materializer *schema.Materializer, def *model.Definition, opts ...Option) (*Store, error) {
	if conn == nil || materializer == nil || def == nil {
		return nil, apperrors.Config("", "store requires a connection, materializer and definition")
	}
	shape, err := schema.Build(def, materializer.Dialect())
	if err != nil {
		return nil, err
	}
	s := &Store{
		conn:         conn,
		materializer: materializer,
		def:          def,
		shape:        shape,
		codec:        &codec{def: def},
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if def.EncryptJSON() && s.codec.cipher == nil {
		return nil, apperrors.Config(def.Name(), "encrypt_json is set but no encryption key and salt are configured")
	}
	return s, nil
}

// Definition returns the model served by the store.
func (s *Store) Definition() *model.Definition { return s.def }

// Table returns the relational shape of the model.
func (s *Store) Table() *schema.Table { return s.shape }

// ensureTable materializes the table on first use.
func (s *Store) ensureTable(ctx context.Context) error {
	_, err := s.materializer.Materialize(ctx, s.def)
	return err
}

func (s *Store) timestamp() time.Time {
	return fields.NormalizeTime(s.now())
}

// Create inserts a new record. Defaults and generators fill missing fields and
// both timestamps are set by the store.
func (s *Store) Create(ctx context.Context, rec Record) (Record, error) {
	if err := s.ensureTable(ctx); err != nil {
		return nil, err
	}
	input := s.prepare(rec)
	applyDefaults(s.def, input)

	if input[s.def.PrimaryKey()] == nil {
		return nil, apperrors.InvalidField(s.def.PrimaryKey(), "primary key is required")
	}

	now := s.timestamp()
	row, err := s.codec.encode(input, now, now)
	if err != nil {
		return nil, err
	}
	if errCreate := s.conn.WithContext(ctx).Table(s.def.Table()).Create(row).Error; errCreate != nil {
		return nil, s.translateWriteError("create", errCreate)
	}
	out, _ := s.codec.decode(row, true)
	return out, nil
}

// Get returns the record with the given primary key.
func (s *Store) Get(ctx context.Context, id any) (Record, error) {
	if err := s.ensureTable(ctx); err != nil {
		return nil, err
	}
	rec, warning, err := s.load(ctx, s.conn, id)
	if err != nil {
		return nil, err
	}
	logIntegrity(warning)
	return rec, nil
}

// load reads one record and returns the integrity warning raised while decoding it, if any.
func (s *Store) load(ctx context.Context, conn *gorm.DB, id any) (Record, *apperrors.IntegrityWarning, error) {
	key, err := s.primaryKeyValue(id)
	if err != nil {
		return nil, nil, err
	}
	var rows []map[string]any
	errFind := conn.WithContext(ctx).
		Table(s.def.Table()).
		Where(clause.Eq{Column: clause.Column{Name: s.def.PrimaryKey()}, Value: key}).
		Limit(1).
		Find(&rows).Error
	if errFind != nil {
		return nil, nil, fmt.Errorf("store: %s: get: %w", s.def.Table(), errFind)
	}
	if len(rows) == 0 {
		return nil, nil, apperrors.NotFound(s.def.Name(), key)
	}
	rec, warning := s.codec.decode(rows[0], true)
	return rec, warning, nil
}

// Update merges patch onto the stored record and rewrites it.
// The primary key and created_at never change; updated_at never moves backwards.
// A record whose blob cannot be read is left untouched and an IntegrityError is returned.
func (s *Store) Update(ctx context.Context, id any, patch Record) (Record, error) {
	if err := s.ensureTable(ctx); err != nil {
		return nil, err
	}
	key, err := s.primaryKeyValue(id)
	if err != nil {
		return nil, err
	}

	var out Record
	errTx := s.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, warning, errGet := s.load(ctx, tx, key)
		if errGet != nil {
			return errGet
		}
		if warning != nil {
			logIntegrity(warning)
			if warning.Unreadable {
				return apperrors.Integrity(s.def.Name(), warning)
			}
		}
		changes := s.prepare(patch)
		if newKey, ok := changes[s.def.PrimaryKey()]; ok {
			coerced, errKey := fields.Coerce(s.def.PrimaryKeyField().Kind, newKey)
			if errKey != nil || coerced != key {
				return apperrors.InvalidField(s.def.PrimaryKey(), "primary key cannot be changed")
			}
		}

		merged := current.Clone()
		for k, v := range changes {
			merged[k] = v
		}

		createdAt, _ := current[model.CreatedAtColumn].(time.Time)
		updatedAt := s.timestamp()
		if previous, ok := current[model.UpdatedAtColumn].(time.Time); ok && !updatedAt.After(previous) {
			updatedAt = previous.Add(time.Microsecond)
		}
		if createdAt.IsZero() {
			createdAt = updatedAt
		}

		row, errEncode := s.codec.encode(merged, createdAt, updatedAt)
		if errEncode != nil {
			return errEncode
		}
		delete(row, s.def.PrimaryKey())
		errUpdate := tx.Table(s.def.Table()).
			Where(clause.Eq{Column: clause.Column{Name: s.def.PrimaryKey()}, Value: key}).
			Updates(row).Error
		if errUpdate != nil {
			return s.translateWriteError("update", errUpdate)
		}
		row[s.def.PrimaryKey()] = key
		out, _ = s.codec.decode(row, true)
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return out, nil
}

// Delete removes the record and reports whether it existed.
func (s *Store) Delete(ctx context.Context, id any) (bool, error) {
	if err := s.ensureTable(ctx); err != nil {
		return false, err
	}
	key, err := s.primaryKeyValue(id)
	if err != nil {
		return false, err
	}
	res := s.conn.WithContext(ctx).Exec("DELETE FROM ? WHERE ? = ?",
		clause.Table{Name: s.def.Table()},
		clause.Column{Name: s.def.PrimaryKey()},
		key,
	)
	if res.Error != nil {
		return false, fmt.Errorf("store: %s: delete: %w", s.def.Table(), res.Error)
	}
	return res.RowsAffected > 0, nil
}

// prepare copies the declared, non-system fields of rec.
func (s *Store) prepare(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		if model.IsSystemColumn(k) {
			continue
		}
		if _, declared := s.def.Field(k); !declared {
			continue
		}
		out[k] = cloneValue(v)
	}
	return out
}

// applyDefaults fills missing fields from generators and defaults.
func applyDefaults(def *model.Definition, rec Record) {
	for _, f := range def.Fields() {
		if v, ok := rec[f.Name]; ok && v != nil {
			continue
		}
		switch {
		case f.Generator != nil:
			rec[f.Name] = f.Generator()
		case f.Default != nil:
			rec[f.Name] = cloneValue(f.Default)
		}
	}
}

// primaryKeyValue converts an id from a URL or payload into the primary key type.
func (s *Store) primaryKeyValue(id any) (any, error) {
	key, err := fields.Coerce(s.def.PrimaryKeyField().Kind, id)
	if err != nil || key == nil {
		return nil, apperrors.InvalidField(s.def.PrimaryKey(), "invalid primary key")
	}
	return key, nil
}

func (s *Store) decode(row map[string]any, withBlob bool) Record {
	rec, warning := s.codec.decode(row, withBlob)
	logIntegrity(warning)
	return rec
}

func logIntegrity(warning *apperrors.IntegrityWarning) {
	if warning == nil {
		return
	}
	log.WithFields(log.Fields{
		"table": warning.Table,
		"key":   warning.Key,
	}).WithError(warning).Error("stored record could not be read as written")
}

func (s *Store) translateWriteError(op string, err error) error {
	var appErr apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if db.IsUniqueViolation(err) {
		return apperrors.Conflict(s.def.Name(), err)
	}
	if db.IsValueTooLong(err) {
		return apperrors.Validation("%s: value too long for a column", s.def.Name())
	}
	return fmt.Errorf("store: %s: %s: %w", s.def.Table(), op, err)
}
