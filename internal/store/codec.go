package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/router-for-me/PersistedObjects/internal/apperrors"
	"github.com/router-for-me/PersistedObjects/internal/fields"
	"github.com/router-for-me/PersistedObjects/internal/model"
	"github.com/router-for-me/PersistedObjects/internal/security"
	log "github.com/sirupsen/logrus"
)

// codec splits records into column values and the JSON blob, and reassembles rows.
type codec struct {
	def    *model.Definition
	cipher *security.JSONCipher
}

// encode builds the row written to the table. Unknown keys are ignored.
func (c *codec) encode(rec Record, createdAt, updatedAt time.Time) (map[string]any, error) {
	row := make(map[string]any, len(rec)+3)
	blob := make(map[string]any)
	invalid := &apperrors.ValidationError{Message: "invalid payload"}

	for _, f := range c.def.Fields() {
		value, present := rec[f.Name]
		if c.def.IsColumn(f.Name) {
			coerced, err := fields.Coerce(f.Kind, value)
			if err != nil {
				invalid.Add(f.Name, err.Error())
				continue
			}
			row[f.Name] = coerced
			continue
		}
		if present {
			if t, ok := value.(time.Time); ok {
				value = fields.NormalizeTime(t)
			}
			blob[f.Name] = value
		}
	}
	if errInvalid := invalid.ErrOrNil(); errInvalid != nil {
		return nil, errInvalid
	}

	payload, err := c.encodeBlob(blob)
	if err != nil {
		return nil, err
	}
	row[model.CreatedAtColumn] = fields.NormalizeTime(createdAt)
	row[model.UpdatedAtColumn] = fields.NormalizeTime(updatedAt)
	row[model.BlobColumn] = payload
	return row, nil
}

func (c *codec) encodeBlob(blob map[string]any) (string, error) {
	raw, err := json.Marshal(blob)
	if err != nil {
		return "", apperrors.Validation("blob fields are not JSON serializable: %v", err)
	}
	if !c.def.EncryptJSON() {
		return string(raw), nil
	}
	sealed, err := c.cipher.Encrypt(raw)
	if err != nil {
		return "", fmt.Errorf("store: %s: encrypt: %w", c.def.Table(), err)
	}
	return sealed, nil
}

// decode converts a driver row into a record. When withBlob is false the JSON column is ignored.
// A blob that cannot be read yields the column values and an integrity warning.
func (c *codec) decode(row map[string]any, withBlob bool) (Record, *apperrors.IntegrityWarning) {
	rec := make(Record, len(row))
	for _, f := range c.def.ColumnFields() {
		value, ok := row[f.Name]
		if !ok {
			continue
		}
		rec[f.Name] = readColumn(f.Kind, value)
	}
	for _, name := range []string{model.CreatedAtColumn, model.UpdatedAtColumn} {
		if value, ok := row[name]; ok {
			rec[name] = readTimestamp(value)
		}
	}
	if !withBlob {
		return rec, nil
	}

	raw := blobText(row[model.BlobColumn])
	blob, warning := c.decodeBlob(raw)
	if warning != nil {
		warning.Key = rec[c.def.PrimaryKey()]
	}
	for _, f := range c.def.BlobFields() {
		if value, ok := blob[f.Name]; ok {
			rec[f.Name] = value
		}
	}
	return rec, warning
}

// decodeBlob reads the JSON column. Values carrying the ciphertext prefix are decrypted;
// anything else is read as plaintext JSON written before encryption was enabled.
// A prefixed value that fails to decrypt is reported and the plaintext reading is still attempted.
func (c *codec) decodeBlob(raw string) (map[string]any, *apperrors.IntegrityWarning) {
	if raw == "" {
		return map[string]any{}, nil
	}

	var warning *apperrors.IntegrityWarning
	payload := []byte(raw)
	if security.IsCiphertext(raw) {
		if c.cipher == nil {
			warning = &apperrors.IntegrityWarning{Table: c.def.Table(), Reason: "encrypted blob but no cipher configured"}
		} else if plain, err := c.cipher.Decrypt(raw); err != nil {
			warning = &apperrors.IntegrityWarning{Table: c.def.Table(), Reason: "blob decryption failed", Cause: err}
		} else {
			payload = plain
		}
	} else if c.def.EncryptJSON() {
		log.WithField("table", c.def.Table()).Debug("reading plaintext blob on encrypted model")
	}

	blob, err := unmarshalBlob(payload)
	if err != nil {
		if warning == nil {
			warning = &apperrors.IntegrityWarning{Table: c.def.Table(), Reason: "blob is not valid JSON", Cause: err}
		}
		warning.Unreadable = true
		return map[string]any{}, warning
	}
	if warning != nil {
		// The plaintext fallback parsed; the record is readable but was not written as ciphertext.
		warning.Reason += "; plaintext fallback succeeded"
	}
	return blob, warning
}

func unmarshalBlob(payload []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var blob map[string]any
	if err := dec.Decode(&blob); err != nil {
		return nil, err
	}
	if blob == nil {
		return nil, errors.New("blob is not a JSON object")
	}
	normalizeJSON(blob)
	return blob, nil
}

func blobText(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	case nil:
		return ""
	default:
		return fmt.Sprint(val)
	}
}

// readColumn converts a driver value to the record representation, keeping unknown shapes as is.
func readColumn(kind fields.Kind, v any) any {
	if v == nil {
		return nil
	}
	if coerced, err := fields.Coerce(kind, v); err == nil {
		return coerced
	}
	return v
}

func readTimestamp(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		return fields.NormalizeTime(val)
	case string:
		if t, err := fields.ParseTime(val); err == nil {
			return t
		}
	case []byte:
		if t, err := fields.ParseTime(string(val)); err == nil {
			return t
		}
	}
	return v
}
