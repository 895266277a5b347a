package crud

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/router-for-me/PersistedObjects/internal/apperrors"
	"github.com/router-for-me/PersistedObjects/internal/fields"
	"github.com/router-for-me/PersistedObjects/internal/model"
	"github.com/router-for-me/PersistedObjects/internal/store"
)

var validate = validator.New()

// validatePayload checks a create or update payload against the definition.
// System fields are dropped; unknown fields and type mismatches are reported per field.
// On create, required fields without a default must be present.
func validatePayload(def *model.Definition, payload store.Record, creating bool) (store.Record, error) {
	out := make(store.Record, len(payload))
	invalid := &apperrors.ValidationError{Message: "invalid payload"}

	for name, value := range payload {
		if model.IsSystemColumn(name) {
			continue
		}
		f, ok := def.Field(name)
		if !ok {
			invalid.Add(name, "unknown field")
			continue
		}
		if value == nil {
			if f.Required || name == def.PrimaryKey() {
				invalid.Add(name, "must not be null")
				continue
			}
			out[name] = nil
			continue
		}
		if msg := checkValue(f, value); msg != "" {
			invalid.Add(name, msg)
			continue
		}
		out[name] = value
	}

	if creating {
		for _, f := range def.Fields() {
			if _, present := out[f.Name]; present || f.HasDefault() {
				continue
			}
			if f.Required || f.Name == def.PrimaryKey() {
				invalid.Add(f.Name, "is required")
			}
		}
	}
	if err := invalid.ErrOrNil(); err != nil {
		return nil, err
	}
	return out, nil
}

// checkValue returns a message describing why value does not fit f, or "".
func checkValue(f fields.Field, value any) string {
	switch f.Kind {
	case fields.KindString, fields.KindText:
		str, ok := value.(string)
		if !ok {
			return "must be a string"
		}
		if f.Required {
			if err := validate.Var(str, "required"); err != nil {
				return "must not be empty"
			}
		}
		if f.MaxLength > 0 {
			if err := validate.Var(str, "max="+strconv.Itoa(f.MaxLength)); err != nil {
				return fmt.Sprintf("must be at most %d characters", f.MaxLength)
			}
		}
	case fields.KindInteger, fields.KindBoolean, fields.KindDateTime:
		if _, err := fields.Coerce(f.Kind, value); err != nil {
			return err.Error()
		}
	case fields.KindNumber:
		switch value.(type) {
		case json.Number, float64, float32, int, int64, int32:
		default:
			return "must be a number"
		}
	case fields.KindObject:
		if _, ok := value.(map[string]any); !ok {
			return "must be an object"
		}
	case fields.KindArray:
		rv := reflect.ValueOf(value)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return "must be an array"
		}
		if f.Items == "" {
			return ""
		}
		for i := 0; i < rv.Len(); i++ {
			if msg := checkItem(f.Items, rv.Index(i).Interface()); msg != "" {
				return fmt.Sprintf("item %d %s", i, msg)
			}
		}
	}
	return ""
}

func checkItem(kind fields.Kind, value any) string {
	switch kind {
	case fields.KindString, fields.KindText:
		if _, ok := value.(string); !ok {
			return "must be a string"
		}
	case fields.KindObject:
		if _, ok := value.(map[string]any); !ok {
			return "must be an object"
		}
	case fields.KindDateTime:
		if _, ok := value.(time.Time); ok {
			return ""
		}
		fallthrough
	default:
		if _, err := fields.Coerce(kind, value); err != nil {
			return err.Error()
		}
	}
	return ""
}
