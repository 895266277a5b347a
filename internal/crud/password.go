package crud

import (
	"context"

	"github.com/router-for-me/PersistedObjects/internal/fields"
	"github.com/router-for-me/PersistedObjects/internal/model"
	"github.com/router-for-me/PersistedObjects/internal/security"
	"github.com/router-for-me/PersistedObjects/internal/store"
)

// HashPasswords returns hooks that bcrypt-hash every PasswordField value before it is written.
// Values that are already bcrypt hashes are left alone, so edit forms may send them back.
func HashPasswords(def *model.Definition) Hooks {
	var names []string
	for _, f := range def.Fields() {
		if f.UI.Component == fields.ComponentPassword {
			names = append(names, f.Name)
		}
	}
	if len(names) == 0 {
		return Hooks{}
	}
	hash := func(payload store.Record) (store.Record, error) {
		for _, name := range names {
			plain, ok := payload[name].(string)
			if !ok || plain == "" || security.IsPasswordHash(plain) {
				continue
			}
			hashed, err := security.HashPassword(plain)
			if err != nil {
				return nil, err
			}
			payload[name] = hashed
		}
		return payload, nil
	}
	return Hooks{
		BeforeCreate: func(_ context.Context, payload store.Record) (store.Record, error) {
			return hash(payload)
		},
		BeforeUpdate: func(_ context.Context, _ store.Record, patch store.Record) (store.Record, error) {
			return hash(patch)
		},
	}
}
