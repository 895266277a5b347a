package app

import (
	"context"
	"regexp"
	"strings"

	"github.com/router-for-me/PersistedObjects/internal/crud"
	"github.com/router-for-me/PersistedObjects/internal/fields"
	"github.com/router-for-me/PersistedObjects/internal/model"
	"github.com/router-for-me/PersistedObjects/internal/store"
	"github.com/router-for-me/PersistedObjects/internal/ui"
	"github.com/router-for-me/PersistedObjects/internal/util"
	log "github.com/sirupsen/logrus"
)

// Built-in table names.
const (
	tableAppSettings = "app_settings"
	tableCategories  = "categories"
	tableTags        = "tags"
	tableUsers       = "users"
	tableAPIKeys     = "api_keys"
)

// builtinModels returns the built-in catalog. The encrypted api_keys model is only
// included when key material is configured.
func builtinModels(withEncrypted bool) []*model.Definition {
	defs := []*model.Definition{
		model.MustDefinition(model.Config{
			Name:        "AppSettings",
			Table:       tableAppSettings,
			PrimaryKey:  "key",
			Indexed:     []string{"category"},
			Description: "Key-value application settings",
			Fields: []fields.Field{
				fields.Key("key", fields.WithDescription("Setting key")),
				fields.Content("value", fields.WithDescription("Setting value")),
				fields.Key("category", fields.WithDefault("general"), fields.WithUIWidth(2)),
				fields.Description("description"),
			},
		}),
		model.MustDefinition(model.Config{
			Name:        "Category",
			Table:       tableCategories,
			Indexed:     []string{"slug", "is_active", "sort_order"},
			Unique:      []string{"slug"},
			Description: "Content categories",
			Fields: []fields.Field{
				fields.ID("id"),
				fields.Key("slug", fields.WithDescription("URL-friendly slug, derived from the title when empty")),
				fields.Title("title", fields.Required(), fields.WithUIIndex(1)),
				fields.Description("description"),
				fields.Key("icon", fields.WithDefault("folder"), fields.WithUIWidth(2)),
				fields.Standard("is_active", fields.KindBoolean, fields.WithDefault(true), fields.WithUIWidth(1)),
				fields.Standard("sort_order", fields.KindInteger, fields.WithDefault(0), fields.WithUIWidth(1)),
			},
		}),
		model.MustDefinition(model.Config{
			Name:        "Tag",
			Table:       tableTags,
			PrimaryKey:  "name",
			Description: "Labels with a display color",
			Fields: []fields.Field{
				fields.Key("name", fields.WithDescription("Tag name, stored lower case")),
				fields.Key("color", fields.WithMaxLength(7), fields.WithDefault("#3b82f6"),
					fields.WithUIComponent(ui.TagColorPicker, nil), fields.WithUIWidth(2)),
				fields.Standard("usage_count", fields.KindInteger, fields.WithDefault(0)),
			},
		}),
		model.MustDefinition(model.Config{
			Name:        "User",
			Table:       tableUsers,
			Indexed:     []string{"email", "username", "is_active", "role", "last_login"},
			Unique:      []string{"email", "username"},
			Description: "Admin users",
			Fields: []fields.Field{
				fields.ID("id"),
				fields.Key("email", fields.Required()),
				fields.Key("username", fields.Required()),
				fields.Title("full_name"),
				fields.Password("password"),
				fields.Key("role", fields.WithDefault("user"), fields.WithUIComponent(ui.TagStatusBadge, map[string]any{
					"options": []any{"admin", "user", "guest"},
					"colors":  map[string]any{"admin": "red", "user": "blue", "guest": "gray"},
				})),
				fields.Standard("is_active", fields.KindBoolean, fields.WithDefault(true)),
				fields.Standard("last_login", fields.KindDateTime),
				fields.Standard("tags", fields.KindArray, fields.WithItems(fields.KindString)),
				fields.Standard("permissions", fields.KindArray, fields.WithItems(fields.KindString)),
				fields.Standard("profile", fields.KindObject),
			},
		}),
	}
	if withEncrypted {
		defs = append(defs, model.MustDefinition(model.Config{
			Name:        "ApiKey",
			Table:       tableAPIKeys,
			Indexed:     []string{"name", "is_active", "expires_at"},
			Unique:      []string{"name"},
			EncryptJSON: true,
			Description: "Third-party API credentials, stored encrypted",
			Fields: []fields.Field{
				fields.ID("id"),
				fields.Key("name", fields.Required()),
				fields.Key("provider"),
				fields.Content("secret", fields.Required(), fields.WithUIComponent(ui.TagPassword, nil)),
				fields.Standard("scopes", fields.KindArray, fields.WithItems(fields.KindString)),
				fields.Standard("is_active", fields.KindBoolean, fields.WithDefault(true)),
				fields.Standard("expires_at", fields.KindDateTime),
			},
		}))
	}
	return defs
}

// builtinHooks returns the lifecycle hooks of a built-in model. ok is false for other models.
func builtinHooks(def *model.Definition) (hooks crud.Hooks, ok bool) {
	switch def.Table() {
	case tableAppSettings:
		return crud.Hooks{}, true
	case tableCategories:
		return categoryHooks(), true
	case tableTags:
		return tagHooks(), true
	case tableUsers:
		return crud.ChainHooks(userHooks(), crud.HashPasswords(def)), true
	case tableAPIKeys:
		return apiKeyHooks(), true
	}
	return crud.Hooks{}, false
}

var (
	slugInvalid   = regexp.MustCompile(`[^\w\s-]`)
	slugSeparator = regexp.MustCompile(`[\s_]+`)
	slugDashes    = regexp.MustCompile(`-+`)
)

// slugify converts text to a URL-friendly slug no longer than a key field.
func slugify(text string) string {
	slug := strings.ToLower(strings.TrimSpace(text))
	slug = slugInvalid.ReplaceAllString(slug, "")
	slug = slugSeparator.ReplaceAllString(slug, "-")
	slug = slugDashes.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > fields.KeyLength {
		slug = strings.TrimRight(slug[:fields.KeyLength], "-")
	}
	return slug
}

func categoryHooks() crud.Hooks {
	return crud.Hooks{
		BeforeCreate: func(_ context.Context, payload store.Record) (store.Record, error) {
			if slug, _ := payload["slug"].(string); strings.TrimSpace(slug) == "" {
				if title, ok := payload["title"].(string); ok {
					payload["slug"] = slugify(title)
				}
			}
			return payload, nil
		},
		BeforeUpdate: func(_ context.Context, current, patch store.Record) (store.Record, error) {
			title, changed := patch["title"].(string)
			if _, explicit := patch["slug"]; !changed || explicit {
				return patch, nil
			}
			oldTitle, _ := current["title"].(string)
			if oldSlug, _ := current["slug"].(string); oldSlug == slugify(oldTitle) {
				patch["slug"] = slugify(title)
			}
			return patch, nil
		},
		AfterDelete: func(_ context.Context, deleted store.Record) error {
			log.WithField("slug", deleted["slug"]).Info("category deleted")
			return nil
		},
	}
}

func tagHooks() crud.Hooks {
	normalize := func(payload store.Record) store.Record {
		if name, ok := payload["name"].(string); ok {
			payload["name"] = strings.ToLower(strings.TrimSpace(name))
		}
		if color, ok := payload["color"].(string); ok {
			payload["color"] = strings.ToLower(strings.TrimSpace(color))
		}
		return payload
	}
	return crud.Hooks{
		BeforeCreate: func(_ context.Context, payload store.Record) (store.Record, error) {
			return normalize(payload), nil
		},
		BeforeUpdate: func(_ context.Context, _ store.Record, patch store.Record) (store.Record, error) {
			return normalize(patch), nil
		},
	}
}

func userHooks() crud.Hooks {
	normalize := func(payload store.Record) store.Record {
		if email, ok := payload["email"].(string); ok {
			payload["email"] = strings.ToLower(strings.TrimSpace(email))
		}
		if username, ok := payload["username"].(string); ok {
			payload["username"] = strings.TrimSpace(username)
		}
		return payload
	}
	return crud.Hooks{
		BeforeCreate: func(_ context.Context, payload store.Record) (store.Record, error) {
			return normalize(payload), nil
		},
		BeforeUpdate: func(_ context.Context, _ store.Record, patch store.Record) (store.Record, error) {
			return normalize(patch), nil
		},
	}
}

func apiKeyHooks() crud.Hooks {
	return crud.Hooks{
		AfterCreate: func(_ context.Context, created store.Record) error {
			secret, _ := created["secret"].(string)
			log.WithFields(log.Fields{
				"name":   created["name"],
				"secret": util.HideSecret(secret),
			}).Info("api key stored")
			return nil
		},
	}
}
