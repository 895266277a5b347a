package app

import (
	"context"
	"fmt"

	"github.com/router-for-me/PersistedObjects/internal/crud"
	"github.com/router-for-me/PersistedObjects/internal/settings"
	"github.com/router-for-me/PersistedObjects/internal/store"
	log "github.com/sirupsen/logrus"
)

// appSetting mirrors the app_settings model.
type appSetting struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description,omitempty"`
}

// category mirrors the categories model.
type category struct {
	ID        string `json:"id,omitempty"`
	Slug      string `json:"slug,omitempty"`
	Title     string `json:"title"`
	Icon      string `json:"icon,omitempty"`
	IsActive  bool   `json:"is_active"`
	SortOrder int64  `json:"sort_order"`
}

// tag mirrors the tags model.
type tag struct {
	Name       string `json:"name"`
	Color      string `json:"color,omitempty"`
	UsageCount int64  `json:"usage_count"`
}

var (
	seedSettings = []appSetting{
		{Key: settings.SiteNameKey, Value: settings.DefaultSiteName, Category: "ui", Description: "Name shown in the admin header"},
		{Key: "items_per_page", Value: "25", Category: "ui", Description: "Default page size of list views"},
	}
	seedCategories = []category{
		{Title: "Getting Started", Icon: "rocket", IsActive: true, SortOrder: 1},
		{Title: "Guides", Icon: "book", IsActive: true, SortOrder: 2},
		{Title: "Archive", Icon: "archive", IsActive: false, SortOrder: 3},
	}
	seedTags = []tag{
		{Name: "featured", Color: "#f59e0b"},
		{Name: "draft", Color: "#6b7280"},
		{Name: "internal", Color: "#ef4444"},
	}
)

// seed inserts sample rows into built-in tables that are still empty. Rows go through the
// services so the model hooks (slugs, normalization) apply.
func seed(ctx context.Context, services map[string]*crud.Service) error {
	if err := seedTable(ctx, services[tableAppSettings], seedSettings); err != nil {
		return err
	}
	if err := seedTable(ctx, services[tableCategories], seedCategories); err != nil {
		return err
	}
	return seedTable(ctx, services[tableTags], seedTags)
}

func seedTable[T any](ctx context.Context, svc *crud.Service, rows []T) error {
	if svc == nil {
		return nil
	}
	typed := store.NewTyped[T](svc.Store())
	_, total, err := typed.List(ctx, store.ListOptions{Limit: 1})
	if err != nil {
		return fmt.Errorf("seed %s: %w", svc.Definition().Table(), err)
	}
	if total != nil && *total > 0 {
		return nil
	}
	for _, row := range rows {
		rec, errConvert := store.ToRecord(row)
		if errConvert != nil {
			return errConvert
		}
		if _, errCreate := svc.Create(ctx, rec); errCreate != nil {
			return fmt.Errorf("seed %s: %w", svc.Definition().Table(), errCreate)
		}
	}
	log.WithFields(log.Fields{"table": svc.Definition().Table(), "rows": len(rows)}).Info("seeded sample data")
	return nil
}
