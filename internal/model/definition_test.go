package model

import (
	"errors"
	"strings"
	"testing"

	"github.com/router-for-me/PersistedObjects/internal/apperrors"
	"github.com/router-for-me/PersistedObjects/internal/fields"
)

func productConfig() Config {
	return Config{
		Name:       "Product",
		Table:      "products",
		PrimaryKey: "sku",
		Indexed:    []string{"category", "name", "in_stock"},
		Unique:     []string{"category,name"},
		Fields: []fields.Field{
			fields.Key("sku", fields.Required()),
			fields.Title("name"),
			fields.Key("category"),
			fields.Standard("in_stock", fields.KindBoolean),
			fields.Standard("tags", fields.KindArray),
			fields.Standard("meta", fields.KindObject),
		},
	}
}

func expectConfigError(t *testing.T, err error, contains string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected config error containing %q, got nil", contains)
	}
	var cfgErr *apperrors.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *apperrors.ConfigError, got %T: %v", err, err)
	}
	if !strings.Contains(err.Error(), contains) {
		t.Fatalf("expected error containing %q, got %q", contains, err.Error())
	}
}

func TestPrimaryKeyAlwaysPromoted(t *testing.T) {
	cfg := productConfig()
	cfg.Indexed = nil
	cfg.Unique = nil
	def, err := NewDefinition(cfg)
	if err != nil {
		t.Fatalf("NewDefinition: %v", err)
	}
	if !def.IsColumn("sku") {
		t.Fatalf("expected primary key sku to be a column")
	}
	cols := def.ColumnFields()
	if len(cols) != 1 || cols[0].Name != "sku" {
		t.Fatalf("expected only sku promoted, got %+v", cols)
	}
}

func TestClassification(t *testing.T) {
	def, err := NewDefinition(productConfig())
	if err != nil {
		t.Fatalf("NewDefinition: %v", err)
	}
	var colNames, blobNames []string
	for _, f := range def.ColumnFields() {
		colNames = append(colNames, f.Name)
	}
	for _, f := range def.BlobFields() {
		blobNames = append(blobNames, f.Name)
	}
	if got := strings.Join(colNames, ","); got != "sku,name,category,in_stock" {
		t.Fatalf("unexpected columns %s", got)
	}
	if got := strings.Join(blobNames, ","); got != "tags,meta" {
		t.Fatalf("unexpected blob fields %s", got)
	}
	uniques := def.Uniques()
	if len(uniques) != 1 || strings.Join(uniques[0], ",") != "category,name" {
		t.Fatalf("unexpected uniques %v", uniques)
	}
}

func TestIndexedNonScalarRejected(t *testing.T) {
	for _, name := range []string{"tags", "meta"} {
		cfg := productConfig()
		cfg.Indexed = append(cfg.Indexed, name)
		_, err := NewDefinition(cfg)
		expectConfigError(t, err, "non-scalar")
	}
	cfg := productConfig()
	cfg.Fields = append(cfg.Fields, fields.Standard("price", fields.KindNumber))
	cfg.Indexed = append(cfg.Indexed, "price")
	_, err := NewDefinition(cfg)
	expectConfigError(t, err, "non-scalar")
}

func TestUniqueOnBlobFieldRejected(t *testing.T) {
	cfg := productConfig()
	cfg.Fields = append(cfg.Fields, fields.Key("brand"))
	cfg.Unique = []string{"category,brand"}
	_, err := NewDefinition(cfg)
	expectConfigError(t, err, "blob-only field \"brand\"")
}

func TestUniqueOnUndeclaredFieldRejected(t *testing.T) {
	cfg := productConfig()
	cfg.Unique = []string{"missing"}
	_, err := NewDefinition(cfg)
	expectConfigError(t, err, "undeclared")
}

func TestPrimaryKeyUniqueSetDropped(t *testing.T) {
	cfg := productConfig()
	cfg.Unique = []string{"sku"}
	def, err := NewDefinition(cfg)
	if err != nil {
		t.Fatalf("NewDefinition: %v", err)
	}
	if len(def.Uniques()) != 0 {
		t.Fatalf("expected primary key unique set to be dropped, got %v", def.Uniques())
	}
}

func TestInvalidConfigs(t *testing.T) {
	cases := map[string]func(*Config){
		"is not a declared field": func(c *Config) { c.PrimaryKey = "nope" },
		"must be a string or integer": func(c *Config) {
			c.PrimaryKey = "in_stock"
		},
		"reserved":              func(c *Config) { c.Fields = append(c.Fields, fields.Standard("created_at", fields.KindDateTime)) },
		"duplicate field":       func(c *Config) { c.Fields = append(c.Fields, fields.Title("name")) },
		"invalid table name":    func(c *Config) { c.Table = "Bad-Table" },
		"invalid field name":    func(c *Config) { c.Fields = append(c.Fields, fields.Title("Bad Name")) },
		"duplicate unique":      func(c *Config) { c.Unique = []string{"name", " name "} },
		"indexed field \"zzz\"": func(c *Config) { c.Indexed = []string{"zzz"} },
	}
	for contains, mutate := range cases {
		cfg := productConfig()
		mutate(&cfg)
		_, err := NewDefinition(cfg)
		expectConfigError(t, err, contains)
	}
}

func TestDefaultsForTableAndPrimaryKey(t *testing.T) {
	def, err := NewDefinition(Config{
		Name:   "AppSetting",
		Fields: []fields.Field{fields.ID("id"), fields.Title("label")},
	})
	if err != nil {
		t.Fatalf("NewDefinition: %v", err)
	}
	if def.Table() != "app_setting" {
		t.Fatalf("expected derived table app_setting, got %s", def.Table())
	}
	if def.PrimaryKey() != "id" {
		t.Fatalf("expected default primary key id, got %s", def.PrimaryKey())
	}
}

func TestFingerprintStable(t *testing.T) {
	a := MustDefinition(productConfig())
	b := MustDefinition(productConfig())
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatalf("expected identical fingerprints")
	}
	cfg := productConfig()
	cfg.Indexed = []string{"category"}
	cfg.Unique = nil
	c := MustDefinition(cfg)
	if c.Fingerprint() == a.Fingerprint() {
		t.Fatalf("expected fingerprint to change with promoted columns")
	}
}

func TestRegistryOrderAndDuplicates(t *testing.T) {
	reg := NewRegistry()
	first := MustDefinition(productConfig())
	second := MustDefinition(Config{Name: "Tag", Table: "tags", PrimaryKey: "name", EncryptJSON: true, Fields: []fields.Field{fields.Key("name")}})
	if err := reg.Register(first); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Register(second); err != nil {
		t.Fatalf("Register: %v", err)
	}
	expectConfigError(t, reg.Register(MustDefinition(productConfig())), "already registered")

	all := reg.All()
	if len(all) != 2 || all[0].Table() != "products" || all[1].Table() != "tags" {
		t.Fatalf("unexpected registration order")
	}
	if _, ok := reg.Lookup("tags"); !ok {
		t.Fatalf("expected lookup by table to succeed")
	}
	if !reg.AnyEncrypted() {
		t.Fatalf("expected AnyEncrypted to be true")
	}
}
