package schema

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/router-for-me/PersistedObjects/internal/apperrors"
	"github.com/router-for-me/PersistedObjects/internal/db"
	"github.com/router-for-me/PersistedObjects/internal/fields"
	"github.com/router-for-me/PersistedObjects/internal/model"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.Open(fmt.Sprintf("file:schema_%d?mode=memory&cache=shared", time.Now().UnixNano()))
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}

func productDefinition(t *testing.T) *model.Definition {
	t.Helper()
	def, err := model.NewDefinition(model.Config{
		Name:       "Product",
		Table:      "products",
		PrimaryKey: "sku",
		Indexed:    []string{"name", "category", "stock", "in_stock", "released_at", "slug"},
		Unique:     []string{"category,name", "slug"},
		Fields: []fields.Field{
			fields.Key("sku"),
			fields.Title("name"),
			fields.Key("category"),
			fields.Key("slug"),
			fields.Standard("stock", fields.KindInteger),
			fields.Standard("in_stock", fields.KindBoolean),
			fields.Standard("released_at", fields.KindDateTime),
			fields.UnlimitedContent("notes"),
			fields.Standard("tags", fields.KindArray),
		},
	})
	require.NoError(t, err)
	return def
}

func TestBuildTable(t *testing.T) {
	table, err := Build(productDefinition(t), db.DialectPostgres)
	require.NoError(t, err)

	require.Equal(t, []string{"sku", "name", "category", "slug", "stock", "in_stock", "released_at", "created_at", "updated_at", "json_data"}, table.ColumnNames())
	require.Equal(t, []string{"notes", "tags"}, table.BlobFields)

	sku, _ := table.Column("sku")
	require.True(t, sku.PrimaryKey)
	require.Equal(t, "varchar(200)", sku.Type)
	stock, _ := table.Column("stock")
	require.Equal(t, "bigint", stock.Type)
	released, _ := table.Column("released_at")
	require.Equal(t, "timestamptz", released.Type)
	slug, _ := table.Column("slug")
	require.True(t, slug.Unique)

	require.Len(t, table.Uniques, 1)
	require.Equal(t, "uq_products_category_name", table.Uniques[0].Name)

	var indexed []string
	for _, idx := range table.Indexes {
		indexed = append(indexed, idx.Column)
	}
	require.Equal(t, []string{"name", "category", "stock", "in_stock", "released_at"}, indexed)

	stmts := table.CreateStatements()
	require.Contains(t, stmts[0], `CREATE TABLE IF NOT EXISTS "products"`)
	require.Contains(t, stmts[0], `"sku" varchar(200) NOT NULL PRIMARY KEY`)
	require.Contains(t, stmts[0], `"slug" varchar(200) UNIQUE`)
	require.Contains(t, stmts[0], `CONSTRAINT "uq_products_category_name" UNIQUE ("category", "name")`)
	require.Contains(t, stmts[0], `"json_data" text NOT NULL`)
	require.Contains(t, stmts[1], `CREATE INDEX IF NOT EXISTS "ix_products_name"`)
}

func TestBuildSQLiteDateTime(t *testing.T) {
	table, err := Build(productDefinition(t), db.DialectSQLite)
	require.NoError(t, err)
	created, _ := table.Column("created_at")
	require.Equal(t, "datetime", created.Type)
	require.False(t, created.NotNull)
}

func TestConstraintNameShortened(t *testing.T) {
	long := strings.Repeat("a", 40)
	name := constraintName("uq", long, long)
	require.LessOrEqual(t, len(name), maxIdentifierLength)
	require.NotEqual(t, name, constraintName("uq", long, long+"b"))
}

func TestMaterializeIsIdempotent(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	def := productDefinition(t)

	m := NewMaterializer(conn)
	first, err := m.Materialize(ctx, def)
	require.NoError(t, err)
	second, err := m.Materialize(ctx, def)
	require.NoError(t, err)
	require.Same(t, first, second)
	require.Equal(t, 1, m.attempts["products"])

	before, err := conn.Migrator().ColumnTypes("products")
	require.NoError(t, err)

	restarted := NewMaterializer(conn)
	_, err = restarted.Materialize(ctx, def)
	require.NoError(t, err)

	after, err := conn.Migrator().ColumnTypes("products")
	require.NoError(t, err)
	require.Equal(t, len(before), len(after))
	for i := range before {
		require.Equal(t, before[i].Name(), after[i].Name())
		require.Equal(t, before[i].DatabaseTypeName(), after[i].DatabaseTypeName())
	}
}

func TestMaterializeConcurrentFirstUse(t *testing.T) {
	conn := openTestDB(t)
	def := productDefinition(t)
	m := NewMaterializer(conn)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Materialize(context.Background(), def)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 1, m.attempts["products"])
}

func TestMaterializeIgnoresCallerCancellation(t *testing.T) {
	conn := openTestDB(t)
	m := NewMaterializer(conn)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Materialize(ctx, productDefinition(t))
	require.NoError(t, err)
	require.True(t, conn.Migrator().HasTable("products"))
}

func TestMaterializeRejectsConflictingDefinition(t *testing.T) {
	conn := openTestDB(t)
	m := NewMaterializer(conn)
	_, err := m.Materialize(context.Background(), productDefinition(t))
	require.NoError(t, err)

	other := model.MustDefinition(model.Config{
		Name:   "Other",
		Table:  "products",
		Fields: []fields.Field{fields.ID("id")},
	})
	_, err = m.Materialize(context.Background(), other)
	var cfgErr *apperrors.ConfigError
	require.True(t, errors.As(err, &cfgErr), "expected config error, got %v", err)
}

func TestMaterializeAllRecordsSnapshots(t *testing.T) {
	conn := openTestDB(t)
	require.NoError(t, db.Migrate(conn))
	ctx := context.Background()

	reg := model.NewRegistry()
	require.NoError(t, reg.Register(productDefinition(t)))
	require.NoError(t, reg.Register(model.MustDefinition(model.Config{
		Name:       "Tag",
		Table:      "tags",
		PrimaryKey: "name",
		Fields:     []fields.Field{fields.Key("name"), fields.Key("color")},
	})))

	tables, err := NewMaterializer(conn, WithSnapshots()).MaterializeAll(ctx, reg)
	require.NoError(t, err)
	require.Len(t, tables, 2)

	snaps, err := Snapshots(ctx, conn)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	require.Equal(t, "products", snaps[0].Table)
	require.Equal(t, tables[0].Fingerprint, snaps[0].Fingerprint)

	changed := model.MustDefinition(model.Config{
		Name:       "Tag",
		Table:      "tags",
		PrimaryKey: "name",
		Fields:     []fields.Field{fields.Key("name"), fields.Key("color", fields.WithMaxLength(20))},
	})
	_, err = NewMaterializer(conn, WithSnapshots()).Materialize(ctx, changed)
	require.NoError(t, err)

	snaps, err = Snapshots(ctx, conn)
	require.NoError(t, err)
	require.Equal(t, changed.Fingerprint(), snaps[1].Fingerprint)
}
