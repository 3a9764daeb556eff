package postgres

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sqlFile(body string) *fstest.MapFile {
	return &fstest.MapFile{Data: []byte(body)}
}

func TestParseMigrations_OrdersByVersion(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/0010_reviews.up.sql":     sqlFile("CREATE TABLE reviews (id INT);"),
		"sql/migrations/0010_reviews.down.sql":   sqlFile("DROP TABLE reviews;"),
		"sql/migrations/0002_products.up.sql":    sqlFile("CREATE TABLE products (id INT);"),
		"sql/migrations/0002_products.down.sql":  sqlFile("DROP TABLE products;"),
		"sql/migrations/README.md":               sqlFile("ignored"),
		"sql/migrations/0001_collections.up.sql": sqlFile("CREATE TABLE collections (id INT);"),
		"sql/migrations/0001_collections.down.sql": sqlFile(
			"DROP TABLE collections;"),
	}

	plan, err := parseMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, plan, 3)

	labels := make([]string, 0, len(plan))
	for _, m := range plan {
		labels = append(labels, m.label())
	}
	assert.Equal(t, []string{"0001_collections", "0002_products", "0010_reviews"}, labels)
	assert.Equal(t, "DROP TABLE products;", plan[1].down)
}

func TestParseMigrations_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		fsys    fstest.MapFS
		wantErr string
	}{
		{
			name: "missing down",
			fsys: fstest.MapFS{
				"sql/migrations/0001_init.up.sql": sqlFile("CREATE TABLE a (id INT);"),
			},
			wantErr: "needs both up and down",
		},
		{
			name: "bad file name",
			fsys: fstest.MapFS{
				"sql/migrations/init.sql": sqlFile("SELECT 1;"),
			},
			wantErr: "bad migration file name",
		},
		{
			name: "blank script",
			fsys: fstest.MapFS{
				"sql/migrations/0001_init.up.sql":   sqlFile("  \n"),
				"sql/migrations/0001_init.down.sql": sqlFile("DROP TABLE a;"),
			},
			wantErr: "is empty",
		},
		{
			name: "name clash within version",
			fsys: fstest.MapFS{
				"sql/migrations/0001_init.up.sql":    sqlFile("CREATE TABLE a (id INT);"),
				"sql/migrations/0001_other.down.sql": sqlFile("DROP TABLE a;"),
			},
			wantErr: "is used by",
		},
		{
			name:    "no migrations",
			fsys:    fstest.MapFS{"sql/migrations/.keep": sqlFile("")},
			wantErr: "no migrations embedded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := parseMigrations(tt.fsys)
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestParseMigrations_EmbeddedSchema(t *testing.T) {
	t.Parallel()

	plan, err := parseMigrations(embeddedMigrations)
	require.NoError(t, err)
	require.Len(t, plan, 3)
	assert.Equal(t, "0001_users_catalog", plan[0].label())
	assert.Equal(t, "0003_outbox_idempotency", plan[2].label())
}
