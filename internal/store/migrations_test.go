package store

import (
	"io/fs"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsHaveUpAndDownSections(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, migrationsDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries, "no migrations embedded")

	pattern := regexp.MustCompile(`^(\d{5})_[a-z_]+\.sql$`)
	seen := map[string]string{}
	for _, entry := range entries {
		name := entry.Name()
		match := pattern.FindStringSubmatch(name)
		require.NotNil(t, match, "unexpected migration file name %s", name)

		version := match[1]
		if previous, dup := seen[version]; dup {
			t.Fatalf("version %s used by %s and %s", version, previous, name)
		}
		seen[version] = name

		contents, err := fs.ReadFile(migrationsFS, migrationsDir+"/"+name)
		require.NoError(t, err)
		body := string(contents)
		up := strings.Index(body, "-- +goose Up")
		down := strings.Index(body, "-- +goose Down")
		assert.GreaterOrEqual(t, up, 0, "%s has no Up section", name)
		assert.Greater(t, down, up, "%s must declare Down after Up", name)
	}
}

func TestAnnotationIDsUseByteOrder(t *testing.T) {
	contents, err := fs.ReadFile(migrationsFS, migrationsDir+"/00001_annotations.sql")
	require.NoError(t, err)
	assert.Contains(t, string(contents), `id              TEXT COLLATE "C" PRIMARY KEY`)
}
