package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"annotate/api/internal/annotation"
)

func TestParseUser(t *testing.T) {
	user, err := parseUser("acct:user1@EdiT")
	require.NoError(t, err)
	assert.Equal(t, annotation.UserRef{Login: "user1", Authority: "EdiT"}, user)

	user, err = parseUser("user2@ecas")
	require.NoError(t, err)
	assert.Equal(t, "ecas", user.Authority)

	for _, raw := range []string{"", "user1", "@EdiT", "user1@"} {
		_, err := parseUser(raw)
		assert.Error(t, err, raw)
	}
}

func TestReadImportFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "annotations.json")
	content := `[
  {"id":"a1","created":"2017-12-22T11:40:57Z","uri":"uri://LEOS/doc1","user":"acct:user1@EdiT","shared":true,"text":"first"},
  {"id":"a2","created":"2017-12-23T11:40:57Z","updated":"2017-12-24T11:40:57Z","uri":"uri://LEOS/doc1","group":"team","user":"user2@EdiT","references":["a1"],"text":"reply"}
]`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	items, err := readImportFile(path)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "__world__", items[0].Scope.Group)
	assert.Equal(t, "EdiT", items[0].Scope.Authority)
	assert.Equal(t, items[0].Created, items[0].Updated)
	assert.False(t, items[0].IsReply())

	assert.Equal(t, "team", items[1].Scope.Group)
	assert.True(t, items[1].IsReply())
	assert.True(t, items[1].Updated.After(items[1].Created))
}

func TestReadImportFileRejectsBadRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "annotations.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id":"a1","uri":"uri://LEOS/doc1","user":"nobody"}]`), 0o600))

	_, err := readImportFile(path)
	assert.ErrorContains(t, err, "record 0")
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"serve", "migrate", "reindex", "import", "client", "group"} {
		assert.True(t, names[want], want)
	}
}
