package commands

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const memoryConfig = `
collection:
  name: text_search
  dimension: 384
embedder:
  type: tfidf
vector_store:
  type: memory
log:
  level: error
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "semsearch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func sqliteConfig(t *testing.T) string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "semsearch.db")
	return writeConfig(t, `
collection:
  name: text_search
  dimension: 384
  recreate: false
embedder:
  type: tfidf
vector_store:
  type: sqlite
  sqlite:
    path: `+db+`
log:
  level: error
`)
}

// execute runs the root command with args and returns what it wrote to stdout.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}
