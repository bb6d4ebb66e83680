package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testTaxonomy = `{"noc": "21234", "title": "Software engineer", "teer": 1, "related_titles": ["Software developer"], "keywords": ["software"], "duties": "Research, design and build software systems. Write and test code."}
{"noc": "31301", "title": "Registered nurse", "teer": 1, "related_titles": ["RN"], "keywords": ["nursing", "patient"], "duties": "Provide patient care, administer medication and monitor patients."}
{"noc": "73300", "title": "Transport truck driver", "teer": 3, "keywords": ["truck"], "duties": "Operate heavy trucks to transport goods over long distances."}
`

const testProjectConfig = `taxonomy:
  path: noc.jsonl
data_dir: .nocmatch
embeddings:
  provider: static
  max_retries: 0
vectors:
  backend: brute
`

// newProject creates an isolated project directory with a small taxonomy
// and the offline static embedder. HOME and XDG_CONFIG_HOME point into the
// test's temp dir so user config and logs never leak.
func newProject(t *testing.T) string {
	t.Helper()

	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	for _, name := range []string{"OPENAI_API_KEY", "OPENAI_MODEL", "TOP_K", "BATCH_SIZE", "NOCMATCH_EMBEDDINGS_PROVIDER"} {
		t.Setenv(name, "")
	}

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "noc.jsonl"), []byte(testTaxonomy), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".nocmatch.yaml"), []byte(testProjectConfig), 0o644))
	return dir
}

// execute runs the root command and returns what it wrote to stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return stdout.String(), err
}
