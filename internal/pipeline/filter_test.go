package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathFilter_Accept(t *testing.T) {
	root := t.TempDir()
	f := NewPathFilter(root, []string{"generated/"})

	tests := []struct {
		rel  string
		want bool
	}{
		{"main.py", true},
		{"pkg/util.ts", true},
		{"src/lib.rs", true},
		{"cmd/tool.go", true},
		{"README.md", false},
		{".hidden.py", false},
		{"node_modules/dep/index.ts", false},
		{"__pycache__/mod.py", false},
		{"generated/schema.py", false},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			assert.Equal(t, tt.want, f.Accept(tt.rel))
		})
	}
}

func TestPathFilter_Gitignore(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(root, ".gitignore"), []byte("vendor/\nscratch.py\n"), 0o644))

	f := NewPathFilter(root, nil)
	assert.False(t, f.Accept("scratch.py"))
	assert.False(t, f.Accept("vendor/lib.py"))
	assert.True(t, f.Accept("main.py"))
	assert.True(t, f.SkipDir("vendor"))
}

func TestPathFilter_SkipDir(t *testing.T) {
	root := t.TempDir()
	f := NewPathFilter(root, nil)

	assert.True(t, f.SkipDir("node_modules"))
	assert.True(t, f.SkipDir(".git"))
	assert.True(t, f.SkipDir("pkg/__pycache__"))
	assert.False(t, f.SkipDir("pkg"))
}

func TestPathFilter_RelAbs(t *testing.T) {
	root := t.TempDir()
	f := NewPathFilter(root, nil)

	rel, ok := f.Rel(filepath.Join(root, "pkg", "a.py"))
	require.True(t, ok)
	assert.Equal(t, "pkg/a.py", rel)

	_, ok = f.Rel(filepath.Join(root, "..", "outside.py"))
	assert.False(t, ok, "paths outside the root are rejected")

	assert.Equal(t, filepath.Join(root, "pkg", "a.py"), f.Abs("pkg/a.py"))
}
