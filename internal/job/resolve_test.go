package job

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSourceFile(t *testing.T, root, relPath, content string) {
	t.Helper()
	full := filepath.Join(root, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestTextImportResolverLinearChain(t *testing.T) {
	root := t.TempDir()
	writeSourceFile(t, root, "main.ats", "import from lib.util;\n")
	writeSourceFile(t, root, "lib/util.ats", "# no imports\n")

	r := TextImportResolver{}
	deps, err := r.Resolve(filepath.Join(root, "main.ats"), root)
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, filepath.Join(root, "lib", "util.ats"), deps[0])
}

func TestTextImportResolverDetectsCycle(t *testing.T) {
	root := t.TempDir()
	writeSourceFile(t, root, "a.ats", "import from b;\n")
	writeSourceFile(t, root, "b.ats", "import from a;\n")

	r := TextImportResolver{}
	_, err := r.Resolve(filepath.Join(root, "a.ats"), root)
	assert.ErrorIs(t, err, ErrCyclicDependency)
}

func TestTextImportResolverDedupesDiamond(t *testing.T) {
	root := t.TempDir()
	writeSourceFile(t, root, "main.ats", "import from left;\nimport from right;\n")
	writeSourceFile(t, root, "left.ats", "import from shared;\n")
	writeSourceFile(t, root, "right.ats", "import from shared;\n")
	writeSourceFile(t, root, "shared.ats", "# leaf\n")

	r := TextImportResolver{}
	deps, err := r.Resolve(filepath.Join(root, "main.ats"), root)
	require.NoError(t, err)
	assert.Len(t, deps, 3)
}
