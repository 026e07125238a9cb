package job

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrCyclicDependency is returned by a DependencyResolver when the
// import graph rooted at a source contains a cycle.
var ErrCyclicDependency = errors.New("cyclic dependency")

// DependencyResolver resolves the transitive set of source files an ATS
// depends on, recursively, over the document root (or a package's src/
// sub-tree when the source lives in a package). Pluggable so job
// preparation can swap in a different import-analysis strategy.
type DependencyResolver interface {
	Resolve(sourcePath, root string) ([]string, error)
}

// importPattern matches Testerman's "import from <dotted.path>" directive,
// one per line, mirroring the regex-based import extraction the original
// implementation performs over ATS source text (see DESIGN.md).
var importPattern = regexp.MustCompile(`(?m)^\s*import\s+from\s+([A-Za-z_][A-Za-z0-9_.]*)\s*;?\s*$`)

// TextImportResolver is the default DependencyResolver: it regex-scans
// source text for import directives and resolves each dotted module
// path to an absolute file under root, recursing into each resolved
// dependency's own imports.
type TextImportResolver struct{}

// Resolve implements DependencyResolver.
func (TextImportResolver) Resolve(sourcePath, root string) ([]string, error) {
	seen := make(map[string]bool)
	order := make([]string, 0, 8)
	visiting := make(map[string]bool)

	var visit func(path string) error
	visit = func(path string) error {
		abs := path
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(root, path)
		}
		if seen[abs] {
			return nil
		}
		if visiting[abs] {
			return fmt.Errorf("%w: %s", ErrCyclicDependency, abs)
		}
		visiting[abs] = true
		defer delete(visiting, abs)

		imports, err := scanImports(abs)
		if err != nil {
			return err
		}
		for _, imp := range imports {
			depPath := dottedToPath(root, imp)
			if err := visit(depPath); err != nil {
				return err
			}
		}

		seen[abs] = true
		order = append(order, abs)
		return nil
	}

	if err := visit(sourcePath); err != nil {
		return nil, err
	}

	// Drop the root source itself — callers want dependencies, not the
	// entry point, which the TE factory packages separately.
	result := make([]string, 0, len(order))
	rootAbs := sourcePath
	if !filepath.IsAbs(rootAbs) {
		rootAbs = filepath.Join(root, sourcePath)
	}
	for _, p := range order {
		if p != rootAbs {
			result = append(result, p)
		}
	}
	return result, nil
}

func scanImports(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading source %s: %w", path, err)
	}
	defer f.Close()

	var imports []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if m := importPattern.FindStringSubmatch(line); m != nil {
			imports = append(imports, m[1])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning source %s: %w", path, err)
	}
	return imports, nil
}

// dottedToPath turns "a.b.c" into "<root>/a/b/c.ats", the document-root
// relative layout Testerman sources live under.
func dottedToPath(root, dotted string) string {
	segments := strings.Split(dotted, ".")
	return filepath.Join(append([]string{root}, segments...)...) + ".ats"
}
