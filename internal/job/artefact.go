package job

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// Metadata describes the package metadata file written alongside the TE
// main module.
type Metadata struct {
	Name    string
	Version string
	Sources []string
}

// Stage builds the staging directory for a TE artefact: the TE main
// module at __main__, each resolved dependency under repository/
// (creating empty package-init files in intermediate directories), and
// the fixed core-dependency modules copied from coreModulesDir.
//
// stagingDir is created if it does not exist yet (copying the main
// module creates it); the caller controls its lifetime and the final
// move into place.
func Stage(stagingDir, teMainSource string, dependencies []string, docRoot, coreModulesDir string, meta Metadata) error {
	mainDst := filepath.Join(stagingDir, "__main__")
	if err := copyFile(teMainSource, mainDst); err != nil {
		return fmt.Errorf("staging TE main module: %w", err)
	}

	repoDir := filepath.Join(stagingDir, "repository")
	for _, dep := range dependencies {
		rel, err := filepath.Rel(docRoot, dep)
		if err != nil {
			rel = filepath.Base(dep)
		}
		dst := filepath.Join(repoDir, rel)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("creating package dir for %s: %w", rel, err)
		}
		if err := copyFile(dep, dst); err != nil {
			return fmt.Errorf("staging dependency %s: %w", rel, err)
		}
		if err := touchPackageInits(repoDir, filepath.Dir(dst)); err != nil {
			return err
		}
	}

	if coreModulesDir != "" {
		coreDst := filepath.Join(stagingDir, "core")
		if err := copyTree(coreModulesDir, coreDst); err != nil {
			return fmt.Errorf("staging core modules: %w", err)
		}
	}

	return writeMetadata(filepath.Join(stagingDir, "package.meta"), meta)
}

// touchPackageInits creates empty __init__ marker files in every
// directory between repoDir and dir (inclusive), so the staged
// repository/ tree is importable as a package hierarchy.
func touchPackageInits(repoDir, dir string) error {
	for d := dir; strings.HasPrefix(d, repoDir); d = filepath.Dir(d) {
		initFile := filepath.Join(d, "__init__")
		if _, err := os.Stat(initFile); os.IsNotExist(err) {
			if err := os.WriteFile(initFile, nil, 0o644); err != nil {
				return fmt.Errorf("writing package init %s: %w", initFile, err)
			}
		}
		if d == repoDir {
			break
		}
	}
	return nil
}

func writeMetadata(dst string, meta Metadata) error {
	var b strings.Builder
	fmt.Fprintf(&b, "name=%s\n", meta.Name)
	fmt.Fprintf(&b, "version=%s\n", meta.Version)
	fmt.Fprintf(&b, "generated=%s\n", time.Now().UTC().Format(time.RFC3339))
	for _, s := range meta.Sources {
		fmt.Fprintf(&b, "source=%s\n", s)
	}
	return os.WriteFile(dst, []byte(b.String()), 0o644)
}

// Archive packages the staging tree into a single self-contained zip
// archive at archivePath (the "TE artefact").
func Archive(stagingDir, archivePath string) error {
	out, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("creating TE archive: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	defer zw.Close()

	return filepath.Walk(stagingDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(stagingDir, p)
		if err != nil {
			return err
		}
		w, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		src, err := os.Open(p)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(w, src)
		return err
	})
}

func copyFile(srcPath, dstPath string) error {
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return err
	}
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := os.Create(dstPath)
	if err != nil {
		return err
	}
	defer dst.Close()
	_, err = io.Copy(dst, src)
	return err
}

func copyTree(srcDir, dstDir string) error {
	return filepath.Walk(srcDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		dst := path.Join(dstDir, filepath.ToSlash(rel))
		if info.IsDir() {
			return os.MkdirAll(dst, 0o755)
		}
		return copyFile(p, dst)
	})
}
