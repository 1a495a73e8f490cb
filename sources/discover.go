// sources/discover.go
package sources

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gewnthar/favdemand/models"
)

// SourceFile is one export found in the data directory.
type SourceFile struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
}

// Discover lists source files directly inside dir (no recursion) whose extension is in
// exts, sorted by filename. Office lock files (~$name) and dotfiles are skipped.
// A missing directory or an empty result is reported as models.ErrNoData.
func Discover(dir string, exts []string) ([]SourceFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: directory %s not found", models.ErrNoData, dir)
		}
		return nil, fmt.Errorf("failed to read data directory %s: %w", dir, err)
	}

	allowed := make(map[string]bool, len(exts))
	for _, e := range exts {
		allowed[strings.ToLower(e)] = true
	}

	var files []SourceFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, "~$") || strings.HasPrefix(name, ".") {
			continue
		}
		if !allowed[strings.ToLower(filepath.Ext(name))] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Vanished between ReadDir and Info.
			continue
		}
		files = append(files, SourceFile{
			Name:    name,
			Path:    filepath.Join(dir, name),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no source files in %s", models.ErrNoData, dir)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// FileSetKey derives the persistent cache key for a set of files from each file's name,
// modification time and size. Input order does not matter.
func FileSetKey(files []SourceFile) string {
	parts := make([]string, 0, len(files))
	for _, f := range files {
		parts = append(parts, fmt.Sprintf("%s:%d:%d", f.Name, f.ModTime.UnixNano(), f.Size))
	}
	sort.Strings(parts)
	sum := md5.Sum([]byte(strings.Join(parts, "|")))
	return "products_" + hex.EncodeToString(sum[:])
}

// Split separates the quick-start file (matched by exact filename) from the rest,
// keeping the others in order. quick is nil when the file is not present.
func Split(files []SourceFile, quickStart string) (quick *SourceFile, rest []SourceFile) {
	for i := range files {
		if quick == nil && files[i].Name == quickStart {
			f := files[i]
			quick = &f
			continue
		}
		rest = append(rest, files[i])
	}
	return quick, rest
}
