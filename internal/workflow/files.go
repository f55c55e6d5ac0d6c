package workflow

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"reel/internal/encoding"
)

// makemkvTemp matches the scratch names MakeMKV uses while a title is still
// being written, for example "B1_t00.mkv".
var makemkvTemp = regexp.MustCompile(`^[A-Za-z0-9]{2}_[A-Za-z][0-9]{2}\.mkv$`)

// IsTempRip reports whether name is an unfinished MakeMKV output.
func IsTempRip(name string) bool {
	return makemkvTemp.MatchString(name)
}

// IsMediaFile reports whether name has one of exts and is neither a temp rip
// nor a partial encode.
func IsMediaFile(name string, exts []string) bool {
	if IsTempRip(name) || encoding.IsPartial(name) || strings.HasPrefix(name, ".") {
		return false
	}
	return slices.Contains(exts, strings.ToLower(filepath.Ext(name)))
}

// ListMediaFiles returns media files below dir as paths relative to dir in
// lexicographic order. When subset is non-empty only those entries are
// returned.
func ListMediaFiles(dir string, exts []string, subset []string) ([]string, error) {
	if len(subset) > 0 {
		out := make([]string, 0, len(subset))
		for _, rel := range subset {
			if !IsMediaFile(filepath.Base(rel), exts) {
				continue
			}
			out = append(out, filepath.Clean(rel))
		}
		slices.Sort(out)
		return slices.Compact(out), nil
	}

	var out []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !IsMediaFile(d.Name(), exts) {
			return nil
		}
		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			return relErr
		}
		out = append(out, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	slices.Sort(out)
	return out, nil
}
