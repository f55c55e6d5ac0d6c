package pathmap

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"reel/internal/config"
	"reel/internal/protocol"
	"reel/internal/services"
)

// Layout names a source tree convention.
type Layout string

const (
	LayoutAuto  Layout = "auto"
	LayoutFlat  Layout = "flat"
	LayoutSplit Layout = "split"
)

// SourceTypeMarker is the file name consulted by DetectSourceType.
const SourceTypeMarker = ".source_type"

// ErrUnmapped reports a source path outside the configured source tree.
var ErrUnmapped = errors.New("path outside source tree")

// Root is one scan root: the source base itself for flat layouts, or one of
// its dvd/bluray children for split layouts.
type Root struct {
	SourceType protocol.SourceType
	Dir        string
}

// Resolution is the outcome of mapping one source directory.
type Resolution struct {
	DestDir    string
	Mode       protocol.Mode
	SourceType protocol.SourceType
	Root       Root
}

// Mapper resolves destinations. It is immutable after New and safe for
// concurrent use.
type Mapper struct {
	sourceBase    string
	seriesSubpath string
	movieSubpath  string
	seriesDest    string
	movieDest     string
	defaultType   protocol.SourceType
	layout        Layout
	roots         []Root
}

// New validates the path configuration and resolves the layout.
func New(paths config.Paths) (*Mapper, error) {
	if strings.TrimSpace(paths.SourceBase) == "" {
		return nil, configError("source base is empty")
	}
	for name, sub := range map[string]string{"series subpath": paths.SeriesSubpath, "movie subpath": paths.MovieSubpath} {
		if err := checkSubpath(sub); err != nil {
			return nil, configError(fmt.Sprintf("%s: %v", name, err))
		}
	}
	for name, dest := range map[string]string{"series destination": paths.SeriesDest, "movie destination": paths.MovieDest} {
		if !filepath.IsAbs(dest) {
			return nil, configError(fmt.Sprintf("%s must be absolute, got %q", name, dest))
		}
	}
	defaultType, err := protocol.ParseSourceType(paths.DefaultSourceType)
	if err != nil || defaultType == "" {
		return nil, configError(fmt.Sprintf("default source type %q must be dvd or bluray", paths.DefaultSourceType))
	}

	m := &Mapper{
		sourceBase:    filepath.Clean(paths.SourceBase),
		seriesSubpath: filepath.Clean(paths.SeriesSubpath),
		movieSubpath:  filepath.Clean(paths.MovieSubpath),
		seriesDest:    filepath.Clean(paths.SeriesDest),
		movieDest:     filepath.Clean(paths.MovieDest),
		defaultType:   defaultType,
	}

	var split []Root
	for _, candidate := range []protocol.SourceType{protocol.SourceDVD, protocol.SourceBluray} {
		dir := filepath.Join(m.sourceBase, string(candidate))
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			split = append(split, Root{SourceType: candidate, Dir: dir})
		}
	}

	switch Layout(strings.ToLower(strings.TrimSpace(paths.Layout))) {
	case LayoutAuto, "":
		if len(split) > 0 {
			m.layout, m.roots = LayoutSplit, split
		} else {
			m.layout, m.roots = LayoutFlat, []Root{{SourceType: defaultType, Dir: m.sourceBase}}
		}
	case LayoutSplit:
		if len(split) == 0 {
			return nil, configError(fmt.Sprintf("layout split but neither %s/dvd nor %s/bluray exists", m.sourceBase, m.sourceBase))
		}
		m.layout, m.roots = LayoutSplit, split
	case LayoutFlat:
		if len(split) > 0 {
			return nil, configError(fmt.Sprintf("layout flat but %s contains %s", m.sourceBase, split[0].SourceType))
		}
		m.layout, m.roots = LayoutFlat, []Root{{SourceType: defaultType, Dir: m.sourceBase}}
	default:
		return nil, configError(fmt.Sprintf("unknown layout %q", paths.Layout))
	}
	return m, nil
}

func configError(msg string) error {
	return services.Wrap(services.ErrConfiguration, "pathmap", "", msg, nil)
}

func checkSubpath(sub string) error {
	if filepath.IsAbs(sub) {
		return fmt.Errorf("must be relative, got %q", sub)
	}
	cleaned := filepath.Clean(sub)
	if cleaned == "." || !filepath.IsLocal(cleaned) {
		return fmt.Errorf("must stay below the source root, got %q", sub)
	}
	return nil
}

// Layout returns the resolved layout (never auto).
func (m *Mapper) Layout() Layout { return m.layout }

// SourceRoots returns the roots to scan in a stable order.
func (m *Mapper) SourceRoots() []Root {
	return append([]Root(nil), m.roots...)
}

// SeriesDir returns the series subtree for a root.
func (m *Mapper) SeriesDir(root Root) string { return filepath.Join(root.Dir, m.seriesSubpath) }

// MovieDir returns the movie subtree for a root.
func (m *Mapper) MovieDir(root Root) string { return filepath.Join(root.Dir, m.movieSubpath) }

// DefaultSourceType returns the configured fallback source type.
func (m *Mapper) DefaultSourceType() protocol.SourceType { return m.defaultType }

// Resolve maps a source directory to its destination directory.
func (m *Mapper) Resolve(sourcePath string, mode protocol.Mode) (Resolution, error) {
	if !filepath.IsAbs(sourcePath) {
		return Resolution{}, fmt.Errorf("%w: %q is not absolute", ErrUnmapped, sourcePath)
	}
	sourcePath = filepath.Clean(sourcePath)
	root, rootFound := m.rootFor(sourcePath)

	switch mode {
	case protocol.ModeMovie:
		res := Resolution{DestDir: m.movieDest, Mode: protocol.ModeMovie, SourceType: m.defaultType}
		if rootFound {
			res.Root = root
			res.SourceType = root.SourceType
		}
		return res, nil
	case protocol.ModeSeries, "":
		if !rootFound {
			return Resolution{}, fmt.Errorf("%w: %s is not below %s", ErrUnmapped, sourcePath, m.sourceBase)
		}
		seriesBase := m.SeriesDir(root)
		rel, ok := within(seriesBase, sourcePath)
		if !ok {
			return Resolution{}, fmt.Errorf("%w: %s is not below series base %s", ErrUnmapped, sourcePath, seriesBase)
		}
		return Resolution{
			DestDir:    filepath.Join(m.seriesDest, rel),
			Mode:       protocol.ModeSeries,
			SourceType: root.SourceType,
			Root:       root,
		}, nil
	default:
		return Resolution{}, fmt.Errorf("%w: unknown mode %q", protocol.ErrInvalidEvent, mode)
	}
}

func (m *Mapper) rootFor(path string) (Root, bool) {
	for _, root := range m.roots {
		if _, ok := within(root.Dir, path); ok {
			return root, true
		}
	}
	return Root{}, false
}

// OutputPath returns the destination for file, which may be absolute or
// relative to sourceDir. The worker and the reconciler share this mapping.
func (m *Mapper) OutputPath(res Resolution, sourceDir, file string) (string, error) {
	rel := file
	if filepath.IsAbs(file) {
		var ok bool
		rel, ok = within(filepath.Clean(sourceDir), filepath.Clean(file))
		if !ok || rel == "." {
			return "", fmt.Errorf("%w: %s is not inside %s", ErrUnmapped, file, sourceDir)
		}
	} else if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %q escapes %s", ErrUnmapped, file, sourceDir)
	}
	return filepath.Join(res.DestDir, rel), nil
}

// within reports the relative path of target below base.
func within(base, target string) (string, bool) {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return "", false
	}
	if rel == "." {
		return rel, true
	}
	if !filepath.IsLocal(rel) {
		return "", false
	}
	return rel, true
}

// OutputExists reports whether path or its NFC/NFD spelling exists.
func OutputExists(path string) bool {
	seen := make(map[string]struct{}, 3)
	for _, candidate := range []string{path, norm.NFC.String(path), norm.NFD.String(path)} {
		if _, ok := seen[candidate]; ok {
			continue
		}
		seen[candidate] = struct{}{}
		if _, err := os.Stat(candidate); err == nil {
			return true
		}
	}
	return false
}

// DetectSourceType walks from start up to stop (inclusive) looking for a
// .source_type marker. Without a marker the fallback is returned.
func DetectSourceType(start, stop string, fallback protocol.SourceType) protocol.SourceType {
	current := filepath.Clean(start)
	stop = filepath.Clean(stop)
	for {
		data, err := os.ReadFile(filepath.Join(current, SourceTypeMarker))
		if err == nil {
			if parsed, perr := protocol.ParseSourceType(string(data)); perr == nil && parsed != "" {
				return parsed
			}
		}
		if current == stop {
			break
		}
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}
	return fallback
}
