package filesystem

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"

	"github.com/starford/shelfcheck/internal/checksum"
)

// DefaultPatterns selects media files when no patterns are configured.
var DefaultPatterns = []string{"**/*.{mkv,mp4,avi,m4v,mov,wmv,ts,iso}"}

var errNotDir = errors.New("not a directory")

// Entry is one title found in a library.
type Entry struct {
	Path  string
	Title string
	Year  *int
}

// library is the normalized listing configuration shared by both adapter
// kinds.
type library struct {
	roots     []string
	recursive bool
	patterns  []string
}

// key identifies the listing for this configuration.
func (l library) key() string {
	parts := slices.Clone(l.roots)
	parts = append(parts, "recursive="+strconv.FormatBool(l.recursive))
	for _, p := range l.patterns {
		parts = append(parts, "pattern="+p)
	}
	return checksum.Key(parts...)
}

func (l library) effectivePatterns() []string {
	if len(l.patterns) == 0 {
		return DefaultPatterns
	}
	return l.patterns
}

// scan lists every candidate title under the library roots. A root that is
// missing or not a directory fails the scan; unreadable subtrees are skipped.
func scan(fs afero.Fs, l library) ([]Entry, error) {
	patterns := l.effectivePatterns()
	var out []Entry
	for _, root := range l.roots {
		ok, err := afero.IsDir(fs, root)
		if err != nil {
			return nil, fmt.Errorf("library %s: %w", root, err)
		}
		if !ok {
			return nil, fmt.Errorf("library %s: %w", root, errNotDir)
		}

		if !l.recursive {
			infos, err := afero.ReadDir(fs, root)
			if err != nil {
				return nil, fmt.Errorf("library %s: %w", root, err)
			}
			for _, info := range infos {
				if hidden(info.Name()) {
					continue
				}
				if e, ok := candidate(root, filepath.Join(root, info.Name()), info, patterns, true); ok {
					out = append(out, e)
				}
			}
			continue
		}

		err = afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				if path == root {
					return err
				}
				return nil
			}
			if path == root {
				return nil
			}
			if hidden(info.Name()) {
				if info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			// In recursive mode only "Title (Year)" style folders count;
			// plain grouping folders like "Action" would match too much.
			if e, ok := candidate(root, path, info, patterns, false); ok {
				out = append(out, e)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("library %s: %w", root, err)
		}
	}
	return out, nil
}

func candidate(root, path string, info os.FileInfo, patterns []string, anyDir bool) (Entry, bool) {
	if info.IsDir() {
		title, year := ParseName(info.Name())
		if title == "" || (!anyDir && year == nil) {
			return Entry{}, false
		}
		return Entry{Path: path, Title: title, Year: year}, true
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		return Entry{}, false
	}
	if !matchesAny(patterns, filepath.ToSlash(rel)) {
		return Entry{}, false
	}
	title, year := ParseName(info.Name())
	if title == "" {
		return Entry{}, false
	}
	return Entry{Path: path, Title: title, Year: year}, true
}

func matchesAny(patterns []string, rel string) bool {
	rel = strings.ToLower(rel)
	for _, p := range patterns {
		if ok, _ := doublestar.Match(strings.ToLower(p), rel); ok {
			return true
		}
	}
	return false
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
