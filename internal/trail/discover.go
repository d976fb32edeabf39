package trail

import (
	"bufio"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFileName holds gitignore-style patterns excluded from discovery.
const IgnoreFileName = ".trailignore"

// DefaultIgnorePatterns are always excluded.
var DefaultIgnorePatterns = []string{
	".git/",
	"node_modules/",
	"build/",
}

// Dir is a directory holding one test's trail variants.
type Dir struct {
	Path  string
	Files []string
}

// Select returns the best variant of d for classifiers.
func (d Dir) Select(classifiers []string) (string, bool) {
	return SelectBest(d.Files, classifiers)
}

// Discover walks root and groups trail files by directory. Patterns from
// root's .trailignore are honoured.
func Discover(root string) ([]Dir, error) {
	matcher := NewIgnoreMatcher(root)

	byDir := make(map[string][]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if matcher.MatchesPath(rel + "/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !IsTrailFile(d.Name()) || matcher.MatchesPath(rel) {
			return nil
		}
		dir := filepath.Dir(path)
		byDir[dir] = append(byDir[dir], path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]Dir, 0, len(byDir))
	for dir, files := range byDir {
		sort.Strings(files)
		out = append(out, Dir{Path: dir, Files: files})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// NewIgnoreMatcher compiles the default patterns plus root's .trailignore.
// Paths passed to MatchesPath are slash-separated and relative to root;
// directories end with a slash.
func NewIgnoreMatcher(root string) *gitignore.GitIgnore {
	patterns := append([]string(nil), DefaultIgnorePatterns...)
	if lines, err := readIgnoreLines(filepath.Join(root, IgnoreFileName)); err == nil {
		patterns = append(patterns, lines...)
	}
	return gitignore.CompileIgnoreLines(patterns...)
}

func readIgnoreLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}
