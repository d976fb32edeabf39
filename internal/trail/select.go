package trail

import (
	"path/filepath"
	"strings"
)

const (
	// DefaultFileName is the generic trail used when no classifier matches.
	DefaultFileName = "trail.yaml"
	// FileSuffix ends every classifier-specific trail file name.
	FileSuffix = ".trail.yaml"
)

// CandidateNames lists trail file names for classifiers from most to least
// specific. Classifiers are ordered most specific first. Names with more
// classifiers come first; among names with the same count, those built from
// earlier classifiers win. The generic name is always last.
//
// ["pixel", "android"] gives pixel-android.trail.yaml, pixel.trail.yaml,
// android.trail.yaml, trail.yaml.
func CandidateNames(classifiers []string) []string {
	var cleaned []string
	for _, c := range classifiers {
		c = strings.ToLower(strings.TrimSpace(c))
		if c != "" {
			cleaned = append(cleaned, c)
		}
	}

	var out []string
	for k := len(cleaned); k > 0; k-- {
		combinations(len(cleaned), k, func(idx []int) {
			parts := make([]string, len(idx))
			for i, j := range idx {
				parts[i] = cleaned[j]
			}
			out = append(out, strings.Join(parts, "-")+FileSuffix)
		})
	}
	return append(out, DefaultFileName)
}

// combinations calls fn with every k-subset of [0,n) in lexicographic order.
func combinations(n, k int, fn func([]int)) {
	idx := make([]int, k)
	var rec func(start, depth int)
	rec = func(start, depth int) {
		if depth == k {
			fn(idx)
			return
		}
		for i := start; i <= n-(k-depth); i++ {
			idx[depth] = i
			rec(i+1, depth+1)
		}
	}
	rec(0, 0)
}

// SelectBest picks the most specific of files for classifiers, matching on
// base names. It returns false when no candidate is present.
func SelectBest(files []string, classifiers []string) (string, bool) {
	byName := make(map[string]string, len(files))
	for _, f := range files {
		base := strings.ToLower(filepath.Base(f))
		if _, seen := byName[base]; !seen {
			byName[base] = f
		}
	}
	for _, name := range CandidateNames(classifiers) {
		if f, ok := byName[name]; ok {
			return f, true
		}
	}
	return "", false
}

// IsTrailFile reports whether name is a trail file name.
func IsTrailFile(name string) bool {
	base := strings.ToLower(filepath.Base(name))
	return base == DefaultFileName || strings.HasSuffix(base, FileSuffix)
}
