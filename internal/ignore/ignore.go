package ignore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	gitignore "github.com/sabhiram/go-gitignore"
)

var ErrInvalidPattern = errors.New("ignore: invalid pattern")

// Predicate is a caller supplied exclusion test, evaluated in addition to the patterns.
type Predicate func(relPath string, isDir bool) bool

// Matcher is the compiled form of an ignore rule set.
// A nil Matcher excludes nothing.
type Matcher struct {
	patterns  []string
	rules     []rule
	predicate Predicate
}

// regexMeta lists the characters go-gitignore copies into its regular
// expression unescaped, or translates differently from glob syntax.
const regexMeta = `?+()$|^[]{}\`

// rule is one pattern. Plain patterns go through go-gitignore, the rest are
// matched with doublestar against the path and each of its ancestors.
type rule struct {
	negate bool
	plain  *gitignore.GitIgnore
	glob   string
}

func compileRule(p string) rule {
	r := rule{}
	if strings.HasPrefix(p, "!") {
		r.negate = true
		p = p[1:]
	}
	if !strings.ContainsAny(p, regexMeta) && !strings.HasPrefix(p, "#") {
		r.plain = gitignore.CompileIgnoreLines(p)
		return r
	}
	if strings.HasPrefix(p, "/") {
		r.glob = p[1:]
	} else {
		r.glob = "**/" + p
	}
	return r
}

func (r rule) matches(relPath string) bool {
	if r.plain != nil {
		return r.plain.MatchesPath(relPath)
	}
	for i := 0; i <= len(relPath); i++ {
		if i < len(relPath) && relPath[i] != '/' {
			continue
		}
		if ok, _ := doublestar.Match(r.glob, relPath[:i]); ok {
			return true
		}
	}
	return false
}

// Compile normalizes and compiles the patterns. A pattern starting with "/"
// is anchored at the scan root, any other pattern matches at every depth.
// A later "!" pattern re-includes what an earlier one excluded.
func Compile(patterns []string, predicate Predicate) (*Matcher, error) {
	lines := make([]string, 0, len(patterns))
	rules := make([]rule, 0, len(patterns))
	for _, raw := range patterns {
		p := NormalizePattern(raw)
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}
		if err := ValidatePattern(p); err != nil {
			return nil, err
		}
		lines = append(lines, p)
		rules = append(rules, compileRule(p))
	}

	return &Matcher{
		patterns:  lines,
		rules:     rules,
		predicate: predicate,
	}, nil
}

// Excludes reports whether relPath (forward slashes, relative to the scan root) is ignored.
func (m *Matcher) Excludes(relPath string, isDir bool) bool {
	if m == nil {
		return false
	}
	relPath = strings.TrimPrefix(relPath, "./")
	if relPath == "" || relPath == "." {
		return false
	}

	excluded := false
	for _, r := range m.rules {
		if r.matches(relPath) {
			excluded = !r.negate
		}
	}
	if excluded {
		return true
	}
	return m.predicate != nil && m.predicate(relPath, isDir)
}

// Covers reports whether pattern on its own excludes every one of relPaths.
func Covers(pattern string, relPaths ...string) bool {
	m, err := Compile([]string{pattern}, nil)
	if err != nil || len(m.rules) == 0 {
		return false
	}
	for _, rel := range relPaths {
		if !m.Excludes(rel, true) {
			return false
		}
	}
	return true
}

// IsNegation reports whether the pattern re-includes paths.
func IsNegation(p string) bool {
	return strings.HasPrefix(strings.TrimSpace(p), "!")
}

// Patterns returns the normalized patterns in their configured order.
func (m *Matcher) Patterns() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.patterns...)
}

// NormalizePattern converts backslashes, then strips trailing "/" and trailing
// whole-segment "*" so that "dist/", "dist/*" and "dist" compile the same way.
func NormalizePattern(p string) string {
	p = strings.TrimSpace(strings.ReplaceAll(p, `\`, "/"))
	for {
		switch {
		case len(p) > 2 && strings.HasSuffix(p, "/*") && !strings.HasSuffix(p, "**"):
			p = p[:len(p)-1]
		case len(p) > 1 && strings.HasSuffix(p, "/"):
			p = p[:len(p)-1]
		default:
			return p
		}
	}
}

// ValidatePattern rejects patterns with unbalanced brackets or dangling escapes.
func ValidatePattern(p string) error {
	body := strings.TrimPrefix(strings.TrimPrefix(p, "!"), "/")
	if body == "" {
		return fmt.Errorf("%w: %q is empty after anchoring", ErrInvalidPattern, p)
	}
	if !doublestar.ValidatePattern(body) {
		return fmt.Errorf("%w: %q", ErrInvalidPattern, p)
	}
	return nil
}

// HasWildcard reports whether the pattern uses any glob syntax.
func HasWildcard(p string) bool {
	return strings.ContainsAny(p, "*?[]{}!\\")
}
