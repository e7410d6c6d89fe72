package filter

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// compiledPattern is a compiled glob that matches member paths. Patterns
// without wildcards skip the regexp and compare strings.
type compiledPattern struct {
	re       *regexp.Regexp // nil for literal patterns
	literal  string
	original string
	anchored bool // pattern starts with / or contains one
	dirOnly  bool // pattern ends with /
}

// compilePattern converts an rsync-style glob into a matcher. Besides *, **,
// ? and [...] classes it accepts {a,b} alternation.
func compilePattern(pattern string) (*compiledPattern, error) {
	cp := &compiledPattern{original: pattern}

	if strings.HasSuffix(pattern, "/") {
		cp.dirOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}
	if strings.HasPrefix(pattern, "/") {
		cp.anchored = true
		pattern = strings.TrimPrefix(pattern, "/")
	} else if strings.Contains(pattern, "/") {
		cp.anchored = true
	}
	if pattern == "" {
		return nil, fmt.Errorf("empty pattern %q", cp.original)
	}

	if !strings.ContainsAny(pattern, "*?[{") {
		cp.literal = pattern
		return cp, nil
	}

	body, err := globToRegex(pattern)
	if err != nil {
		return nil, fmt.Errorf("pattern %q: %w", cp.original, err)
	}
	if cp.anchored {
		body = "^" + body + "$"
	} else {
		body = "(^|/)" + body + "$"
	}
	re, err := regexp.Compile(body)
	if err != nil {
		return nil, fmt.Errorf("pattern %q: %w", cp.original, err)
	}
	cp.re = re
	return cp, nil
}

// match tests whether a member path matches this pattern.
func (cp *compiledPattern) match(name string, isDir bool) bool {
	if cp.dirOnly && !isDir {
		return false
	}
	if cp.re != nil {
		return cp.re.MatchString(name)
	}
	if cp.anchored {
		return name == cp.literal
	}
	return name == cp.literal || strings.HasSuffix(name, "/"+cp.literal)
}

func (cp *compiledPattern) String() string { return cp.original }

var errUnbalancedBrace = errors.New("unbalanced brace")

// globToRegex converts a glob pattern to a regex body.
//
//nolint:gocyclo,revive // cognitive-complexity: character-by-character glob parser
func globToRegex(pattern string) (string, error) {
	var b strings.Builder
	depth := 0
	for i := 0; i < len(pattern); {
		c := pattern[i]
		switch c {
		case '*':
			switch {
			case strings.HasPrefix(pattern[i:], "**/"):
				// **/ matches zero or more whole directories.
				b.WriteString("(.*/)?")
				i += 3
			case strings.HasPrefix(pattern[i:], "**"):
				b.WriteString(".*")
				i += 2
			default:
				b.WriteString("[^/]*")
				i++
			}
		case '?':
			b.WriteString("[^/]")
			i++
		case '[':
			end := classEnd(pattern, i)
			if end < 0 {
				b.WriteString(`\[`)
				i++
				continue
			}
			cls := pattern[i+1 : end]
			if strings.HasPrefix(cls, "!") {
				cls = "^" + cls[1:]
			}
			b.WriteString("[" + cls + "]")
			i = end + 1
		case '{':
			depth++
			b.WriteString("(?:")
			i++
		case '}':
			if depth == 0 {
				return "", errUnbalancedBrace
			}
			depth--
			b.WriteString(")")
			i++
		case ',':
			if depth > 0 {
				b.WriteString("|")
			} else {
				b.WriteByte(',')
			}
			i++
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
			i++
		}
	}
	if depth != 0 {
		return "", errUnbalancedBrace
	}
	return b.String(), nil
}

// classEnd returns the index of the ']' closing the class opened at
// pattern[start], or -1. A leading '!' or ']' is part of the class.
func classEnd(pattern string, start int) int {
	j := start + 1
	if j < len(pattern) && pattern[j] == '!' {
		j++
	}
	if j < len(pattern) && pattern[j] == ']' {
		j++
	}
	for ; j < len(pattern); j++ {
		if pattern[j] == ']' {
			return j
		}
	}
	return -1
}
