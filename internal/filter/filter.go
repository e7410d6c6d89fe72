// Package filter selects archive members with rsync-style include and
// exclude rules plus size bounds.
package filter

import "strings"

// Rule represents a single include or exclude filter rule.
type Rule struct {
	Pattern *compiledPattern
	Include bool // true=include, false=exclude
}

// Chain holds an ordered list of filter rules plus size filters.
type Chain struct {
	rules   []Rule
	minSize int64
	maxSize int64
}

// NewChain creates an empty filter chain.
func NewChain() *Chain {
	return &Chain{}
}

// AddExclude adds an exclude rule for the given pattern.
func (c *Chain) AddExclude(pattern string) error {
	return c.add(pattern, false)
}

// AddInclude adds an include rule for the given pattern.
func (c *Chain) AddInclude(pattern string) error {
	return c.add(pattern, true)
}

func (c *Chain) add(pattern string, include bool) error {
	cp, err := compilePattern(pattern)
	if err != nil {
		return err
	}
	c.rules = append(c.rules, Rule{Pattern: cp, Include: include})
	return nil
}

// SetMinSize sets the minimum file size filter.
func (c *Chain) SetMinSize(n int64) {
	c.minSize = n
}

// SetMaxSize sets the maximum file size filter.
func (c *Chain) SetMaxSize(n int64) {
	c.maxSize = n
}

// Empty reports whether the chain has no rules and no size filters.
func (c *Chain) Empty() bool {
	return c == nil || (len(c.rules) == 0 && c.minSize == 0 && c.maxSize == 0)
}

// Match returns true if the member should be INCLUDED (not filtered out).
// name is the slash-separated member path, isDir indicates directories,
// and size is the file size (ignored for directories).
//
// Archive listings are flat, so a member is also excluded when any of its
// parent directories is, the way a tree walk would prune that directory.
func (c *Chain) Match(name string, isDir bool, size int64) bool {
	if c == nil {
		return true
	}
	name = strings.Trim(name, "/")

	// Size filters apply only to regular files.
	if !isDir {
		if c.minSize > 0 && size < c.minSize {
			return false
		}
		if c.maxSize > 0 && size > c.maxSize {
			return false
		}
	}

	for i := range len(name) {
		if name[i] == '/' && !c.matchRules(name[:i], true) {
			return false
		}
	}
	return c.matchRules(name, isDir)
}

// matchRules walks rules in order; first match wins, no match includes.
func (c *Chain) matchRules(name string, isDir bool) bool {
	for _, rule := range c.rules {
		if rule.Pattern.match(name, isDir) {
			return rule.Include
		}
	}
	return true
}
