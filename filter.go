// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/unitybundle

package unitybundle

import (
	"fmt"

	"github.com/woozymasta/pathrules"
)

// includeMatcher holds compiled member-selection rules.
type includeMatcher struct {
	matcher *pathrules.Matcher
}

// newIncludeMatcher compiles member path rules. A nil matcher means no
// filtering (select everything).
func newIncludeMatcher(rules []pathrules.Rule, opts pathrules.MatcherOptions) (*includeMatcher, error) {
	rules = normalizeIncludeRules(rules)
	if len(rules) == 0 {
		return nil, nil
	}

	matcher, err := pathrules.NewMatcher(rules, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: compile rules: %w", ErrInvalidIncludePattern, err)
	}

	return &includeMatcher{matcher: matcher}, nil
}

// normalizeIncludeRules normalizes rule patterns and drops empty patterns.
func normalizeIncludeRules(rules []pathrules.Rule) []pathrules.Rule {
	normalized := make([]pathrules.Rule, 0, len(rules))
	for _, rule := range rules {
		pattern := normalizePathForMatching(rule.Pattern)
		if pattern == "" {
			continue
		}

		normalized = append(normalized, pathrules.Rule{
			Action:  rule.Action,
			Pattern: pattern,
		})
	}

	return normalized
}

// Match reports whether path is selected. A nil matcher selects everything.
func (m *includeMatcher) Match(path string) bool {
	if m == nil || m.matcher == nil {
		return true
	}

	candidate := NormalizePath(path)
	if candidate == "" {
		return false
	}

	return m.matcher.Included(candidate, false)
}

// FilterFiles returns the members whose paths are selected by the given
// include rules. Empty rules return a copy of the full list.
func FilterFiles(files []ExtractedFile, rules []pathrules.Rule, opts pathrules.MatcherOptions) ([]ExtractedFile, error) {
	if opts.DefaultAction == pathrules.ActionUnknown {
		opts.DefaultAction = pathrules.ActionExclude
	}

	matcher, err := newIncludeMatcher(rules, opts)
	if err != nil {
		return nil, err
	}

	out := make([]ExtractedFile, 0, len(files))
	for _, file := range files {
		if matcher.Match(file.Path) {
			out = append(out, file)
		}
	}

	return out, nil
}
