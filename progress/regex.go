// Package progress turns the streaming progress output of the transfer tool
// into typed values and pushes them into a shared report.Progress.
package progress

import (
	"fmt"
	"regexp"
	"strconv"
)

// Converter turns the text captured by a named group into a typed value.
type Converter func(string) (any, error)

// Int converts a captured group to an int.
func Int(s string) (any, error) {
	return strconv.Atoi(s)
}

// String keeps a captured group as-is. Groups without a converter use it.
func String(s string) (any, error) {
	return s, nil
}

// RegexParser parses lines into maps of typed values. The pattern is anchored
// at the start of the line; only named groups appear in the output.
type RegexParser struct {
	pattern *regexp.Regexp
	types   map[string]Converter
}

// NewRegexParser compiles pattern. types maps group names to converters.
func NewRegexParser(pattern string, types map[string]Converter) (*RegexParser, error) {
	re, err := regexp.Compile(`^(?:` + pattern + `)`)
	if err != nil {
		return nil, fmt.Errorf("failed to compile pattern: %w", err)
	}
	if types == nil {
		types = map[string]Converter{}
	}
	return &RegexParser{pattern: re, types: types}, nil
}

// MustRegexParser is like NewRegexParser but panics on an invalid pattern.
func MustRegexParser(pattern string, types map[string]Converter) *RegexParser {
	p, err := NewRegexParser(pattern, types)
	if err != nil {
		panic(err)
	}
	return p
}

// Parse returns nil if line does not match. Otherwise every named group is
// present in the result; groups that did not participate in the match map to nil.
func (p *RegexParser) Parse(line string) (map[string]any, error) {
	idx := p.pattern.FindStringSubmatchIndex(line)
	if idx == nil {
		return nil, nil
	}

	out := make(map[string]any)
	for i, name := range p.pattern.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		start, end := idx[2*i], idx[2*i+1]
		if start < 0 {
			out[name] = nil
			continue
		}
		convert, ok := p.types[name]
		if !ok {
			convert = String
		}
		v, err := convert(line[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to convert group %q: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}
