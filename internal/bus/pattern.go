package bus

import (
	"fmt"
	"strings"

	"github.com/nerrad567/tydom2mqtt/internal/cover"
)

const (
	topicSeparator  = "/"
	singleLevelWild = "+"
	multiLevelWild  = "#"
)

// Pattern is a compiled topic pattern with exactly one "+" segment.
// The zero value matches nothing.
type Pattern struct {
	raw      string
	segments []string
	wildcard int
}

// CompilePattern parses a topic pattern. It fails with ErrConfiguration
// when the pattern has no "+" segment or more than one, uses "#", has an
// empty level, or mixes a wildcard into a literal level.
func CompilePattern(s string) (Pattern, error) {
	if s == "" {
		return Pattern{}, fmt.Errorf("%w: empty topic pattern", ErrConfiguration)
	}

	segments := strings.Split(s, topicSeparator)
	wildcard := -1
	for i, seg := range segments {
		switch {
		case seg == "":
			return Pattern{}, fmt.Errorf("%w: pattern %q has an empty level", ErrConfiguration, s)
		case seg == singleLevelWild:
			if wildcard >= 0 {
				return Pattern{}, fmt.Errorf("%w: pattern %q has more than one %q", ErrConfiguration, s, singleLevelWild)
			}
			wildcard = i
		case strings.Contains(seg, multiLevelWild):
			return Pattern{}, fmt.Errorf("%w: pattern %q uses %q", ErrConfiguration, s, multiLevelWild)
		case strings.Contains(seg, singleLevelWild):
			return Pattern{}, fmt.Errorf("%w: pattern %q has %q inside a level", ErrConfiguration, s, singleLevelWild)
		}
	}
	if wildcard < 0 {
		return Pattern{}, fmt.Errorf("%w: pattern %q has no %q level", ErrConfiguration, s, singleLevelWild)
	}

	return Pattern{raw: s, segments: segments, wildcard: wildcard}, nil
}

// MustCompilePattern is like CompilePattern but panics on error.
func MustCompilePattern(s string) Pattern {
	p, err := CompilePattern(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Match reports whether topic matches the whole pattern and returns the
// level captured by "+". The captured level is never empty and never
// spans a separator.
func (p Pattern) Match(topic string) (cover.Name, bool) {
	if p.segments == nil {
		return "", false
	}

	levels := strings.Split(topic, topicSeparator)
	if len(levels) != len(p.segments) {
		return "", false
	}
	for i, level := range levels {
		if i == p.wildcard {
			if level == "" {
				return "", false
			}
			continue
		}
		if level != p.segments[i] {
			return "", false
		}
	}
	return cover.Name(levels[p.wildcard]), true
}

// Expand returns the concrete topic for a cover name.
func (p Pattern) Expand(name cover.Name) string {
	levels := make([]string, len(p.segments))
	copy(levels, p.segments)
	if p.wildcard >= 0 && p.wildcard < len(levels) {
		levels[p.wildcard] = name.String()
	}
	return strings.Join(levels, topicSeparator)
}

// String returns the pattern as configured. It is also the MQTT
// subscription filter.
func (p Pattern) String() string {
	return p.raw
}
