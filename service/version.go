package service

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a dotted list of non-negative integer segments.
type Version struct {
	segments []int
}

// NewVersion builds a version from segments.
func NewVersion(segments ...int) Version {
	return Version{segments: append([]int(nil), segments...)}
}

// ParseVersion parses "1.22.3". An empty string yields the empty version.
func ParseVersion(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Version{}, nil
	}
	parts := strings.Split(s, ".")
	v := Version{segments: make([]int, len(parts))}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Version{}, fmt.Errorf("invalid version %q: segment %q", s, p)
		}
		v.segments[i] = n
	}
	return v, nil
}

// MustParseVersion is ParseVersion for literals.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Compare compares position by position; the first differing segment decides,
// so 1.22.3 is newer than 1.3. With an equal common prefix the longer version
// is newer.
func (v Version) Compare(o Version) int {
	for i := 0; i < len(v.segments) && i < len(o.segments); i++ {
		if d := v.segments[i] - o.segments[i]; d != 0 {
			return d
		}
	}
	return len(v.segments) - len(o.segments)
}

func (v Version) String() string {
	parts := make([]string, len(v.segments))
	for i, s := range v.segments {
		parts[i] = strconv.Itoa(s)
	}
	return strings.Join(parts, ".")
}

func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v *Version) UnmarshalText(text []byte) error {
	parsed, err := ParseVersion(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
