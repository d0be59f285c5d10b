// Package bytesize parses and formats human-readable byte sizes, used for
// configuration values like extent sizes ("64Ki", "1MiB", "4096").
package bytesize

import (
	"fmt"
	"strconv"
	"strings"
)

// Size is a byte count parsed from strings like "64Ki", "1MiB" or "4096".
// Binary suffixes (Ki, Mi, Gi, optionally with a trailing B) multiply by
// 1024; K, M, G multiply by 1000; a bare number or B suffix is bytes.
type Size int64

const (
	B   Size = 1
	KB  Size = 1000
	MB  Size = 1000 * KB
	GB  Size = 1000 * MB
	KiB Size = 1024
	MiB Size = 1024 * KiB
	GiB Size = 1024 * MiB
)

var suffixes = map[string]Size{
	"":  B,
	"b": B, "k": KB, "kb": KB, "m": MB, "mb": MB, "g": GB, "gb": GB,
	"ki": KiB, "kib": KiB, "mi": MiB, "mib": MiB, "gi": GiB, "gib": GiB,
}

// Parse converts a human-readable size string to a Size.
func Parse(s string) (Size, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return 0, fmt.Errorf("empty size")
	}

	i := len(t)
	for i > 0 && !isDigit(t[i-1]) {
		i--
	}
	num, suffix := t[:i], strings.ToLower(strings.TrimSpace(t[i:]))

	mult, ok := suffixes[suffix]
	if !ok {
		return 0, fmt.Errorf("unknown size suffix %q in %q", t[i:], s)
	}
	n, err := strconv.ParseInt(strings.TrimSpace(num), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative size %q", s)
	}
	return Size(n) * mult, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// UnmarshalText lets Size be used directly in configuration structs.
func (s *Size) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// String renders the size with the largest exact binary suffix, falling back
// to plain bytes.
func (s Size) String() string {
	switch {
	case s >= GiB && s%GiB == 0:
		return fmt.Sprintf("%dGiB", s/GiB)
	case s >= MiB && s%MiB == 0:
		return fmt.Sprintf("%dMiB", s/MiB)
	case s >= KiB && s%KiB == 0:
		return fmt.Sprintf("%dKiB", s/KiB)
	default:
		return fmt.Sprintf("%dB", int64(s))
	}
}

// Int64 returns the size in bytes.
func (s Size) Int64() int64 { return int64(s) }
