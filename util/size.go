package util

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Size is an amount of data in bytes. Its text form is a count with an
// optional unit: SI units are powers of 1000 ("10MB", "5 kilobytes"), IEC
// units are powers of 1024 ("512KiB", "2 mebibytes").
type Size int64

const (
	Byte     Size = 1
	Kilobyte      = 1000 * Byte
	Megabyte      = 1000 * Kilobyte
	Gigabyte      = 1000 * Megabyte
	Kibibyte      = 1024 * Byte
	Mebibyte      = 1024 * Kibibyte
	Gibibyte      = 1024 * Mebibyte
)

var sizePattern = regexp.MustCompile(`^\s*(\d+)\s*([A-Za-z]*)\s*$`)

var sizeUnits = map[string]Size{
	"": Byte, "b": Byte, "byte": Byte, "bytes": Byte,
	"kb": Kilobyte, "kilobyte": Kilobyte, "kilobytes": Kilobyte,
	"mb": Megabyte, "megabyte": Megabyte, "megabytes": Megabyte,
	"gb": Gigabyte, "gigabyte": Gigabyte, "gigabytes": Gigabyte,
	"kib": Kibibyte, "kibibyte": Kibibyte, "kibibytes": Kibibyte,
	"mib": Mebibyte, "mebibyte": Mebibyte, "mebibytes": Mebibyte,
	"gib": Gibibyte, "gibibyte": Gibibyte, "gibibytes": Gibibyte,
}

// ParseSize parses a data size such as "10MB" or "512 KiB".
func ParseSize(s string) (Size, error) {
	m := sizePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	unit, ok := sizeUnits[strings.ToLower(m[2])]
	if !ok {
		return 0, fmt.Errorf("invalid size %q: unknown unit %q", s, m[2])
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return Size(n) * unit, nil
}

// Bytes returns the size in bytes.
func (s Size) Bytes() int64 { return int64(s) }

func (s Size) String() string {
	switch {
	case s != 0 && s%Gibibyte == 0:
		return fmt.Sprintf("%dGiB", s/Gibibyte)
	case s != 0 && s%Mebibyte == 0:
		return fmt.Sprintf("%dMiB", s/Mebibyte)
	case s != 0 && s%Kibibyte == 0:
		return fmt.Sprintf("%dKiB", s/Kibibyte)
	}
	return fmt.Sprintf("%d bytes", int64(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s Size) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Size) UnmarshalText(text []byte) error {
	parsed, err := ParseSize(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
