package quant

import (
	"fmt"
	"strings"
)

// Scale tags the unit of the values carried by a Table or Matrix. Additive
// corrections and fold-change arithmetic depend on it.
type Scale int

const (
	ScaleLog2 Scale = iota
	ScaleRaw
	ScaleRatio
)

func (s Scale) String() string {
	switch s {
	case ScaleLog2:
		return "log2"
	case ScaleRaw:
		return "raw"
	case ScaleRatio:
		return "ratio"
	default:
		return fmt.Sprintf("scale(%d)", int(s))
	}
}

// Additive reports whether differences (rather than ratios) are the natural
// contrast on this scale.
func (s Scale) Additive() bool {
	return s == ScaleLog2
}

// MarshalText writes the scale name.
func (s Scale) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Scale) UnmarshalText(b []byte) error {
	v, err := ParseScale(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseScale accepts "log2", "raw" or "ratio" (case-insensitive).
func ParseScale(s string) (Scale, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "log2", "log":
		return ScaleLog2, nil
	case "raw", "intensity":
		return ScaleRaw, nil
	case "ratio":
		return ScaleRatio, nil
	}
	return 0, fmt.Errorf("unknown scale %q", s)
}

// Level is the aggregation level of a Table.
type Level int

const (
	LevelPSM Level = iota
	LevelPeptide
	LevelProtein
)

func (l Level) String() string {
	switch l {
	case LevelPSM:
		return "psm"
	case LevelPeptide:
		return "peptide"
	case LevelProtein:
		return "protein"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "psm":
		return LevelPSM, nil
	case "peptide":
		return LevelPeptide, nil
	case "protein":
		return LevelProtein, nil
	}
	return 0, fmt.Errorf("unknown level %q", s)
}
