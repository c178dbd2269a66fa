package tally

import (
	"fmt"
	"strings"
)

// Model selects which Roland switcher is emulated. It only changes response framing and
// the channel count.
type Model uint8

const (
	// ModelV60HD answers with the bare state name, no HTTP framing.
	ModelV60HD Model = iota
	// ModelV160HD answers with a full HTTP response.
	ModelV160HD
)

const (
	v60HDChannels    = 8
	v160HDHDMIInputs = 16
	v160HDSDIInputs  = 12
)

// String returns the product name.
func (m Model) String() string {
	switch m {
	case ModelV60HD:
		return "V-60HD"
	case ModelV160HD:
		return "V-160HD"
	default:
		return fmt.Sprintf("Model(%d)", uint8(m))
	}
}

// Valid reports whether m is a known model.
func (m Model) Valid() bool {
	return m <= ModelV160HD
}

// Channels returns how many tally channels the model exposes.
func (m Model) Channels() int {
	if m == ModelV160HD {
		return max(v160HDHDMIInputs, v160HDSDIInputs)
	}
	return v60HDChannels
}

// HTTPFraming reports whether responses carry a status line and headers.
func (m Model) HTTPFraming() bool {
	return m == ModelV160HD
}

// ParseModel accepts "V-60HD", "v60hd", "V-160HD", "v160hd" and similar spellings.
func ParseModel(raw string) (Model, error) {
	normalized := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(raw), "-", ""))
	switch normalized {
	case "v60hd":
		return ModelV60HD, nil
	case "v160hd":
		return ModelV160HD, nil
	default:
		return 0, fmt.Errorf("tally: unknown model %q", raw)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Model) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("tally: invalid model %d", uint8(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Model) UnmarshalText(text []byte) error {
	parsed, err := ParseModel(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
