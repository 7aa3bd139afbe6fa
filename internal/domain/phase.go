package domain

import (
	"encoding"
	"encoding/json"
	"fmt"
)

// Phase is the coarse learning stage of a card for one user. It gates which
// update branch of the memory model applies.
type Phase int

const (
	New        Phase = iota // Never reviewed by this user.
	Learning                // In the initial learning steps.
	Review                  // Graduated to the long-term review cycle.
	Relearning              // Forgotten out of Review, relearning.
)

var (
	phaseNames  = [...]string{New: "New", Learning: "Learning", Review: "Review", Relearning: "Relearning"}
	phaseByName = map[string]Phase{
		"New":        New,
		"Learning":   Learning,
		"Review":     Review,
		"Relearning": Relearning,
	}
)

var (
	_ fmt.Stringer             = Phase(0)
	_ encoding.TextMarshaler   = Phase(0)
	_ encoding.TextUnmarshaler = (*Phase)(nil)
)

// IsValid reports whether p is a known phase.
func (p Phase) IsValid() bool {
	return p >= New && p <= Relearning
}

// String returns the phase name, or "Phase(n)" for invalid values.
func (p Phase) String() string {
	if p.IsValid() {
		return phaseNames[p]
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	if !p.IsValid() {
		return nil, fmt.Errorf("domain: invalid phase: %d", int(p))
	}
	return []byte(phaseNames[p]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Phase) UnmarshalText(text []byte) error {
	v, ok := phaseByName[string(text)]
	if !ok {
		return fmt.Errorf("domain: invalid phase: %q", text)
	}
	*p = v
	return nil
}

// MarshalJSON implements json.Marshaler. Phase serializes as a JSON string.
func (p Phase) MarshalJSON() ([]byte, error) {
	text, err := p.MarshalText()
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(text))
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Phase) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("domain: invalid phase: %s", data)
	}
	return p.UnmarshalText([]byte(s))
}
