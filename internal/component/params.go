package component

import (
	"fmt"
	"maps"
)

// Params is a set of device parameters as written in a protocol file.
type Params map[string]any

// Clone returns a shallow copy.
func (p Params) Clone() Params {
	if p == nil {
		return Params{}
	}
	return maps.Clone(p)
}

// checkKeys rejects any key outside allowed.
func (p Params) checkKeys(allowed ...string) error {
	for k := range p {
		found := false
		for _, a := range allowed {
			if k == a {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: unknown key %q", ErrInvalidParam, k)
		}
	}
	return nil
}

// Float reads a numeric parameter. YAML and JSON decode numbers as int
// or float64 depending on how they are written, so both are accepted.
func (p Params) Float(key string) (v float64, ok bool, err error) {
	raw, present := p[key]
	if !present {
		return 0, false, nil
	}
	switch n := raw.(type) {
	case float64:
		return n, true, nil
	case float32:
		return float64(n), true, nil
	case int:
		return float64(n), true, nil
	case int64:
		return float64(n), true, nil
	case uint64:
		return float64(n), true, nil
	default:
		return 0, true, fmt.Errorf("%w: %q must be a number, got %T", ErrInvalidParam, key, raw)
	}
}

// Bool reads a boolean parameter.
func (p Params) Bool(key string) (v bool, ok bool, err error) {
	raw, present := p[key]
	if !present {
		return false, false, nil
	}
	b, isBool := raw.(bool)
	if !isBool {
		return false, true, fmt.Errorf("%w: %q must be a boolean, got %T", ErrInvalidParam, key, raw)
	}
	return b, true, nil
}

// nonNegativeRate reads the "rate" parameter shared by pumps and sensors.
func (p Params) nonNegativeRate() (rate float64, ok bool, err error) {
	if err := p.checkKeys("rate"); err != nil {
		return 0, false, err
	}
	rate, ok, err = p.Float("rate")
	if err != nil {
		return 0, false, err
	}
	if ok && rate < 0 {
		return 0, false, fmt.Errorf("%w: rate must not be negative, got %v", ErrInvalidParam, rate)
	}
	return rate, ok, nil
}
