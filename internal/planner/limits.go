package planner

import "fmt"

const (
	// DefaultRowLimit caps raw projections when a request sets no limit.
	DefaultRowLimit = 1000
	// MaxRowLimit is the largest limit a request may ask for.
	MaxRowLimit = 10000
)

// Limits bounds raw projection size.
type Limits struct {
	DefaultLimit int
	MaxLimit     int
}

// DefaultLimits returns the built-in row limits.
func DefaultLimits() Limits {
	return Limits{DefaultLimit: DefaultRowLimit, MaxLimit: MaxRowLimit}
}

// Resolve returns the effective row limit for a request. Unset limits use
// the default; limits above the maximum are clamped.
func (l Limits) Resolve(requested *int) (int, error) {
	l = l.normalized()
	if requested == nil {
		return l.DefaultLimit, nil
	}
	if *requested <= 0 {
		return 0, invalidRequest("limit", "Invalid limit: %d (must be a positive integer)", *requested)
	}
	if *requested > l.MaxLimit {
		return l.MaxLimit, nil
	}
	return *requested, nil
}

// Validate reports configuration mistakes.
func (l Limits) Validate() error {
	if l.DefaultLimit < 0 || l.MaxLimit < 0 {
		return fmt.Errorf("row limits must not be negative")
	}
	if l.DefaultLimit > 0 && l.MaxLimit > 0 && l.DefaultLimit > l.MaxLimit {
		return fmt.Errorf("default limit %d exceeds max limit %d", l.DefaultLimit, l.MaxLimit)
	}
	return nil
}

func (l Limits) normalized() Limits {
	if l.MaxLimit <= 0 {
		l.MaxLimit = MaxRowLimit
	}
	if l.DefaultLimit <= 0 {
		l.DefaultLimit = DefaultRowLimit
	}
	if l.DefaultLimit > l.MaxLimit {
		l.DefaultLimit = l.MaxLimit
	}
	return l
}
