package domain

import "math"

// Window is a closed numeric interval [Min, Max]. Open ends are
// represented with ±Inf.
type Window struct {
	Min float64
	Max float64
}

// Point returns the degenerate window [v, v].
func Point(v float64) Window {
	return Window{Min: v, Max: v}
}

// Bounds builds a window from optional ends; a nil end is unbounded.
func Bounds(min, max *float64) Window {
	w := Window{Min: math.Inf(-1), Max: math.Inf(1)}
	if min != nil {
		w.Min = *min
	}
	if max != nil {
		w.Max = *max
	}
	return w
}

// IntBounds is Bounds for integer-valued ends.
func IntBounds(min, max *int) Window {
	var lo, hi *float64
	if min != nil {
		v := float64(*min)
		lo = &v
	}
	if max != nil {
		v := float64(*max)
		hi = &v
	}
	return Bounds(lo, hi)
}

// Empty reports whether no value satisfies Min <= v <= Max.
func (w Window) Empty() bool {
	return w.Min > w.Max || math.IsNaN(w.Min) || math.IsNaN(w.Max)
}

// Contains reports whether v lies inside the window, bounds inclusive.
func (w Window) Contains(v float64) bool {
	return w.Min <= v && v <= w.Max
}

// Overlaps reports whether the two windows share at least one value.
// Touching endpoints count as overlap.
func (w Window) Overlaps(o Window) bool {
	if w.Empty() || o.Empty() {
		return false
	}
	return w.Min <= o.Max && o.Min <= w.Max
}

// Clamp returns the value inside the window nearest to v.
func (w Window) Clamp(v float64) float64 {
	if v < w.Min {
		return w.Min
	}
	if v > w.Max {
		return w.Max
	}
	return v
}

// checkRange enforces min <= base <= max for one ranged term.
func checkRange(field string, base float64, min, max *float64) error {
	if min != nil && *min > base {
		return invalid("min_"+field, "must not exceed %s (%v)", field, base)
	}
	if max != nil && *max < base {
		return invalid("max_"+field, "must not be below %s (%v)", field, base)
	}
	return nil
}
