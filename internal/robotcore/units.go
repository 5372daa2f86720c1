package robotcore

import "math"

// Unit is the wire encoding of a single command value. Position and
// velocity payloads share the same conversion factors (§4.3); velocity
// units are simply "per second" variants of the position ones.
type Unit int

const (
	UnitImplicit Unit = iota // radian, same as UnitRadian
	UnitRadian
	UnitDegree
	UnitTicksRot
	UnitNanoticksRot
	UnitRadianSecond
	UnitDegreeSecond
	UnitTicksRotSecond
	UnitNanoticksRotSecond
)

// ticksPerRevolution is 2^20, per Design Note 1: the source's "2 ^ 20"
// is bitwise XOR (yielding 22) and almost certainly a typo for 2^20 =
// 1048576. This implementation uses the intended power-of-two value.
const ticksPerRevolution = 1 << 20

// unitScale returns the multiplier that converts a raw wire value in
// unit u into radians (or radians/second for the *_second units), and
// false if u is not a recognized unit code.
func unitScale(u Unit) (float64, bool) {
	switch u {
	case UnitImplicit, UnitRadian, UnitRadianSecond:
		return 1.0, true
	case UnitDegree, UnitDegreeSecond:
		return math.Pi / 180.0, true
	case UnitTicksRot, UnitTicksRotSecond:
		return 2 * math.Pi / ticksPerRevolution, true
	case UnitNanoticksRot, UnitNanoticksRotSecond:
		return 2 * math.Pi / (ticksPerRevolution * 1e9), true
	default:
		return 0, false
	}
}

// convertToRadians returns a new vector holding the raw command in
// radians, using per-joint unit codes if present (len(units) == len(raw)), or a single
// implicit-radian conversion if units is empty. It reports false if any
// unit code is unrecognized, in which case the payload must be rejected
// (§4.3).
func convertToRadians(raw []float64, units []Unit) ([]float64, bool) {
	out := make([]float64, len(raw))
	if len(units) == 0 {
		copy(out, raw)
		return out, true
	}
	if len(units) != len(raw) {
		return nil, false
	}
	for i, v := range raw {
		scale, ok := unitScale(units[i])
		if !ok {
			return nil, false
		}
		out[i] = v * scale
	}
	return out, true
}
