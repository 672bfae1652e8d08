package constants

// Unit labels the scale a value was printed in. Values are normalized to
// EUR before persistence; the label is kept for display.
type Unit string

const (
	UnitEUR         Unit = "EUR"
	UnitThousandEUR Unit = "THOUSAND_EUR"
	UnitMillionEUR  Unit = "MILLION_EUR"
	UnitUnknown     Unit = "UNKNOWN"
)

var allUnits = []Unit{UnitEUR, UnitThousandEUR, UnitMillionEUR, UnitUnknown}

// UnitNames returns the unit labels as strings for schema enums.
func UnitNames() []string {
	out := make([]string, len(allUnits))
	for i, u := range allUnits {
		out[i] = string(u)
	}
	return out
}

// ValidUnit reports whether label is a known unit.
func ValidUnit(label string) bool {
	for _, u := range allUnits {
		if string(u) == label {
			return true
		}
	}
	return false
}

// Multiplier converts a value in this unit to EUR. UNKNOWN is assumed to
// already be EUR.
func (u Unit) Multiplier() float64 {
	switch u {
	case UnitThousandEUR:
		return 1_000
	case UnitMillionEUR:
		return 1_000_000
	default:
		return 1
	}
}
