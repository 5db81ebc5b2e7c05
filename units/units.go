// Package units maps stored component magnitudes to and from
// engineering notation ("4.7 k" <-> 4700.0).
package units

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Category classifies a catalog item. The set is open ended: unknown
// categories are valid, they just carry no physical unit.
type Category string

const (
	CapCeramic Category = "CapCeramic"
	CapElectro Category = "CapElectro"
	Resistor   Category = "Resistor"
	Inductor   Category = "Inductor"
)

// Unit returns the unit symbol implied by the category, or "" for
// categories without a defined unit.
func (c Category) Unit() string {
	switch c {
	case CapCeramic, CapElectro:
		return "F"
	case Resistor:
		return "Ω"
	case Inductor:
		return "H"
	default:
		return ""
	}
}

// HasUnit reports whether values in this category are scaled and
// suffixed when displayed.
func (c Category) HasUnit() bool { return c.Unit() != "" }

// Magnitudes closer to zero than this are treated as an exact zero so
// they format unscaled instead of as a degenerate "0.00 p".
const zeroEpsilon = 1e-15

type bracket struct {
	upper  float64 // strict upper bound on |v|
	mult   float64
	prefix string
}

// Brackets are ordered smallest first; selection takes the first one
// whose strict upper bound exceeds the magnitude.
var brackets = []bracket{
	{1e-9, 1e12, "p"},
	{1e-6, 1e9, "n"},
	{1e-3, 1e6, "u"},
	{1, 1e3, "m"},
	{1e3, 1, ""},
	{1e6, 1e-3, "k"},
	{1e9, 1e-6, "M"},
}

var giga = bracket{math.Inf(1), 1e-9, "G"}

// FormatValue renders a stored magnitude for display. The prefix field
// is always two characters wide (blank padded when unscaled) so values
// line up in tabular output.
func FormatValue(c Category, v float64) string {
	if !c.HasUnit() {
		return fmt.Sprintf("%.2f%2s", v, "")
	}
	b := giga
	mag := math.Abs(v)
	if mag < zeroEpsilon {
		b = bracket{mult: 1, prefix: ""}
	} else {
		for _, cand := range brackets {
			if mag < cand.upper {
				b = cand
				break
			}
		}
	}
	return fmt.Sprintf("%.2f%2s%s", v*b.mult, b.prefix, c.Unit())
}

var multipliers = map[string]float64{
	"p": 1e-12,
	"n": 1e-9,
	"u": 1e-6,
	"m": 1e-3,
	"k": 1e3,
	"M": 1e6,
	"G": 1e9,
}

// ParseValue parses user-typed engineering notation back into a
// magnitude. The numeric literal runs up to the last digit in the
// string; whatever trails it is an optional one-character prefix code,
// and anything unrecognized there is ignored. A literal that does not
// parse yields ok=false, which callers treat as "no value given",
// never as a failure.
func ParseValue(text string) (float64, bool) {
	text = strings.TrimSpace(text)
	last := -1
	for i, r := range text {
		if r >= '0' && r <= '9' {
			last = i
		}
	}
	if last < 0 {
		return 0, false
	}

	literal := text[:last+1]
	suffix := strings.TrimSpace(text[last+1:])

	v, err := strconv.ParseFloat(strings.TrimSpace(literal), 64)
	if err != nil {
		return 0, false
	}
	if mult, ok := multipliers[suffix]; ok {
		v *= mult
	}
	return v, true
}
