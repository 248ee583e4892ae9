package inventory

import (
	"math"
	"regexp"
	"sort"
	"strconv"

	"github.com/noah-isme/backend-phongkham/internal/domain"
)

// Prescription holds the sphere and cylinder powers of both eyes in dioptres.
type Prescription struct {
	OdSph float64 `json:"odSph"`
	OsSph float64 `json:"osSph"`
	OdCyl float64 `json:"odCyl"`
	OsCyl float64 `json:"osCyl"`
}

// Range is an inclusive power range a lens can be ground to.
type Range struct {
	Min float64
	Max float64
}

// Width is the span of the range.
func (r Range) Width() float64 { return r.Max - r.Min }

// Contains reports whether v lies inside the range.
func (r Range) Contains(v float64) bool { return v >= r.Min && v <= r.Max }

// matches "-8.00 đến +8.00", "-8 to 8" and "-8.00 - +8.00"
var rangePattern = regexp.MustCompile(`(?i)([-+]?\d+\.?\d*)\s*(?:đến|to|-)\s*([-+]?\d+\.?\d*)`)

// ParseRange reads a range label. ok is false for empty or free-form labels
// such as "Plano".
func ParseRange(label string) (Range, bool) {
	m := rangePattern.FindStringSubmatch(label)
	if m == nil {
		return Range{}, false
	}
	lo, err1 := strconv.ParseFloat(m[1], 64)
	hi, err2 := strconv.ParseFloat(m[2], 64)
	if err1 != nil || err2 != nil {
		return Range{}, false
	}
	return Range{Min: lo, Max: hi}, true
}

func accepts(label string, values ...float64) bool {
	r, ok := ParseRange(label)
	if !ok {
		return true
	}
	for _, v := range values {
		if !r.Contains(v) {
			return false
		}
	}
	return true
}

// Match keeps the products whose SPH and CYL ranges cover both eyes and
// orders them narrowest SPH range first. Products without a parseable SPH
// range go last in their original order.
func Match(products []domain.Product, rx Prescription) []domain.Product {
	out := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if accepts(p.SphRange, rx.OdSph, rx.OsSph) && accepts(p.CylRange, rx.OdCyl, rx.OsCyl) {
			out = append(out, p)
		}
	}
	width := func(p domain.Product) float64 {
		if r, ok := ParseRange(p.SphRange); ok {
			return r.Width()
		}
		return math.Inf(1)
	}
	sort.SliceStable(out, func(i, j int) bool { return width(out[i]) < width(out[j]) })
	return out
}
