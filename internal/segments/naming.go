package segments

import "strconv"

const (
	defaultAcousticName        = "Acoustic Analysis"
	defaultIntelligibilityName = "Intelligibility Assessment (FDA2)"
)

// BaseName returns the fixed label for an analysis type.
func BaseName(t Type) string {
	if t == TypeIntelligibility {
		return defaultIntelligibilityName
	}
	return defaultAcousticName
}

// DefaultName returns the base label for t when unused, otherwise
// "<base> <n>" for the smallest n >= 2 not already taken.
func DefaultName(t Type, existing []Segment) string {
	taken := make(map[string]struct{}, len(existing))
	for _, seg := range existing {
		taken[seg.Name] = struct{}{}
	}
	base := BaseName(t)
	if _, ok := taken[base]; !ok {
		return base
	}
	for n := 2; ; n++ {
		candidate := base + " " + strconv.Itoa(n)
		if _, ok := taken[candidate]; !ok {
			return candidate
		}
	}
}
