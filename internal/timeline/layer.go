package timeline

import (
	"errors"
	"strings"

	"ispeak/internal/segments"
)

const (
	// FixedPrefix marks regions mirroring a committed segment.
	FixedPrefix = "fix-region-"
	// SelectionPrefix marks the live, uncommitted selection region.
	SelectionPrefix = "region-"
)

// Region colours keyed by segment type.
const (
	ColorAcoustic        = "rgba(168, 85, 247, 0.2)"
	ColorIntelligibility = "rgba(34, 197, 94, 0.2)"
	ColorFallback        = "rgba(0, 0, 130, 0.2)"
	ColorSelection       = "rgba(59, 130, 246, 0.3)"
)

var (
	ErrLayerNotReady   = errors.New("region layer not ready")
	ErrRegionNotFound  = errors.New("region not found")
	ErrDuplicateRegion = errors.New("region already exists")
)

// Region is a visual overlay on the waveform.
type Region struct {
	ID        string  `json:"id"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	Label     string  `json:"label,omitempty"`
	Color     string  `json:"color"`
	Draggable bool    `json:"draggable"`
	Resizable bool    `json:"resizable"`
}

// RegionLayer is the capability the waveform renderer exposes. Implementations
// own the region objects; callers only issue commands.
type RegionLayer interface {
	Ready() bool
	Regions() []Region
	AddRegion(spec Region) error
	RemoveRegion(id string) error
	UpdateRegion(id string, start, end float64) error
}

// FixedRegionID returns the region id mirroring a segment.
func FixedRegionID(segmentID string) string {
	return FixedPrefix + segmentID
}

// IsFixed reports whether id names a fixed region.
func IsFixed(id string) bool {
	return strings.HasPrefix(id, FixedPrefix)
}

// IsSelection reports whether id names a selection region.
func IsSelection(id string) bool {
	return strings.HasPrefix(id, SelectionPrefix)
}

// ColorFor returns the fixed region colour for a segment type.
func ColorFor(t segments.Type) string {
	switch t {
	case segments.TypeAcoustic:
		return ColorAcoustic
	case segments.TypeIntelligibility:
		return ColorIntelligibility
	default:
		return ColorFallback
	}
}

// FixedRegionFor builds the fixed region spec for a segment.
func FixedRegionFor(seg segments.Segment) Region {
	return Region{
		ID:    FixedRegionID(seg.ID),
		Start: seg.TimeRange.Start,
		End:   seg.TimeRange.End,
		Label: seg.Name,
		Color: ColorFor(seg.Type),
	}
}
