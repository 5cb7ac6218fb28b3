package segments

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Type is the analysis requested for a segment.
type Type string

const (
	TypeAcoustic        Type = "acoustic"
	TypeIntelligibility Type = "intelligibility"
)

// Valid reports whether t is a known analysis type.
func (t Type) Valid() bool {
	return t == TypeAcoustic || t == TypeIntelligibility
}

// ParseType normalizes user input into a Type.
func ParseType(value string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(value)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown analysis type %q (want acoustic or intelligibility)", value)
	}
	return t, nil
}

// ReferenceKind selects how intelligibility reference text is parsed.
type ReferenceKind string

const (
	ReferenceWords     ReferenceKind = "words"
	ReferenceSentences ReferenceKind = "sentences"
)

// TimeRange is a span of the recording in seconds.
type TimeRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns the length of the range in seconds.
func (r TimeRange) Duration() float64 {
	return r.End - r.Start
}

func (r TimeRange) String() string {
	return FormatTime(r.Start, false) + " - " + FormatTime(r.End, false)
}

// ReferenceData is the expected speech for an intelligibility segment.
type ReferenceData struct {
	Words     []string `json:"words,omitempty"`
	Sentences []string `json:"sentences,omitempty"`
}

// Empty reports whether no reference items are present.
func (r *ReferenceData) Empty() bool {
	return r == nil || (len(r.Words) == 0 && len(r.Sentences) == 0)
}

func (r *ReferenceData) clone() *ReferenceData {
	if r == nil {
		return nil
	}
	return &ReferenceData{
		Words:     slices.Clone(r.Words),
		Sentences: slices.Clone(r.Sentences),
	}
}

// Segment is a committed, labeled time range. The JSON shape matches the
// upload wire format.
type Segment struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Type          Type           `json:"type"`
	TimeRange     TimeRange      `json:"timeRange"`
	ReferenceData *ReferenceData `json:"referenceData,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// Clone returns a deep copy.
func (s Segment) Clone() Segment {
	s.ReferenceData = s.ReferenceData.clone()
	return s
}

// Draft is the user input for a new or edited segment. ReferenceText is
// parsed according to ReferenceKind for intelligibility segments and ignored
// otherwise.
type Draft struct {
	Name          string
	Type          Type
	TimeRange     TimeRange
	ReferenceKind ReferenceKind
	ReferenceText string
}

// Reference builds the ReferenceData implied by the draft, or nil when the
// draft carries none.
func (d Draft) Reference() *ReferenceData {
	if d.Type != TypeIntelligibility {
		return nil
	}
	return ReferenceFromText(d.ReferenceKind, d.ReferenceText)
}

// Patch holds optional replacements for an existing segment.
type Patch struct {
	Name          *string
	Type          *Type
	TimeRange     *TimeRange
	ReferenceData *ReferenceData
}

// Draft returns the input that would recreate seg, for editing. Reference
// items are joined so the matching parser yields them again.
func (s Segment) Draft() Draft {
	d := Draft{Name: s.Name, Type: s.Type, TimeRange: s.TimeRange}
	switch {
	case s.ReferenceData == nil:
	case len(s.ReferenceData.Sentences) > 0:
		d.ReferenceKind = ReferenceSentences
		d.ReferenceText = strings.Join(s.ReferenceData.Sentences, "\n")
	case len(s.ReferenceData.Words) > 0:
		d.ReferenceKind = ReferenceWords
		d.ReferenceText = strings.Join(s.ReferenceData.Words, ", ")
	}
	return d
}

// PatchFromDraft converts a draft into a patch. A blank name or reference
// leaves the stored value in place.
func PatchFromDraft(d Draft) Patch {
	typ := d.Type
	rng := d.TimeRange
	p := Patch{Type: &typ, TimeRange: &rng, ReferenceData: d.Reference()}
	if name := strings.TrimSpace(d.Name); name != "" {
		p.Name = &name
	}
	return p
}

func (p Patch) apply(seg Segment) Segment {
	if p.Name != nil {
		seg.Name = strings.TrimSpace(*p.Name)
	}
	if p.Type != nil {
		seg.Type = *p.Type
	}
	if p.TimeRange != nil {
		seg.TimeRange = *p.TimeRange
	}
	if p.ReferenceData != nil {
		seg.ReferenceData = p.ReferenceData.clone()
	}
	if seg.Type == TypeAcoustic {
		seg.ReferenceData = nil
	}
	return seg
}

// Options reports which analyses a segment list requests.
type Options struct {
	Transcription    bool
	AcousticAnalysis bool
}

// OptionsFor derives Options from a segment list.
func OptionsFor(list []Segment) Options {
	var opts Options
	for _, seg := range list {
		switch seg.Type {
		case TypeAcoustic:
			opts.AcousticAnalysis = true
		case TypeIntelligibility:
			opts.Transcription = true
		}
	}
	return opts
}

// AnalysisTypes lists the requested analysis types in a stable order.
func (o Options) AnalysisTypes() []Type {
	types := make([]Type, 0, 2)
	if o.AcousticAnalysis {
		types = append(types, TypeAcoustic)
	}
	if o.Transcription {
		types = append(types, TypeIntelligibility)
	}
	return types
}
