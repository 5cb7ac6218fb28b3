package segments

import (
	"fmt"
	"math"
	"strings"

	"ispeak/internal/services"
)

// Field keys used in validation errors.
const (
	FieldName               = "name"
	FieldType               = "type"
	FieldTimeRange          = "timeRange"
	FieldReferenceKind      = "referenceType"
	FieldReferenceWords     = "referenceWords"
	FieldReferenceSentences = "referenceSentences"
	FieldReferenceData      = "referenceData"
	FieldSegments           = "segments"
)

// ValidateTimeRange returns "" when 0 <= start < end <= duration, otherwise
// the first failing rule's message.
func ValidateTimeRange(r TimeRange, duration float64) string {
	switch {
	case math.IsNaN(r.Start) || math.IsNaN(r.End):
		return "Start and end times must be numbers"
	case r.Start < 0:
		return "Start time cannot be negative"
	case r.Start > duration:
		return fmt.Sprintf("Start time cannot exceed session duration (%s)", FormatTime(duration, false))
	case r.End > duration:
		return fmt.Sprintf("End time cannot exceed session duration (%s)", FormatTime(duration, false))
	case r.Start >= r.End:
		return "Start time must be less than end time"
	}
	return ""
}

// ValidateDraft checks user input before it reaches the store.
func ValidateDraft(d Draft, duration float64) error {
	fields := map[string]string{}
	if strings.TrimSpace(d.Name) == "" {
		fields[FieldName] = "Analysis name is required"
	}
	if !d.Type.Valid() {
		fields[FieldType] = "Analysis type must be acoustic or intelligibility"
	}
	if msg := ValidateTimeRange(d.TimeRange, duration); msg != "" {
		fields[FieldTimeRange] = msg
	}
	if d.Type == TypeIntelligibility {
		switch d.ReferenceKind {
		case ReferenceWords:
			if len(ParseWords(d.ReferenceText)) == 0 {
				fields[FieldReferenceWords] = "Reference words are required for intelligibility analysis"
			}
		case ReferenceSentences:
			if len(ParseSentences(d.ReferenceText)) == 0 {
				fields[FieldReferenceSentences] = "Reference sentences are required for intelligibility analysis"
			}
		default:
			fields[FieldReferenceKind] = "Reference type must be words or sentences"
		}
	}
	if len(fields) > 0 {
		return validationError("invalid analysis segment", fields)
	}
	return nil
}

func validationError(message string, fields map[string]string) error {
	return services.Validation(message, fields)
}

// ValidateSegment checks a stored segment against the recording duration.
func ValidateSegment(seg Segment, duration float64) map[string]string {
	fields := map[string]string{}
	if strings.TrimSpace(seg.Name) == "" {
		fields[FieldName] = "Analysis name is required"
	}
	if !seg.Type.Valid() {
		fields[FieldType] = "Analysis type must be acoustic or intelligibility"
	}
	if msg := ValidateTimeRange(seg.TimeRange, duration); msg != "" {
		fields[FieldTimeRange] = msg
	}
	if seg.Type == TypeIntelligibility && seg.ReferenceData.Empty() {
		fields[FieldReferenceData] = "Reference words or sentences are required for intelligibility analysis"
	}
	return fields
}

// ValidateForSubmit validates every segment before upload. Field keys are
// prefixed with the segment position, e.g. "segments[1].timeRange".
func ValidateForSubmit(list []Segment, duration float64) error {
	if len(list) == 0 {
		return services.Validation("no analysis segments", map[string]string{
			FieldSegments: "At least one analysis segment is required",
		})
	}
	fields := map[string]string{}
	for i, seg := range list {
		for key, msg := range ValidateSegment(seg, duration) {
			fields[fmt.Sprintf("%s[%d].%s", FieldSegments, i, key)] = msg
		}
	}
	if len(fields) > 0 {
		return validationError("invalid analysis segments", fields)
	}
	return nil
}
