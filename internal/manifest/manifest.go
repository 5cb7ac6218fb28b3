package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"ispeak/internal/analysisapi"
	"ispeak/internal/segments"
	"ispeak/internal/timeline"
)

const dateLayout = "2006-01-02"

// Manifest describes one analysis session.
type Manifest struct {
	Recording string  `toml:"recording"`
	PatientID string  `toml:"patient_id"`
	Date      string  `toml:"date"`
	Duration  float64 `toml:"duration"`
	Ranges    []Range `toml:"segment"`

	dir string
}

// Range is one range to mark and commit as a segment.
type Range struct {
	Name          string  `toml:"name"`
	Type          string  `toml:"type"`
	Start         float64 `toml:"start"`
	End           float64 `toml:"end"`
	ReferenceType string  `toml:"reference_type"`
	Reference     string  `toml:"reference"`
}

// TimeRange returns the range bounds.
func (r Range) TimeRange() segments.TimeRange {
	return segments.TimeRange{Start: r.Start, End: r.End}
}

// CommitMeta converts the range labels for the selection controller.
func (r Range) CommitMeta() timeline.CommitMeta {
	return timeline.CommitMeta{
		Name:          strings.TrimSpace(r.Name),
		Type:          segments.Type(strings.ToLower(strings.TrimSpace(r.Type))),
		ReferenceKind: segments.ReferenceKind(strings.ToLower(strings.TrimSpace(r.ReferenceType))),
		ReferenceText: r.Reference,
	}
}

// Load reads and checks a manifest. Range bounds are validated later against
// the recording duration by the segment store.
func Load(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	var m Manifest
	dec := toml.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return nil, describeDecodeError(path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve manifest path: %w", err)
	}
	m.dir = filepath.Dir(abs)
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &m, nil
}

// Validate checks the fields that do not depend on the recording.
func (m *Manifest) Validate() error {
	if strings.TrimSpace(m.Recording) == "" {
		return errors.New("recording is required")
	}
	if m.Duration < 0 {
		return errors.New("duration must not be negative")
	}
	if date := strings.TrimSpace(m.Date); date != "" {
		if _, err := time.Parse(dateLayout, date); err != nil {
			return fmt.Errorf("date %q must use YYYY-MM-DD", m.Date)
		}
	}
	if len(m.Ranges) == 0 {
		return errors.New("at least one [[segment]] is required")
	}
	for i, r := range m.Ranges {
		if _, err := segments.ParseType(r.Type); err != nil {
			return fmt.Errorf("segment %d: %w", i+1, err)
		}
	}
	return nil
}

// RecordingPath resolves the recording relative to the manifest.
func (m *Manifest) RecordingPath() string {
	if filepath.IsAbs(m.Recording) || m.dir == "" {
		return m.Recording
	}
	return filepath.Join(m.dir, m.Recording)
}

// ResolveDuration returns the configured duration or, when unset, the
// duration read from the recording's WAV header.
func (m *Manifest) ResolveDuration() (float64, error) {
	if m.Duration > 0 {
		return m.Duration, nil
	}
	d, err := WAVDuration(m.RecordingPath())
	if err != nil {
		return 0, fmt.Errorf("duration not set and %w", err)
	}
	return d, nil
}

// Metadata builds the upload metadata for userID.
func (m *Manifest) Metadata(userID string, duration float64) analysisapi.Metadata {
	meta := analysisapi.Metadata{
		UserID:    userID,
		PatientID: strings.TrimSpace(m.PatientID),
		Duration:  duration,
	}
	if date := strings.TrimSpace(m.Date); date != "" {
		if t, err := time.Parse(dateLayout, date); err == nil {
			meta.Date = t.UTC().Format(time.RFC3339)
		}
	}
	return meta
}

func describeDecodeError(path string, err error) error {
	var decodeErr *toml.DecodeError
	if errors.As(err, &decodeErr) {
		row, col := decodeErr.Position()
		return fmt.Errorf("parse manifest %s:%d:%d: %s", path, row, col, decodeErr.Error())
	}
	var strictErr *toml.StrictMissingError
	if errors.As(err, &strictErr) {
		return fmt.Errorf("parse manifest %s: unknown field\n%s", path, strictErr.String())
	}
	return fmt.Errorf("parse manifest %s: %w", path, err)
}
