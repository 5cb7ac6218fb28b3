package segments_test

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"ispeak/internal/segments"
	"ispeak/internal/services"
)

func newTestStore(t *testing.T) (*segments.Store, *time.Time) {
	t.Helper()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	counter := 0
	store := segments.NewStore(120,
		segments.WithClock(func() time.Time { return now }),
		segments.WithIDGenerator(func() string {
			counter++
			return fmt.Sprintf("seg-%d", counter)
		}),
	)
	return store, &now
}

func acousticDraft(start, end float64) segments.Draft {
	return segments.Draft{Type: segments.TypeAcoustic, TimeRange: segments.TimeRange{Start: start, End: end}}
}

func TestStoreDefaultNames(t *testing.T) {
	store, _ := newTestStore(t)

	first, err := store.Create(acousticDraft(0, 5))
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	second, err := store.Create(acousticDraft(5, 10))
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if first.Name != "Acoustic Analysis" || second.Name != "Acoustic Analysis 2" {
		t.Fatalf("unexpected names %q, %q", first.Name, second.Name)
	}

	intel, err := store.Create(segments.Draft{
		Type:          segments.TypeIntelligibility,
		TimeRange:     segments.TimeRange{Start: 10, End: 20},
		ReferenceKind: segments.ReferenceWords,
		ReferenceText: "office, throw",
	})
	if err != nil {
		t.Fatalf("create intelligibility: %v", err)
	}
	if intel.Name != "Intelligibility Assessment (FDA2)" {
		t.Fatalf("unexpected intelligibility name %q", intel.Name)
	}

	if err := store.Delete(first.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	third, err := store.Create(acousticDraft(20, 30))
	if err != nil {
		t.Fatalf("create third: %v", err)
	}
	if third.Name != "Acoustic Analysis" {
		t.Fatalf("expected freed base name reused, got %q", third.Name)
	}
}

func TestStoreDefaultNameFillsGaps(t *testing.T) {
	existing := []segments.Segment{
		{Name: "Acoustic Analysis"},
		{Name: "Acoustic Analysis 3"},
	}
	if got := segments.DefaultName(segments.TypeAcoustic, existing); got != "Acoustic Analysis 2" {
		t.Fatalf("DefaultName = %q, want Acoustic Analysis 2", got)
	}
}

func TestStoreListPreservesCreationOrder(t *testing.T) {
	store, _ := newTestStore(t)
	for i := 0; i < 3; i++ {
		if _, err := store.Create(acousticDraft(float64(i*10), float64(i*10+5))); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	list := store.List()
	for i, seg := range list {
		if want := fmt.Sprintf("seg-%d", i+1); seg.ID != want {
			t.Fatalf("position %d: got %s want %s", i, seg.ID, want)
		}
	}
	list[0].Name = "mutated"
	if got, _ := store.Get("seg-1"); got.Name == "mutated" {
		t.Fatal("List must return copies")
	}
}

func TestStoreCreateRejectsWithoutWriting(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Create(acousticDraft(50, 500))
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("expected no segments after failed create, got %d", store.Len())
	}
}

func TestStoreUpdate(t *testing.T) {
	store, now := newTestStore(t)
	seg, err := store.Create(acousticDraft(0, 5))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	*now = now.Add(time.Minute)
	name := "Vowel prolongation"
	rng := segments.TimeRange{Start: 1, End: 8}
	updated, err := store.Update(seg.ID, segments.Patch{Name: &name, TimeRange: &rng})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != name || updated.TimeRange != rng {
		t.Fatalf("unexpected update result %+v", updated)
	}
	if !updated.UpdatedAt.After(updated.CreatedAt) {
		t.Fatalf("expected UpdatedAt bumped, got created=%s updated=%s", updated.CreatedAt, updated.UpdatedAt)
	}

	bad := segments.TimeRange{Start: 9, End: 3}
	if _, err := store.Update(seg.ID, segments.Patch{TimeRange: &bad}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	current, _ := store.Get(seg.ID)
	if current.TimeRange != rng {
		t.Fatalf("failed update must not write, got %+v", current.TimeRange)
	}

	intel := segments.TypeIntelligibility
	if _, err := store.Update(seg.ID, segments.Patch{Type: &intel}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("switching to intelligibility without reference should fail, got %v", err)
	}

	if _, err := store.Update("missing", segments.Patch{Name: &name}); !errors.Is(err, segments.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreApplyCreatesOrUpdates(t *testing.T) {
	store, _ := newTestStore(t)

	created, err := store.Apply(acousticDraft(0, 5), "")
	if err != nil {
		t.Fatalf("apply new: %v", err)
	}
	if created.Name != "Acoustic Analysis" || store.Len() != 1 {
		t.Fatalf("expected one default-named segment, got %+v (len %d)", created, store.Len())
	}

	// An edit commit with a blank name keeps the stored name.
	edited, err := store.Apply(acousticDraft(2, 9), created.ID)
	if err != nil {
		t.Fatalf("apply edit: %v", err)
	}
	if edited.ID != created.ID || edited.Name != "Acoustic Analysis" {
		t.Fatalf("unexpected edit result %+v", edited)
	}
	if edited.TimeRange != (segments.TimeRange{Start: 2, End: 9}) || store.Len() != 1 {
		t.Fatalf("expected range replaced in place, got %+v (len %d)", edited.TimeRange, store.Len())
	}

	if _, err := store.Apply(acousticDraft(0, 1), "missing"); !errors.Is(err, segments.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSegmentDraftRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	tests := []struct {
		name  string
		draft segments.Draft
	}{
		{"words", segments.Draft{
			Type: segments.TypeIntelligibility, TimeRange: segments.TimeRange{Start: 0, End: 4},
			ReferenceKind: segments.ReferenceWords, ReferenceText: "office, throw, ship",
		}},
		{"sentences", segments.Draft{
			Type: segments.TypeIntelligibility, TimeRange: segments.TimeRange{Start: 4, End: 8},
			ReferenceKind: segments.ReferenceSentences, ReferenceText: "The cat sat. It rained!",
		}},
		{"acoustic", acousticDraft(8, 12)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			seg, err := store.Create(tc.draft)
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			again, err := store.Apply(seg.Draft(), seg.ID)
			if err != nil {
				t.Fatalf("re-apply draft: %v", err)
			}
			if !reflect.DeepEqual(again.ReferenceData, seg.ReferenceData) || again.Name != seg.Name {
				t.Fatalf("draft did not round trip: before %+v after %+v", seg, again)
			}
		})
	}
}

func TestStoreReplaceAndOptions(t *testing.T) {
	store, _ := newTestStore(t)
	list := []segments.Segment{
		{ID: "x", Name: "A", Type: segments.TypeAcoustic, TimeRange: segments.TimeRange{Start: 0, End: 3}},
		{ID: "y", Name: "B", Type: segments.TypeIntelligibility, TimeRange: segments.TimeRange{Start: 3, End: 6},
			ReferenceData: &segments.ReferenceData{Words: []string{"leaf"}}},
	}
	if err := store.Replace(list); err != nil {
		t.Fatalf("replace: %v", err)
	}
	opts := store.Options()
	if !opts.AcousticAnalysis || !opts.Transcription {
		t.Fatalf("unexpected options %+v", opts)
	}

	dup := []segments.Segment{list[0], list[0]}
	if err := store.Replace(dup); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected duplicate ids rejected, got %v", err)
	}
	if store.Len() != 2 {
		t.Fatalf("failed replace must keep contents, got %d", store.Len())
	}

	store.Clear()
	if store.Len() != 0 || store.Options() != (segments.Options{}) {
		t.Fatal("expected empty store after Clear")
	}
}
