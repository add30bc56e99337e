package settings

import (
	"sort"
	"testing"
)

type recordingApplier struct {
	applied map[string]any
}

func newRecordingApplier() *recordingApplier {
	return &recordingApplier{applied: make(map[string]any)}
}

func (a *recordingApplier) ApplySetting(key string, value any) error {
	a.applied[key] = value
	return nil
}

func intp(v int) *int            { return &v }
func strp(v string) *string      { return &v }
func floatp(v float64) *float64  { return &v }
func themep(v Theme) *Theme      { return &v }
func modep(v ViewMode) *ViewMode { return &v }

func TestDefaults(t *testing.T) {
	s := NewStore(Settings{})
	got := s.Snapshot()
	if got != Default() {
		t.Fatalf("zero initial: got %+v, want defaults %+v", got, Default())
	}
}

func TestUpdateMerges(t *testing.T) {
	s := NewStore(Default())

	s.Update(Partial{FontSize: intp(22)})
	s.Update(Partial{Theme: themep(ThemeDark)})

	got := s.Snapshot()
	if got.FontSize != 22 {
		t.Errorf("FontSize: got %d, want 22", got.FontSize)
	}
	if got.Theme != ThemeDark {
		t.Errorf("Theme: got %q, want dark", got.Theme)
	}
	// Untouched fields survive the merges.
	if got.FontFamily != Default().FontFamily {
		t.Errorf("FontFamily was dropped by merge: got %q", got.FontFamily)
	}
	if got.ViewMode != Default().ViewMode {
		t.Errorf("ViewMode was dropped by merge: got %q", got.ViewMode)
	}
}

func TestUpdatePushesChangedKeys(t *testing.T) {
	s := NewStore(Default())
	a := newRecordingApplier()
	s.Attach(a)
	a.applied = make(map[string]any) // drop the attach push

	s.Update(Partial{
		FontSize:   intp(20),
		LineHeight: floatp(1.8),
		ViewMode:   modep(ViewScrolled),
	})

	var keys []string
	for k := range a.applied {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	want := []string{"fontSize", "lineHeight", "viewMode"}
	if len(keys) != len(want) {
		t.Fatalf("applied keys %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("applied keys %v, want %v", keys, want)
		}
	}
	if a.applied["fontSize"] != 20 {
		t.Errorf("fontSize pushed as %v, want 20", a.applied["fontSize"])
	}
}

func TestUpdateNoApplierSucceedsLocally(t *testing.T) {
	s := NewStore(Default())
	s.Update(Partial{FontSize: intp(22), FontFamily: strp("mono")})

	got := s.Snapshot()
	if got.FontSize != 22 || got.FontFamily != "mono" {
		t.Fatalf("local update lost: %+v", got)
	}
}

func TestAttachPushesFullState(t *testing.T) {
	s := NewStore(Default())
	// Settings changed before any session exists.
	s.Update(Partial{FontSize: intp(22)})

	a := newRecordingApplier()
	s.Attach(a)

	if a.applied["fontSize"] != 22 {
		t.Fatalf("attach pushed fontSize %v, want 22", a.applied["fontSize"])
	}
	if len(a.applied) != 6 {
		t.Fatalf("attach pushed %d keys, want all 6", len(a.applied))
	}
}

func TestDetachStopsPush(t *testing.T) {
	s := NewStore(Default())
	a := newRecordingApplier()
	s.Attach(a)
	s.Detach()
	a.applied = make(map[string]any)

	s.Update(Partial{Margin: intp(12)})

	if len(a.applied) != 0 {
		t.Fatalf("detached applier received %v", a.applied)
	}
	if s.Snapshot().Margin != 12 {
		t.Fatal("local merge lost after detach")
	}
}
