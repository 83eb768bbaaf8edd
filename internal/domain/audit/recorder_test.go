package audit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeStore struct {
	entries   []Entry
	appendErr error
}

func (s *fakeStore) Append(ctx context.Context, e Entry) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *fakeStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	out := make([]Entry, 0, limit)
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.entries[i])
	}
	return out, nil
}

type fakeArchive struct {
	entries   []Entry
	appendErr error
	listErr   error
}

func (a *fakeArchive) Append(ctx context.Context, e Entry) error {
	if a.appendErr != nil {
		return a.appendErr
	}
	a.entries = append(a.entries, e)
	return nil
}

func (a *fakeArchive) List(ctx context.Context, recordDate string, limit int) ([]Entry, error) {
	if a.listErr != nil {
		return nil, a.listErr
	}
	out := make([]Entry, 0, limit)
	for i := len(a.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, a.entries[i])
	}
	return out, nil
}

func newTestRecorder(excluded []string) (*Recorder, *fakeStore, *fakeArchive, *time.Time) {
	local := &fakeStore{}
	archive := &fakeArchive{}
	r := NewRecorder(local, archive, excluded, nil)

	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }
	r.sessions.now = func() time.Time { return now }
	return r, local, archive, &now
}

func TestRecorder_SessionDuration(t *testing.T) {
	r, _, archive, now := newTestRecorder(nil)
	ctx := context.Background()

	r.RecordLogin(ctx, "shared-login")
	*now = now.Add(65 * time.Second)
	e := r.RecordLogout(ctx, "shared-login")

	if e.Details.DurationSeconds == nil || *e.Details.DurationSeconds != 65 {
		t.Fatalf("expected 65s duration, got %+v", e.Details.DurationSeconds)
	}
	if e.Details.Duration != "1m" {
		t.Fatalf("expected human duration 1m, got %q", e.Details.Duration)
	}
	if len(archive.entries) != 2 {
		t.Fatalf("expected login+logout archived, got %d", len(archive.entries))
	}

	// el marcador quedó limpio: un segundo logout no lleva duración
	e = r.RecordLogout(ctx, "shared-login")
	if e.Details.DurationSeconds != nil || e.Details.Duration != "" {
		t.Fatalf("expected no duration without marker, got %+v", e.Details)
	}
}

func TestRecorder_ExclusionSuppressesOnlyReads(t *testing.T) {
	r, local, archive, _ := newTestRecorder([]string{"kiosk-viewer"})
	ctx := context.Background()

	// lectura de identidad excluida: no se escribe en ningún destino
	_, recorded := r.Record(ctx, Input{
		Action:     ActionPatientView,
		EntityType: EntityBed,
		EntityID:   "101",
		UserID:     "kiosk-viewer",
	})
	if recorded {
		t.Fatalf("excluded read must not be recorded")
	}
	if len(local.entries) != 0 || len(archive.entries) != 0 {
		t.Fatalf("excluded read leaked into stores: local=%d archive=%d",
			len(local.entries), len(archive.entries))
	}

	// la misma identidad escribiendo sí queda auditada
	_, recorded = r.Record(ctx, Input{
		Action:     ActionPatientAdmitted,
		EntityType: EntityBed,
		EntityID:   "101",
		UserID:     "kiosk-viewer",
		Details:    Details{BedID: "101", PatientName: "García, Ana"},
	})
	if !recorded {
		t.Fatalf("write action must never be suppressed")
	}
	if len(local.entries) != 1 || len(archive.entries) != 1 {
		t.Fatalf("write action missing from stores")
	}

	// y la misma lectura con otra identidad también
	_, recorded = r.Record(ctx, Input{
		Action:     ActionPatientView,
		EntityType: EntityBed,
		EntityID:   "101",
		UserID:     "nurse-1",
	})
	if !recorded || len(local.entries) != 2 {
		t.Fatalf("non-excluded read must be recorded")
	}
}

func TestRecorder_ArchiveFailureIsBestEffort(t *testing.T) {
	r, local, archive, _ := newTestRecorder(nil)
	archive.appendErr = errors.New("archive unavailable")
	ctx := context.Background()

	e, recorded := r.Record(ctx, Input{
		Action:     ActionPatientDataUpdated,
		EntityType: EntityBed,
		EntityID:   "102",
		UserID:     "nurse-1",
	})
	if !recorded || e.ID == "" {
		t.Fatalf("record must succeed despite archive failure")
	}
	if len(local.entries) != 1 {
		t.Fatalf("local buffer must still hold the entry")
	}
}

func TestRecorder_RecentFallsBackToLocal(t *testing.T) {
	r, _, archive, _ := newTestRecorder(nil)
	ctx := context.Background()

	r.Record(ctx, Input{Action: ActionPatientAdmitted, UserID: "nurse-1", EntityType: EntityBed, EntityID: "101"})
	archive.listErr = errors.New("archive unavailable")

	out, err := r.Recent(ctx, "", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(out) != 1 || out[0].Action != ActionPatientAdmitted {
		t.Fatalf("expected local fallback entry, got %+v", out)
	}
}

func TestRecorder_IDsAreSortable(t *testing.T) {
	r, local, _, now := newTestRecorder(nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		r.Record(ctx, Input{Action: ActionPatientDataUpdated, UserID: "nurse-1", EntityType: EntityBed, EntityID: "101"})
		*now = now.Add(time.Second)
	}
	for i := 1; i < len(local.entries); i++ {
		if strings.Compare(local.entries[i-1].ID, local.entries[i].ID) >= 0 {
			t.Fatalf("ids not monotonically sortable: %s >= %s",
				local.entries[i-1].ID, local.entries[i].ID)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{45 * time.Second, "45s"},
		{60 * time.Second, "1m"},
		{59 * time.Minute, "59m"},
		{65 * time.Minute, "1h 5m"},
		{2 * time.Hour, "2h"},
	}
	for _, c := range cases {
		if got := FormatDuration(c.d); got != c.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", c.d, got, c.want)
		}
	}
}
