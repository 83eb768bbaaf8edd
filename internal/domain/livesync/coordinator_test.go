package livesync_test

import (
	"context"
	"errors"
	"testing"
	"time"

	mem "ward-daily-census/internal/adapters/storage/memory"
	"ward-daily-census/internal/domain/census"
	"ward-daily-census/internal/domain/livesync"
)

const testDate = "2025-03-10"

func seed(date string) census.DailyRecord {
	return census.NewEmptyRecord(date, []string{"101", "102", "103"})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestCoordinator_CacheFirstThenRemoteWins(t *testing.T) {
	ctx := context.Background()
	store := mem.NewStore()
	cache := mem.NewCache()

	// la caché tiene una instantánea vieja; el remoto, una más nueva
	stale := seed(testDate)
	stale.Beds["101"] = census.PatientData{PatientName: "Viejo, Paciente"}
	if err := cache.PutRecord(ctx, stale); err != nil {
		t.Fatalf("prime cache: %v", err)
	}

	writer := store.Client("other-station")
	fresh := seed(testDate)
	fresh.Beds["101"] = census.PatientData{PatientName: "Nuevo, Paciente"}
	if err := writer.WriteFull(ctx, testDate, fresh); err != nil {
		t.Fatalf("prime remote: %v", err)
	}

	c := livesync.Open(ctx, testDate, store.Client("station-1"), cache, seed, nil)
	defer c.Close()

	// la lectura síncrona sirve la caché antes de reconciliar
	if got := c.Record().Beds["101"].PatientName; got != "Viejo, Paciente" {
		t.Fatalf("expected cached snapshot first, got %q", got)
	}

	<-c.Ready()
	if got := c.Record().Beds["101"].PatientName; got != "Nuevo, Paciente" {
		t.Fatalf("expected remote record after reconcile, got %q", got)
	}
	if st := c.Status(); st != livesync.StatusSaved {
		t.Fatalf("expected saved status, got %s", st)
	}

	// y la caché quedó actualizada con lo reconciliado
	cached, ok, err := cache.GetRecord(ctx, testDate)
	if err != nil || !ok {
		t.Fatalf("expected reconciled record in cache, ok=%v err=%v", ok, err)
	}
	if cached.Beds["101"].PatientName != "Nuevo, Paciente" {
		t.Fatalf("cache not refreshed, got %q", cached.Beds["101"].PatientName)
	}
}

func TestCoordinator_EchoSuppressed(t *testing.T) {
	ctx := context.Background()
	store := mem.NewStore()

	c := livesync.Open(ctx, testDate, store.Client("station-1"), mem.NewCache(), seed, nil)
	defer c.Close()
	<-c.Ready()

	patch := census.PatchMap{"beds.101.patientName": "García, Ana"}
	if err := c.PatchRecord(ctx, patch); err != nil {
		t.Fatalf("patch: %v", err)
	}

	// el eco de la escritura propia llega por la suscripción y se descarta
	waitFor(t, "echo discard", func() bool { return c.EchoesDiscarded() == 1 })

	if got := c.Record().Beds["101"].PatientName; got != "García, Ana" {
		t.Fatalf("record corrupted after echo, got %q", got)
	}
	if st := c.Status(); st != livesync.StatusSaved {
		t.Fatalf("expected saved after patch, got %s", st)
	}
}

func TestCoordinator_TwoClientsConverge(t *testing.T) {
	ctx := context.Background()
	store := mem.NewStore()

	a := livesync.Open(ctx, testDate, store.Client("station-a"), mem.NewCache(), seed, nil)
	defer a.Close()
	b := livesync.Open(ctx, testDate, store.Client("station-b"), mem.NewCache(), seed, nil)
	defer b.Close()
	<-a.Ready()
	<-b.Ready()

	if err := a.PatchRecord(ctx, census.PatchMap{"beds.102.diagnosis": "bronquiolitis"}); err != nil {
		t.Fatalf("patch from a: %v", err)
	}

	// b recibe el snapshot ajeno y lo adopta; a descarta su propio eco
	waitFor(t, "b convergence", func() bool {
		return b.Record().Beds["102"].Diagnosis == "bronquiolitis"
	})
	waitFor(t, "a echo discard", func() bool { return a.EchoesDiscarded() == 1 })

	if n := b.EchoesDiscarded(); n != 0 {
		t.Fatalf("b discarded %d echoes without writing", n)
	}
}

func TestCoordinator_PatchKeptWhenRemoteFails(t *testing.T) {
	ctx := context.Background()
	rem := &fakeRemote{writePartialErr: errors.New("network down")}

	c := livesync.Open(ctx, testDate, rem, mem.NewCache(), seed, nil)
	defer c.Close()
	<-c.Ready()

	err := c.PatchRecord(ctx, census.PatchMap{"beds.101.notes": "vigilar fiebre"})
	if !errors.Is(err, livesync.ErrRemoteWrite) {
		t.Fatalf("expected ErrRemoteWrite, got %v", err)
	}

	// la edición optimista se conserva; el estado delata el fallo
	if got := c.Record().Beds["101"].Notes; got != "vigilar fiebre" {
		t.Fatalf("optimistic edit lost, got %q", got)
	}
	if st := c.Status(); st != livesync.StatusError {
		t.Fatalf("expected error status, got %s", st)
	}
}

func TestCoordinator_InvalidPatchLeavesRecordUntouched(t *testing.T) {
	ctx := context.Background()
	store := mem.NewStore()

	c := livesync.Open(ctx, testDate, store.Client("station-1"), mem.NewCache(), seed, nil)
	defer c.Close()
	<-c.Ready()

	before := c.Record()
	err := c.PatchRecord(ctx, census.PatchMap{
		"beds.101.notes":    "válido",
		"beds.101.invented": "x",
	})
	if !errors.Is(err, census.ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath, got %v", err)
	}
	if got := c.Record().Beds["101"].Notes; got != before.Beds["101"].Notes {
		t.Fatalf("record changed by rejected patch")
	}
}

func TestCoordinator_SaveRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := mem.NewStore()

	c := livesync.Open(ctx, testDate, store.Client("station-1"), mem.NewCache(), seed, nil)
	defer c.Close()
	<-c.Ready()

	rec := seed(testDate)
	rec.Beds["103"] = census.PatientData{PatientName: "Pérez, Luis", Diagnosis: "asma"}
	rec.ExtraBeds = []string{"201"}

	if err := c.SaveAndUpdate(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	got := c.Record()
	if got.Beds["103"].PatientName != "Pérez, Luis" || len(got.ExtraBeds) != 1 {
		t.Fatalf("saved record not authoritative: %+v", got)
	}
	if got.Date != testDate {
		t.Fatalf("expected date pinned to %s, got %s", testDate, got.Date)
	}
}

func TestCoordinator_SaveFailureLeavesRecordIntact(t *testing.T) {
	ctx := context.Background()
	rem := &fakeRemote{writeFullErr: errors.New("network down")}

	c := livesync.Open(ctx, testDate, rem, mem.NewCache(), seed, nil)
	defer c.Close()
	<-c.Ready()

	before := c.Record()

	bad := seed(testDate)
	bad.Beds["101"] = census.PatientData{PatientName: "No, Debería"}
	err := c.SaveAndUpdate(ctx, bad)
	if !errors.Is(err, livesync.ErrRemoteWrite) {
		t.Fatalf("expected ErrRemoteWrite, got %v", err)
	}

	if got := c.Record().Beds["101"].PatientName; got != before.Beds["101"].PatientName {
		t.Fatalf("record mutated by failed save, got %q", got)
	}
	if st := c.Status(); st != livesync.StatusError {
		t.Fatalf("expected error status, got %s", st)
	}
}

func TestCoordinator_CloseStopsDelivery(t *testing.T) {
	ctx := context.Background()
	store := mem.NewStore()

	c := livesync.Open(ctx, testDate, store.Client("station-1"), mem.NewCache(), seed, nil)
	<-c.Ready()
	c.Close()

	// una escritura ajena posterior al cierre no toca el registro
	writer := store.Client("other-station")
	if err := writer.WritePartial(ctx, testDate, census.PatchMap{"beds.101.patientName": "Tarde"}); err != nil {
		t.Fatalf("foreign write: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if got := c.Record().Beds["101"].PatientName; got != "" {
		t.Fatalf("snapshot delivered after close, got %q", got)
	}
	if st := c.Status(); st != livesync.StatusIdle {
		t.Fatalf("expected idle after close, got %s", st)
	}
}

func TestCoordinator_DeleteResetsToSeed(t *testing.T) {
	ctx := context.Background()
	store := mem.NewStore()
	cache := mem.NewCache()

	c := livesync.Open(ctx, testDate, store.Client("station-1"), cache, seed, nil)
	defer c.Close()
	<-c.Ready()

	if err := c.PatchRecord(ctx, census.PatchMap{"beds.101.patientName": "García, Ana"}); err != nil {
		t.Fatalf("patch: %v", err)
	}
	if err := c.DeleteRecord(ctx); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if got := c.Record().Beds["101"].PatientName; got != "" {
		t.Fatalf("expected empty record after delete, got %q", got)
	}
	if _, ok, _ := cache.GetRecord(ctx, testDate); ok {
		t.Fatalf("expected cache entry removed")
	}
	if rec, err := store.Client("x").Read(ctx, testDate); err != nil || rec != nil {
		t.Fatalf("expected remote document gone, rec=%v err=%v", rec, err)
	}
}

func TestManager_CoordinatorOutlivesOpeningContext(t *testing.T) {
	store := mem.NewStore()
	gated := &gatedRemote{Remote: store.Client("station-1"), gate: make(chan struct{})}
	mgr := livesync.NewManager(context.Background(), gated, mem.NewCache(), seed, nil)
	defer mgr.CloseAll()

	reqCtx, cancelReq := context.WithCancel(context.Background())
	c := mgr.Open(reqCtx, testDate)
	// la petición que abrió la fecha termina con la reconciliación aún en
	// vuelo; el coordinador no debe morir con ella
	cancelReq()
	close(gated.gate)
	<-c.Ready()

	if st := c.Status(); st != livesync.StatusSaved {
		t.Fatalf("reconcile died with the opening request, status %s", st)
	}

	// y la suscripción sigue viva: una escritura ajena converge
	writer := store.Client("other-station")
	if err := writer.WritePartial(context.Background(), testDate, census.PatchMap{"beds.101.patientName": "Nocturno, Ingreso"}); err != nil {
		t.Fatalf("foreign write: %v", err)
	}
	waitFor(t, "convergence after opening request ended", func() bool {
		return c.Record().Beds["101"].PatientName == "Nocturno, Ingreso"
	})
}

func TestCoordinator_ReconcileMaterializesSeededRecord(t *testing.T) {
	ctx := context.Background()
	store := mem.NewStore()

	c := livesync.Open(ctx, testDate, store.Client("station-1"), mem.NewCache(), seed, nil)
	defer c.Close()
	<-c.Ready()

	// la fecha sin documento se materializa con las camas del catálogo
	rec, err := store.Client("x").Read(ctx, testDate)
	if err != nil || rec == nil {
		t.Fatalf("expected seeded document in remote, rec=%v err=%v", rec, err)
	}
	if len(rec.Beds) != 3 {
		t.Fatalf("expected 3 catalog beds, got %d", len(rec.Beds))
	}
}

func TestCoordinator_FirstPatchBirthsCompleteDocument(t *testing.T) {
	ctx := context.Background()
	store := mem.NewStore()
	gated := &gatedRemote{Remote: store.Client("station-1"), gate: make(chan struct{})}

	c := livesync.Open(ctx, testDate, gated, mem.NewCache(), seed, nil)
	defer c.Close()

	// parche optimista antes de que la reconciliación haya visto el remoto
	if err := c.PatchRecord(ctx, census.PatchMap{"beds.102.diagnosis": "laringitis"}); err != nil {
		t.Fatalf("patch: %v", err)
	}
	close(gated.gate)
	<-c.Ready()

	got := c.Record()
	if got.Beds["102"].Diagnosis != "laringitis" {
		t.Fatalf("optimistic edit lost, got %q", got.Beds["102"].Diagnosis)
	}
	if len(got.Beds) != 3 {
		t.Fatalf("record lost its seeded beds, got %d", len(got.Beds))
	}

	// el documento remoto nació completo, no solo con el campo parcheado
	rec, err := store.Client("x").Read(ctx, testDate)
	if err != nil || rec == nil {
		t.Fatalf("expected remote document, rec=%v err=%v", rec, err)
	}
	if len(rec.Beds) != 3 || rec.Beds["102"].Diagnosis != "laringitis" {
		t.Fatalf("remote document born sparse: %+v", rec.Beds)
	}
}

func TestCoordinator_ReconcileKeepsUnconfirmedEdit(t *testing.T) {
	ctx := context.Background()
	store := mem.NewStore()

	// el remoto ya tiene un documento más nuevo que lo local
	writer := store.Client("other-station")
	remoteRec := seed(testDate)
	remoteRec.Beds["101"] = census.PatientData{PatientName: "Remoto, Paciente"}
	if err := writer.WriteFull(ctx, testDate, remoteRec); err != nil {
		t.Fatalf("prime remote: %v", err)
	}

	gated := &gatedRemote{
		Remote:          store.Client("station-1"),
		gate:            make(chan struct{}),
		writeFullErr:    errors.New("network down"),
		writePartialErr: errors.New("network down"),
	}
	c := livesync.Open(ctx, testDate, gated, mem.NewCache(), seed, nil)
	defer c.Close()

	// la escritura remota del parche falla: edición local sin confirmar
	err := c.PatchRecord(ctx, census.PatchMap{"beds.102.diagnosis": "laringitis"})
	if !errors.Is(err, livesync.ErrRemoteWrite) {
		t.Fatalf("expected ErrRemoteWrite, got %v", err)
	}
	close(gated.gate)
	<-c.Ready()

	// la reconciliación no pisa la edición pendiente con el documento remoto
	if got := c.Record().Beds["102"].Diagnosis; got != "laringitis" {
		t.Fatalf("unconfirmed edit replaced by reconcile, got %q", got)
	}
}

func TestCoordinator_DeletePropagatesToOtherClients(t *testing.T) {
	ctx := context.Background()
	store := mem.NewStore()

	a := livesync.Open(ctx, testDate, store.Client("station-a"), mem.NewCache(), seed, nil)
	defer a.Close()
	b := livesync.Open(ctx, testDate, store.Client("station-b"), mem.NewCache(), seed, nil)
	defer b.Close()
	<-a.Ready()
	<-b.Ready()

	if err := a.PatchRecord(ctx, census.PatchMap{"beds.101.patientName": "García, Ana"}); err != nil {
		t.Fatalf("patch from a: %v", err)
	}
	waitFor(t, "b sees the admission", func() bool {
		return b.Record().Beds["101"].PatientName == "García, Ana"
	})

	if err := a.DeleteRecord(ctx); err != nil {
		t.Fatalf("delete from a: %v", err)
	}

	// b vuelve a su registro sembrado al difundirse el borrado
	waitFor(t, "b resets to the seeded record", func() bool {
		rec := b.Record()
		return rec.Beds["101"].PatientName == "" && len(rec.Beds) == 3
	})
}

// gatedRemote retiene la lectura inicial hasta que se abre la puerta, y
// permite forzar fallos de escritura sin perder el almacén real detrás.
type gatedRemote struct {
	livesync.Remote
	gate            chan struct{}
	writeFullErr    error
	writePartialErr error
}

func (g *gatedRemote) Read(ctx context.Context, date string) (*census.DailyRecord, error) {
	select {
	case <-g.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.Remote.Read(ctx, date)
}

func (g *gatedRemote) WriteFull(ctx context.Context, date string, rec census.DailyRecord) error {
	if g.writeFullErr != nil {
		return g.writeFullErr
	}
	return g.Remote.WriteFull(ctx, date, rec)
}

func (g *gatedRemote) WritePartial(ctx context.Context, date string, patch census.PatchMap) error {
	if g.writePartialErr != nil {
		return g.writePartialErr
	}
	return g.Remote.WritePartial(ctx, date, patch)
}

// fakeRemote permite forzar fallos de escritura; la suscripción nunca
// entrega nada.
type fakeRemote struct {
	writePartialErr error
	writeFullErr    error
}

func (f *fakeRemote) Read(ctx context.Context, date string) (*census.DailyRecord, error) {
	return nil, nil
}

func (f *fakeRemote) ReadRange(ctx context.Context, from, to string) ([]census.DailyRecord, error) {
	return nil, nil
}

func (f *fakeRemote) WriteFull(ctx context.Context, date string, rec census.DailyRecord) error {
	return f.writeFullErr
}

func (f *fakeRemote) WritePartial(ctx context.Context, date string, patch census.PatchMap) error {
	return f.writePartialErr
}

func (f *fakeRemote) Delete(ctx context.Context, date string) error { return nil }

func (f *fakeRemote) Subscribe(ctx context.Context, date string) (livesync.Subscription, error) {
	return &fakeSub{ch: make(chan livesync.Snapshot)}, nil
}

type fakeSub struct{ ch chan livesync.Snapshot }

func (s *fakeSub) Snapshots() <-chan livesync.Snapshot { return s.ch }
func (s *fakeSub) Unsubscribe()                        {}
