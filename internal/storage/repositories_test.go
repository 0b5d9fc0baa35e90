package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shuttle-pass/backend/internal/config"
	"github.com/shuttle-pass/backend/internal/storage/models"
)

func testDecisionConfig() config.Decision {
	return config.Decision{
		CriticalTime:     14 * 60,
		MorningInbound:   true,
		PrevInterval:     10,
		NextInterval:     60,
		InboundRouteIDs:  []int{2, 4},
		OutboundRouteIDs: []int{5, 6, 7},
	}
}

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := RunMigrations(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	return db
}

func TestRideHistoryMergeIdempotent(t *testing.T) {
	repo := NewRideHistoryRepository(testDB(t))
	ctx := context.Background()

	batch := []models.RideHistoryEntry{
		{ID: 1, StatusName: "已预约", RouteName: "燕园-新校区", AppointmentTime: "2025-03-08 08:40"},
		{ID: 2, StatusName: "已签到", RouteName: "新校区-燕园", AppointmentTime: "2025-03-09 18:10"},
	}

	merged, err := repo.Merge(ctx, batch)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(merged) != 2 {
		t.Fatalf("merged set has %d entries, want 2", len(merged))
	}

	// The same batch again, plus one overlap with updated status.
	again := []models.RideHistoryEntry{
		batch[0],
		{ID: 2, StatusName: "已完成", RouteName: "新校区-燕园", AppointmentTime: "2025-03-09 18:10"},
		{ID: 3, StatusName: "已预约", RouteName: "燕园-新校区", AppointmentTime: "2025-03-10 08:40"},
	}
	merged, err = repo.Merge(ctx, again)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(merged) != 3 {
		t.Fatalf("merged set has %d entries after overlap, want 3", len(merged))
	}

	// Newest first, and the overlapping entry took the updated status.
	if merged[0].ID != 3 || merged[1].ID != 2 || merged[2].ID != 1 {
		t.Errorf("order = %d,%d,%d; want 3,2,1", merged[0].ID, merged[1].ID, merged[2].ID)
	}
	if merged[1].StatusName != "已完成" {
		t.Errorf("overlapping entry status = %q, want updated value", merged[1].StatusName)
	}
}

func TestRideHistoryMergeOrderIndependent(t *testing.T) {
	ctx := context.Background()
	entries := []models.RideHistoryEntry{
		{ID: 1, StatusName: "a", RouteName: "r", AppointmentTime: "2025-03-08 08:40"},
		{ID: 2, StatusName: "b", RouteName: "r", AppointmentTime: "2025-03-09 08:40"},
		{ID: 3, StatusName: "c", RouteName: "r", AppointmentTime: "2025-03-10 08:40"},
	}

	forward := NewRideHistoryRepository(testDB(t))
	if _, err := forward.Merge(ctx, entries); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	reversed := NewRideHistoryRepository(testDB(t))
	if _, err := reversed.Merge(ctx, []models.RideHistoryEntry{entries[2], entries[1], entries[0]}); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	a, err := forward.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	b, err := reversed.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(a) != len(b) {
		t.Fatalf("set sizes differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("entry %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestRideHistoryLastFetchDate(t *testing.T) {
	repo := NewRideHistoryRepository(testDB(t))
	ctx := context.Background()

	got, err := repo.LastFetchDate(ctx)
	if err != nil {
		t.Fatalf("LastFetchDate: %v", err)
	}
	if !got.IsZero() {
		t.Errorf("initial watermark = %v, want zero", got)
	}

	want := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	if err := repo.SetLastFetchDate(ctx, want); err != nil {
		t.Fatalf("SetLastFetchDate: %v", err)
	}
	got, err = repo.LastFetchDate(ctx)
	if err != nil {
		t.Fatalf("LastFetchDate: %v", err)
	}
	if got.Format("2006-01-02") != "2025-03-10" {
		t.Errorf("watermark = %v, want 2025-03-10", got)
	}
}

func TestScheduleCacheDateKeyed(t *testing.T) {
	repo := NewScheduleCacheRepository(testDB(t))
	ctx := context.Background()

	routes := []models.Resource{{ID: 2, Name: "燕园-新校区", Slots: []models.TimeSlot{
		{SlotID: 101, Date: "2025-03-10", StartTime: "08:40", Margin: 5},
	}}}
	if err := repo.Put(ctx, "2025-03-10", routes); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := repo.GetFor(ctx, "2025-03-10")
	if err != nil {
		t.Fatalf("GetFor: %v", err)
	}
	if len(got) != 1 || got[0].Name != "燕园-新校区" || len(got[0].Slots) != 1 {
		t.Fatalf("round-tripped schedule = %+v", got)
	}

	// A different date is a miss, not yesterday's rows.
	got, err = repo.GetFor(ctx, "2025-03-11")
	if err != nil {
		t.Fatalf("GetFor: %v", err)
	}
	if got != nil {
		t.Errorf("rollover date returned stale rows: %+v", got)
	}

	// Writing the new date prunes the old one entirely.
	if err := repo.Put(ctx, "2025-03-11", routes); err != nil {
		t.Fatalf("Put: %v", err)
	}
	var count int
	if err := repo.DB().QueryRow(`SELECT COUNT(*) FROM schedule_cache`).Scan(&count); err != nil {
		t.Fatalf("counting rows: %v", err)
	}
	if count != 1 {
		t.Errorf("schedule_cache holds %d rows, want 1", count)
	}
}

func TestCredentialRoundTrip(t *testing.T) {
	repo := NewCredentialRepository(testDB(t))
	ctx := context.Background()

	user, secret, err := repo.Get(ctx)
	if err != nil || user != "" || secret != "" {
		t.Fatalf("Get on empty store = %q, %q, %v", user, secret, err)
	}

	if err := repo.Put(ctx, "2100012345", "hunter2"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	// A new rider replaces the previous one.
	if err := repo.Put(ctx, "2100054321", "swordfish"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	user, secret, err = repo.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if user != "2100054321" || secret != "swordfish" {
		t.Errorf("Get = %q, %q; want the replacing rider", user, secret)
	}
}

func TestPutIdentityKeepsObservedFields(t *testing.T) {
	repo := NewCredentialRepository(testDB(t))
	ctx := context.Background()

	full := models.RiderIdentity{Name: "张三", RiderID: "2100012345", Department: "信息科学技术学院"}
	if err := repo.PutIdentity(ctx, "2100012345", full); err != nil {
		t.Fatalf("PutIdentity: %v", err)
	}

	// A later partial observation must not blank the known fields.
	partial := models.RiderIdentity{Name: "张三"}
	if err := repo.PutIdentity(ctx, "2100012345", partial); err != nil {
		t.Fatalf("PutIdentity: %v", err)
	}

	got, err := repo.Identity(ctx, "2100012345")
	if err != nil {
		t.Fatalf("Identity: %v", err)
	}
	if got != full {
		t.Errorf("identity = %+v, want %+v", got, full)
	}
}

func TestSettingsDecisionRoundTrip(t *testing.T) {
	repo := NewSettingsRepository(testDB(t))
	ctx := context.Background()

	base := testDecisionConfig()
	got, err := repo.LoadDecision(ctx, base)
	if err != nil {
		t.Fatalf("LoadDecision: %v", err)
	}
	if got.CriticalTime != base.CriticalTime {
		t.Errorf("unsaved settings returned %+v, want base config", got)
	}

	override := base
	override.CriticalTime = 13 * 60
	override.NextInterval = 45
	if err := repo.SaveDecision(ctx, override); err != nil {
		t.Fatalf("SaveDecision: %v", err)
	}

	got, err = repo.LoadDecision(ctx, base)
	if err != nil {
		t.Fatalf("LoadDecision: %v", err)
	}
	if got.CriticalTime != 13*60 || got.NextInterval != 45 {
		t.Errorf("loaded override = %+v", got)
	}
}
