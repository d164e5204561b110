package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmehra2102/prod-golang-projects/medlink/internal/domain/presence"
	"github.com/dmehra2102/prod-golang-projects/medlink/internal/domain/review"
	sr "github.com/dmehra2102/prod-golang-projects/medlink/internal/domain/servicerequest"
	"github.com/dmehra2102/prod-golang-projects/medlink/pkg/database"
	"github.com/google/uuid"
	"go.uber.org/zap"
	pgdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// These tests run against a real database, e.g.
// MEDLINK_TEST_DATABASE_DSN="host=localhost user=medlink password=medlink dbname=medlink_test sslmode=disable"
const dsnEnv = "MEDLINK_TEST_DATABASE_DSN"

var (
	migrateOnce sync.Once
	migrateErr  error
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv(dsnEnv)
	if dsn == "" {
		t.Skipf("%s not set", dsnEnv)
	}
	db, err := gorm.Open(pgdriver.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	migrateOnce.Do(func() { migrateErr = database.Migrate(db, zap.NewNop()) })
	if migrateErr != nil {
		t.Fatalf("migrating: %v", migrateErr)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func newPending(t *testing.T, repo *RequestRepository, patientID uuid.UUID) *sr.ServiceRequest {
	t.Helper()
	req := &sr.ServiceRequest{
		PatientID: patientID,
		Symptoms:  "fever",
		Urgency:   sr.UrgencyHigh,
		Location:  sr.Location{Latitude: 4.60, Longitude: -74.08, Address: "Calle 1"},
		Geohash:   "d2g6f3",
	}
	if err := repo.Create(context.Background(), req); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return req
}

func TestRequestRepository_ConcurrentAssignSingleWinner(t *testing.T) {
	repo := NewRequestRepository(openTestDB(t))
	req := newPending(t, repo, uuid.New())

	const attempts = 16
	var (
		wg      sync.WaitGroup
		winners atomic.Int32
		winner  atomic.Value
		start   = make(chan struct{})
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			doctor := uuid.New()
			_, err := repo.ApplyTransition(context.Background(), req.ID, sr.StatusPending, func(r *sr.ServiceRequest) error {
				return r.Assign(doctor, time.Now())
			})
			switch {
			case err == nil:
				winners.Add(1)
				winner.Store(doctor)
			case !errors.Is(err, sr.ErrConflict):
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if winners.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners.Load())
	}
	got, err := repo.GetByID(context.Background(), req.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Version != 2 || !got.IsAssignedTo(winner.Load().(uuid.UUID)) {
		t.Fatalf("stored record does not match the winner: %+v", got)
	}
}

func TestRequestRepository_ConflictWritesNothing(t *testing.T) {
	repo := NewRequestRepository(openTestDB(t))
	ctx := context.Background()
	req := newPending(t, repo, uuid.New())

	_, err := repo.ApplyTransition(ctx, req.ID, sr.StatusAssigned, func(r *sr.ServiceRequest) error {
		return r.Start(time.Now())
	})
	if !errors.Is(err, sr.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	boom := errors.New("boom")
	_, err = repo.ApplyTransition(ctx, req.ID, sr.StatusPending, func(r *sr.ServiceRequest) error {
		r.Symptoms = "changed"
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected mutation error, got %v", err)
	}

	got, err := repo.GetByID(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != sr.StatusPending || got.Version != 1 || got.Symptoms != "fever" || got.DoctorID != nil {
		t.Fatalf("failed transition changed the record: %+v", got)
	}
	if _, err := repo.GetByID(ctx, uuid.New()); !errors.Is(err, sr.ErrRequestNotFound) {
		t.Fatalf("expected ErrRequestNotFound, got %v", err)
	}
}

func TestRequestRepository_CreatedAtAndCursorPaging(t *testing.T) {
	repo := NewRequestRepository(openTestDB(t))
	ctx := context.Background()
	patientID := uuid.New()

	backdated := &sr.ServiceRequest{
		PatientID: patientID,
		Symptoms:  "fever",
		Urgency:   sr.UrgencyLow,
		Geohash:   "d2g6f3",
		CreatedAt: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := repo.Create(ctx, backdated); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if backdated.CreatedAt.Year() == 2020 {
		t.Fatalf("caller CreatedAt kept: %v", backdated.CreatedAt)
	}

	ids := map[uuid.UUID]bool{backdated.ID: true}
	for i := 0; i < 4; i++ {
		ids[newPending(t, repo, patientID).ID] = true
	}

	seen := make(map[uuid.UUID]bool)
	var last *sr.ServiceRequest
	q := &sr.ListQuery{PatientID: &patientID, PageSize: 2}
	for {
		page, err := repo.List(ctx, q)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		for _, r := range page {
			if seen[r.ID] {
				t.Fatalf("request %s returned twice", r.ID)
			}
			if last != nil && r.CreatedAt.After(last.CreatedAt) {
				t.Fatalf("results not ordered newest first")
			}
			seen[r.ID] = true
			last = r
		}
		if len(page) < q.PageSize {
			break
		}
		q.After = sr.CursorOf(page[len(page)-1])
	}
	if len(seen) != len(ids) {
		t.Fatalf("expected %d requests across pages, got %d", len(ids), len(seen))
	}
}

func TestPresenceRepository_UpsertKeepsInService(t *testing.T) {
	repo := NewPresenceRepository(openTestDB(t))
	ctx := context.Background()
	doctor, reqID := uuid.New(), uuid.New()

	first, err := repo.Upsert(ctx, &presence.Presence{DoctorID: doctor, Status: presence.StatusOnline, Latitude: 4.6, Longitude: -74.08})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	reserved, err := repo.CompareAndSetStatus(ctx, doctor, presence.StatusOnline, presence.StatusInService, &reqID)
	if err != nil {
		t.Fatalf("CompareAndSetStatus: %v", err)
	}
	if _, err := repo.CompareAndSetStatus(ctx, doctor, presence.StatusOnline, presence.StatusInService, &reqID); !errors.Is(err, presence.ErrPresenceConflict) {
		t.Fatalf("expected ErrPresenceConflict, got %v", err)
	}

	got, err := repo.Upsert(ctx, &presence.Presence{DoctorID: doctor, Status: presence.StatusOffline, Latitude: 4.7, Longitude: -74.1})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if got.Status != presence.StatusInService || got.ActiveRequestID == nil || *got.ActiveRequestID != reqID {
		t.Fatalf("in-service state overwritten: %+v", got)
	}
	if got.Latitude != 4.7 || got.Longitude != -74.1 {
		t.Fatalf("position not updated: %+v", got)
	}
	if !(first.Version < reserved.Version && reserved.Version < got.Version) {
		t.Fatalf("versions not increasing: %d, %d, %d", first.Version, reserved.Version, got.Version)
	}
}

func TestReviewRepository_Duplicate(t *testing.T) {
	repo := NewReviewRepository(openTestDB(t))
	ctx := context.Background()
	requestID := uuid.New()

	rv := func(rating int) *review.Review {
		return &review.Review{RequestID: requestID, PatientID: uuid.New(), DoctorID: uuid.New(), Rating: rating}
	}
	if err := repo.Create(ctx, rv(5)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Create(ctx, rv(4)); !errors.Is(err, review.ErrDuplicateReview) {
		t.Fatalf("expected ErrDuplicateReview, got %v", err)
	}
	got, err := repo.GetByRequestID(ctx, requestID)
	if err != nil || got.Rating != 5 {
		t.Fatalf("unexpected review %+v, err %v", got, err)
	}
	if _, err := repo.GetByRequestID(ctx, uuid.New()); !errors.Is(err, review.ErrReviewNotFound) {
		t.Fatalf("expected ErrReviewNotFound, got %v", err)
	}
}
