package worker

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"slotbook/internal/database"
	"slotbook/internal/domain"
	"slotbook/internal/models"
)

func testBooking(id string) *models.Booking {
	return &models.Booking{
		ID:        id,
		UserID:    "user-1",
		ServiceID: "svc-1",
		Date:      time.Date(2030, 6, 3, 0, 0, 0, 0, time.UTC),
		TimeSlot:  "10:00",
		Status:    models.StatusPending,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
}

func TestProcessTaskSuccess(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	worker := NewSheetsWorker(db, sheets, nil, RetryPolicy{}, nil)

	ctx := context.Background()
	if err := worker.EnqueueTask(ctx, domain.SyncTaskUpsert, testBooking("b-1")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	task, ok := worker.tryLocalQueue()
	if !ok {
		t.Fatalf("expected task in local queue")
	}
	worker.processTask(ctx, &task)

	status, retryCount, nextRetry := loadTaskStatus(t, db, task.ID)
	if status != database.SyncStatusCompleted {
		t.Fatalf("expected status=completed, got %s", status)
	}
	if retryCount != 0 {
		t.Fatalf("expected retry_count=0, got %d", retryCount)
	}
	if nextRetry.Valid {
		t.Fatalf("expected next_retry_at NULL on success")
	}
	if sheets.upsertCalls != 1 {
		t.Fatalf("expected upsert call, got %d", sheets.upsertCalls)
	}
	if got := sheets.lastUpsert; got == nil || got.DateString() != "2030-06-03" || got.TimeSlot != "10:00" {
		t.Fatalf("unexpected upserted booking: %+v", got)
	}
}

func TestProcessTaskRetry(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{err: errors.New("boom")}
	worker := NewSheetsWorker(db, sheets, nil, RetryPolicy{MaxRetries: 3, InitialDelay: time.Second}, nil)

	ctx := context.Background()
	if err := worker.EnqueueTask(ctx, domain.SyncTaskUpsert, testBooking("b-2")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	task, ok := worker.tryLocalQueue()
	if !ok {
		t.Fatalf("expected task in local queue")
	}
	worker.processTask(ctx, &task)

	status, retryCount, nextRetry := loadTaskStatus(t, db, task.ID)
	if status != database.SyncStatusRetry {
		t.Fatalf("expected status=retry, got %s", status)
	}
	if retryCount != 1 {
		t.Fatalf("expected retry_count=1, got %d", retryCount)
	}
	if !nextRetry.Valid || nextRetry.Time.Before(time.Now().Add(-time.Second)) {
		t.Fatalf("expected next_retry_at in future, got %v", nextRetry)
	}

	// Not due yet, so polling must not pick it up.
	pending, err := db.GetPendingSyncTasks(ctx, 10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected retry to wait for its delay, got %d due tasks", len(pending))
	}
}

func TestProcessTaskFail(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{err: errors.New("fatal")}
	worker := NewSheetsWorker(db, sheets, nil, RetryPolicy{MaxRetries: 1}, nil)

	ctx := context.Background()
	if err := worker.EnqueueTask(ctx, domain.SyncTaskUpdateStatus, testBooking("b-3")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	task, _ := worker.tryLocalQueue()
	worker.processTask(ctx, &task)

	status, _, _ := loadTaskStatus(t, db, task.ID)
	if status != database.SyncStatusFailed {
		t.Fatalf("expected status=failed, got %s", status)
	}
}

func TestProcessTaskBadPayload(t *testing.T) {
	db := newTestDB(t)
	worker := NewSheetsWorker(db, &fakeSheets{}, nil, RetryPolicy{}, nil)
	ctx := context.Background()

	task := models.SyncTask{TaskType: domain.SyncTaskUpsert, BookingID: "b-4", Payload: "not json"}
	if err := db.CreateSyncTask(ctx, &task); err != nil {
		t.Fatalf("create: %v", err)
	}
	worker.processTask(ctx, &task)

	status, _, _ := loadTaskStatus(t, db, task.ID)
	if status != database.SyncStatusFailed {
		t.Fatalf("expected status=failed, got %s", status)
	}
}

func TestSheetsWorker_HandleSheetTask(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	worker := NewSheetsWorker(db, sheets, nil, RetryPolicy{MaxRetries: 3}, nil)

	ctx := context.Background()

	t.Run("Upsert", func(t *testing.T) {
		err := worker.handleSheetTask(ctx, domain.SyncTaskUpsert, sheetTaskPayload{BookingID: "b-1", Booking: testBooking("b-1")})
		if err != nil {
			t.Fatalf("handle: %v", err)
		}
		if sheets.upsertCalls != 1 {
			t.Fatalf("expected 1 upsert call, got %d", sheets.upsertCalls)
		}
	})

	t.Run("UpsertWithoutBooking", func(t *testing.T) {
		err := worker.handleSheetTask(ctx, domain.SyncTaskUpsert, sheetTaskPayload{BookingID: "missing"})
		if err == nil {
			t.Fatalf("expected error without booking snapshot")
		}
	})

	t.Run("UpdateStatus", func(t *testing.T) {
		err := worker.handleSheetTask(ctx, domain.SyncTaskUpdateStatus, sheetTaskPayload{BookingID: "b-1", Status: models.StatusConfirmed})
		if err != nil {
			t.Fatalf("handle: %v", err)
		}
		if sheets.statusCalls != 1 {
			t.Fatalf("expected 1 status call, got %d", sheets.statusCalls)
		}
		if sheets.lastStatus != models.StatusConfirmed {
			t.Fatalf("expected confirmed, got %s", sheets.lastStatus)
		}
	})

	t.Run("UnknownType", func(t *testing.T) {
		if err := worker.handleSheetTask(ctx, "delete", sheetTaskPayload{BookingID: "b-1"}); err == nil {
			t.Fatalf("expected error for unknown task type")
		}
	})
}

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 5 * time.Second}
	d1 := policy.NextDelay(1)
	d2 := policy.NextDelay(2)
	d3 := policy.NextDelay(5)

	if d1 != time.Second {
		t.Fatalf("attempt1 expected 1s, got %s", d1)
	}
	if d2 != 2*time.Second {
		t.Fatalf("attempt2 expected 2s, got %s", d2)
	}
	if d3 != 5*time.Second {
		t.Fatalf("attempt5 expected capped 5s, got %s", d3)
	}
}

func TestRetryPolicyDecide(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3, InitialDelay: time.Second}.withDefaults()
	now := time.Date(2030, 6, 3, 10, 0, 0, 0, time.UTC)

	first := policy.Decide(&models.SyncTask{RetryCount: 0}, now)
	if first.DeadLetter || first.Attempt != 1 || !first.RetryAt.Equal(now.Add(time.Second)) {
		t.Fatalf("unexpected first decision: %+v", first)
	}
	second := policy.Decide(&models.SyncTask{RetryCount: 1}, now)
	if second.DeadLetter || !second.RetryAt.Equal(now.Add(2*time.Second)) {
		t.Fatalf("unexpected second decision: %+v", second)
	}
	last := policy.Decide(&models.SyncTask{RetryCount: 2}, now)
	if !last.DeadLetter || !last.RetryAt.IsZero() {
		t.Fatalf("expected dead letter after 3 attempts, got %+v", last)
	}
}

func TestRetryPolicies_For(t *testing.T) {
	policies := RetryPolicies{
		Default:    RetryPolicy{MaxRetries: 5},
		ByTaskType: map[string]RetryPolicy{domain.SyncTaskUpdateStatus: {MaxRetries: 2}},
	}
	if got := policies.For(domain.SyncTaskUpdateStatus).MaxRetries; got != 2 {
		t.Fatalf("expected update_status policy, got max %d", got)
	}
	if got := policies.For(domain.SyncTaskUpsert).MaxRetries; got != 5 {
		t.Fatalf("expected default policy, got max %d", got)
	}
	if got := (RetryPolicy{}).withDefaults(); got.MaxRetries != 5 || got.InitialDelay != 2*time.Second || got.BackoffFactor != 2 {
		t.Fatalf("unexpected defaults: %+v", got)
	}
}

func TestProcessTask_PolicyPerTaskType(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{err: errors.New("quota")}
	worker := NewSheetsWorker(db, sheets, nil, RetryPolicy{MaxRetries: 3}, nil)
	worker.SetTaskPolicy(domain.SyncTaskUpdateStatus, RetryPolicy{MaxRetries: 1})

	ctx := context.Background()
	if err := worker.EnqueueTask(ctx, domain.SyncTaskUpsert, testBooking("b-10")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := worker.EnqueueTask(ctx, domain.SyncTaskUpdateStatus, testBooking("b-11")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	upsert, _ := worker.tryLocalQueue()
	worker.processTask(ctx, &upsert)
	update, _ := worker.tryLocalQueue()
	worker.processTask(ctx, &update)

	if status, _, _ := loadTaskStatus(t, db, upsert.ID); status != database.SyncStatusRetry {
		t.Fatalf("expected upsert to be retried, got %s", status)
	}
	if status, _, _ := loadTaskStatus(t, db, update.ID); status != database.SyncStatusFailed {
		t.Fatalf("expected update_status to be dead-lettered, got %s", status)
	}
}

func TestSheetsWorker_EnqueueTask(t *testing.T) {
	db := newTestDB(t)
	worker := NewSheetsWorker(db, &fakeSheets{}, nil, RetryPolicy{}, nil)

	ctx := context.Background()

	t.Run("ValidTask", func(t *testing.T) {
		if err := worker.EnqueueTask(ctx, domain.SyncTaskUpsert, testBooking("b-1")); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	})

	t.Run("InvalidTaskType", func(t *testing.T) {
		if err := worker.EnqueueTask(ctx, "", testBooking("b-1")); err == nil {
			t.Fatalf("expected error for empty task type")
		}
	})

	t.Run("InvalidBookingID", func(t *testing.T) {
		if err := worker.EnqueueTask(ctx, domain.SyncTaskUpsert, nil); err == nil {
			t.Fatalf("expected error for missing booking")
		}
		if err := worker.EnqueueTask(ctx, domain.SyncTaskUpsert, &models.Booking{}); err == nil {
			t.Fatalf("expected error for missing booking id")
		}
	})
}

func TestSheetsWorker_DecodePayload(t *testing.T) {
	worker := NewSheetsWorker(nil, nil, nil, RetryPolicy{}, nil)

	t.Run("ValidPayload", func(t *testing.T) {
		payload := `{"booking_id":"b-123","status":"confirmed","booking":{"id":"b-123","date":"2030-06-03","time_slot":"09:00"}}`
		decoded, err := worker.decodePayload(payload)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if decoded.BookingID != "b-123" || decoded.Status != models.StatusConfirmed {
			t.Fatalf("unexpected decoded payload: %+v", decoded)
		}
		if decoded.Booking == nil || decoded.Booking.DateString() != "2030-06-03" {
			t.Fatalf("expected booking date to survive decoding: %+v", decoded.Booking)
		}
	})

	t.Run("InvalidPayload", func(t *testing.T) {
		if _, err := worker.decodePayload(`invalid json`); err == nil {
			t.Fatalf("expected error for invalid json")
		}
	})
}

func TestSheetsWorker_Redis(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer s.Close()
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	db := newTestDB(t)
	sheets := &fakeSheets{err: errors.New("quota exceeded")}
	worker := NewSheetsWorker(db, sheets, client, RetryPolicy{MaxRetries: 1}, nil)
	ctx := context.Background()

	if err := worker.EnqueueTask(ctx, domain.SyncTaskUpsert, testBooking("b-9")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, ok := worker.tryLocalQueue(); ok {
		t.Fatalf("task should go to redis, not the memory queue")
	}

	task, ok := worker.tryRedis(ctx)
	if !ok {
		t.Fatalf("expected task in redis")
	}
	if task.BookingID != "b-9" {
		t.Fatalf("unexpected task: %+v", task)
	}
	worker.processTask(ctx, &task)

	dead, err := client.LLen(ctx, worker.deadLetterKey).Result()
	if err != nil {
		t.Fatalf("llen: %v", err)
	}
	if dead != 1 {
		t.Fatalf("expected 1 dead letter, got %d", dead)
	}
}

func TestSheetsWorker_StartDrainsQueue(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	worker := NewSheetsWorker(db, sheets, nil, RetryPolicy{}, nil)
	worker.pollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	if err := worker.EnqueueTask(ctx, domain.SyncTaskUpsert, testBooking("b-5")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	done := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for sheets.upserts() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if sheets.upserts() != 1 {
		t.Fatalf("expected worker to process the task once, got %d", sheets.upserts())
	}
}

// Helpers

type fakeSheets struct {
	mu          sync.Mutex
	err         error
	upsertCalls int
	statusCalls int
	lastUpsert  *models.Booking
	lastStatus  models.BookingStatus
}

func (f *fakeSheets) UpsertBooking(ctx context.Context, b *models.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertCalls++
	f.lastUpsert = b
	return f.err
}

func (f *fakeSheets) UpdateBookingStatus(ctx context.Context, id string, status models.BookingStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	f.lastStatus = status
	return f.err
}

func (f *fakeSheets) upserts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upsertCalls
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.db")
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(path, &logger)
	if err != nil {
		t.Fatalf("new db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func loadTaskStatus(t *testing.T, db *database.DB, id int64) (status string, retryCount int, nextRetry sql.NullTime) {
	t.Helper()
	row := db.QueryRowContext(context.Background(), `SELECT status, retry_count, next_retry_at FROM sync_queue WHERE id = ?`, id)
	if err := row.Scan(&status, &retryCount, &nextRetry); err != nil {
		t.Fatalf("scan task: %v", err)
	}
	return status, retryCount, nextRetry
}
