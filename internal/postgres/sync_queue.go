package postgres

import (
	"context"
	"fmt"
	"time"

	"slotbook/internal/models"
)

func (s *Store) CreateSyncTask(ctx context.Context, task *models.SyncTask) error {
	if task.Status == "" {
		task.Status = "pending"
	}
	task.CreatedAt = time.Now().UTC()
	err := s.pool.QueryRow(ctx, `INSERT INTO sync_queue (task_type, booking_id, payload, status, retry_count, last_error, created_at, next_retry_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		task.TaskType, task.BookingID, task.Payload, task.Status, task.RetryCount, task.LastError, task.CreatedAt, task.NextRetryAt,
	).Scan(&task.ID)
	if err != nil {
		return fmt.Errorf("create sync task: %w", err)
	}
	return nil
}

func (s *Store) GetPendingSyncTasks(ctx context.Context, limit int) ([]*models.SyncTask, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, task_type, booking_id, payload, status, retry_count, last_error, created_at, processed_at, next_retry_at
        FROM sync_queue
        WHERE status IN ('pending', 'retry') AND (next_retry_at IS NULL OR next_retry_at <= now())
        ORDER BY created_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending sync tasks: %w", err)
	}
	defer rows.Close()

	tasks := []*models.SyncTask{}
	for rows.Next() {
		var t models.SyncTask
		if err := rows.Scan(&t.ID, &t.TaskType, &t.BookingID, &t.Payload, &t.Status, &t.RetryCount,
			&t.LastError, &t.CreatedAt, &t.ProcessedAt, &t.NextRetryAt); err != nil {
			return nil, fmt.Errorf("scan sync task: %w", err)
		}
		tasks = append(tasks, &t)
	}
	return tasks, rows.Err()
}

func (s *Store) UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	var err error
	switch status {
	case "retry":
		_, err = s.pool.Exec(ctx, `UPDATE sync_queue
            SET status = $1, last_error = $2, next_retry_at = $3, retry_count = retry_count + 1 WHERE id = $4`,
			status, errMsg, nextRetryAt, id)
	case "completed", "failed":
		_, err = s.pool.Exec(ctx, `UPDATE sync_queue
            SET status = $1, last_error = $2, next_retry_at = $3, processed_at = now() WHERE id = $4`,
			status, errMsg, nextRetryAt, id)
	default:
		_, err = s.pool.Exec(ctx, `UPDATE sync_queue SET status = $1, last_error = $2, next_retry_at = $3 WHERE id = $4`,
			status, errMsg, nextRetryAt, id)
	}
	if err != nil {
		return fmt.Errorf("update sync task status: %w", err)
	}
	return nil
}
