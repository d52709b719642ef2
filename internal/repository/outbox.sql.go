package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const insertOutboxMessage = `-- name: InsertOutboxMessage :exec
INSERT INTO outbox_messages (event_id, kind, queue, payload)
VALUES ($1, $2, $3, $4)`

type InsertOutboxMessageParams struct {
	EventID uuid.UUID `json:"event_id"`
	Kind    string    `json:"kind"`
	Queue   string    `json:"queue"`
	Payload []byte    `json:"payload"`
}

func (q *Queries) InsertOutboxMessage(ctx context.Context, arg InsertOutboxMessageParams) error {
	_, err := q.db.Exec(ctx, insertOutboxMessage, arg.EventID, arg.Kind, arg.Queue, arg.Payload)
	return err
}

const listDueOutboxMessages = `-- name: ListDueOutboxMessages :many
SELECT id, event_id, kind, queue, payload, status, attempts, last_error, next_attempt_at, created_at, published_at
FROM outbox_messages
WHERE status = 'pending' AND next_attempt_at <= NOW()
ORDER BY id
LIMIT $1
FOR UPDATE SKIP LOCKED`

// ListDueOutboxMessages locks up to limit due rows for the calling
// transaction. Rows locked by another relay are skipped.
func (q *Queries) ListDueOutboxMessages(ctx context.Context, limit int32) ([]OutboxMessage, error) {
	rows, err := q.db.Query(ctx, listDueOutboxMessages, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OutboxMessage
	for rows.Next() {
		var i OutboxMessage
		if err := rows.Scan(
			&i.ID,
			&i.EventID,
			&i.Kind,
			&i.Queue,
			&i.Payload,
			&i.Status,
			&i.Attempts,
			&i.LastError,
			&i.NextAttemptAt,
			&i.CreatedAt,
			&i.PublishedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const markOutboxMessagePublished = `-- name: MarkOutboxMessagePublished :exec
UPDATE outbox_messages
SET status = 'published', attempts = attempts + 1, last_error = NULL, published_at = NOW()
WHERE id = $1`

func (q *Queries) MarkOutboxMessagePublished(ctx context.Context, id int64) error {
	_, err := q.db.Exec(ctx, markOutboxMessagePublished, id)
	return err
}

const rescheduleOutboxMessage = `-- name: RescheduleOutboxMessage :exec
UPDATE outbox_messages
SET attempts = attempts + 1, last_error = $2, next_attempt_at = $3
WHERE id = $1`

type RescheduleOutboxMessageParams struct {
	ID            int64     `json:"id"`
	LastError     string    `json:"last_error"`
	NextAttemptAt time.Time `json:"next_attempt_at"`
}

func (q *Queries) RescheduleOutboxMessage(ctx context.Context, arg RescheduleOutboxMessageParams) error {
	_, err := q.db.Exec(ctx, rescheduleOutboxMessage, arg.ID, arg.LastError, arg.NextAttemptAt)
	return err
}

const markOutboxMessageFailed = `-- name: MarkOutboxMessageFailed :exec
UPDATE outbox_messages
SET status = 'failed', attempts = attempts + 1, last_error = $2
WHERE id = $1`

type MarkOutboxMessageFailedParams struct {
	ID        int64  `json:"id"`
	LastError string `json:"last_error"`
}

func (q *Queries) MarkOutboxMessageFailed(ctx context.Context, arg MarkOutboxMessageFailedParams) error {
	_, err := q.db.Exec(ctx, markOutboxMessageFailed, arg.ID, arg.LastError)
	return err
}

const deletePublishedOutboxMessagesBefore = `-- name: DeletePublishedOutboxMessagesBefore :execrows
DELETE FROM outbox_messages
WHERE status = 'published' AND published_at < $1`

func (q *Queries) DeletePublishedOutboxMessagesBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, deletePublishedOutboxMessagesBefore, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
