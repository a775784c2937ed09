package adapter

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	chat "github.com/SCS-Technik/Assixx-sub005/internal/pkg/chat/domain"
)

// PgChatRepository is the pgx-backed persistence adapter over the chat
// schema. All conversation/message queries are tenant-scoped; delivery-queue
// rows inherit their tenant via the message foreign key.
type PgChatRepository struct {
	pool *pgxpool.Pool
}

func NewPgChatRepository(pool *pgxpool.Pool) *PgChatRepository {
	return &PgChatRepository{pool: pool}
}

const messageColumns = `
	m.id::text, m.conversation_id::text, m.sender_id::text, m.tenant_id::text,
	m.content, m.attachments, m.created_at, m.delivery_status,
	m.scheduled_delivery, m.is_read, m.read_at`

func (r *PgChatRepository) IsParticipant(ctx context.Context, conversationID, userID, tenantID string) (bool, error) {
	if r == nil || r.pool == nil {
		return false, errors.New("PgChatRepository: nil pool")
	}
	var ok bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM chat.participant p
			JOIN chat.conversation c ON c.id = p.conversation_id
			WHERE p.conversation_id = $1::uuid
			  AND p.user_id = $2::uuid
			  AND c.tenant_id = $3::uuid
		)
	`, conversationID, userID, tenantID).Scan(&ok)
	return ok, err
}

func (r *PgChatRepository) ListParticipantIDs(ctx context.Context, conversationID, tenantID string) ([]string, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgChatRepository: nil pool")
	}
	rows, err := r.pool.Query(ctx, `
		SELECT p.user_id::text
		FROM chat.participant p
		JOIN chat.conversation c ON c.id = p.conversation_id
		WHERE p.conversation_id = $1::uuid
		  AND c.tenant_id = $2::uuid
	`, conversationID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

func (r *PgChatRepository) CoParticipantIDs(ctx context.Context, userID, tenantID string) ([]string, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgChatRepository: nil pool")
	}
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT p2.user_id::text
		FROM chat.participant p1
		JOIN chat.participant p2 ON p2.conversation_id = p1.conversation_id
		JOIN chat.conversation c ON c.id = p1.conversation_id
		WHERE p1.user_id = $1::uuid
		  AND c.tenant_id = $2::uuid
		  AND p2.user_id <> $1::uuid
	`, userID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

func (r *PgChatRepository) SaveMessage(ctx context.Context, m chat.Message) (string, error) {
	if r == nil || r.pool == nil {
		return "", errors.New("PgChatRepository: nil pool")
	}
	var id string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO chat.message (
			conversation_id, sender_id, tenant_id, content, attachments,
			created_at, delivery_status, scheduled_delivery, is_read
		) VALUES ($1::uuid, $2::uuid, $3::uuid, $4, $5, $6, $7, $8, false)
		RETURNING id::text
	`, m.ConversationID, m.SenderID, m.TenantID, m.Content, m.Attachments,
		m.CreatedAt, m.DeliveryStatus, m.ScheduledDelivery).Scan(&id)
	return id, err
}

func (r *PgChatRepository) GetMessage(ctx context.Context, messageID, tenantID string) (*chat.Message, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgChatRepository: nil pool")
	}
	row := r.pool.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM chat.message m
		WHERE m.id = $1::uuid AND m.tenant_id = $2::uuid
	`, messageID, tenantID)
	return scanMessage(row)
}

func (r *PgChatRepository) GetMessageByID(ctx context.Context, messageID string) (*chat.Message, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgChatRepository: nil pool")
	}
	row := r.pool.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM chat.message m
		WHERE m.id = $1::uuid
	`, messageID)
	return scanMessage(row)
}

func (r *PgChatRepository) MarkMessageRead(ctx context.Context, messageID, tenantID string, readAt time.Time) (*chat.Message, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgChatRepository: nil pool")
	}
	row := r.pool.QueryRow(ctx, `
		UPDATE chat.message m
		SET is_read = true, read_at = $3
		WHERE m.id = $1::uuid AND m.tenant_id = $2::uuid
		RETURNING `+messageColumns+`
	`, messageID, tenantID, readAt)
	return scanMessage(row)
}

func (r *PgChatRepository) SetMessageDeliveryStatus(ctx context.Context, messageID string, status chat.DeliveryStatus) error {
	if r == nil || r.pool == nil {
		return errors.New("PgChatRepository: nil pool")
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE chat.message SET delivery_status = $2 WHERE id = $1::uuid
	`, messageID, status)
	return err
}

func (r *PgChatRepository) GetUserDisplay(ctx context.Context, userID string) (*chat.UserDisplay, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgChatRepository: nil pool")
	}
	var d chat.UserDisplay
	var avatar *string
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, trim(first_name || ' ' || last_name), profile_picture
		FROM users
		WHERE id = $1::uuid
	`, userID).Scan(&d.ID, &d.Name, &avatar)
	if err != nil {
		return nil, err
	}
	if avatar != nil {
		d.Avatar = *avatar
	}
	return &d, nil
}

func (r *PgChatRepository) EnqueueDelivery(ctx context.Context, messageID, recipientID string) (string, error) {
	if r == nil || r.pool == nil {
		return "", errors.New("PgChatRepository: nil pool")
	}
	var id string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO chat.delivery_queue (message_id, recipient_id, status, attempts)
		VALUES ($1::uuid, $2::uuid, 'pending', 0)
		RETURNING id::text
	`, messageID, recipientID).Scan(&id)
	return id, err
}

func (r *PgChatRepository) PendingDeliveries(ctx context.Context, limit, maxAttempts int) ([]chat.PendingDelivery, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgChatRepository: nil pool")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT q.id::text, q.message_id::text, q.recipient_id::text,
		       q.status, q.attempts, q.last_attempt,
		       `+messageColumns+`
		FROM chat.delivery_queue q
		JOIN chat.message m ON m.id = q.message_id
		WHERE q.status = 'pending' AND q.attempts < $2
		ORDER BY q.last_attempt NULLS FIRST
		LIMIT $1
	`, limit, maxAttempts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []chat.PendingDelivery
	for rows.Next() {
		var d chat.PendingDelivery
		if err := rows.Scan(
			&d.Entry.ID, &d.Entry.MessageID, &d.Entry.RecipientID,
			&d.Entry.Status, &d.Entry.Attempts, &d.Entry.LastAttempt,
			&d.Message.ID, &d.Message.ConversationID, &d.Message.SenderID, &d.Message.TenantID,
			&d.Message.Content, &d.Message.Attachments, &d.Message.CreatedAt, &d.Message.DeliveryStatus,
			&d.Message.ScheduledDelivery, &d.Message.IsRead, &d.Message.ReadAt,
		); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *PgChatRepository) MarkDeliveryProcessing(ctx context.Context, entryID string, at time.Time) (int, error) {
	if r == nil || r.pool == nil {
		return 0, errors.New("PgChatRepository: nil pool")
	}
	var attempts int
	err := r.pool.QueryRow(ctx, `
		UPDATE chat.delivery_queue
		SET status = 'processing', attempts = attempts + 1, last_attempt = $2
		WHERE id = $1::uuid
		RETURNING attempts
	`, entryID, at).Scan(&attempts)
	return attempts, err
}

func (r *PgChatRepository) MarkDeliveryDelivered(ctx context.Context, entryID, messageID string) error {
	if r == nil || r.pool == nil {
		return errors.New("PgChatRepository: nil pool")
	}
	if _, err := r.pool.Exec(ctx, `
		UPDATE chat.delivery_queue SET status = 'delivered' WHERE id = $1::uuid
	`, entryID); err != nil {
		return err
	}
	return r.SetMessageDeliveryStatus(ctx, messageID, chat.DeliveryStatusDelivered)
}

func (r *PgChatRepository) MarkDeliveryFailed(ctx context.Context, entryID, messageID string) error {
	if r == nil || r.pool == nil {
		return errors.New("PgChatRepository: nil pool")
	}
	if _, err := r.pool.Exec(ctx, `
		UPDATE chat.delivery_queue SET status = 'failed' WHERE id = $1::uuid
	`, entryID); err != nil {
		return err
	}
	return r.SetMessageDeliveryStatus(ctx, messageID, chat.DeliveryStatusFailed)
}

func (r *PgChatRepository) ResetDeliveryPending(ctx context.Context, entryID string) error {
	if r == nil || r.pool == nil {
		return errors.New("PgChatRepository: nil pool")
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE chat.delivery_queue SET status = 'pending' WHERE id = $1::uuid
	`, entryID)
	return err
}

func (r *PgChatRepository) GetDeliveryAttempts(ctx context.Context, entryID string) (int, error) {
	if r == nil || r.pool == nil {
		return 0, errors.New("PgChatRepository: nil pool")
	}
	var attempts int
	err := r.pool.QueryRow(ctx, `
		SELECT attempts FROM chat.delivery_queue WHERE id = $1::uuid
	`, entryID).Scan(&attempts)
	return attempts, err
}

func (r *PgChatRepository) DueScheduledMessages(ctx context.Context, now time.Time, limit int) ([]chat.Message, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgChatRepository: nil pool")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM chat.message m
		WHERE m.delivery_status = 'scheduled'
		  AND m.scheduled_delivery IS NOT NULL
		  AND m.scheduled_delivery <= $1
		ORDER BY m.scheduled_delivery
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []chat.Message
	for rows.Next() {
		m, err := scanMessageRow(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}

func (r *PgChatRepository) PromoteScheduledMessage(ctx context.Context, messageID string) (bool, error) {
	if r == nil || r.pool == nil {
		return false, errors.New("PgChatRepository: nil pool")
	}
	ct, err := r.pool.Exec(ctx, `
		UPDATE chat.message
		SET delivery_status = 'delivered', scheduled_delivery = NULL
		WHERE id = $1::uuid AND delivery_status = 'scheduled'
	`, messageID)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func scanIDs(rows pgx.Rows) ([]string, error) {
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanMessage(row pgx.Row) (*chat.Message, error) {
	m, err := scanMessageRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, chat.ErrMessageNotFound
	}
	return m, err
}

func scanMessageRow(row pgx.Row) (*chat.Message, error) {
	var m chat.Message
	err := row.Scan(
		&m.ID, &m.ConversationID, &m.SenderID, &m.TenantID,
		&m.Content, &m.Attachments, &m.CreatedAt, &m.DeliveryStatus,
		&m.ScheduledDelivery, &m.IsRead, &m.ReadAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
