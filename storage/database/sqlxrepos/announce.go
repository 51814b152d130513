package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/akela-hq/akela/core"
	"github.com/akela-hq/akela/core/announce"
	"github.com/akela-hq/akela/core/unit"
)

const announcementColumns = `id, unit_id, author_id, subject, body, audience, member_ids, channels,
scheduled_at, status, sent_count, failed_count, skip_count, sent_at, created_at, updated_at`

type announcementRow struct {
	ID          string         `db:"id"`
	UnitID      string         `db:"unit_id"`
	AuthorID    null.String    `db:"author_id"`
	Subject     string         `db:"subject"`
	Body        string         `db:"body"`
	Audience    string         `db:"audience"`
	MemberIDs   pq.StringArray `db:"member_ids"`
	Channels    pq.StringArray `db:"channels"`
	ScheduledAt null.Time      `db:"scheduled_at"`
	Status      string         `db:"status"`
	SentCount   int            `db:"sent_count"`
	FailedCount int            `db:"failed_count"`
	SkipCount   int            `db:"skip_count"`
	SentAt      null.Time      `db:"sent_at"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func (r announcementRow) toAnnouncement() announce.Announcement {
	return announce.Announcement{
		ID:          r.ID,
		UnitID:      r.UnitID,
		AuthorID:    r.AuthorID.String,
		Subject:     r.Subject,
		Body:        r.Body,
		Audience:    r.Audience,
		MemberIDs:   r.MemberIDs,
		Channels:    r.Channels,
		ScheduledAt: r.ScheduledAt.Ptr(),
		Status:      r.Status,
		SentCount:   r.SentCount,
		FailedCount: r.FailedCount,
		SkipCount:   r.SkipCount,
		SentAt:      r.SentAt.Time,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

type announceRepository struct {
	repoBase
}

var (
	_ announce.Repository      = (*announceRepository)(nil) // interface compliance check
	_ announce.RecipientSource = (*announceRepository)(nil)
)

func NewAnnounceRepository(db *sqlx.DB) *announceRepository {
	return &announceRepository{repoBase{db: db}}
}

func (repo announceRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return announce.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo announceRepository) CreateAnnouncement(ctx context.Context, ann announce.Announcement, exec ...core.DBExecutor) (announce.Announcement, error) {
	ann.ID = uuid.NewString()
	query := rebind(`INSERT INTO announcement
(id, unit_id, author_id, subject, body, audience, member_ids, channels, scheduled_at, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + announcementColumns)

	var row announcementRow
	err := repo.getExec(exec).GetContext(ctx, &row, query,
		ann.ID, ann.UnitID, null.NewString(ann.AuthorID, ann.AuthorID != ""),
		ann.Subject, ann.Body, ann.Audience,
		pq.Array(ann.MemberIDs), pq.Array(ann.Channels),
		null.TimeFromPtr(ann.ScheduledAt), ann.Status,
		ann.CreatedAt.UTC(), ann.UpdatedAt.UTC(),
	)
	if err != nil {
		return announce.Announcement{}, errors.Wrap(err, "inserting announcement")
	}
	return row.toAnnouncement(), nil
}

func (repo announceRepository) GetAnnouncement(ctx context.Context, unitID, id string, exec ...core.DBExecutor) (announce.Announcement, error) {
	query := rebind(`SELECT ` + announcementColumns + ` FROM announcement WHERE id = ? AND unit_id = ?`)

	var row announcementRow
	if err := repo.getExec(exec).GetContext(ctx, &row, query, id, unitID); err != nil {
		return announce.Announcement{}, repo.trapNoRowsErr(err, "getting announcement")
	}
	return row.toAnnouncement(), nil
}

func (repo announceRepository) QueryAnnouncements(ctx context.Context, unitID string, filter *announce.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]announce.Announcement, error) {
	query := `SELECT ` + announcementColumns + ` FROM announcement`
	where := []string{"unit_id = ?"}
	args := []interface{}{unitID}
	if filter != nil && filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	query += " WHERE " + strings.Join(where, " AND ")
	query += orderBy(ordering, "created_at DESC")

	var rows []announcementRow
	if err := repo.getExec(exec).SelectContext(ctx, &rows, rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying announcements")
	}
	anns := make([]announce.Announcement, 0, len(rows))
	for _, row := range rows {
		anns = append(anns, row.toAnnouncement())
	}
	return anns, nil
}

func (repo announceRepository) UpdateAnnouncement(ctx context.Context, ann announce.Announcement, exec ...core.DBExecutor) (announce.Announcement, error) {
	query := rebind(`UPDATE announcement
SET subject = ?, body = ?, audience = ?, member_ids = ?, channels = ?, scheduled_at = ?, status = ?, updated_at = ?
WHERE id = ? AND unit_id = ?
RETURNING ` + announcementColumns)

	var row announcementRow
	err := repo.getExec(exec).GetContext(ctx, &row, query,
		ann.Subject, ann.Body, ann.Audience,
		pq.Array(ann.MemberIDs), pq.Array(ann.Channels),
		null.TimeFromPtr(ann.ScheduledAt), ann.Status,
		time.Now().UTC(), ann.ID, ann.UnitID,
	)
	if err != nil {
		return announce.Announcement{}, repo.trapNoRowsErr(err, "updating announcement")
	}
	return row.toAnnouncement(), nil
}

// ClaimDue flips due scheduled announcements to "sending" under row locks so
// concurrent dispatchers never pick up the same row.
func (repo announceRepository) ClaimDue(ctx context.Context, now time.Time, limit int, exec ...core.DBExecutor) ([]announce.Announcement, error) {
	query := rebind(`UPDATE announcement
SET status = 'sending', updated_at = ?
WHERE id IN (
    SELECT id FROM announcement
    WHERE status = 'scheduled' AND (scheduled_at IS NULL OR scheduled_at <= ?)
    ORDER BY scheduled_at ASC NULLS FIRST
    LIMIT ?
    FOR UPDATE SKIP LOCKED
)
RETURNING ` + announcementColumns)

	var rows []announcementRow
	if err := repo.getExec(exec).SelectContext(ctx, &rows, query, now.UTC(), now.UTC(), limit); err != nil {
		return nil, errors.Wrap(err, "claiming announcements")
	}
	anns := make([]announce.Announcement, 0, len(rows))
	for _, row := range rows {
		anns = append(anns, row.toAnnouncement())
	}
	return anns, nil
}

func (repo announceRepository) MarkDispatched(ctx context.Context, ann announce.Announcement, deliveries []announce.Delivery, exec ...core.DBExecutor) error {
	updateAnn := rebind(`UPDATE announcement
SET status = ?, sent_count = ?, failed_count = ?, skip_count = ?, sent_at = ?, updated_at = ?
WHERE id = ?`)
	insertDelivery := rebind(`INSERT INTO announcement_delivery
(id, announcement_id, recipient_type, recipient_id, recipient_name, channel, status, detail, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	run := func(e core.DBExecutor) error {
		_, err := e.ExecContext(ctx, updateAnn,
			ann.Status, ann.SentCount, ann.FailedCount, ann.SkipCount,
			null.NewTime(ann.SentAt.UTC(), !ann.SentAt.IsZero()),
			ann.UpdatedAt.UTC(), ann.ID,
		)
		if err != nil {
			return errors.Wrap(err, "updating announcement")
		}
		for _, dlv := range deliveries {
			if _, err = e.ExecContext(ctx, insertDelivery,
				uuid.NewString(), dlv.AnnouncementID, dlv.RecipientType, dlv.RecipientID, dlv.RecipientName,
				dlv.Channel, dlv.Status, dlv.Detail, dlv.CreatedAt.UTC(),
			); err != nil {
				return errors.Wrap(err, "inserting delivery")
			}
		}
		return nil
	}

	if len(exec) > 0 {
		return run(exec[0])
	}

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = run(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

func (repo announceRepository) QueryDeliveries(ctx context.Context, announcementID string, exec ...core.DBExecutor) ([]announce.Delivery, error) {
	query := rebind(`SELECT id, announcement_id, recipient_type, recipient_id, recipient_name, channel, status, detail, created_at
FROM announcement_delivery
WHERE announcement_id = ?
ORDER BY recipient_name ASC, channel ASC`)

	var rows []struct {
		ID             string    `db:"id"`
		AnnouncementID string    `db:"announcement_id"`
		RecipientType  string    `db:"recipient_type"`
		RecipientID    string    `db:"recipient_id"`
		RecipientName  string    `db:"recipient_name"`
		Channel        string    `db:"channel"`
		Status         string    `db:"status"`
		Detail         string    `db:"detail"`
		CreatedAt      time.Time `db:"created_at"`
	}
	if err := repo.getExec(exec).SelectContext(ctx, &rows, query, announcementID); err != nil {
		return nil, errors.Wrap(err, "querying deliveries")
	}
	deliveries := make([]announce.Delivery, 0, len(rows))
	for _, row := range rows {
		deliveries = append(deliveries, announce.Delivery(row))
	}
	return deliveries, nil
}

type recipientRow struct {
	Type          string `db:"type"`
	ID            string `db:"id"`
	Name          string `db:"name"`
	Email         string `db:"email"`
	Phone         string `db:"phone"`
	WhatsAppOptIn bool   `db:"whatsapp_opt_in"`
	PushEndpoint  string `db:"push_endpoint"`
	PushP256dh    string `db:"push_p256dh"`
	PushAuth      string `db:"push_auth"`
}

func (r recipientRow) toRecipient() announce.Recipient {
	return announce.Recipient{
		Type:          r.Type,
		ID:            r.ID,
		Name:          r.Name,
		Email:         r.Email,
		Phone:         r.Phone,
		WhatsAppOptIn: r.WhatsAppOptIn,
		PushSub: core.PushSubscription{
			Endpoint: r.PushEndpoint,
			P256dh:   r.PushP256dh,
			Auth:     r.PushAuth,
		},
	}
}

const guardianRecipientColumns = `'guardian' AS type, g.id, g.name, g.email, g.phone, g.whatsapp_opt_in,
g.push_endpoint, g.push_p256dh, g.push_auth`

func (repo announceRepository) GuardiansForUnit(ctx context.Context, unitID string) ([]announce.Recipient, error) {
	query := rebind(`SELECT ` + guardianRecipientColumns + ` FROM guardian g
WHERE g.unit_id = ? AND g.deleted_at IS NULL
ORDER BY g.name ASC`)
	return repo.queryRecipients(ctx, query, unitID)
}

func (repo announceRepository) GuardiansForMembers(ctx context.Context, unitID string, memberIDs []string) ([]announce.Recipient, error) {
	if len(memberIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT DISTINCT `+guardianRecipientColumns+` FROM guardian g
JOIN member_guardian mg ON mg.guardian_id = g.id
WHERE g.unit_id = ? AND g.deleted_at IS NULL AND mg.member_id IN (?)`, unitID, memberIDs)
	if err != nil {
		return nil, errors.Wrap(err, "building recipients query")
	}
	return repo.queryRecipients(ctx, rebind(query), args...)
}

func (repo announceRepository) LeadersForUnit(ctx context.Context, unitID string) ([]announce.Recipient, error) {
	query := rebind(`SELECT 'user' AS type, u.id, u.name, u.email, u.phone, false AS whatsapp_opt_in,
u.push_endpoint, u.push_p256dh, u.push_auth
FROM "user" u
JOIN unit_membership m ON m.user_id = u.id
WHERE m.unit_id = ? AND m.role LIKE 'leader:%' AND u.is_active
ORDER BY u.name ASC`)
	return repo.queryRecipients(ctx, query, unitID)
}

func (repo announceRepository) queryRecipients(ctx context.Context, query string, args ...interface{}) ([]announce.Recipient, error) {
	var rows []recipientRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying recipients")
	}
	recipients := make([]announce.Recipient, 0, len(rows))
	for _, row := range rows {
		recipients = append(recipients, row.toRecipient())
	}
	return recipients, nil
}

func (repo announceRepository) EnabledChannels(ctx context.Context, unitID string) ([]string, error) {
	var row struct {
		EmailEnabled    bool `db:"email_enabled"`
		PushEnabled     bool `db:"push_enabled"`
		WhatsAppEnabled bool `db:"whatsapp_enabled"`
	}
	query := rebind("SELECT email_enabled, push_enabled, whatsapp_enabled FROM unit WHERE id = ?")
	if err := repo.db.GetContext(ctx, &row, query, unitID); err != nil {
		if err == sql.ErrNoRows {
			return nil, unit.ErrNotFound
		}
		return nil, errors.Wrap(err, "getting unit channels")
	}

	var channels []string
	if row.EmailEnabled {
		channels = append(channels, announce.ChannelEmail)
	}
	if row.PushEnabled {
		channels = append(channels, announce.ChannelPush)
	}
	if row.WhatsAppEnabled {
		channels = append(channels, announce.ChannelWhatsApp)
	}
	return channels, nil
}
