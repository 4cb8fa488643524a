// Package postgres implements the signup repository on PostgreSQL via lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"

	"github.com/ignite/creator-waitlist/internal/domain"
	"github.com/ignite/creator-waitlist/internal/service/signup"
)

// SignupRepo implements signup.Repository against PostgreSQL.
type SignupRepo struct{ db *sql.DB }

// NewSignupRepo creates a Postgres-backed signup repository.
func NewSignupRepo(db *sql.DB) *SignupRepo { return &SignupRepo{db: db} }

const signupColumns = `id, email, name, youtube_channel_name, youtube_channel_url,
	subscriber_count, subscriber_range, content_niche, signup_source,
	utm_source, utm_medium, utm_campaign, referral_code, ip_address, user_agent,
	status, welcome_email_sent, welcome_email_sent_at,
	emails_sent, emails_opened, emails_clicked, last_engaged_at,
	unsubscribed_at, created_at, updated_at`

func (r *SignupRepo) Create(ctx context.Context, rec *domain.SignupRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO waitlist_signups (
			id, email, name, youtube_channel_name, youtube_channel_url,
			subscriber_count, subscriber_range, content_niche, signup_source,
			utm_source, utm_medium, utm_campaign, referral_code, ip_address, user_agent,
			status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`,
		rec.ID, rec.Email, nullString(rec.Name), nullString(rec.ChannelName), nullString(rec.ChannelURL),
		nullInt(rec.SubscriberCount), nullString(string(rec.SubscriberRange)), nullString(rec.ContentNiche), rec.SignupSource,
		nullString(rec.UTMSource), nullString(rec.UTMMedium), nullString(rec.UTMCampaign),
		nullString(rec.ReferralCode), nullString(rec.IPAddress), nullString(rec.UserAgent),
		rec.Status, rec.CreatedAt, rec.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return signup.ErrDuplicate
	}
	if isTooLong(err) {
		return fmt.Errorf("%w: value too long", signup.ErrInvalidField)
	}
	if err != nil {
		return fmt.Errorf("insert signup: %w", err)
	}
	return nil
}

func (r *SignupRepo) Get(ctx context.Context, id string) (*domain.SignupRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+signupColumns+` FROM waitlist_signups WHERE id = $1`, id)
	rec, err := scanSignup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, signup.ErrNotFound
	}
	if err != nil {
		// Malformed UUIDs are simply unknown ids.
		if isInvalidText(err) {
			return nil, signup.ErrNotFound
		}
		return nil, fmt.Errorf("get signup: %w", err)
	}
	return rec, nil
}

func (r *SignupRepo) MarkWelcomeSent(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE waitlist_signups
		SET welcome_email_sent = TRUE, welcome_email_sent_at = $2,
		    emails_sent = emails_sent + 1, updated_at = $2
		WHERE id = $1
	`, id, at)
	if err != nil {
		if isInvalidText(err) {
			return signup.ErrNotFound
		}
		return fmt.Errorf("mark welcome sent: %w", err)
	}
	return requireAffected(res)
}

func (r *SignupRepo) MarkUnsubscribed(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE waitlist_signups
		SET status = 'unsubscribed', unsubscribed_at = $2, updated_at = $2
		WHERE id = $1 AND status <> 'unsubscribed'
	`, id, at)
	if err != nil {
		if isInvalidText(err) {
			return false, signup.ErrNotFound
		}
		return false, fmt.Errorf("unsubscribe: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return true, nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM waitlist_signups WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("unsubscribe lookup: %w", err)
	}
	if !exists {
		return false, signup.ErrNotFound
	}
	return false, nil
}

func (r *SignupRepo) UpdateStatus(ctx context.Context, id string, status domain.SignupStatus, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE waitlist_signups SET status = $2, updated_at = $3 WHERE id = $1`,
		id, status, at,
	)
	if err != nil {
		if isInvalidText(err) {
			return signup.ErrNotFound
		}
		return fmt.Errorf("update status: %w", err)
	}
	return requireAffected(res)
}

func (r *SignupRepo) RecordEngagement(ctx context.Context, id string, kind domain.EventKind, at time.Time) error {
	var opened, clicked int
	switch kind {
	case domain.EventOpened:
		opened = 1
	case domain.EventClicked:
		clicked = 1
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE waitlist_signups
		SET emails_opened = emails_opened + $2, emails_clicked = emails_clicked + $3,
		    last_engaged_at = $4, updated_at = $4
		WHERE id = $1
	`, id, opened, clicked, at)
	if err != nil {
		if isInvalidText(err) {
			return signup.ErrNotFound
		}
		return fmt.Errorf("record engagement: %w", err)
	}
	return requireAffected(res)
}

func (r *SignupRepo) AppendEvent(ctx context.Context, evt *domain.NotificationEvent) error {
	data, err := json.Marshal(eventData(evt.Data))
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO waitlist_notification_events (id, waitlist_id, event_type, template, event_data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, evt.ID, evt.WaitlistID, evt.Kind, nullString(string(evt.Template)), data, evt.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgerrcode.ForeignKeyViolation {
			return signup.ErrNotFound
		}
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (r *SignupRepo) ListPendingWelcome(ctx context.Context, createdBefore time.Time, limit int) ([]domain.SignupRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+signupColumns+`
		FROM waitlist_signups
		WHERE status = 'active' AND welcome_email_sent = FALSE AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`, createdBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending welcome: %w", err)
	}
	defer rows.Close()

	var out []domain.SignupRecord
	for rows.Next() {
		rec, err := scanSignup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan signup: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (r *SignupRepo) Stats(ctx context.Context) (*domain.SignupStats, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, welcome_email_sent, COUNT(*)
		FROM waitlist_signups
		GROUP BY status, welcome_email_sent
	`)
	if err != nil {
		return nil, fmt.Errorf("signup stats: %w", err)
	}
	defer rows.Close()

	st := &domain.SignupStats{ByStatus: make(map[domain.SignupStatus]int)}
	for rows.Next() {
		var (
			status  domain.SignupStatus
			welcome bool
			n       int
		)
		if err := rows.Scan(&status, &welcome, &n); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		st.Total += n
		st.ByStatus[status] += n
		if welcome {
			st.WelcomeSent += n
		} else {
			st.WelcomePending += n
		}
	}
	return st, rows.Err()
}

// Ping verifies connectivity for health checks.
func (r *SignupRepo) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSignup(row rowScanner) (*domain.SignupRecord, error) {
	var (
		rec                                         domain.SignupRecord
		name, channelName, channelURL, niche        sql.NullString
		subRange, utmSource, utmMedium, utmCampaign sql.NullString
		referral, ip, ua                            sql.NullString
		subCount                                    sql.NullInt64
		welcomeAt, engagedAt, unsubAt               sql.NullTime
	)
	err := row.Scan(
		&rec.ID, &rec.Email, &name, &channelName, &channelURL,
		&subCount, &subRange, &niche, &rec.SignupSource,
		&utmSource, &utmMedium, &utmCampaign, &referral, &ip, &ua,
		&rec.Status, &rec.WelcomeEmailSent, &welcomeAt,
		&rec.EmailsSent, &rec.EmailsOpened, &rec.EmailsClicked, &engagedAt,
		&unsubAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Name = name.String
	rec.ChannelName = channelName.String
	rec.ChannelURL = channelURL.String
	rec.SubscriberRange = domain.SubscriberRange(subRange.String)
	rec.ContentNiche = niche.String
	rec.UTMSource = utmSource.String
	rec.UTMMedium = utmMedium.String
	rec.UTMCampaign = utmCampaign.String
	rec.ReferralCode = referral.String
	rec.IPAddress = ip.String
	rec.UserAgent = ua.String
	if subCount.Valid {
		n := int(subCount.Int64)
		rec.SubscriberCount = &n
	}
	rec.WelcomeEmailSentAt = timePtr(welcomeAt)
	rec.LastEngagedAt = timePtr(engagedAt)
	rec.UnsubscribedAt = timePtr(unsubAt)
	return &rec, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pgerrcode.UniqueViolation
}

func isInvalidText(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pgerrcode.InvalidTextRepresentation
}

func isTooLong(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pgerrcode.StringDataRightTruncationDataException
}

func requireAffected(res sql.Result) error {
	n, _ := res.RowsAffected()
	if n == 0 {
		return signup.ErrNotFound
	}
	return nil
}

func eventData(data map[string]any) map[string]any {
	if data == nil {
		return map[string]any{}
	}
	return data
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

var _ signup.Repository = (*SignupRepo)(nil)
