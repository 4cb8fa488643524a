// Package sqlite implements the signup repository on an embedded SQLite
// database. It is the default store for local development and single-node
// deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/ignite/creator-waitlist/internal/domain"
	"github.com/ignite/creator-waitlist/internal/migrations"
	"github.com/ignite/creator-waitlist/internal/service/signup"
)

// Store persists waitlist signups in SQLite. Timestamps are stored as UTC
// unix milliseconds.
type Store struct {
	db *sql.DB
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

// DSN returns the modernc.org/sqlite connection string for path. The driver
// only honors pragmas passed as _pragma=name(value).
func DSN(path string) string {
	return filepath.Clean(path) + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
}

// Open opens (creating if needed) the database at path and applies the
// embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	db, err := sql.Open("sqlite", DSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := migrations.Up(ctx, db, migrations.SQLite); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping verifies connectivity for health checks.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

const signupColumns = `id, email, name, youtube_channel_name, youtube_channel_url,
	subscriber_count, subscriber_range, content_niche, signup_source,
	utm_source, utm_medium, utm_campaign, referral_code, ip_address, user_agent,
	status, welcome_email_sent, welcome_email_sent_at,
	emails_sent, emails_opened, emails_clicked, last_engaged_at,
	unsubscribed_at, created_at, updated_at`

func (s *Store) Create(ctx context.Context, rec *domain.SignupRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO waitlist_signups (
			id, email, name, youtube_channel_name, youtube_channel_url,
			subscriber_count, subscriber_range, content_niche, signup_source,
			utm_source, utm_medium, utm_campaign, referral_code, ip_address, user_agent,
			status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Email, nullString(rec.Name), nullString(rec.ChannelName), nullString(rec.ChannelURL),
		nullInt(rec.SubscriberCount), nullString(string(rec.SubscriberRange)), nullString(rec.ContentNiche), rec.SignupSource,
		nullString(rec.UTMSource), nullString(rec.UTMMedium), nullString(rec.UTMCampaign),
		nullString(rec.ReferralCode), nullString(rec.IPAddress), nullString(rec.UserAgent),
		string(rec.Status), toMillis(rec.CreatedAt), toMillis(rec.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return signup.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert signup: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*domain.SignupRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+signupColumns+` FROM waitlist_signups WHERE id = ?`, id)
	rec, err := scanSignup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, signup.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get signup: %w", err)
	}
	return rec, nil
}

func (s *Store) MarkWelcomeSent(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE waitlist_signups
		SET welcome_email_sent = 1, welcome_email_sent_at = ?,
		    emails_sent = emails_sent + 1, updated_at = ?
		WHERE id = ?`,
		toMillis(at), toMillis(at), id,
	)
	if err != nil {
		return fmt.Errorf("mark welcome sent: %w", err)
	}
	return requireAffected(res)
}

func (s *Store) MarkUnsubscribed(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE waitlist_signups
		SET status = 'unsubscribed', unsubscribed_at = ?, updated_at = ?
		WHERE id = ? AND status <> 'unsubscribed'`,
		toMillis(at), toMillis(at), id,
	)
	if err != nil {
		return false, fmt.Errorf("unsubscribe: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return true, nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM waitlist_signups WHERE id = ?)`, id,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("unsubscribe lookup: %w", err)
	}
	if !exists {
		return false, signup.ErrNotFound
	}
	return false, nil
}

func (s *Store) UpdateStatus(ctx context.Context, id string, status domain.SignupStatus, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE waitlist_signups SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), toMillis(at), id,
	)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return requireAffected(res)
}

func (s *Store) RecordEngagement(ctx context.Context, id string, kind domain.EventKind, at time.Time) error {
	var opened, clicked int
	switch kind {
	case domain.EventOpened:
		opened = 1
	case domain.EventClicked:
		clicked = 1
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE waitlist_signups
		SET emails_opened = emails_opened + ?, emails_clicked = emails_clicked + ?,
		    last_engaged_at = ?, updated_at = ?
		WHERE id = ?`,
		opened, clicked, toMillis(at), toMillis(at), id,
	)
	if err != nil {
		return fmt.Errorf("record engagement: %w", err)
	}
	return requireAffected(res)
}

func (s *Store) AppendEvent(ctx context.Context, evt *domain.NotificationEvent) error {
	data := evt.Data
	if data == nil {
		data = map[string]any{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO waitlist_notification_events (id, waitlist_id, event_type, template, event_data, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		evt.ID, evt.WaitlistID, string(evt.Kind), nullString(string(evt.Template)), string(raw), toMillis(evt.CreatedAt),
	)
	if isConstraint(err, sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY) {
		return signup.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (s *Store) ListPendingWelcome(ctx context.Context, createdBefore time.Time, limit int) ([]domain.SignupRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+signupColumns+`
		FROM waitlist_signups
		WHERE status = 'active' AND welcome_email_sent = 0 AND created_at < ?
		ORDER BY created_at
		LIMIT ?`,
		toMillis(createdBefore), limit,
	)
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

func (s *Store) Stats(ctx context.Context) (*domain.SignupStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, welcome_email_sent, COUNT(*)
		FROM waitlist_signups
		GROUP BY status, welcome_email_sent`)
	if err != nil {
		return nil, fmt.Errorf("signup stats: %w", err)
	}
	defer rows.Close()

	st := &domain.SignupStats{ByStatus: make(map[domain.SignupStatus]int)}
	for rows.Next() {
		var (
			status  string
			welcome bool
			n       int
		)
		if err := rows.Scan(&status, &welcome, &n); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		st.Total += n
		st.ByStatus[domain.SignupStatus(status)] += n
		if welcome {
			st.WelcomeSent += n
		} else {
			st.WelcomePending += n
		}
	}
	return st, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSignup(row rowScanner) (*domain.SignupRecord, error) {
	var (
		rec                                         domain.SignupRecord
		status                                      string
		name, channelName, channelURL, niche        sql.NullString
		subRange, utmSource, utmMedium, utmCampaign sql.NullString
		referral, ip, ua                            sql.NullString
		subCount, welcomeAt, engagedAt, unsubAt     sql.NullInt64
		createdAt, updatedAt                        int64
	)
	err := row.Scan(
		&rec.ID, &rec.Email, &name, &channelName, &channelURL,
		&subCount, &subRange, &niche, &rec.SignupSource,
		&utmSource, &utmMedium, &utmCampaign, &referral, &ip, &ua,
		&status, &rec.WelcomeEmailSent, &welcomeAt,
		&rec.EmailsSent, &rec.EmailsOpened, &rec.EmailsClicked, &engagedAt,
		&unsubAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Status = domain.SignupStatus(status)
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
	rec.WelcomeEmailSentAt = millisPtr(welcomeAt)
	rec.LastEngagedAt = millisPtr(engagedAt)
	rec.UnsubscribedAt = millisPtr(unsubAt)
	rec.CreatedAt = fromMillis(createdAt)
	rec.UpdatedAt = fromMillis(updatedAt)
	return &rec, nil
}

func isUniqueViolation(err error) bool {
	return isConstraint(err, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY)
}

func isConstraint(err error, codes ...int) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	for _, code := range codes {
		if sqliteErr.Code() == code {
			return true
		}
	}
	return false
}

func requireAffected(res sql.Result) error {
	n, _ := res.RowsAffected()
	if n == 0 {
		return signup.ErrNotFound
	}
	return nil
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

func millisPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

var _ signup.Repository = (*Store)(nil)
