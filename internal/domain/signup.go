package domain

import "time"

// SignupStatus enumerates the lifecycle states of a waitlist signup.
type SignupStatus string

const (
	StatusActive       SignupStatus = "active"
	StatusInvited      SignupStatus = "invited"
	StatusConverted    SignupStatus = "converted"
	StatusUnsubscribed SignupStatus = "unsubscribed"
)

// Valid reports whether s is a known status.
func (s SignupStatus) Valid() bool {
	switch s {
	case StatusActive, StatusInvited, StatusConverted, StatusUnsubscribed:
		return true
	}
	return false
}

// CanTransitionTo reports whether a record in status s may move to next.
// Unsubscribing is always allowed; otherwise records only move forward.
func (s SignupStatus) CanTransitionTo(next SignupStatus) bool {
	if next == StatusUnsubscribed {
		return true
	}
	switch s {
	case StatusActive:
		return next == StatusInvited || next == StatusConverted
	case StatusInvited:
		return next == StatusConverted
	}
	return false
}

// SubscriberRange buckets a channel's subscriber count.
type SubscriberRange string

const (
	Range0To1K          SubscriberRange = "0-1k"
	Range1KTo10K        SubscriberRange = "1k-10k"
	Range10KTo100K      SubscriberRange = "10k-100k"
	Range100KTo1M       SubscriberRange = "100k-1M"
	Range1MPlus         SubscriberRange = "1M+"
	RangePreferNotToSay SubscriberRange = "prefer_not_to_say"
)

// Valid reports whether r is one of the accepted buckets.
func (r SubscriberRange) Valid() bool {
	switch r {
	case Range0To1K, Range1KTo10K, Range10KTo100K, Range100KTo1M, Range1MPlus, RangePreferNotToSay:
		return true
	}
	return false
}

// DefaultSignupSource is recorded when the client does not send one.
const DefaultSignupSource = "website"

// SignupRecord is one waitlist participant, keyed by email.
type SignupRecord struct {
	ID    string `json:"id" db:"id"`
	Email string `json:"email" db:"email"`
	Name  string `json:"name,omitempty" db:"name"`

	ChannelName     string          `json:"youtube_channel_name,omitempty" db:"youtube_channel_name"`
	ChannelURL      string          `json:"youtube_channel_url,omitempty" db:"youtube_channel_url"`
	SubscriberCount *int            `json:"subscriber_count,omitempty" db:"subscriber_count"`
	SubscriberRange SubscriberRange `json:"subscriber_range,omitempty" db:"subscriber_range"`
	ContentNiche    string          `json:"content_niche,omitempty" db:"content_niche"`

	SignupSource string `json:"signup_source" db:"signup_source"`
	UTMSource    string `json:"utm_source,omitempty" db:"utm_source"`
	UTMMedium    string `json:"utm_medium,omitempty" db:"utm_medium"`
	UTMCampaign  string `json:"utm_campaign,omitempty" db:"utm_campaign"`
	ReferralCode string `json:"referral_code,omitempty" db:"referral_code"`

	IPAddress string `json:"-" db:"ip_address"`
	UserAgent string `json:"-" db:"user_agent"`

	Status             SignupStatus `json:"status" db:"status"`
	WelcomeEmailSent   bool         `json:"welcome_email_sent" db:"welcome_email_sent"`
	WelcomeEmailSentAt *time.Time   `json:"welcome_email_sent_at,omitempty" db:"welcome_email_sent_at"`

	EmailsSent    int        `json:"emails_sent" db:"emails_sent"`
	EmailsOpened  int        `json:"emails_opened" db:"emails_opened"`
	EmailsClicked int        `json:"emails_clicked" db:"emails_clicked"`
	LastEngagedAt *time.Time `json:"last_engaged_at,omitempty" db:"last_engaged_at"`

	UnsubscribedAt *time.Time `json:"unsubscribed_at,omitempty" db:"unsubscribed_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// SignupStats aggregates waitlist counts for the operator dashboard.
type SignupStats struct {
	Total          int                  `json:"total"`
	ByStatus       map[SignupStatus]int `json:"by_status"`
	WelcomeSent    int                  `json:"welcome_sent"`
	WelcomePending int                  `json:"welcome_pending"`
}
