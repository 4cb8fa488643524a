package domain

import "testing"

func TestParseTemplateName(t *testing.T) {
	tests := []struct {
		in   string
		want TemplateName
		ok   bool
	}{
		{"welcome", TemplateWelcome, true},
		{"progress_update", TemplateProgressUpdate, true},
		{"update", TemplateProgressUpdate, true},
		{"early_access", TemplateEarlyAccess, true},
		{"WELCOME", "", false},
		{"", "", false},
		{"promo", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseTemplateName(tt.in)
			if ok != tt.ok || got != tt.want {
				t.Errorf("ParseTemplateName(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestSignupStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to SignupStatus
		want     bool
	}{
		{StatusActive, StatusInvited, true},
		{StatusActive, StatusConverted, true},
		{StatusInvited, StatusConverted, true},
		{StatusInvited, StatusActive, false},
		{StatusConverted, StatusInvited, false},
		{StatusUnsubscribed, StatusActive, false},
		{StatusConverted, StatusUnsubscribed, true},
		{StatusUnsubscribed, StatusUnsubscribed, true},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestSubscriberRange_Valid(t *testing.T) {
	for _, r := range []SubscriberRange{Range0To1K, Range1KTo10K, Range10KTo100K, Range100KTo1M, Range1MPlus, RangePreferNotToSay} {
		if !r.Valid() {
			t.Errorf("expected %q to be valid", r)
		}
	}
	if SubscriberRange("1k-5k").Valid() {
		t.Error("expected 1k-5k to be invalid")
	}
}
