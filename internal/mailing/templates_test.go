package mailing

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/creator-waitlist/internal/domain"
)

func newTestRenderer(t *testing.T, signingKey string) *Renderer {
	t.Helper()
	r, err := NewRenderer(NewUnsubscribeLinks("https://waitlist.example.com/", signingKey), "https://waitlist.example.com")
	require.NoError(t, err)
	return r
}

func TestRenderer_AllTemplatesRenderWithUnsubscribeLink(t *testing.T) {
	r := newTestRenderer(t, "")

	for _, name := range r.Templates() {
		t.Run(string(name), func(t *testing.T) {
			out, err := r.Render(name, domain.TemplateData{WaitlistID: "rec-42", Name: "Grace Hopper"})
			require.NoError(t, err)

			assert.NotEmpty(t, strings.TrimSpace(out.Subject))
			assert.NotEmpty(t, strings.TrimSpace(out.HTML))
			assert.NotEmpty(t, strings.TrimSpace(out.Text))
			assert.Contains(t, out.UnsubscribeURL, "rec-42")
			assert.Contains(t, out.HTML, out.UnsubscribeURL)
			assert.Contains(t, out.Text, out.UnsubscribeURL)
		})
	}
}

func TestRenderer_WelcomeInterpolatesName(t *testing.T) {
	r := newTestRenderer(t, "")

	out, err := r.Render(domain.TemplateWelcome, domain.TemplateData{WaitlistID: "x1", Name: "Ada"})
	require.NoError(t, err)

	assert.Contains(t, out.HTML, "Ada")
	assert.Contains(t, out.Text, "Ada")
	assert.Equal(t, "https://waitlist.example.com/api/waitlist/unsubscribe?id=x1", out.UnsubscribeURL)
	assert.Contains(t, out.HTML, "x1")
}

func TestRenderer_MissingNameFallsBack(t *testing.T) {
	r := newTestRenderer(t, "")

	out, err := r.Render(domain.TemplateWelcome, domain.TemplateData{WaitlistID: "x2"})
	require.NoError(t, err)
	assert.Contains(t, out.Text, "You're on the list, there!")
}

func TestRenderer_EscapesNameInHTML(t *testing.T) {
	r := newTestRenderer(t, "")

	out, err := r.Render(domain.TemplateWelcome, domain.TemplateData{WaitlistID: "x3", Name: "<script>alert(1)</script>"})
	require.NoError(t, err)
	assert.NotContains(t, out.HTML, "<script>")
	assert.Contains(t, out.HTML, "&lt;script&gt;")
}

func TestRenderer_UnknownTemplate(t *testing.T) {
	r := newTestRenderer(t, "")

	_, err := r.Render(domain.TemplateName("promo"), domain.TemplateData{WaitlistID: "x1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownTemplate))
	assert.False(t, r.Has("promo"))
	assert.True(t, r.Has(domain.TemplateEarlyAccess))
}

func TestRenderer_Deterministic(t *testing.T) {
	r := newTestRenderer(t, "key")
	data := domain.TemplateData{WaitlistID: "same-id", Name: "Ada"}

	a, err := r.Render(domain.TemplateProgressUpdate, data)
	require.NoError(t, err)
	b, err := r.Render(domain.TemplateProgressUpdate, data)
	require.NoError(t, err)

	assert.Equal(t, a.HTML, b.HTML)
	assert.Equal(t, a.Text, b.Text)
	assert.Equal(t, "Ada, a quick update on Creator Assistant", a.Subject)
}

func TestGreetingName(t *testing.T) {
	tests := []struct {
		in   interface{}
		want string
	}{
		{nil, "there"},
		{"", "there"},
		{"   ", "there"},
		{"Ada", "Ada"},
		{"Ada Lovelace", "Ada"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, greetingName(tt.in))
	}
}

func TestPages_UnsubscribeEscapes(t *testing.T) {
	p, err := NewPages()
	require.NoError(t, err)

	html, err := p.Unsubscribe("Unsubscribed", `<script>alert(1)</script>`)
	require.NoError(t, err)
	assert.Contains(t, html, "<title>Unsubscribed</title>")
	assert.NotContains(t, html, "<script>")
	assert.True(t, strings.Contains(html, "&lt;script&gt;"))
}
