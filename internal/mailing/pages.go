package mailing

import (
	"embed"
	"fmt"

	"github.com/osteele/liquid"
)

//go:embed pages/*.liquid
var pageFS embed.FS

// Pages renders the small HTML pages served to recipients who follow a
// link from an email.
type Pages struct {
	unsubscribe *liquid.Template
}

// NewPages compiles the embedded page templates.
func NewPages() (*Pages, error) {
	src, err := pageFS.ReadFile("pages/unsubscribe.html.liquid")
	if err != nil {
		return nil, fmt.Errorf("read unsubscribe page: %w", err)
	}
	tpl, err := NewTemplateEngine().Compile("pages/unsubscribe", string(src))
	if err != nil {
		return nil, err
	}
	return &Pages{unsubscribe: tpl}, nil
}

// Unsubscribe renders the unsubscribe confirmation page.
func (p *Pages) Unsubscribe(title, message string) (string, error) {
	return p.unsubscribe.RenderString(map[string]interface{}{
		"title":   title,
		"message": message,
	})
}
