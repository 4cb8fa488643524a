package mailing

import (
	"embed"
	"errors"
	"fmt"

	"github.com/osteele/liquid"

	"github.com/ignite/creator-waitlist/internal/domain"
)

//go:embed templates/*.liquid
var templateFS embed.FS

// ErrUnknownTemplate is returned when a template name is not in the catalog.
var ErrUnknownTemplate = errors.New("invalid template")

// catalogEntry describes one fixed template.
type catalogEntry struct {
	Name    domain.TemplateName
	Subject string
}

var catalog = []catalogEntry{
	{Name: domain.TemplateWelcome, Subject: "Welcome to the Creator Assistant waitlist 🎬"},
	{Name: domain.TemplateProgressUpdate, Subject: "{{ name | greeting_name }}, a quick update on Creator Assistant"},
	{Name: domain.TemplateEarlyAccess, Subject: "Your Creator Assistant early access is ready"},
}

type compiledTemplate struct {
	subject *liquid.Template
	html    *liquid.Template
	text    *liquid.Template
}

// Rendered is the output of rendering one template for one recipient.
type Rendered struct {
	Template       domain.TemplateName
	Subject        string
	HTML           string
	Text           string
	UnsubscribeURL string
}

// Renderer renders the fixed template catalog. Safe for concurrent use
// once constructed.
type Renderer struct {
	templates map[domain.TemplateName]*compiledTemplate
	links     *UnsubscribeLinks
	baseURL   string
}

// NewRenderer compiles every catalog template up front so syntax errors
// surface at startup rather than on first send.
func NewRenderer(links *UnsubscribeLinks, baseURL string) (*Renderer, error) {
	engine := NewTemplateEngine()
	r := &Renderer{
		templates: make(map[domain.TemplateName]*compiledTemplate, len(catalog)),
		links:     links,
		baseURL:   baseURL,
	}
	for _, entry := range catalog {
		ct := &compiledTemplate{}
		var err error
		if ct.subject, err = engine.Compile(string(entry.Name)+".subject", entry.Subject); err != nil {
			return nil, err
		}
		if ct.html, err = compileFile(engine, entry.Name, "html"); err != nil {
			return nil, err
		}
		if ct.text, err = compileFile(engine, entry.Name, "txt"); err != nil {
			return nil, err
		}
		r.templates[entry.Name] = ct
	}
	return r, nil
}

func compileFile(engine *TemplateEngine, name domain.TemplateName, ext string) (*liquid.Template, error) {
	path := fmt.Sprintf("templates/%s.%s.liquid", name, ext)
	src, err := templateFS.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return engine.Compile(path, string(src))
}

// Templates lists the names the renderer knows.
func (r *Renderer) Templates() []domain.TemplateName {
	out := make([]domain.TemplateName, 0, len(catalog))
	for _, entry := range catalog {
		out = append(out, entry.Name)
	}
	return out
}

// Has reports whether name is in the catalog.
func (r *Renderer) Has(name domain.TemplateName) bool {
	_, ok := r.templates[name]
	return ok
}

// Render produces subject, HTML and text bodies for one recipient.
func (r *Renderer) Render(name domain.TemplateName, data domain.TemplateData) (*Rendered, error) {
	ct, ok := r.templates[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
	}

	unsubscribeURL := r.links.URL(data.WaitlistID)
	vars := map[string]interface{}{
		"name":            data.Name,
		"waitlist_id":     data.WaitlistID,
		"unsubscribe_url": unsubscribeURL,
		"access_url":      r.baseURL + "/early-access?ref=" + data.WaitlistID,
	}

	out := &Rendered{Template: name, UnsubscribeURL: unsubscribeURL}
	var err error
	if out.Subject, err = ct.subject.RenderString(vars); err != nil {
		return nil, fmt.Errorf("render %s subject: %w", name, err)
	}
	if out.HTML, err = ct.html.RenderString(vars); err != nil {
		return nil, fmt.Errorf("render %s html: %w", name, err)
	}
	if out.Text, err = ct.text.RenderString(vars); err != nil {
		return nil, fmt.Errorf("render %s text: %w", name, err)
	}
	return out, nil
}
