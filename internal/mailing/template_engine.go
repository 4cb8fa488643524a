// Package mailing renders the waitlist's outbound emails.
//
// Templates are Liquid documents embedded in the binary; each named
// template has an HTML body, a plain-text body and a subject line. Every
// rendered message carries a deterministic unsubscribe link for the
// recipient's waitlist record.
package mailing

import (
	"fmt"
	"html"
	"strings"

	"github.com/osteele/liquid"
)

// TemplateEngine wraps a Liquid engine with the filters our templates use.
type TemplateEngine struct {
	engine *liquid.Engine
}

// NewTemplateEngine creates an engine with the custom filters registered.
func NewTemplateEngine() *TemplateEngine {
	te := &TemplateEngine{engine: liquid.NewEngine()}
	te.registerFilters()
	return te
}

func (te *TemplateEngine) registerFilters() {
	// Friendly salutation: {{ name | greeting_name }} → "Ada" or "there"
	te.engine.RegisterFilter("greeting_name", func(value interface{}) string {
		return greetingName(value)
	})

	// Default value filter: {{ name | default: "creator" }}
	te.engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		if s := fmt.Sprintf("%v", value); s == "" || s == "<nil>" {
			return defaultVal
		}
		return value
	})

	// HTML escape for user-supplied values: {{ name | escape }}
	te.engine.RegisterFilter("escape", func(s string) string {
		return html.EscapeString(s)
	})
}

// greetingName picks the first word of a display name, or "there".
func greetingName(value interface{}) string {
	if value == nil {
		return "there"
	}
	s := strings.TrimSpace(fmt.Sprintf("%v", value))
	if s == "" || s == "<nil>" {
		return "there"
	}
	if fields := strings.Fields(s); len(fields) > 0 {
		return fields[0]
	}
	return s
}

// Compile parses a template string, returning any syntax error.
func (te *TemplateEngine) Compile(name, src string) (*liquid.Template, error) {
	tpl, err := te.engine.ParseString(src)
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}
	return tpl, nil
}
