package aigen

import (
	"log"

	"github.com/osteele/liquid"
)

// SignatureRenderer renders the configured Liquid signature template
// with the sender's identity. With no template configured, Render
// returns the fallback untouched, so callers keep the display-name /
// per-language default behavior.
type SignatureRenderer struct {
	template *liquid.Template
	raw      string
}

// NewSignatureRenderer parses the template once. A broken template is
// rejected at startup rather than at send time.
func NewSignatureRenderer(template string) (*SignatureRenderer, error) {
	r := &SignatureRenderer{raw: template}
	if template == "" {
		return r, nil
	}
	tpl, err := liquid.NewEngine().ParseString(template)
	if err != nil {
		return nil, err
	}
	r.template = tpl
	return r, nil
}

// Render produces the signature for one sender. Bindings are
// first_name, last_name, and email.
func (r *SignatureRenderer) Render(firstName, lastName, email, fallback string) string {
	if r.template == nil {
		return fallback
	}
	out, err := r.template.RenderString(map[string]interface{}{
		"first_name": firstName,
		"last_name":  lastName,
		"email":      email,
	})
	if err != nil {
		log.Printf("[AIGen] signature render failed: %v", err)
		return fallback
	}
	return out
}
