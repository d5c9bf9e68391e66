// Package minify wraps the external script/style minification collaborators.
package minify

import (
	"fmt"
	"regexp"

	tdminify "github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/js"
)

// Minifier shrinks script and style text. Failures are per-file diagnostics;
// the caller keeps the unminified content.
type Minifier interface {
	MinifyScript(text, filename string) (string, error)
	MinifyStyle(text, filename string) (string, error)
}

// TDMinifier implements Minifier on github.com/tdewolff/minify.
type TDMinifier struct {
	m *tdminify.M
}

// New constructs the production minifier.
func New() *TDMinifier {
	m := tdminify.New()
	m.AddFunc("text/css", css.Minify)
	m.AddFuncRegexp(regexp.MustCompile("^(application|text)/(x-)?(java|ecma)script$"), js.Minify)
	return &TDMinifier{m: m}
}

// MinifyScript implements Minifier.
func (t *TDMinifier) MinifyScript(text, filename string) (string, error) {
	out, err := t.m.String("application/javascript", text)
	if err != nil {
		return "", fmt.Errorf("minify script %s: %w", filename, err)
	}
	return out, nil
}

// MinifyStyle implements Minifier.
func (t *TDMinifier) MinifyStyle(text, filename string) (string, error) {
	out, err := t.m.String("text/css", text)
	if err != nil {
		return "", fmt.Errorf("minify style %s: %w", filename, err)
	}
	return out, nil
}
