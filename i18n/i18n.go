// Package i18n renders user-facing notification text from embedded locale
// files (locales/<lang>.json).
package i18n

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

// DefaultLocale is used when neither the context nor the translator names one.
const DefaultLocale = "es"

type ctxKey struct{}

// Translator owns one message bundle. Safe for concurrent use.
type Translator struct {
	bundle        *i18n.Bundle
	defaultLocale string
}

// New loads every embedded locale file.
func New(defaultLocale string) (*Translator, error) {
	if defaultLocale == "" {
		defaultLocale = DefaultLocale
	}
	if _, err := language.Parse(defaultLocale); err != nil {
		return nil, fmt.Errorf("i18n: invalid locale %q: %w", defaultLocale, err)
	}

	bundle := i18n.NewBundle(language.Spanish)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("i18n: read locales dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := localeFS.ReadFile("locales/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("i18n: read %s: %w", e.Name(), err)
		}
		if _, err := bundle.ParseMessageFileBytes(data, e.Name()); err != nil {
			return nil, fmt.Errorf("i18n: parse %s: %w", e.Name(), err)
		}
	}
	return &Translator{bundle: bundle, defaultLocale: defaultLocale}, nil
}

// Locales lists the loaded languages.
func (t *Translator) Locales() []string {
	var out []string
	for _, tag := range t.bundle.LanguageTags() {
		out = append(out, tag.String())
	}
	return out
}

// WithLocale returns a new context carrying the given locale (e.g. "es", "en").
func WithLocale(ctx context.Context, locale string) context.Context {
	return context.WithValue(ctx, ctxKey{}, locale)
}

// T translates a message ID using the context's locale, falling back to the
// translator's default. Unknown IDs come back unchanged.
func (t *Translator) T(ctx context.Context, messageID string, templateData ...map[string]any) string {
	lang := t.defaultLocale
	if v, ok := ctx.Value(ctxKey{}).(string); ok && v != "" {
		lang = v
	}
	l := i18n.NewLocalizer(t.bundle, lang, t.defaultLocale)

	cfg := &i18n.LocalizeConfig{MessageID: messageID}
	if len(templateData) > 0 && templateData[0] != nil {
		cfg.TemplateData = templateData[0]
	}

	msg, err := l.Localize(cfg)
	if err != nil {
		return messageID
	}
	return msg
}
