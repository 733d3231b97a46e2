// Package i18n localizes API error messages and candidate notices.
package i18n

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

type ctxKey struct{}

var (
	mu       sync.RWMutex
	bundle   *i18n.Bundle
	fallback = "en"
	matcher  language.Matcher
)

// Init loads every embedded locale file. defaultLang answers requests whose
// Accept-Language matches nothing we ship.
func Init(defaultLang string) error {
	tag, err := language.Parse(defaultLang)
	if err != nil {
		return fmt.Errorf("parse language %q: %w", defaultLang, err)
	}

	b := i18n.NewBundle(tag)
	b.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return fmt.Errorf("read locales dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := localeFS.ReadFile("locales/" + e.Name())
		if err != nil {
			return fmt.Errorf("read locale file %s: %w", e.Name(), err)
		}
		if _, err := b.ParseMessageFileBytes(data, e.Name()); err != nil {
			return fmt.Errorf("parse locale file %s: %w", e.Name(), err)
		}
	}

	// The first tag is the matcher's fallback.
	tags := []language.Tag{tag}
	for _, t := range b.LanguageTags() {
		if t != tag {
			tags = append(tags, t)
		}
	}

	mu.Lock()
	bundle = b
	fallback = tag.String()
	matcher = language.NewMatcher(tags)
	mu.Unlock()
	return nil
}

func current() (*i18n.Bundle, string, language.Matcher) {
	mu.RLock()
	defer mu.RUnlock()
	return bundle, fallback, matcher
}

// Negotiate picks the best supported language for an Accept-Language header.
func Negotiate(acceptLanguage string) string {
	_, def, m := current()
	if m == nil {
		return def
	}
	tag, _ := language.MatchStrings(m, acceptLanguage)
	base, _ := tag.Base()
	return base.String()
}

// NewLocalizer creates a localizer preferring the given languages.
func NewLocalizer(langs ...string) *i18n.Localizer {
	b, def, _ := current()
	if b == nil {
		b = i18n.NewBundle(language.English)
	}
	return i18n.NewLocalizer(b, append(langs, def)...)
}

// WithLocalizer stores a localizer in the context.
func WithLocalizer(ctx context.Context, loc *i18n.Localizer) context.Context {
	return context.WithValue(ctx, ctxKey{}, loc)
}

func localizerFromCtx(ctx context.Context) *i18n.Localizer {
	if loc, ok := ctx.Value(ctxKey{}).(*i18n.Localizer); ok {
		return loc
	}
	return NewLocalizer()
}

// T translates a message by ID. Unknown IDs come back unchanged.
func T(ctx context.Context, msgID string) string {
	s, err := localizerFromCtx(ctx).Localize(&i18n.LocalizeConfig{MessageID: msgID})
	if err != nil {
		return msgID
	}
	return s
}

// Td translates a message by ID with template data.
func Td(ctx context.Context, msgID string, data map[string]any) string {
	s, err := localizerFromCtx(ctx).Localize(&i18n.LocalizeConfig{
		MessageID:    msgID,
		TemplateData: data,
	})
	if err != nil {
		return msgID
	}
	return s
}
