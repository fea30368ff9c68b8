// Package i18n serves the Arabic and English UI strings. Arabic is the
// default; English is negotiated from Accept-Language.
package i18n

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"path"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

// DefaultLang is used when neither the request nor the configuration names
// a supported language.
const DefaultLang = "ar"

var (
	bundle    *i18n.Bundle
	supported []language.Tag
	matcher   language.Matcher
)

// Init loads every embedded locale with lang as the bundle default.
func Init(lang string) error {
	tag, err := language.Parse(lang)
	if err != nil {
		return fmt.Errorf("parse language %q: %w", lang, err)
	}

	b := i18n.NewBundle(tag)
	b.RegisterUnmarshalFunc("json", json.Unmarshal)

	files, err := fs.Glob(localeFS, "locales/*.json")
	if err != nil {
		return fmt.Errorf("list locales: %w", err)
	}
	for _, name := range files {
		data, err := localeFS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read locale file %s: %w", name, err)
		}
		if _, err := b.ParseMessageFileBytes(data, path.Base(name)); err != nil {
			return fmt.Errorf("parse locale file %s: %w", name, err)
		}
		slog.Debug("loaded locale file", "file", name)
	}

	bundle = b
	supported = b.LanguageTags()
	matcher = language.NewMatcher(supported)
	return nil
}

// Negotiate picks the best supported language for an Accept-Language
// header, falling back to fallback and then to the bundle default.
func Negotiate(acceptLanguage, fallback string) language.Tag {
	prefs, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil {
		prefs = nil
	}
	if t, err := language.Parse(fallback); err == nil {
		prefs = append(prefs, t)
	}
	if len(prefs) == 0 {
		return supported[0]
	}
	_, idx, conf := matcher.Match(prefs...)
	if conf == language.No {
		return supported[0]
	}
	return supported[idx]
}

// NewLocalizer creates a localizer trying langs in order. Each entry may be
// a tag or an Accept-Language header value.
func NewLocalizer(langs ...string) *i18n.Localizer {
	return i18n.NewLocalizer(bundle, langs...)
}

type ctxKey struct{}

type locale struct {
	loc *i18n.Localizer
	tag language.Tag
}

// WithLocalizer stores a localizer in the context.
func WithLocalizer(ctx context.Context, loc *i18n.Localizer) context.Context {
	return withLocale(ctx, locale{loc: loc, tag: language.Und})
}

func withLocale(ctx context.Context, l locale) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

func fromCtx(ctx context.Context) locale {
	if l, ok := ctx.Value(ctxKey{}).(locale); ok {
		return l
	}
	return locale{loc: i18n.NewLocalizer(bundle, DefaultLang), tag: language.Make(DefaultLang)}
}

// Lang returns the language negotiated for the request, or und when the
// context was built from a bare localizer.
func Lang(ctx context.Context) language.Tag {
	return fromCtx(ctx).tag
}

// Dir returns the text direction for the request language.
func Dir(ctx context.Context) string {
	if base, _ := Lang(ctx).Base(); base.String() == "ar" {
		return "rtl"
	}
	return "ltr"
}

func localize(ctx context.Context, cfg *i18n.LocalizeConfig) string {
	s, err := fromCtx(ctx).loc.Localize(cfg)
	if err != nil {
		slog.Warn("missing translation", "id", cfg.MessageID, "error", err)
		return cfg.MessageID
	}
	return s
}

// T translates a message by ID.
func T(ctx context.Context, msgID string) string {
	return localize(ctx, &i18n.LocalizeConfig{MessageID: msgID})
}

// Td translates a message by ID with template data.
func Td(ctx context.Context, msgID string, data map[string]any) string {
	return localize(ctx, &i18n.LocalizeConfig{MessageID: msgID, TemplateData: data})
}

// Tp picks the plural form of msgID for count. The count is available to
// the template as {{.Count}}.
func Tp(ctx context.Context, msgID string, count int) string {
	return localize(ctx, &i18n.LocalizeConfig{
		MessageID:    msgID,
		PluralCount:  count,
		TemplateData: map[string]any{"Count": count},
	})
}

// Error returns the localized message for a failure kind.
func Error(ctx context.Context, kind string) string {
	return T(ctx, "Error."+kind)
}
