package i18n

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cf-ai-ledger-go/internal/config"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

// Localizer manages internationalization
type Localizer struct {
	bundle          *i18n.Bundle
	defaultLanguage string
	matcher         language.Matcher
	tags            []language.Tag
	localizers      map[string]*i18n.Localizer
}

// NewLocalizer creates a localizer from the built-in catalog. When cfg.Directory is
// set, <dir>/<lang>.json files override built-in messages for that language.
func NewLocalizer(cfg *config.I18nConfig) (*Localizer, error) {
	defaultTag, err := language.Parse(cfg.DefaultLanguage)
	if err != nil {
		return nil, fmt.Errorf("invalid default language %q: %w", cfg.DefaultLanguage, err)
	}

	bundle := i18n.NewBundle(defaultTag)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	for tag, messages := range builtin {
		if err := bundle.AddMessages(tag, messages...); err != nil {
			return nil, fmt.Errorf("failed to add %s messages: %w", tag, err)
		}
	}

	languages := cfg.Languages
	if len(languages) == 0 {
		languages = []string{cfg.DefaultLanguage}
	}

	// Default first so the matcher falls back to it
	tags := []language.Tag{defaultTag}
	localizers := map[string]*i18n.Localizer{
		defaultTag.String(): i18n.NewLocalizer(bundle, defaultTag.String()),
	}
	for _, lang := range languages {
		tag, err := language.Parse(lang)
		if err != nil {
			return nil, fmt.Errorf("invalid language %q: %w", lang, err)
		}
		if cfg.Directory != "" {
			path := filepath.Join(cfg.Directory, lang+".json")
			if _, err := os.Stat(path); err == nil {
				if _, err := bundle.LoadMessageFile(path); err != nil {
					return nil, fmt.Errorf("failed to load language file %s: %w", path, err)
				}
			}
		}
		if _, exists := localizers[tag.String()]; exists {
			continue
		}
		tags = append(tags, tag)
		localizers[tag.String()] = i18n.NewLocalizer(bundle, tag.String(), defaultTag.String())
	}

	return &Localizer{
		bundle:          bundle,
		defaultLanguage: defaultTag.String(),
		matcher:         language.NewMatcher(tags),
		tags:            tags,
		localizers:      localizers,
	}, nil
}

// Resolve maps a requested language such as "es-MX" to the closest supported one
func (l *Localizer) Resolve(lang string) string {
	if lang == "" {
		return l.defaultLanguage
	}
	_, idx, confidence := l.matcher.Match(language.Make(lang))
	if confidence == language.No {
		return l.defaultLanguage
	}
	return l.tags[idx].String()
}

// Supported reports whether lang matches one of the configured languages
func (l *Localizer) Supported(lang string) bool {
	tag, err := language.Parse(lang)
	if err != nil {
		return false
	}
	_, _, confidence := l.matcher.Match(tag)
	return confidence != language.No
}

// Languages lists the supported language codes, default first
func (l *Localizer) Languages() []string {
	out := make([]string, len(l.tags))
	for i, tag := range l.tags {
		out[i] = tag.String()
	}
	return out
}

// Get returns localized message
func (l *Localizer) Get(lang, messageID string, data map[string]interface{}) string {
	localizer := l.localizers[l.Resolve(lang)]

	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil {
		return messageID // Fallback to message ID
	}

	return msg
}

// Message IDs
const (
	MsgWelcome           = "welcome"
	MsgHelp              = "help"
	MsgRateLimitExceeded = "rate_limit_exceeded"
	MsgError             = "error"
	MsgApology           = "apology"
	MsgProcessing        = "processing"
	MsgUnknownCommand    = "unknown_command"
	MsgUsage             = "usage"
	MsgInvalidInput      = "invalid_input"
	MsgNoInsights        = "no_insights"
	MsgNoTips            = "no_tips"
	MsgInsightsHeader    = "insights_header"
	MsgTipsHeader        = "tips_header"
	MsgAnalysisDone      = "analysis_done"
	MsgStats             = "stats"
	MsgExportReady       = "export_ready"
	MsgDataDeleted       = "data_deleted"
	MsgLanguageChanged   = "language_changed"
	MsgLanguageInvalid   = "language_invalid"
	MsgStyleChanged      = "style_changed"
	MsgStyleInvalid      = "style_invalid"
	MsgFocusUpdated      = "focus_updated"
	MsgCompanyUpdated    = "company_updated"
	MsgIndustryUpdated   = "industry_updated"
	MsgDocumentProcessed = "document_processed"
	MsgDocumentFailed    = "document_failed"
	MsgFileTooLarge      = "file_too_large"
)
