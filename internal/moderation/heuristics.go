// Package moderation decides which messages need external safety review and
// records the verdicts.
package moderation

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultMinTextLength      = 3
	DefaultWhitelistMaxLength = 20
)

// DefaultTriggerWords always force a review.
var DefaultTriggerWords = []string{
	"suicide", "kill myself", "self-harm", "self harm", "cut myself", "hurt myself",
	"kill you", "murder", "weapon", "gun", "bomb", "shoot",
	"nude", "nudes", "naked", "sex", "porn", "rape",
	"drugs", "cocaine",
}

// DefaultWhitelist holds short phrases that never need review on their own.
var DefaultWhitelist = []string{
	"ok", "okay", "k", "yes", "yep", "yeah", "no", "nope", "lol", "haha", "hah",
	"hi", "hey", "hello", "bye", "thanks", "thank you", "thx", "sure", "cool",
	"nice", "good", "great", "good morning", "good night", "gm", "gn", "brb",
	"omw", "np", "ty", "love you", "miss you", "see you",
}

// SkipReason explains a heuristic decision.
type SkipReason string

const (
	ReasonDisabled         SkipReason = "disabled"
	ReasonTrigger          SkipReason = "keyword_trigger"
	ReasonNoContent        SkipReason = "no_content"
	ReasonLowSignal        SkipReason = "low_signal"
	ReasonWhitelist        SkipReason = "whitelist"
	ReasonShortText        SkipReason = "short_text"
	ReasonMediaWithoutText SkipReason = "media_without_text"
	ReasonDefault          SkipReason = "default"
)

// WordList is a configurable list. Empty Words means the built-in defaults;
// ExtendDefaults merges Words into the defaults instead of replacing them.
type WordList struct {
	Words          []string `yaml:"words"`
	ExtendDefaults bool     `yaml:"extend_defaults"`
}

// Resolve returns the effective list, lowercased and de-duplicated.
func (l WordList) Resolve(defaults []string) []string {
	var src []string
	switch {
	case len(l.Words) == 0:
		src = defaults
	case l.ExtendDefaults:
		src = append(append([]string{}, defaults...), l.Words...)
	default:
		src = l.Words
	}

	seen := make(map[string]struct{}, len(src))
	out := make([]string, 0, len(src))
	for _, w := range src {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// HeuristicConfig controls the pre-filter. Zero lengths select the defaults.
type HeuristicConfig struct {
	Enabled              bool     `yaml:"enabled"`
	MinTextLength        int      `yaml:"min_text_length" validate:"gte=0"`
	WhitelistMaxLength   int      `yaml:"whitelist_max_length" validate:"gte=0"`
	SkipMediaWithoutText bool     `yaml:"skip_media_without_text"`
	LogSkipReasons       bool     `yaml:"log_skip_reasons"`
	Triggers             WordList `yaml:"triggers"`
	Whitelist            WordList `yaml:"whitelist"`
}

// Decision is the pre-filter outcome. Skip means the message is safe without
// review.
type Decision struct {
	Skip   bool
	Reason SkipReason
}

// Heuristics is the compiled pre-filter.
type Heuristics struct {
	cfg       HeuristicConfig
	triggers  []string
	whitelist map[string]struct{}
}

func NewHeuristics(cfg HeuristicConfig) *Heuristics {
	if cfg.MinTextLength == 0 {
		cfg.MinTextLength = DefaultMinTextLength
	}
	if cfg.WhitelistMaxLength == 0 {
		cfg.WhitelistMaxLength = DefaultWhitelistMaxLength
	}

	whitelist := make(map[string]struct{})
	for _, w := range cfg.Whitelist.Resolve(DefaultWhitelist) {
		whitelist[w] = struct{}{}
	}

	return &Heuristics{
		cfg:       cfg,
		triggers:  cfg.Triggers.Resolve(DefaultTriggerWords),
		whitelist: whitelist,
	}
}

// LogSkipReasons reports whether skip reasons may be logged.
func (h *Heuristics) LogSkipReasons() bool {
	return h.cfg.LogSkipReasons
}

// Evaluate applies the rules in order. A trigger keyword wins over every
// short-circuit.
func (h *Heuristics) Evaluate(text string, hasMedia bool) Decision {
	if !h.cfg.Enabled {
		return Decision{Reason: ReasonDisabled}
	}

	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)

	for _, trigger := range h.triggers {
		if strings.Contains(lower, trigger) {
			return Decision{Reason: ReasonTrigger}
		}
	}

	if trimmed == "" && !hasMedia {
		return Decision{Skip: true, Reason: ReasonNoContent}
	}

	if !hasMedia {
		if !hasAlphanumeric(trimmed) {
			return Decision{Skip: true, Reason: ReasonLowSignal}
		}
		length := utf8.RuneCountInString(trimmed)
		if length < h.cfg.WhitelistMaxLength && h.whitelisted(lower) {
			return Decision{Skip: true, Reason: ReasonWhitelist}
		}
		if length < h.cfg.MinTextLength {
			return Decision{Skip: true, Reason: ReasonShortText}
		}
	}

	if hasMedia && trimmed == "" && h.cfg.SkipMediaWithoutText {
		return Decision{Skip: true, Reason: ReasonMediaWithoutText}
	}

	return Decision{Reason: ReasonDefault}
}

func (h *Heuristics) whitelisted(lower string) bool {
	if _, ok := h.whitelist[lower]; ok {
		return true
	}
	stripped := strings.TrimRightFunc(lower, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
	_, ok := h.whitelist[stripped]
	return ok
}

func hasAlphanumeric(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
