package moderation

import (
	"log/slog"

	"github.com/abadojack/whatlanggo"
)

// ContentFilter censors message content before it is stored.
// Censored messages are logged with their detected language so that the
// dictionaries can be tuned per language.
type ContentFilter struct {
	moderator Moderator
	log       *slog.Logger
}

func NewContentFilter(moderator Moderator, log *slog.Logger) *ContentFilter {
	return &ContentFilter{moderator: moderator, log: log}
}

func (f *ContentFilter) Censor(original string) string {
	censored, words := f.moderator.Censor(original)
	if len(words) == 0 {
		return original
	}

	info := whatlanggo.Detect(original)
	f.log.Debug("Content censored",
		"lang", info.Lang.Iso6391(),
		"confidence", info.Confidence,
		"words", len(words))
	return censored
}
