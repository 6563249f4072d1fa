// Package spam scores outbound message content with a deterministic
// heuristic. Scoring always runs over the original, unescaped text so
// markup escaping cannot be used to dodge it.
package spam

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Config holds scorer weights and thresholds. Zero values fall back to
// the defaults below via Normalize'd accessors in New.
type Config struct {
	// LinkThreshold is the number of hyperlinks tolerated before the link
	// weight applies.
	LinkThreshold int
	LinkWeight    int

	// ShortBodyLength marks bodies at or under this rune count as
	// suspiciously short.
	ShortBodyLength int
	ShortBodyWeight int

	// Phrases are matched case-insensitively as substrings of
	// subject+body.
	Phrases      []string
	PhraseWeight int

	// RepeatRunLength is the length of a same-character run that trips
	// the repeat weight.
	RepeatRunLength int
	RepeatWeight    int

	// RejectThreshold is the score at or above which a message is
	// rejected.
	RejectThreshold int
}

// DefaultConfig returns the scorer tuning used in production.
func DefaultConfig() Config {
	return Config{
		LinkThreshold:   3,
		LinkWeight:      3,
		ShortBodyLength: 12,
		ShortBodyWeight: 1,
		Phrases: []string{
			"free money",
			"click here",
			"limited time offer",
			"act now",
			"winner winner",
			"crypto giveaway",
			"double your",
			"hot singles",
		},
		PhraseWeight:    2,
		RepeatRunLength: 12,
		RepeatWeight:    2,
		RejectThreshold: 4,
	}
}

// Scorer computes spam scores. Safe for concurrent use.
type Scorer struct {
	config  Config
	phrases []string
}

// New creates a Scorer, lower-casing the phrase list once up front.
func New(cfg Config) *Scorer {
	def := DefaultConfig()
	if cfg.LinkThreshold <= 0 {
		cfg.LinkThreshold = def.LinkThreshold
	}
	if cfg.LinkWeight <= 0 {
		cfg.LinkWeight = def.LinkWeight
	}
	if cfg.ShortBodyLength <= 0 {
		cfg.ShortBodyLength = def.ShortBodyLength
	}
	if cfg.ShortBodyWeight <= 0 {
		cfg.ShortBodyWeight = def.ShortBodyWeight
	}
	if len(cfg.Phrases) == 0 {
		cfg.Phrases = def.Phrases
	}
	if cfg.PhraseWeight <= 0 {
		cfg.PhraseWeight = def.PhraseWeight
	}
	if cfg.RepeatRunLength <= 0 {
		cfg.RepeatRunLength = def.RepeatRunLength
	}
	if cfg.RepeatWeight <= 0 {
		cfg.RepeatWeight = def.RepeatWeight
	}
	if cfg.RejectThreshold <= 0 {
		cfg.RejectThreshold = def.RejectThreshold
	}

	phrases := make([]string, len(cfg.Phrases))
	for i, p := range cfg.Phrases {
		phrases[i] = strings.ToLower(p)
	}

	return &Scorer{config: cfg, phrases: phrases}
}

// RejectThreshold returns the configured rejection threshold.
func (s *Scorer) RejectThreshold() int {
	return s.config.RejectThreshold
}

// Score computes the spam score for subject+body and the reasons that
// contributed to it. Same inputs always produce the same score.
func (s *Scorer) Score(subject, body string) (int, []string) {
	score := 0
	var reasons []string

	combined := strings.ToLower(subject + "\n" + body)

	if links := countLinks(combined); links > s.config.LinkThreshold {
		score += s.config.LinkWeight
		reasons = append(reasons, "excess_links")
	}

	if len([]rune(strings.TrimSpace(body))) <= s.config.ShortBodyLength {
		score += s.config.ShortBodyWeight
		reasons = append(reasons, "short_body")
	}

	for _, phrase := range s.phrases {
		if strings.Contains(combined, phrase) {
			score += s.config.PhraseWeight
			reasons = append(reasons, "spam_phrase")
			break
		}
	}

	if hasRepeatRun(body, s.config.RepeatRunLength) {
		score += s.config.RepeatWeight
		reasons = append(reasons, "repeated_characters")
	}

	return score, reasons
}

func countLinks(lower string) int {
	return strings.Count(lower, "http://") + strings.Count(lower, "https://")
}

func hasRepeatRun(text string, runLength int) bool {
	run := 0
	var prev rune
	for i, r := range text {
		if i > 0 && r == prev {
			run++
			if run+1 >= runLength {
				return true
			}
		} else {
			run = 0
		}
		prev = r
	}
	return false
}

// Normalize canonicalizes a body for duplicate detection: trimmed,
// lower-cased, internal whitespace collapsed to single spaces.
func Normalize(body string) string {
	return strings.Join(strings.Fields(strings.ToLower(body)), " ")
}

// Digest returns the hex SHA-256 of the normalized body. Two messages
// with the same digest are treated as duplicates inside the suppression
// window.
func Digest(body string) string {
	sum := sha256.Sum256([]byte(Normalize(body)))
	return hex.EncodeToString(sum[:])
}
