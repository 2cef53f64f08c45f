// Package sentiment provides a small lexicon-based polarity scorer.
//
// It is the degrade path for the generative fallback: when the model call
// fails, the bot still owes the user an acknowledgment, so the message is
// classified as positive/negative/neutral from fixed word lists and a
// templated reply is produced locally. No external NLP dependency.
package sentiment

import (
	"fmt"
	"strings"
	"unicode"
)

// ---- Lexicon ----

// positiveWords is the hard-coded set of positive-valence words.
var positiveWords = map[string]bool{
	"amazing":    true,
	"awesome":    true,
	"better":     true,
	"blessed":    true,
	"brave":      true,
	"calm":       true,
	"cheerful":   true,
	"comforted":  true,
	"confident":  true,
	"content":    true,
	"delighted":  true,
	"encouraged": true,
	"energized":  true,
	"excited":    true,
	"fine":       true,
	"glad":       true,
	"good":       true,
	"grateful":   true,
	"great":      true,
	"happy":      true,
	"healed":     true,
	"hope":       true,
	"hopeful":    true,
	"joy":        true,
	"joyful":     true,
	"love":       true,
	"loved":      true,
	"motivated":  true,
	"optimistic": true,
	"peaceful":   true,
	"proud":      true,
	"relaxed":    true,
	"relieved":   true,
	"safe":       true,
	"strong":     true,
	"thankful":   true,
	"warm":       true,
	"wonderful":  true,
}

// negativeWords is the hard-coded set of negative-valence words.
var negativeWords = map[string]bool{
	"afraid":      true,
	"alone":       true,
	"angry":       true,
	"anxiety":     true,
	"anxious":     true,
	"ashamed":     true,
	"awful":       true,
	"bad":         true,
	"broken":      true,
	"cry":         true,
	"crying":      true,
	"depressed":   true,
	"depressing":  true,
	"empty":       true,
	"exhausted":   true,
	"fear":        true,
	"furious":     true,
	"grief":       true,
	"guilty":      true,
	"hate":        true,
	"hated":       true,
	"helpless":    true,
	"hopeless":    true,
	"horrible":    true,
	"hurt":        true,
	"lonely":      true,
	"lost":        true,
	"mad":         true,
	"miserable":   true,
	"numb":        true,
	"overwhelmed": true,
	"pain":        true,
	"painful":     true,
	"panic":       true,
	"sad":         true,
	"scared":      true,
	"stressed":    true,
	"stuck":       true,
	"terrible":    true,
	"terrified":   true,
	"tired":       true,
	"trauma":      true,
	"unhappy":     true,
	"upset":       true,
	"worried":     true,
	"worry":       true,
	"worse":       true,
	"worst":       true,
}

// negators flip the valence of the word that follows them.
var negators = map[string]bool{
	"no":      true,
	"not":     true,
	"never":   true,
	"cant":    true,
	"cannot":  true,
	"dont":    true,
	"wont":    true,
	"isnt":    true,
	"arent":   true,
	"wasnt":   true,
	"werent":  true,
	"without": true,
}

// ---- Data types ----

// Polarity labels the overall valence of a message.
type Polarity string

const (
	PolarityPositive Polarity = "positive"
	PolarityNegative Polarity = "negative"
	PolarityNeutral  Polarity = "neutral"
)

// ---- Public API ----

// negationWindow is how many tokens a negator reaches forward. It lets
// "don't feel safe" flip "safe" despite the intervening word.
const negationWindow = 3

// Score returns the average valence of lexicon hits in text, in [-1, 1].
// A lexicon hit within negationWindow tokens of a negator contributes its
// opposite valence. Text with no lexicon hits scores 0.
func Score(text string) float64 {
	tokens := tokenize(text)

	var sum float64
	var hits int
	negation := 0

	for _, tok := range tokens {
		if negators[tok] {
			negation = negationWindow
			continue
		}

		var v float64
		switch {
		case positiveWords[tok]:
			v = 1
		case negativeWords[tok]:
			v = -1
		default:
			if negation > 0 {
				negation--
			}
			continue
		}

		if negation > 0 {
			v = -v
			negation = 0
		}
		sum += v
		hits++
	}

	if hits == 0 {
		return 0
	}
	return sum / float64(hits)
}

// Classify maps a message to its polarity label.
func Classify(text string) Polarity {
	score := Score(text)
	switch {
	case score > 0:
		return PolarityPositive
	case score < 0:
		return PolarityNegative
	default:
		return PolarityNeutral
	}
}

// FallbackReply builds the templated acknowledgment sent when the generative
// call fails. It is always non-empty.
func FallbackReply(text string) string {
	return fmt.Sprintf("I hear you. Your message feels %s. Want to explore this further? Try sharing more or use /chat for support.", Classify(text))
}

// ---- helpers ----

// tokenize lower-cases text and splits it into words, folding apostrophes so
// contractions like "don't" match the negator list.
func tokenize(text string) []string {
	text = strings.ToLower(text)
	text = strings.NewReplacer("'", "", "’", "").Replace(text)
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
}
