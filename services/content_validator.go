package services

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gosimple/unidecode"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

type ValidationStatus string

const (
	ValidationApproved ValidationStatus = "approved"
	ValidationWarning  ValidationStatus = "warning"
	ValidationBlocked  ValidationStatus = "blocked"
)

type ValidationResult struct {
	Status      ValidationStatus `json:"status"`
	Reason      string           `json:"reason"`
	Suggestions []string         `json:"suggestions,omitempty"`

	MatchedRequired []string `json:"matched_required,omitempty"`
	MatchedPositive []string `json:"matched_positive,omitempty"`
	MatchedNegative []string `json:"matched_negative,omitempty"`
	MatchedScam     []string `json:"matched_scam,omitempty"`
}

type KeywordLists struct {
	Required []string
	Positive []string
	Negative []string
	Scam     []string
}

var DefaultKeywords = KeywordLists{
	Required: []string{"@layeredge", "$edgen"},
	Positive: []string{
		"excited", "bullish", "amazing", "great", "love", "innovative", "building",
		"proud", "impressive", "game changer", "future", "congrats", "thanks", "powerful",
	},
	Negative: []string{
		"disappointed", "bearish", "dump", "dumping", "worthless", "overhyped", "dead project",
		"avoid", "fail", "failed", "terrible", "broken", "useless", "waste",
	},
	Scam: []string{
		"scam", "rug pull", "rugpull", "ponzi", "honeypot", "exit scam",
		"seed phrase", "private key", "send me your", "double your", "guaranteed returns",
		"free giveaway dm", "connect your wallet to claim",
	},
}

// ContentValidator decides whether a post's text is acceptable. Matching runs on a
// normalised form of both text and keywords, so full-width and look-alike spellings count.
type ContentValidator struct {
	required, positive, negative, scam []keyword
}

type keyword struct {
	display string
	norm    string
}

// NewContentValidator uses lists for every non-empty list and DefaultKeywords for the rest.
func NewContentValidator(lists KeywordLists) *ContentValidator {
	pick := func(custom, def []string) []keyword {
		src := custom
		if len(src) == 0 {
			src = def
		}
		out := make([]keyword, 0, len(src))
		for _, s := range src {
			n := normalizeText(s)
			if n == "" {
				continue
			}
			out = append(out, keyword{display: strings.TrimSpace(s), norm: n})
		}
		return out
	}
	return &ContentValidator{
		required: pick(lists.Required, DefaultKeywords.Required),
		positive: pick(lists.Positive, DefaultKeywords.Positive),
		negative: pick(lists.Negative, DefaultKeywords.Negative),
		scam:     pick(lists.Scam, DefaultKeywords.Scam),
	}
}

// Validate never fails; malformed or empty input is blocked.
func (v *ContentValidator) Validate(text string) ValidationResult {
	clean := normalizeText(text)
	if clean == "" {
		return ValidationResult{
			Status:      ValidationBlocked,
			Reason:      "post content is empty",
			Suggestions: []string{"Write something about the project before submitting"},
		}
	}

	res := ValidationResult{
		MatchedRequired: matchAll(clean, v.required, strings.Contains),
		MatchedPositive: matchAll(clean, v.positive, containsWord),
		MatchedNegative: matchAll(clean, v.negative, containsWord),
		MatchedScam:     matchAll(clean, v.scam, strings.Contains),
	}

	switch {
	case len(res.MatchedScam) > 0:
		res.Status = ValidationBlocked
		res.Reason = fmt.Sprintf("post contains scam-related language: %s", strings.Join(res.MatchedScam, ", "))
		res.Suggestions = []string{
			"Remove scam or fraud accusations and wallet or key requests",
			"Share your own experience with the project instead",
		}
	case len(res.MatchedNegative) > len(res.MatchedPositive):
		res.Status = ValidationWarning
		res.Reason = "post reads mostly negative and needs a moderator review"
		res.Suggestions = []string{
			"Balance criticism with constructive suggestions",
			"Mention what you would like to see improved",
		}
	case len(res.MatchedRequired) == 0:
		res.Status = ValidationBlocked
		res.Reason = fmt.Sprintf("post must mention %s", v.requiredList())
		res.Suggestions = []string{fmt.Sprintf("Add %s to your post", v.requiredList())}
	default:
		res.Status = ValidationApproved
		res.Reason = "post meets the community guidelines"
	}
	return res
}

// IsCommunityPost reports whether text mentions any required term.
func (v *ContentValidator) IsCommunityPost(text string) bool {
	clean := normalizeText(text)
	for _, k := range v.required {
		if strings.Contains(clean, k.norm) {
			return true
		}
	}
	return false
}

func (v *ContentValidator) requiredList() string {
	names := make([]string, 0, len(v.required))
	for _, k := range v.required {
		names = append(names, k.display)
	}
	return strings.Join(names, " or ")
}

// matchAll reports the keywords found by match. Scam terms and required mentions
// match anywhere in the text ("scammers" is a scam hit); sentiment words need word
// boundaries.
func matchAll(text string, kws []keyword, match func(text, term string) bool) []string {
	var out []string
	for _, k := range kws {
		if k.norm != "" && match(text, k.norm) {
			out = append(out, k.display)
		}
	}
	return out
}

// normalizeText folds compatibility forms, transliterates to ASCII, case-folds and collapses whitespace.
func normalizeText(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, " ")
	}
	s = norm.NFKC.String(s)
	s = unidecode.Unidecode(s)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

// containsWord finds term in text where it isn't glued to surrounding letters or digits,
// so "dump" does not match "dumpling".
func containsWord(text, term string) bool {
	if term == "" {
		return false
	}
	for from := 0; from < len(text); {
		i := strings.Index(text[from:], term)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(term)
		if boundaryBefore(text, start, term) && boundaryAfter(text, end, term) {
			return true
		}
		from = start + 1
	}
	return false
}

func boundaryBefore(text string, start int, term string) bool {
	if start == 0 || !isWordByte(term[0]) {
		return true
	}
	return !isWordByte(text[start-1])
}

func boundaryAfter(text string, end int, term string) bool {
	if end >= len(text) || !isWordByte(term[len(term)-1]) {
		return true
	}
	return !isWordByte(text[end])
}

// Text is ASCII after transliteration, so bytes are enough.
func isWordByte(b byte) bool {
	return b < utf8.RuneSelf && (unicode.IsLetter(rune(b)) || unicode.IsDigit(rune(b)) || b == '_')
}
