// Package extract performs heuristic slot extraction over raw user messages:
// age, problem statement, direct-request intent, escalation intent and
// confusion signals. Extraction is a pure function of the message and a
// read-only view of the session.
package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/sportmind/intake/internal/directory"
)

// Age boundaries for group classification. Values outside the overall range
// are ignored entirely.
const (
	minChildAge = 5
	maxChildAge = 18
	minAdultAge = 19
	maxAdultAge = 80
)

// ShortMessageWords is the cutoff under which an age-carrying message is
// treated as age-only and the stored problem context is substituted in.
const ShortMessageWords = 4

// PhraseSet is a named, swappable set-membership predicate over lowercased
// text. Matching is substring based so inflected forms hit on their stem.
type PhraseSet []string

// MatchesAny reports whether any phrase of the set occurs in the text.
func (p PhraseSet) MatchesAny(text string) bool {
	for _, phrase := range p {
		if strings.Contains(text, phrase) {
			return true
		}
	}

	return false
}

// ContainsExact reports whether the text equals one of the phrases.
func (p PhraseSet) ContainsExact(text string) bool {
	for _, phrase := range p {
		if text == phrase {
			return true
		}
	}

	return false
}

// Greetings are matched against the whole trimmed message; a hit bypasses
// extraction and policy entirely.
var Greetings = PhraseSet{
	"привет",
	"здравствуйте",
	"добрый день",
	"добрый вечер",
	"доброе утро",
	"hi",
	"hello",
}

// ConfusionPhrases signal the user did not understand the previous reply.
var ConfusionPhrases = PhraseSet{
	"не понимаю",
	"не понял",
	"не поняла",
	"что?",
	"в смысле",
	"это как",
	"о чем вы",
	"о чём вы",
}

// ProblemKeywords mark a message as carrying a real problem statement.
var ProblemKeywords = PhraseSet{
	"страх",
	"боюсь",
	"боится",
	"тревог",
	"мотивац",
	"выгоран",
	"травм",
	"ошибк",
	"отношени",
	"уверенност",
	"неудач",
	"самооценк",
	"кризис",
	"депресси",
	"стресс",
	"эмоци",
	"волнени",
	"переживан",
}

// IntentVerbs and SpecialistNouns must both hit for a direct request: a verb
// alone ("хочу") or a noun alone ("психолог") does not qualify.
var IntentVerbs = PhraseSet{
	"нужен",
	"нужна",
	"ищу",
	"подбер",
	"подобрать",
	"порекоменду",
	"посоветуй",
	"запиш",
	"записаться",
	"хочу",
}

var SpecialistNouns = PhraseSet{
	"психолог",
	"специалист",
	"консультац",
}

// EscalationPhrases route the turn to human support.
var EscalationPhrases = PhraseSet{
	"менеджер",
	"поддержк",
	"не могу оплатить",
	"не получается оплатить",
	"ошибка оплаты",
	"ошибка при оплате",
	"не могу записаться",
	"не получается записаться",
	"проблема с подключением",
	"не работает сайт",
	"оператор",
}

var (
	// Relation word ("сыну 12", "ему 10 лет", "дочке — 15") followed by a
	// one- or two-digit number within a short span.
	ageWithRelationRe = regexp.MustCompile(`(?i)(?:сын|доч|реб[её]н|спортсмен|мне|ему|ей)\pL*\D{0,8}?(\d{1,2})`)

	// Bare "15 лет" / "21 год" without a relation word.
	agePlainRe = regexp.MustCompile(`(?i)(\d{1,2})\s*(?:лет|год)`)
)

// Context is the read-only slice of session state extraction depends on.
type Context struct {
	LastProblemMessage string
}

// Slots is the result of one extraction pass.
type Slots struct {
	// EffectiveMessage is the text downstream steps should use for
	// retrieval: the raw message unless a confusion or age-only
	// short-circuit substituted the stored problem statement.
	EffectiveMessage string

	Greeting        bool
	Confused        bool
	FoundAge        bool
	AgeGroup        directory.AgeGroup
	ProblemDetected bool
	DirectRequest   bool
	Escalation      bool
	WordCount       int
}

// Extract runs the extraction pipeline over one raw message. It never
// mutates session state; callers apply the returned slots themselves.
func Extract(raw string, sctx Context) Slots {
	trimmed := strings.TrimSpace(raw)
	lowered := strings.ToLower(trimmed)

	slots := Slots{
		EffectiveMessage: trimmed,
		AgeGroup:         directory.AgeGroupUnknown,
		WordCount:        len(strings.Fields(trimmed)),
	}

	if Greetings.ContainsExact(strings.TrimRight(lowered, "!. ")) {
		slots.Greeting = true
		return slots
	}

	// Confusion rehydration: a bare "не понимаю" resumes the last real
	// problem statement instead of derailing the turn.
	if ConfusionPhrases.MatchesAny(lowered) && sctx.LastProblemMessage != "" {
		slots.Confused = true
		slots.EffectiveMessage = sctx.LastProblemMessage
		lowered = strings.ToLower(sctx.LastProblemMessage)
	}

	if age, ok := extractAge(lowered); ok {
		slots.FoundAge = true
		switch {
		case age >= minChildAge && age <= maxChildAge:
			slots.AgeGroup = directory.AgeGroupChildren
		case age >= minAdultAge && age <= maxAdultAge:
			slots.AgeGroup = directory.AgeGroupAdults
		default:
			// Out of range: pretend no age was seen at all.
			slots.FoundAge = false
			slots.AgeGroup = directory.AgeGroupUnknown
		}
	}

	// Age-only short-circuit: "ему 15" right after a problem statement
	// should search with the problem text, not with the age fragment.
	if slots.FoundAge && slots.WordCount <= ShortMessageWords &&
		!ProblemKeywords.MatchesAny(lowered) && sctx.LastProblemMessage != "" {
		slots.EffectiveMessage = sctx.LastProblemMessage
		lowered = strings.ToLower(sctx.LastProblemMessage)
	}

	slots.ProblemDetected = ProblemKeywords.MatchesAny(lowered)
	slots.DirectRequest = IntentVerbs.MatchesAny(lowered) && SpecialistNouns.MatchesAny(lowered)
	slots.Escalation = EscalationPhrases.MatchesAny(lowered)

	return slots
}

// extractAge pulls a candidate age out of the message: relation-word pattern
// first, then a bare "N лет", then the whole message parsed as an integer.
func extractAge(lowered string) (int, bool) {
	if m := ageWithRelationRe.FindStringSubmatch(lowered); m != nil {
		if age, err := strconv.Atoi(m[1]); err == nil {
			return age, true
		}
	}
	if m := agePlainRe.FindStringSubmatch(lowered); m != nil {
		if age, err := strconv.Atoi(m[1]); err == nil {
			return age, true
		}
	}
	if age, err := strconv.Atoi(strings.TrimSpace(lowered)); err == nil {
		return age, true
	}

	return 0, false
}
