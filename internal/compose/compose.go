// Package compose renders a policy decision and the externally generated
// free-text reply into the outgoing payload. The output is HTML-lite markup
// (bold tags, line breaks, anchors) consumed literally by the chat widget.
package compose

import (
	"fmt"
	"strings"

	"github.com/sportmind/intake/internal/directory"
	"github.com/sportmind/intake/internal/policy"
)

// Fixed strings of the product surface. The composer never fabricates
// specialist names or links; it only formats records handed to it.
const (
	GreetingReply = "Здравствуйте! Расскажите, что вас беспокоит, и я помогу подобрать спортивного психолога."

	apologyReply = "Извините, сейчас не получается обработать запрос. Попробуйте написать ещё раз чуть позже."

	noMatchReply = "Пока не получилось подобрать специалиста под ваш запрос. " +
		"Попробуйте описать проблему другими словами или напишите в поддержку."

	retrievalApology = "Извините, сейчас не получается подобрать специалиста. Попробуйте немного позже."

	matchesHeader = "Возможно, вам подойдут эти специалисты:"
)

var clarificationTemplates = map[policy.Action][]string{
	policy.ActionAskProblem: {
		"Расскажите, пожалуйста, что вас беспокоит — так я смогу подобрать подходящего специалиста.",
		"Опишите, с чем хотите поработать: волнение перед стартами, мотивация, что-то ещё?",
	},
	policy.ActionAskAge: {
		"Подскажите, пожалуйста, возраст спортсмена — это важно для подбора специалиста.",
		"Сколько лет тому, для кого подбираем психолога?",
	},
	policy.ActionAskBoth: {
		"Чтобы подобрать специалиста, расскажите, с чем хотите поработать, и укажите возраст спортсмена.",
		"Опишите, пожалуйста, проблему и возраст — и я предложу подходящих психологов.",
	},
}

// PoolSize reports how many clarification templates exist for an action.
// The policy engine uses it to pick a variant index.
func PoolSize(action policy.Action) int {
	return len(clarificationTemplates[action])
}

// Composer assembles response payloads. The support contact is rendered into
// escalation and no-match blocks.
type Composer struct {
	supportContact string
}

// NewComposer creates a composer pointing users at the given support
// contact, e.g. a Telegram handle or mailto link.
func NewComposer(supportContact string) *Composer {
	return &Composer{supportContact: supportContact}
}

// Compose merges the generated reply with the decision's blocks. An empty
// reply (generation unavailable) is replaced with a neutral apology so the
// structured blocks still reach the user.
func (c *Composer) Compose(reply string, d policy.Decision) string {
	var b strings.Builder

	reply = strings.TrimSpace(reply)
	if reply == "" {
		reply = apologyReply
	}
	b.WriteString(reply)

	switch d.Action {
	case policy.ActionAskProblem, policy.ActionAskAge, policy.ActionAskBoth:
		b.WriteString("<br><br>")
		b.WriteString(c.clarification(d))
	case policy.ActionRecommend:
		b.WriteString("<br><br><b>")
		b.WriteString(matchesHeader)
		b.WriteString("</b>")
		for _, s := range d.Matches {
			b.WriteString(c.specialistCard(s))
		}
	case policy.ActionEscalate:
		b.WriteString(c.escalationBlock())
	case policy.ActionPassThrough:
		switch {
		case d.NoMatch:
			b.WriteString("<br><br>")
			b.WriteString(noMatchReply)
			b.WriteString(c.escalationBlock())
		case d.RetrievalFailed:
			b.WriteString("<br><br>")
			b.WriteString(retrievalApology)
		}
	}

	return b.String()
}

func (c *Composer) clarification(d policy.Decision) string {
	pool := clarificationTemplates[d.Action]
	if len(pool) == 0 {
		return ""
	}
	idx := d.ClarificationVariant
	if idx < 0 || idx >= len(pool) {
		idx = 0
	}

	return pool[idx]
}

func (c *Composer) specialistCard(s directory.Specialist) string {
	return fmt.Sprintf("<br><br><b>%s</b><br>%s<br><a href=\"%s\">Открыть профиль</a>",
		s.Name, s.Description, s.Link)
}

func (c *Composer) escalationBlock() string {
	return fmt.Sprintf("<br><br><b>Связь с поддержкой</b><br>Напишите нам: <a href=\"%s\">%s</a>",
		c.supportContact, c.supportContact)
}
