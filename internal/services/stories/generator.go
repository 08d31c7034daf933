package stories

import (
	"errors"
	"math/rand"
	"strings"
	"time"
	"unicode/utf8"
)

var ErrValidation = errors.New("validation error")

// Rand is the random source behind template and fragment selection. Production
// wiring passes a seeded math/rand generator; tests pass a fixed sequence.
type Rand interface {
	Intn(n int) int
}

const (
	defaultHero  = "Ты"
	defaultOther = "он/она"
	defaultLine  = "нужно встретиться"
	defaultReply = "ладно, приди"
)

var templates = []string{
	"Это произошло ночью. {hero} и {other} вышли из подъезда — никто не ожидал, что всё закончится так. {detail}",
	"{hero} написал первое сообщение: «{line}». Ответ {other} был неожидан: «{reply}». Так началась цепочка.",
	"{hero} проснулся и вспомнил ту ночь, где {detail}. Он решил написать {other}: «{line}» — и его ждало удивление.",
}

var details = []string{
	"всё пошло не по плану",
	"они смеялись до утра",
	"появилась неожиданная драка",
	"всё обернулось романом",
}

type Generator struct {
	rnd Rand
}

func NewGenerator(rnd Rand) *Generator {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Generator{rnd: rnd}
}

// Synthesize builds a short story from the prompt. Up to two actor names are
// taken from the comma-separated prompt; missing names fall back to defaults.
// The same prompt legitimately produces different stories across calls.
func (g *Generator) Synthesize(prompt string) (string, error) {
	if !utf8.ValidString(prompt) {
		return "", ErrValidation
	}

	hero, other := actors(prompt)
	detail := details[g.rnd.Intn(len(details))]
	tmpl := templates[g.rnd.Intn(len(templates))]

	story := strings.NewReplacer(
		"{hero}", hero,
		"{other}", other,
		"{detail}", detail,
		"{line}", defaultLine,
		"{reply}", defaultReply,
	).Replace(tmpl)

	return story, nil
}

func actors(prompt string) (hero, other string) {
	hero, other = defaultHero, defaultOther

	parts := strings.Split(prompt, ",")
	if len(parts) < 2 {
		return hero, other
	}

	if first := strings.TrimSpace(parts[0]); first != "" {
		hero = first
	}
	if second := strings.TrimSpace(parts[1]); second != "" {
		other = second
	}
	return hero, other
}
