package quiz

import (
	"encoding/json"
	"math/rand"
	"regexp"
	"slices"
	"sort"
	"strings"
	"time"

	"studydeck/internal/models"
)

// BlankMarker replaces blanked-out terms in fill-in-blank question text.
const BlankMarker = "______"

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "or": {}, "but": {}, "in": {}, "on": {},
	"at": {}, "to": {}, "for": {}, "of": {}, "with": {}, "by": {},
}

// Generator synthesizes quiz questions from flashcards without network
// calls. The random source is injected so tests can seed it.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator returns a generator backed by rng. A nil rng gets a
// time-seeded source.
func NewGenerator(rng *rand.Rand) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Generator{rng: rng}
}

// Generate filters cards by cfg and produces at most
// min(cfg.QuestionCount, matched) questions, cycling through the requested
// question types. An empty filtered set yields an empty sequence, not an
// error. Matching slots with fewer than four cards remaining, and slots for
// types the local generator cannot synthesize, are silently skipped.
func (g *Generator) Generate(cards []models.Flashcard, cfg models.QuizConfig) []models.QuizQuestion {
	filtered := Filter(cards, cfg)
	if len(filtered) == 0 {
		return nil
	}

	shuffled := slices.Clone(filtered)
	g.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	count := min(cfg.QuestionCount, len(shuffled))
	if count < 0 {
		count = 0
	}
	selected := shuffled[:count]

	types := cfg.QuestionTypes
	if len(types) == 0 {
		types = []models.QuestionType{models.MultipleChoice}
	}

	var questions []models.QuizQuestion
	for i, card := range selected {
		switch types[i%len(types)] {
		case models.MultipleChoice:
			questions = append(questions, g.multipleChoice(card, filtered))
		case models.FillInBlank:
			questions = append(questions, g.fillInBlank(card))
		case models.TrueFalse:
			questions = append(questions, g.trueFalse(card, filtered))
		case models.Matching:
			if i+4 <= len(selected) {
				questions = append(questions, g.matching(selected[i:i+4]))
			}
		}
	}
	return questions
}

// multipleChoice builds a four-option question. Distractors come first from
// cards sharing the category or a tag, then from the remaining pool until
// three exist or the pool is exhausted.
func (g *Generator) multipleChoice(card models.Flashcard, pool []models.Flashcard) models.QuizQuestion {
	correct := card.Back

	var related []models.Flashcard
	for _, other := range pool {
		if other.ID == card.ID {
			continue
		}
		if other.Category == card.Category || shareTag(card.Tags, other.Tags) {
			related = append(related, other)
		}
	}
	g.rng.Shuffle(len(related), func(i, j int) {
		related[i], related[j] = related[j], related[i]
	})

	var distractors []string
	for _, other := range related {
		if len(distractors) == 3 {
			break
		}
		distractors = append(distractors, other.Back)
	}

	if len(distractors) < 3 {
		backfill := slices.Clone(pool)
		g.rng.Shuffle(len(backfill), func(i, j int) {
			backfill[i], backfill[j] = backfill[j], backfill[i]
		})
		for _, other := range backfill {
			if len(distractors) == 3 {
				break
			}
			if other.ID == card.ID || slices.Contains(distractors, other.Back) {
				continue
			}
			distractors = append(distractors, other.Back)
		}
	}

	options := append([]string{correct}, distractors...)
	g.rng.Shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
	})

	return models.QuizQuestion{
		ID:            "mc-" + card.ID,
		Type:          models.MultipleChoice,
		CardID:        card.ID,
		Question:      card.Front,
		CorrectAnswer: correct,
		Options:       options,
	}
}

// fillInBlank blanks out key terms of the back text. Tags appearing verbatim
// in the text are preferred; otherwise the two longest non-stopword words
// are used.
func (g *Generator) fillInBlank(card models.Flashcard) models.QuizQuestion {
	text := card.Back

	var terms []string
	for _, tag := range card.Tags {
		if strings.Contains(strings.ToLower(text), strings.ToLower(tag)) {
			terms = append(terms, tag)
		}
	}

	if len(terms) == 0 {
		var candidates []string
		for _, word := range strings.Fields(text) {
			if len(word) <= 3 {
				continue
			}
			if _, stop := stopwords[strings.ToLower(word)]; stop {
				continue
			}
			candidates = append(candidates, word)
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			return len(candidates[i]) > len(candidates[j])
		})
		terms = candidates[:min(2, len(candidates))]
	}

	blanked := text
	var blanks []string
	for _, term := range terms {
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(term) + `\b`)
		if err != nil {
			continue
		}
		if re.MatchString(blanked) {
			blanked = re.ReplaceAllString(blanked, BlankMarker)
			blanks = append(blanks, strings.ToLower(term))
		}
	}

	return models.QuizQuestion{
		ID:            "fib-" + card.ID,
		Type:          models.FillInBlank,
		CardID:        card.ID,
		Question:      card.Front,
		CorrectAnswer: card.Back,
		OriginalText:  blanked,
		Blanks:        blanks,
	}
}

// trueFalse states the back text verbatim half the time. Otherwise it
// corrupts the statement by substituting one long word with a word drawn
// from same-category peers. When no substitution is possible the statement
// is left intact and labeled True rather than mislabeling an unmodified
// statement as false.
func (g *Generator) trueFalse(card models.Flashcard, pool []models.Flashcard) models.QuizQuestion {
	isTrue := g.rng.Float64() > 0.5
	statement := card.Back

	if !isTrue {
		var replacements []string
		for _, other := range pool {
			if other.ID == card.ID || other.Category != card.Category {
				continue
			}
			for _, word := range strings.Fields(other.Back) {
				if len(word) > 3 {
					replacements = append(replacements, word)
				}
			}
		}

		substituted := false
		if len(replacements) > 0 {
			for _, word := range strings.Fields(statement) {
				if len(word) > 4 {
					replacement := replacements[g.rng.Intn(len(replacements))]
					statement = strings.Replace(statement, word, replacement, 1)
					substituted = replacement != word
					break
				}
			}
		}
		if !substituted {
			isTrue = true
		}
	}

	answer := "False"
	if isTrue {
		answer = "True"
	}

	return models.QuizQuestion{
		ID:            "tf-" + card.ID,
		Type:          models.TrueFalse,
		CardID:        card.ID,
		Question:      "True or False: " + statement,
		CorrectAnswer: answer,
	}
}

// matching builds one pair per card and shuffles the right-hand column
// independently of the left. The correct left-to-right mapping is JSON
// encoded for grading.
func (g *Generator) matching(cards []models.Flashcard) models.QuizQuestion {
	correct := make(map[string]string, len(cards))
	rights := make([]string, len(cards))
	ids := make([]string, len(cards))
	for i, card := range cards {
		correct[card.Front] = card.Back
		rights[i] = card.Back
		ids[i] = card.ID
	}

	g.rng.Shuffle(len(rights), func(i, j int) {
		rights[i], rights[j] = rights[j], rights[i]
	})

	pairs := make([]models.MatchPair, len(cards))
	for i, card := range cards {
		pairs[i] = models.MatchPair{Left: card.Front, Right: rights[i], CardID: card.ID}
	}

	encoded, err := json.Marshal(correct)
	if err != nil {
		// map[string]string marshaling cannot fail; keep the question usable
		encoded = []byte("{}")
	}

	return models.QuizQuestion{
		ID:            "match-" + strings.Join(ids, "-"),
		Type:          models.Matching,
		CardID:        cards[0].ID,
		Question:      "Match each question with its correct answer:",
		CorrectAnswer: string(encoded),
		Pairs:         pairs,
	}
}

func shareTag(a, b []string) bool {
	for _, tag := range a {
		if slices.Contains(b, tag) {
			return true
		}
	}
	return false
}
