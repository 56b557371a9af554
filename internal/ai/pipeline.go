package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"slices"
	"strings"
	"time"

	"studydeck/internal/models"
	"studydeck/internal/quiz"
)

const (
	defaultBatchSize   = 6
	defaultMaxAttempts = 3
	defaultBatchDelay  = 500 * time.Millisecond
)

// ProgressFunc reports fractional pipeline progress in [0,1] with a
// human-readable status string.
type ProgressFunc func(progress float64, status string)

// Pipeline generates multiple-choice quiz questions from flashcards through
// the text-completion collaborator. Batches are processed strictly
// sequentially with a fixed inter-batch delay to bound the request rate.
// The pipeline never panics past its boundary: callers always receive a
// questions/errors pair.
type Pipeline struct {
	completer Completer
	rng       *rand.Rand

	batchSize   int
	maxAttempts int
	batchDelay  time.Duration
	nowMillis   func() int64
}

// NewPipeline returns a pipeline with the default batch size, retry budget,
// and inter-batch delay. A nil rng gets a time-seeded source.
func NewPipeline(completer Completer, rng *rand.Rand) *Pipeline {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Pipeline{
		completer:   completer,
		rng:         rng,
		batchSize:   defaultBatchSize,
		maxAttempts: defaultMaxAttempts,
		batchDelay:  defaultBatchDelay,
		nowMillis:   func() int64 { return time.Now().UnixMilli() },
	}
}

// Generate filters cards by cfg, samples up to cfg.QuestionCount of them,
// and produces questions batch by batch. Partial failure is not fatal:
// failed batches are recorded as error strings and the remaining batches
// still contribute questions.
func (p *Pipeline) Generate(ctx context.Context, cards []models.Flashcard, cfg models.QuizConfig, onProgress ProgressFunc) ([]models.QuizQuestion, []string) {
	filtered := quiz.Filter(cards, cfg)
	if len(filtered) == 0 {
		return nil, []string{"No cards match the selected filters"}
	}
	if cfg.QuestionCount <= 0 {
		return nil, nil
	}

	sampled := slices.Clone(filtered)
	p.rng.Shuffle(len(sampled), func(i, j int) {
		sampled[i], sampled[j] = sampled[j], sampled[i]
	})
	if cfg.QuestionCount < len(sampled) {
		sampled = sampled[:cfg.QuestionCount]
	}

	batches := p.buildBatches(sampled)

	var questions []models.QuizQuestion
	var errs []string
	report := func(progress float64, status string) {
		if onProgress != nil {
			onProgress(progress, status)
		}
	}

	report(0, "Starting AI quiz generation...")
	for i, batch := range batches {
		report(float64(i)/float64(len(batches)), fmt.Sprintf("Processing batch %d of %d...", i+1, len(batches)))

		batchQuestions, err := p.processBatch(ctx, batch)
		if err != nil {
			slog.Warn("ai quiz batch failed", "batch", i+1, "err", err)
			errs = append(errs, fmt.Sprintf("Batch %d: %s", i+1, err))
		} else {
			questions = append(questions, batchQuestions...)
		}

		// Fixed delay between batches to avoid collaborator rate limiting.
		if i < len(batches)-1 {
			time.Sleep(p.batchDelay)
		}
	}
	report(1, "AI quiz generation complete!")

	return questions, errs
}

// buildBatches groups the sampled cards by subject+course so each prompt
// stays contextually coherent, then chunks each group into fixed-size
// batches. Batch order follows first appearance of each group.
func (p *Pipeline) buildBatches(cards []models.Flashcard) [][]models.Flashcard {
	groups := make(map[string][]models.Flashcard)
	var order []string
	for _, card := range cards {
		key := card.Subject + "-" + card.Course
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], card)
	}

	var batches [][]models.Flashcard
	for _, key := range order {
		group := groups[key]
		for start := 0; start < len(group); start += p.batchSize {
			end := min(start+p.batchSize, len(group))
			batches = append(batches, group[start:end])
		}
	}
	return batches
}

// processBatch runs one batch through the collaborator with the retry
// budget. A call that fails or yields zero valid questions is retried; the
// last attempt's failure becomes the batch error.
func (p *Pipeline) processBatch(ctx context.Context, batch []models.Flashcard) ([]models.QuizQuestion, error) {
	prompt := buildQuizPrompt(batch)

	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		raw, err := p.completer.Complete(ctx, prompt)
		if err != nil {
			lastErr = err
			continue
		}

		parsed := parseQuizResponse(raw)
		if len(parsed) > 0 {
			return p.convert(parsed), nil
		}
		lastErr = fmt.Errorf("failed to parse valid questions from AI response")
	}
	return nil, lastErr
}

func (p *Pipeline) convert(raw []rawQuestion) []models.QuizQuestion {
	questions := make([]models.QuizQuestion, 0, len(raw))
	for _, q := range raw {
		questions = append(questions, models.QuizQuestion{
			// Timestamp suffix keeps ids unique across repeated
			// generations of the same card.
			ID:            fmt.Sprintf("ai-mc-%s-%d", q.Metadata.OriginalCardID, p.nowMillis()),
			Type:          models.MultipleChoice,
			CardID:        q.Metadata.OriginalCardID,
			Question:      q.Question,
			CorrectAnswer: q.CorrectAnswer,
			Options:       q.Choices,
		})
	}
	return questions
}

type rawQuestion struct {
	Question      string   `json:"question"`
	Choices       []string `json:"choices"`
	CorrectAnswer string   `json:"correct_answer"`
	Difficulty    string   `json:"difficulty"`
	Metadata      struct {
		Subject        string `json:"subject"`
		Course         string `json:"course"`
		Category       string `json:"category"`
		OriginalCardID string `json:"original_card_id"`
	} `json:"metadata"`
}

func (q rawQuestion) valid() bool {
	return q.Question != "" &&
		len(q.Choices) == 4 &&
		q.CorrectAnswer != "" &&
		slices.Contains(q.Choices, q.CorrectAnswer) &&
		q.Difficulty != "" &&
		q.Metadata.OriginalCardID != ""
}

// parseQuizResponse parses the collaborator response as a JSON array after
// stripping any markdown fences, and discards entries failing validation.
func parseQuizResponse(responseText string) []rawQuestion {
	jsonStr := ExtractJSONArray(responseText)

	var parsed []rawQuestion
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		slog.Warn("ai quiz response not parseable", "err", err)
		return nil
	}

	valid := parsed[:0]
	for _, q := range parsed {
		if q.valid() {
			valid = append(valid, q)
		}
	}
	return valid
}

func buildQuizPrompt(cards []models.Flashcard) string {
	var list strings.Builder
	for i, card := range cards {
		difficulty := card.Difficulty
		if difficulty == "" {
			difficulty = string(models.DifficultyIntermediate)
		}
		fmt.Fprintf(&list, `
%d. Subject: %s
   Course: %s
   Category: %s
   Question: %s
   Answer: %s
   Difficulty: %s
   Card ID: %s`,
			i+1,
			sanitizeForPrompt(card.Subject, 120),
			sanitizeForPrompt(card.Course, 120),
			sanitizeForPrompt(card.Category, 120),
			sanitizeForPrompt(card.Front, 300),
			sanitizeForPrompt(card.Back, 300),
			difficulty,
			card.ID,
		)
	}

	return fmt.Sprintf(`You are an expert quiz generator. Below are %d flashcards. For each, generate a high-quality multiple-choice quiz question.

Instructions:
- Rephrase the flashcard question into a clear, engaging quiz-style question
- Use the flashcard answer as the correct answer (may rephrase for clarity)
- Create 3 plausible, challenging distractors that are related but clearly wrong
- Match the original flashcard difficulty level, or use "intermediate" if not specified
- Ensure distractors are from the same domain/context as the correct answer
- Return ONLY valid JSON in the exact format shown below

### Flashcards:
%s

### Required Output Format (JSON only):
[
  {
    "question": "Clear, engaging multiple-choice question",
    "choices": ["Option A", "Option B", "Option C", "Option D"],
    "correct_answer": "Exact text of correct choice",
    "difficulty": "beginner | intermediate | expert",
    "metadata": {
      "subject": "subject from flashcard",
      "course": "course from flashcard",
      "category": "category from flashcard",
      "original_card_id": "card id from flashcard"
    }
  }
]`, len(cards), list.String())
}
