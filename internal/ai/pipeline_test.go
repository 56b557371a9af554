package ai

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"studydeck/internal/models"
)

// fakeCompleter scripts responses per prompt, keyed by a card id the prompt
// is expected to contain.
type fakeCompleter struct {
	respond func(prompt string) (string, error)
	calls   int
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	f.calls++
	return f.respond(prompt)
}

func testPipeline(completer Completer) *Pipeline {
	p := NewPipeline(completer, rand.New(rand.NewSource(42)))
	p.batchDelay = 0
	p.nowMillis = func() int64 { return 1700000000000 }
	return p
}

func batchCards(subject string, n int) []models.Flashcard {
	cards := make([]models.Flashcard, n)
	for i := range cards {
		cards[i] = models.Flashcard{
			ID:      fmt.Sprintf("%s-%d", subject, i+1),
			Front:   fmt.Sprintf("Question %d about %s?", i+1, subject),
			Back:    fmt.Sprintf("Answer %d", i+1),
			Subject: subject,
			Course:  "course-1",
		}
	}
	return cards
}

func validResponse(cardID string) string {
	return fmt.Sprintf(`[
  {
    "question": "Generated question for %s?",
    "choices": ["Right", "Wrong 1", "Wrong 2", "Wrong 3"],
    "correct_answer": "Right",
    "difficulty": "intermediate",
    "metadata": {"subject": "s", "course": "c", "category": "", "original_card_id": "%s"}
  }
]`, cardID, cardID)
}

func TestPipelineGenerate(t *testing.T) {
	t.Run("EmptyFilterShortCircuits", func(t *testing.T) {
		completer := &fakeCompleter{respond: func(string) (string, error) {
			t.Fatal("Completer must not be called for an empty filtered set")
			return "", nil
		}}
		p := testPipeline(completer)

		questions, errs := p.Generate(context.Background(), batchCards("aws", 3), models.QuizConfig{
			Subjects: []string{"other"},
		}, nil)

		if len(questions) != 0 {
			t.Fatalf("Expected no questions, got %d", len(questions))
		}
		if len(errs) != 1 || errs[0] != "No cards match the selected filters" {
			t.Fatalf("Expected the no-match message, got %v", errs)
		}
	})

	t.Run("ZeroQuestionCountShortCircuits", func(t *testing.T) {
		completer := &fakeCompleter{respond: func(string) (string, error) {
			t.Fatal("Completer must not be called for a zero question count")
			return "", nil
		}}
		p := testPipeline(completer)

		for _, count := range []int{0, -3} {
			questions, errs := p.Generate(context.Background(), batchCards("aws", 8), models.QuizConfig{
				QuestionCount: count,
			}, nil)

			if len(questions) != 0 {
				t.Fatalf("Expected no questions for count %d, got %d", count, len(questions))
			}
			if len(errs) != 0 {
				t.Fatalf("Expected no errors for count %d, got %v", count, errs)
			}
		}
		if completer.calls != 0 {
			t.Fatalf("Expected zero completer calls, got %d", completer.calls)
		}
	})

	t.Run("GroupsBySubjectAndCourse", func(t *testing.T) {
		var prompts []string
		completer := &fakeCompleter{respond: func(prompt string) (string, error) {
			prompts = append(prompts, prompt)
			return validResponse("x"), nil
		}}
		p := testPipeline(completer)

		cards := append(batchCards("aws", 2), batchCards("networking", 2)...)
		p.Generate(context.Background(), cards, models.QuizConfig{QuestionCount: 4}, nil)

		if len(prompts) != 2 {
			t.Fatalf("Expected 2 batches for 2 subject-course groups, got %d", len(prompts))
		}
		for _, prompt := range prompts {
			if strings.Contains(prompt, "aws") && strings.Contains(prompt, "networking") {
				t.Error("Expected each batch prompt to cover a single group")
			}
		}
	})

	t.Run("PartialFailureKeepsOtherBatches", func(t *testing.T) {
		// Three single-card groups become three batches. The middle one
		// always fails; the others succeed.
		completer := &fakeCompleter{respond: func(prompt string) (string, error) {
			switch {
			case strings.Contains(prompt, "beta-1"):
				return "", errors.New("model overloaded")
			case strings.Contains(prompt, "alpha-1"):
				return validResponse("alpha-1"), nil
			default:
				return validResponse("gamma-1"), nil
			}
		}}
		p := testPipeline(completer)

		cards := []models.Flashcard{
			batchCards("alpha", 1)[0],
			batchCards("beta", 1)[0],
			batchCards("gamma", 1)[0],
		}
		questions, errs := p.Generate(context.Background(), cards, models.QuizConfig{QuestionCount: 3}, nil)

		if len(questions) != 2 {
			t.Fatalf("Expected 2 questions from surviving batches, got %d", len(questions))
		}
		if len(errs) != 1 {
			t.Fatalf("Expected exactly 1 batch error, got %v", errs)
		}
		if !strings.Contains(errs[0], "model overloaded") {
			t.Errorf("Expected last attempt error in message, got %q", errs[0])
		}
	})

	t.Run("RetriesUpToBudget", func(t *testing.T) {
		completer := &fakeCompleter{respond: func(string) (string, error) {
			return "", errors.New("boom")
		}}
		p := testPipeline(completer)

		_, errs := p.Generate(context.Background(), batchCards("aws", 2), models.QuizConfig{QuestionCount: 2}, nil)

		if completer.calls != p.maxAttempts {
			t.Fatalf("Expected %d attempts for one batch, got %d", p.maxAttempts, completer.calls)
		}
		if len(errs) != 1 {
			t.Fatalf("Expected 1 error, got %v", errs)
		}
	})

	t.Run("ProgressReachesCompletion", func(t *testing.T) {
		completer := &fakeCompleter{respond: func(string) (string, error) {
			return validResponse("aws-1"), nil
		}}
		p := testPipeline(completer)

		var statuses []string
		var last float64
		p.Generate(context.Background(), batchCards("aws", 2), models.QuizConfig{QuestionCount: 2},
			func(progress float64, status string) {
				statuses = append(statuses, status)
				last = progress
			})

		if last != 1 {
			t.Errorf("Expected final progress 1, got %f", last)
		}
		if len(statuses) < 2 {
			t.Fatalf("Expected start and completion statuses, got %v", statuses)
		}
		if statuses[len(statuses)-1] != "AI quiz generation complete!" {
			t.Errorf("Unexpected final status %q", statuses[len(statuses)-1])
		}
	})

	t.Run("QuestionIDsCarryCardAndTimestamp", func(t *testing.T) {
		completer := &fakeCompleter{respond: func(string) (string, error) {
			return validResponse("aws-1"), nil
		}}
		p := testPipeline(completer)

		questions, _ := p.Generate(context.Background(), batchCards("aws", 1), models.QuizConfig{QuestionCount: 1}, nil)
		if len(questions) != 1 {
			t.Fatalf("Expected 1 question, got %d", len(questions))
		}
		if questions[0].ID != "ai-mc-aws-1-1700000000000" {
			t.Errorf("Unexpected question id %s", questions[0].ID)
		}
		if questions[0].CardID != "aws-1" {
			t.Errorf("Expected card id aws-1, got %s", questions[0].CardID)
		}
	})
}

func TestParseQuizResponse(t *testing.T) {
	t.Run("StripsMarkdownFences", func(t *testing.T) {
		fenced := "```json\n" + validResponse("c1") + "\n```"
		parsed := parseQuizResponse(fenced)
		if len(parsed) != 1 {
			t.Fatalf("Expected 1 question from fenced response, got %d", len(parsed))
		}
	})

	t.Run("DiscardsInvalidEntries", func(t *testing.T) {
		mixed := `[
  {"question": "", "choices": ["a","b","c","d"], "correct_answer": "a", "difficulty": "easy", "metadata": {"original_card_id": "c1"}},
  {"question": "q", "choices": ["a","b","c"], "correct_answer": "a", "difficulty": "easy", "metadata": {"original_card_id": "c2"}},
  {"question": "q", "choices": ["a","b","c","d"], "correct_answer": "z", "difficulty": "easy", "metadata": {"original_card_id": "c3"}},
  {"question": "q", "choices": ["a","b","c","d"], "correct_answer": "a", "difficulty": "", "metadata": {"original_card_id": "c4"}},
  {"question": "q", "choices": ["a","b","c","d"], "correct_answer": "a", "difficulty": "easy", "metadata": {"original_card_id": ""}},
  {"question": "q", "choices": ["a","b","c","d"], "correct_answer": "a", "difficulty": "easy", "metadata": {"original_card_id": "keep"}}
]`
		parsed := parseQuizResponse(mixed)
		if len(parsed) != 1 {
			t.Fatalf("Expected 1 surviving question, got %d", len(parsed))
		}
		if parsed[0].Metadata.OriginalCardID != "keep" {
			t.Errorf("Expected the valid entry to survive, got %s", parsed[0].Metadata.OriginalCardID)
		}
	})

	t.Run("ProseAroundArrayTolerated", func(t *testing.T) {
		wrapped := "Here are your questions:\n" + validResponse("c1") + "\nEnjoy!"
		parsed := parseQuizResponse(wrapped)
		if len(parsed) != 1 {
			t.Fatalf("Expected 1 question from wrapped response, got %d", len(parsed))
		}
	})

	t.Run("GarbageYieldsNothing", func(t *testing.T) {
		if parsed := parseQuizResponse("not json at all"); len(parsed) != 0 {
			t.Fatalf("Expected no questions, got %d", len(parsed))
		}
	})
}
