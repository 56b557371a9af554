package decks

import (
	"context"
	"errors"
	"testing"
)

type scriptedCompleter struct {
	responses []string
	errs      []error
	calls     int
}

func (s *scriptedCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return "", errors.New("no scripted response")
}

func TestParseImportResponse(t *testing.T) {
	t.Run("ValidCards", func(t *testing.T) {
		cards, err := parseImportResponse(`[
  {"front": "What is DNS?", "back": "Name resolution", "subject": "networking", "category": "Naming", "tags": ["dns"]},
  {"front": "", "back": "dropped, no front"},
  {"front": "dropped, no back", "back": "  "}
]`)
		if err != nil {
			t.Fatalf("parseImportResponse failed: %v", err)
		}
		if len(cards) != 1 {
			t.Fatalf("Expected 1 usable card, got %d", len(cards))
		}
		if cards[0].Front != "What is DNS?" || cards[0].Subject != "networking" {
			t.Errorf("Unexpected card %+v", cards[0])
		}
	})

	t.Run("FencedResponse", func(t *testing.T) {
		cards, err := parseImportResponse("```json\n[{\"front\": \"q\", \"back\": \"a\"}]\n```")
		if err != nil {
			t.Fatalf("parseImportResponse failed: %v", err)
		}
		if len(cards) != 1 {
			t.Fatalf("Expected 1 card from fenced response, got %d", len(cards))
		}
	})

	t.Run("NotAnArray", func(t *testing.T) {
		if _, err := parseImportResponse("sorry, I cannot help"); err == nil {
			t.Fatal("Expected error for unparsable response")
		}
	})
}

func TestGenerateCardsRetries(t *testing.T) {
	t.Run("RecoversAfterTransientFailure", func(t *testing.T) {
		completer := &scriptedCompleter{
			errs:      []error{errors.New("overloaded"), nil},
			responses: []string{"", `[{"front": "q", "back": "a"}]`},
		}
		im := NewImporter(NewService(t.TempDir()), completer)

		cards, err := im.generateCards(context.Background(), "course", "text")
		if err != nil {
			t.Fatalf("generateCards failed: %v", err)
		}
		if len(cards) != 1 {
			t.Fatalf("Expected 1 card, got %d", len(cards))
		}
		if completer.calls != 2 {
			t.Errorf("Expected 2 attempts, got %d", completer.calls)
		}
	})

	t.Run("ExhaustsBudget", func(t *testing.T) {
		boom := errors.New("boom")
		completer := &scriptedCompleter{errs: []error{boom, boom, boom}}
		im := NewImporter(NewService(t.TempDir()), completer)

		if _, err := im.generateCards(context.Background(), "course", "text"); !errors.Is(err, boom) {
			t.Fatalf("Expected last error returned, got %v", err)
		}
		if completer.calls != importMaxAttempts {
			t.Errorf("Expected %d attempts, got %d", importMaxAttempts, completer.calls)
		}
	})
}

func TestChunkPages(t *testing.T) {
	pages := []string{"p1", "p2", "p3", "p4", "p5"}
	chunks := chunkPages(pages, 2)

	if len(chunks) != 3 {
		t.Fatalf("Expected 3 chunks, got %d", len(chunks))
	}
	if chunks[0].start != 1 || chunks[0].end != 2 {
		t.Errorf("Unexpected first chunk range %d-%d", chunks[0].start, chunks[0].end)
	}
	if chunks[2].start != 5 || chunks[2].end != 5 {
		t.Errorf("Unexpected last chunk range %d-%d", chunks[2].start, chunks[2].end)
	}
	if chunks[0].text != "p1\n\np2" {
		t.Errorf("Unexpected chunk text %q", chunks[0].text)
	}
}
