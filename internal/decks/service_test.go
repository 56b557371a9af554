package decks

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"studydeck/internal/models"
)

const bareArrayDeck = `[
  {"id": "c1", "front": "What is S3?", "back": "Object storage", "subject": "aws", "course": "cloud-101", "category": "Storage", "tags": ["storage"]},
  {"id": "c2", "front": "What is EC2?", "back": "Virtual servers", "subject": "aws", "course": "cloud-101", "category": "Compute"}
]`

const envelopeDeck = `{
  "id": "networking",
  "name": "Networking Fundamentals",
  "course": "net-201",
  "cards": [
    {"id": "n1", "front": "What is DNS?", "back": "Name resolution"}
  ]
}`

func TestParse(t *testing.T) {
	svc := NewService(t.TempDir())

	t.Run("BareCardArray", func(t *testing.T) {
		deck, err := svc.Parse([]byte(bareArrayDeck), "aws-basics")
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}
		if deck.ID != "aws-basics" {
			t.Errorf("Expected fallback id, got %s", deck.ID)
		}
		if deck.Name != "aws basics" {
			t.Errorf("Expected dashes replaced in name, got %q", deck.Name)
		}
		if deck.Course != "cloud-101" {
			t.Errorf("Expected course from first card, got %q", deck.Course)
		}
		if len(deck.Cards) != 2 {
			t.Errorf("Expected 2 cards, got %d", len(deck.Cards))
		}
	})

	t.Run("Envelope", func(t *testing.T) {
		deck, err := svc.Parse([]byte(envelopeDeck), "ignored")
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}
		if deck.ID != "networking" || deck.Name != "Networking Fundamentals" {
			t.Errorf("Expected envelope metadata, got %s / %s", deck.ID, deck.Name)
		}
	})

	t.Run("EmptyDeckRejected", func(t *testing.T) {
		_, err := svc.Parse([]byte(`{"id": "x", "cards": []}`), "x")
		if !errors.Is(err, ErrEmptyDeck) {
			t.Fatalf("Expected ErrEmptyDeck, got %v", err)
		}
	})

	t.Run("CardMissingRequiredFields", func(t *testing.T) {
		_, err := svc.Parse([]byte(`[{"id": "c1", "front": "only front"}]`), "x")
		if err == nil {
			t.Fatal("Expected validation error for card without back")
		}
	})

	t.Run("NotJSON", func(t *testing.T) {
		if _, err := svc.Parse([]byte("plain text"), "x"); err == nil {
			t.Fatal("Expected error for non-JSON input")
		}
	})
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "aws-basics.json"), bareArrayDeck)
	mustWrite(t, filepath.Join(dir, "networking.json"), envelopeDeck)
	mustWrite(t, filepath.Join(dir, "broken.json"), "{nope")
	mustWrite(t, filepath.Join(dir, "readme.txt"), "not a deck")

	svc := NewService(dir)
	if err := svc.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	decks := svc.List()
	if len(decks) != 2 {
		t.Fatalf("Expected 2 decks (invalid file skipped), got %d", len(decks))
	}
	// Sorted by name: "Networking Fundamentals" < "aws basics".
	if decks[0].Name != "Networking Fundamentals" {
		t.Errorf("Expected name-sorted order, got %q first", decks[0].Name)
	}

	t.Run("Get", func(t *testing.T) {
		deck, err := svc.Get("aws-basics")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if len(deck.Cards) != 2 {
			t.Errorf("Expected 2 cards, got %d", len(deck.Cards))
		}
		if _, err := svc.Get("missing"); !errors.Is(err, ErrDeckNotFound) {
			t.Errorf("Expected ErrDeckNotFound, got %v", err)
		}
	})

	t.Run("CardsAcrossAllDecks", func(t *testing.T) {
		cards, err := svc.Cards("")
		if err != nil {
			t.Fatalf("Cards failed: %v", err)
		}
		if len(cards) != 3 {
			t.Errorf("Expected 3 cards total, got %d", len(cards))
		}
	})
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	svc := NewService(dir)

	deck := &models.Deck{
		ID:   "new-deck",
		Name: "New Deck",
		Cards: []models.Flashcard{
			{ID: "c1", Front: "q", Back: "a"},
		},
	}
	if err := svc.Save(deck); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "new-deck.json")); err != nil {
		t.Fatalf("Expected deck file on disk: %v", err)
	}
	if _, err := svc.Get("new-deck"); err != nil {
		t.Errorf("Expected saved deck to be registered: %v", err)
	}

	t.Run("InvalidDeckNotWritten", func(t *testing.T) {
		bad := &models.Deck{ID: "bad", Cards: nil}
		if err := svc.Save(bad); !errors.Is(err, ErrEmptyDeck) {
			t.Fatalf("Expected ErrEmptyDeck, got %v", err)
		}
		if _, err := os.Stat(filepath.Join(dir, "bad.json")); !os.IsNotExist(err) {
			t.Error("Expected no file for invalid deck")
		}
	})
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
