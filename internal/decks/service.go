// Package decks loads and validates flashcard deck files. A deck file is
// either a bare JSON array of cards or an envelope with id/name/course
// metadata; both shapes occur in the static assets.
package decks

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"studydeck/internal/models"
)

var (
	// ErrDeckNotFound indicates the requested deck id is not loaded.
	ErrDeckNotFound = errors.New("deck not found")
	// ErrEmptyDeck indicates a deck file with no cards.
	ErrEmptyDeck = errors.New("deck cannot be empty")
)

// Service loads decks from a directory of JSON files and serves them from
// memory. Reload is cheap; the card data itself is immutable once loaded.
type Service struct {
	dir      string
	validate *validator.Validate

	mu    sync.RWMutex
	decks map[string]*models.Deck
}

func NewService(dir string) *Service {
	return &Service{
		dir:      dir,
		validate: validator.New(),
		decks:    make(map[string]*models.Deck),
	}
}

// Load scans the deck directory and replaces the in-memory deck set.
// Unreadable or invalid files are logged and skipped, matching the
// permissive loader behavior the frontend relies on.
func (s *Service) Load() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read decks dir %s: %w", s.dir, err)
	}

	loaded := make(map[string]*models.Deck)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		deck, err := s.loadFile(path)
		if err != nil {
			slog.Warn("skipping deck file", "path", path, "err", err)
			continue
		}
		loaded[deck.ID] = deck
	}

	s.mu.Lock()
	s.decks = loaded
	s.mu.Unlock()
	return nil
}

func (s *Service) loadFile(path string) (*models.Deck, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read deck: %w", err)
	}

	deck, err := s.Parse(data, deckIDFromPath(path))
	if err != nil {
		return nil, err
	}
	return deck, nil
}

// Parse decodes and validates deck JSON in either supported shape. The
// fallback id names the deck when the envelope carries none.
func (s *Service) Parse(data []byte, fallbackID string) (*models.Deck, error) {
	var cards []models.Flashcard
	if err := json.Unmarshal(data, &cards); err == nil {
		deck := &models.Deck{
			ID:    fallbackID,
			Name:  strings.ReplaceAll(strings.ReplaceAll(fallbackID, "-", " "), "_", " "),
			Cards: cards,
		}
		if len(cards) > 0 {
			deck.Course = cards[0].Course
		}
		return deck, s.validateDeck(deck)
	}

	var deck models.Deck
	if err := json.Unmarshal(data, &deck); err != nil {
		return nil, fmt.Errorf("invalid deck format, expected array of cards or object with cards array: %w", err)
	}
	if deck.ID == "" {
		deck.ID = fallbackID
	}
	if deck.Name == "" {
		deck.Name = deck.ID
	}
	if deck.Course == "" && len(deck.Cards) > 0 {
		deck.Course = deck.Cards[0].Course
	}
	return &deck, s.validateDeck(&deck)
}

func (s *Service) validateDeck(deck *models.Deck) error {
	if len(deck.Cards) == 0 {
		return ErrEmptyDeck
	}
	for i := range deck.Cards {
		if err := s.validate.Struct(&deck.Cards[i]); err != nil {
			return fmt.Errorf("card %d: each card must have id, front, and back properties: %w", i, err)
		}
	}
	return nil
}

// Save validates and persists a deck file, then registers the deck.
func (s *Service) Save(deck *models.Deck) error {
	if err := s.validateDeck(deck); err != nil {
		return err
	}

	payload, err := json.MarshalIndent(deck, "", "  ")
	if err != nil {
		return fmt.Errorf("encode deck %s: %w", deck.ID, err)
	}
	path := filepath.Join(s.dir, deck.ID+".json")
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("write deck %s: %w", deck.ID, err)
	}

	s.mu.Lock()
	s.decks[deck.ID] = deck
	s.mu.Unlock()
	return nil
}

// Get returns the deck by id.
func (s *Service) Get(id string) (*models.Deck, error) {
	s.mu.RLock()
	deck, ok := s.decks[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrDeckNotFound
	}
	return deck, nil
}

// List returns all loaded decks sorted by name.
func (s *Service) List() []*models.Deck {
	s.mu.RLock()
	decks := make([]*models.Deck, 0, len(s.decks))
	for _, deck := range s.decks {
		decks = append(decks, deck)
	}
	s.mu.RUnlock()

	sort.Slice(decks, func(i, j int) bool { return decks[i].Name < decks[j].Name })
	return decks
}

// Cards returns the card collection of one deck, or of every deck when id
// is empty.
func (s *Service) Cards(id string) ([]models.Flashcard, error) {
	if id != "" {
		deck, err := s.Get(id)
		if err != nil {
			return nil, err
		}
		return deck.Cards, nil
	}

	var cards []models.Flashcard
	for _, deck := range s.List() {
		cards = append(cards, deck.Cards...)
	}
	return cards, nil
}

func deckIDFromPath(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".json")
}
