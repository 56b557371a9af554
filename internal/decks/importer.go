package decks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"

	"studydeck/internal/ai"
	"studydeck/internal/models"
)

// ProgressCallback reports import progress for frontend polling.
type ProgressCallback func(step, message string, current, total int)

const (
	importPagesPerChunk = 4
	importMaxAttempts   = 3
)

// Importer builds a deck from a PDF document: page text is extracted
// locally, then sent chunk by chunk to the completion collaborator, which
// returns flashcard JSON.
type Importer struct {
	decks     *Service
	completer ai.Completer
}

func NewImporter(decks *Service, completer ai.Completer) *Importer {
	return &Importer{decks: decks, completer: completer}
}

// ImportPDF extracts the document text, generates cards per chunk of pages,
// and saves the result as a new deck. Chunks whose generation fails after
// the retry budget are skipped with a log entry; the import fails only when
// no chunk yields cards.
func (im *Importer) ImportPDF(ctx context.Context, deckID, name, pdfPath string, progress ProgressCallback) (*models.Deck, error) {
	if progress == nil {
		progress = func(string, string, int, int) {}
	}

	progress("extract", "Extracting text from PDF", 0, 100)
	pages, err := extractPages(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}
	if len(pages) == 0 {
		return nil, errors.New("pdf has no extractable text")
	}

	chunks := chunkPages(pages, importPagesPerChunk)
	var cards []models.Flashcard
	for i, chunk := range chunks {
		progress("generate", fmt.Sprintf("Generating cards from pages %d-%d of %d", chunk.start, chunk.end, len(pages)), 10+80*i/len(chunks), 100)

		generated, err := im.generateCards(ctx, name, chunk.text)
		if err != nil {
			slog.Warn("pdf import chunk failed", "deck", deckID, "pages", fmt.Sprintf("%d-%d", chunk.start, chunk.end), "err", err)
			continue
		}
		for _, card := range generated {
			card.ID = fmt.Sprintf("%s-%03d", deckID, len(cards)+1)
			card.Course = name
			cards = append(cards, card)
		}
	}

	if len(cards) == 0 {
		return nil, errors.New("no flashcards could be generated from the document")
	}

	deck := &models.Deck{ID: deckID, Name: name, Course: name, Cards: cards}
	progress("save", "Saving deck", 95, 100)
	if err := im.decks.Save(deck); err != nil {
		return nil, err
	}
	progress("complete", fmt.Sprintf("Imported %d cards", len(cards)), 100, 100)
	return deck, nil
}

func (im *Importer) generateCards(ctx context.Context, course, text string) ([]models.Flashcard, error) {
	prompt := buildImportPrompt(course, text)

	var lastErr error
	for attempt := 1; attempt <= importMaxAttempts; attempt++ {
		raw, err := im.completer.Complete(ctx, prompt)
		if err != nil {
			lastErr = err
			continue
		}
		cards, err := parseImportResponse(raw)
		if err != nil {
			lastErr = err
			continue
		}
		if len(cards) > 0 {
			return cards, nil
		}
		lastErr = errors.New("response contained no usable cards")
	}
	return nil, lastErr
}

type importedCard struct {
	Front    string   `json:"front"`
	Back     string   `json:"back"`
	Subject  string   `json:"subject"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
}

func parseImportResponse(raw string) ([]models.Flashcard, error) {
	jsonStr := ai.ExtractJSONArray(raw)

	var parsed []importedCard
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal imported cards: %w", err)
	}

	var cards []models.Flashcard
	for _, card := range parsed {
		if strings.TrimSpace(card.Front) == "" || strings.TrimSpace(card.Back) == "" {
			continue
		}
		cards = append(cards, models.Flashcard{
			Front:    card.Front,
			Back:     card.Back,
			Subject:  card.Subject,
			Category: card.Category,
			Tags:     card.Tags,
		})
	}
	return cards, nil
}

func buildImportPrompt(course, text string) string {
	return fmt.Sprintf(`You are an expert educator creating flashcards for the course %q from document excerpts.

Respond with JSON [{"front":"","back":"","subject":"","category":"","tags":[]}].
Ensure flashcards are atomic, unambiguous, and use active recall.
Only make flashcards of information that is relevant to a potential exam.
Return ONLY the JSON array.

Document text:
%s`, course, text)
}

type pageChunk struct {
	start int
	end   int
	text  string
}

func chunkPages(pages []string, size int) []pageChunk {
	var chunks []pageChunk
	for i := 0; i < len(pages); i += size {
		end := min(i+size, len(pages))
		chunks = append(chunks, pageChunk{
			start: i + 1,
			end:   end,
			text:  strings.Join(pages[i:end], "\n\n"),
		})
	}
	return chunks
}

func extractPages(path string) ([]string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var pages []string
	for num := 1; num <= r.NumPage(); num++ {
		page := r.Page(num)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			slog.Warn("skipping unreadable pdf page", "page", num, "err", err)
			continue
		}
		if strings.TrimSpace(text) != "" {
			pages = append(pages, text)
		}
	}
	return pages, nil
}
