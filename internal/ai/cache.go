package ai

import (
	"encoding/json"
	"hash/fnv"
	"log/slog"
	"slices"
	"strconv"

	"studydeck/internal/models"
	"studydeck/internal/store"
)

const cacheKeyPrefix = "ai-quiz-cache-"

// Cache memoizes AI-generated question sets by a deterministic hash of the
// normalized quiz configuration, avoiding redundant collaborator calls for
// repeated identical requests. Entries never expire; storage failures read
// as a miss.
type Cache struct {
	store store.Store
}

func NewCache(st store.Store) *Cache {
	return &Cache{store: st}
}

// Key derives an order-independent hash of the deck and configuration: each
// list field is sorted before serialization, so permuted allow-lists hash
// identically. The deck id is part of the payload since the same filter
// config selects different cards in different decks. Hash collisions
// silently serve the wrong cached result, an accepted limitation of the
// design.
func (c *Cache) Key(deckID string, cfg models.QuizConfig) string {
	normalized := struct {
		DeckID        string   `json:"deckId"`
		Subjects      []string `json:"subjects"`
		Courses       []string `json:"courses"`
		Modules       []string `json:"modules"`
		Categories    []string `json:"categories"`
		Tags          []string `json:"tags"`
		QuestionCount int      `json:"questionCount"`
	}{
		DeckID:        deckID,
		Subjects:      sortedClone(cfg.Subjects),
		Courses:       sortedClone(cfg.Courses),
		Modules:       sortedClone(cfg.Modules),
		Categories:    sortedClone(cfg.Categories),
		Tags:          sortedClone(cfg.Tags),
		QuestionCount: cfg.QuestionCount,
	}

	payload, err := json.Marshal(normalized)
	if err != nil {
		payload = []byte(strconv.Itoa(cfg.QuestionCount))
	}

	h := fnv.New32a()
	h.Write(payload)
	return strconv.FormatUint(uint64(h.Sum32()), 36)
}

// Get returns the cached question set for key, or ok=false on a missing
// key, storage unavailability, or a malformed stored value.
func (c *Cache) Get(key string) ([]models.QuizQuestion, bool) {
	raw, ok := c.store.Get(cacheKeyPrefix + key)
	if !ok {
		return nil, false
	}
	var questions []models.QuizQuestion
	if err := json.Unmarshal([]byte(raw), &questions); err != nil {
		slog.Warn("cached quiz unreadable, treating as miss", "key", key, "err", err)
		return nil, false
	}
	if len(questions) == 0 {
		return nil, false
	}
	return questions, true
}

// Put stores the question set, overwriting silently. Write failures are
// logged and swallowed so a full store never breaks generation.
func (c *Cache) Put(key string, questions []models.QuizQuestion) {
	payload, err := json.Marshal(questions)
	if err != nil {
		slog.Warn("failed to encode quiz for cache", "key", key, "err", err)
		return
	}
	if err := c.store.Set(cacheKeyPrefix+key, string(payload)); err != nil {
		slog.Warn("failed to cache quiz", "key", key, "err", err)
	}
}

func sortedClone(values []string) []string {
	cloned := slices.Clone(values)
	slices.Sort(cloned)
	if cloned == nil {
		cloned = []string{}
	}
	return cloned
}
