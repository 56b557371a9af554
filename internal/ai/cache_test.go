package ai

import (
	"testing"

	"studydeck/internal/models"
	"studydeck/internal/store"
)

func TestCacheKey(t *testing.T) {
	cache := NewCache(store.NewMemoryStore())

	t.Run("OrderIndependent", func(t *testing.T) {
		a := cache.Key("deck-1", models.QuizConfig{
			Subjects:      []string{"aws", "networking"},
			Tags:          []string{"storage", "compute"},
			QuestionCount: 10,
		})
		b := cache.Key("deck-1", models.QuizConfig{
			Subjects:      []string{"networking", "aws"},
			Tags:          []string{"compute", "storage"},
			QuestionCount: 10,
		})
		if a != b {
			t.Fatalf("Expected identical keys for permuted lists, got %s and %s", a, b)
		}
	})

	t.Run("CountChangesKey", func(t *testing.T) {
		a := cache.Key("deck-1", models.QuizConfig{Subjects: []string{"aws"}, QuestionCount: 10})
		b := cache.Key("deck-1", models.QuizConfig{Subjects: []string{"aws"}, QuestionCount: 20})
		if a == b {
			t.Fatal("Expected different keys for different question counts")
		}
	})

	t.Run("DeckChangesKey", func(t *testing.T) {
		cfg := models.QuizConfig{QuestionCount: 10}
		a := cache.Key("deck-1", cfg)
		b := cache.Key("deck-2", cfg)
		if a == b {
			t.Fatal("Expected different keys for the same config on different decks")
		}
	})

	t.Run("NilAndEmptyListsEquivalent", func(t *testing.T) {
		a := cache.Key("deck-1", models.QuizConfig{QuestionCount: 5})
		b := cache.Key("deck-1", models.QuizConfig{Subjects: []string{}, QuestionCount: 5})
		if a != b {
			t.Fatalf("Expected nil and empty allow-lists to hash identically, got %s and %s", a, b)
		}
	})
}

func TestCacheRoundTrip(t *testing.T) {
	st := store.NewMemoryStore()
	cache := NewCache(st)
	questions := []models.QuizQuestion{
		{ID: "ai-mc-c1-1", Type: models.MultipleChoice, CardID: "c1", Question: "?", CorrectAnswer: "a", Options: []string{"a", "b", "c", "d"}},
	}

	key := cache.Key("deck-1", models.QuizConfig{Subjects: []string{"aws"}, QuestionCount: 1})

	if _, ok := cache.Get(key); ok {
		t.Fatal("Expected miss before Put")
	}

	cache.Put(key, questions)
	got, ok := cache.Get(key)
	if !ok {
		t.Fatal("Expected hit after Put")
	}
	if len(got) != 1 || got[0].ID != questions[0].ID {
		t.Fatalf("Expected cached question back, got %v", got)
	}
}

func TestCacheDegradedStorage(t *testing.T) {
	t.Run("MalformedValueIsMiss", func(t *testing.T) {
		st := store.NewMemoryStore()
		cache := NewCache(st)
		if err := st.Set(cacheKeyPrefix+"bad", "{not json"); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if _, ok := cache.Get("bad"); ok {
			t.Fatal("Expected malformed value to read as a miss")
		}
	})

	t.Run("EmptyQuestionListIsMiss", func(t *testing.T) {
		st := store.NewMemoryStore()
		cache := NewCache(st)
		if err := st.Set(cacheKeyPrefix+"empty", "[]"); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if _, ok := cache.Get("empty"); ok {
			t.Fatal("Expected empty cached list to read as a miss")
		}
	})

	t.Run("WriteFailureSwallowed", func(t *testing.T) {
		st := store.NewMemoryStore()
		st.FailWrites = true
		cache := NewCache(st)

		// Must not panic or error; the store simply never learns the value.
		cache.Put("key", []models.QuizQuestion{{ID: "q"}})
		if _, ok := cache.Get("key"); ok {
			t.Fatal("Expected miss after failed write")
		}
	})
}
