package reader

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"studydeck/internal/store"
)

const (
	studyDataKey   = "study_data"
	preferencesKey = "preferences"
)

// Highlight is a user-created text selection with an optional note,
// anchored by DOM paths supplied by the frontend.
type Highlight struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	StartPath   string `json:"startPath"`
	StartOffset int    `json:"startOffset"`
	EndPath     string `json:"endPath"`
	EndOffset   int    `json:"endOffset"`
	Note        string `json:"note"`
	CreatedAt   int64  `json:"createdAt"`
}

// StudyData holds per-chapter reading progress, bookmarks, and highlights.
type StudyData struct {
	Progress    map[string]string      `json:"progress"` // chapterID -> reading|complete
	Bookmarks   map[string]bool        `json:"bookmarks"`
	Highlights  map[string][]Highlight `json:"highlights"`
	LastVisited string                 `json:"lastVisited"`
}

// Preferences are the reader display settings.
type Preferences struct {
	Theme      string  `json:"theme"`
	FontSize   string  `json:"fontSize"`
	FontFamily string  `json:"fontFamily"`
	LineHeight float64 `json:"lineHeight"`
}

// DefaultPreferences mirrors the frontend defaults.
func DefaultPreferences() Preferences {
	return Preferences{Theme: "auto", FontSize: "med", FontFamily: "default", LineHeight: 1.6}
}

// StudyStore persists study data and preferences in the key-value store.
// Corrupt or missing values fall back to empty defaults rather than errors.
type StudyStore struct {
	store store.Store
}

func NewStudyStore(st store.Store) *StudyStore {
	return &StudyStore{store: st}
}

func (s *StudyStore) StudyData() StudyData {
	data := StudyData{
		Progress:   map[string]string{},
		Bookmarks:  map[string]bool{},
		Highlights: map[string][]Highlight{},
	}
	raw, ok := s.store.Get(studyDataKey)
	if !ok {
		return data
	}
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		slog.Warn("stored study data unreadable, using defaults", "err", err)
	}
	if data.Progress == nil {
		data.Progress = map[string]string{}
	}
	if data.Bookmarks == nil {
		data.Bookmarks = map[string]bool{}
	}
	if data.Highlights == nil {
		data.Highlights = map[string][]Highlight{}
	}
	return data
}

func (s *StudyStore) SaveStudyData(data StudyData) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode study data: %w", err)
	}
	if err := s.store.Set(studyDataKey, string(payload)); err != nil {
		return fmt.Errorf("persist study data: %w", err)
	}
	return nil
}

func (s *StudyStore) Preferences() Preferences {
	prefs := DefaultPreferences()
	raw, ok := s.store.Get(preferencesKey)
	if !ok {
		return prefs
	}
	if err := json.Unmarshal([]byte(raw), &prefs); err != nil {
		slog.Warn("stored preferences unreadable, using defaults", "err", err)
		return DefaultPreferences()
	}
	return prefs
}

func (s *StudyStore) SavePreferences(prefs Preferences) error {
	payload, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	if err := s.store.Set(preferencesKey, string(payload)); err != nil {
		return fmt.Errorf("persist preferences: %w", err)
	}
	return nil
}
