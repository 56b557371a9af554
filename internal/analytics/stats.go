// Package analytics tracks per-card learning statistics, quiz history, and
// spaced repetition scheduling over the key-value store.
package analytics

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	fsrs "github.com/open-spaced-repetition/go-fsrs"

	"studydeck/internal/models"
	"studydeck/internal/store"
)

const (
	statsKey       = "flashcard_stats"
	studyPlanKey   = "study_plan"
	quizHistoryKey = "quiz_history"

	maxConfidenceHistory = 30
	maxQuizHistory       = 50
)

// ConfidencePoint is one dated confidence sample.
type ConfidencePoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// CardStats is the per-card learning record. AnsweredCorrectly is nil until
// the card has been quizzed at least once.
type CardStats struct {
	Confidence        float64           `json:"confidence"`
	Flagged           bool              `json:"flagged"`
	TimesSeen         int               `json:"times_seen"`
	AnsweredCorrectly *bool             `json:"answered_correctly"`
	LastSeen          time.Time         `json:"last_seen"`
	Known             bool              `json:"known,omitempty"`
	ConfidenceHistory []ConfidencePoint `json:"confidence_history,omitempty"`
	QuizAttempts      int               `json:"quiz_attempts"`
	QuizCorrect       int               `json:"quiz_correct"`
	StudyTimeSeconds  int64             `json:"study_time_seconds"`
	Review            *fsrs.Card        `json:"review,omitempty"`
}

// Service reads and writes learning statistics. It is accessed from a
// single request-serving context; writes use read-modify-write over the
// whole stats map, matching the storage contract's last-write-wins model.
type Service struct {
	store  store.Store
	params fsrs.Parameters
	now    func() time.Time
}

func NewService(st store.Store) *Service {
	return &Service{
		store:  st,
		params: fsrs.DefaultParam(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func defaultStats(now time.Time) CardStats {
	return CardStats{Confidence: 0.5, LastSeen: now}
}

// CardStats returns the record for one card, initializing defaults for
// unseen cards.
func (s *Service) CardStats(cardID string) CardStats {
	all := s.AllCardStats()
	if stats, ok := all[cardID]; ok {
		return stats
	}
	return defaultStats(s.now())
}

// AllCardStats returns the full stats map. A missing or corrupt stored
// value reads as empty.
func (s *Service) AllCardStats() map[string]CardStats {
	all := make(map[string]CardStats)
	raw, ok := s.store.Get(statsKey)
	if !ok {
		return all
	}
	if err := json.Unmarshal([]byte(raw), &all); err != nil {
		slog.Warn("stored card stats unreadable, starting fresh", "err", err)
		return make(map[string]CardStats)
	}
	return all
}

func (s *Service) update(cardID string, mutate func(*CardStats)) {
	all := s.AllCardStats()
	stats, ok := all[cardID]
	if !ok {
		stats = defaultStats(s.now())
	}

	before := stats.Confidence
	mutate(&stats)
	stats.TimesSeen++
	stats.LastSeen = s.now()

	if stats.Confidence != before {
		stats.ConfidenceHistory = append(stats.ConfidenceHistory, ConfidencePoint{
			Date:  s.now().Format("2006-01-02"),
			Value: stats.Confidence,
		})
		if len(stats.ConfidenceHistory) > maxConfidenceHistory {
			stats.ConfidenceHistory = stats.ConfidenceHistory[len(stats.ConfidenceHistory)-maxConfidenceHistory:]
		}
	}

	all[cardID] = stats
	s.persist(all)
}

func (s *Service) persist(all map[string]CardStats) {
	payload, err := json.Marshal(all)
	if err != nil {
		slog.Warn("failed to encode card stats", "err", err)
		return
	}
	if err := s.store.Set(statsKey, string(payload)); err != nil {
		// Persistence failures are diagnostics, never fatal.
		slog.Warn("failed to persist card stats", "err", err)
	}
}

// TrackQuizAnswer records one graded quiz answer: attempt counters,
// confidence nudges (+0.1 correct, -0.15 wrong, clamped to [0,1]), study
// time, and the spaced repetition schedule.
func (s *Service) TrackQuizAnswer(cardID string, isCorrect bool, timeSpent time.Duration) {
	rating := fsrs.Again
	if isCorrect {
		rating = fsrs.Good
	}
	s.update(cardID, func(stats *CardStats) {
		stats.QuizAttempts++
		if isCorrect {
			stats.QuizCorrect++
			stats.Confidence = min(stats.Confidence+0.1, 1.0)
		} else {
			stats.Confidence = max(stats.Confidence-0.15, 0.0)
		}
		correct := isCorrect
		stats.AnsweredCorrectly = &correct
		stats.StudyTimeSeconds += int64(timeSpent.Seconds())
		s.reschedule(stats, rating)
	})
}

// TrackCardFlip accumulates study time for a flashcard flip.
func (s *Service) TrackCardFlip(cardID string, timeSpent time.Duration) {
	if timeSpent <= 0 {
		timeSpent = 5 * time.Second
	}
	s.update(cardID, func(stats *CardStats) {
		stats.StudyTimeSeconds += int64(timeSpent.Seconds())
	})
}

// TrackConfidence records an explicit self-assessed confidence rating.
func (s *Service) TrackConfidence(cardID string, confidence float64) {
	s.update(cardID, func(stats *CardStats) {
		stats.Confidence = min(max(confidence, 0), 1)
	})
}

// TrackFlag toggles the review flag on a card.
func (s *Service) TrackFlag(cardID string, flagged bool) {
	s.update(cardID, func(stats *CardStats) {
		stats.Flagged = flagged
	})
}

// ReviewCard applies an explicit spaced repetition rating and returns the
// next due time.
func (s *Service) ReviewCard(cardID string, rating fsrs.Rating) (time.Time, error) {
	var due time.Time
	var schedErr error
	s.update(cardID, func(stats *CardStats) {
		if err := s.rescheduleChecked(stats, rating); err != nil {
			schedErr = err
			return
		}
		due = stats.Review.Due
	})
	if schedErr != nil {
		return time.Time{}, schedErr
	}
	return due, nil
}

func (s *Service) reschedule(stats *CardStats, rating fsrs.Rating) {
	if err := s.rescheduleChecked(stats, rating); err != nil {
		slog.Warn("fsrs reschedule failed", "err", err)
	}
}

func (s *Service) rescheduleChecked(stats *CardStats, rating fsrs.Rating) error {
	card := fsrs.NewCard()
	if stats.Review != nil {
		card = *stats.Review
	}
	scheduling := s.params.Repeat(card, s.now())
	info, ok := scheduling[rating]
	if !ok {
		return fmt.Errorf("rating %d not supported", rating)
	}
	next := info.Card
	stats.Review = &next
	return nil
}

// ParseRating maps the API rating vocabulary onto FSRS ratings.
func ParseRating(raw string) (fsrs.Rating, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "again":
		return fsrs.Again, nil
	case "hard":
		return fsrs.Hard, nil
	case "good":
		return fsrs.Good, nil
	case "easy":
		return fsrs.Easy, nil
	default:
		return 0, fmt.Errorf("unknown rating %q", raw)
	}
}

// RecordQuizResult tracks every answer of a completed quiz and appends the
// result to the bounded quiz history.
func (s *Service) RecordQuizResult(result models.QuizResult) {
	cardByQuestion := make(map[string]string, len(result.Questions))
	for _, question := range result.Questions {
		cardByQuestion[question.ID] = question.CardID
	}
	for _, answer := range result.Answers {
		cardID, ok := cardByQuestion[answer.QuestionID]
		if !ok || cardID == "" {
			continue
		}
		s.TrackQuizAnswer(cardID, answer.IsCorrect, time.Duration(answer.TimeSpent)*time.Millisecond)
	}

	var history []models.QuizResult
	if raw, ok := s.store.Get(quizHistoryKey); ok {
		if err := json.Unmarshal([]byte(raw), &history); err != nil {
			slog.Warn("stored quiz history unreadable, starting fresh", "err", err)
			history = nil
		}
	}
	history = append(history, result)
	if len(history) > maxQuizHistory {
		history = history[len(history)-maxQuizHistory:]
	}
	if payload, err := json.Marshal(history); err == nil {
		if err := s.store.Set(quizHistoryKey, string(payload)); err != nil {
			slog.Warn("failed to persist quiz history", "err", err)
		}
	}
}

// QuizHistory returns the stored results, newest last.
func (s *Service) QuizHistory() []models.QuizResult {
	raw, ok := s.store.Get(quizHistoryKey)
	if !ok {
		return nil
	}
	var history []models.QuizResult
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		return nil
	}
	return history
}

// ClearAll removes stats, plan, and history data.
func (s *Service) ClearAll() {
	for _, key := range []string{statsKey, studyPlanKey, quizHistoryKey} {
		if err := s.store.Remove(key); err != nil {
			slog.Warn("failed to clear analytics key", "key", key, "err", err)
		}
	}
}
