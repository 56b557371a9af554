package analytics

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"studydeck/internal/models"
)

const (
	weakConfidence     = 0.4
	masteredConfidence = 0.8
	weakQuizAccuracy   = 0.6
	minMasteredViews   = 3
)

// FocusArea is one category that needs attention, with a priority derived
// from the share of weak cards in it.
type FocusArea struct {
	Category  string `json:"category"`
	CardCount int    `json:"card_count"`
	Priority  string `json:"priority"`
}

// StudyPlan is the locally generated recommendation set.
type StudyPlan struct {
	GeneratedAt      time.Time   `json:"generated_at"`
	WeakCards        []string    `json:"weak_cards"`
	MasteredCards    []string    `json:"mastered_cards"`
	FocusAreas       []FocusArea `json:"focus_areas"`
	Strategy         string      `json:"recommended_strategy"`
	EstimatedMinutes int         `json:"estimated_time_minutes"`
	NextReviewDate   time.Time   `json:"next_review_date"`
}

// QuizStats aggregates quiz performance across all tracked cards.
type QuizStats struct {
	TotalAttempts    int      `json:"total_attempts"`
	CorrectAnswers   int      `json:"correct_answers"`
	AccuracyRate     float64  `json:"accuracy_rate"`
	AverageTime      float64  `json:"average_time_seconds"`
	WeakCategories   []string `json:"weak_categories"`
	StrongCategories []string `json:"strong_categories"`
}

// Insights summarizes overall study behavior.
type Insights struct {
	TotalStudyTimeSeconds int64   `json:"total_study_time_seconds"`
	CardsStudied          int     `json:"cards_studied"`
	AverageConfidence     float64 `json:"average_confidence"`
	ConfidenceTrend       string  `json:"confidence_trend"`
}

func isWeak(stats CardStats) bool {
	if stats.Confidence < weakConfidence || stats.Flagged {
		return true
	}
	if stats.AnsweredCorrectly != nil && !*stats.AnsweredCorrectly {
		return true
	}
	if stats.QuizAttempts > 0 {
		accuracy := float64(stats.QuizCorrect) / float64(stats.QuizAttempts)
		if accuracy < weakQuizAccuracy {
			return true
		}
	}
	return false
}

func isMastered(stats CardStats) bool {
	return stats.Confidence > masteredConfidence &&
		stats.AnsweredCorrectly != nil && *stats.AnsweredCorrectly &&
		!stats.Flagged &&
		stats.TimesSeen >= minMasteredViews
}

// GenerateStudyPlan builds a plan from the current stats, persists it, and
// returns it.
func (s *Service) GenerateStudyPlan(cards []models.Flashcard) StudyPlan {
	all := s.AllCardStats()
	now := s.now()

	plan := StudyPlan{
		GeneratedAt:   now,
		WeakCards:     []string{},
		MasteredCards: []string{},
		FocusAreas:    []FocusArea{},
	}

	categoryTotals := make(map[string]int)
	weakByCategory := make(map[string]int)
	for _, card := range cards {
		categoryTotals[card.Category]++
		stats, seen := all[card.ID]
		if !seen {
			continue
		}
		if isWeak(stats) {
			plan.WeakCards = append(plan.WeakCards, card.ID)
			weakByCategory[card.Category]++
		} else if isMastered(stats) {
			plan.MasteredCards = append(plan.MasteredCards, card.ID)
		}
	}

	for category, weak := range weakByCategory {
		if category == "" {
			continue
		}
		ratio := float64(weak) / float64(categoryTotals[category])
		priority := "low"
		switch {
		case ratio > 0.5:
			priority = "high"
		case ratio > 0.25:
			priority = "medium"
		}
		plan.FocusAreas = append(plan.FocusAreas, FocusArea{
			Category:  category,
			CardCount: weak,
			Priority:  priority,
		})
	}
	sort.Slice(plan.FocusAreas, func(i, j int) bool {
		if plan.FocusAreas[i].CardCount != plan.FocusAreas[j].CardCount {
			return plan.FocusAreas[i].CardCount > plan.FocusAreas[j].CardCount
		}
		return plan.FocusAreas[i].Category < plan.FocusAreas[j].Category
	})

	plan.Strategy = strategyFor(len(plan.WeakCards), len(cards))
	plan.EstimatedMinutes = max(2*len(plan.WeakCards), 10)
	plan.NextReviewDate = s.nextReviewDate(all, now)

	if payload, err := json.Marshal(plan); err == nil {
		if err := s.store.Set(studyPlanKey, string(payload)); err != nil {
			slog.Warn("failed to persist study plan", "err", err)
		}
	}
	return plan
}

// StoredPlan returns the most recently generated plan, if any.
func (s *Service) StoredPlan() (StudyPlan, bool) {
	raw, ok := s.store.Get(studyPlanKey)
	if !ok {
		return StudyPlan{}, false
	}
	var plan StudyPlan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return StudyPlan{}, false
	}
	return plan, true
}

func strategyFor(weak, total int) string {
	if total == 0 {
		return "Load a deck to start studying."
	}
	ratio := float64(weak) / float64(total)
	switch {
	case ratio > 0.5:
		return "Focus on reviewing fundamentals. Work through weak cards in small batches before attempting quizzes."
	case ratio > 0.2:
		return "Mix targeted review of weak cards with regular quizzes to reinforce what you know."
	case weak > 0:
		return fmt.Sprintf("You're doing well. Clear the remaining %d weak cards, then use quizzes to maintain recall.", weak)
	default:
		return "Strong performance across the board. Use spaced quizzes to keep everything fresh."
	}
}

// nextReviewDate is the earliest scheduled due time across all cards,
// defaulting to tomorrow when nothing is scheduled yet.
func (s *Service) nextReviewDate(all map[string]CardStats, now time.Time) time.Time {
	next := time.Time{}
	for _, stats := range all {
		if stats.Review == nil || stats.Review.Due.IsZero() {
			continue
		}
		if next.IsZero() || stats.Review.Due.Before(next) {
			next = stats.Review.Due
		}
	}
	if next.IsZero() {
		return now.Add(24 * time.Hour)
	}
	return next
}

// QuizStats aggregates attempt counters and per-category accuracy.
func (s *Service) QuizStats(cards []models.Flashcard) QuizStats {
	all := s.AllCardStats()
	out := QuizStats{WeakCategories: []string{}, StrongCategories: []string{}}

	var totalTime int64
	type tally struct{ attempts, correct int }
	byCategory := make(map[string]*tally)
	for _, card := range cards {
		stats, ok := all[card.ID]
		if !ok || stats.QuizAttempts == 0 {
			continue
		}
		out.TotalAttempts += stats.QuizAttempts
		out.CorrectAnswers += stats.QuizCorrect
		totalTime += stats.StudyTimeSeconds
		if card.Category != "" {
			t := byCategory[card.Category]
			if t == nil {
				t = &tally{}
				byCategory[card.Category] = t
			}
			t.attempts += stats.QuizAttempts
			t.correct += stats.QuizCorrect
		}
	}

	if out.TotalAttempts > 0 {
		out.AccuracyRate = float64(out.CorrectAnswers) / float64(out.TotalAttempts)
		out.AverageTime = float64(totalTime) / float64(out.TotalAttempts)
	}

	for category, t := range byCategory {
		accuracy := float64(t.correct) / float64(t.attempts)
		if accuracy < weakQuizAccuracy {
			out.WeakCategories = append(out.WeakCategories, category)
		} else if accuracy >= 0.8 {
			out.StrongCategories = append(out.StrongCategories, category)
		}
	}
	sort.Strings(out.WeakCategories)
	sort.Strings(out.StrongCategories)
	return out
}

// Insights summarizes study time, coverage, and confidence trend.
func (s *Service) Insights() Insights {
	all := s.AllCardStats()
	out := Insights{ConfidenceTrend: "steady"}

	var confidenceSum float64
	var firstSum, lastSum float64
	var trendSamples int
	for _, stats := range all {
		out.TotalStudyTimeSeconds += stats.StudyTimeSeconds
		if stats.TimesSeen > 0 {
			out.CardsStudied++
			confidenceSum += stats.Confidence
		}
		if n := len(stats.ConfidenceHistory); n >= 2 {
			firstSum += stats.ConfidenceHistory[0].Value
			lastSum += stats.ConfidenceHistory[n-1].Value
			trendSamples++
		}
	}
	if out.CardsStudied > 0 {
		out.AverageConfidence = confidenceSum / float64(out.CardsStudied)
	}
	if trendSamples > 0 {
		delta := (lastSum - firstSum) / float64(trendSamples)
		switch {
		case delta > 0.1:
			out.ConfidenceTrend = "improving"
		case delta < -0.1:
			out.ConfidenceTrend = "declining"
		}
	}
	return out
}
