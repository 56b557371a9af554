package quiz

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"studydeck/internal/models"
)

var (
	// ErrEmptyQuiz is returned when a session is constructed without questions.
	ErrEmptyQuiz = errors.New("quiz has no questions")
	// ErrSessionComplete is returned for submissions after the terminal state.
	ErrSessionComplete = errors.New("quiz session already complete")
)

// Session drives single-question-at-a-time presentation and scoring over a
// generated question sequence, independent of how the questions were
// produced. It is not safe for concurrent use; callers serialize access.
type Session struct {
	questions []models.QuizQuestion
	answers   []models.QuizAnswer
	index     int
	complete  bool
	result    *models.QuizResult

	now             func() time.Time
	startedAt       time.Time
	questionStarted time.Time
}

// NewSession starts a session presenting the first question.
func NewSession(questions []models.QuizQuestion) (*Session, error) {
	return newSessionAt(questions, time.Now)
}

func newSessionAt(questions []models.QuizQuestion, now func() time.Time) (*Session, error) {
	if len(questions) == 0 {
		return nil, ErrEmptyQuiz
	}
	start := now()
	return &Session{
		questions:       questions,
		answers:         make([]models.QuizAnswer, 0, len(questions)),
		now:             now,
		startedAt:       start,
		questionStarted: start,
	}, nil
}

// CurrentQuestion returns the question awaiting an answer, or ok=false once
// the session is complete.
func (s *Session) CurrentQuestion() (models.QuizQuestion, bool) {
	if s.complete {
		return models.QuizQuestion{}, false
	}
	return s.questions[s.index], true
}

// Index reports the zero-based position of the current question.
func (s *Session) Index() int { return s.index }

// Total reports the number of questions in the session.
func (s *Session) Total() int { return len(s.questions) }

// Complete reports whether the session reached its terminal state.
func (s *Session) Complete() bool { return s.complete }

// Result returns the aggregate once the session is complete.
func (s *Session) Result() (*models.QuizResult, bool) {
	if s.result == nil {
		return nil, false
	}
	return s.result, true
}

// Submit grades the answer for the current question, appends it, and
// advances to the next question or the terminal state.
func (s *Session) Submit(answer models.Answer) (models.QuizAnswer, error) {
	if s.complete {
		return models.QuizAnswer{}, ErrSessionComplete
	}

	question := s.questions[s.index]
	if err := answer.Validate(question.Type); err != nil {
		return models.QuizAnswer{}, err
	}

	correct, err := Grade(question, answer)
	if err != nil {
		return models.QuizAnswer{}, fmt.Errorf("grade question %s: %w", question.ID, err)
	}

	submittedAt := s.now()
	graded := models.QuizAnswer{
		QuestionID: question.ID,
		UserAnswer: answer,
		IsCorrect:  correct,
		TimeSpent:  submittedAt.Sub(s.questionStarted).Milliseconds(),
	}
	s.answers = append(s.answers, graded)

	if s.index == len(s.questions)-1 {
		s.complete = true
		s.result = s.aggregate(submittedAt)
	} else {
		s.index++
		s.questionStarted = submittedAt
	}
	return graded, nil
}

func (s *Session) aggregate(completedAt time.Time) *models.QuizResult {
	score := 0
	for _, answer := range s.answers {
		if answer.IsCorrect {
			score++
		}
	}
	return &models.QuizResult{
		Score:          score,
		TotalQuestions: len(s.questions),
		Percentage:     int(math.Round(float64(score) / float64(len(s.questions)) * 100)),
		Answers:        s.answers,
		Questions:      s.questions,
		TimeSpent:      completedAt.Sub(s.startedAt).Milliseconds(),
		CompletedAt:    completedAt,
	}
}

// Grade evaluates a submitted answer against a question using the
// type-specific correctness rule.
func Grade(question models.QuizQuestion, answer models.Answer) (bool, error) {
	switch question.Type {
	case models.MultipleChoice, models.TrueFalse:
		return answer.Text == question.CorrectAnswer, nil

	case models.MultipleResponse:
		expected, err := models.DecodeCorrectSet(question.CorrectAnswer)
		if err != nil {
			return false, err
		}
		// Set equality over the deduplicated selection: repeats of one
		// correct option must not stand in for another.
		selected := make(map[string]struct{}, len(answer.List))
		for _, item := range answer.List {
			selected[item] = struct{}{}
		}
		if len(selected) != len(expected) {
			return false, nil
		}
		for item := range selected {
			if _, ok := expected[item]; !ok {
				return false, nil
			}
		}
		return true, nil

	case models.FillInBlank:
		return gradeFillInBlank(question.Blanks, answer.Text), nil

	case models.Matching:
		expected, err := models.DecodeCorrectMatches(question.CorrectAnswer)
		if err != nil {
			return false, err
		}
		for left, right := range expected {
			if answer.Matches[left] != right {
				return false, nil
			}
		}
		return true, nil

	default:
		return false, fmt.Errorf("unknown question type %q", question.Type)
	}
}

// gradeFillInBlank accepts the answer when every required blank term loosely
// matches some user token: either contains the other, case-insensitively.
// Intentionally forgiving of minor phrasing differences.
func gradeFillInBlank(blanks []string, text string) bool {
	tokens := strings.Fields(strings.ToLower(text))
	for _, blank := range blanks {
		matched := false
		for _, token := range tokens {
			if strings.Contains(token, blank) || strings.Contains(blank, token) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}
