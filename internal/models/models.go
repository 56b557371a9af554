package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Difficulty is a normalized difficulty tier. Deck files use two vocabularies
// (easy/medium/hard and Beginner/Intermediate/Advanced); both map onto the
// same three tiers.
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// NormalizeDifficulty maps either difficulty vocabulary onto a tier. Unknown
// or empty values normalize to intermediate.
func NormalizeDifficulty(raw string) Difficulty {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "easy", "beginner":
		return DifficultyBeginner
	case "hard", "advanced", "expert":
		return DifficultyAdvanced
	default:
		return DifficultyIntermediate
	}
}

// Flashcard is a front/back question-answer unit with classification
// metadata. Cards are immutable once loaded from a deck.
type Flashcard struct {
	ID         string   `json:"id" validate:"required"`
	Front      string   `json:"front" validate:"required"`
	Back       string   `json:"back" validate:"required"`
	Example    string   `json:"example,omitempty"`
	Mnemonic   string   `json:"mnemonic,omitempty"`
	Category   string   `json:"category"`
	Subject    string   `json:"subject"`
	Course     string   `json:"course"`
	Module     string   `json:"module"`
	Difficulty string   `json:"difficulty,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

// Deck is a named collection of flashcards loaded from a JSON file.
type Deck struct {
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	Course string      `json:"course"`
	Cards  []Flashcard `json:"cards"`
}

// QuestionType enumerates the quiz question shapes.
type QuestionType string

const (
	MultipleChoice   QuestionType = "multiple-choice"
	MultipleResponse QuestionType = "multiple-response"
	TrueFalse        QuestionType = "true-false"
	FillInBlank      QuestionType = "fill-in-blank"
	Matching         QuestionType = "matching"
)

// QuizConfig is the filter selection plus requested count/type mix for a
// single quiz request. Empty allow-lists impose no constraint.
type QuizConfig struct {
	Subjects      []string       `json:"subjects"`
	Courses       []string       `json:"courses"`
	Modules       []string       `json:"modules"`
	Categories    []string       `json:"categories"`
	Tags          []string       `json:"tags"`
	QuestionTypes []QuestionType `json:"questionTypes"`
	QuestionCount int            `json:"questionCount"`
}

// MatchPair is one left/right entry of a matching question. Right holds the
// shuffled display value, not the answer for Left.
type MatchPair struct {
	Left   string `json:"left"`
	Right  string `json:"right"`
	CardID string `json:"cardId"`
}

// QuizQuestion is a generated question. CorrectAnswer encoding varies by
// type: the answer text for multiple-choice and true-false, a JSON array of
// option strings for multiple-response, and a JSON left-to-right map for
// matching. Questions are never mutated after creation.
type QuizQuestion struct {
	ID            string       `json:"id"`
	Type          QuestionType `json:"type"`
	CardID        string       `json:"cardId"`
	Question      string       `json:"question"`
	CorrectAnswer string       `json:"correctAnswer"`
	Options       []string     `json:"options,omitempty"`
	Blanks        []string     `json:"blanks,omitempty"`
	OriginalText  string       `json:"originalText,omitempty"`
	Pairs         []MatchPair  `json:"pairs,omitempty"`
}

// AnswerKind tags the shape of a submitted answer.
type AnswerKind string

const (
	AnswerText    AnswerKind = "text"
	AnswerList    AnswerKind = "list"
	AnswerMatches AnswerKind = "matches"
)

// Answer is the tagged union of user answer shapes: free text or a selected
// option, a selected option set, or a left-to-right matching assignment.
type Answer struct {
	Kind    AnswerKind        `json:"kind"`
	Text    string            `json:"text,omitempty"`
	List    []string          `json:"list,omitempty"`
	Matches map[string]string `json:"matches,omitempty"`
}

// TextAnswer builds a free-text or single-choice answer.
func TextAnswer(text string) Answer {
	return Answer{Kind: AnswerText, Text: text}
}

// ListAnswer builds a multiple-response answer.
func ListAnswer(options ...string) Answer {
	return Answer{Kind: AnswerList, List: options}
}

// MatchAnswer builds a matching answer.
func MatchAnswer(matches map[string]string) Answer {
	return Answer{Kind: AnswerMatches, Matches: matches}
}

// Empty reports whether the answer carries no content for its kind.
func (a Answer) Empty() bool {
	switch a.Kind {
	case AnswerList:
		return len(a.List) == 0
	case AnswerMatches:
		return len(a.Matches) == 0
	default:
		return strings.TrimSpace(a.Text) == ""
	}
}

// Validate checks that the answer shape matches the question type.
func (a Answer) Validate(t QuestionType) error {
	switch t {
	case MultipleResponse:
		if a.Kind != AnswerList {
			return fmt.Errorf("question type %s requires a list answer, got %s", t, a.Kind)
		}
	case Matching:
		if a.Kind != AnswerMatches {
			return fmt.Errorf("question type %s requires a matches answer, got %s", t, a.Kind)
		}
	default:
		if a.Kind != AnswerText {
			return fmt.Errorf("question type %s requires a text answer, got %s", t, a.Kind)
		}
	}
	return nil
}

// QuizAnswer records one graded submission. Created exactly once per
// question per session.
type QuizAnswer struct {
	QuestionID string `json:"questionId"`
	UserAnswer Answer `json:"userAnswer"`
	IsCorrect  bool   `json:"isCorrect"`
	TimeSpent  int64  `json:"timeSpent"` // milliseconds
}

// QuizResult is the immutable aggregate produced when a session completes.
type QuizResult struct {
	Score          int            `json:"score"`
	TotalQuestions int            `json:"totalQuestions"`
	Percentage     int            `json:"percentage"`
	Answers        []QuizAnswer   `json:"answers"`
	Questions      []QuizQuestion `json:"questions"`
	TimeSpent      int64          `json:"timeSpent"` // milliseconds
	CompletedAt    time.Time      `json:"completedAt"`
}

// DecodeCorrectSet decodes a multiple-response correct answer into a set.
func DecodeCorrectSet(encoded string) (map[string]struct{}, error) {
	var options []string
	if err := json.Unmarshal([]byte(encoded), &options); err != nil {
		return nil, fmt.Errorf("decode correct option set: %w", err)
	}
	set := make(map[string]struct{}, len(options))
	for _, opt := range options {
		set[opt] = struct{}{}
	}
	return set, nil
}

// DecodeCorrectMatches decodes a matching correct answer into a
// left-to-right map.
func DecodeCorrectMatches(encoded string) (map[string]string, error) {
	var matches map[string]string
	if err := json.Unmarshal([]byte(encoded), &matches); err != nil {
		return nil, fmt.Errorf("decode correct matches: %w", err)
	}
	return matches, nil
}
