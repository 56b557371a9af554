package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"studydeck/internal/models"
)

// Explanation is the structured teaching feedback generated for an
// incorrectly answered question.
type Explanation struct {
	QuestionID                 string   `json:"questionId"`
	CorrectAnswerExplanation   string   `json:"correctAnswerExplanation"`
	IncorrectAnswerExplanation string   `json:"incorrectAnswerExplanation"`
	CommonMisconceptions       []string `json:"commonMisconceptions"`
	KeyLearningPoints          []string `json:"keyLearningPoints"`
	RelatedConcepts            []string `json:"relatedConcepts"`
}

// Explainer produces per-question explanations through the completion
// collaborator.
type Explainer struct {
	completer Completer
}

func NewExplainer(completer Completer) *Explainer {
	return &Explainer{completer: completer}
}

// Explain asks the collaborator why the user's answer to question is wrong
// and what the correct reasoning is. One parse failure is reattempted; the
// second failure is returned to the caller.
func (e *Explainer) Explain(ctx context.Context, question models.QuizQuestion, userAnswer string) (*Explanation, error) {
	prompt := buildExplanationPrompt(question, userAnswer)

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		raw, err := e.completer.Complete(ctx, prompt)
		if err != nil {
			return nil, fmt.Errorf("request explanation: %w", err)
		}

		var explanation Explanation
		jsonStr := extractJSONObject(raw)
		if err := json.Unmarshal([]byte(jsonStr), &explanation); err != nil {
			lastErr = fmt.Errorf("unmarshal explanation json: %w", err)
			continue
		}
		if explanation.CorrectAnswerExplanation == "" {
			lastErr = fmt.Errorf("explanation response missing required fields")
			continue
		}
		explanation.QuestionID = question.ID
		return &explanation, nil
	}
	return nil, lastErr
}

func buildExplanationPrompt(question models.QuizQuestion, userAnswer string) string {
	var options strings.Builder
	for i, option := range question.Options {
		fmt.Fprintf(&options, "%c. %s\n", 'A'+i, option)
	}

	return fmt.Sprintf(`You are an expert educator. A student answered a quiz question incorrectly and needs a detailed explanation to understand their mistake and learn the correct concept.

**Question:** %s

**Answer Options:**
%s
**Student's Answer:** %s
**Correct Answer:** %s

Please provide a comprehensive explanation that helps the student learn. Return your response as valid JSON in this exact format:

{
  "correctAnswerExplanation": "Detailed explanation of why the correct answer is right, including the underlying concepts and reasoning",
  "incorrectAnswerExplanation": "Specific explanation of why the student's chosen answer is wrong, addressing the misconception",
  "commonMisconceptions": ["Common misconception 1", "Common misconception 2"],
  "keyLearningPoints": ["Key concept 1", "Key concept 2"],
  "relatedConcepts": ["Related concept 1", "Related concept 2"]
}

Guidelines:
- Be encouraging and educational, not condescending
- Focus on understanding concepts, not just memorization
- Explain the logic and reasoning behind answers
- Address why the incorrect answer might seem plausible
- Keep explanations clear and concise but thorough`,
		sanitizeForPrompt(question.Question, 400),
		options.String(),
		sanitizeForPrompt(userAnswer, 200),
		sanitizeForPrompt(question.CorrectAnswer, 200),
	)
}
