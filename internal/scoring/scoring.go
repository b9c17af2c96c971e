// Package scoring turns a submitted answer into correctness and points.
package scoring

import (
	"strings"

	"github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/domain"
)

// Result is the outcome of scoring one answer.
type Result struct {
	IsCorrect bool
	Points    float64
}

// TimeBonus is the unused part of the question timer, never negative.
func TimeBonus(question domain.Item, timeTaken float64) float64 {
	bonus := float64(question.TimerSeconds) - timeTaken
	if bonus < 0 {
		return 0
	}
	return bonus
}

// Score evaluates value against question. Points are fractional for
// multi-select partial credit and are not rounded.
func Score(question domain.Item, value domain.AnswerValue, timeTaken float64) (Result, error) {
	switch question.QuestionKind {
	case domain.MultipleChoice, domain.TrueFalse, domain.Poll:
		return scoreSingle(question, value, timeTaken, false), nil
	case domain.FreeText:
		return scoreSingle(question, value, timeTaken, true), nil
	case domain.MultiSelect:
		return scoreMulti(question, value, timeTaken), nil
	default:
		return Result{}, domain.ErrUnsupportedQuestion
	}
}

func scoreSingle(question domain.Item, value domain.AnswerValue, timeTaken float64, foldCase bool) Result {
	submitted := value.Scalar
	if foldCase {
		submitted = strings.TrimSpace(submitted)
	}
	for _, correct := range question.CorrectValues() {
		match := submitted == correct
		if foldCase {
			match = strings.EqualFold(submitted, strings.TrimSpace(correct))
		}
		if match {
			return Result{IsCorrect: true, Points: question.BasePoints + TimeBonus(question, timeTaken)}
		}
	}
	return Result{}
}

func scoreMulti(question domain.Item, value domain.AnswerValue, timeTaken float64) Result {
	correctSet := make(map[string]struct{})
	for _, v := range question.CorrectValues() {
		correctSet[v] = struct{}{}
	}

	seen := make(map[string]struct{}, len(value.Set))
	correctCount, wrongCount := 0, 0
	for _, v := range value.Set {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		if _, ok := correctSet[v]; ok {
			correctCount++
		} else {
			wrongCount++
		}
	}

	ratio := 0.0
	if len(correctSet) > 0 {
		ratio = float64(correctCount) / float64(len(correctSet))
	}
	// The time bonus is granted in full even for partial credit.
	points := ratio*question.BasePoints + TimeBonus(question, timeTaken)

	return Result{
		IsCorrect: len(correctSet) > 0 && wrongCount == 0 && correctCount == len(correctSet),
		Points:    points,
	}
}
