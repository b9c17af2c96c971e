package postgres

import (
	"testing"

	"github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/domain"
)

func TestDecodeQuizInfersItemKinds(t *testing.T) {
	raw := []byte(`{
		"title": "Mixed",
		"items": [
			{"id": "q1", "questionKind": "true_false", "prompt": "Sky is blue", "correctAnswer": "true", "timerSeconds": 10, "basePoints": 5},
			{"id": "s1", "prompt": "Break"},
			{"id": "s2", "kind": "slide", "questionKind": "poll", "prompt": "Explicit kinds win"}
		]
	}`)
	quiz, err := decodeQuiz("quiz-9", raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if quiz.ID != "quiz-9" {
		t.Fatalf("expected row id to win, got %q", quiz.ID)
	}
	want := []domain.ItemKind{domain.ItemQuestion, domain.ItemSlide, domain.ItemSlide}
	for i, kind := range want {
		if quiz.Items[i].Kind != kind {
			t.Fatalf("item %d: expected %s, got %s", i, kind, quiz.Items[i].Kind)
		}
	}
}

func TestDecodeQuizRejectsGarbage(t *testing.T) {
	if _, err := decodeQuiz("quiz-9", []byte(`{"items": 3}`)); err == nil {
		t.Fatalf("expected decode error")
	}
}
