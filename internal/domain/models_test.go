package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestAnswerValueAcceptsLooseClientShapes(t *testing.T) {
	cases := map[string]AnswerValue{
		`"o2"`:      ScalarAnswer("o2"),
		`true`:      ScalarAnswer("true"),
		`3`:         ScalarAnswer("3"),
		`["a","c"]`: SetAnswer("a", "c"),
		`[]`:        SetAnswer(),
		`null`:      {},
	}
	for raw, want := range cases {
		var got AnswerValue
		if err := json.Unmarshal([]byte(raw), &got); err != nil {
			t.Fatalf("%s: %v", raw, err)
		}
		if got.IsSet != want.IsSet || got.Scalar != want.Scalar || len(got.Set) != len(want.Set) {
			t.Fatalf("%s: got %+v, want %+v", raw, got, want)
		}
	}

	var bad AnswerValue
	if err := json.Unmarshal([]byte(`[1,2]`), &bad); !errors.Is(err, ErrAnswerShape) {
		t.Fatalf("expected shape error for numeric set, got %v", err)
	}
	if err := json.Unmarshal([]byte(`{"a":1}`), &bad); !errors.Is(err, ErrAnswerShape) {
		t.Fatalf("expected shape error for object, got %v", err)
	}
}

func TestAnswerValueMarshalsByShape(t *testing.T) {
	out, _ := json.Marshal(SetAnswer())
	if string(out) != "[]" {
		t.Fatalf("empty set should marshal as [], got %s", out)
	}
	out, _ = json.Marshal(ScalarAnswer("Paris"))
	if string(out) != `"Paris"` {
		t.Fatalf("scalar should marshal as string, got %s", out)
	}
	if ScalarAnswer("").Values() != nil {
		t.Fatalf("empty scalar has no values")
	}
}

func TestSessionRosterHelpers(t *testing.T) {
	s := Session{
		Roster:      []string{"a", "b", "c"},
		Order:       []OrderEntry{{ItemID: "q1"}, {ItemID: "s1"}},
		CurrentItem: "s1",
	}
	clone := s.Clone()
	if !clone.RemovePlayer("b") || clone.RemovePlayer("b") {
		t.Fatalf("remove should succeed once")
	}
	if len(s.Roster) != 3 || s.Roster[1] != "b" {
		t.Fatalf("clone must not alias the roster, original %v", s.Roster)
	}
	if !s.HasPlayer("c") || clone.HasPlayer("b") {
		t.Fatalf("unexpected membership")
	}
	if s.Position() != 1 {
		t.Fatalf("expected position 1, got %d", s.Position())
	}
	s.CurrentItem = ""
	if s.Position() != -1 {
		t.Fatalf("expected -1 without a current item")
	}
}

func TestErrorKinds(t *testing.T) {
	kinds := map[error]error{
		ErrSessionNotFound:    ErrNotFound,
		ErrPlayerNotInSession: ErrNotFound,
		ErrAnswerWindowClosed: ErrInvalidState,
		ErrEmptyQuiz:          ErrValidation,
		ErrJoinCodeTaken:      ErrConflict,
	}
	for err, kind := range kinds {
		if !errors.Is(err, kind) {
			t.Fatalf("%v should be a %v", err, kind)
		}
	}
}
