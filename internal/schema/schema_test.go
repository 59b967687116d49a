package schema

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestValidateKey(t *testing.T) {
	cases := []struct {
		docType, docKey string
		ok              bool
	}{
		{"day", "2026-03-10", true},
		{"day", "2026-3-10", false},
		{"day", "today", false},
		{"week", "2026-W11", true},
		{"week", "2026-11", false},
		{"month", "2026-03", true},
		{"month", "2026-03-10", false},
		{"quarter", "2026-Q1", true},
		{"quarter", "2026-Q5", false},
		{"year", "2026", false},
	}
	for _, tc := range cases {
		err := ValidateKey(tc.docType, tc.docKey)
		if tc.ok && err != nil {
			t.Errorf("ValidateKey(%s, %s) = %v, want nil", tc.docType, tc.docKey, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("ValidateKey(%s, %s) = nil, want error", tc.docType, tc.docKey)
		}
	}
}

func TestDefaultContentValidates(t *testing.T) {
	for _, docType := range []string{"day", "week", "month", "quarter"} {
		if err := Validate(docType, DefaultContent(docType)); err != nil {
			t.Errorf("default %s content is invalid: %v", docType, err)
		}
	}
}

func TestValidateDayTopThreeCount(t *testing.T) {
	content, _ := json.Marshal(DayContent{TopThree: []Task{{Title: "a"}, {Title: "b"}}})

	err := Validate("day", content)
	if err == nil {
		t.Fatal("expected error for two top-three tasks")
	}
	if !strings.Contains(err.Error(), "topThree") {
		t.Fatalf("error does not name topThree: %v", err)
	}
}

func TestValidateDayPomodoroBounds(t *testing.T) {
	day := DayContent{
		OneThing: Task{Title: "ship", PlannedPomodoros: 17},
		TopThree: []Task{{}, {DonePomodoros: -1}, {}},
	}
	content, _ := json.Marshal(day)

	err := Validate("day", content)
	var schemaErr *Error
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if len(schemaErr.Issues) != 2 {
		t.Fatalf("got %d issues, want 2: %v", len(schemaErr.Issues), schemaErr.Issues)
	}
	if schemaErr.Issues[0].Field != "oneThing.plannedPomodoros" {
		t.Errorf("first issue field = %s", schemaErr.Issues[0].Field)
	}
	if schemaErr.Issues[1].Field != "topThree[1].donePomodoros" {
		t.Errorf("second issue field = %s", schemaErr.Issues[1].Field)
	}
}

func TestValidateRejectsUnknownFields(t *testing.T) {
	if err := Validate("day", json.RawMessage(`{"oneThing":{},"topThree":[{},{},{}],"mood":"fine"}`)); err == nil {
		t.Fatal("expected unknown field to be rejected")
	}
	if err := Validate("week", json.RawMessage(`{"goals":[],"sprint":"12"}`)); err == nil {
		t.Fatal("expected unknown period field to be rejected")
	}
}

func TestValidateEmptyContent(t *testing.T) {
	if err := Validate("day", nil); err == nil {
		t.Fatal("expected empty content to be rejected")
	}
}

func TestReflectionComplete(t *testing.T) {
	full := Reflection{
		WentWell:      "shipped",
		DidntGoWell:   "late start",
		Learned:       "plan first",
		Gratitude:     "coffee",
		Energy:        "7",
		TomorrowFocus: "review",
	}
	if !full.Complete() {
		t.Fatal("expected complete reflection")
	}

	blank := full
	blank.Energy = "   "
	if blank.Complete() {
		t.Fatal("whitespace-only field must not count as filled")
	}
	if (Reflection{}).Complete() {
		t.Fatal("zero reflection must be incomplete")
	}
}

func TestMergeReflection(t *testing.T) {
	reflection := Reflection{
		WentWell: "deep work", DidntGoWell: "meetings", Learned: "say no",
		Gratitude: "team", Energy: "8", TomorrowFocus: "writing",
	}
	merged, err := MergeReflection(DefaultContent("day"), reflection)
	if err != nil {
		t.Fatalf("MergeReflection: %v", err)
	}

	var day DayContent
	if err := json.Unmarshal(merged, &day); err != nil {
		t.Fatalf("decode merged: %v", err)
	}
	if day.Reflection != reflection {
		t.Fatalf("merged reflection = %+v", day.Reflection)
	}
	if len(day.TopThree) != 3 {
		t.Fatalf("merge dropped topThree, got %d tasks", len(day.TopThree))
	}
}

func TestDayFacts(t *testing.T) {
	reflection := Reflection{
		WentWell: "a", DidntGoWell: "b", Learned: "c",
		Gratitude: "d", Energy: "e", TomorrowFocus: "f",
	}

	cases := []struct {
		name              string
		day               DayContent
		oneThingDone      bool
		reflectionPresent bool
	}{
		{
			"plan met and reflection complete",
			DayContent{OneThing: Task{PlannedPomodoros: 4, DonePomodoros: 4}, Reflection: reflection},
			true, true,
		},
		{
			"plan exceeded",
			DayContent{OneThing: Task{PlannedPomodoros: 2, DonePomodoros: 5}},
			true, false,
		},
		{
			"plan unmet",
			DayContent{OneThing: Task{PlannedPomodoros: 4, DonePomodoros: 3}},
			false, false,
		},
		{
			"no plan means not done",
			DayContent{OneThing: Task{PlannedPomodoros: 0, DonePomodoros: 2}},
			false, false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			content, _ := json.Marshal(tc.day)
			oneThingDone, reflectionPresent := DayFacts(content)
			if oneThingDone != tc.oneThingDone || reflectionPresent != tc.reflectionPresent {
				t.Fatalf("DayFacts = (%v, %v), want (%v, %v)",
					oneThingDone, reflectionPresent, tc.oneThingDone, tc.reflectionPresent)
			}
		})
	}

	if oneThingDone, reflectionPresent := DayFacts(json.RawMessage(`{broken`)); oneThingDone || reflectionPresent {
		t.Fatal("malformed content must yield false/false")
	}
}

func TestReflectionText(t *testing.T) {
	day := DayContent{Reflection: Reflection{WentWell: " shipped ", Energy: "7"}}
	content, _ := json.Marshal(day)

	got := ReflectionText(content)
	if got != "shipped\n7" {
		t.Fatalf("ReflectionText = %q", got)
	}
	if ReflectionText(DefaultContent("day")) != "" {
		t.Fatal("empty reflection must flatten to empty string")
	}
}
