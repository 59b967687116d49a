// Package schema validates docType-specific content payloads and supplies the
// empty defaults used for lazy document creation.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

const (
	// Version is the current content schema version stamped on new rows.
	Version = 1

	topThreeCount = 3
	maxPomodoros  = 16
)

// Issue identifies one structural problem in a content payload.
type Issue struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Error aggregates the issues found in one payload.
type Error struct {
	Issues []Issue
}

func (e *Error) Error() string {
	if len(e.Issues) == 0 {
		return "invalid content"
	}
	parts := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		parts[i] = issue.Field + ": " + issue.Reason
	}
	return "invalid content: " + strings.Join(parts, "; ")
}

// Task is a planned task with pomodoro bookkeeping.
type Task struct {
	Title            string `json:"title"`
	PlannedPomodoros int    `json:"plannedPomodoros"`
	DonePomodoros    int    `json:"donePomodoros"`
	Done             bool   `json:"done"`
}

// Reflection is the end-of-day review. A day can only be closed manually once
// all six fields are filled in.
type Reflection struct {
	WentWell      string `json:"wentWell"`
	DidntGoWell   string `json:"didntGoWell"`
	Learned       string `json:"learned"`
	Gratitude     string `json:"gratitude"`
	Energy        string `json:"energy"`
	TomorrowFocus string `json:"tomorrowFocus"`
}

// Complete reports whether every reflection field is non-blank.
func (r Reflection) Complete() bool {
	fields := []string{r.WentWell, r.DidntGoWell, r.Learned, r.Gratitude, r.Energy, r.TomorrowFocus}
	for _, f := range fields {
		if strings.TrimSpace(f) == "" {
			return false
		}
	}
	return true
}

// DayContent is the payload of a day document.
type DayContent struct {
	OneThing   Task       `json:"oneThing"`
	TopThree   []Task     `json:"topThree"`
	Schedule   string     `json:"schedule"`
	Reflection Reflection `json:"reflection"`
	Notes      string     `json:"notes"`
}

// PeriodGoal is one goal inside a week/month/quarter document.
type PeriodGoal struct {
	Title string `json:"title"`
	Done  bool   `json:"done"`
}

// PeriodContent is the payload of week, month, and quarter documents.
type PeriodContent struct {
	Goals []PeriodGoal `json:"goals"`
	Notes string       `json:"notes"`
}

var keyPatterns = map[string]*regexp.Regexp{
	"day":     regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`),
	"week":    regexp.MustCompile(`^\d{4}-W\d{2}$`),
	"month":   regexp.MustCompile(`^\d{4}-\d{2}$`),
	"quarter": regexp.MustCompile(`^\d{4}-Q[1-4]$`),
}

// ValidDocType reports whether docType names a known period kind.
func ValidDocType(docType string) bool {
	_, ok := keyPatterns[docType]
	return ok
}

// ValidateKey checks docKey against the canonical pattern for docType.
func ValidateKey(docType, docKey string) error {
	pattern, ok := keyPatterns[docType]
	if !ok {
		return &Error{Issues: []Issue{{Field: "docType", Reason: fmt.Sprintf("unknown doc type %q", docType)}}}
	}
	if !pattern.MatchString(docKey) {
		return &Error{Issues: []Issue{{Field: "docKey", Reason: fmt.Sprintf("malformed %s key %q", docType, docKey)}}}
	}
	return nil
}

// Validate checks content against the docType's structure. Day content must
// carry exactly three top-three tasks and bounded pomodoro counts.
func Validate(docType string, content json.RawMessage) error {
	if len(content) == 0 {
		return &Error{Issues: []Issue{{Field: "content", Reason: "missing"}}}
	}

	switch docType {
	case "day":
		day, err := decodeDay(content)
		if err != nil {
			return err
		}
		var issues []Issue
		if len(day.TopThree) != topThreeCount {
			issues = append(issues, Issue{
				Field:  "topThree",
				Reason: fmt.Sprintf("expected exactly %d items, got %d", topThreeCount, len(day.TopThree)),
			})
		}
		issues = append(issues, checkTask("oneThing", day.OneThing)...)
		for i, task := range day.TopThree {
			issues = append(issues, checkTask(fmt.Sprintf("topThree[%d]", i), task)...)
		}
		if len(issues) > 0 {
			return &Error{Issues: issues}
		}
		return nil
	case "week", "month", "quarter":
		var period PeriodContent
		decoder := json.NewDecoder(bytes.NewReader(content))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&period); err != nil {
			return &Error{Issues: []Issue{{Field: "content", Reason: "malformed " + docType + " payload"}}}
		}
		return nil
	default:
		return &Error{Issues: []Issue{{Field: "docType", Reason: fmt.Sprintf("unknown doc type %q", docType)}}}
	}
}

func checkTask(field string, task Task) []Issue {
	var issues []Issue
	if task.PlannedPomodoros < 0 || task.PlannedPomodoros > maxPomodoros {
		issues = append(issues, Issue{
			Field:  field + ".plannedPomodoros",
			Reason: fmt.Sprintf("must be between 0 and %d", maxPomodoros),
		})
	}
	if task.DonePomodoros < 0 || task.DonePomodoros > maxPomodoros {
		issues = append(issues, Issue{
			Field:  field + ".donePomodoros",
			Reason: fmt.Sprintf("must be between 0 and %d", maxPomodoros),
		})
	}
	return issues
}

func decodeDay(content json.RawMessage) (DayContent, error) {
	var day DayContent
	decoder := json.NewDecoder(bytes.NewReader(content))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&day); err != nil {
		return DayContent{}, &Error{Issues: []Issue{{Field: "content", Reason: "malformed day payload"}}}
	}
	return day, nil
}

// DefaultContent returns the empty payload a lazily created document starts
// with. Day documents get three blank top-three slots so the payload already
// satisfies its own schema.
func DefaultContent(docType string) json.RawMessage {
	var payload any
	switch docType {
	case "day":
		payload = DayContent{TopThree: make([]Task, topThreeCount)}
	default:
		payload = PeriodContent{Goals: []PeriodGoal{}}
	}
	raw, _ := json.Marshal(payload)
	return raw
}

// MergeReflection replaces the reflection inside a day payload and returns
// the re-encoded content.
func MergeReflection(content json.RawMessage, reflection Reflection) (json.RawMessage, error) {
	day, err := decodeDay(content)
	if err != nil {
		return nil, err
	}
	day.Reflection = reflection
	merged, err := json.Marshal(day)
	if err != nil {
		return nil, fmt.Errorf("encode merged content: %w", err)
	}
	return merged, nil
}

// DayFacts extracts the two derived signals the status summary projects:
// whether the primary task's pomodoro plan was met, and whether the
// reflection is complete. Malformed content yields false/false.
func DayFacts(content json.RawMessage) (oneThingDone, reflectionPresent bool) {
	day, err := decodeDay(content)
	if err != nil {
		return false, false
	}
	oneThingDone = day.OneThing.PlannedPomodoros > 0 &&
		day.OneThing.DonePomodoros >= day.OneThing.PlannedPomodoros
	return oneThingDone, day.Reflection.Complete()
}

// ReflectionText flattens a day's reflection for search indexing.
func ReflectionText(content json.RawMessage) string {
	day, err := decodeDay(content)
	if err != nil {
		return ""
	}
	r := day.Reflection
	parts := []string{r.WentWell, r.DidntGoWell, r.Learned, r.Gratitude, r.Energy, r.TomorrowFocus}
	var filled []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			filled = append(filled, strings.TrimSpace(p))
		}
	}
	return strings.Join(filled, "\n")
}
