package app

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"daybook/api/internal/schema"
	"daybook/api/internal/store"
)

func TestProcessPushMutationsPartialFailure(t *testing.T) {
	now := mustParse(t, "2026-03-10T12:00:00Z")
	fs := &fakeStore{} // every row is new; inserts echo
	svc := newTestService(fs, now)

	mutations := []Mutation{
		{
			ID: "mut_1", Operation: OpUpsert, DocType: "day", DocKey: "2026-03-10",
			Content: validDayContent(t, nil), ClientUpdatedAt: now,
		},
		{
			ID: "mut_2", Operation: OpUpsert, DocType: "day", DocKey: "2026-03-10",
			Content:         validDayContent(t, func(day *schema.DayContent) { day.TopThree = day.TopThree[:1] }),
			ClientUpdatedAt: now,
		},
		{
			ID: "mut_3", Operation: OpUpsert, DocType: "week", DocKey: "2026-W11",
			Content: schema.DefaultContent("week"), ClientUpdatedAt: now,
		},
	}

	results := svc.ProcessPushMutations(context.Background(), "usr_1", mutations)
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for i, result := range results {
		if result.ID != mutations[i].ID {
			t.Errorf("result[%d].ID = %s, want %s", i, result.ID, mutations[i].ID)
		}
	}
	if !results[0].Success || results[0].Error != nil {
		t.Errorf("result[0] = %+v, want success", results[0])
	}
	if results[1].Success || results[1].Error == nil {
		t.Fatalf("result[1] = %+v, want failure", results[1])
	}
	if results[1].Error.Code != CodeValidation {
		t.Errorf("result[1].Error.Code = %s, want %s", results[1].Error.Code, CodeValidation)
	}
	if !results[2].Success {
		t.Errorf("a failure mid-batch must not abort later mutations: %+v", results[2])
	}
}

func TestProcessPushMutationsConflictSurfaced(t *testing.T) {
	now := mustParse(t, "2026-03-10T12:00:00Z")
	existing := store.Document{
		ID: "doc_1", UserID: "usr_1", DocType: "day", DocKey: "2026-03-10",
		Status: store.StatusOpen, Content: validDayContent(t, nil),
		ClientUpdatedAt: now.Add(-time.Minute), DeviceID: "dev_a",
	}
	fs := &fakeStore{
		getDocument: func(ctx context.Context, userID, docType, docKey string) (store.Document, error) {
			return existing, nil
		},
	}
	svc := newTestService(fs, now)

	results := svc.ProcessPushMutations(context.Background(), "usr_1", []Mutation{{
		ID: "mut_1", Operation: OpUpsert, DocType: "day", DocKey: "2026-03-10",
		Content: validDayContent(t, nil), ClientUpdatedAt: now.Add(-time.Hour), DeviceID: "dev_b",
	}})
	if !results[0].Success {
		t.Fatalf("a losing write still succeeds: %+v", results[0])
	}
	if results[0].ConflictResolution == nil || results[0].ConflictResolution.Winner != "existing" {
		t.Fatalf("conflictResolution = %+v, want winner existing", results[0].ConflictResolution)
	}
}

func TestProcessPushMutationsDelete(t *testing.T) {
	now := mustParse(t, "2026-03-10T12:00:00Z")
	var deletedKey string
	fs := &fakeStore{
		deleteDocument: func(ctx context.Context, userID, docType, docKey string) (bool, error) {
			deletedKey = docKey
			return false, nil // row already gone
		},
	}
	svc := newTestService(fs, now)

	results := svc.ProcessPushMutations(context.Background(), "usr_1", []Mutation{{
		ID: "mut_1", Operation: OpDelete, DocType: "week", DocKey: "2026-W11",
	}})
	if !results[0].Success {
		t.Fatalf("deleting an absent row must succeed: %+v", results[0])
	}
	if deletedKey != "2026-W11" {
		t.Fatalf("deleted key = %s", deletedKey)
	}
}

func TestProcessPushMutationsDeleteMalformedKey(t *testing.T) {
	svc := newTestService(&fakeStore{}, mustParse(t, "2026-03-10T12:00:00Z"))

	results := svc.ProcessPushMutations(context.Background(), "usr_1", []Mutation{{
		ID: "mut_1", Operation: OpDelete, DocType: "week", DocKey: "week eleven",
	}})
	if results[0].Error == nil || results[0].Error.Code != CodeValidation {
		t.Fatalf("result = %+v, want validation error", results[0])
	}
}

func TestProcessPushMutationsUnknownOperation(t *testing.T) {
	svc := newTestService(&fakeStore{}, mustParse(t, "2026-03-10T12:00:00Z"))

	results := svc.ProcessPushMutations(context.Background(), "usr_1", []Mutation{{
		ID: "mut_1", Operation: "merge", DocType: "day", DocKey: "2026-03-10",
	}})
	if results[0].Error == nil || results[0].Error.Code != CodeValidation {
		t.Fatalf("result = %+v, want validation error", results[0])
	}
}

func TestProcessPushMutationsInternalErrorRedacted(t *testing.T) {
	now := mustParse(t, "2026-03-10T12:00:00Z")
	fs := &fakeStore{
		getDocument: func(ctx context.Context, userID, docType, docKey string) (store.Document, error) {
			return store.Document{}, sql.ErrConnDone
		},
	}
	svc := newTestService(fs, now)

	results := svc.ProcessPushMutations(context.Background(), "usr_1", []Mutation{{
		ID: "mut_1", Operation: OpUpsert, DocType: "day", DocKey: "2026-03-10",
		Content: validDayContent(t, nil), ClientUpdatedAt: now,
	}})
	if results[0].Error == nil || results[0].Error.Code != CodeInternal {
		t.Fatalf("result = %+v, want internal error", results[0])
	}
	if results[0].Error.Message != "Internal error" {
		t.Fatalf("internal failure leaked detail: %q", results[0].Error.Message)
	}
}

func TestGetChangedDocumentsWatermark(t *testing.T) {
	now := mustParse(t, "2026-03-10T12:00:00Z")
	since := mustParse(t, "2026-03-09T08:30:00Z")
	docs := []store.Document{{ID: "doc_1", ServerReceivedAt: since}}
	var gotFilter store.DocumentFilter
	fs := &fakeStore{
		listDocuments: func(ctx context.Context, userID string, filter store.DocumentFilter) ([]store.Document, error) {
			gotFilter = filter
			return docs, nil
		},
	}
	svc := newTestService(fs, now)

	result, err := svc.GetChangedDocuments(context.Background(), "usr_1", since, nil, 0)
	if err != nil {
		t.Fatalf("GetChangedDocuments: %v", err)
	}
	if gotFilter.Since == nil || !gotFilter.Since.Equal(since) {
		t.Fatalf("filter.Since = %v, want %v", gotFilter.Since, since)
	}
	if gotFilter.Limit != defaultPullLimit {
		t.Fatalf("filter.Limit = %d, want default %d", gotFilter.Limit, defaultPullLimit)
	}
	if !result.ServerTime.Equal(now) {
		t.Fatalf("serverTime = %v, want the service clock %v", result.ServerTime, now)
	}
	if len(result.Documents) != 1 {
		t.Fatalf("documents = %+v", result.Documents)
	}
}

func TestGetChangedDocumentsClampsLimit(t *testing.T) {
	now := mustParse(t, "2026-03-10T12:00:00Z")
	var gotLimit int
	fs := &fakeStore{
		listDocuments: func(ctx context.Context, userID string, filter store.DocumentFilter) ([]store.Document, error) {
			gotLimit = filter.Limit
			return nil, nil
		},
	}
	svc := newTestService(fs, now)

	if _, err := svc.GetChangedDocuments(context.Background(), "usr_1", now, nil, 9000); err != nil {
		t.Fatalf("GetChangedDocuments: %v", err)
	}
	if gotLimit != maxPullLimit {
		t.Fatalf("limit = %d, want clamped to %d", gotLimit, maxPullLimit)
	}
}

func TestGetChangedDocumentsRejectsUnknownDocType(t *testing.T) {
	svc := newTestService(&fakeStore{}, mustParse(t, "2026-03-10T12:00:00Z"))

	_, err := svc.GetChangedDocuments(context.Background(), "usr_1", time.Time{}, []string{"day", "year"}, 0)
	if asDomainError(t, err).Code != CodeValidation {
		t.Fatal("expected VALIDATION_ERROR for unknown docType")
	}
}

func TestGetChangedDocumentsEmptyBatch(t *testing.T) {
	svc := newTestService(&fakeStore{}, mustParse(t, "2026-03-10T12:00:00Z"))

	result, err := svc.GetChangedDocuments(context.Background(), "usr_1", time.Time{}, nil, 0)
	if err != nil {
		t.Fatalf("GetChangedDocuments: %v", err)
	}
	if result.Documents == nil {
		t.Fatal("documents must be an empty slice, not nil")
	}
}
