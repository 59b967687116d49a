package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"daybook/api/internal/config"
	"daybook/api/internal/conflict"
	"daybook/api/internal/dayclock"
	"daybook/api/internal/schema"
	"daybook/api/internal/search"
	"daybook/api/internal/store"
	"daybook/api/internal/util"
)

// dataStore is the persistence surface the service consumes. Per-user row
// isolation is the store's responsibility; the service always scopes by the
// authenticated userID.
type dataStore interface {
	GetDocument(ctx context.Context, userID, docType, docKey string) (store.Document, error)
	ListDocuments(ctx context.Context, userID string, filter store.DocumentFilter) ([]store.Document, error)
	InsertDocument(ctx context.Context, doc store.Document) (store.Document, error)
	UpdateDocument(ctx context.Context, id string, upd store.DocumentUpdate) (store.Document, error)
	UpdateDocumentWithSummary(ctx context.Context, id string, upd store.DocumentUpdate, sum store.StatusSummary) (store.Document, error)
	DeleteDocument(ctx context.Context, userID, docType, docKey string) (bool, error)
	ListUserIDsWithOpenDays(ctx context.Context) ([]string, error)
	UpsertStatusSummary(ctx context.Context, sum store.StatusSummary) error
	ListStatusSummaries(ctx context.Context, userID, from, to string) ([]store.StatusSummary, error)
	GetUserSettings(ctx context.Context, userID string) (store.UserSettings, error)
	PutUserSettings(ctx context.Context, settings store.UserSettings) error
	GetUserByID(ctx context.Context, userID string) (store.User, error)
	Ping(ctx context.Context) error
}

// sessionStore holds refresh sessions; Redis when configured, Postgres
// otherwise.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type credentials interface {
	SignUp(ctx context.Context, email, password, displayName string) (store.User, error)
	SignIn(ctx context.Context, email, password string) (store.User, error)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	creds    credentials
	search   *search.Service
	now      func() time.Time
}

func New(cfg config.Config, dataStore dataStore, sessions sessionStore, creds credentials, searchService *search.Service) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
		creds:    creds,
		search:   searchService,
		now:      time.Now,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// GetResult is a document plus, for day documents, the status a client
// should display right now (a locked but unswept day reads as
// pending_auto_close).
type GetResult struct {
	Document      store.Document `json:"document"`
	DerivedStatus string         `json:"derivedStatus,omitempty"`
}

// SaveInput is one whole-document write.
type SaveInput struct {
	DocType         string
	DocKey          string
	Content         json.RawMessage
	ClientUpdatedAt time.Time
	DeviceID        string
}

// SaveResult reports the persisted document and, when an existing row was
// resolved against, which side won.
type SaveResult struct {
	Document       store.Document `json:"document"`
	ConflictWinner string         `json:"-"`
}

func (s *Service) userLocation(ctx context.Context, userID string) (store.UserSettings, *time.Location, error) {
	settings, err := s.store.GetUserSettings(ctx, userID)
	if err != nil {
		return store.UserSettings{}, nil, fmt.Errorf("load settings: %w", err)
	}
	loc, err := time.LoadLocation(settings.Timezone)
	if err != nil {
		loc = time.UTC
	}
	return settings, loc, nil
}

// GetDocument returns the row for (docType, docKey), creating it lazily with
// empty default content the first time an available key is read.
func (s *Service) GetDocument(ctx context.Context, userID, docType, docKey string) (GetResult, error) {
	if err := schema.ValidateKey(docType, docKey); err != nil {
		return GetResult{}, asValidationError(err)
	}
	settings, loc, err := s.userLocation(ctx, userID)
	if err != nil {
		return GetResult{}, err
	}
	now := s.now()

	if docType == store.DocTypeDay && !dayclock.Available(now, docKey, loc, settings.AccountStartDate) {
		return GetResult{}, docNotYetAvailableError(docKey)
	}

	doc, err := s.store.GetDocument(ctx, userID, docType, docKey)
	if errors.Is(err, sql.ErrNoRows) {
		doc, err = s.store.InsertDocument(ctx, s.newDocument(userID, docType, docKey, now))
	}
	if err != nil {
		return GetResult{}, err
	}

	result := GetResult{Document: doc}
	if docType == store.DocTypeDay {
		result.DerivedStatus = string(dayclock.DocStatus(doc.Status, now, docKey, loc))
	}
	return result, nil
}

func (s *Service) newDocument(userID, docType, docKey string, now time.Time) store.Document {
	status := store.StatusActive
	if docType == store.DocTypeDay {
		status = store.StatusOpen
	}
	return store.Document{
		ID:               util.NewID("doc"),
		UserID:           userID,
		DocType:          docType,
		DocKey:           docKey,
		SchemaVersion:    schema.Version,
		Status:           status,
		Content:          schema.DefaultContent(docType),
		ClientUpdatedAt:  now,
		ServerReceivedAt: now,
	}
}

// SaveDocument validates and persists a whole-document write. When a row
// already exists the write is resolved with last-writer-wins: a losing
// incoming version is silently discarded and the unchanged existing document
// is returned with ConflictWinner "existing" — that is not an error.
func (s *Service) SaveDocument(ctx context.Context, userID string, in SaveInput) (SaveResult, error) {
	if err := schema.ValidateKey(in.DocType, in.DocKey); err != nil {
		return SaveResult{}, asValidationError(err)
	}
	if err := schema.Validate(in.DocType, in.Content); err != nil {
		return SaveResult{}, asValidationError(err)
	}
	settings, loc, err := s.userLocation(ctx, userID)
	if err != nil {
		return SaveResult{}, err
	}
	now := s.now()

	if in.DocType == store.DocTypeDay && !dayclock.Editable(now, in.DocKey, loc, settings.AccountStartDate) {
		if !dayclock.Available(now, in.DocKey, loc, settings.AccountStartDate) {
			return SaveResult{}, docNotYetAvailableError(in.DocKey)
		}
		return SaveResult{}, docLockedError(in.DocKey)
	}
	if err := conflict.ValidateClockSkew(in.ClientUpdatedAt, now); err != nil {
		return SaveResult{}, clockSkewError(in.ClientUpdatedAt, now)
	}

	existing, err := s.store.GetDocument(ctx, userID, in.DocType, in.DocKey)
	if errors.Is(err, sql.ErrNoRows) {
		doc := s.newDocument(userID, in.DocType, in.DocKey, now)
		doc.Content = in.Content
		doc.ClientUpdatedAt = in.ClientUpdatedAt
		doc.DeviceID = in.DeviceID
		created, err := s.store.InsertDocument(ctx, doc)
		if err != nil {
			return SaveResult{}, err
		}
		return SaveResult{Document: created}, nil
	}
	if err != nil {
		return SaveResult{}, err
	}

	// closed and auto_closed are terminal: no content mutation is accepted
	// afterward, even inside the edit window.
	if in.DocType == store.DocTypeDay && existing.Status != store.StatusOpen {
		return SaveResult{}, docLockedError(in.DocKey)
	}

	winner := conflict.Resolve(
		conflict.Version{ClientUpdatedAt: existing.ClientUpdatedAt, DeviceID: existing.DeviceID},
		conflict.Version{ClientUpdatedAt: in.ClientUpdatedAt, DeviceID: in.DeviceID},
	)
	if winner == conflict.WinnerExisting {
		return SaveResult{Document: existing, ConflictWinner: string(conflict.WinnerExisting)}, nil
	}

	updated, err := s.store.UpdateDocument(ctx, existing.ID, store.DocumentUpdate{
		Content:          in.Content,
		ClientUpdatedAt:  &in.ClientUpdatedAt,
		ServerReceivedAt: &now,
		DeviceID:         &in.DeviceID,
	})
	if err != nil {
		return SaveResult{}, err
	}
	return SaveResult{Document: updated, ConflictWinner: string(conflict.WinnerIncoming)}, nil
}

// CloseDay merges the reflection into the day's content and transitions
// open → closed. The only path that produces closed.
func (s *Service) CloseDay(ctx context.Context, userID, dateKey string, reflection schema.Reflection) (store.Document, error) {
	if err := schema.ValidateKey(store.DocTypeDay, dateKey); err != nil {
		return store.Document{}, asValidationError(err)
	}
	settings, loc, err := s.userLocation(ctx, userID)
	if err != nil {
		return store.Document{}, err
	}
	now := s.now()

	if !dayclock.Editable(now, dateKey, loc, settings.AccountStartDate) {
		if !dayclock.Available(now, dateKey, loc, settings.AccountStartDate) {
			return store.Document{}, docNotYetAvailableError(dateKey)
		}
		return store.Document{}, docLockedError(dateKey)
	}

	doc, err := s.store.GetDocument(ctx, userID, store.DocTypeDay, dateKey)
	if errors.Is(err, sql.ErrNoRows) {
		doc, err = s.store.InsertDocument(ctx, s.newDocument(userID, store.DocTypeDay, dateKey, now))
	}
	if err != nil {
		return store.Document{}, err
	}
	if doc.Status != store.StatusOpen {
		return store.Document{}, docLockedError(dateKey)
	}

	if !reflection.Complete() {
		return store.Document{}, validationError("Reflection is incomplete", map[string]any{
			"missing": missingReflectionFields(reflection),
		})
	}
	merged, err := schema.MergeReflection(doc.Content, reflection)
	if err != nil {
		return store.Document{}, asValidationError(err)
	}

	closed := store.StatusClosed
	summary := s.projectSummary(userID, dateKey, closed, merged, now)
	updated, err := s.store.UpdateDocumentWithSummary(ctx, doc.ID, store.DocumentUpdate{
		Status:           &closed,
		Content:          merged,
		ClientUpdatedAt:  &now,
		ServerReceivedAt: &now,
	}, summary)
	if err != nil {
		return store.Document{}, err
	}

	if s.search != nil {
		s.search.IndexReflection(search.ReflectionRecord{
			UserID:  userID,
			DateKey: dateKey,
			Text:    schema.ReflectionText(merged),
			Status:  updated.Status,
		})
	}
	return updated, nil
}

// AutoClosePendingDays sweeps the user's open day documents and transitions
// every lock-expired one to auto_closed, recomputing its summary. Idempotent:
// reruns only ever touch documents still open. Returns how many documents
// were transitioned; a storage failure skips only that document.
func (s *Service) AutoClosePendingDays(ctx context.Context, userID string) (int, error) {
	_, loc, err := s.userLocation(ctx, userID)
	if err != nil {
		return 0, err
	}
	now := s.now()

	docs, err := s.store.ListDocuments(ctx, userID, store.DocumentFilter{
		DocTypes: []string{store.DocTypeDay},
		Status:   store.StatusOpen,
	})
	if err != nil {
		return 0, err
	}

	count := 0
	for _, doc := range docs {
		if !dayclock.ShouldAutoClose(doc.Status, now, doc.DocKey, loc) {
			continue
		}
		autoClosed := store.StatusAutoClosed
		summary := s.projectSummary(userID, doc.DocKey, autoClosed, doc.Content, now)
		_, err := s.store.UpdateDocumentWithSummary(ctx, doc.ID, store.DocumentUpdate{
			Status:           &autoClosed,
			ClientUpdatedAt:  &now,
			ServerReceivedAt: &now,
		}, summary)
		if err != nil {
			log.Printf("sweep: auto-close %s %s: %v", userID, doc.DocKey, err)
			continue
		}
		count++
	}
	return count, nil
}

// UsersWithOpenDays lists the users the periodic sweep needs to visit.
func (s *Service) UsersWithOpenDays(ctx context.Context) ([]string, error) {
	return s.store.ListUserIDsWithOpenDays(ctx)
}

// projectSummary derives the partner-visible StatusSummary row from a day
// document's prospective status and content.
func (s *Service) projectSummary(userID, dateKey, status string, content json.RawMessage, now time.Time) store.StatusSummary {
	oneThingDone, reflectionPresent := schema.DayFacts(content)
	return store.StatusSummary{
		UserID:            userID,
		Date:              dateKey,
		DayClosed:         status == store.StatusClosed,
		OneThingDone:      oneThingDone,
		ReflectionPresent: reflectionPresent,
		UpdatedAt:         now,
	}
}

// PartnerSummaries returns summary rows for [from, to] if the requester is
// the target user's registered accountability partner. Raw document content
// is never exposed on this path.
func (s *Service) PartnerSummaries(ctx context.Context, requesterID, targetUserID, from, to string) ([]store.StatusSummary, error) {
	settings, err := s.store.GetUserSettings(ctx, targetUserID)
	if err != nil {
		return nil, err
	}
	if requesterID != targetUserID && settings.PartnerUserID != requesterID {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Not this user's partner", nil)
	}
	sums, err := s.store.ListStatusSummaries(ctx, targetUserID, from, to)
	if err != nil {
		return nil, err
	}
	if sums == nil {
		sums = []store.StatusSummary{}
	}
	return sums, nil
}

// SearchReflections queries the caller's closed-day reflections. Without a
// configured search backend it returns an empty response rather than failing.
func (s *Service) SearchReflections(q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(q)
}

func (s *Service) Settings(ctx context.Context, userID string) (store.UserSettings, error) {
	return s.store.GetUserSettings(ctx, userID)
}

func (s *Service) UpdateSettings(ctx context.Context, userID string, settings store.UserSettings) (store.UserSettings, error) {
	settings.UserID = userID
	if settings.Timezone == "" {
		settings.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(settings.Timezone); err != nil {
		return store.UserSettings{}, validationError("Unknown timezone", map[string]any{"timezone": settings.Timezone})
	}
	if settings.AccountStartDate != "" {
		if err := schema.ValidateKey(store.DocTypeDay, settings.AccountStartDate); err != nil {
			return store.UserSettings{}, validationError("Malformed accountStartDate", map[string]any{"accountStartDate": settings.AccountStartDate})
		}
	}
	if err := s.store.PutUserSettings(ctx, settings); err != nil {
		return store.UserSettings{}, err
	}
	return settings, nil
}

func missingReflectionFields(r schema.Reflection) []string {
	var missing []string
	checks := []struct {
		name  string
		value string
	}{
		{"wentWell", r.WentWell},
		{"didntGoWell", r.DidntGoWell},
		{"learned", r.Learned},
		{"gratitude", r.Gratitude},
		{"energy", r.Energy},
		{"tomorrowFocus", r.TomorrowFocus},
	}
	for _, c := range checks {
		if strings.TrimSpace(c.value) == "" {
			missing = append(missing, c.name)
		}
	}
	return missing
}

func asValidationError(err error) error {
	var schemaErr *schema.Error
	if errors.As(err, &schemaErr) {
		return validationError("Invalid content", schemaErr.Issues)
	}
	return err
}
