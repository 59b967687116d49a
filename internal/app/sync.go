package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"daybook/api/internal/schema"
	"daybook/api/internal/store"
)

const (
	// OpUpsert and OpDelete are the two client mutation kinds.
	OpUpsert = "upsert"
	OpDelete = "delete"

	defaultPullLimit = 200
	maxPullLimit     = 500
)

// Mutation is one queued client intent. ID is the client's idempotency token
// and is echoed back in the matching result.
type Mutation struct {
	ID              string          `json:"id"`
	Operation       string          `json:"operation"`
	DocType         string          `json:"docType"`
	DocKey          string          `json:"docKey"`
	Content         json.RawMessage `json:"content,omitempty"`
	ClientUpdatedAt time.Time       `json:"clientUpdatedAt"`
	DeviceID        string          `json:"deviceId,omitempty"`
}

type ConflictResolution struct {
	Winner string `json:"winner"`
}

// MutationError is the structured per-mutation failure encoding. Internal
// faults are reduced to a generic message before they reach a client.
type MutationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type MutationResult struct {
	ID                 string              `json:"id"`
	Success            bool                `json:"success"`
	ConflictResolution *ConflictResolution `json:"conflictResolution,omitempty"`
	Error              *MutationError      `json:"error,omitempty"`
}

// PullResult is a batch of changed documents plus the server clock reading
// clients must use as their next watermark.
type PullResult struct {
	Documents  []store.Document `json:"documents"`
	ServerTime time.Time        `json:"serverTime"`
}

// ProcessPushMutations applies each mutation independently; one failure never
// aborts the batch, so a queue of offline edits makes maximal forward
// progress even when some entries are stale or now-invalid.
func (s *Service) ProcessPushMutations(ctx context.Context, userID string, mutations []Mutation) []MutationResult {
	results := make([]MutationResult, 0, len(mutations))
	for _, m := range mutations {
		results = append(results, s.applyMutation(ctx, userID, m))
	}
	return results
}

func (s *Service) applyMutation(ctx context.Context, userID string, m Mutation) MutationResult {
	result := MutationResult{ID: m.ID}

	switch m.Operation {
	case OpUpsert:
		saved, err := s.SaveDocument(ctx, userID, SaveInput{
			DocType:         m.DocType,
			DocKey:          m.DocKey,
			Content:         m.Content,
			ClientUpdatedAt: m.ClientUpdatedAt,
			DeviceID:        m.DeviceID,
		})
		if err != nil {
			result.Error = asMutationError(userID, m, err)
			return result
		}
		result.Success = true
		if saved.ConflictWinner != "" {
			result.ConflictResolution = &ConflictResolution{Winner: saved.ConflictWinner}
		}
		return result

	case OpDelete:
		// Deletes are unconditional: no conflict resolution, no skew check,
		// last delete wins. Removing an already-absent row still succeeds.
		if err := schema.ValidateKey(m.DocType, m.DocKey); err != nil {
			result.Error = asMutationError(userID, m, asValidationError(err))
			return result
		}
		if _, err := s.store.DeleteDocument(ctx, userID, m.DocType, m.DocKey); err != nil {
			result.Error = asMutationError(userID, m, err)
			return result
		}
		if s.search != nil {
			s.search.DeleteReflection(userID, m.DocKey)
		}
		result.Success = true
		return result

	default:
		result.Error = &MutationError{
			Code:    CodeValidation,
			Message: "Unknown operation",
			Details: map[string]any{"operation": m.Operation},
		}
		return result
	}
}

func asMutationError(userID string, m Mutation, err error) *MutationError {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return &MutationError{
			Code:    domainErr.Code,
			Message: domainErr.Message,
			Details: domainErr.Details,
		}
	}
	log.Printf("sync: mutation %s (%s %s/%s) for %s failed: %v", m.ID, m.Operation, m.DocType, m.DocKey, userID, err)
	return &MutationError{Code: CodeInternal, Message: "Internal error"}
}

// GetChangedDocuments returns documents with serverReceivedAt >= since,
// oldest first, plus the server time at which the pull ran. Clients must use
// that returned instant — never their own clock — as the next watermark.
func (s *Service) GetChangedDocuments(ctx context.Context, userID string, since time.Time, docTypes []string, limit int) (PullResult, error) {
	for _, dt := range docTypes {
		if !schema.ValidDocType(dt) {
			return PullResult{}, validationError("Unknown doc type", map[string]any{"docType": dt})
		}
	}
	if limit <= 0 {
		limit = defaultPullLimit
	}
	if limit > maxPullLimit {
		limit = maxPullLimit
	}

	serverTime := s.now()
	docs, err := s.store.ListDocuments(ctx, userID, store.DocumentFilter{
		DocTypes: docTypes,
		Since:    &since,
		Limit:    limit,
	})
	if err != nil {
		return PullResult{}, err
	}
	if docs == nil {
		docs = []store.Document{}
	}
	return PullResult{Documents: docs, ServerTime: serverTime}, nil
}
