package store

import (
	"encoding/json"
	"time"
)

// Document type discriminators. A document is one planning period for one user.
const (
	DocTypeDay     = "day"
	DocTypeWeek    = "week"
	DocTypeMonth   = "month"
	DocTypeQuarter = "quarter"
)

// Day document statuses. closed and auto_closed are terminal; non-day
// documents are always active.
const (
	StatusOpen       = "open"
	StatusClosed     = "closed"
	StatusAutoClosed = "auto_closed"
	StatusActive     = "active"
)

type User struct {
	ID           string
	DisplayName  string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserSettings carries the per-user sync context. Timezone defaults to UTC,
// an empty AccountStartDate means no availability floor.
type UserSettings struct {
	UserID           string `json:"userId"`
	Timezone         string `json:"timezone"`
	AccountStartDate string `json:"accountStartDate"`
	PartnerUserID    string `json:"partnerUserId"`
}

// Document is one versioned planning record, unique per
// (user_id, doc_type, doc_key).
type Document struct {
	ID               string          `json:"id"`
	UserID           string          `json:"userId"`
	DocType          string          `json:"docType"`
	DocKey           string          `json:"docKey"`
	SchemaVersion    int             `json:"schemaVersion"`
	Status           string          `json:"status"`
	Content          json.RawMessage `json:"content"`
	ClientUpdatedAt  time.Time       `json:"clientUpdatedAt"`
	ServerReceivedAt time.Time       `json:"serverReceivedAt"`
	DeviceID         string          `json:"deviceId,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// DocumentUpdate is a partial update applied to an existing document row.
// Nil fields are left untouched.
type DocumentUpdate struct {
	Status           *string
	Content          json.RawMessage
	ClientUpdatedAt  *time.Time
	ServerReceivedAt *time.Time
	DeviceID         *string
	SchemaVersion    *int
}

// DocumentFilter narrows ListDocuments. Since matches
// server_received_at >= Since (the pull watermark is inclusive).
type DocumentFilter struct {
	DocTypes []string
	Since    *time.Time
	Status   string
	Limit    int
}

// StatusSummary is the derived per-day projection surfaced to an
// accountability partner. Never written directly by clients.
type StatusSummary struct {
	UserID            string    `json:"userId"`
	Date              string    `json:"date"`
	DayClosed         bool      `json:"dayClosed"`
	OneThingDone      bool      `json:"oneThingDone"`
	ReflectionPresent bool      `json:"reflectionPresent"`
	UpdatedAt         time.Time `json:"updatedAt"`
}
