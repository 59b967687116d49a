package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const documentColumns = `id, user_id, doc_type, doc_key, schema_version, status, content,
	client_updated_at, server_received_at, device_id, created_at, updated_at`

func scanDocument(row interface{ Scan(...any) error }) (Document, error) {
	var doc Document
	err := row.Scan(&doc.ID, &doc.UserID, &doc.DocType, &doc.DocKey, &doc.SchemaVersion,
		&doc.Status, &doc.Content, &doc.ClientUpdatedAt, &doc.ServerReceivedAt,
		&doc.DeviceID, &doc.CreatedAt, &doc.UpdatedAt)
	return doc, err
}

// GetDocument returns the document for (userID, docType, docKey) or
// sql.ErrNoRows when none exists.
func (s *PostgresStore) GetDocument(ctx context.Context, userID, docType, docKey string) (Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE user_id=$1 AND doc_type=$2 AND doc_key=$3`
	doc, err := scanDocument(s.db.QueryRowContext(ctx, query, userID, docType, docKey))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, err
		}
		return Document{}, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// ListDocuments returns the user's documents matching the filter, ordered
// oldest server_received_at first.
func (s *PostgresStore) ListDocuments(ctx context.Context, userID string, filter DocumentFilter) ([]Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE user_id=$1`
	args := []any{userID}
	argN := 2

	if len(filter.DocTypes) > 0 {
		placeholders := make([]string, len(filter.DocTypes))
		for i, dt := range filter.DocTypes {
			placeholders[i] = fmt.Sprintf("$%d", argN)
			args = append(args, dt)
			argN++
		}
		query += " AND doc_type IN (" + strings.Join(placeholders, ",") + ")"
	}
	if filter.Since != nil {
		query += fmt.Sprintf(" AND server_received_at >= $%d", argN)
		args = append(args, *filter.Since)
		argN++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argN)
		args = append(args, filter.Status)
		argN++
	}
	query += " ORDER BY server_received_at ASC, doc_key ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argN)
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *PostgresStore) InsertDocument(ctx context.Context, doc Document) (Document, error) {
	query := `
		INSERT INTO documents (id, user_id, doc_type, doc_key, schema_version, status, content,
			client_updated_at, server_received_at, device_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + documentColumns
	inserted, err := scanDocument(s.db.QueryRowContext(ctx, query,
		doc.ID, doc.UserID, doc.DocType, doc.DocKey, doc.SchemaVersion, doc.Status,
		doc.Content, doc.ClientUpdatedAt, doc.ServerReceivedAt, doc.DeviceID))
	if err != nil {
		return Document{}, fmt.Errorf("insert document: %w", err)
	}
	return inserted, nil
}

func documentUpdateClause(upd DocumentUpdate, argN int) (string, []any, int) {
	sets := []string{"updated_at = NOW()"}
	var args []any
	if upd.Status != nil {
		sets = append(sets, fmt.Sprintf("status = $%d", argN))
		args = append(args, *upd.Status)
		argN++
	}
	if upd.Content != nil {
		sets = append(sets, fmt.Sprintf("content = $%d", argN))
		args = append(args, []byte(upd.Content))
		argN++
	}
	if upd.ClientUpdatedAt != nil {
		sets = append(sets, fmt.Sprintf("client_updated_at = $%d", argN))
		args = append(args, *upd.ClientUpdatedAt)
		argN++
	}
	if upd.ServerReceivedAt != nil {
		sets = append(sets, fmt.Sprintf("server_received_at = $%d", argN))
		args = append(args, *upd.ServerReceivedAt)
		argN++
	}
	if upd.DeviceID != nil {
		sets = append(sets, fmt.Sprintf("device_id = $%d", argN))
		args = append(args, *upd.DeviceID)
		argN++
	}
	if upd.SchemaVersion != nil {
		sets = append(sets, fmt.Sprintf("schema_version = $%d", argN))
		args = append(args, *upd.SchemaVersion)
		argN++
	}
	return strings.Join(sets, ", "), args, argN
}

// UpdateDocument applies a partial update in place; the row id never changes.
func (s *PostgresStore) UpdateDocument(ctx context.Context, id string, upd DocumentUpdate) (Document, error) {
	clause, args, argN := documentUpdateClause(upd, 1)
	query := fmt.Sprintf(`UPDATE documents SET %s WHERE id = $%d RETURNING `+documentColumns, clause, argN)
	args = append(args, id)
	doc, err := scanDocument(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, err
		}
		return Document{}, fmt.Errorf("update document: %w", err)
	}
	return doc, nil
}

// UpdateDocumentWithSummary applies a document update and upserts the day's
// status summary in one transaction, so a close can never land without its
// projection.
func (s *PostgresStore) UpdateDocumentWithSummary(ctx context.Context, id string, upd DocumentUpdate, sum StatusSummary) (Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Document{}, fmt.Errorf("begin close tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	clause, args, argN := documentUpdateClause(upd, 1)
	query := fmt.Sprintf(`UPDATE documents SET %s WHERE id = $%d RETURNING `+documentColumns, clause, argN)
	args = append(args, id)
	doc, err := scanDocument(tx.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, err
		}
		return Document{}, fmt.Errorf("update document: %w", err)
	}

	if err := upsertSummary(ctx, tx, sum); err != nil {
		return Document{}, err
	}
	if err := tx.Commit(); err != nil {
		return Document{}, fmt.Errorf("commit close tx: %w", err)
	}
	return doc, nil
}

// DeleteDocument removes the row if present; reports whether a row was deleted.
func (s *PostgresStore) DeleteDocument(ctx context.Context, userID, docType, docKey string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE user_id=$1 AND doc_type=$2 AND doc_key=$3`,
		userID, docType, docKey)
	if err != nil {
		return false, fmt.Errorf("delete document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete document: %w", err)
	}
	return affected > 0, nil
}

// ListUserIDsWithOpenDays returns the users the auto-close sweep must visit.
func (s *PostgresStore) ListUserIDsWithOpenDays(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM documents WHERE doc_type='day' AND status='open'`)
	if err != nil {
		return nil, fmt.Errorf("list open-day users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertSummary(ctx context.Context, db execer, sum StatusSummary) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO status_summaries (user_id, date, day_closed, one_thing_done, reflection_present, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, date) DO UPDATE SET
			day_closed = EXCLUDED.day_closed,
			one_thing_done = EXCLUDED.one_thing_done,
			reflection_present = EXCLUDED.reflection_present,
			updated_at = EXCLUDED.updated_at
	`, sum.UserID, sum.Date, sum.DayClosed, sum.OneThingDone, sum.ReflectionPresent, sum.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert status summary: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpsertStatusSummary(ctx context.Context, sum StatusSummary) error {
	return upsertSummary(ctx, s.db, sum)
}

// ListStatusSummaries returns summary rows for the inclusive date range
// [from, to], oldest first.
func (s *PostgresStore) ListStatusSummaries(ctx context.Context, userID, from, to string) ([]StatusSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, date, day_closed, one_thing_done, reflection_present, updated_at
		FROM status_summaries
		WHERE user_id=$1 AND date >= $2 AND date <= $3
		ORDER BY date ASC
	`, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list status summaries: %w", err)
	}
	defer rows.Close()

	var sums []StatusSummary
	for rows.Next() {
		var sum StatusSummary
		if err := rows.Scan(&sum.UserID, &sum.Date, &sum.DayClosed, &sum.OneThingDone,
			&sum.ReflectionPresent, &sum.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan status summary: %w", err)
		}
		sums = append(sums, sum)
	}
	return sums, rows.Err()
}

// GetUserSettings returns the user's settings, falling back to defaults
// (UTC, no account floor) when no row exists.
func (s *PostgresStore) GetUserSettings(ctx context.Context, userID string) (UserSettings, error) {
	settings := UserSettings{UserID: userID, Timezone: "UTC"}
	err := s.db.QueryRowContext(ctx, `
		SELECT timezone, account_start_date, partner_user_id
		FROM user_settings WHERE user_id=$1
	`, userID).Scan(&settings.Timezone, &settings.AccountStartDate, &settings.PartnerUserID)
	if errors.Is(err, sql.ErrNoRows) {
		return settings, nil
	}
	if err != nil {
		return UserSettings{}, fmt.Errorf("get user settings: %w", err)
	}
	if settings.Timezone == "" {
		settings.Timezone = "UTC"
	}
	return settings, nil
}

func (s *PostgresStore) PutUserSettings(ctx context.Context, settings UserSettings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_settings (user_id, timezone, account_start_date, partner_user_id, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			timezone = EXCLUDED.timezone,
			account_start_date = EXCLUDED.account_start_date,
			partner_user_id = EXCLUDED.partner_user_id,
			updated_at = NOW()
	`, settings.UserID, settings.Timezone, settings.AccountStartDate, settings.PartnerUserID)
	if err != nil {
		return fmt.Errorf("put user settings: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash)
		VALUES ($1, $2, $3, $4)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash FROM users WHERE email=$1
	`, email).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash FROM users WHERE id=$1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.display_name, u.email
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.DisplayName, &user.Email)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}
