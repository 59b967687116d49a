package search

import (
	"database/sql"
	"strings"
)

// reflectionText extracts the six reflection fields straight out of the JSONB
// content column so the fallback needs no separate index table.
const reflectionTextExpr = `
	coalesce(content->'reflection'->>'wentWell', '') || ' ' ||
	coalesce(content->'reflection'->>'didntGoWell', '') || ' ' ||
	coalesce(content->'reflection'->>'learned', '') || ' ' ||
	coalesce(content->'reflection'->>'gratitude', '') || ' ' ||
	coalesce(content->'reflection'->>'energy', '') || ' ' ||
	coalesce(content->'reflection'->>'tomorrowFocus', '')`

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true: if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search runs plainto_tsquery over the caller's closed and auto-closed day
// documents, newest first, with ts_headline snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT doc_key,
			ts_headline('english', ` + reflectionTextExpr + `,
				plainto_tsquery('english', $2), 'MaxFragments=1,MaxWords=30') AS snippet
		FROM documents
		WHERE user_id = $1
			AND doc_type = 'day'
			AND status IN ('closed', 'auto_closed')
			AND to_tsvector('english', ` + reflectionTextExpr + `) @@ plainto_tsquery('english', $2)
		ORDER BY doc_key DESC
		LIMIT $3`

	rows, err := p.db.Query(query, q.UserID, q.Text, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.DateKey, &r.Snippet); err != nil {
			return nil, 0, err
		}
		results = append(results, r)
	}
	return results, len(results), rows.Err()
}
