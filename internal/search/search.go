// Package search provides full-text search over closed-day reflections,
// served by Meilisearch when available with a Postgres FTS fallback.
package search

// ReflectionRecord is what we index for a closed day. ID is deterministic
// per (user, day) so re-closing or deleting a day replaces the same entry.
type ReflectionRecord struct {
	ID      string `json:"id"`
	UserID  string `json:"userId"`
	DateKey string `json:"dateKey"`
	Text    string `json:"text"`
	Status  string `json:"status"`
}

// RecordID derives the stable index key for a user's day.
func RecordID(userID, dateKey string) string {
	return userID + "_" + dateKey
}

// Result is a single search hit returned to the caller.
type Result struct {
	DateKey string `json:"dateKey"`
	Snippet string `json:"snippet"`
}

// Query describes a reflection search, always scoped to one user.
type Query struct {
	UserID string
	Text   string
	Limit  int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a reflection search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}
