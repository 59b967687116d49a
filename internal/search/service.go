package search

import (
	"log"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService creates a search service. meili may be nil if Meilisearch is not
// configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexReflection indexes a closed day's reflection (fire-and-forget to
// Meilisearch; the PG fallback reads live rows and needs no indexing).
func (s *Service) IndexReflection(rec ReflectionRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	if rec.ID == "" {
		rec.ID = RecordID(rec.UserID, rec.DateKey)
	}
	go func() {
		if err := s.meili.IndexReflection(rec); err != nil {
			log.Printf("search: index reflection %s: %v", rec.ID, err)
		}
	}()
}

// DeleteReflection removes a day's reflection from the index
// (fire-and-forget).
func (s *Service) DeleteReflection(userID, dateKey string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	id := RecordID(userID, dateKey)
	go func() {
		if err := s.meili.DeleteReflection(id); err != nil {
			log.Printf("search: delete reflection %s: %v", id, err)
		}
	}()
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
