// Package sweep runs the periodic auto-close job that transitions
// lock-expired open days to auto_closed.
package sweep

import (
	"context"
	"log"
	"time"
)

// Service is the slice of the application the sweeper drives.
type Service interface {
	UsersWithOpenDays(ctx context.Context) ([]string, error)
	AutoClosePendingDays(ctx context.Context, userID string) (int, error)
}

type Sweeper struct {
	service  Service
	interval time.Duration
}

func New(service Service, interval time.Duration) *Sweeper {
	return &Sweeper{service: service, interval: interval}
}

// Run sweeps once immediately, then on every tick until ctx is cancelled.
// Each sweep is idempotent, so overlapping or repeated runs are harmless.
func (s *Sweeper) Run(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil {
		log.Printf("sweep: initial run: %v", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				log.Printf("sweep: %v", err)
			}
		}
	}
}

// RunOnce visits every user with open day documents and auto-closes the
// lock-expired ones. A failing user is logged and skipped; the returned
// count covers only documents actually transitioned.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	userIDs, err := s.service.UsersWithOpenDays(ctx)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, userID := range userIDs {
		n, err := s.service.AutoClosePendingDays(ctx, userID)
		if err != nil {
			log.Printf("sweep: user %s: %v", userID, err)
			continue
		}
		total += n
	}
	if total > 0 {
		log.Printf("sweep: auto-closed %d day(s) across %d user(s)", total, len(userIDs))
	}
	return total, nil
}
