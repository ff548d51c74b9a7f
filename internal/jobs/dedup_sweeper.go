package jobs

import (
	"context"

	"github.com/cloo-solutions/docsage/internal/dedup"
	"github.com/cloo-solutions/docsage/internal/logger"
)

// DedupSweeper evicts expired entries from an in-process dedup store.
type DedupSweeper struct {
	evictor dedup.Evictor
	log     *logger.Logger
}

func NewDedupSweeper(evictor dedup.Evictor, log *logger.Logger) *DedupSweeper {
	if log == nil {
		log = logger.Nop()
	}
	return &DedupSweeper{evictor: evictor, log: log}
}

// Run performs one eviction pass.
func (s *DedupSweeper) Run(ctx context.Context) error {
	n, err := s.evictor.EvictExpired(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		s.log.Debug("evicted expired dedup entries", "count", n)
	}
	return nil
}
