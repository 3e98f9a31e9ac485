package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/rmolina/gamebind/pkg/entities"
	ledgerRepo "github.com/rmolina/gamebind/pkg/repositories/ledger"
)

// reconciliation batch sizes
const (
	ambiguousReportLimit = 50
	archiveBatchLimit    = 500
)

// ReconciliationScheduler runs the redemption housekeeping tasks: reporting
// ambiguous transactions that need human or tooling attention, and archiving
// terminal transactions into Elasticsearch for audit queries. It never
// mutates an ambiguous transaction — resolution stays a deliberate act.
type ReconciliationScheduler struct {
	scheduler    *Scheduler
	repo         ledgerRepo.Repository
	archive      *ledgerRepo.ElasticsearchArchive
	ambiguousAge time.Duration
	interval     time.Duration
}

// NewReconciliationScheduler creates the housekeeping scheduler. The archive
// may be nil when Elasticsearch is not configured; only the ambiguous report
// runs in that case.
func NewReconciliationScheduler(repo ledgerRepo.Repository, archive *ledgerRepo.ElasticsearchArchive, ambiguousAge, interval time.Duration) *ReconciliationScheduler {
	if ambiguousAge <= 0 {
		ambiguousAge = 10 * time.Minute
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &ReconciliationScheduler{
		scheduler:    NewScheduler(),
		repo:         repo,
		archive:      archive,
		ambiguousAge: ambiguousAge,
		interval:     interval,
	}
}

// Start initializes and starts the housekeeping tasks
func (s *ReconciliationScheduler) Start(ctx context.Context) {
	s.scheduler.AddTask("ambiguous_report", s.interval, s.reportAmbiguous)

	if s.archive != nil {
		s.scheduler.AddTask("redemption_archive", s.interval, s.archiveTerminal)
	}

	s.scheduler.Start(ctx)
	log.Println("Reconciliation scheduler started")
}

// Stop stops the housekeeping tasks
func (s *ReconciliationScheduler) Stop() {
	s.scheduler.Stop()
	log.Println("Reconciliation scheduler stopped")
}

// reportAmbiguous logs ambiguous transactions older than the configured age
// so support can reconcile them against the game's records by idempotency
// token. Recent ambiguous transactions are skipped: their callers may still
// be reacting.
func (s *ReconciliationScheduler) reportAmbiguous(ctx context.Context) error {
	txns, err := s.repo.ListRedemptionsByStatus(ctx, entities.RedemptionAmbiguous, ambiguousReportLimit)
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-s.ambiguousAge)
	stale := 0
	for _, txn := range txns {
		if txn.CreatedAt.After(cutoff) {
			continue
		}
		stale++
		log.Printf("[RECONCILE] Ambiguous redemption %s: identity=%s handle=%s points=%d currency=%d since=%s",
			txn.ID, txn.Identity, txn.Handle, txn.PointsReserved, txn.CurrencyAmount,
			txn.CreatedAt.Format(time.RFC3339))
	}

	if stale > 0 {
		log.Printf("[RECONCILE] %d ambiguous redemption(s) awaiting reconciliation", stale)
	}

	return nil
}

// archiveTerminal bulk-indexes committed and compensated transactions into
// Elasticsearch. Re-archiving is an overwrite keyed by transaction id, so
// running this repeatedly over the same rows is harmless.
func (s *ReconciliationScheduler) archiveTerminal(ctx context.Context) error {
	for _, status := range []entities.RedemptionStatus{
		entities.RedemptionCommitted,
		entities.RedemptionCompensated,
	} {
		txns, err := s.repo.ListRedemptionsByStatus(ctx, status, archiveBatchLimit)
		if err != nil {
			return err
		}
		if err := s.archive.ArchiveRedemptions(ctx, txns); err != nil {
			return err
		}
	}
	return nil
}
