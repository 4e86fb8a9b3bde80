package syncer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PeriodFetcher is what the runner needs from the source side.
type PeriodFetcher interface {
	Fetch(p Period) FetchResult
}

// Replica is what the runner needs from the remote side.
type Replica interface {
	Pull(localPath string) error
	Push(localPath string, message string) error
}

// PeriodOutcome reports what happened to one period, so an operator can see
// exactly which periods were merged, absent or skipped across a run instead
// of a single aggregate flag.
type PeriodOutcome struct {
	Period   Period
	Status   FetchStatus
	Inserted int
	Seen     int
	Err      error
}

type RunStats struct {
	PeriodsMissing int
	PeriodsMerged  int
	PeriodsAbsent  int
	PeriodsFailed  int
	RowsSeen       int
	RowsInserted   int
	Pushed         bool
	Outcomes       []PeriodOutcome
}

type RunnerConfig struct {
	DBPath string
	Epoch  Period
	Push   bool
	// InitEmpty permits starting with a fresh store when neither a local
	// nor a remote copy exists (first deployment only).
	InitEmpty bool
}

// Runner drives the catch-up: resolve missing periods, then for each period
// fetch, normalize and merge, each period committed on its own; finally push
// the store when anything changed. Periods run strictly oldest first.
type Runner struct {
	cfg        RunnerConfig
	fetcher    PeriodFetcher
	normalizer *Normalizer
	remote     Replica
	logger     *zap.Logger

	db      *gorm.DB
	running atomic.Bool
	nowFn   func() time.Time
}

func NewRunner(cfg RunnerConfig, fetcher PeriodFetcher, normalizer *Normalizer, remote Replica, logger *zap.Logger) (*Runner, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("DBPath is required")
	}
	if cfg.Epoch.Year == 0 {
		return nil, fmt.Errorf("Epoch is required")
	}
	if fetcher == nil || normalizer == nil {
		return nil, fmt.Errorf("fetcher and normalizer are required")
	}
	return &Runner{
		cfg:        cfg,
		fetcher:    fetcher,
		normalizer: normalizer,
		remote:     remote,
		logger:     logger,
		nowFn:      time.Now,
	}, nil
}

func (r *Runner) Close() error {
	return r.closeDB()
}

func (r *Runner) closeDB() error {
	if r.db == nil {
		return nil
	}
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	err = sqlDB.Close()
	r.db = nil
	return err
}

// ensureLocalStore settles the startup state: with no local copy the
// canonical remote blob is pulled first, and only then is the store opened
// (migrating the schema on a fresh file when InitEmpty allows one).
func (r *Runner) ensureLocalStore() error {
	if r.db != nil {
		return nil
	}
	if _, err := os.Stat(r.cfg.DBPath); os.IsNotExist(err) {
		if r.remote == nil {
			if !r.cfg.InitEmpty {
				return fmt.Errorf("no local store at %s and no remote configured", r.cfg.DBPath)
			}
		} else if err := r.remote.Pull(r.cfg.DBPath); err != nil {
			if errors.Is(err, ErrRemoteMissing) && r.cfg.InitEmpty {
				r.logger.Info("no remote store, starting empty", zap.String("path", r.cfg.DBPath))
			} else {
				return fmt.Errorf("no local store and pull failed: %w", err)
			}
		}
	}
	db, err := OpenDB(r.cfg.DBPath)
	if err != nil {
		return err
	}
	r.db = db
	return nil
}

// ForcePull discards the local store and re-pulls the canonical copy.
// Operator-triggered only.
func (r *Runner) ForcePull() error {
	if r.remote == nil {
		return fmt.Errorf("no remote configured")
	}
	if !r.running.CompareAndSwap(false, true) {
		return fmt.Errorf("sync already running")
	}
	defer r.running.Store(false)

	if err := r.closeDB(); err != nil {
		return err
	}
	return r.remote.Pull(r.cfg.DBPath)
}

// RunOnce performs one full catch-up. The context is honored between
// periods: cancelling mid-run leaves a valid store holding every period
// merged so far.
func (r *Runner) RunOnce(ctx context.Context) (*RunStats, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("sync already running")
	}
	defer r.running.Store(false)

	start := time.Now()
	stats := &RunStats{}

	if err := r.ensureLocalStore(); err != nil {
		return stats, err
	}

	cursor, err := LatestCaseDate(r.db)
	if err != nil {
		return stats, fmt.Errorf("read sync cursor: %w", err)
	}
	periods := MissingPeriods(cursor, r.nowFn().UTC(), r.cfg.Epoch)
	stats.PeriodsMissing = len(periods)
	if cursor != nil {
		r.logger.Info("sync cursor",
			zap.String("latest_case_date", cursor.Format("2006-01-02")),
			zap.Int("missing_periods", len(periods)),
		)
	} else {
		r.logger.Info("empty sync cursor, starting from epoch",
			zap.String("epoch", r.cfg.Epoch.String()),
			zap.Int("missing_periods", len(periods)),
		)
	}

	for i, p := range periods {
		if err := ctx.Err(); err != nil {
			r.logger.Warn("sync interrupted",
				zap.String("period", p.String()),
				zap.Int("processed", i),
				zap.Int("remaining", len(periods)-i),
			)
			return stats, err
		}
		outcome := r.processPeriod(p)
		stats.Outcomes = append(stats.Outcomes, outcome)
		switch outcome.Status {
		case FetchData:
			stats.PeriodsMerged++
			stats.RowsSeen += outcome.Seen
			stats.RowsInserted += outcome.Inserted
		case FetchAbsent:
			stats.PeriodsAbsent++
		case FetchFailed:
			stats.PeriodsFailed++
		}
		// Progress is the operator's only window into a long first-run
		// catch-up, so every period reports individually.
		r.logger.Info("period processed",
			zap.String("period", p.String()),
			zap.String("status", outcome.Status.String()),
			zap.Int("inserted", outcome.Inserted),
			zap.String("progress", fmt.Sprintf("%d/%d", i+1, len(periods))),
		)
	}

	total, err := CountNotifications(r.db)
	if err != nil {
		return stats, err
	}

	if stats.RowsInserted > 0 && r.cfg.Push && r.remote != nil {
		if err := r.pushStore(fmt.Sprintf("sync: %d new notifications", stats.RowsInserted)); err != nil {
			return stats, err
		}
		stats.Pushed = true
	}

	r.logger.Info("sync done",
		zap.Int("periods_missing", stats.PeriodsMissing),
		zap.Int("periods_merged", stats.PeriodsMerged),
		zap.Int("periods_absent", stats.PeriodsAbsent),
		zap.Int("periods_failed", stats.PeriodsFailed),
		zap.Int("rows_inserted", stats.RowsInserted),
		zap.Int64("store_records", total),
		zap.Bool("pushed", stats.Pushed),
		zap.Duration("elapsed", time.Since(start)),
	)
	return stats, nil
}

// processPeriod contains every per-period error inside the period: a failed
// fetch or an unreadable workbook skips this period and the loop moves on.
func (r *Runner) processPeriod(p Period) PeriodOutcome {
	res := r.fetcher.Fetch(p)
	switch res.Status {
	case FetchAbsent:
		return PeriodOutcome{Period: p, Status: FetchAbsent}
	case FetchFailed:
		return PeriodOutcome{Period: p, Status: FetchFailed, Err: res.Err}
	}

	candidates, err := r.normalizer.Normalize(res.Data)
	if err != nil {
		// Malformed workbook is reported like a fetch failure for the
		// period: skipped, not fatal.
		r.logger.Warn("malformed workbook",
			zap.String("period", p.String()),
			zap.Error(err),
		)
		return PeriodOutcome{Period: p, Status: FetchFailed, Err: err}
	}

	inserted, err := Merge(r.db, candidates)
	if err != nil {
		r.logger.Warn("merge failed",
			zap.String("period", p.String()),
			zap.Error(err),
		)
		return PeriodOutcome{Period: p, Status: FetchFailed, Err: err}
	}
	return PeriodOutcome{Period: p, Status: FetchData, Seen: len(candidates), Inserted: inserted}
}

// ImportFile runs a locally supplied workbook through the same normalize
// and merge pipeline as a fetched period, then pushes when configured.
func (r *Runner) ImportFile(path string) (int, error) {
	if !r.running.CompareAndSwap(false, true) {
		return 0, fmt.Errorf("sync already running")
	}
	defer r.running.Store(false)

	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	if err := r.ensureLocalStore(); err != nil {
		return 0, err
	}
	candidates, err := r.normalizer.Normalize(raw)
	if err != nil {
		return 0, err
	}
	inserted, err := Merge(r.db, candidates)
	if err != nil {
		return 0, err
	}
	r.logger.Info("imported workbook",
		zap.String("path", path),
		zap.Int("rows_seen", len(candidates)),
		zap.Int("rows_inserted", inserted),
	)
	if inserted > 0 && r.cfg.Push && r.remote != nil {
		if err := r.pushStore(fmt.Sprintf("import: %d new notifications", inserted)); err != nil {
			return inserted, err
		}
	}
	return inserted, nil
}

// pushStore closes the sqlite handle before reading the file so the pushed
// bytes are a settled, journal-free snapshot.
func (r *Runner) pushStore(message string) error {
	if err := r.closeDB(); err != nil {
		return err
	}
	return r.remote.Push(r.cfg.DBPath, message)
}
