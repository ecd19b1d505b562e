/*
scheduler.go - Periodic balance rebuild

PURPOSE:
  Keeps stored balance rows in line with the canonical recompute without
  anyone calling the rebuild endpoint:

  - EARNED entitlement grows with service; the Total of a stored row is
    refreshed whenever it is read for today, and here for employees nobody
    has touched.
  - On January 1 the CASUAL row of the new accounting year does not exist
    until something materializes it.
  - Manual overrides drift from the approved history; each run reports and
    corrects that drift, separately from accrual and newly created rows.

DESIGN:
  - Background goroutine, one rebuild of every employee per tick
  - Runs once immediately on Start
  - A run that sees a new calendar year logs the rollover

CONFIGURATION:
  - CheckInterval: How often to rebuild (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewRolloverScheduler(service, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RebuildAll endpoint (manual trigger)
  - leave/service.go: Service.RebuildAll
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// RolloverScheduler rebuilds every employee's balances on an interval.
type RolloverScheduler struct {
	Service       *leave.Service
	Logger        *slog.Logger
	CheckInterval time.Duration
	Enabled       bool

	ticker   *time.Ticker
	stop     chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	lastYear int
	lastRun  time.Time
}

func NewRolloverScheduler(service *leave.Service, logger *slog.Logger) *RolloverScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RolloverScheduler{
		Service:       service,
		Logger:        logger.With("component", "scheduler"),
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
	}
}

// Start begins the scheduler.
func (rs *RolloverScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled || rs.CheckInterval <= 0 {
		rs.Logger.Info("scheduler disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.stop = make(chan struct{})
	rs.wg.Add(1)

	go rs.run(rs.ticker, rs.stop)

	rs.Logger.Info("scheduler started", "interval", rs.CheckInterval.String())
}

// Stop stops the scheduler and waits for a run in progress.
func (rs *RolloverScheduler) Stop() {
	rs.mu.Lock()
	ticker, stop := rs.ticker, rs.stop
	rs.ticker = nil
	rs.mu.Unlock()

	if ticker == nil {
		return
	}
	ticker.Stop()
	close(stop)
	rs.wg.Wait()
	rs.Logger.Info("scheduler stopped")
}

func (rs *RolloverScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer rs.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	// Run immediately on start
	rs.RunNow(ctx)

	for {
		select {
		case <-ticker.C:
			rs.RunNow(ctx)
		case <-stop:
			return
		}
	}
}

// RunNow rebuilds every employee as of today.
func (rs *RolloverScheduler) RunNow(ctx context.Context) ([]leave.RebuildReport, error) {
	now := rs.Service.Now()
	today := generic.DateOf(now)

	rs.mu.Lock()
	previousYear := rs.lastYear
	rs.lastYear = today.Year()
	rs.lastRun = now
	rs.mu.Unlock()

	if previousYear != 0 && previousYear != today.Year() {
		rs.Logger.Info("accounting year rolled over", "from", previousYear, "to", today.Year())
	}

	reports, err := rs.Service.RebuildAll(ctx, today)
	if err != nil {
		rs.Logger.Error("rebuild failed", "error", err)
	}

	var corrected, accrued, created int
	for _, report := range reports {
		corrected += len(report.Drift)
		accrued += len(report.Accrued)
		created += len(report.Created)
	}
	rs.Logger.Info("rebuild completed", "as_of", today.String(), "employees", len(reports),
		"rows_corrected", corrected, "rows_accrued", accrued, "rows_created", created)

	return reports, err
}

// NextRunTime returns when the next scheduled run will occur.
func (rs *RolloverScheduler) NextRunTime() time.Time {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.lastRun.IsZero() {
		return rs.Service.Now()
	}
	return rs.lastRun.Add(rs.CheckInterval)
}
