package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/bahbah94/Orbex/internal/domain"
)

// archiveLockKey guards archive runs across deployments; only one process
// may prune the trades table at a time.
const (
	archiveLockKey = "archive:trades"
	archiveLockTTL = 15 * time.Minute
)

// Notifier delivers operator alerts about archive runs.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Archiver moves aged-out trades from the database to cold storage on a cron
// schedule.
type Archiver struct {
	blobArchiver  domain.Archiver
	retentionDays int
	locker        domain.Locker
	notifier      Notifier
	logger        *slog.Logger
}

// NewArchiver creates an Archiver. locker and notifier may be nil.
func NewArchiver(blobArchiver domain.Archiver, retentionDays int, locker domain.Locker, notifier Notifier, logger *slog.Logger) *Archiver {
	return &Archiver{
		blobArchiver:  blobArchiver,
		retentionDays: retentionDays,
		locker:        locker,
		notifier:      notifier,
		logger:        logger,
	}
}

// Run executes a single archive pass over trades older than the retention
// cutoff.
func (a *Archiver) Run(ctx context.Context) error {
	if a.locker != nil {
		unlock, err := a.locker.Acquire(ctx, archiveLockKey, archiveLockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				a.logger.InfoContext(ctx, "archive run skipped, another instance holds the lock")
				return nil
			}
			return fmt.Errorf("acquiring archive lock: %w", err)
		}
		defer unlock()
	}

	cutoff := time.Now().UTC().Add(-time.Duration(a.retentionDays) * 24 * time.Hour)
	a.logger.InfoContext(ctx, "starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.retentionDays),
	)

	archived, err := a.blobArchiver.ArchiveTrades(ctx, cutoff)
	if err != nil {
		a.notify(ctx, "archive_failed", "Archive run failed", err.Error())
		return fmt.Errorf("archiving trades before %v: %w", cutoff, err)
	}

	a.logger.InfoContext(ctx, "archive run complete", slog.Int64("trades_archived", archived))
	a.notify(ctx, "archive_complete", "Archive run complete",
		fmt.Sprintf("%d trades archived before %s", archived, cutoff.Format(time.RFC3339)))
	return nil
}

// RunCron runs the archiver on a cron schedule until the context is
// cancelled. Expressions use the standard 5-field format:
// "minute hour day-of-month month day-of-week".
//
// Example: "0 3 * * *" runs at 03:00 UTC every day.
func (a *Archiver) RunCron(ctx context.Context, cronExpr string) error {
	a.logger.Info("archiver cron started", slog.String("cron", cronExpr))

	for {
		next, err := nextCronTime(cronExpr, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("parsing cron expression %q: %w", cronExpr, err)
		}

		a.logger.Info("archiver waiting for next trigger",
			slog.Time("next_run", next),
			slog.Duration("wait", time.Until(next)),
		)

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			a.logger.Info("archiver cron stopped")
			return ctx.Err()
		case <-timer.C:
			if err := a.Run(ctx); err != nil {
				a.logger.Error("archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (a *Archiver) notify(ctx context.Context, event, title, message string) {
	if a.notifier == nil {
		return
	}
	if err := a.notifier.Notify(ctx, event, title, message); err != nil {
		a.logger.WarnContext(ctx, "archive notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// cronField is one parsed cron field.
type cronField struct {
	wildcard bool
	step     int // 0 means no step constraint
	values   []int
}

func (f cronField) matches(val int) bool {
	if f.wildcard {
		return f.step == 0 || val%f.step == 0
	}
	for _, v := range f.values {
		if v == val {
			return true
		}
	}
	return false
}

// parseCronField parses a single cron field: "*", "*/15", "30", "1,15" or
// "9-17".
func parseCronField(field string) (cronField, error) {
	if field == "*" {
		return cronField{wildcard: true}, nil
	}
	if rest, ok := strings.CutPrefix(field, "*/"); ok {
		step, err := strconv.Atoi(rest)
		if err != nil || step <= 0 {
			return cronField{}, fmt.Errorf("invalid cron step %q", field)
		}
		return cronField{wildcard: true, step: step}, nil
	}

	values := make([]int, 0, 4)
	for _, p := range strings.Split(field, ",") {
		p = strings.TrimSpace(p)
		if lo, hi, ok := strings.Cut(p, "-"); ok {
			start, err1 := strconv.Atoi(lo)
			end, err2 := strconv.Atoi(hi)
			if err1 != nil || err2 != nil || end < start {
				return cronField{}, fmt.Errorf("invalid cron range %q", p)
			}
			for v := start; v <= end; v++ {
				values = append(values, v)
			}
			continue
		}
		v, err := strconv.Atoi(p)
		if err != nil {
			return cronField{}, fmt.Errorf("invalid cron field value %q: %w", p, err)
		}
		values = append(values, v)
	}
	return cronField{values: values}, nil
}

// parsedCron holds the five parsed cron fields.
type parsedCron struct {
	minute     cronField
	hour       cronField
	dayOfMonth cronField
	month      cronField
	dayOfWeek  cronField
}

func (c parsedCron) matchesTime(t time.Time) bool {
	return c.minute.matches(t.Minute()) &&
		c.hour.matches(t.Hour()) &&
		c.dayOfMonth.matches(t.Day()) &&
		c.month.matches(int(t.Month())) &&
		c.dayOfWeek.matches(int(t.Weekday()))
}

func parseCron(expr string) (parsedCron, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return parsedCron{}, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}

	var (
		parsed parsedCron
		err    error
	)
	if parsed.minute, err = parseCronField(fields[0]); err != nil {
		return parsedCron{}, fmt.Errorf("parsing minute field: %w", err)
	}
	if parsed.hour, err = parseCronField(fields[1]); err != nil {
		return parsedCron{}, fmt.Errorf("parsing hour field: %w", err)
	}
	if parsed.dayOfMonth, err = parseCronField(fields[2]); err != nil {
		return parsedCron{}, fmt.Errorf("parsing day-of-month field: %w", err)
	}
	if parsed.month, err = parseCronField(fields[3]); err != nil {
		return parsedCron{}, fmt.Errorf("parsing month field: %w", err)
	}
	if parsed.dayOfWeek, err = parseCronField(fields[4]); err != nil {
		return parsedCron{}, fmt.Errorf("parsing day-of-week field: %w", err)
	}
	return parsed, nil
}

// nextCronTime finds the first minute after 'after' matching the expression,
// searching up to one year ahead.
func nextCronTime(cronExpr string, after time.Time) (time.Time, error) {
	cron, err := parseCron(cronExpr)
	if err != nil {
		return time.Time{}, err
	}

	candidate := after.Truncate(time.Minute).Add(time.Minute)
	limit := after.Add(366 * 24 * time.Hour)

	for candidate.Before(limit) {
		if cron.matchesTime(candidate) {
			return candidate, nil
		}
		candidate = candidate.Add(time.Minute)
	}
	return time.Time{}, fmt.Errorf("no matching cron time within one year for %q", cronExpr)
}
