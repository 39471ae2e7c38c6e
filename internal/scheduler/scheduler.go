// Package scheduler triggers ingestion runs on per-source cron schedules.
// Sources sharing a schedule form a group; a group's sources run
// sequentially with a stagger delay so co-scheduled connectors do not hit
// the network at the same instant.
package scheduler

import (
	"context"
	"sort"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-research/pricewatch/internal/connector"
	"github.com/meridian-research/pricewatch/internal/model"
)

// DefaultStagger is the pause between sources in one schedule group.
const DefaultStagger = 5 * time.Second

// actorID recorded on scheduled runs.
const actorID = "scheduler"

// Runner is the orchestrator surface the scheduler drives.
type Runner interface {
	RunSingle(ctx context.Context, conn connector.Connector, trigger model.TriggerKind, actorID string) (*model.IngestionRun, error)
}

type group struct {
	expr       string
	schedule   cron.Schedule
	connectors []connector.Connector
}

// Scheduler holds the validated schedule groups.
type Scheduler struct {
	runner  Runner
	stagger time.Duration
	groups  []group
}

// New validates every connector's cron expression with the standard
// five-field parser and groups connectors by expression. Connectors
// without a schedule are manual-only and excluded. An invalid expression
// fails construction.
func New(runner Runner, connectors []connector.Connector, stagger time.Duration) (*Scheduler, error) {
	if stagger <= 0 {
		stagger = DefaultStagger
	}

	byExpr := make(map[string]*group)
	for _, conn := range connectors {
		expr := conn.Config().Schedule
		if expr == "" {
			continue
		}
		g, ok := byExpr[expr]
		if !ok {
			schedule, err := cron.ParseStandard(expr)
			if err != nil {
				return nil, eris.Wrapf(err, "scheduler: invalid schedule %q for source %s", expr, conn.Config().SourceID)
			}
			g = &group{expr: expr, schedule: schedule}
			byExpr[expr] = g
		}
		g.connectors = append(g.connectors, conn)
	}

	groups := make([]group, 0, len(byExpr))
	for _, g := range byExpr {
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].expr < groups[j].expr })

	return &Scheduler{runner: runner, stagger: stagger, groups: groups}, nil
}

// Groups returns the distinct schedule expressions, sorted.
func (s *Scheduler) Groups() []string {
	exprs := make([]string, len(s.groups))
	for i, g := range s.groups {
		exprs[i] = g.expr
	}
	return exprs
}

// NextActivations reports when each group next fires after now.
func (s *Scheduler) NextActivations(now time.Time) map[string]time.Time {
	next := make(map[string]time.Time, len(s.groups))
	for _, g := range s.groups {
		next[g.expr] = g.schedule.Next(now)
	}
	return next
}

// RunDue executes every group whose schedule fires in the minute
// containing now. Group and connector failures are logged; the remaining
// due work still runs.
func (s *Scheduler) RunDue(ctx context.Context, now time.Time) []*model.IngestionRun {
	minute := now.Truncate(time.Minute)

	var runs []*model.IngestionRun
	for _, g := range s.groups {
		next := g.schedule.Next(minute.Add(-time.Second))
		if next.After(minute) {
			continue
		}
		runs = append(runs, s.runGroup(ctx, g)...)
	}
	return runs
}

// Start blocks, firing groups on their schedules until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	c := cron.New()
	for _, g := range s.groups {
		g := g
		if _, err := c.AddFunc(g.expr, func() {
			s.runGroup(ctx, g)
		}); err != nil {
			return eris.Wrapf(err, "scheduler: register %q", g.expr)
		}
	}

	zap.L().Info("scheduler started", zap.Int("groups", len(s.groups)))
	c.Start()
	<-ctx.Done()
	stopCtx := c.Stop()
	<-stopCtx.Done()
	return ctx.Err()
}

func (s *Scheduler) runGroup(ctx context.Context, g group) []*model.IngestionRun {
	log := zap.L().With(zap.String("schedule", g.expr))
	log.Info("schedule group firing", zap.Int("sources", len(g.connectors)))

	var runs []*model.IngestionRun
	for i, conn := range g.connectors {
		if i > 0 {
			select {
			case <-time.After(s.stagger):
			case <-ctx.Done():
				log.Warn("schedule group interrupted", zap.Error(ctx.Err()))
				return runs
			}
		}

		run, err := s.runner.RunSingle(ctx, conn, model.TriggerScheduled, actorID)
		if err != nil {
			log.Warn("scheduled run failed",
				zap.String("source_id", conn.Config().SourceID),
				zap.Error(err),
			)
			continue
		}
		runs = append(runs, run)
	}
	return runs
}
