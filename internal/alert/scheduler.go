package alert

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"pulseboard/internal/telemetry"
)

// RuleStore is the persistence collaborator the scheduler needs.
type RuleStore interface {
	ListActiveRules(ctx context.Context) ([]Rule, error)
	RecordTrigger(ctx context.Context, h History) (string, error)
}

// Dispatcher sends a triggered alert to the rule's channels and reports
// whether anything was delivered.
type Dispatcher interface {
	Dispatch(ctx context.Context, methods []NotificationMethod, subject, message string) (sent bool, result string)
}

// SnapshotCache is an optional short-TTL cache in front of the live
// snapshot fetch.
type SnapshotCache interface {
	Get(ctx context.Context, application string) (map[string]float64, bool)
	Set(ctx context.Context, application string, snapshot map[string]float64)
}

// Scheduler drives the periodic alert check. Firings never overlap: a
// tick that lands while the previous firing is still running is skipped.
type Scheduler struct {
	Store      RuleStore
	Evaluator  *Evaluator
	Dispatcher Dispatcher
	Cache      SnapshotCache
	Interval   time.Duration
	Cooldown   time.Duration
	Timeout    time.Duration
	Logger     *slog.Logger

	// Now is overridable for tests; nil means time.Now.
	Now func() time.Time

	runMu sync.Mutex
	stop  chan struct{}
	done  chan struct{}
}

func NewScheduler(store RuleStore, eval *Evaluator, dispatcher Dispatcher, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		Store:      store,
		Evaluator:  eval,
		Dispatcher: dispatcher,
		Interval:   interval,
		Timeout:    30 * time.Second,
		Logger:     logger,
	}
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Scheduler) Start() {
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), s.Timeout)
				if err := s.RunOnce(ctx); err != nil {
					s.Logger.Error("alert firing failed", slog.String("error", err.Error()))
				}
				cancel()
			case <-s.stop:
				return
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.done
	s.stop = nil
}

// RunOnce processes every active rule. A rule or application failing is
// logged and does not abort the rest; only a failure to load the rule
// list fails the firing.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if !s.runMu.TryLock() {
		telemetry.SchedulerSkipped.Inc()
		s.Logger.Warn("previous firing still running, skipping tick")
		return nil
	}
	defer s.runMu.Unlock()

	rules, err := s.Store.ListActiveRules(ctx)
	if err != nil {
		return fmt.Errorf("loading active rules: %w", err)
	}

	byApp := map[string][]Rule{}
	active := make(map[string]struct{}, len(rules))
	for _, rule := range rules {
		byApp[rule.Application] = append(byApp[rule.Application], rule)
		active[rule.ID] = struct{}{}
	}

	for application, appRules := range byApp {
		snapshot, err := s.snapshot(ctx, application)
		if err != nil {
			s.Logger.Warn("snapshot fetch failed, skipping rules for application",
				slog.String("application", application),
				slog.Int("rules", len(appRules)),
				slog.String("error", err.Error()))
			continue
		}
		for _, rule := range appRules {
			s.evaluateRule(ctx, rule, snapshot)
		}
	}

	s.Evaluator.PruneExcept(active)
	telemetry.SchedulerFirings.Inc()
	return nil
}

func (s *Scheduler) snapshot(ctx context.Context, application string) (map[string]float64, error) {
	if s.Cache != nil {
		if snapshot, ok := s.Cache.Get(ctx, application); ok {
			return snapshot, nil
		}
	}
	snapshot, err := s.Evaluator.Live.Snapshot(ctx, application)
	if err != nil {
		return nil, err
	}
	if s.Cache != nil {
		s.Cache.Set(ctx, application, snapshot)
	}
	return snapshot, nil
}

func (s *Scheduler) evaluateRule(ctx context.Context, rule Rule, snapshot map[string]float64) {
	telemetry.RulesEvaluated.Inc()

	if s.Cooldown > 0 && rule.LastTriggeredAt != nil &&
		s.now().Sub(*rule.LastTriggeredAt) < s.Cooldown {
		return
	}

	event := s.Evaluator.EvaluateWithSnapshot(rule, snapshot)
	if event == nil {
		return
	}

	draft := History{
		RuleID:       rule.ID,
		TriggeredAt:  s.now(),
		CurrentValue: event.CurrentValue,
		Threshold:    rule.Threshold,
		Message:      event.Message,
		Severity:     rule.Severity,
	}
	subject := fmt.Sprintf("[%s] %s triggered", rule.Severity, rule.Name)
	draft.NotificationSent, draft.NotificationResult = s.Dispatcher.Dispatch(ctx, rule.Methods, subject, event.Message)

	if _, err := s.Store.RecordTrigger(ctx, draft); err != nil {
		s.Logger.Error("failed to persist alert history",
			slog.String("rule", rule.Name),
			slog.String("error", err.Error()))
		return
	}
	telemetry.AlertsTriggered.WithLabelValues(string(rule.Severity)).Inc()
	s.Logger.Info("alert triggered",
		slog.String("rule", rule.Name),
		slog.Float64("currentValue", event.CurrentValue),
		slog.Float64("threshold", rule.Threshold),
		slog.Bool("notificationSent", draft.NotificationSent))
}
