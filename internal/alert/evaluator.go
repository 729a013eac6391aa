package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pulseboard/internal/metrics"
)

// SnapshotProvider supplies the current named metric values for one
// application.
type SnapshotProvider interface {
	Snapshot(ctx context.Context, application string) (map[string]float64, error)
}

// TriggerEvent is the outcome of a rule whose condition currently holds.
type TriggerEvent struct {
	CurrentValue float64
	Message      string
}

// Evaluator decides whether a rule is triggered. It tracks, per rule, how
// long the condition has been continuously true so rules with a sustain
// duration only fire after the condition held that long; the tracked state
// resets whenever the condition reads false or the metric is absent.
type Evaluator struct {
	Live SnapshotProvider

	mu        sync.Mutex
	firstTrue map[string]time.Time

	// Now is overridable for tests; nil means time.Now.
	Now func() time.Time
}

func NewEvaluator(live SnapshotProvider) *Evaluator {
	return &Evaluator{Live: live, firstTrue: map[string]time.Time{}}
}

func (e *Evaluator) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Evaluate returns a non-nil event when the rule fires. A metric missing
// from the snapshot is a skip, not an error.
func (e *Evaluator) Evaluate(ctx context.Context, rule Rule) (*TriggerEvent, error) {
	snapshot, err := e.Live.Snapshot(ctx, rule.Application)
	if err != nil {
		return nil, err
	}
	return e.EvaluateWithSnapshot(rule, snapshot), nil
}

// EvaluateWithSnapshot applies the rule against an already-fetched
// snapshot. The scheduler uses this to share one snapshot across every
// rule of the same application.
func (e *Evaluator) EvaluateWithSnapshot(rule Rule, snapshot map[string]float64) *TriggerEvent {
	key := metrics.SnapshotKey(rule.MetricType)
	if key == "" {
		return nil
	}
	current, ok := snapshot[key]
	if !ok {
		e.Reset(rule.ID)
		return nil
	}
	holds, known := rule.Operator.Holds(current, rule.Threshold)
	if !known || !holds {
		e.Reset(rule.ID)
		return nil
	}
	if !e.sustained(rule) {
		return nil
	}
	unit := metrics.Unit(rule.MetricType)
	return &TriggerEvent{
		CurrentValue: current,
		Message: fmt.Sprintf("[%s] %s: %s is %.2f%s (threshold %s %.2f%s)",
			rule.Severity, rule.Name, key, current, unit, rule.Operator, rule.Threshold, unit),
	}
}

func (e *Evaluator) sustained(rule Rule) bool {
	if rule.DurationMinutes <= 0 {
		return true
	}
	now := e.now()
	e.mu.Lock()
	defer e.mu.Unlock()
	first, ok := e.firstTrue[rule.ID]
	if !ok {
		e.firstTrue[rule.ID] = now
		return false
	}
	return now.Sub(first) >= time.Duration(rule.DurationMinutes)*time.Minute
}

// Reset drops the continuity state for a rule. Called when the condition
// stops holding and when a rule is edited or removed.
func (e *Evaluator) Reset(ruleID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.firstTrue, ruleID)
}

// PruneExcept drops continuity state for every rule id not in keep. The
// scheduler calls it after each firing so state for deleted or disabled
// rules does not linger when no rule-change events arrive.
func (e *Evaluator) PruneExcept(keep map[string]struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id := range e.firstTrue {
		if _, ok := keep[id]; !ok {
			delete(e.firstTrue, id)
		}
	}
}
