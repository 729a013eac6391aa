// Package alert holds the rule model, the evaluator and the periodic
// scheduler that turns rule violations into history records and
// notifications.
package alert

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"pulseboard/internal/metrics"
)

type ConditionOperator string

const (
	OpGreater        ConditionOperator = ">"
	OpGreaterOrEqual ConditionOperator = ">="
	OpLess           ConditionOperator = "<"
	OpLessOrEqual    ConditionOperator = "<="
	OpEqual          ConditionOperator = "=="
)

// compare uses decimal semantics so boundary values like 80 vs 80.0 never
// flip on float representation.
var operatorCompare = map[ConditionOperator]func(current, threshold decimal.Decimal) bool{
	OpGreater:        func(c, t decimal.Decimal) bool { return c.GreaterThan(t) },
	OpGreaterOrEqual: func(c, t decimal.Decimal) bool { return c.GreaterThanOrEqual(t) },
	OpLess:           func(c, t decimal.Decimal) bool { return c.LessThan(t) },
	OpLessOrEqual:    func(c, t decimal.Decimal) bool { return c.LessThanOrEqual(t) },
	OpEqual:          func(c, t decimal.Decimal) bool { return c.Equal(t) },
}

// Holds reports whether `current op threshold` is true. The boolean second
// return is false for an unknown operator.
func (op ConditionOperator) Holds(current, threshold float64) (bool, bool) {
	cmp, ok := operatorCompare[op]
	if !ok {
		return false, false
	}
	return cmp(decimal.NewFromFloat(current), decimal.NewFromFloat(threshold)), true
}

type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

type NotificationMethod string

const (
	NotifyEmail NotificationMethod = "EMAIL"
	NotifySlack NotificationMethod = "SLACK"
)

type Rule struct {
	ID              string               `json:"id"`
	Name            string               `json:"name"`
	Application     string               `json:"application"`
	MetricType      metrics.MetricType   `json:"metricType"`
	Operator        ConditionOperator    `json:"conditionOperator"`
	Threshold       float64              `json:"thresholdValue"`
	DurationMinutes int                  `json:"durationMinutes"`
	Severity        Severity             `json:"severity"`
	Methods         []NotificationMethod `json:"notificationMethods"`
	Active          bool                 `json:"active"`
	LastTriggeredAt *time.Time           `json:"lastTriggeredAt,omitempty"`
	TriggerCount    int                  `json:"triggerCount"`
	CreatedAt       time.Time            `json:"createdAt"`
	UpdatedAt       time.Time            `json:"updatedAt"`
}

type History struct {
	ID                 string     `json:"id"`
	RuleID             string     `json:"alertRuleId"`
	TriggeredAt        time.Time  `json:"triggeredAt"`
	CurrentValue       float64    `json:"currentValue"`
	Threshold          float64    `json:"thresholdValue"`
	Message            string     `json:"message"`
	Severity           Severity   `json:"severity"`
	Resolved           bool       `json:"resolved"`
	ResolvedAt         *time.Time `json:"resolvedAt,omitempty"`
	ResolvedMessage    string     `json:"resolvedMessage,omitempty"`
	DurationMinutes    *int       `json:"durationMinutes,omitempty"`
	NotificationSent   bool       `json:"notificationSent"`
	NotificationResult string     `json:"notificationResult,omitempty"`
}

func ValidateRule(r Rule) error {
	if r.Name == "" {
		return fmt.Errorf("%w: rule name is required", metrics.ErrInvalidArgument)
	}
	if metrics.SnapshotKey(r.MetricType) == "" {
		return fmt.Errorf("%w: metric %q has no live snapshot form", metrics.ErrInvalidArgument, r.MetricType)
	}
	if _, ok := operatorCompare[r.Operator]; !ok {
		return fmt.Errorf("%w: unknown operator %q", metrics.ErrInvalidArgument, r.Operator)
	}
	if r.DurationMinutes < 0 {
		return fmt.Errorf("%w: duration must not be negative", metrics.ErrInvalidArgument)
	}
	switch r.Severity {
	case SeverityInfo, SeverityWarning, SeverityCritical:
	default:
		return fmt.Errorf("%w: unknown severity %q", metrics.ErrInvalidArgument, r.Severity)
	}
	for _, m := range r.Methods {
		if m != NotifyEmail && m != NotifySlack {
			return fmt.Errorf("%w: unknown notification method %q", metrics.ErrInvalidArgument, m)
		}
	}
	return nil
}
