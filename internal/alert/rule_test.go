package alert

import (
	"errors"
	"testing"

	"pulseboard/internal/metrics"
)

func validRule() Rule {
	return Rule{
		Name:       "Heap High",
		MetricType: metrics.MetricHeapUsage,
		Operator:   OpGreaterOrEqual,
		Threshold:  85,
		Severity:   SeverityWarning,
		Methods:    []NotificationMethod{NotifySlack, NotifyEmail},
	}
}

func TestValidateRuleOK(t *testing.T) {
	if err := ValidateRule(validRule()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRuleRejectsBadInput(t *testing.T) {
	cases := map[string]func(*Rule){
		"empty name":        func(r *Rule) { r.Name = "" },
		"unknown metric":    func(r *Rule) { r.MetricType = "DISK_IO" },
		"no snapshot form":  func(r *Rule) { r.MetricType = metrics.MetricDBSize },
		"bad operator":      func(r *Rule) { r.Operator = "~=" },
		"negative duration": func(r *Rule) { r.DurationMinutes = -1 },
		"bad severity":      func(r *Rule) { r.Severity = "PANIC" },
		"bad method":        func(r *Rule) { r.Methods = []NotificationMethod{"PAGER"} },
	}
	for name, mutate := range cases {
		rule := validRule()
		mutate(&rule)
		if err := ValidateRule(rule); !errors.Is(err, metrics.ErrInvalidArgument) {
			t.Fatalf("%s: expected ErrInvalidArgument, got %v", name, err)
		}
	}
}

func TestOperatorHolds(t *testing.T) {
	cases := []struct {
		op        ConditionOperator
		current   float64
		threshold float64
		want      bool
	}{
		{OpGreater, 85, 80, true},
		{OpGreater, 80, 80, false},
		{OpGreaterOrEqual, 80, 80, true},
		{OpLess, 79.9, 80, true},
		{OpLess, 80, 80, false},
		{OpLessOrEqual, 80, 80, true},
		{OpEqual, 80, 80, true},
		{OpEqual, 80.0000001, 80, false},
	}
	for _, c := range cases {
		got, known := c.op.Holds(c.current, c.threshold)
		if !known {
			t.Fatalf("operator %q should be known", c.op)
		}
		if got != c.want {
			t.Fatalf("%v %s %v: want %v got %v", c.current, c.op, c.threshold, c.want, got)
		}
	}
}

func TestOperatorUnknown(t *testing.T) {
	if _, known := ConditionOperator("!=").Holds(1, 2); known {
		t.Fatalf("!= is not a supported operator")
	}
}
