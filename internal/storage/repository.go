package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"pulseboard/internal/alert"
)

type Repository struct {
	Store *Store
}

func NewRepository(store *Store) *Repository {
	return &Repository{Store: store}
}

const ruleColumns = `id, name, application, metric_type, condition_operator, threshold_value,
	duration_minutes, severity, notification_methods, active, last_triggered_at, trigger_count,
	created_at, updated_at`

func scanRule(row pgx.Row) (alert.Rule, error) {
	var r alert.Rule
	var methods []string
	err := row.Scan(&r.ID, &r.Name, &r.Application, &r.MetricType, &r.Operator, &r.Threshold,
		&r.DurationMinutes, &r.Severity, &methods, &r.Active, &r.LastTriggeredAt, &r.TriggerCount,
		&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return alert.Rule{}, err
	}
	for _, m := range methods {
		r.Methods = append(r.Methods, alert.NotificationMethod(m))
	}
	return r, nil
}

func methodStrings(methods []alert.NotificationMethod) []string {
	out := make([]string, 0, len(methods))
	for _, m := range methods {
		out = append(out, string(m))
	}
	return out
}

func (r *Repository) CreateRule(ctx context.Context, rule alert.Rule) (string, error) {
	id := uuid.NewString()
	_, err := r.Store.Pool.Exec(ctx, `
		INSERT INTO alert_rules (id, name, application, metric_type, condition_operator, threshold_value,
			duration_minutes, severity, notification_methods, active, trigger_count, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,0,now(),now())`,
		id, rule.Name, rule.Application, string(rule.MetricType), string(rule.Operator), rule.Threshold,
		rule.DurationMinutes, string(rule.Severity), methodStrings(rule.Methods), rule.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return "", ErrDuplicateName
		}
		return "", err
	}
	return id, nil
}

func (r *Repository) UpdateRule(ctx context.Context, rule alert.Rule) error {
	tag, err := r.Store.Pool.Exec(ctx, `
		UPDATE alert_rules
		SET name=$1, application=$2, metric_type=$3, condition_operator=$4, threshold_value=$5,
			duration_minutes=$6, severity=$7, notification_methods=$8, active=$9, updated_at=now()
		WHERE id=$10`,
		rule.Name, rule.Application, string(rule.MetricType), string(rule.Operator), rule.Threshold,
		rule.DurationMinutes, string(rule.Severity), methodStrings(rule.Methods), rule.Active, rule.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateName
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) SetRuleActive(ctx context.Context, id string, active bool) error {
	tag, err := r.Store.Pool.Exec(ctx,
		`UPDATE alert_rules SET active=$1, updated_at=now() WHERE id=$2`, active, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteRule removes the rule only; history rows stay behind for auditing.
func (r *Repository) DeleteRule(ctx context.Context, id string) error {
	tag, err := r.Store.Pool.Exec(ctx, `DELETE FROM alert_rules WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) GetRule(ctx context.Context, id string) (alert.Rule, error) {
	row := r.Store.Pool.QueryRow(ctx, `SELECT `+ruleColumns+` FROM alert_rules WHERE id=$1`, id)
	rule, err := scanRule(row)
	if err != nil {
		return alert.Rule{}, ErrNotFound
	}
	return rule, nil
}

func (r *Repository) ListActiveRules(ctx context.Context) ([]alert.Rule, error) {
	return r.listRules(ctx, `SELECT `+ruleColumns+` FROM alert_rules WHERE active = true ORDER BY created_at ASC`)
}

func (r *Repository) ListRules(ctx context.Context) ([]alert.Rule, error) {
	return r.listRules(ctx, `SELECT `+ruleColumns+` FROM alert_rules ORDER BY created_at DESC`)
}

func (r *Repository) ListRulesByApplication(ctx context.Context, application string) ([]alert.Rule, error) {
	return r.listRules(ctx, `SELECT `+ruleColumns+` FROM alert_rules WHERE application=$1 ORDER BY created_at DESC`, application)
}

func (r *Repository) listRules(ctx context.Context, query string, args ...any) ([]alert.Rule, error) {
	rows, err := r.Store.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []alert.Rule{}
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, rule)
	}
	return results, rows.Err()
}

// RecordTrigger inserts the history row and bumps the rule's trigger
// bookkeeping in one round trip each; the insert is the atomic unit.
func (r *Repository) RecordTrigger(ctx context.Context, h alert.History) (string, error) {
	id := uuid.NewString()
	_, err := r.Store.Pool.Exec(ctx, `
		INSERT INTO alert_history (id, rule_id, triggered_at, current_value, threshold_value, message,
			severity, resolved, notification_sent, notification_result)
		VALUES ($1,$2,$3,$4,$5,$6,$7,false,$8,$9)`,
		id, h.RuleID, h.TriggeredAt, h.CurrentValue, h.Threshold, h.Message,
		string(h.Severity), h.NotificationSent, h.NotificationResult)
	if err != nil {
		return "", err
	}
	_, err = r.Store.Pool.Exec(ctx, `
		UPDATE alert_rules SET last_triggered_at=$1, trigger_count=trigger_count+1 WHERE id=$2`,
		h.TriggeredAt, h.RuleID)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) ResolveHistory(ctx context.Context, id, message string, resolvedAt time.Time) error {
	tag, err := r.Store.Pool.Exec(ctx, `
		UPDATE alert_history
		SET resolved=true, resolved_at=$1, resolved_message=$2,
			duration_minutes = CEIL(EXTRACT(EPOCH FROM ($1 - triggered_at)) / 60)::int
		WHERE id=$3 AND resolved=false`,
		resolvedAt, message, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) ListRecentHistory(ctx context.Context, limit int) ([]alert.History, error) {
	return r.listHistory(ctx, `
		SELECT id, rule_id, triggered_at, current_value, threshold_value, message, severity,
			resolved, resolved_at, resolved_message, duration_minutes, notification_sent, notification_result
		FROM alert_history ORDER BY triggered_at DESC LIMIT $1`, limit)
}

func (r *Repository) ListUnresolvedHistory(ctx context.Context) ([]alert.History, error) {
	return r.listHistory(ctx, `
		SELECT id, rule_id, triggered_at, current_value, threshold_value, message, severity,
			resolved, resolved_at, resolved_message, duration_minutes, notification_sent, notification_result
		FROM alert_history WHERE resolved=false ORDER BY triggered_at DESC`)
}

func (r *Repository) listHistory(ctx context.Context, query string, args ...any) ([]alert.History, error) {
	rows, err := r.Store.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []alert.History{}
	for rows.Next() {
		var h alert.History
		var resolvedMessage *string
		if err := rows.Scan(&h.ID, &h.RuleID, &h.TriggeredAt, &h.CurrentValue, &h.Threshold, &h.Message,
			&h.Severity, &h.Resolved, &h.ResolvedAt, &resolvedMessage, &h.DurationMinutes,
			&h.NotificationSent, &h.NotificationResult); err != nil {
			return nil, err
		}
		if resolvedMessage != nil {
			h.ResolvedMessage = *resolvedMessage
		}
		results = append(results, h)
	}
	return results, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
