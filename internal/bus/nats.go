// Package bus carries rule-change events between the API and the running
// scheduler over NATS.
package bus

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
)

const (
	SubjectRuleCreated = "rule.created"
	SubjectRuleUpdated = "rule.updated"
	SubjectRuleToggled = "rule.toggled"
	SubjectRuleDeleted = "rule.deleted"
)

type Event struct {
	RuleID string `json:"rule_id"`
}

type Bus struct {
	Conn *nats.Conn
}

func Connect(url string) (*Bus, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	return &Bus{Conn: conn}, nil
}

func (b *Bus) Close() {
	if b.Conn != nil {
		b.Conn.Drain()
		b.Conn.Close()
	}
}

func (b *Bus) Publish(subject, ruleID string) error {
	data, err := json.Marshal(Event{RuleID: ruleID})
	if err != nil {
		return err
	}
	return b.Conn.Publish(subject, data)
}

func (b *Bus) Subscribe(subject string, handler func(Event)) (*nats.Subscription, error) {
	return b.Conn.Subscribe(subject, func(msg *nats.Msg) {
		var evt Event
		_ = json.Unmarshal(msg.Data, &evt)
		handler(evt)
	})
}
