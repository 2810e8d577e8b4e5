package billing

import (
	"bytes"
	"encoding/json"
	"time"
)

// AutoRechargeConfig is the semantic view of a user's auto-recharge policy.
// MonthlyCapCents nil means no cap.
type AutoRechargeConfig struct {
	Enabled         bool   `json:"enabled"`
	AmountCents     int64  `json:"amountCents"`
	TriggerCents    int64  `json:"triggerCents"`
	MonthlyCapCents *int64 `json:"capCentsOrNull"`
}

// PartialConfig is a settings patch. Nil pointers are fields the client did
// not send.
type PartialConfig struct {
	Enabled         *bool         `json:"enabled"`
	AmountCents     *int64        `json:"amountCents" validate:"omitnil,min=500,max=50000"`
	TriggerCents    *int64        `json:"triggerCents" validate:"omitnil,min=100,max=10000"`
	MonthlyCapCents OptionalCents `json:"capCentsOrNull" validate:"-"`
}

// IsEmpty reports whether the patch carries no field at all.
func (p PartialConfig) IsEmpty() bool {
	return p.Enabled == nil && p.AmountCents == nil && p.TriggerCents == nil && !p.MonthlyCapCents.Set
}

// OptionalCents tells apart a missing JSON field (Set=false), an explicit
// null (Set=true, Value=nil) and a value.
type OptionalCents struct {
	Set   bool
	Value *int64
}

func (o *OptionalCents) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

func (o OptionalCents) MarshalJSON() ([]byte, error) {
	if o.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*o.Value)
}

// CapCents builds an OptionalCents holding v.
func CapCents(v int64) OptionalCents {
	return OptionalCents{Set: true, Value: &v}
}

// NoCap builds an OptionalCents holding an explicit null.
func NoCap() OptionalCents {
	return OptionalCents{Set: true}
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
	SignatureValid  bool
}

// Outcome is the terminal result of one acknowledged webhook delivery.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeObserved  Outcome = "observed"
	OutcomeUnhandled Outcome = "unhandled"
	OutcomeIgnored   Outcome = "ignored"
)

// Result describes how a verified delivery was handled.
type Result struct {
	EventID   string  `json:"eventId"`
	EventType string  `json:"eventType"`
	Outcome   Outcome `json:"outcome"`
}

// CreditEntry is the API view of a ledger row.
type CreditEntry struct {
	AmountCents int64     `json:"amountCents"`
	Source      string    `json:"source"`
	Reference   string    `json:"reference"`
	CreatedAt   time.Time `json:"createdAt"`
}
