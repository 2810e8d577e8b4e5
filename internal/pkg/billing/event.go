package billing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Payment processor event types the reconciler reacts to.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventCheckoutExpired   = "checkout.session.expired"
	EventPaymentFailed     = "payment_intent.payment_failed"
)

// PaymentEvent is a verified processor event reduced to what reconciliation
// needs.
type PaymentEvent struct {
	ID          string
	Type        string
	Created     time.Time
	UserID      string
	Email       string
	AmountCents int64
	Payload     []byte
}

// ParsePaymentEvent decodes a processor event. Missing event ids fall back to
// a payload hash so replays keep the same idempotency key.
func ParsePaymentEvent(payload []byte) (*PaymentEvent, error) {
	type rawEvent struct {
		ID      string `json:"id"`
		Type    string `json:"type"`
		Created int64  `json:"created"`
		Data    struct {
			Object json.RawMessage `json:"object"`
		} `json:"data"`
	}

	var raw rawEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	eventType := strings.TrimSpace(raw.Type)
	if eventType == "" {
		return nil, fmt.Errorf("%w: missing event type", ErrMalformedEvent)
	}

	ev := &PaymentEvent{
		ID:      strings.TrimSpace(raw.ID),
		Type:    eventType,
		Payload: payload,
	}
	if ev.ID == "" {
		sum := sha256.Sum256(payload)
		ev.ID = "hash:" + hex.EncodeToString(sum[:])
	}
	if raw.Created > 0 {
		ev.Created = time.Unix(raw.Created, 0).UTC()
	}

	if eventType == EventCheckoutCompleted || eventType == EventCheckoutExpired {
		if err := ev.fillCheckout(raw.Data.Object); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
	}
	return ev, nil
}

func (ev *PaymentEvent) fillCheckout(object json.RawMessage) error {
	type rawSession struct {
		ClientReferenceID string `json:"client_reference_id"`
		CustomerEmail     string `json:"customer_email"`
		CustomerDetails   struct {
			Email string `json:"email"`
		} `json:"customer_details"`
		AmountTotal int64          `json:"amount_total"`
		Metadata    map[string]any `json:"metadata"`
	}

	if len(object) == 0 || string(object) == "null" {
		return errors.New("missing data.object")
	}
	var s rawSession
	if err := json.Unmarshal(object, &s); err != nil {
		return err
	}

	ev.UserID = firstNonEmpty(metaString(s.Metadata, "userId", "user_id"), s.ClientReferenceID)
	ev.Email = firstNonEmpty(metaString(s.Metadata, "email"), s.CustomerDetails.Email, s.CustomerEmail)

	// metadata.amount is in currency units ("25.00"); the other sources are cents.
	if amount := metaString(s.Metadata, "amount"); amount != "" {
		cents, err := ParseAmountCents(amount)
		if err != nil {
			return fmt.Errorf("metadata.amount: %w", err)
		}
		ev.AmountCents = cents
		return nil
	}
	if centsRaw := metaString(s.Metadata, "amountCents", "amount_cents"); centsRaw != "" {
		cents, err := strconv.ParseInt(centsRaw, 10, 64)
		if err != nil {
			return fmt.Errorf("metadata.amountCents: %w", err)
		}
		ev.AmountCents = cents
		return nil
	}
	ev.AmountCents = s.AmountTotal
	return nil
}

// ParseAmountCents converts a decimal currency amount such as "25", "25.5"
// or "25.00" into cents without floating point.
func ParseAmountCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty amount")
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" || !isDigits(whole) {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	if hasFrac && (len(frac) == 0 || len(frac) > 2 || !isDigits(frac)) {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if units > (math.MaxInt64-99)/100 {
		return 0, fmt.Errorf("amount %q out of range", s)
	}
	for len(frac) < 2 {
		frac += "0"
	}
	cents, _ := strconv.ParseInt(frac, 10, 64)
	return units*100 + cents, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func metaString(meta map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := meta[k]
		if !ok || v == nil {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case float64:
			s = strconv.FormatFloat(t, 'f', -1, 64)
		default:
			s = fmt.Sprint(t)
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
