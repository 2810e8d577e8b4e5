package billing

import (
	"errors"
	"strings"
)

var (
	// ErrVerification covers every reason a webhook delivery is rejected
	// before dispatch. Such deliveries are never acknowledged.
	ErrVerification = errors.New("webhook verification failed")

	ErrMissingSignature = wrapVerification("missing signature header")
	ErrInvalidSignature = wrapVerification("invalid signature")
	ErrMalformedEvent   = wrapVerification("malformed event payload")

	// ErrDownstream marks failures of the billing store or credit issuance.
	// The processor is expected to redeliver.
	ErrDownstream = errors.New("billing store unavailable")
)

type verificationError struct {
	msg string
}

func (e *verificationError) Error() string { return e.msg }

func (e *verificationError) Unwrap() error { return ErrVerification }

func wrapVerification(msg string) error {
	return &verificationError{msg: msg}
}

// FieldViolation names a single bound a patch field failed.
type FieldViolation struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Bound   string `json:"bound"`
	Message string `json:"message"`
}

// ValidationError rejects a settings patch as a whole.
type ValidationError struct {
	Violations []FieldViolation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.Message)
	}
	return strings.Join(msgs, "; ")
}
