package pilots

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	ErrInvalidCredentials = errors.New("invalid password")
	ErrUnknownUser        = errors.New("unknown user")
	ErrUnknownAccount     = errors.New("unknown connected account")
	ErrNoAccount          = errors.New("pilot has no connected account")
	ErrNoPassengers       = errors.New("no passengers available")
	ErrChargeFailed       = errors.New("charge failed")
	ErrNothingToPay       = errors.New("no available balance to pay out")
)

// ValidationError carries user-facing messages in field order.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Messages, "; ")
}

// First is the message shown inline on forms.
func (e *ValidationError) First() string {
	if len(e.Messages) == 0 {
		return ""
	}
	return e.Messages[0]
}

func newValidationError(msgs ...string) *ValidationError {
	return &ValidationError{Messages: msgs}
}

var fieldLabels = map[string]string{
	"Email":    "Email",
	"Password": "Password",
	"Type":     "Pilot type",
}

func formatValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		label := fieldLabels[fe.Field()]
		if label == "" {
			label = fe.Field()
		}
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required.", label))
		case "email":
			msgs = append(msgs, fmt.Sprintf("%s must be a valid email address.", label))
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s characters.", label, fe.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters.", label, fe.Param()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s.", label, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid.", label))
		}
	}
	return newValidationError(msgs...)
}
