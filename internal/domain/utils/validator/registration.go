package validator

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	playground "github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hopehouse/reminders/internal/domain/common/errorz"
	"github.com/hopehouse/reminders/internal/domain/entity"
)

var (
	validate     *playground.Validate
	validateOnce sync.Once
)

func instance() *playground.Validate {
	validateOnce.Do(func() {
		validate = playground.New(playground.WithRequiredStructEnabled())
	})
	return validate
}

// ID checks that an identifier coming from a URL or caller is a UUID.
func ID(field, id string) error {
	if strings.TrimSpace(id) == "" {
		return errorz.NewValidationError(field, "is required")
	}
	if _, err := uuid.Parse(id); err != nil {
		return &errorz.ValidationError{Field: field, Reason: "is not a valid id", Err: err}
	}
	return nil
}

// Registration checks that a registrant can be e-mailed.
func Registration(r entity.Registration) error {
	err := instance().Struct(r)
	if err == nil {
		return nil
	}

	var fieldErrs playground.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		first := fieldErrs[0]
		return &errorz.ValidationError{
			Field:  strings.ToLower(first.Field()),
			Reason: fmt.Sprintf("failed %q check", first.Tag()),
			Err:    err,
		}
	}
	return &errorz.ValidationError{Field: "registration", Reason: "is invalid", Err: err}
}

// Email checks a single address, such as the broadcast recipient.
func Email(address string) error {
	if err := instance().Var(address, "required,email"); err != nil {
		return &errorz.ValidationError{Field: "email", Reason: fmt.Sprintf("%q is not a valid address", address), Err: err}
	}
	return nil
}
