package domain

import (
	"errors"
	"fmt"

	"github.com/smallbiznis/payroll-psp-core/pkg/pspdomain"
)

var (
	ErrUnknownFundingModel = fmt.Errorf("%w: funding_model", pspdomain.ErrInvalidInput)
	ErrMissingIdempotencyKey = fmt.Errorf("%w: idempotency_key is required", pspdomain.ErrInvalidInput)
)

func IsInvalidInput(err error) bool { return errors.Is(err, pspdomain.ErrInvalidInput) }
