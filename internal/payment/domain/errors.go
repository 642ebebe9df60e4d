package domain

import (
	"errors"
	"fmt"

	"github.com/smallbiznis/payroll-psp-core/pkg/pspdomain"
)

var (
	ErrInvalidAmount        = fmt.Errorf("%w: amount", pspdomain.ErrInvalidInput)
	ErrMissingIdempotencyKey = fmt.Errorf("%w: idempotency_key is required", pspdomain.ErrInvalidInput)
	ErrInstructionNotFound  = fmt.Errorf("%w: instruction", pspdomain.ErrNotFound)
	ErrNotSubmittable       = fmt.Errorf("%w: instruction is not in created or queued status", pspdomain.ErrBadState)
	ErrIllegalTransition    = fmt.Errorf("%w: illegal status transition", pspdomain.ErrBadState)
	ErrNoRailAvailable      = fmt.Errorf("%w: no provider satisfies a capable rail", pspdomain.ErrProvider)
	ErrSubmitInFlight       = fmt.Errorf("%w: another submit for this idempotency key is already in flight", pspdomain.ErrBadState)
)

func IsNotFound(err error) bool { return errors.Is(err, pspdomain.ErrNotFound) }
func IsBadState(err error) bool { return errors.Is(err, pspdomain.ErrBadState) }
