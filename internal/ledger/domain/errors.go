package domain

import (
	"errors"
	"fmt"

	"github.com/smallbiznis/payroll-psp-core/pkg/pspdomain"
)

var (
	ErrInvalidAmount  = fmt.Errorf("%w: amount", pspdomain.ErrInvalidInput)
	ErrSameAccount    = fmt.Errorf("%w: debit and credit account must differ", pspdomain.ErrInvalidInput)
	ErrUnknownAccount = fmt.Errorf("%w: account", pspdomain.ErrNotFound)
	ErrEntryNotFound  = fmt.Errorf("%w: ledger entry", pspdomain.ErrNotFound)
)

// IsNotFound reports whether err is (or wraps) a not-found condition.
func IsNotFound(err error) bool {
	return errors.Is(err, pspdomain.ErrNotFound)
}
