package domain

import (
	"fmt"

	"github.com/smallbiznis/payroll-psp-core/pkg/pspdomain"
)

var (
	ErrEmptyBatch    = fmt.Errorf("%w: payroll batch has no items", pspdomain.ErrInvalidInput)
	ErrNoCallbackMap = fmt.Errorf("%w: unrecognized callback_type", pspdomain.ErrInvalidInput)
)
