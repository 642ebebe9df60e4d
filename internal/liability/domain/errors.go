package domain

import (
	"fmt"

	"github.com/smallbiznis/payroll-psp-core/pkg/pspdomain"
)

var (
	ErrEventNotFound         = fmt.Errorf("%w: liability event not found", pspdomain.ErrNotFound)
	ErrIllegalRecoveryStatus = fmt.Errorf("%w: illegal recovery status transition", pspdomain.ErrBadState)
)
