package domain

import (
	"fmt"

	"github.com/smallbiznis/payroll-psp-core/pkg/pspdomain"
)

var ErrIllegalStatusTransition = fmt.Errorf("%w: illegal settlement status transition", pspdomain.ErrBadState)
