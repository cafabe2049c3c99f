package models

import (
	dErrors "vaultbridge/pkg/domain-errors"
)

var errAlreadyInactive = dErrors.New(dErrors.CodeInvariantViolation, "account is already inactive")
