package domain

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrIllegalTransition   = errors.New("illegal transaction status transition")
	ErrTransactionNotFound = errors.New("transaction not found")
)

// TransitionError is returned when a status change is not allowed by the lattice.
type TransitionError struct {
	MerchantReference string
	From              TransactionStatus
	To                TransactionStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order %s: cannot move transaction from %s to %s", e.MerchantReference, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}
