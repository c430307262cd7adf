package service

import (
	"errors"
	"fmt"

	"github.com/Charlsz/localmarket/internal/auth"
	"github.com/Charlsz/localmarket/internal/database"
	"github.com/google/uuid"
)

var (
	ErrForbidden         = errors.New("forbidden")
	ErrProfileRequired   = errors.New("profile required")
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotEligible       = errors.New("not eligible")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// InputError carries a message safe to show to the client and matches
// ErrInvalidInput.
type InputError struct {
	Msg string
}

func (e *InputError) Error() string {
	return e.Msg
}

func (e *InputError) Is(target error) bool {
	return target == ErrInvalidInput
}

func invalidInput(format string, args ...any) error {
	return &InputError{Msg: fmt.Sprintf(format, args...)}
}

// StockError names the product whose stock could not cover the request. It
// matches database.ErrInsufficientStock.
type StockError struct {
	ProductID   uuid.UUID
	ProductName string
	Available   int
	Requested   int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: %d available, %d requested",
		e.ProductName, e.Available, e.Requested)
}

func (e *StockError) Is(target error) bool {
	return target == database.ErrInsufficientStock
}

func requireProfile(caller auth.Caller) error {
	if !caller.HasProfile() {
		return ErrProfileRequired
	}
	return nil
}
