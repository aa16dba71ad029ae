package trip

import (
	"errors"

	"github.com/Domenick1991/flightres/internal/repository"
)

var (
	ErrAlreadyLoggedIn = errors.New("user already logged in")
	ErrLoginFailed     = errors.New("login failed")

	ErrNegativeBalance  = errors.New("initial balance cannot be negative")
	ErrUserExists       = errors.New("username is already taken")
	ErrCreateUserFailed = errors.New("failed to create user")

	ErrNotLoggedIn     = errors.New("not logged in")
	ErrNoSuchItinerary = errors.New("no such itinerary")
	ErrBookingFailed   = errors.New("booking failed")
	ErrPaymentFailed   = errors.New("failed to pay for reservation")
	ErrSearchFailed    = errors.New("failed to search")
	ErrListFailed      = errors.New("failed to retrieve reservations")

	// Business outcomes detected inside the store's unit of work.
	ErrSameDayConflict     = repository.ErrSameDayConflict
	ErrNoUnpaidReservation = repository.ErrNoUnpaidReservation
	ErrBalanceCheck        = repository.ErrBalanceCheck
)
