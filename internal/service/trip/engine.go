package trip

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"time"

	"github.com/Domenick1991/flightres/internal/auth"
	"github.com/Domenick1991/flightres/internal/domain"
	"github.com/Domenick1991/flightres/internal/kafka"
	"github.com/Domenick1991/flightres/internal/repository"
	"github.com/Domenick1991/flightres/internal/service/search"
	"github.com/google/uuid"
)

const (
	EventBooked = "reservation_booked"
	EventPaid   = "reservation_paid"
)

type TripUseCase interface {
	Login(ctx context.Context, username, password string) error
	CreateUser(ctx context.Context, username, password string, initialBalance int64) error
	Search(ctx context.Context, q search.Query) ([]RankedItinerary, error)
	Book(ctx context.Context, displayID int) (int64, error)
	Pay(ctx context.Context, reservationID int64) (int64, error)
	ListReservations(ctx context.Context) ([]domain.Reservation, error)
}

// RankedItinerary is an itinerary with its transient display id, valid
// until the next search on the same session.
type RankedItinerary struct {
	DisplayID int              `json:"display_id"`
	Trip      domain.Itinerary `json:"trip"`
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

// Engine gates the booking and payment workflows behind one session. All
// store mutation happens in the repository's units of work; the engine adds
// session checks, the bounded conflict-retry policy and event publication.
type Engine struct {
	session            *Session
	users              repository.UserRepository
	store              repository.ReservationRepository
	searcher           search.SearchUseCase
	producer           Producer
	reservationsTopic  string
	notificationsTopic string
	maxAttempts        int
	retryBackoff       time.Duration
}

type EngineOption func(*Engine)

func WithNotificationsTopic(topic string) EngineOption {
	return func(e *Engine) {
		e.notificationsTopic = topic
	}
}

func WithRetryPolicy(maxAttempts int, backoff time.Duration) EngineOption {
	return func(e *Engine) {
		if maxAttempts > 0 {
			e.maxAttempts = maxAttempts
		}
		if backoff > 0 {
			e.retryBackoff = backoff
		}
	}
}

func NewEngine(
	users repository.UserRepository,
	store repository.ReservationRepository,
	searcher search.SearchUseCase,
	producer Producer,
	reservationsTopic string,
	opts ...EngineOption,
) *Engine {
	engine := &Engine{
		session:           NewSession(),
		users:             users,
		store:             store,
		searcher:          searcher,
		producer:          producer,
		reservationsTopic: reservationsTopic,
		maxAttempts:       5,
		retryBackoff:      25 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

func (e *Engine) Login(ctx context.Context, username, password string) error {
	if e.session.LoggedIn() {
		return ErrAlreadyLoggedIn
	}

	hash, err := e.users.PasswordHash(ctx, username)
	if err != nil {
		return ErrLoginFailed
	}
	if !auth.Matches(password, hash) {
		return ErrLoginFailed
	}

	return e.session.BeginAs(username)
}

func (e *Engine) CreateUser(ctx context.Context, username, password string, initialBalance int64) error {
	if initialBalance < 0 {
		return ErrNegativeBalance
	}

	exists, err := e.users.Exists(ctx, username)
	if err != nil {
		return ErrCreateUserFailed
	}
	if exists {
		return ErrUserExists
	}

	hash, err := auth.SaltAndHash(password)
	if err != nil {
		return ErrCreateUserFailed
	}
	if err := e.users.Create(ctx, username, hash, initialBalance); err != nil {
		return ErrCreateUserFailed
	}
	return nil
}

// Search runs the ranker and replaces the session's display-id arena.
// Nothing is cached into the session on failure.
func (e *Engine) Search(ctx context.Context, q search.Query) ([]RankedItinerary, error) {
	results, err := e.searcher.Search(ctx, q)
	if err != nil {
		if errors.Is(err, search.ErrNoFlights) {
			return nil, err
		}
		return nil, ErrSearchFailed
	}

	e.session.RecordSearch(results)

	ranked := make([]RankedItinerary, len(results))
	for i, it := range results {
		ranked[i] = RankedItinerary{DisplayID: i, Trip: it}
	}
	return ranked, nil
}

// Book commits a reservation for a display id from the last search.
// Transient write-write conflicts restart the whole unit of work against
// fresh state, with jittered backoff and a bounded attempt count.
func (e *Engine) Book(ctx context.Context, displayID int) (int64, error) {
	if !e.session.LoggedIn() {
		return 0, ErrNotLoggedIn
	}
	it, ok := e.session.Resolve(displayID)
	if !ok {
		return 0, ErrNoSuchItinerary
	}

	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		reservationID, err := e.store.Book(ctx, e.session.Username(), it)
		if err == nil {
			e.publish(ctx, EventBooked, reservationID, it.Flights(), 0)
			return reservationID, nil
		}
		if errors.Is(err, repository.ErrSameDayConflict) {
			return 0, ErrSameDayConflict
		}
		if errors.Is(err, repository.ErrNoSeats) {
			return 0, ErrBookingFailed
		}
		if !repository.IsTransient(err) {
			log.Printf("booking failed for %s: %v", e.session.Username(), err)
			return 0, ErrBookingFailed
		}

		delay := e.retryBackoff * time.Duration(attempt+1)
		delay += time.Duration(rand.Int63n(int64(e.retryBackoff)))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return 0, ErrBookingFailed
		}
	}
	return 0, ErrBookingFailed
}

// Pay settles a reservation and debits the balance in one unit of work.
func (e *Engine) Pay(ctx context.Context, reservationID int64) (int64, error) {
	if !e.session.LoggedIn() {
		return 0, ErrNotLoggedIn
	}
	if reservationID < 0 {
		return 0, ErrNoUnpaidReservation
	}

	remaining, err := e.store.Pay(ctx, e.session.Username(), reservationID)
	if err != nil {
		var insufficient *repository.InsufficientFundsError
		switch {
		case errors.Is(err, repository.ErrNoUnpaidReservation):
			return 0, ErrNoUnpaidReservation
		case errors.Is(err, repository.ErrBalanceCheck):
			return 0, ErrBalanceCheck
		case errors.As(err, &insufficient):
			return 0, insufficient
		default:
			log.Printf("payment failed for %s: %v", e.session.Username(), err)
			return 0, ErrPaymentFailed
		}
	}

	e.publish(ctx, EventPaid, reservationID, nil, remaining)
	return remaining, nil
}

func (e *Engine) ListReservations(ctx context.Context) ([]domain.Reservation, error) {
	if !e.session.LoggedIn() {
		return nil, ErrNotLoggedIn
	}

	reservations, err := e.store.ListByUser(ctx, e.session.Username())
	if err != nil {
		return nil, ErrListFailed
	}
	return reservations, nil
}

// publish emits a reservation event after the transaction has committed.
// A publish failure never rolls anything back; it is only logged.
func (e *Engine) publish(ctx context.Context, eventType string, reservationID int64, flights []domain.Flight, remaining int64) {
	if e.producer == nil || e.reservationsTopic == "" {
		return
	}

	flightIDs := make([]int64, 0, len(flights))
	for _, f := range flights {
		flightIDs = append(flightIDs, f.ID)
	}
	event := kafka.ReservationEvent{
		EventID:       uuid.NewString(),
		Type:          eventType,
		Username:      e.session.Username(),
		ReservationID: reservationID,
		FlightIDs:     flightIDs,
		Balance:       remaining,
		OccurredAt:    time.Now(),
	}

	key := uuid.NewString()
	if err := e.producer.Publish(ctx, e.reservationsTopic, key, event); err != nil {
		log.Printf("failed to publish %s event for reservation %d: %v", eventType, reservationID, err)
	}
	if e.notificationsTopic != "" {
		if err := e.producer.Publish(ctx, e.notificationsTopic, key, event); err != nil {
			log.Printf("failed to publish %s notification for reservation %d: %v", eventType, reservationID, err)
		}
	}
}

var _ TripUseCase = (*Engine)(nil)
