package trip

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Domenick1991/flightres/internal/auth"
	"github.com/Domenick1991/flightres/internal/domain"
	"github.com/Domenick1991/flightres/internal/repository"
	"github.com/Domenick1991/flightres/internal/service/search"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Exists(ctx context.Context, username string) (bool, error) {
	args := m.Called(ctx, username)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserRepository) Create(ctx context.Context, username string, passwordHash []byte, balance int64) error {
	args := m.Called(ctx, username, passwordHash, balance)
	return args.Error(0)
}

func (m *MockUserRepository) PasswordHash(ctx context.Context, username string) ([]byte, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

type MockReservationRepository struct {
	mock.Mock
}

func (m *MockReservationRepository) Book(ctx context.Context, username string, trip domain.Itinerary) (int64, error) {
	args := m.Called(ctx, username, trip)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockReservationRepository) Pay(ctx context.Context, username string, reservationID int64) (int64, error) {
	args := m.Called(ctx, username, reservationID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockReservationRepository) ListByUser(ctx context.Context, username string) ([]domain.Reservation, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Reservation), args.Error(1)
}

type MockSearcher struct {
	mock.Mock
}

func (m *MockSearcher) Search(ctx context.Context, q search.Query) ([]domain.Itinerary, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Itinerary), args.Error(1)
}

type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) Publish(ctx context.Context, topic, key string, value interface{}) error {
	args := m.Called(ctx, topic, key, value)
	return args.Error(0)
}

func loggedInSession(username string) *Session {
	s := NewSession()
	_ = s.BeginAs(username)
	return s
}

func testFlight(id int64, day, duration int) domain.Flight {
	return domain.Flight{
		ID:         id,
		DayOfMonth: day,
		CarrierID:  "AA",
		FlightNum:  "100",
		OriginCity: "Seattle WA",
		DestCity:   "Boston MA",
		Duration:   duration,
		Capacity:   10,
		Price:      300,
	}
}

func TestEngine_Login_Success(t *testing.T) {
	mockUsers := &MockUserRepository{}
	engine := &Engine{session: NewSession(), users: mockUsers}

	ctx := context.Background()
	hash, err := auth.SaltAndHash("secret")
	assert.NoError(t, err)

	mockUsers.On("PasswordHash", ctx, "alice").Return(hash, nil).Once()

	assert.NoError(t, engine.Login(ctx, "alice", "secret"))
	assert.True(t, engine.session.LoggedIn())
	assert.Equal(t, "alice", engine.session.Username())

	mockUsers.AssertExpectations(t)
}

func TestEngine_Login_WrongPassword(t *testing.T) {
	mockUsers := &MockUserRepository{}
	engine := &Engine{session: NewSession(), users: mockUsers}

	ctx := context.Background()
	hash, err := auth.SaltAndHash("secret")
	assert.NoError(t, err)

	mockUsers.On("PasswordHash", ctx, "alice").Return(hash, nil).Once()

	assert.ErrorIs(t, engine.Login(ctx, "alice", "wrong"), ErrLoginFailed)
	assert.False(t, engine.session.LoggedIn())
}

func TestEngine_Login_UnknownUser(t *testing.T) {
	mockUsers := &MockUserRepository{}
	engine := &Engine{session: NewSession(), users: mockUsers}

	ctx := context.Background()
	mockUsers.On("PasswordHash", ctx, "ghost").Return(nil, repository.ErrUserNotFound).Once()

	assert.ErrorIs(t, engine.Login(ctx, "ghost", "whatever"), ErrLoginFailed)
}

func TestEngine_Login_SecondLoginRejected(t *testing.T) {
	mockUsers := &MockUserRepository{}
	engine := &Engine{session: loggedInSession("alice"), users: mockUsers}

	err := engine.Login(context.Background(), "bob", "secret")

	assert.ErrorIs(t, err, ErrAlreadyLoggedIn)
	mockUsers.AssertNotCalled(t, "PasswordHash")
}

func TestEngine_CreateUser_Success(t *testing.T) {
	mockUsers := &MockUserRepository{}
	engine := &Engine{session: NewSession(), users: mockUsers}

	ctx := context.Background()
	mockUsers.On("Exists", ctx, "alice").Return(false, nil).Once()
	mockUsers.On("Create", ctx, "alice", mock.AnythingOfType("[]uint8"), int64(1000)).Return(nil).Once()

	assert.NoError(t, engine.CreateUser(ctx, "alice", "secret", 1000))
	// Creating a user does not log the session in.
	assert.False(t, engine.session.LoggedIn())

	mockUsers.AssertExpectations(t)
}

func TestEngine_CreateUser_NegativeBalance(t *testing.T) {
	mockUsers := &MockUserRepository{}
	engine := &Engine{session: NewSession(), users: mockUsers}

	err := engine.CreateUser(context.Background(), "alice", "secret", -1)

	assert.ErrorIs(t, err, ErrNegativeBalance)
	mockUsers.AssertNotCalled(t, "Exists")
	mockUsers.AssertNotCalled(t, "Create")
}

func TestEngine_CreateUser_DuplicateUsername(t *testing.T) {
	mockUsers := &MockUserRepository{}
	engine := &Engine{session: NewSession(), users: mockUsers}

	ctx := context.Background()
	mockUsers.On("Exists", ctx, "Alice").Return(true, nil).Once()

	assert.ErrorIs(t, engine.CreateUser(ctx, "Alice", "secret", 100), ErrUserExists)
	mockUsers.AssertNotCalled(t, "Create")
}

func TestEngine_Search_RecordsResultsWithDisplayIDs(t *testing.T) {
	mockSearcher := &MockSearcher{}
	engine := &Engine{session: NewSession(), searcher: mockSearcher}

	ctx := context.Background()
	q := search.Query{Origin: "Seattle WA", Dest: "Boston MA", Day: 15, Max: 3}
	results := []domain.Itinerary{
		domain.Direct(testFlight(1, 15, 280)),
		domain.Connecting(testFlight(2, 15, 140), testFlight(3, 15, 150)),
	}

	mockSearcher.On("Search", ctx, q).Return(results, nil).Once()

	ranked, err := engine.Search(ctx, q)

	assert.NoError(t, err)
	assert.Len(t, ranked, 2)
	assert.Equal(t, 0, ranked[0].DisplayID)
	assert.Equal(t, 1, ranked[1].DisplayID)

	// Display ids stay resolvable for booking.
	it, ok := engine.session.Resolve(1)
	assert.True(t, ok)
	assert.Equal(t, results[1], it)
}

func TestEngine_Search_FailureLeavesSessionUntouched(t *testing.T) {
	mockSearcher := &MockSearcher{}
	engine := &Engine{session: NewSession(), searcher: mockSearcher}

	ctx := context.Background()
	prior := []domain.Itinerary{domain.Direct(testFlight(1, 15, 280))}
	engine.session.RecordSearch(prior)

	q := search.Query{Origin: "Seattle WA", Dest: "Boston MA", Day: 15, Max: 3}
	mockSearcher.On("Search", ctx, q).Return(nil, errors.New("connection reset")).Once()

	ranked, err := engine.Search(ctx, q)

	assert.ErrorIs(t, err, ErrSearchFailed)
	assert.Nil(t, ranked)

	it, ok := engine.session.Resolve(0)
	assert.True(t, ok)
	assert.Equal(t, prior[0], it)
}

func TestEngine_Search_NoFlightsPassesThrough(t *testing.T) {
	mockSearcher := &MockSearcher{}
	engine := &Engine{session: NewSession(), searcher: mockSearcher}

	ctx := context.Background()
	q := search.Query{Origin: "Nowhere", Dest: "Boston MA", Day: 15, Max: 3}
	mockSearcher.On("Search", ctx, q).Return(nil, search.ErrNoFlights).Once()

	_, err := engine.Search(ctx, q)

	assert.ErrorIs(t, err, search.ErrNoFlights)
}

func TestEngine_Book_NotLoggedIn(t *testing.T) {
	mockStore := &MockReservationRepository{}
	engine := &Engine{session: NewSession(), store: mockStore, maxAttempts: 3}

	_, err := engine.Book(context.Background(), 0)

	assert.ErrorIs(t, err, ErrNotLoggedIn)
	mockStore.AssertNotCalled(t, "Book")
}

func TestEngine_Book_NoSuchItinerary(t *testing.T) {
	mockStore := &MockReservationRepository{}
	engine := &Engine{session: loggedInSession("alice"), store: mockStore, maxAttempts: 3}

	_, err := engine.Book(context.Background(), 0)
	assert.ErrorIs(t, err, ErrNoSuchItinerary)

	engine.session.RecordSearch([]domain.Itinerary{domain.Direct(testFlight(1, 15, 280))})
	_, err = engine.Book(context.Background(), 5)
	assert.ErrorIs(t, err, ErrNoSuchItinerary)

	mockStore.AssertNotCalled(t, "Book")
}

func TestEngine_Book_Success(t *testing.T) {
	mockStore := &MockReservationRepository{}
	mockProducer := &MockProducer{}
	engine := &Engine{
		session:            loggedInSession("alice"),
		store:              mockStore,
		producer:           mockProducer,
		reservationsTopic:  "reservation-events",
		notificationsTopic: "reservation-notifications",
		maxAttempts:        3,
		retryBackoff:       time.Millisecond,
	}

	ctx := context.Background()
	it := domain.Direct(testFlight(1, 15, 280))
	engine.session.RecordSearch([]domain.Itinerary{it})

	mockStore.On("Book", ctx, "alice", it).Return(int64(7), nil).Once()
	mockProducer.On("Publish", ctx, "reservation-events", mock.Anything, mock.Anything).Return(nil).Once()
	mockProducer.On("Publish", ctx, "reservation-notifications", mock.Anything, mock.Anything).Return(nil).Once()

	reservationID, err := engine.Book(ctx, 0)

	assert.NoError(t, err)
	assert.Equal(t, int64(7), reservationID)

	// The arena survives a booking: the same display id resolves again.
	_, ok := engine.session.Resolve(0)
	assert.True(t, ok)

	mockStore.AssertExpectations(t)
	mockProducer.AssertExpectations(t)
}

func TestEngine_Book_SameDayConflict(t *testing.T) {
	mockStore := &MockReservationRepository{}
	engine := &Engine{
		session:      loggedInSession("alice"),
		store:        mockStore,
		maxAttempts:  3,
		retryBackoff: time.Millisecond,
	}

	ctx := context.Background()
	it := domain.Direct(testFlight(1, 15, 280))
	engine.session.RecordSearch([]domain.Itinerary{it})

	mockStore.On("Book", ctx, "alice", it).Return(int64(0), repository.ErrSameDayConflict).Once()

	_, err := engine.Book(ctx, 0)

	assert.ErrorIs(t, err, ErrSameDayConflict)
	mockStore.AssertNumberOfCalls(t, "Book", 1)
}

func TestEngine_Book_CapacityExhausted(t *testing.T) {
	mockStore := &MockReservationRepository{}
	engine := &Engine{
		session:      loggedInSession("bob"),
		store:        mockStore,
		maxAttempts:  3,
		retryBackoff: time.Millisecond,
	}

	ctx := context.Background()
	it := domain.Direct(testFlight(1, 15, 280))
	engine.session.RecordSearch([]domain.Itinerary{it})

	mockStore.On("Book", ctx, "bob", it).Return(int64(0), repository.ErrNoSeats).Once()

	_, err := engine.Book(ctx, 0)

	assert.ErrorIs(t, err, ErrBookingFailed)
	mockStore.AssertNumberOfCalls(t, "Book", 1)
}

func TestEngine_Book_RetriesTransientConflict(t *testing.T) {
	mockStore := &MockReservationRepository{}
	engine := &Engine{
		session:      loggedInSession("alice"),
		store:        mockStore,
		maxAttempts:  3,
		retryBackoff: time.Millisecond,
	}

	ctx := context.Background()
	it := domain.Direct(testFlight(1, 15, 280))
	engine.session.RecordSearch([]domain.Itinerary{it})

	serialization := &pgconn.PgError{Code: "40001"}
	mockStore.On("Book", ctx, "alice", it).Return(int64(0), serialization).Twice()
	mockStore.On("Book", ctx, "alice", it).Return(int64(9), nil).Once()

	reservationID, err := engine.Book(ctx, 0)

	assert.NoError(t, err)
	assert.Equal(t, int64(9), reservationID)
	mockStore.AssertNumberOfCalls(t, "Book", 3)
}

func TestEngine_Book_RetryBudgetExhausted(t *testing.T) {
	mockStore := &MockReservationRepository{}
	engine := &Engine{
		session:      loggedInSession("alice"),
		store:        mockStore,
		maxAttempts:  3,
		retryBackoff: time.Millisecond,
	}

	ctx := context.Background()
	it := domain.Direct(testFlight(1, 15, 280))
	engine.session.RecordSearch([]domain.Itinerary{it})

	deadlock := &pgconn.PgError{Code: "40P01"}
	mockStore.On("Book", ctx, "alice", it).Return(int64(0), deadlock).Times(3)

	_, err := engine.Book(ctx, 0)

	assert.ErrorIs(t, err, ErrBookingFailed)
	mockStore.AssertNumberOfCalls(t, "Book", 3)
}

func TestEngine_Book_NonTransientFailure(t *testing.T) {
	mockStore := &MockReservationRepository{}
	engine := &Engine{
		session:      loggedInSession("alice"),
		store:        mockStore,
		maxAttempts:  3,
		retryBackoff: time.Millisecond,
	}

	ctx := context.Background()
	it := domain.Direct(testFlight(1, 15, 280))
	engine.session.RecordSearch([]domain.Itinerary{it})

	mockStore.On("Book", ctx, "alice", it).Return(int64(0), errors.New("connection refused")).Once()

	_, err := engine.Book(ctx, 0)

	assert.ErrorIs(t, err, ErrBookingFailed)
	mockStore.AssertNumberOfCalls(t, "Book", 1)
}

func TestEngine_Pay_NotLoggedIn(t *testing.T) {
	mockStore := &MockReservationRepository{}
	engine := &Engine{session: NewSession(), store: mockStore}

	_, err := engine.Pay(context.Background(), 1)

	assert.ErrorIs(t, err, ErrNotLoggedIn)
	mockStore.AssertNotCalled(t, "Pay")
}

func TestEngine_Pay_NegativeID(t *testing.T) {
	mockStore := &MockReservationRepository{}
	engine := &Engine{session: loggedInSession("alice"), store: mockStore}

	_, err := engine.Pay(context.Background(), -1)

	assert.ErrorIs(t, err, ErrNoUnpaidReservation)
	mockStore.AssertNotCalled(t, "Pay")
}

func TestEngine_Pay_Success(t *testing.T) {
	mockStore := &MockReservationRepository{}
	mockProducer := &MockProducer{}
	engine := &Engine{
		session:           loggedInSession("alice"),
		store:             mockStore,
		producer:          mockProducer,
		reservationsTopic: "reservation-events",
	}

	ctx := context.Background()
	mockStore.On("Pay", ctx, "alice", int64(7)).Return(int64(700), nil).Once()
	mockProducer.On("Publish", ctx, "reservation-events", mock.Anything, mock.Anything).Return(nil).Once()

	remaining, err := engine.Pay(ctx, 7)

	assert.NoError(t, err)
	assert.Equal(t, int64(700), remaining)
	mockStore.AssertExpectations(t)
	mockProducer.AssertExpectations(t)
}

func TestEngine_Pay_InsufficientFunds(t *testing.T) {
	mockStore := &MockReservationRepository{}
	engine := &Engine{session: loggedInSession("alice"), store: mockStore}

	ctx := context.Background()
	mockStore.On("Pay", ctx, "alice", int64(7)).
		Return(int64(0), &repository.InsufficientFundsError{Balance: 100, Cost: 150}).Once()

	_, err := engine.Pay(ctx, 7)

	var insufficient *repository.InsufficientFundsError
	assert.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(100), insufficient.Balance)
	assert.Equal(t, int64(150), insufficient.Cost)
}

func TestEngine_Pay_SecondPaymentRejected(t *testing.T) {
	mockStore := &MockReservationRepository{}
	engine := &Engine{session: loggedInSession("alice"), store: mockStore}

	ctx := context.Background()
	mockStore.On("Pay", ctx, "alice", int64(7)).Return(int64(700), nil).Once()
	mockStore.On("Pay", ctx, "alice", int64(7)).Return(int64(0), repository.ErrNoUnpaidReservation).Once()

	remaining, err := engine.Pay(ctx, 7)
	assert.NoError(t, err)
	assert.Equal(t, int64(700), remaining)

	_, err = engine.Pay(ctx, 7)
	assert.ErrorIs(t, err, ErrNoUnpaidReservation)
}

func TestEngine_Pay_BalanceCheckFailed(t *testing.T) {
	mockStore := &MockReservationRepository{}
	engine := &Engine{session: loggedInSession("alice"), store: mockStore}

	ctx := context.Background()
	mockStore.On("Pay", ctx, "alice", int64(7)).Return(int64(0), repository.ErrBalanceCheck).Once()

	_, err := engine.Pay(ctx, 7)

	assert.ErrorIs(t, err, ErrBalanceCheck)
}

func TestEngine_Pay_StoreFailure(t *testing.T) {
	mockStore := &MockReservationRepository{}
	engine := &Engine{session: loggedInSession("alice"), store: mockStore}

	ctx := context.Background()
	mockStore.On("Pay", ctx, "alice", int64(7)).Return(int64(0), errors.New("connection refused")).Once()

	_, err := engine.Pay(ctx, 7)

	assert.ErrorIs(t, err, ErrPaymentFailed)
}

func TestEngine_ListReservations(t *testing.T) {
	mockStore := &MockReservationRepository{}
	engine := &Engine{session: loggedInSession("alice"), store: mockStore}

	ctx := context.Background()
	reservations := []domain.Reservation{
		{ID: 1, Username: "alice", Paid: true, Trip: domain.Direct(testFlight(1, 15, 280))},
		{ID: 3, Username: "alice", Paid: false, Trip: domain.Connecting(testFlight(2, 16, 140), testFlight(3, 16, 150))},
	}
	mockStore.On("ListByUser", ctx, "alice").Return(reservations, nil).Once()

	got, err := engine.ListReservations(ctx)

	assert.NoError(t, err)
	assert.Equal(t, reservations, got)
}

func TestEngine_ListReservations_NotLoggedIn(t *testing.T) {
	mockStore := &MockReservationRepository{}
	engine := &Engine{session: NewSession(), store: mockStore}

	_, err := engine.ListReservations(context.Background())

	assert.ErrorIs(t, err, ErrNotLoggedIn)
	mockStore.AssertNotCalled(t, "ListByUser")
}

func TestEngine_PublishFailureDoesNotFailBooking(t *testing.T) {
	mockStore := &MockReservationRepository{}
	mockProducer := &MockProducer{}
	engine := &Engine{
		session:           loggedInSession("alice"),
		store:             mockStore,
		producer:          mockProducer,
		reservationsTopic: "reservation-events",
		maxAttempts:       3,
		retryBackoff:      time.Millisecond,
	}

	ctx := context.Background()
	it := domain.Direct(testFlight(1, 15, 280))
	engine.session.RecordSearch([]domain.Itinerary{it})

	mockStore.On("Book", ctx, "alice", it).Return(int64(4), nil).Once()
	mockProducer.On("Publish", ctx, "reservation-events", mock.Anything, mock.Anything).
		Return(errors.New("broker unreachable")).Once()

	reservationID, err := engine.Book(ctx, 0)

	assert.NoError(t, err)
	assert.Equal(t, int64(4), reservationID)
}
