package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Domenick1991/flightres/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrSameDayConflict: the user already holds a reservation touching a
	// flight on the same day of month as one of the requested legs.
	ErrSameDayConflict = errors.New("flight already reserved on the same day")

	// ErrNoSeats: a leg has no remaining capacity.
	ErrNoSeats = errors.New("no seats left on flight")

	// ErrNoUnpaidReservation: the reservation does not exist for this user
	// or has already been paid.
	ErrNoUnpaidReservation = errors.New("no unpaid reservation")

	// ErrBalanceCheck: the paying user's account row could not be read.
	ErrBalanceCheck = errors.New("balance check failed")
)

// InsufficientFundsError carries the observed balance and itinerary cost
// for the user-facing message.
type InsufficientFundsError struct {
	Balance int64
	Cost    int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("user has only %d in account but itinerary costs %d", e.Balance, e.Cost)
}

// IsTransient reports whether err is a write-write conflict the caller
// should retry against fresh state: serialization_failure (40001) or
// deadlock_detected (40P01).
func IsTransient(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// ReservationRepository runs the booking and payment units of work. Each
// call is a single serializable transaction that commits fully or rolls
// back fully.
type ReservationRepository interface {
	Book(ctx context.Context, username string, trip domain.Itinerary) (int64, error)
	Pay(ctx context.Context, username string, reservationID int64) (int64, error)
	ListByUser(ctx context.Context, username string) ([]domain.Reservation, error)
}

type PGReservationRepository struct {
	db *pgxpool.Pool
}

func NewReservationRepository(db *pgxpool.Pool) ReservationRepository {
	return &PGReservationRepository{db: db}
}

// Book checks the same-day rule and remaining capacity for every leg,
// allocates the next reservation id and inserts the unpaid row, all inside
// one serializable transaction so concurrent sessions cannot invalidate a
// check between read and write.
func (r *PGReservationRepository) Book(ctx context.Context, username string, trip domain.Itinerary) (int64, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	for _, f := range trip.Flights() {
		var held int
		err := tx.QueryRow(ctx, `SELECT COUNT(*)
			FROM reservations r
			JOIN flights f ON f.fid = r.fid1 OR f.fid = r.fid2
			WHERE r.username = $1 AND f.day_of_month = $2`, username, f.DayOfMonth).Scan(&held)
		if err != nil {
			return 0, err
		}
		if held > 0 {
			return 0, ErrSameDayConflict
		}
	}

	for _, f := range trip.Flights() {
		var remaining int
		err := tx.QueryRow(ctx, `SELECT f.capacity - COUNT(r.res_id)
			FROM flights f
			LEFT JOIN reservations r ON r.fid1 = f.fid OR r.fid2 = f.fid
			WHERE f.fid = $1
			GROUP BY f.capacity`, f.ID).Scan(&remaining)
		if err != nil {
			return 0, err
		}
		if remaining <= 0 {
			return 0, ErrNoSeats
		}
	}

	// Allocated in the same transaction as the insert so an id is never
	// assigned without being committed.
	var reservationID int64
	if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(res_id), 0) + 1 FROM reservations`).Scan(&reservationID); err != nil {
		return 0, err
	}

	var second *int64
	if s, ok := trip.Second(); ok {
		second = &s.ID
	}
	if _, err := tx.Exec(ctx, `INSERT INTO reservations (res_id, username, fid1, fid2, paid)
		VALUES ($1, $2, $3, $4, FALSE)`, reservationID, username, trip.First().ID, second); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return reservationID, nil
}

// Pay verifies ownership and unpaid status, checks the balance, then
// debits the account and flips the paid flag together. The debit and the
// flag flip commit as one or not at all.
func (r *PGReservationRepository) Pay(ctx context.Context, username string, reservationID int64) (int64, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var paid bool
	var cost int64
	err = tx.QueryRow(ctx, `SELECT r.paid, f1.price + COALESCE(f2.price, 0)
		FROM reservations r
		JOIN flights f1 ON f1.fid = r.fid1
		LEFT JOIN flights f2 ON f2.fid = r.fid2
		WHERE r.res_id = $1 AND r.username = $2`, reservationID, username).Scan(&paid, &cost)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNoUnpaidReservation
	}
	if err != nil {
		return 0, err
	}
	if paid {
		return 0, ErrNoUnpaidReservation
	}

	var balance int64
	err = tx.QueryRow(ctx, `SELECT balance FROM users WHERE username = $1`, username).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrBalanceCheck
	}
	if err != nil {
		return 0, err
	}
	if balance < cost {
		return 0, &InsufficientFundsError{Balance: balance, Cost: cost}
	}

	if _, err := tx.Exec(ctx, `UPDATE users SET balance = balance - $1 WHERE username = $2`, cost, username); err != nil {
		return 0, err
	}
	if _, err := tx.Exec(ctx, `UPDATE reservations SET paid = TRUE WHERE res_id = $1`, reservationID); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return balance - cost, nil
}

func (r *PGReservationRepository) ListByUser(ctx context.Context, username string) ([]domain.Reservation, error) {
	rows, err := r.db.Query(ctx, `SELECT r.res_id, r.paid,
			f1.fid, f1.day_of_month, f1.carrier_id, f1.flight_num, f1.origin_city, f1.dest_city, f1.actual_time, f1.capacity, f1.price,
			f2.fid, f2.day_of_month, f2.carrier_id, f2.flight_num, f2.origin_city, f2.dest_city, f2.actual_time, f2.capacity, f2.price
		FROM reservations r
		JOIN flights f1 ON f1.fid = r.fid1
		LEFT JOIN flights f2 ON f2.fid = r.fid2
		WHERE r.username = $1
		ORDER BY r.res_id ASC`, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reservations := make([]domain.Reservation, 0)
	for rows.Next() {
		var (
			res    domain.Reservation
			first  domain.Flight
			second scannedFlight
		)
		if err := rows.Scan(&res.ID, &res.Paid,
			&first.ID, &first.DayOfMonth, &first.CarrierID, &first.FlightNum, &first.OriginCity, &first.DestCity, &first.Duration, &first.Capacity, &first.Price,
			&second.ID, &second.DayOfMonth, &second.CarrierID, &second.FlightNum, &second.OriginCity, &second.DestCity, &second.Duration, &second.Capacity, &second.Price,
		); err != nil {
			return nil, err
		}
		res.Username = username
		if f, ok := second.flight(); ok {
			res.Trip = domain.Connecting(first, f)
		} else {
			res.Trip = domain.Direct(first)
		}
		reservations = append(reservations, res)
	}
	return reservations, rows.Err()
}

// scannedFlight holds the nullable columns of the optional second leg.
type scannedFlight struct {
	ID         *int64
	DayOfMonth *int
	CarrierID  *string
	FlightNum  *string
	OriginCity *string
	DestCity   *string
	Duration   *int
	Capacity   *int
	Price      *int64
}

func (s scannedFlight) flight() (domain.Flight, bool) {
	if s.ID == nil {
		return domain.Flight{}, false
	}
	return domain.Flight{
		ID:         *s.ID,
		DayOfMonth: *s.DayOfMonth,
		CarrierID:  *s.CarrierID,
		FlightNum:  *s.FlightNum,
		OriginCity: *s.OriginCity,
		DestCity:   *s.DestCity,
		Duration:   *s.Duration,
		Capacity:   *s.Capacity,
		Price:      *s.Price,
	}, true
}

var _ ReservationRepository = (*PGReservationRepository)(nil)
