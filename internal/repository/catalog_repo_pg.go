package repository

import (
	"context"

	"github.com/Domenick1991/flightres/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CatalogRepository is the read-only flight catalog gateway. Both queries
// pre-order candidates by duration and flight id so callers can cap work;
// the authoritative ranking happens in the search service.
type CatalogRepository interface {
	FindDirect(ctx context.Context, origin, dest string, day, limit int) ([]domain.Flight, error)
	FindConnecting(ctx context.Context, origin, dest string, day, limit int) ([][2]domain.Flight, error)
}

type PGCatalogRepository struct {
	db *pgxpool.Pool
}

func NewCatalogRepository(db *pgxpool.Pool) CatalogRepository {
	return &PGCatalogRepository{db: db}
}

func (r *PGCatalogRepository) FindDirect(ctx context.Context, origin, dest string, day, limit int) ([]domain.Flight, error) {
	rows, err := r.db.Query(ctx, `SELECT fid, day_of_month, carrier_id, flight_num, origin_city, dest_city, actual_time, capacity, price
		FROM flights
		WHERE origin_city = $1 AND dest_city = $2 AND day_of_month = $3 AND canceled = 0
		ORDER BY actual_time ASC, fid ASC
		LIMIT $4`, origin, dest, day, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	flights := make([]domain.Flight, 0)
	for rows.Next() {
		var f domain.Flight
		if err := rows.Scan(&f.ID, &f.DayOfMonth, &f.CarrierID, &f.FlightNum, &f.OriginCity, &f.DestCity, &f.Duration, &f.Capacity, &f.Price); err != nil {
			return nil, err
		}
		flights = append(flights, f)
	}
	return flights, rows.Err()
}

func (r *PGCatalogRepository) FindConnecting(ctx context.Context, origin, dest string, day, limit int) ([][2]domain.Flight, error) {
	rows, err := r.db.Query(ctx, `SELECT
			f1.fid, f1.day_of_month, f1.carrier_id, f1.flight_num, f1.origin_city, f1.dest_city, f1.actual_time, f1.capacity, f1.price,
			f2.fid, f2.day_of_month, f2.carrier_id, f2.flight_num, f2.origin_city, f2.dest_city, f2.actual_time, f2.capacity, f2.price
		FROM flights AS f1
		JOIN flights AS f2 ON f1.dest_city = f2.origin_city AND f1.day_of_month = f2.day_of_month
		WHERE f1.origin_city = $1 AND f2.dest_city = $2 AND f1.day_of_month = $3
			AND f1.canceled = 0 AND f2.canceled = 0
		ORDER BY (f1.actual_time + f2.actual_time) ASC, f1.fid ASC, f2.fid ASC
		LIMIT $4`, origin, dest, day, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pairs := make([][2]domain.Flight, 0)
	for rows.Next() {
		var p [2]domain.Flight
		if err := rows.Scan(
			&p[0].ID, &p[0].DayOfMonth, &p[0].CarrierID, &p[0].FlightNum, &p[0].OriginCity, &p[0].DestCity, &p[0].Duration, &p[0].Capacity, &p[0].Price,
			&p[1].ID, &p[1].DayOfMonth, &p[1].CarrierID, &p[1].FlightNum, &p[1].OriginCity, &p[1].DestCity, &p[1].Duration, &p[1].Capacity, &p[1].Price,
		); err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

var _ CatalogRepository = (*PGCatalogRepository)(nil)
