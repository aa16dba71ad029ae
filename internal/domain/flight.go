package domain

// Flight is an immutable catalog row. The catalog is read-only for the
// engine; only reservations reference flights.
type Flight struct {
	ID         int64  `json:"id"`
	DayOfMonth int    `json:"day_of_month"`
	CarrierID  string `json:"carrier_id"`
	FlightNum  string `json:"flight_num"`
	OriginCity string `json:"origin_city"`
	DestCity   string `json:"dest_city"`
	Duration   int    `json:"duration"`
	Capacity   int    `json:"capacity"`
	Price      int64  `json:"price"`
}
