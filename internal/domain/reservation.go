package domain

// Reservation is a committed booking. The paid flag flips false to true
// exactly once, in the payment transaction.
type Reservation struct {
	ID       int64     `json:"id"`
	Username string    `json:"username"`
	Paid     bool      `json:"paid"`
	Trip     Itinerary `json:"trip"`
}

type Account struct {
	Username string `json:"username"`
	Balance  int64  `json:"balance"`
}
