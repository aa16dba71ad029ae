package email

import (
	"context"
	"fmt"

	"github.com/Domenick1991/flightres/internal/kafka"
)

type Sender struct{}

func NewSender() *Sender {
	return &Sender{}
}

func (s *Sender) Send(ctx context.Context, event kafka.ReservationEvent) error {
	fmt.Printf("notify %s: %s for reservation %d (flights %v)\n", event.Username, event.Type, event.ReservationID, event.FlightIDs)
	return nil
}
