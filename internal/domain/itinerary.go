package domain

import "encoding/json"

// Itinerary is one bookable trip: either a single direct flight or two
// connecting flights on the same day. The legs are unexported so an
// itinerary can only be built through Direct or Connecting.
type Itinerary struct {
	first  Flight
	second *Flight
}

func Direct(f Flight) Itinerary {
	return Itinerary{first: f}
}

func Connecting(first, second Flight) Itinerary {
	s := second
	return Itinerary{first: first, second: &s}
}

func (it Itinerary) IsDirect() bool {
	return it.second == nil
}

func (it Itinerary) First() Flight {
	return it.first
}

// Second returns the connecting leg and whether it exists.
func (it Itinerary) Second() (Flight, bool) {
	if it.second == nil {
		return Flight{}, false
	}
	return *it.second, true
}

func (it Itinerary) Flights() []Flight {
	if it.second == nil {
		return []Flight{it.first}
	}
	return []Flight{it.first, *it.second}
}

func (it Itinerary) Duration() int {
	d := it.first.Duration
	if it.second != nil {
		d += it.second.Duration
	}
	return d
}

func (it Itinerary) Cost() int64 {
	c := it.first.Price
	if it.second != nil {
		c += it.second.Price
	}
	return c
}

// Less orders itineraries by total duration, then first-flight id, then
// second-flight id where a missing second leg sorts after any present one.
func (it Itinerary) Less(other Itinerary) bool {
	if it.Duration() != other.Duration() {
		return it.Duration() < other.Duration()
	}
	if it.first.ID != other.first.ID {
		return it.first.ID < other.first.ID
	}
	return it.secondID() < other.secondID()
}

func (it Itinerary) secondID() int64 {
	if it.second == nil {
		return int64(^uint64(0) >> 1)
	}
	return it.second.ID
}

type itineraryJSON struct {
	First  Flight  `json:"first"`
	Second *Flight `json:"second,omitempty"`
}

func (it Itinerary) MarshalJSON() ([]byte, error) {
	return json.Marshal(itineraryJSON{First: it.first, Second: it.second})
}

func (it *Itinerary) UnmarshalJSON(data []byte) error {
	var raw itineraryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	it.first = raw.First
	it.second = raw.Second
	return nil
}
