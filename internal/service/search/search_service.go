package search

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/Domenick1991/flightres/internal/domain"
	"github.com/Domenick1991/flightres/internal/repository"
)

// ErrNoFlights is the "no results" outcome: the combined candidate list
// was empty before ranking.
var ErrNoFlights = errors.New("no flights match your selection")

type Query struct {
	Origin     string
	Dest       string
	DirectOnly bool
	Day        int
	Max        int
}

func (q Query) CacheKey() string {
	return fmt.Sprintf("%s:%s:%d:%t:%d", q.Origin, q.Dest, q.Day, q.DirectOnly, q.Max)
}

type SearchUseCase interface {
	Search(ctx context.Context, q Query) ([]domain.Itinerary, error)
}

type Cache interface {
	GetItineraries(ctx context.Context, key string) ([]domain.Itinerary, error)
	SetItineraries(ctx context.Context, key string, itineraries []domain.Itinerary) error
}

type SearchService struct {
	catalog repository.CatalogRepository
	cache   Cache
}

func NewSearchService(catalog repository.CatalogRepository, cache Cache) *SearchService {
	return &SearchService{catalog: catalog, cache: cache}
}

// Search builds the ranked itinerary list for a query. Direct candidates
// fill the quota first; connecting pairs only fill whatever quota is left.
// The combined list is then stable-sorted by total duration with flight-id
// tie-breaks, which is the authoritative order; the per-query ordering only
// bounds how many candidates are considered.
func (s *SearchService) Search(ctx context.Context, q Query) ([]domain.Itinerary, error) {
	if q.Max <= 0 {
		return nil, ErrNoFlights
	}

	if s.cache != nil {
		if cached, err := s.cache.GetItineraries(ctx, q.CacheKey()); err == nil && cached != nil {
			return cached, nil
		}
	}

	direct, err := s.catalog.FindDirect(ctx, q.Origin, q.Dest, q.Day, q.Max)
	if err != nil {
		return nil, err
	}

	itineraries := make([]domain.Itinerary, 0, q.Max)
	for _, f := range direct {
		itineraries = append(itineraries, domain.Direct(f))
	}

	if !q.DirectOnly && len(itineraries) < q.Max {
		pairs, err := s.catalog.FindConnecting(ctx, q.Origin, q.Dest, q.Day, q.Max-len(itineraries))
		if err != nil {
			return nil, err
		}
		for _, p := range pairs {
			itineraries = append(itineraries, domain.Connecting(p[0], p[1]))
		}
	}

	if len(itineraries) == 0 {
		return nil, ErrNoFlights
	}

	sort.SliceStable(itineraries, func(i, j int) bool {
		return itineraries[i].Less(itineraries[j])
	})

	if s.cache != nil {
		_ = s.cache.SetItineraries(ctx, q.CacheKey(), itineraries)
	}
	return itineraries, nil
}

var _ SearchUseCase = (*SearchService)(nil)
