package memory

import (
	"context"
	"fmt"
	"slices"

	"github.com/kirinyoku/tix-reserve/internal/domain"
	"github.com/kirinyoku/tix-reserve/internal/repository"
)

type CatalogRepo struct {
	s     *Store
	bound bool
}

func (r *CatalogRepo) ListSeats(ctx context.Context, eventID int64) ([]domain.Seat, error) {
	const op = "memory.CatalogRepo.ListSeats"

	var out []domain.Seat
	err := r.s.do(ctx, r.bound, func(st *state) error {
		seats := st.seats[eventID]
		if len(seats) == 0 {
			return repository.ErrNotFound
		}
		out = slices.Clone(seats)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

func (r *CatalogRepo) GetSeats(ctx context.Context, eventID int64, seatIDs []int64) ([]domain.Seat, error) {
	var out []domain.Seat
	err := r.s.do(ctx, r.bound, func(st *state) error {
		for _, id := range seatIDs {
			if seat, ok := st.seatByID[id]; ok && seat.EventID == eventID {
				out = append(out, seat)
			}
		}
		return nil
	})
	sortSeats(out)
	return out, err
}

func (r *CatalogRepo) PublishLayout(ctx context.Context, event domain.Event, seats []domain.Seat) (int64, error) {
	const op = "memory.CatalogRepo.PublishLayout"

	err := r.s.do(ctx, r.bound, func(st *state) error {
		if len(st.seats[event.ID]) > 0 {
			return repository.ErrConflict
		}

		type key struct {
			row    string
			number int
		}
		seen := make(map[key]struct{}, len(seats))
		published := make([]domain.Seat, 0, len(seats))

		for _, s := range seats {
			k := key{s.Row, s.Number}
			if _, dup := seen[k]; dup {
				return repository.ErrConflict
			}
			seen[k] = struct{}{}

			st.nextSeatID++
			s.ID = st.nextSeatID
			s.EventID = event.ID
			published = append(published, s)
			st.seatByID[s.ID] = s
		}

		sortSeats(published)
		st.events[event.ID] = event
		st.seats[event.ID] = published
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	return int64(len(seats)), nil
}
