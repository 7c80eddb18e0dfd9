package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tix-reserve/internal/domain"
	"github.com/kirinyoku/tix-reserve/internal/repository"
	"github.com/samber/lo"
)

type ReservationRepo struct {
	s     *Store
	bound bool
}

func (r *ReservationRepo) TryHold(ctx context.Context, eventID int64, seatIDs []int64, sessionID string, ttl time.Duration) (domain.Hold, error) {
	const op = "memory.ReservationRepo.TryHold"

	seatIDs = lo.Uniq(seatIDs)
	if len(seatIDs) == 0 {
		return domain.Hold{}, fmt.Errorf("%s:%w", op, errors.New("empty seat set"))
	}

	var hold domain.Hold
	err := r.s.do(ctx, r.bound, func(st *state) error {
		now := r.s.clock.Now()

		requested := make(map[int64]struct{}, len(seatIDs))
		var missing []int64
		for _, id := range seatIDs {
			requested[id] = struct{}{}
			if seat, ok := st.seatByID[id]; !ok || seat.EventID != eventID {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			return &repository.SeatsNotFoundError{SeatIDs: missing}
		}

		var conflicts []int64
		for _, row := range st.reservations {
			if _, ok := requested[row.SeatID]; ok && row.IsActive(now) {
				conflicts = append(conflicts, row.SeatID)
			}
		}
		if len(conflicts) > 0 {
			sort.Slice(conflicts, func(i, j int) bool { return conflicts[i] < conflicts[j] })
			return &repository.SeatConflictError{SeatIDs: conflicts}
		}

		// Held rows that lapsed without a sweep give way to the new hold.
		for i := range st.reservations {
			row := &st.reservations[i]
			if _, ok := requested[row.SeatID]; ok && row.State == domain.ReservationHeld {
				row.State = domain.ReservationExpired
			}
		}

		token := uuid.New()
		rows := make([]domain.SeatReservation, 0, len(seatIDs))
		for _, id := range seatIDs {
			st.nextResID++
			rows = append(rows, domain.SeatReservation{
				ID:         st.nextResID,
				EventID:    eventID,
				SeatID:     id,
				SessionID:  sessionID,
				HoldToken:  token,
				ReservedAt: now,
				ExpiresAt:  now.Add(ttl),
				State:      domain.ReservationHeld,
			})
		}
		st.reservations = append(st.reservations, rows...)

		hold = domain.HoldFromRows(rows)
		return nil
	})
	if err != nil {
		return domain.Hold{}, fmt.Errorf("%s:%w", op, err)
	}

	return hold, nil
}

func (r *ReservationRepo) RenewHold(ctx context.Context, token uuid.UUID, ttl time.Duration) (domain.Hold, error) {
	const op = "memory.ReservationRepo.RenewHold"

	var hold domain.Hold
	err := r.s.do(ctx, r.bound, func(st *state) error {
		now := r.s.clock.Now()

		idx := st.rowsByToken(token)
		if len(idx) == 0 {
			return repository.ErrNotFound
		}
		if !st.holdAt(idx).IsLive(now) {
			return repository.ErrHoldExpired
		}

		for _, i := range idx {
			st.reservations[i].ExpiresAt = now.Add(ttl)
			st.reservations[i].Renewals++
		}

		hold = st.holdAt(idx)
		return nil
	})
	if err != nil {
		return domain.Hold{}, fmt.Errorf("%s:%w", op, err)
	}

	return hold, nil
}

// ReleaseHold is idempotent. Confirmed, expired or unknown rows are left alone.
func (r *ReservationRepo) ReleaseHold(ctx context.Context, token uuid.UUID) error {
	return r.s.do(ctx, r.bound, func(st *state) error {
		for _, i := range st.rowsByToken(token) {
			if st.reservations[i].State == domain.ReservationHeld {
				st.reservations[i].State = domain.ReservationReleased
			}
		}
		return nil
	})
}

func (r *ReservationRepo) ConfirmHold(ctx context.Context, token uuid.UUID, bookingID uuid.UUID) error {
	const op = "memory.ReservationRepo.ConfirmHold"

	err := r.s.do(ctx, r.bound, func(st *state) error {
		now := r.s.clock.Now()

		idx := st.rowsByToken(token)
		if len(idx) == 0 {
			return repository.ErrNotFound
		}

		hold := st.holdAt(idx)
		if hold.State == domain.ReservationConfirmed && hold.BookingID != nil && *hold.BookingID == bookingID {
			return nil
		}
		if !hold.IsLive(now) {
			return repository.ErrHoldExpired
		}

		for _, i := range idx {
			id := bookingID
			st.reservations[i].State = domain.ReservationConfirmed
			st.reservations[i].BookingID = &id
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

func (r *ReservationRepo) ReleaseBooked(ctx context.Context, bookingID uuid.UUID) (int64, error) {
	var n int64
	err := r.s.do(ctx, r.bound, func(st *state) error {
		for i := range st.reservations {
			row := &st.reservations[i]
			if row.State == domain.ReservationConfirmed && row.BookingID != nil && *row.BookingID == bookingID {
				row.State = domain.ReservationReleased
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *ReservationRepo) GetHold(ctx context.Context, token uuid.UUID) (domain.Hold, error) {
	const op = "memory.ReservationRepo.GetHold"

	var hold domain.Hold
	err := r.s.do(ctx, r.bound, func(st *state) error {
		idx := st.rowsByToken(token)
		if len(idx) == 0 {
			return repository.ErrNotFound
		}
		hold = st.holdAt(idx)
		return nil
	})
	if err != nil {
		return domain.Hold{}, fmt.Errorf("%s:%w", op, err)
	}

	return hold, nil
}

func (r *ReservationRepo) ListActive(ctx context.Context, eventID int64) ([]domain.SeatReservation, error) {
	var out []domain.SeatReservation
	err := r.s.do(ctx, r.bound, func(st *state) error {
		now := r.s.clock.Now()
		for _, row := range st.reservations {
			if row.EventID == eventID && row.IsActive(now) {
				out = append(out, row)
			}
		}
		return nil
	})
	return out, err
}

func (r *ReservationRepo) SweepExpired(ctx context.Context, batchSize int) ([]domain.SweptHold, error) {
	var swept []domain.SweptHold
	err := r.s.do(ctx, r.bound, func(st *state) error {
		now := r.s.clock.Now()

		var due []int
		for i, row := range st.reservations {
			if row.State == domain.ReservationHeld && !row.ExpiresAt.After(now) {
				due = append(due, i)
			}
		}
		sort.SliceStable(due, func(a, b int) bool {
			return st.reservations[due[a]].ExpiresAt.Before(st.reservations[due[b]].ExpiresAt)
		})
		if batchSize > 0 && len(due) > batchSize {
			due = due[:batchSize]
		}

		byToken := make(map[uuid.UUID]int)
		for _, i := range due {
			row := &st.reservations[i]
			row.State = domain.ReservationExpired

			pos, ok := byToken[row.HoldToken]
			if !ok {
				pos = len(swept)
				byToken[row.HoldToken] = pos
				swept = append(swept, domain.SweptHold{EventID: row.EventID, HoldToken: row.HoldToken})
			}
			swept[pos].Seats++
		}
		return nil
	})
	return swept, err
}

func (st *state) rowsByToken(token uuid.UUID) []int {
	var idx []int
	for i, row := range st.reservations {
		if row.HoldToken == token {
			idx = append(idx, i)
		}
	}
	return idx
}

func (st *state) holdAt(idx []int) domain.Hold {
	rows := make([]domain.SeatReservation, 0, len(idx))
	for _, i := range idx {
		rows = append(rows, st.reservations[i])
	}
	return domain.HoldFromRows(rows)
}
