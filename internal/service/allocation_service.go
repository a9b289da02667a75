package service

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/seatdesk-api/internal/models"
	appErrors "github.com/noah-isme/seatdesk-api/pkg/errors"
)

type allocationStudentRepository interface {
	ListBySeat(ctx context.Context, exec sqlx.ExtContext, seatNumber int, excludeID string) ([]models.Student, error)
	FindByLocker(ctx context.Context, exec sqlx.ExtContext, lockerNumber int, excludeID string) (*models.Student, error)
	ExistsByRegistrationNumber(ctx context.Context, exec sqlx.ExtContext, value, excludeID string) (bool, error)
	ExistsByContactNumber(ctx context.Context, exec sqlx.ExtContext, value, excludeID string) (bool, error)
	ListRegistrationNumbers(ctx context.Context) ([]string, error)
}

type conflictRecorder interface {
	ObserveAllocationConflict(kind string)
}

// SeatConflict describes a rejected seat assignment: who occupies the seat
// and which slots they leave free.
type SeatConflict struct {
	StudentID      string        `json:"student_id"`
	StudentName    string        `json:"student_name"`
	SeatNumber     int           `json:"seat_number"`
	AvailableSlots []models.Slot `json:"available_time_slots"`
}

// LockerConflict describes a rejected locker assignment.
type LockerConflict struct {
	StudentID    string `json:"student_id"`
	StudentName  string `json:"student_name"`
	LockerNumber int    `json:"locker_number"`
}

// FieldConflict names the identity field that collided with an existing
// record.
type FieldConflict struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// AllocationService decides whether a proposed seat, locker or identity
// assignment may proceed. All checks are read-only; callers pass the
// transaction they intend to write in so check and write see the same state.
type AllocationService struct {
	repo    allocationStudentRepository
	metrics conflictRecorder
	logger  *zap.Logger
}

// NewAllocationService constructs the allocation service.
func NewAllocationService(repo allocationStudentRepository, metrics conflictRecorder, logger *zap.Logger) *AllocationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AllocationService{repo: repo, metrics: metrics, logger: logger}
}

// CheckSeat returns a SeatConflict when any active student occupies the seat
// with an overlapping time slot. Seat 0 means unassigned and always passes.
// Multiple students may legitimately share a seat with disjoint slots; the
// first overlapping record found wins the report.
func (s *AllocationService) CheckSeat(ctx context.Context, exec sqlx.ExtContext, seatNumber int, requested []models.Slot, excludeID string) (*SeatConflict, error) {
	if seatNumber == models.SeatUnassigned {
		return nil, nil
	}

	occupants, err := s.repo.ListBySeat(ctx, exec, seatNumber, excludeID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load seat occupants")
	}

	for _, occupant := range occupants {
		held := occupant.Slots()
		if models.SlotsOverlap(held, requested) {
			s.recordConflict("seat")
			return &SeatConflict{
				StudentID:      occupant.ID,
				StudentName:    occupant.FullName,
				SeatNumber:     seatNumber,
				AvailableSlots: models.RemainingSlots(held),
			}, nil
		}
	}
	return nil, nil
}

// CheckLocker returns a LockerConflict when another active student holds the
// locker. Lockers are exclusive; there is no slot dimension. Locker 0 means
// unassigned and always passes.
func (s *AllocationService) CheckLocker(ctx context.Context, exec sqlx.ExtContext, lockerNumber int, excludeID string) (*LockerConflict, error) {
	if lockerNumber == models.LockerUnassigned {
		return nil, nil
	}

	holder, err := s.repo.FindByLocker(ctx, exec, lockerNumber, excludeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load locker holder")
	}

	s.recordConflict("locker")
	return &LockerConflict{
		StudentID:    holder.ID,
		StudentName:  holder.FullName,
		LockerNumber: lockerNumber,
	}, nil
}

// CheckIdentity rejects registration or contact numbers already held by
// another active record, naming the colliding field.
func (s *AllocationService) CheckIdentity(ctx context.Context, exec sqlx.ExtContext, registrationNumber, contactNumber, excludeID string) (*FieldConflict, error) {
	taken, err := s.repo.ExistsByRegistrationNumber(ctx, exec, registrationNumber, excludeID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check registration number")
	}
	if taken {
		s.recordConflict("registration_number")
		return &FieldConflict{Field: "registration_number", Value: registrationNumber}, nil
	}

	taken, err = s.repo.ExistsByContactNumber(ctx, exec, contactNumber, excludeID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check contact number")
	}
	if taken {
		s.recordConflict("contact_number")
		return &FieldConflict{Field: "contact_number", Value: contactNumber}, nil
	}
	return nil, nil
}

// NextRegistrationNumber returns the smallest positive integer not used by
// any active record. Unparsable stored values are skipped. The scan runs
// fresh on every call because deactivations free numbers up again.
func (s *AllocationService) NextRegistrationNumber(ctx context.Context) (int, error) {
	numbers, err := s.repo.ListRegistrationNumbers(ctx)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration numbers")
	}

	used := make(map[int]struct{}, len(numbers))
	for _, raw := range numbers {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			continue
		}
		used[n] = struct{}{}
	}

	next := 1
	for {
		if _, ok := used[next]; !ok {
			return next, nil
		}
		next++
	}
}

func (s *AllocationService) recordConflict(kind string) {
	if s.metrics != nil {
		s.metrics.ObserveAllocationConflict(kind)
	}
}
