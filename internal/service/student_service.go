package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/seatdesk-api/internal/models"
	appErrors "github.com/noah-isme/seatdesk-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	Create(ctx context.Context, exec sqlx.ExtContext, student *models.Student) error
	Update(ctx context.Context, exec sqlx.ExtContext, student *models.Student) error
	Deactivate(ctx context.Context, id string) error
	WithTx(ctx context.Context, fn func(exec sqlx.ExtContext) error) error
	LockAllocationGroup(ctx context.Context, exec sqlx.ExtContext, kind string, number int) error
}

type allocationChecker interface {
	CheckSeat(ctx context.Context, exec sqlx.ExtContext, seatNumber int, requested []models.Slot, excludeID string) (*SeatConflict, error)
	CheckLocker(ctx context.Context, exec sqlx.ExtContext, lockerNumber int, excludeID string) (*LockerConflict, error)
	CheckIdentity(ctx context.Context, exec sqlx.ExtContext, registrationNumber, contactNumber, excludeID string) (*FieldConflict, error)
	NextRegistrationNumber(ctx context.Context) (int, error)
}

// CreateStudentRequest holds payload for creating students. An empty
// registration number asks the gap-fill allocator for the next free one.
type CreateStudentRequest struct {
	RegistrationNumber  string    `json:"registration_number" validate:"omitempty,numeric"`
	FullName            string    `json:"full_name" validate:"required"`
	FatherName          string    `json:"father_name"`
	ContactNumber       string    `json:"contact_number" validate:"required,len=10,numeric"`
	Address             string    `json:"address"`
	SeatNumber          int       `json:"seat_number" validate:"min=0,max=136"`
	TimeSlots           []string  `json:"time_slots" validate:"required,min=1"`
	LockerNumber        int       `json:"locker_number" validate:"min=0,max=100"`
	AmountPaid          float64   `json:"amount_paid" validate:"min=0"`
	AmountDue           *float64  `json:"amount_due"`
	AdmissionAmount     float64   `json:"admission_amount" validate:"min=0"`
	FeesPaidTillDate    time.Time `json:"fees_paid_till_date"`
	AdmissionDate       time.Time `json:"admission_date"`
	PaymentExpectedDate time.Time `json:"payment_expected_date"`
	OwnerID             *string   `json:"-"`
}

// UpdateStudentRequest holds a partial payload for updating students. Nil or
// empty allocation fields keep the stored value rather than clearing it.
type UpdateStudentRequest struct {
	RegistrationNumber  *string    `json:"registration_number" validate:"omitempty,numeric"`
	FullName            *string    `json:"full_name"`
	FatherName          *string    `json:"father_name"`
	ContactNumber       *string    `json:"contact_number" validate:"omitempty,len=10,numeric"`
	Address             *string    `json:"address"`
	SeatNumber          *int       `json:"seat_number" validate:"omitempty,min=0,max=136"`
	TimeSlots           []string   `json:"time_slots"`
	LockerNumber        *int       `json:"locker_number" validate:"omitempty,min=0,max=100"`
	AmountPaid          *float64   `json:"amount_paid" validate:"omitempty,min=0"`
	AmountDue           *float64   `json:"amount_due"`
	AdmissionAmount     *float64   `json:"admission_amount" validate:"omitempty,min=0"`
	FeesPaidTillDate    *time.Time `json:"fees_paid_till_date"`
	AdmissionDate       *time.Time `json:"admission_date"`
	PaymentExpectedDate *time.Time `json:"payment_expected_date"`
	Active              *bool      `json:"active"`
}

// StudentService handles student record use-cases. Create and update run
// their allocation checks and the write inside one transaction, behind a
// per-seat and per-locker advisory lock, so concurrent requests cannot both
// pass a check and double-book.
type StudentService struct {
	repo       studentRepository
	allocation allocationChecker
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, allocation allocationChecker, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, allocation: allocation, validator: validate, logger: logger}
}

// List returns students and pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return students, pagination, nil
}

// Get returns a student by ID.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// NextRegistrationNumber exposes the gap-fill allocator.
func (s *StudentService) NextRegistrationNumber(ctx context.Context) (int, error) {
	return s.allocation.NextRegistrationNumber(ctx)
}

// Create registers a new student after all allocation checks pass.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	slots, err := models.ParseSlots(req.TimeSlots)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	registrationNumber := req.RegistrationNumber
	if registrationNumber == "" {
		next, err := s.allocation.NextRegistrationNumber(ctx)
		if err != nil {
			return nil, err
		}
		registrationNumber = strconv.Itoa(next)
	}

	student := &models.Student{
		RegistrationNumber:  registrationNumber,
		FullName:            req.FullName,
		FatherName:          req.FatherName,
		ContactNumber:       req.ContactNumber,
		Address:             req.Address,
		SeatNumber:          req.SeatNumber,
		TimeSlots:           models.SlotStrings(slots),
		LockerNumber:        req.LockerNumber,
		AmountPaid:          req.AmountPaid,
		AmountDue:           req.AmountDue,
		AdmissionAmount:     req.AdmissionAmount,
		FeesPaidTillDate:    req.FeesPaidTillDate,
		AdmissionDate:       req.AdmissionDate,
		PaymentExpectedDate: req.PaymentExpectedDate,
		Active:              true,
		OwnerID:             req.OwnerID,
	}
	if student.AdmissionDate.IsZero() {
		student.AdmissionDate = time.Now().UTC()
	}

	err = s.repo.WithTx(ctx, func(exec sqlx.ExtContext) error {
		if err := s.checkAllocation(ctx, exec, student, ""); err != nil {
			return err
		}
		return s.repo.Create(ctx, exec, student)
	})
	if err != nil {
		return nil, s.mapWriteError(err, "failed to create student")
	}
	return student, nil
}

// Update applies a partial update, re-running the allocation checks with the
// record's own ID excluded so it can keep or adjust its current assignment.
func (s *StudentService) Update(ctx context.Context, id string, req UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	student := *current
	applyStudentUpdate(&student, req)

	if len(req.TimeSlots) > 0 {
		slots, err := models.ParseSlots(req.TimeSlots)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
		}
		student.TimeSlots = models.SlotStrings(slots)
	}

	if req.PaymentExpectedDate != nil && !req.PaymentExpectedDate.Equal(current.PaymentExpectedDate) {
		student.PaymentExpectedDate = *req.PaymentExpectedDate
		student.PaymentExpectedDateChanged = current.PaymentExpectedDateChanged + 1
	}

	err = s.repo.WithTx(ctx, func(exec sqlx.ExtContext) error {
		if err := s.checkAllocation(ctx, exec, &student, id); err != nil {
			return err
		}
		return s.repo.Update(ctx, exec, &student)
	})
	if err != nil {
		return nil, s.mapWriteError(err, "failed to update student")
	}
	return &student, nil
}

// Deactivate marks a student inactive.
func (s *StudentService) Deactivate(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate student")
	}
	return nil
}

// checkAllocation takes the group locks and runs every conflict check inside
// the write transaction. Lock order is seat before locker to keep concurrent
// writers deadlock free.
func (s *StudentService) checkAllocation(ctx context.Context, exec sqlx.ExtContext, student *models.Student, excludeID string) error {
	if err := s.repo.LockAllocationGroup(ctx, exec, "seat", student.SeatNumber); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock seat group")
	}
	if err := s.repo.LockAllocationGroup(ctx, exec, "locker", student.LockerNumber); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock locker group")
	}

	fieldConflict, err := s.allocation.CheckIdentity(ctx, exec, student.RegistrationNumber, student.ContactNumber, excludeID)
	if err != nil {
		return err
	}
	if fieldConflict != nil {
		return appErrors.WithDetails(appErrors.ErrDuplicateIdentity,
			fmt.Sprintf("%s already in use", fieldConflict.Field), fieldConflict)
	}

	seatConflict, err := s.allocation.CheckSeat(ctx, exec, student.SeatNumber, student.Slots(), excludeID)
	if err != nil {
		return err
	}
	if seatConflict != nil {
		return appErrors.WithDetails(appErrors.ErrSeatConflict,
			fmt.Sprintf("seat %d is occupied by %s for the requested time slots", seatConflict.SeatNumber, seatConflict.StudentName), seatConflict)
	}

	lockerConflict, err := s.allocation.CheckLocker(ctx, exec, student.LockerNumber, excludeID)
	if err != nil {
		return err
	}
	if lockerConflict != nil {
		return appErrors.WithDetails(appErrors.ErrLockerConflict,
			fmt.Sprintf("locker %d is assigned to %s", lockerConflict.LockerNumber, lockerConflict.StudentName), lockerConflict)
	}
	return nil
}

// mapWriteError passes typed errors through and translates unique-constraint
// violations, the storage backstop for identity uniqueness, into the same
// duplicate-identity rejection the pre-check produces.
func (s *StudentService) mapWriteError(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return appErrors.Clone(appErrors.ErrDuplicateIdentity, "registration or contact number already in use")
	}
	s.logger.Error("student write failed", zap.Error(err))
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func applyStudentUpdate(student *models.Student, req UpdateStudentRequest) {
	if req.RegistrationNumber != nil && *req.RegistrationNumber != "" {
		student.RegistrationNumber = *req.RegistrationNumber
	}
	if req.FullName != nil && *req.FullName != "" {
		student.FullName = *req.FullName
	}
	if req.FatherName != nil {
		student.FatherName = *req.FatherName
	}
	if req.ContactNumber != nil && *req.ContactNumber != "" {
		student.ContactNumber = *req.ContactNumber
	}
	if req.Address != nil {
		student.Address = *req.Address
	}
	if req.SeatNumber != nil {
		student.SeatNumber = *req.SeatNumber
	}
	if req.LockerNumber != nil {
		student.LockerNumber = *req.LockerNumber
	}
	if req.AmountPaid != nil {
		student.AmountPaid = *req.AmountPaid
	}
	if req.AmountDue != nil {
		student.AmountDue = req.AmountDue
	}
	if req.AdmissionAmount != nil {
		student.AdmissionAmount = *req.AdmissionAmount
	}
	if req.FeesPaidTillDate != nil {
		student.FeesPaidTillDate = *req.FeesPaidTillDate
	}
	if req.AdmissionDate != nil {
		student.AdmissionDate = *req.AdmissionDate
	}
	if req.Active != nil {
		student.Active = *req.Active
	}
}
