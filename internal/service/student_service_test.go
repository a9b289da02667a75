package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/seatdesk-api/internal/models"
	appErrors "github.com/noah-isme/seatdesk-api/pkg/errors"
)

type mockStudentRepo struct {
	students map[string]models.Student
	created  *models.Student
	updated  *models.Student
	locks    []string
	txCalls  int
}

func (m *mockStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	var out []models.Student
	for _, st := range m.students {
		out = append(out, st)
	}
	return out, len(out), nil
}

func (m *mockStudentRepo) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if st, ok := m.students[id]; ok {
		return &st, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) Create(ctx context.Context, exec sqlx.ExtContext, student *models.Student) error {
	if m.students == nil {
		m.students = make(map[string]models.Student)
	}
	if student.ID == "" {
		student.ID = "new-student"
	}
	m.students[student.ID] = *student
	m.created = student
	return nil
}

func (m *mockStudentRepo) Update(ctx context.Context, exec sqlx.ExtContext, student *models.Student) error {
	m.students[student.ID] = *student
	m.updated = student
	return nil
}

func (m *mockStudentRepo) Deactivate(ctx context.Context, id string) error {
	if st, ok := m.students[id]; ok {
		st.Active = false
		m.students[id] = st
	}
	return nil
}

func (m *mockStudentRepo) WithTx(ctx context.Context, fn func(exec sqlx.ExtContext) error) error {
	m.txCalls++
	return fn(nil)
}

func (m *mockStudentRepo) LockAllocationGroup(ctx context.Context, exec sqlx.ExtContext, kind string, number int) error {
	if number != 0 {
		m.locks = append(m.locks, fmt.Sprintf("%s:%d", kind, number))
	}
	return nil
}

type mockChecker struct {
	seatConflict   *SeatConflict
	lockerConflict *LockerConflict
	fieldConflict  *FieldConflict
	next           int
	lastExcludeID  string
	lastSeat       int
	lastSlots      []models.Slot
	lastLocker     int
}

func (m *mockChecker) CheckSeat(ctx context.Context, exec sqlx.ExtContext, seatNumber int, requested []models.Slot, excludeID string) (*SeatConflict, error) {
	m.lastSeat = seatNumber
	m.lastSlots = requested
	m.lastExcludeID = excludeID
	return m.seatConflict, nil
}

func (m *mockChecker) CheckLocker(ctx context.Context, exec sqlx.ExtContext, lockerNumber int, excludeID string) (*LockerConflict, error) {
	m.lastLocker = lockerNumber
	return m.lockerConflict, nil
}

func (m *mockChecker) CheckIdentity(ctx context.Context, exec sqlx.ExtContext, registrationNumber, contactNumber, excludeID string) (*FieldConflict, error) {
	return m.fieldConflict, nil
}

func (m *mockChecker) NextRegistrationNumber(ctx context.Context) (int, error) {
	if m.next == 0 {
		return 1, nil
	}
	return m.next, nil
}

func validCreateRequest() CreateStudentRequest {
	return CreateStudentRequest{
		FullName:      "Asha Verma",
		ContactNumber: "9876543210",
		SeatNumber:    5,
		TimeSlots:     []string{"10:00-14:00"},
		LockerNumber:  12,
		AmountPaid:    1200,
	}
}

func TestStudentCreateAssignsRegistrationNumber(t *testing.T) {
	repo := &mockStudentRepo{}
	checker := &mockChecker{next: 3}
	svc := NewStudentService(repo, checker, nil, nil)

	student, err := svc.Create(context.Background(), validCreateRequest())
	require.NoError(t, err)
	assert.Equal(t, "3", student.RegistrationNumber)
	assert.True(t, student.Active)
	assert.Equal(t, 1, repo.txCalls)
	require.NotNil(t, repo.created)
	assert.Equal(t, []string{"seat:5", "locker:12"}, repo.locks)
}

func TestStudentCreateSeatConflict(t *testing.T) {
	repo := &mockStudentRepo{}
	checker := &mockChecker{seatConflict: &SeatConflict{
		StudentID:      "s1",
		StudentName:    "Bilal",
		SeatNumber:     5,
		AvailableSlots: []models.Slot{models.SlotEvening},
	}}
	svc := NewStudentService(repo, checker, nil, nil)

	_, err := svc.Create(context.Background(), validCreateRequest())
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrSeatConflict.Code, appErr.Code)
	assert.Equal(t, 409, appErr.Status)
	require.IsType(t, &SeatConflict{}, appErr.Details)
	assert.Equal(t, "Bilal", appErr.Details.(*SeatConflict).StudentName)
	assert.Nil(t, repo.created)
}

func TestStudentCreateLockerConflict(t *testing.T) {
	repo := &mockStudentRepo{}
	checker := &mockChecker{lockerConflict: &LockerConflict{StudentName: "Chitra", LockerNumber: 12}}
	svc := NewStudentService(repo, checker, nil, nil)

	_, err := svc.Create(context.Background(), validCreateRequest())
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrLockerConflict.Code, appErr.Code)
	assert.Nil(t, repo.created)
}

func TestStudentCreateDuplicateIdentity(t *testing.T) {
	repo := &mockStudentRepo{}
	checker := &mockChecker{fieldConflict: &FieldConflict{Field: "contact_number", Value: "9876543210"}}
	svc := NewStudentService(repo, checker, nil, nil)

	_, err := svc.Create(context.Background(), validCreateRequest())
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrDuplicateIdentity.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "contact_number")
}

func TestStudentCreateRejectsBadContact(t *testing.T) {
	svc := NewStudentService(&mockStudentRepo{}, &mockChecker{}, nil, nil)

	req := validCreateRequest()
	req.ContactNumber = "12345"
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestStudentCreateRejectsUnknownSlot(t *testing.T) {
	svc := NewStudentService(&mockStudentRepo{}, &mockChecker{}, nil, nil)

	req := validCreateRequest()
	req.TimeSlots = []string{"08:00-12:00"}
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestStudentCreateRejectsOutOfRangeSeat(t *testing.T) {
	svc := NewStudentService(&mockStudentRepo{}, &mockChecker{}, nil, nil)

	req := validCreateRequest()
	req.SeatNumber = 137
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func existingStudent() models.Student {
	return models.Student{
		ID:                  "stu-1",
		RegistrationNumber:  "7",
		FullName:            "Asha Verma",
		ContactNumber:       "9876543210",
		SeatNumber:          5,
		TimeSlots:           models.SlotStrings([]models.Slot{models.SlotForenoon}),
		LockerNumber:        12,
		PaymentExpectedDate: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		Active:              true,
	}
}

func TestStudentUpdatePreservesOmittedAllocationFields(t *testing.T) {
	repo := &mockStudentRepo{students: map[string]models.Student{"stu-1": existingStudent()}}
	checker := &mockChecker{}
	svc := NewStudentService(repo, checker, nil, nil)

	name := "Asha V"
	updated, err := svc.Update(context.Background(), "stu-1", UpdateStudentRequest{FullName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Asha V", updated.FullName)
	assert.Equal(t, 5, updated.SeatNumber)
	assert.Equal(t, 12, updated.LockerNumber)
	assert.Equal(t, []string{"10:00-14:00"}, []string(updated.TimeSlots))
	assert.Equal(t, "stu-1", checker.lastExcludeID)
}

func TestStudentUpdateSelfExclusionAllowsSlotGrowth(t *testing.T) {
	repo := &mockStudentRepo{students: map[string]models.Student{"stu-1": existingStudent()}}
	checker := &mockChecker{}
	svc := NewStudentService(repo, checker, nil, nil)

	updated, err := svc.Update(context.Background(), "stu-1", UpdateStudentRequest{
		TimeSlots: []string{"10:00-14:00", "14:00-18:00"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"10:00-14:00", "14:00-18:00"}, []string(updated.TimeSlots))
	assert.Equal(t, "stu-1", checker.lastExcludeID)
	assert.Equal(t, []models.Slot{models.SlotForenoon, models.SlotAfternoon}, checker.lastSlots)
}

func TestStudentUpdateCanClearLockerWithZero(t *testing.T) {
	repo := &mockStudentRepo{students: map[string]models.Student{"stu-1": existingStudent()}}
	svc := NewStudentService(repo, &mockChecker{}, nil, nil)

	zero := 0
	updated, err := svc.Update(context.Background(), "stu-1", UpdateStudentRequest{LockerNumber: &zero})
	require.NoError(t, err)
	assert.Equal(t, 0, updated.LockerNumber)
}

func TestStudentUpdateTracksPaymentExpectedDateChanges(t *testing.T) {
	repo := &mockStudentRepo{students: map[string]models.Student{"stu-1": existingStudent()}}
	svc := NewStudentService(repo, &mockChecker{}, nil, nil)

	moved := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	updated, err := svc.Update(context.Background(), "stu-1", UpdateStudentRequest{PaymentExpectedDate: &moved})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.PaymentExpectedDateChanged)

	repo.students["stu-1"] = *updated
	unchanged, err := svc.Update(context.Background(), "stu-1", UpdateStudentRequest{PaymentExpectedDate: &moved})
	require.NoError(t, err)
	assert.Equal(t, 1, unchanged.PaymentExpectedDateChanged)
}

func TestStudentUpdateNotFound(t *testing.T) {
	svc := NewStudentService(&mockStudentRepo{}, &mockChecker{}, nil, nil)

	_, err := svc.Update(context.Background(), "missing", UpdateStudentRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestStudentDeactivate(t *testing.T) {
	repo := &mockStudentRepo{students: map[string]models.Student{"stu-1": existingStudent()}}
	svc := NewStudentService(repo, &mockChecker{}, nil, nil)

	require.NoError(t, svc.Deactivate(context.Background(), "stu-1"))
	assert.False(t, repo.students["stu-1"].Active)

	err := svc.Deactivate(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
