package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/seatdesk-api/internal/middleware"
	"github.com/noah-isme/seatdesk-api/internal/models"
	"github.com/noah-isme/seatdesk-api/internal/service"
	appErrors "github.com/noah-isme/seatdesk-api/pkg/errors"
)

type studentServiceMock struct {
	listResp   []models.Student
	listErr    error
	getResp    *models.Student
	getErr     error
	createResp *models.Student
	createErr  error
	updateResp *models.Student
	updateErr  error
	deleteErr  error
	nextResp   int

	lastFilter models.StudentFilter
	lastCreate service.CreateStudentRequest
	lastUpdate service.UpdateStudentRequest
	lastID     string
}

func (m *studentServiceMock) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	m.lastFilter = filter
	return m.listResp, &models.Pagination{Page: 1, PageSize: 20, TotalCount: len(m.listResp)}, m.listErr
}

func (m *studentServiceMock) Get(ctx context.Context, id string) (*models.Student, error) {
	m.lastID = id
	return m.getResp, m.getErr
}

func (m *studentServiceMock) Create(ctx context.Context, req service.CreateStudentRequest) (*models.Student, error) {
	m.lastCreate = req
	return m.createResp, m.createErr
}

func (m *studentServiceMock) Update(ctx context.Context, id string, req service.UpdateStudentRequest) (*models.Student, error) {
	m.lastID = id
	m.lastUpdate = req
	return m.updateResp, m.updateErr
}

func (m *studentServiceMock) Deactivate(ctx context.Context, id string) error {
	m.lastID = id
	return m.deleteErr
}

func (m *studentServiceMock) NextRegistrationNumber(ctx context.Context) (int, error) {
	return m.nextResp, nil
}

func TestStudentHandlerList(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &studentServiceMock{
		listResp: []models.Student{{ID: "stu-1", FullName: "Asha Verma"}},
	}
	handler := NewStudentHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/students?active=true&seat=5&slot=10:00-14:00&search=asha", nil)
	c.Request = req

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, mockSvc.lastFilter.Active)
	assert.True(t, *mockSvc.lastFilter.Active)
	require.NotNil(t, mockSvc.lastFilter.SeatNumber)
	assert.Equal(t, 5, *mockSvc.lastFilter.SeatNumber)
	assert.Equal(t, "10:00-14:00", mockSvc.lastFilter.Slot)
	assert.Equal(t, "asha", mockSvc.lastFilter.Search)
	assert.Contains(t, w.Body.String(), "Asha Verma")
}

func TestStudentHandlerListParsesDueBefore(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &studentServiceMock{}
	handler := NewStudentHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/students?due_before=2024-04-01", nil)
	c.Request = req

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, mockSvc.lastFilter.DueBefore)
	assert.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), *mockSvc.lastFilter.DueBefore)
}

func TestStudentHandlerCreateInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewStudentHandler(&studentServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/students", bytes.NewBufferString(`{"full_name":`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStudentHandlerCreateSetsOwnerFromClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &studentServiceMock{createResp: &models.Student{ID: "stu-1", FullName: "Asha Verma"}}
	handler := NewStudentHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body := `{"full_name":"Asha Verma","contact_number":"9876543210","seat_number":5,"time_slots":["10:00-14:00"]}`
	req, _ := http.NewRequest(http.MethodPost, "/students", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: models.RoleMember})

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, mockSvc.lastCreate.OwnerID)
	assert.Equal(t, "user-1", *mockSvc.lastCreate.OwnerID)
}

func TestStudentHandlerCreateSeatConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &studentServiceMock{
		createErr: appErrors.WithDetails(appErrors.ErrSeatConflict,
			"seat 5 is occupied by Bilal for the requested time slots",
			&service.SeatConflict{
				StudentID:      "stu-2",
				StudentName:    "Bilal",
				SeatNumber:     5,
				AvailableSlots: []models.Slot{models.SlotEvening},
			}),
	}
	handler := NewStudentHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body := `{"full_name":"Asha Verma","contact_number":"9876543210","seat_number":5,"time_slots":["10:00-14:00"]}`
	req, _ := http.NewRequest(http.MethodPost, "/students", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Create(c)
	require.Equal(t, http.StatusConflict, w.Code)

	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Details struct {
				StudentName    string   `json:"student_name"`
				AvailableSlots []string `json:"available_time_slots"`
			} `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "SEAT_CONFLICT", envelope.Error.Code)
	assert.Equal(t, "Bilal", envelope.Error.Details.StudentName)
	assert.Equal(t, []string{"18:00-22:00"}, envelope.Error.Details.AvailableSlots)
}

func TestStudentHandlerGetNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewStudentHandler(&studentServiceMock{getErr: appErrors.ErrNotFound})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/students/missing", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "missing"}}

	handler.Get(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestStudentHandlerUpdate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &studentServiceMock{updateResp: &models.Student{ID: "stu-1", FullName: "Asha V"}}
	handler := NewStudentHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPut, "/students/stu-1", bytes.NewBufferString(`{"full_name":"Asha V"}`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "stu-1"}}

	handler.Update(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "stu-1", mockSvc.lastID)
	require.NotNil(t, mockSvc.lastUpdate.FullName)
	assert.Equal(t, "Asha V", *mockSvc.lastUpdate.FullName)
}

func TestStudentHandlerDelete(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &studentServiceMock{}
	handler := NewStudentHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodDelete, "/students/stu-1", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "stu-1"}}

	handler.Delete(c)
	// c.Status sets the code lazily; outside a gin engine run nothing flushes
	// it to the recorder, so force the header write before asserting.
	c.Writer.WriteHeaderNow()
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "stu-1", mockSvc.lastID)
}

func TestStudentHandlerNextRegistrationNumber(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewStudentHandler(&studentServiceMock{nextResp: 4})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/students/next-registration-number", nil)
	c.Request = req

	handler.NextRegistrationNumber(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data struct {
			Next int `json:"next_registration_number"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, 4, envelope.Data.Next)
}
