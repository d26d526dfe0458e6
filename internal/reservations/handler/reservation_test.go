package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"agenda/internal/reservations/service"
	apperrors "agenda/pkg/errors"
	httputil "agenda/pkg/http"
	"agenda/pkg/logger"
	"agenda/pkg/model"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type stubService struct {
	service.ReservationService

	tenantID string
	id       string
	token    string
	review   bool
	create   *model.CreateReservationRequest
	slotsArg []string
	err      error
}

func (s *stubService) Create(_ context.Context, tenantID string, req *model.CreateReservationRequest) (*model.Reservation, error) {
	s.tenantID, s.create = tenantID, req
	if s.err != nil {
		return nil, s.err
	}
	return &model.Reservation{ID: "res-1", TenantID: tenantID, State: model.StateBooked, CancelToken: "secret-token"}, nil
}

func (s *stubService) GetByID(_ context.Context, tenantID, id string) (*model.Reservation, error) {
	s.tenantID, s.id = tenantID, id
	if s.err != nil {
		return nil, s.err
	}
	return &model.Reservation{ID: id, TenantID: tenantID, CancelToken: "secret-token"}, nil
}

func (s *stubService) Cancel(_ context.Context, tenantID, id, token string) (*model.Reservation, error) {
	s.tenantID, s.id, s.token = tenantID, id, token
	return &model.Reservation{ID: id, State: model.StateCancelled}, s.err
}

func (s *stubService) Complete(_ context.Context, tenantID, id string, issue bool) (*model.Reservation, error) {
	s.tenantID, s.id, s.review = tenantID, id, issue
	return &model.Reservation{ID: id, State: model.StateCompleted}, s.err
}

func (s *stubService) FreeSlots(_ context.Context, tenantID, resourceID, serviceID, date string) ([]model.TimeSlot, error) {
	s.tenantID = tenantID
	s.slotsArg = []string{resourceID, serviceID, date}
	slot, err := model.NewTimeSlot(date, "09:00", 30)
	if err != nil {
		return nil, err
	}
	return []model.TimeSlot{slot}, s.err
}

func newTestRouter(svc *stubService) *httprouter.Router {
	router := httprouter.New()
	NewReservationHandler(svc, logger.NewNop()).RegisterRoutes(router)
	return router
}

func do(router http.Handler, method, path, body string, tenant bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if tenant {
		req.Header.Set(httputil.TenantHeader, "tenant-a")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) httputil.ErrorResponse {
	t.Helper()
	var body httputil.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestCreate(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(svc)

	rec := do(router, http.MethodPost, "/api/v1/reservations",
		`{"resource_id":"barber-1","service_id":"haircut","customer_name":"Ana","date":"2025-06-10","start_time":"10:00"}`, true)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "tenant-a", svc.tenantID)
	require.NotNil(t, svc.create)
	assert.Equal(t, "barber-1", svc.create.ResourceID)
	assert.Equal(t, "10:00", svc.create.StartTime)
	assert.Contains(t, rec.Body.String(), `"id":"res-1"`)
	assert.Contains(t, rec.Body.String(), `"cancel_token":"secret-token"`)
}

func TestCreate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		tenant bool
		err    error
		status int
		code   string
	}{
		{"missing tenant", `{}`, false, nil, http.StatusBadRequest, apperrors.CodeInvalidInput},
		{"malformed body", `{`, true, nil, http.StatusBadRequest, ""},
		{"conflict", `{}`, true, apperrors.Conflict("This time slot is no longer available, please pick another time"), http.StatusConflict, apperrors.CodeConflict},
		{"policy violation", `{}`, true, apperrors.PolicyViolation("This account is temporarily blocked from booking", "client_blocked"), http.StatusUnprocessableEntity, apperrors.CodePolicyViolation},
		{"busy", `{}`, true, apperrors.TransientStorage("The system is busy, please try again", nil), http.StatusServiceUnavailable, apperrors.CodeTransientStorage},
		{"unexpected", `{}`, true, errors.New("boom"), http.StatusInternalServerError, apperrors.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&stubService{err: tt.err})
			rec := do(router, http.MethodPost, "/api/v1/reservations", tt.body, tt.tenant)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
		})
	}
}

func TestGetByID(t *testing.T) {
	svc := &stubService{}
	rec := do(newTestRouter(svc), http.MethodGet, "/api/v1/reservations/id/res-9", "", true)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "res-9", svc.id)
	assert.NotContains(t, rec.Body.String(), "secret-token")
	assert.NotContains(t, rec.Body.String(), "cancel_token")

	svc.err = apperrors.NotFoundWithID("Reservation", "res-9")
	rec = do(newTestRouter(svc), http.MethodGet, "/api/v1/reservations/id/res-9", "", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancel_BodyIsOptional(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(svc)

	rec := do(router, http.MethodPost, "/api/v1/reservations/id/res-1/cancel", "", true)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, svc.token)

	rec = do(router, http.MethodPost, "/api/v1/reservations/id/res-1/cancel", `{"cancel_token":"abc"}`, true)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", svc.token)
}

func TestComplete(t *testing.T) {
	svc := &stubService{}
	rec := do(newTestRouter(svc), http.MethodPost, "/api/v1/reservations/id/res-1/complete", `{"issue_review_token":true}`, true)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, svc.review)
	assert.Contains(t, rec.Body.String(), `"state":"COMPLETED"`)
}

func TestFreeSlots(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(svc)

	rec := do(router, http.MethodGet, "/api/v1/resources/barber-1/free-slots?service_id=haircut&date=2025-06-10", "", true)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"barber-1", "haircut", "2025-06-10"}, svc.slotsArg)
	assert.Contains(t, rec.Body.String(), `"start_time":"09:00"`)

	rec = do(router, http.MethodGet, "/api/v1/resources/barber-1/free-slots?date=2025-06-10", "", true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type pingerFunc func(ctx context.Context, rp *readpref.ReadPref) error

func (f pingerFunc) Ping(ctx context.Context, rp *readpref.ReadPref) error { return f(ctx, rp) }

func TestHealthAndReady(t *testing.T) {
	healthy := NewHealthHandler(pingerFunc(func(context.Context, *readpref.ReadPref) error { return nil }), logger.NewNop())
	router := httprouter.New()
	healthy.RegisterRoutes(router)

	rec := do(router, http.MethodGet, "/health", "", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(router, http.MethodGet, "/ready", "", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"ok"`)

	down := NewHealthHandler(pingerFunc(func(context.Context, *readpref.ReadPref) error { return errors.New("no primary") }), logger.NewNop())
	router = httprouter.New()
	down.RegisterRoutes(router)
	rec = do(router, http.MethodGet, "/ready", "", false)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
