package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/training-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/training-enrollment-api/pkg/errors"
	"github.com/noah-isme/training-enrollment-api/pkg/response"
)

type routerFixture struct {
	engine  *gin.Engine
	regs    *registrationServiceStub
	pays    *paymentServiceStub
	gateway *gatewayServiceStub
	certs   *certificateServiceStub
	reports *valueReportServiceStub
	export  *exporterStub
	audit   *auditStub
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := &routerFixture{
		regs:    &registrationServiceStub{},
		pays:    &paymentServiceStub{proofBytes: []byte("png")},
		gateway: &gatewayServiceStub{},
		certs:   &certificateServiceStub{},
		reports: &valueReportServiceStub{},
		export:  &exporterStub{},
		audit:   &auditStub{},
	}
	f.engine = NewRouter(RouterConfig{
		APIPrefix:     "/api/v1",
		Logger:        zap.NewNop(),
		Tokens:        testTokens,
		Audit:         f.audit,
		System:        NewSystemHandler(nil, nil),
		Registrations: NewRegistrationHandler(f.regs, f.regs),
		Payments:      NewPaymentHandler(f.pays, f.pays, 1024, zap.NewNop()),
		Gateway:       NewGatewayHandler(f.gateway),
		Certificates:  NewCertificateHandler(f.certs),
		ValueReports:  NewValueReportHandler(f.reports),
		Exports:       NewExportHandler(f.export),
	})
	return f
}

func (f *routerFixture) do(method, path, token string, body []byte) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) response.Envelope {
	t.Helper()
	var env response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestRouterRoleGuards(t *testing.T) {
	f := newRouterFixture(t)

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		body   string
		want   int
	}{
		{"no token", http.MethodGet, "/api/v1/registrations", "", "", http.StatusUnauthorized},
		{"bad token", http.MethodGet, "/api/v1/registrations", "forged", "", http.StatusUnauthorized},
		{"participant registers", http.MethodPost, "/api/v1/registrations", "participant", `{"classId":"class-1"}`, http.StatusCreated},
		{"instructor cannot register", http.MethodPost, "/api/v1/registrations", "instructor", `{"classId":"class-1"}`, http.StatusForbidden},
		{"participant cannot record manual payment", http.MethodPost, "/api/v1/registrations/reg-1/payments/manual", "participant", `{"amount":1,"method":"CASH"}`, http.StatusForbidden},
		{"admin records manual payment", http.MethodPost, "/api/v1/registrations/reg-1/payments/manual", "admin", `{"amount":1,"method":"cash"}`, http.StatusCreated},
		{"participant cannot verify", http.MethodPost, "/api/v1/payments/pay-1/verify", "participant", `{"approve":true}`, http.StatusForbidden},
		{"superadmin verifies", http.MethodPost, "/api/v1/payments/pay-1/verify", "root", `{"approve":true}`, http.StatusOK},
		{"instructor updates attendance", http.MethodPut, "/api/v1/registrations/reg-1/attendance", "instructor", `{"presentDay":2}`, http.StatusOK},
		{"participant cannot update attendance", http.MethodPut, "/api/v1/registrations/reg-1/attendance", "participant", `{"presentDay":2}`, http.StatusForbidden},
		{"admin cannot open checkout", http.MethodPost, "/api/v1/registrations/reg-1/payments/checkout", "admin", "", http.StatusForbidden},
		{"participant opens checkout", http.MethodPost, "/api/v1/registrations/reg-1/payments/checkout", "participant", "", http.StatusCreated},
		{"instructor cannot issue certificates", http.MethodPost, "/api/v1/certificates", "instructor", `{}`, http.StatusForbidden},
		{"participant cannot sweep", http.MethodPost, "/api/v1/certificates/sweep", "participant", "", http.StatusForbidden},
		{"admin sweeps", http.MethodPost, "/api/v1/certificates/sweep", "admin", "", http.StatusOK},
		{"participant cannot write value reports", http.MethodPost, "/api/v1/registrations/reg-1/value-reports", "participant", `{"aspect":"x","score":1}`, http.StatusForbidden},
		{"participant reads value reports", http.MethodGet, "/api/v1/registrations/reg-1/value-reports", "participant", "", http.StatusOK},
		{"instructor deletes value report", http.MethodDelete, "/api/v1/value-reports/vr-1", "instructor", "", http.StatusNoContent},
		{"participant cannot export roster", http.MethodGet, "/api/v1/classes/class-1/roster", "participant", "", http.StatusForbidden},
		{"public certificate verification", http.MethodGet, "/api/v1/certificates/verify/0123456789", "", "", http.StatusOK},
		{"unknown certificate number", http.MethodGet, "/api/v1/certificates/verify/999", "", "", http.StatusNotFound},
		{"public health", http.MethodGet, "/health", "", "", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var body []byte
			if tc.body != "" {
				body = []byte(tc.body)
			}
			w := f.do(tc.method, tc.path, tc.token, body)
			assert.Equal(t, tc.want, w.Code, w.Body.String())
		})
	}
	assert.Equal(t, "CASH", f.pays.manualReq.Method)
}

func TestRouterRegisterPassesActor(t *testing.T) {
	f := newRouterFixture(t)
	w := f.do(http.MethodPost, "/api/v1/registrations", "participant", []byte(`{"classId":"class-1"}`))
	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, f.regs.lastActor)
	assert.Equal(t, "p-1", f.regs.lastActor.ParticipantID)
	assert.Equal(t, "class-1", f.regs.registerReq.ClassID)
}

func TestRouterRegisterMapsDomainErrors(t *testing.T) {
	f := newRouterFixture(t)
	f.regs.registerErr = appErrors.Clone(appErrors.ErrCapacity, "class has no remaining seats")

	w := f.do(http.MethodPost, "/api/v1/registrations", "participant", []byte(`{"classId":"class-1"}`))
	require.Equal(t, appErrors.ErrCapacity.Status, w.Code)
	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, appErrors.ErrCapacity.Code, env.Error.Code)
	assert.Equal(t, "class has no remaining seats", env.Error.Message)
}

func TestRouterListRegistrationsValidatesQuery(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(http.MethodGet, "/api/v1/registrations?regStatus=registered&classId=class-1&page=2", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.RegStatusRegistered, f.regs.listFilter.RegStatus)
	assert.Equal(t, "class-1", f.regs.listFilter.ClassID)
	assert.Equal(t, 2, f.regs.listFilter.Page)

	w = f.do(http.MethodGet, "/api/v1/registrations?paymentStatus=bogus", "admin", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouterSeatsReportsCacheHit(t *testing.T) {
	f := newRouterFixture(t)
	f.regs.summaryHit = true

	w := f.do(http.MethodGet, "/api/v1/classes/class-1/seats", "participant", nil)
	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, true, env.Meta["cache_hit"])

	w = f.do(http.MethodGet, "/api/v1/classes/missing/seats", "participant", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouterGatewayNotificationIsAudited(t *testing.T) {
	f := newRouterFixture(t)

	body := []byte(`{"order_id":"PAY-1","status_code":"200","gross_amount":"750000.00","signature_key":"sig","transaction_status":"settlement"}`)
	w := f.do(http.MethodPost, "/api/v1/payments/gateway/notifications", "", body)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, f.gateway.notifications, 1)
	assert.Equal(t, "PAY-1", f.gateway.notifications[0].OrderID)

	f.gateway.notifyErr = appErrors.Clone(appErrors.ErrUnauthorized, "invalid signature")
	w = f.do(http.MethodPost, "/api/v1/payments/gateway/notifications", "", body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(http.MethodPost, "/api/v1/payments/gateway/notifications", "", []byte(`{"order_id":"PAY-1"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	require.Len(t, f.audit.logs, 3)
	assert.Equal(t, models.AuditActionGatewayCallback, f.audit.logs[0].Action)
	assert.Nil(t, f.audit.logs[0].UserID)
	assert.Contains(t, string(f.audit.logs[1].NewValues), `"status":401`)
}

func TestRouterProofDownloadIsPublic(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(http.MethodGet, "/api/v1/payments/pay-1/proof?token=abc", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "png", w.Body.String())

	f.pays.openErr = appErrors.Clone(appErrors.ErrForbidden, "download link expired")
	w = f.do(http.MethodGet, "/api/v1/payments/pay-1/proof?token=abc", "", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
