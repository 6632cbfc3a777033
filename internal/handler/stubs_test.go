package handler

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/noah-isme/training-enrollment-api/internal/dto"
	"github.com/noah-isme/training-enrollment-api/internal/models"
	"github.com/noah-isme/training-enrollment-api/internal/service"
	appErrors "github.com/noah-isme/training-enrollment-api/pkg/errors"
	"github.com/noah-isme/training-enrollment-api/pkg/gateway"
)

type tokenStub map[string]*models.JWTClaims

func (t tokenStub) ValidateToken(token string) (*models.JWTClaims, error) {
	claims, ok := t[token]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return claims, nil
}

var testTokens = tokenStub{
	"admin":       {UserID: "admin-1", Role: models.RoleAdmin},
	"instructor":  {UserID: "inst-1", Role: models.RoleInstructor, InstructorID: "i-1"},
	"participant": {UserID: "user-p-1", Role: models.RoleParticipant, ParticipantID: "p-1"},
	"root":        {UserID: "root-1", Role: models.RoleSuperAdmin},
}

type registrationServiceStub struct {
	registerReq  dto.RegisterRequest
	listFilter   models.RegistrationFilter
	attendance   dto.AttendanceRequest
	cancelled    string
	registerErr  error
	summaryHit   bool
	lastActor    *models.JWTClaims
	summaryCalls int
}

func (s *registrationServiceStub) Register(ctx context.Context, actor *models.JWTClaims, req dto.RegisterRequest) (*models.RegistrationDetail, error) {
	s.lastActor = actor
	s.registerReq = req
	if s.registerErr != nil {
		return nil, s.registerErr
	}
	return &models.RegistrationDetail{Registration: models.Registration{ID: "reg-1", ClassID: req.ClassID, RegStatus: models.RegStatusPending}}, nil
}

func (s *registrationServiceStub) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.RegistrationDetail, error) {
	return &models.RegistrationDetail{Registration: models.Registration{ID: id}}, nil
}

func (s *registrationServiceStub) List(ctx context.Context, actor *models.JWTClaims, filter models.RegistrationFilter) ([]models.RegistrationDetail, *models.Pagination, error) {
	s.listFilter = filter
	return []models.RegistrationDetail{}, &models.Pagination{Page: 1, PageSize: 20}, nil
}

func (s *registrationServiceStub) Cancel(ctx context.Context, actor *models.JWTClaims, id string) error {
	s.cancelled = id
	return nil
}

func (s *registrationServiceStub) UpdateAttendance(ctx context.Context, actor *models.JWTClaims, id string, req dto.AttendanceRequest) (*models.RegistrationDetail, error) {
	s.attendance = req
	return &models.RegistrationDetail{Registration: models.Registration{ID: id, PresentDay: *req.PresentDay}}, nil
}

func (s *registrationServiceStub) Summary(ctx context.Context, classID string) (*models.SeatSummary, bool, error) {
	s.summaryCalls++
	if classID == "missing" {
		return nil, false, appErrors.Clone(appErrors.ErrNotFound, "class not found")
	}
	return &models.SeatSummary{ClassID: classID, Quota: 10, Active: 4, Remaining: 6, CanRegister: true}, s.summaryHit, nil
}

type paymentServiceStub struct {
	mu         sync.Mutex
	uploadReq  dto.ProofUploadRequest
	uploaded   []byte
	filename   string
	manualReq  dto.ManualPaymentRequest
	verifyReq  dto.VerifyPaymentRequest
	openErr    error
	proofBytes []byte
}

func (s *paymentServiceStub) UploadProof(ctx context.Context, actor *models.JWTClaims, registrationID string, req dto.ProofUploadRequest, file dto.ProofFile) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := io.ReadAll(file.Reader)
	if err != nil {
		return nil, err
	}
	s.uploadReq = req
	s.uploaded = data
	s.filename = file.Filename
	return &models.Payment{ID: "pay-1", RegistrationID: registrationID, Amount: req.Amount, Status: models.PaymentRecordPending}, nil
}

func (s *paymentServiceStub) RecordManualPayment(ctx context.Context, actor *models.JWTClaims, registrationID string, req dto.ManualPaymentRequest) (*models.VerificationResult, error) {
	s.manualReq = req
	return &models.VerificationResult{Payment: models.Payment{ID: "pay-2", Amount: req.Amount}}, nil
}

func (s *paymentServiceStub) ListPayments(ctx context.Context, actor *models.JWTClaims, registrationID string) ([]models.Payment, error) {
	return []models.Payment{{ID: "pay-1", RegistrationID: registrationID}}, nil
}

func (s *paymentServiceStub) ProofURL(ctx context.Context, actor *models.JWTClaims, paymentID string) (*dto.ProofURLResponse, error) {
	return &dto.ProofURLResponse{URL: "/api/v1/payments/" + paymentID + "/proof?token=t", ExpiresAt: time.Now().Add(time.Minute)}, nil
}

func (s *paymentServiceStub) OpenProof(ctx context.Context, paymentID, token string) (io.ReadCloser, string, string, error) {
	if s.openErr != nil {
		return nil, "", "", s.openErr
	}
	return io.NopCloser(bytes.NewReader(s.proofBytes)), "image/png", "proof.png", nil
}

func (s *paymentServiceStub) Verify(ctx context.Context, actor *models.JWTClaims, paymentID string, req dto.VerifyPaymentRequest) (*models.VerificationResult, error) {
	s.verifyReq = req
	status := models.PaymentRecordRejected
	if req.Approve != nil && *req.Approve {
		status = models.PaymentRecordPaid
	}
	return &models.VerificationResult{Payment: models.Payment{ID: paymentID, Status: status}}, nil
}

type gatewayServiceStub struct {
	notifications []gateway.Notification
	notifyErr     error
}

func (s *gatewayServiceStub) Checkout(ctx context.Context, actor *models.JWTClaims, registrationID string) (*dto.CheckoutResponse, error) {
	return &dto.CheckoutResponse{Token: "snap-token"}, nil
}

func (s *gatewayServiceStub) HandleNotification(ctx context.Context, n gateway.Notification) error {
	s.notifications = append(s.notifications, n)
	return s.notifyErr
}

type certificateServiceStub struct {
	issued dto.IssueCertificateRequest
}

func (s *certificateServiceStub) Issue(ctx context.Context, actor *models.JWTClaims, req dto.IssueCertificateRequest) (*models.CertificateDetail, error) {
	s.issued = req
	return &models.CertificateDetail{Certificate: models.Certificate{ID: "cert-1", CertificateNumber: "0123456789"}}, nil
}

func (s *certificateServiceStub) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.CertificateDetail, error) {
	return &models.CertificateDetail{Certificate: models.Certificate{ID: id}}, nil
}

func (s *certificateServiceStub) Verify(ctx context.Context, number string) (*models.CertificateVerification, error) {
	if number != "0123456789" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
	}
	return &models.CertificateVerification{CertificateNumber: number, Status: models.CertificateStatusValid}, nil
}

func (s *certificateServiceStub) RenderPDF(ctx context.Context, actor *models.JWTClaims, id string) ([]byte, string, error) {
	return []byte("%PDF-1.3"), "certificate-0123456789.pdf", nil
}

func (s *certificateServiceStub) SweepNow(ctx context.Context, actor *models.JWTClaims) (*dto.SweepResponse, error) {
	return &dto.SweepResponse{Expired: 2, RanAt: time.Now()}, nil
}

type valueReportServiceStub struct {
	created dto.ValueReportRequest
	deleted string
}

func (s *valueReportServiceStub) List(ctx context.Context, actor *models.JWTClaims, registrationID string) ([]models.ValueReport, error) {
	return []models.ValueReport{{ID: "vr-1", RegistrationID: registrationID}}, nil
}

func (s *valueReportServiceStub) Create(ctx context.Context, actor *models.JWTClaims, registrationID string, req dto.ValueReportRequest) (*models.ValueReport, error) {
	s.created = req
	return &models.ValueReport{ID: "vr-2", RegistrationID: registrationID, Aspect: req.Aspect}, nil
}

func (s *valueReportServiceStub) Update(ctx context.Context, actor *models.JWTClaims, id string, req dto.ValueReportRequest) (*models.ValueReport, error) {
	return &models.ValueReport{ID: id, Aspect: req.Aspect}, nil
}

func (s *valueReportServiceStub) Delete(ctx context.Context, actor *models.JWTClaims, id string) error {
	s.deleted = id
	return nil
}

type exporterStub struct {
	format string
}

func (s *exporterStub) Roster(ctx context.Context, classID, format string) (*service.ExportFile, error) {
	s.format = format
	return &service.ExportFile{Filename: "roster.csv", ContentType: "text/csv", Body: []byte("No,Participant\n")}, nil
}

type auditStub struct {
	mu   sync.Mutex
	logs []models.AuditLog
}

func (a *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, *log)
	return nil
}
