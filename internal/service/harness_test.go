package service

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/training-enrollment-api/internal/models"
	"github.com/noah-isme/training-enrollment-api/pkg/storage"
)

type memFiles struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemFiles() *memFiles {
	return &memFiles{objects: map[string][]byte{}}
}

func (f *memFiles) Put(key string, r io.Reader, limit int64) (int64, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit))
	if err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return int64(len(data)), nil
}

func (f *memFiles) Open(key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *memFiles) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func (f *memFiles) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

type notifierSpy struct {
	mu           sync.Mutex
	proofs       []string
	verified     []models.PaymentRecordStatus
	certificates []string
}

func (n *notifierSpy) SendPaymentNotification(ctx context.Context, reg *models.RegistrationDetail, payment *models.Payment) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.proofs = append(n.proofs, payment.ID)
}

func (n *notifierSpy) SendVerificationResult(ctx context.Context, reg *models.RegistrationDetail, payment *models.Payment) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.verified = append(n.verified, payment.Status)
}

func (n *notifierSpy) SendCertificateEmail(ctx context.Context, cert *models.CertificateDetail, pdf []byte, verifyURL string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.certificates = append(n.certificates, cert.CertificateNumber)
}

type harness struct {
	store    *memStore
	files    *memFiles
	notifier *notifierSpy
	metrics  *MetricsService
	quota    *QuotaService
	regs     *RegistrationService
	payments *PaymentService
	verify   *VerificationService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := newMemStore()
	files := newMemFiles()
	spy := &notifierSpy{}
	metrics := NewMetricsService()
	logger := zap.NewNop()

	registrations := memRegistrations{store}
	catalog := memCatalog{store}
	payments := memPayments{store}
	tx := memTx{store}

	quota := NewQuotaService(catalog, registrations, nil, time.Minute, logger)
	regs := NewRegistrationService(RegistrationDeps{
		Tx:            tx,
		Registrations: registrations,
		Catalog:       catalog,
		Payments:      payments,
		Certificates:  memCertificates{store},
		ValueReports:  memReports{store},
		Quota:         quota,
		Files:         files,
		Audit:         memAudit{store},
		Metrics:       metrics,
	}, nil, logger)
	paymentSvc := NewPaymentService(PaymentDeps{
		Tx:            tx,
		Payments:      payments,
		Registrations: registrations,
		Classes:       catalog,
		Files:         files,
		Signer:        storage.NewSignedURLSigner("test-secret", time.Minute),
		Processor:     NewProofProcessor(nil, 1024*1024, 0),
		Notifier:      spy,
		Audit:         memAudit{store},
		URLPrefix:     "/api/v1",
	}, nil, logger)
	verify := NewVerificationService(VerificationDeps{
		Tx:            tx,
		Payments:      payments,
		Registrations: registrations,
		Notifier:      spy,
		Audit:         memAudit{store},
		Metrics:       metrics,
	}, nil, logger)

	return &harness{
		store:    store,
		files:    files,
		notifier: spy,
		metrics:  metrics,
		quota:    quota,
		regs:     regs,
		payments: paymentSvc,
		verify:   verify,
	}
}

func openClass(id string, quota int, price int64) models.TrainingClass {
	now := time.Now().UTC()
	return models.TrainingClass{
		ID:           id,
		CourseID:     "course-1",
		Name:         "Class " + id,
		Quota:        quota,
		Price:        price,
		StartRegDate: now.Add(-24 * time.Hour),
		EndRegDate:   now.Add(24 * time.Hour),
		StartDate:    now.Add(48 * time.Hour),
		EndDate:      now.Add(96 * time.Hour),
		DurationDay:  3,
		Location:     "Room A",
	}
}

func adminActor() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
}

func participantActor(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: "user-" + id, Role: models.RoleParticipant, ParticipantID: id}
}

func boolPtr(v bool) *bool { return &v }

func intPtr(v int) *int { return &v }

// pngBytes is a minimal PNG header followed by padding; enough for MIME sniffing.
var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), bytes.Repeat([]byte{0}, 32)...)

// seedRegistration inserts a registration directly, bypassing admission.
func (h *harness) seedRegistration(id, participantID, classID string, regStatus models.RegStatus, payStatus models.PaymentStatus) {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	now := time.Now().UTC()
	h.store.registrations[id] = models.Registration{
		ID:            id,
		ParticipantID: participantID,
		ClassID:       classID,
		RegStatus:     regStatus,
		PaymentStatus: payStatus,
		RegDate:       now,
		UpdatedAt:     now,
	}
}
