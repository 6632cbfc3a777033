package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/training-enrollment-api/internal/models"
	"github.com/noah-isme/training-enrollment-api/pkg/jobs"
	"github.com/noah-isme/training-enrollment-api/pkg/notify"
)

// Notification job types.
const (
	NotifyProofUploaded     = "payment_proof_uploaded"
	NotifyPaymentVerified   = "payment_verified"
	NotifyCertificateIssued = "certificate_issued"
)

// Notification audiences.
const (
	AudienceAdmins      = "admins"
	AudienceParticipant = "participant"
)

type jobEnqueuer interface {
	TryEnqueue(job jobs.Job) error
}

// NotificationPayload is the queued unit of work.
type NotificationPayload struct {
	Audience string
	Message  notify.Message
}

// NotificationService turns enrollment events into queued notifications. Delivery happens on the
// queue workers. Enqueueing never blocks: when the queue is full or stopped the message is dropped,
// logged and counted, and the calling operation still succeeds.
type NotificationService struct {
	queue       jobEnqueuer
	adminEmails []string
	metrics     *MetricsService
	logger      *zap.Logger
}

// NewNotificationService constructs the service. A nil queue disables notifications.
func NewNotificationService(queue jobEnqueuer, adminEmails []string, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{queue: queue, adminEmails: adminEmails, metrics: metrics, logger: logger}
}

// SendPaymentNotification tells admins a proof is waiting for verification.
func (s *NotificationService) SendPaymentNotification(ctx context.Context, reg *models.RegistrationDetail, payment *models.Payment) {
	if reg == nil || payment == nil {
		return
	}
	body := fmt.Sprintf("Participant: %s\nClass: %s (%s)\nAmount: %d\nMethod: %s\nReference: %s\nRegistration: %s",
		reg.ParticipantName, reg.ClassName, reg.CourseTitle, payment.Amount, payment.Method, payment.ReferenceNumber, reg.ID)
	s.enqueue(NotifyProofUploaded, NotificationPayload{
		Audience: AudienceAdmins,
		Message: notify.Message{
			To:      s.adminEmails,
			Subject: "Payment proof awaiting verification",
			Body:    body,
		},
	})
}

// SendVerificationResult tells the participant the outcome of a verification.
func (s *NotificationService) SendVerificationResult(ctx context.Context, reg *models.RegistrationDetail, payment *models.Payment) {
	if reg == nil || payment == nil || reg.ParticipantEmail == "" {
		return
	}
	subject := "Your payment was approved"
	outcome := "approved. Your seat is confirmed."
	if payment.Status == models.PaymentRecordRejected {
		subject = "Your payment was rejected"
		outcome = "rejected. Please contact the training admin."
	}
	body := fmt.Sprintf("Hello %s,\n\nYour payment %s for %s (%s) was %s",
		reg.ParticipantName, payment.ReferenceNumber, reg.CourseTitle, reg.ClassName, outcome)
	if payment.Note != nil && *payment.Note != "" {
		body += "\n\nNote: " + *payment.Note
	}
	s.enqueue(NotifyPaymentVerified, NotificationPayload{
		Audience: AudienceParticipant,
		Message:  notify.Message{To: []string{reg.ParticipantEmail}, Subject: subject, Body: body},
	})
}

// SendCertificateEmail mails the rendered certificate to its holder.
func (s *NotificationService) SendCertificateEmail(ctx context.Context, cert *models.CertificateDetail, pdf []byte, verifyURL string) {
	if cert == nil || cert.HolderEmail == "" {
		return
	}
	msg := notify.Message{
		To:      []string{cert.HolderEmail},
		Subject: "Your certificate for " + cert.CourseTitle,
		Body: fmt.Sprintf("Hello %s,\n\nYour certificate number is %s.\nAnyone can verify it at %s",
			cert.HolderName, cert.CertificateNumber, verifyURL),
	}
	if len(pdf) > 0 {
		msg.Attachments = []notify.Attachment{{
			Filename:    "certificate-" + cert.CertificateNumber + ".pdf",
			ContentType: "application/pdf",
			Data:        pdf,
		}}
	}
	s.enqueue(NotifyCertificateIssued, NotificationPayload{Audience: AudienceParticipant, Message: msg})
}

func (s *NotificationService) enqueue(kind string, payload NotificationPayload) {
	if s == nil || s.queue == nil {
		return
	}
	job := jobs.Job{ID: uuid.NewString(), Type: kind, Payload: payload}
	if err := s.queue.TryEnqueue(job); err != nil {
		s.metrics.RecordNotificationDropped(kind)
		s.logger.Warn("notification dropped", zap.String("type", kind), zap.Error(err))
	}
}

// NotificationDispatcher delivers queued notifications to the configured channels.
type NotificationDispatcher struct {
	participant notify.Notifier
	admins      notify.Multi
}

// NewNotificationDispatcher routes participant mail through email and admin alerts through every admin channel.
func NewNotificationDispatcher(email notify.Notifier, adminChannels ...notify.Notifier) *NotificationDispatcher {
	admins := notify.Multi{}
	if email != nil {
		admins = append(admins, email)
	}
	for _, ch := range adminChannels {
		if ch != nil {
			admins = append(admins, ch)
		}
	}
	return &NotificationDispatcher{participant: email, admins: admins}
}

// Handle implements jobs.Handler.
func (d *NotificationDispatcher) Handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(NotificationPayload)
	if !ok {
		return fmt.Errorf("unexpected notification payload %T", job.Payload)
	}
	switch strings.ToLower(payload.Audience) {
	case AudienceAdmins:
		if len(d.admins) == 0 {
			return nil
		}
		return d.admins.Send(ctx, payload.Message)
	case AudienceParticipant:
		if d.participant == nil {
			return nil
		}
		if err := d.participant.Send(ctx, payload.Message); err != nil && !errors.Is(err, notify.ErrNoRecipients) {
			return err
		}
		return nil
	default:
		return fmt.Errorf("unknown audience %q", payload.Audience)
	}
}
