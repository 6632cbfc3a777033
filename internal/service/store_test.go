package service

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/training-enrollment-api/internal/models"
	"github.com/noah-isme/training-enrollment-api/internal/repository"
	"github.com/noah-isme/training-enrollment-api/pkg/database"
)

// memStore is an in-memory stand-in for the Postgres schema. Lock* calls take per-row locks held
// until the transaction ends, and writes made through a transaction are undone on rollback.
type memStore struct {
	mu  sync.Mutex
	seq int

	rowLocksMu sync.Mutex
	rowLocks   map[string]*sync.Mutex

	classes       map[string]models.TrainingClass
	courses       map[string]models.Course
	participants  map[string]models.Participant
	instructors   map[string]models.Instructor
	registrations map[string]models.Registration
	payments      map[string]models.Payment
	certificates  map[string]models.Certificate
	reports       map[string]models.ValueReport
	audits        []models.AuditLog

	fail map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		classes:       map[string]models.TrainingClass{},
		courses:       map[string]models.Course{},
		participants:  map[string]models.Participant{},
		instructors:   map[string]models.Instructor{},
		registrations: map[string]models.Registration{},
		payments:      map[string]models.Payment{},
		certificates:  map[string]models.Certificate{},
		reports:       map[string]models.ValueReport{},
		fail:          map[string]error{},
		rowLocks:      map[string]*sync.Mutex{},
	}
}

// failOn makes the named operation return err.
func (s *memStore) failOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[op] = err
}

func (s *memStore) failure(op string) error {
	return s.fail[op]
}

func (s *memStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func uniqueErr(constraint string) error {
	return &pq.Error{Code: "23505", Constraint: constraint, Message: "duplicate key value violates unique constraint"}
}

func (s *memStore) addClass(class models.TrainingClass) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classes[class.ID] = class
	if _, ok := s.courses[class.CourseID]; !ok {
		s.courses[class.CourseID] = models.Course{ID: class.CourseID, Code: class.CourseID, Title: "Course " + class.CourseID}
	}
}

func (s *memStore) addParticipant(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participants[id] = models.Participant{ID: id, FullName: name, Email: id + "@example.com"}
}

func (s *memStore) registration(id string) (models.Registration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.registrations[id]
	return reg, ok
}

func (s *memStore) payment(id string) (models.Payment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	return p, ok
}

func (s *memStore) counts() (regs, pays, certs, reports int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.registrations), len(s.payments), len(s.certificates), len(s.reports)
}

// memExec stands in for *sqlx.Tx inside memTx.WithinTx.
type memExec struct {
	sqlx.ExtContext
	store *memStore
	held  []*sync.Mutex
	keys  map[string]bool
	undo  []func()
}

func txOf(exec sqlx.ExtContext) *memExec {
	tx, _ := exec.(*memExec)
	return tx
}

// lockRow blocks until the row is free, like SELECT ... FOR UPDATE. Outside a transaction it is a no-op.
func (s *memStore) lockRow(exec sqlx.ExtContext, key string) {
	tx := txOf(exec)
	if tx == nil || tx.keys[key] {
		return
	}
	s.rowLocksMu.Lock()
	m, ok := s.rowLocks[key]
	if !ok {
		m = &sync.Mutex{}
		s.rowLocks[key] = m
	}
	s.rowLocksMu.Unlock()
	m.Lock()
	tx.keys[key] = true
	tx.held = append(tx.held, m)
}

// remember records the current value of m[key] so a rollback can put it back. Callers hold s.mu.
func remember[V any](exec sqlx.ExtContext, m map[string]V, key string) {
	tx := txOf(exec)
	if tx == nil {
		return
	}
	prev, ok := m[key]
	tx.undo = append(tx.undo, func() {
		if ok {
			m[key] = prev
		} else {
			delete(m, key)
		}
	})
}

func (t *memExec) rollback() {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
}

func (t *memExec) release() {
	for i := len(t.held) - 1; i >= 0; i-- {
		t.held[i].Unlock()
	}
}

// memTx runs fn against a memExec and undoes its writes on error or panic.
type memTx struct {
	store *memStore
}

func (t memTx) WithinTx(ctx context.Context, fn database.TxFunc) (err error) {
	tx := &memExec{store: t.store, keys: map[string]bool{}}
	defer tx.release()
	defer func() {
		if p := recover(); p != nil {
			tx.rollback()
			panic(p)
		}
		if err != nil {
			tx.rollback()
		}
	}()
	return fn(tx)
}

var _ database.Transactor = memTx{}

// memRegistrations implements the registration and catalog reads.
type memRegistrations struct{ *memStore }

func (s memRegistrations) Create(ctx context.Context, exec sqlx.ExtContext, reg *models.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("registrations.create"); err != nil {
		return err
	}
	for _, existing := range s.registrations {
		if existing.ParticipantID == reg.ParticipantID && existing.ClassID == reg.ClassID && existing.RegStatus != models.RegStatusCancelled {
			return uniqueErr(repository.ConstraintActiveRegistration)
		}
	}
	if reg.ID == "" {
		reg.ID = s.nextID("reg")
	}
	now := time.Now().UTC()
	reg.RegDate = now
	reg.UpdatedAt = now
	remember(exec, s.registrations, reg.ID)
	s.registrations[reg.ID] = *reg
	return nil
}

func (s memRegistrations) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.registrations[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &reg, nil
}

func (s memRegistrations) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Registration, error) {
	s.lockRow(exec, "registration:"+id)
	return s.FindByID(ctx, exec, id)
}

func (s memRegistrations) FindDetailByID(ctx context.Context, id string) (*models.RegistrationDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.registrations[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	detail := s.detail(reg)
	return &detail, nil
}

func (s memRegistrations) detail(reg models.Registration) models.RegistrationDetail {
	participant := s.participants[reg.ParticipantID]
	class := s.classes[reg.ClassID]
	return models.RegistrationDetail{
		Registration:     reg,
		ParticipantName:  participant.FullName,
		ParticipantEmail: participant.Email,
		ClassName:        class.Name,
		CourseID:         class.CourseID,
		CourseTitle:      s.courses[class.CourseID].Title,
		ClassPrice:       class.Price,
		DurationDay:      class.DurationDay,
	}
}

func (s memRegistrations) ExistsActive(ctx context.Context, exec sqlx.ExtContext, participantID, classID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, reg := range s.registrations {
		if reg.ParticipantID == participantID && reg.ClassID == classID && reg.RegStatus != models.RegStatusCancelled {
			return true, nil
		}
	}
	return false, nil
}

func (s memRegistrations) CountActive(ctx context.Context, exec sqlx.ExtContext, classID string) (int, error) {
	s.mu.Lock()
	n := 0
	for _, reg := range s.registrations {
		if reg.ClassID == classID && reg.RegStatus != models.RegStatusCancelled {
			n++
		}
	}
	s.mu.Unlock()
	// let racing admissions interleave between the count and the insert
	runtime.Gosched()
	return n, nil
}

func (s memRegistrations) List(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []models.RegistrationDetail
	for _, reg := range s.registrations {
		if filter.ClassID != "" && reg.ClassID != filter.ClassID {
			continue
		}
		if filter.ParticipantID != "" && reg.ParticipantID != filter.ParticipantID {
			continue
		}
		if filter.RegStatus != "" && reg.RegStatus != filter.RegStatus {
			continue
		}
		if filter.PaymentStatus != "" && reg.PaymentStatus != filter.PaymentStatus {
			continue
		}
		items = append(items, s.detail(reg))
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, len(items), nil
}

func (s memRegistrations) ListRoster(ctx context.Context, classID string) ([]models.RegistrationDetail, error) {
	items, _, err := s.List(ctx, models.RegistrationFilter{ClassID: classID})
	return items, err
}

func (s memRegistrations) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, reg *models.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("registrations.update_status"); err != nil {
		return err
	}
	if _, ok := s.registrations[reg.ID]; !ok {
		return sql.ErrNoRows
	}
	reg.UpdatedAt = time.Now().UTC()
	remember(exec, s.registrations, reg.ID)
	s.registrations[reg.ID] = *reg
	return nil
}

func (s memRegistrations) UpdateAttendance(ctx context.Context, exec sqlx.ExtContext, id string, presentDay int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.registrations[id]
	if !ok {
		return sql.ErrNoRows
	}
	reg.PresentDay = presentDay
	remember(exec, s.registrations, id)
	s.registrations[id] = reg
	return nil
}

func (s memRegistrations) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("registrations.delete"); err != nil {
		return err
	}
	if _, ok := s.registrations[id]; !ok {
		return sql.ErrNoRows
	}
	remember(exec, s.registrations, id)
	delete(s.registrations, id)
	return nil
}

// memCatalog implements the read-only catalog.
type memCatalog struct{ *memStore }

func (s memCatalog) FindClass(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TrainingClass, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	class, ok := s.classes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &class, nil
}

func (s memCatalog) LockClass(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TrainingClass, error) {
	s.lockRow(exec, "class:"+id)
	return s.FindClass(ctx, exec, id)
}

func (s memCatalog) FindCourse(ctx context.Context, id string) (*models.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	course, ok := s.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &course, nil
}

func (s memCatalog) FindParticipant(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &p, nil
}

func (s memCatalog) FindInstructor(ctx context.Context, id string) (*models.Instructor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.instructors[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &i, nil
}

// memPayments implements the payment ledger.
type memPayments struct{ *memStore }

func (s memPayments) Create(ctx context.Context, exec sqlx.ExtContext, payment *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("payments.create"); err != nil {
		return err
	}
	for _, existing := range s.payments {
		if existing.ReferenceNumber == payment.ReferenceNumber {
			return uniqueErr(repository.ConstraintPaymentReference)
		}
	}
	if payment.ID == "" {
		payment.ID = s.nextID("pay")
	}
	s.seq++
	now := time.Now().UTC()
	payment.CreatedAt = now.Add(time.Duration(s.seq) * time.Millisecond)
	payment.UpdatedAt = now
	remember(exec, s.payments, payment.ID)
	s.payments[payment.ID] = *payment
	return nil
}

func (s memPayments) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &p, nil
}

func (s memPayments) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Payment, error) {
	s.lockRow(exec, "payment:"+id)
	return s.FindByID(ctx, exec, id)
}

func (s memPayments) FindByReference(ctx context.Context, reference string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.ReferenceNumber == reference {
			p := p
			return &p, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s memPayments) sorted(registrationID string) []models.Payment {
	var out []models.Payment
	for _, p := range s.payments {
		if p.RegistrationID == registrationID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s memPayments) Latest(ctx context.Context, exec sqlx.ExtContext, registrationID string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.sorted(registrationID)
	if len(list) == 0 {
		return nil, sql.ErrNoRows
	}
	return &list[0], nil
}

func (s memPayments) ListByRegistration(ctx context.Context, registrationID string) ([]models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(registrationID), nil
}

func (s memPayments) UpdateProof(ctx context.Context, exec sqlx.ExtContext, payment *models.Payment) error {
	return s.update(exec, payment)
}

func (s memPayments) UpdateVerification(ctx context.Context, exec sqlx.ExtContext, payment *models.Payment) error {
	s.mu.Lock()
	err := s.failure("payments.update_verification")
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.update(exec, payment)
}

func (s memPayments) update(exec sqlx.ExtContext, payment *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payments[payment.ID]; !ok {
		return sql.ErrNoRows
	}
	payment.UpdatedAt = time.Now().UTC()
	remember(exec, s.payments, payment.ID)
	s.payments[payment.ID] = *payment
	return nil
}

func (s memPayments) SupersedePending(ctx context.Context, exec sqlx.ExtContext, registrationID, keepID, note string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, p := range s.payments {
		if p.RegistrationID != registrationID || id == keepID || p.Status != models.PaymentRecordPending {
			continue
		}
		remember(exec, s.payments, id)
		p.Status = models.PaymentRecordRejected
		p.Note = &note
		p.VerifiedAt = &at
		p.UpdatedAt = at
		s.payments[id] = p
		n++
	}
	return n, nil
}

func (s memPayments) SumPaid(ctx context.Context, exec sqlx.ExtContext, registrationID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, p := range s.payments {
		if p.RegistrationID == registrationID && p.Status == models.PaymentRecordPaid {
			total += p.Amount
		}
	}
	return total, nil
}

func (s memPayments) ProofKeysByRegistration(ctx context.Context, exec sqlx.ExtContext, registrationID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for _, p := range s.payments {
		if p.RegistrationID == registrationID && p.HasProof() {
			keys = append(keys, *p.ProofURL)
		}
	}
	return keys, nil
}

func (s memPayments) DeleteByRegistration(ctx context.Context, exec sqlx.ExtContext, registrationID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("payments.delete"); err != nil {
		return 0, err
	}
	var n int64
	for id, p := range s.payments {
		if p.RegistrationID == registrationID {
			remember(exec, s.payments, id)
			delete(s.payments, id)
			n++
		}
	}
	return n, nil
}

// memCertificates implements the certificate store.
type memCertificates struct{ *memStore }

func (s memCertificates) Create(ctx context.Context, exec sqlx.ExtContext, cert *models.Certificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.certificates {
		if existing.CertificateNumber == cert.CertificateNumber {
			return uniqueErr(repository.ConstraintCertificateNumber)
		}
	}
	if cert.ID == "" {
		cert.ID = s.nextID("cert")
	}
	if cert.Status == "" {
		cert.Status = models.CertificateStatusValid
	}
	remember(exec, s.certificates, cert.ID)
	s.certificates[cert.ID] = *cert
	return nil
}

func (s memCertificates) detail(cert models.Certificate) *models.CertificateDetail {
	detail := &models.CertificateDetail{Certificate: cert, HolderName: cert.Name, CourseTitle: s.courses[cert.CourseID].Title}
	if cert.ParticipantID != nil {
		detail.HolderEmail = s.participants[*cert.ParticipantID].Email
	}
	if cert.InstructorID != nil {
		detail.HolderEmail = s.instructors[*cert.InstructorID].Email
	}
	return detail
}

func (s memCertificates) FindDetailByID(ctx context.Context, id string) (*models.CertificateDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cert, ok := s.certificates[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return s.detail(cert), nil
}

func (s memCertificates) FindDetailByNumber(ctx context.Context, number string) (*models.CertificateDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cert := range s.certificates {
		if cert.CertificateNumber == number {
			return s.detail(cert), nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s memCertificates) DeleteByRegistration(ctx context.Context, exec sqlx.ExtContext, registrationID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("certificates.delete"); err != nil {
		return 0, err
	}
	var n int64
	for id, cert := range s.certificates {
		if cert.RegistrationID != nil && *cert.RegistrationID == registrationID {
			remember(exec, s.certificates, id)
			delete(s.certificates, id)
			n++
		}
	}
	return n, nil
}

func (s memCertificates) ExpireBefore(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, cert := range s.certificates {
		if cert.Status == models.CertificateStatusValid && cert.ExpiryDate != nil && cert.ExpiryDate.Before(now) {
			cert.Status = models.CertificateStatusExpired
			s.certificates[id] = cert
			n++
		}
	}
	return n, nil
}

// memReports implements the value report store.
type memReports struct{ *memStore }

func (s memReports) Create(ctx context.Context, report *models.ValueReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if report.ID == "" {
		report.ID = s.nextID("vr")
	}
	s.reports[report.ID] = *report
	return nil
}

func (s memReports) FindByID(ctx context.Context, id string) (*models.ValueReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &r, nil
}

func (s memReports) ListByRegistration(ctx context.Context, registrationID string) ([]models.ValueReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ValueReport
	for _, r := range s.reports {
		if r.RegistrationID == registrationID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s memReports) Update(ctx context.Context, report *models.ValueReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reports[report.ID]; !ok {
		return sql.ErrNoRows
	}
	s.reports[report.ID] = *report
	return nil
}

func (s memReports) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reports[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.reports, id)
	return nil
}

func (s memReports) DeleteByRegistration(ctx context.Context, exec sqlx.ExtContext, registrationID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("value_reports.delete"); err != nil {
		return 0, err
	}
	var n int64
	for id, r := range s.reports {
		if r.RegistrationID == registrationID {
			remember(exec, s.reports, id)
			delete(s.reports, id)
			n++
		}
	}
	return n, nil
}

// memAudit records audit entries.
type memAudit struct{ *memStore }

func (s memAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, *log)
	return nil
}
