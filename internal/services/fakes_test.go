package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"campusclubs/internal/domain"
)

// memData is one snapshot of the in-memory database.
type memData struct {
	regs   map[domain.Kind]map[string]*domain.Registration
	events map[string]*domain.Event
	clubs  map[string]*domain.Club
	users  map[string]*domain.User
}

func (d *memData) clone() *memData {
	out := &memData{
		regs:   map[domain.Kind]map[string]*domain.Registration{},
		events: make(map[string]*domain.Event, len(d.events)),
		clubs:  make(map[string]*domain.Club, len(d.clubs)),
		users:  d.users,
	}
	for kind, regs := range d.regs {
		m := make(map[string]*domain.Registration, len(regs))
		for id, r := range regs {
			m[id] = cloneRegistration(r)
		}
		out.regs[kind] = m
	}
	for id, e := range d.events {
		c := *e
		out.events[id] = &c
	}
	for id, c := range d.clubs {
		cc := *c
		out.clubs[id] = &cc
	}
	return out
}

func cloneRegistration(r *domain.Registration) *domain.Registration {
	c := *r
	if r.PublicInfo != nil {
		p := *r.PublicInfo
		c.PublicInfo = &p
	}
	if r.PaymentInfo != nil {
		p := *r.PaymentInfo
		c.PaymentInfo = &p
	}
	return &c
}

// memDB is a domain.Store and domain.Transactor over memData. Transactions are serialized and work
// on a copy that replaces the committed data only when fn succeeds.
type memDB struct {
	mu   sync.Mutex
	data *memData

	nextID  atomic.Int64
	creates atomic.Int64
	touched map[domain.Kind]*atomic.Int64

	// adjustErr, when set, makes every counter adjustment fail.
	adjustErr error
}

func newMemDB() *memDB {
	return &memDB{
		data: &memData{
			regs: map[domain.Kind]map[string]*domain.Registration{
				domain.KindEvent: {},
				domain.KindClub:  {},
			},
			events: map[string]*domain.Event{},
			clubs:  map[string]*domain.Club{},
			users:  map[string]*domain.User{},
		},
		touched: map[domain.Kind]*atomic.Int64{
			domain.KindEvent: {},
			domain.KindClub:  {},
		},
	}
}

func (db *memDB) WithinTx(ctx context.Context, fn func(ctx context.Context, store domain.Store) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	work := db.data.clone()
	if err := fn(ctx, &memStore{db: db, tx: work}); err != nil {
		return err
	}
	db.data = work
	return nil
}

func (db *memDB) store() *memStore { return &memStore{db: db} }

func (db *memDB) event(id string) *domain.Event {
	db.mu.Lock()
	defer db.mu.Unlock()
	c := *db.data.events[id]
	return &c
}

func (db *memDB) club(id string) *domain.Club {
	db.mu.Lock()
	defer db.mu.Unlock()
	c := *db.data.clubs[id]
	return &c
}

func (db *memDB) registrations(kind domain.Kind) []*domain.Registration {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]*domain.Registration, 0, len(db.data.regs[kind]))
	for _, r := range db.data.regs[kind] {
		out = append(out, cloneRegistration(r))
	}
	return out
}

func (db *memDB) registration(kind domain.Kind, id string) *domain.Registration {
	db.mu.Lock()
	defer db.mu.Unlock()
	return cloneRegistration(db.data.regs[kind][id])
}

// put inserts reg directly, bypassing the workflow.
func (db *memDB) put(reg *domain.Registration) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data.regs[reg.Kind][reg.ID] = cloneRegistration(reg)
}

type memStore struct {
	db *memDB
	tx *memData
}

func (s *memStore) with(fn func(d *memData) error) error {
	if s.tx != nil {
		return fn(s.tx)
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return fn(s.db.data)
}

func (s *memStore) Registrations(kind domain.Kind) domain.RegistrationRepository {
	s.db.touched[kind].Add(1)
	return &memRegistrations{s: s, kind: kind}
}

func (s *memStore) Events() domain.EventRepository { return &memEvents{s: s} }

func (s *memStore) Clubs() domain.ClubRepository { return &memClubs{s: s} }

func (s *memStore) Users() domain.UserRepository { return &memUsers{s: s} }

type memRegistrations struct {
	s    *memStore
	kind domain.Kind
}

func sameSubject(r *domain.Registration, subject domain.Subject) bool {
	if subject.PublicInfo != nil {
		return r.PublicInfo != nil && strings.EqualFold(r.PublicInfo.Email, strings.TrimSpace(subject.PublicInfo.Email))
	}
	return r.UserID != nil && *r.UserID == subject.UserID
}

func (m *memRegistrations) Create(ctx context.Context, reg *domain.Registration) error {
	m.s.db.creates.Add(1)
	return m.s.with(func(d *memData) error {
		if !reg.HasValidSubject() {
			return domain.ErrInvalidSubject
		}
		subject := domain.Subject{PublicInfo: reg.PublicInfo}
		if reg.UserID != nil {
			subject.UserID = *reg.UserID
		}
		for _, r := range d.regs[m.kind] {
			if r.TargetID == reg.TargetID && r.RegistrationStatus.IsActive() && sameSubject(r, subject) {
				return domain.ErrDuplicateRegistration
			}
			if r.RegistrationCode == reg.RegistrationCode {
				return fmt.Errorf("registration code %s taken", reg.RegistrationCode)
			}
		}
		reg.ID = fmt.Sprintf("%s-reg-%d", m.kind, m.s.db.nextID.Add(1))
		d.regs[m.kind][reg.ID] = cloneRegistration(reg)
		return nil
	})
}

func (m *memRegistrations) find(match func(r *domain.Registration) bool) (*domain.Registration, error) {
	var found *domain.Registration
	err := m.s.with(func(d *memData) error {
		for _, r := range d.regs[m.kind] {
			if match(r) {
				found = cloneRegistration(r)
				return nil
			}
		}
		return domain.ErrNotFound
	})
	return found, err
}

func (m *memRegistrations) GetByID(ctx context.Context, id string) (*domain.Registration, error) {
	return m.find(func(r *domain.Registration) bool { return r.ID == id })
}

func (m *memRegistrations) GetByCode(ctx context.Context, code string) (*domain.Registration, error) {
	return m.find(func(r *domain.Registration) bool { return r.RegistrationCode == code })
}

func (m *memRegistrations) GetByTransactionID(ctx context.Context, transactionID string) (*domain.Registration, error) {
	return m.find(func(r *domain.Registration) bool { return r.TransactionID() == transactionID })
}

func (m *memRegistrations) FindActive(ctx context.Context, targetID string, subject domain.Subject) (*domain.Registration, error) {
	return m.find(func(r *domain.Registration) bool {
		return r.TargetID == targetID && r.RegistrationStatus.IsActive() && sameSubject(r, subject)
	})
}

func (m *memRegistrations) AttachPayment(ctx context.Context, id string, info *domain.PaymentInfo, at time.Time) (*domain.Registration, error) {
	var out *domain.Registration
	err := m.s.with(func(d *memData) error {
		r, ok := d.regs[m.kind][id]
		if !ok || r.RegistrationStatus != domain.RegistrationPending || r.PaymentStatus != domain.PaymentPending {
			return domain.ErrStaleTransition
		}
		p := *info
		r.PaymentInfo = &p
		r.PaymentStatus = domain.PaymentProcessing
		r.UpdatedAt = at
		out = cloneRegistration(r)
		return nil
	})
	return out, err
}

func (m *memRegistrations) Transition(ctx context.Context, id string, change domain.StatusChange) (*domain.Registration, error) {
	var out *domain.Registration
	err := m.s.with(func(d *memData) error {
		r, ok := d.regs[m.kind][id]
		if !ok || !change.Apply(r) {
			return domain.ErrStaleTransition
		}
		out = cloneRegistration(r)
		return nil
	})
	return out, err
}

func (m *memRegistrations) ClaimEmail(ctx context.Context, id string) (bool, error) {
	claimed := false
	err := m.s.with(func(d *memData) error {
		r, ok := d.regs[m.kind][id]
		if !ok {
			return domain.ErrNotFound
		}
		if !r.EmailSent {
			r.EmailSent = true
			claimed = true
		}
		return nil
	})
	return claimed, err
}

func (m *memRegistrations) ReleaseEmail(ctx context.Context, id string) error {
	return m.s.with(func(d *memData) error {
		r, ok := d.regs[m.kind][id]
		if !ok {
			return domain.ErrNotFound
		}
		r.EmailSent = false
		return nil
	})
}

func (m *memRegistrations) CountConfirmed(ctx context.Context, targetID string) (int, error) {
	n := 0
	err := m.s.with(func(d *memData) error {
		for _, r := range d.regs[m.kind] {
			if r.TargetID == targetID && r.RegistrationStatus == domain.RegistrationConfirmed {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (m *memRegistrations) CountHeld(ctx context.Context, targetID string, since time.Time) (int, error) {
	n := 0
	err := m.s.with(func(d *memData) error {
		for _, r := range d.regs[m.kind] {
			held := r.RegistrationStatus == domain.RegistrationPending || r.RegistrationStatus == domain.RegistrationPaid
			if r.TargetID == targetID && held && !r.CreatedAt.Before(since) {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (m *memRegistrations) ListByTarget(ctx context.Context, targetID string, params domain.PaginationParams) ([]*domain.Registration, int, error) {
	var all []*domain.Registration
	_ = m.s.with(func(d *memData) error {
		for _, r := range d.regs[m.kind] {
			if r.TargetID == targetID {
				all = append(all, cloneRegistration(r))
			}
		}
		return nil
	})
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	start := params.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + params.PageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], len(all), nil
}

type memEvents struct{ s *memStore }

func (m *memEvents) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	var out *domain.Event
	err := m.s.with(func(d *memData) error {
		e, ok := d.events[id]
		if !ok {
			return domain.ErrNotFound
		}
		c := *e
		out = &c
		return nil
	})
	return out, err
}

func (m *memEvents) GetForUpdate(ctx context.Context, id string) (*domain.Event, error) {
	return m.GetByID(ctx, id)
}

func (m *memEvents) AdjustParticipants(ctx context.Context, id string, delta int) error {
	if m.s.db.adjustErr != nil {
		return m.s.db.adjustErr
	}
	return m.s.with(func(d *memData) error {
		e, ok := d.events[id]
		if !ok {
			return domain.ErrNotFound
		}
		if e.CurrentParticipants+delta < 0 {
			return domain.ErrCounterUnderflow
		}
		e.CurrentParticipants += delta
		return nil
	})
}

func (m *memEvents) SetParticipants(ctx context.Context, id string, count int) error {
	return m.s.with(func(d *memData) error {
		e, ok := d.events[id]
		if !ok {
			return domain.ErrNotFound
		}
		e.CurrentParticipants = count
		return nil
	})
}

type memClubs struct{ s *memStore }

func (m *memClubs) GetByID(ctx context.Context, id string) (*domain.Club, error) {
	var out *domain.Club
	err := m.s.with(func(d *memData) error {
		c, ok := d.clubs[id]
		if !ok {
			return domain.ErrNotFound
		}
		cc := *c
		out = &cc
		return nil
	})
	return out, err
}

func (m *memClubs) GetForUpdate(ctx context.Context, id string) (*domain.Club, error) {
	return m.GetByID(ctx, id)
}

func (m *memClubs) AdjustMembers(ctx context.Context, id string, delta int) error {
	if m.s.db.adjustErr != nil {
		return m.s.db.adjustErr
	}
	return m.s.with(func(d *memData) error {
		c, ok := d.clubs[id]
		if !ok {
			return domain.ErrNotFound
		}
		if c.MembersCount+delta < 0 {
			return domain.ErrCounterUnderflow
		}
		c.MembersCount += delta
		return nil
	})
}

func (m *memClubs) SetMembers(ctx context.Context, id string, count int) error {
	return m.s.with(func(d *memData) error {
		c, ok := d.clubs[id]
		if !ok {
			return domain.ErrNotFound
		}
		c.MembersCount = count
		return nil
	})
}

type memUsers struct{ s *memStore }

func (m *memUsers) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var out *domain.User
	err := m.s.with(func(d *memData) error {
		u, ok := d.users[id]
		if !ok {
			return domain.ErrUserNotFound
		}
		c := *u
		out = &c
		return nil
	})
	return out, err
}

// fakeGateway records sessions and, by default, verifies every initiated transaction as fully paid.
type fakeGateway struct {
	mu          sync.Mutex
	requests    map[string]domain.PaymentRequest
	initiateErr error
	verifyErr   error
	// verify overrides the default verification result.
	verify    func(req domain.PaymentRequest) *domain.Verification
	initiated int
	verified  int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{requests: map[string]domain.PaymentRequest{}}
}

func (g *fakeGateway) Name() string { return "fakepay" }

func (g *fakeGateway) Initiate(ctx context.Context, req domain.PaymentRequest) (*domain.PaymentSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initiated++
	if g.initiateErr != nil {
		return nil, g.initiateErr
	}
	g.requests[req.TransactionID] = req
	return &domain.PaymentSession{
		URL:           "https://pay.example/checkout/" + req.TransactionID,
		TransactionID: req.TransactionID,
		Raw:           json.RawMessage(`{"result":"true"}`),
	}, nil
}

func (g *fakeGateway) Verify(ctx context.Context, transactionID string) (*domain.Verification, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verified++
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	req := g.requests[transactionID]
	if g.verify != nil {
		return g.verify(req), nil
	}
	return &domain.Verification{
		TransactionID: transactionID,
		Paid:          true,
		Status:        "Successful",
		Amount:        req.Amount,
		Currency:      req.Currency,
		Raw:           json.RawMessage(`{"pay_status":"Successful"}`),
	}, nil
}

func (g *fakeGateway) request(txnID string) domain.PaymentRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requests[txnID]
}

// declined makes the gateway report the transaction as unpaid.
func declined(reason string) func(req domain.PaymentRequest) *domain.Verification {
	return func(req domain.PaymentRequest) *domain.Verification {
		return &domain.Verification{
			TransactionID: req.TransactionID,
			Status:        "Failed",
			FailureReason: reason,
			Raw:           json.RawMessage(`{"pay_status":"Failed"}`),
		}
	}
}

type sentEmail struct {
	template string
	data     domain.RegistrationEmailData
}

type fakeEmail struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (f *fakeEmail) record(template string, data *domain.RegistrationEmailData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentEmail{template: template, data: *data})
	return f.err
}

func (f *fakeEmail) SendRegistrationConfirmed(ctx context.Context, data *domain.RegistrationEmailData) error {
	return f.record("confirmed", data)
}

func (f *fakeEmail) SendRegistrationFailed(ctx context.Context, data *domain.RegistrationEmailData) error {
	return f.record("failed", data)
}

func (f *fakeEmail) count(template string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.sent {
		if e.template == template {
			n++
		}
	}
	return n
}

type fakeLocker struct {
	mu   sync.Mutex
	held map[string]string
	err  error
}

func newFakeLocker() *fakeLocker { return &fakeLocker{held: map[string]string{}} }

func (l *fakeLocker) TryLock(ctx context.Context, key string) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return "", false, l.err
	}
	if _, ok := l.held[key]; ok {
		return "", false, nil
	}
	token := fmt.Sprintf("tok-%d", len(l.held)+1)
	l.held[key] = token
	return token, true, nil
}

func (l *fakeLocker) Release(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}
