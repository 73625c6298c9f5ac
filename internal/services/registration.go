package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"campusclubs/internal/domain"
	"campusclubs/internal/metrics"
)

// registrationTarget is the part of an event or club the registration workflow needs.
type registrationTarget struct {
	ID       string
	Name     string
	OwnerID  string
	Fee      int64
	Currency string
	// checkOpen returns ErrRegistrationClosed or ErrTargetFull when the target refuses registrations at now.
	checkOpen func(now time.Time) error
	// hasRoom is nil for uncapped targets.
	hasRoom func(held int) bool
}

// targetPolicy adapts one registration domain (event or club) to the shared workflow.
type targetPolicy interface {
	kind() domain.Kind
	// get loads the target, locking its row when forUpdate is set. A missing target is ErrTargetMissing.
	get(ctx context.Context, store domain.Store, targetID string, forUpdate bool) (*registrationTarget, error)
	adjustCounter(ctx context.Context, store domain.Store, targetID string, delta int) error
	setCounter(ctx context.Context, store domain.Store, targetID string, count int) error
	// successPath lists the transitions a verified payment walks through, in order.
	successPath() []domain.StatusChange
	// allowsOnBehalf reports whether a target owner may register one of its members without a fee.
	allowsOnBehalf() bool
}

// RegistrationDeps are the collaborators shared by the event and club registration services.
type RegistrationDeps struct {
	Store      domain.Store
	Transactor domain.Transactor
	Gateway    domain.PaymentGateway
	Signer     *CallbackSigner
	Email      domain.EmailService
	Metrics    *metrics.Registrations
	Logger     *slog.Logger
	// CallbackBaseURL is this service's public base URL; gateway redirects land on
	// {CallbackBaseURL}/payments/callback/{outcome}.
	CallbackBaseURL string
	// DefaultCurrency is charged when the target row carries no currency.
	DefaultCurrency string
	// SeatHold is how long an unpaid registration keeps its seat on a capped target.
	SeatHold time.Duration
	Timeout  time.Duration
}

// DefaultSeatHold is used when RegistrationDeps.SeatHold is unset.
const DefaultSeatHold = 30 * time.Minute

type registrationService struct {
	policy          targetPolicy
	store           domain.Store
	tx              domain.Transactor
	gateway         domain.PaymentGateway
	signer          *CallbackSigner
	email           domain.EmailService
	metrics         *metrics.Registrations
	logger          *slog.Logger
	callbackBaseURL string
	defaultCurrency string
	seatHold        time.Duration
	contextTimeout  time.Duration
	now             func() time.Time
}

func newRegistrationService(policy targetPolicy, deps RegistrationDeps) *registrationService {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	seatHold := deps.SeatHold
	if seatHold <= 0 {
		seatHold = DefaultSeatHold
	}
	return &registrationService{
		policy:          policy,
		store:           deps.Store,
		tx:              deps.Transactor,
		gateway:         deps.Gateway,
		signer:          deps.Signer,
		email:           deps.Email,
		metrics:         deps.Metrics,
		logger:          logger.With("kind", string(policy.kind())),
		callbackBaseURL: strings.TrimRight(deps.CallbackBaseURL, "/"),
		defaultCurrency: strings.ToUpper(deps.DefaultCurrency),
		seatHold:        seatHold,
		contextTimeout:  timeout,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

func (s *registrationService) Kind() domain.Kind { return s.policy.kind() }

type resolvedSubject struct {
	subject      domain.Subject
	amount       int64
	registeredBy *string
	contact      domain.ContactInfo
}

// resolveSubject decides who is registering and what they owe.
func (s *registrationService) resolveSubject(ctx context.Context, store domain.Store, t *registrationTarget, in domain.CreateRegistrationInput) (*resolvedSubject, error) {
	if in.MemberUserID != "" {
		if !s.policy.allowsOnBehalf() {
			return nil, fmt.Errorf("%w: on-behalf registration is not supported for %s", domain.ErrInvalidInput, s.Kind())
		}
		if in.PublicInfo != nil {
			return nil, domain.ErrInvalidSubject
		}
		if !in.Requester.HasRole(domain.RoleClub) || in.Requester.UserID != t.OwnerID {
			return nil, domain.ErrForbidden
		}
		member, err := store.Users().GetByID(ctx, in.MemberUserID)
		if err != nil {
			return nil, fmt.Errorf("get member: %w", err)
		}
		by := in.Requester.UserID
		return &resolvedSubject{
			subject:      domain.Subject{UserID: member.ID},
			amount:       0,
			registeredBy: &by,
			contact:      domain.ContactInfo{Name: member.FullName(), Email: member.Email, Phone: member.Phone},
		}, nil
	}

	var subject domain.Subject
	if in.Requester != nil {
		if in.PublicInfo != nil {
			return nil, domain.ErrInvalidSubject
		}
		subject.UserID = in.Requester.UserID
	} else {
		subject.PublicInfo = in.PublicInfo
	}
	if err := subject.Validate(); err != nil {
		return nil, err
	}

	res := &resolvedSubject{subject: subject, amount: t.Fee}
	if subject.PublicInfo != nil {
		res.contact = domain.ContactInfo{Name: subject.PublicInfo.Name, Email: subject.PublicInfo.Email, Phone: subject.PublicInfo.Phone}
		return res, nil
	}
	user, err := store.Users().GetByID(ctx, subject.UserID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	res.contact = domain.ContactInfo{Name: user.FullName(), Email: user.Email, Phone: user.Phone}
	return res, nil
}

func (s *registrationService) CreateRegistration(ctx context.Context, in domain.CreateRegistrationInput) (*domain.RegistrationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	in.TargetID = strings.TrimSpace(in.TargetID)
	if in.TargetID == "" {
		return nil, fmt.Errorf("%w: target id is required", domain.ErrInvalidInput)
	}

	now := s.now()
	var result *domain.RegistrationResult
	var target *registrationTarget
	err := s.tx.WithinTx(ctx, func(ctx context.Context, store domain.Store) error {
		t, err := s.policy.get(ctx, store, in.TargetID, true)
		if err != nil {
			return err
		}
		if err := t.checkOpen(now); err != nil {
			return err
		}
		target = t

		sub, err := s.resolveSubject(ctx, store, t, in)
		if err != nil {
			return err
		}

		repo := store.Registrations(s.Kind())
		if _, err := repo.FindActive(ctx, t.ID, sub.subject); err == nil {
			return domain.ErrDuplicateRegistration
		} else if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("find active registration: %w", err)
		}
		if t.hasRoom != nil {
			held, err := repo.CountHeld(ctx, t.ID, now.Add(-s.seatHold))
			if err != nil {
				return fmt.Errorf("count held seats: %w", err)
			}
			if !t.hasRoom(held) {
				return domain.ErrTargetFull
			}
		}

		code, err := generateRegistrationCode(s.Kind())
		if err != nil {
			return fmt.Errorf("generate registration code: %w", err)
		}
		currency := t.Currency
		if currency == "" {
			currency = s.defaultCurrency
		}
		reg := domain.NewRegistration(s.Kind(), t.ID, sub.subject, code, sub.amount, currency, now)
		reg.RegisteredByID = sub.registeredBy
		reg.ReturnURLs = in.ReturnURLs

		if reg.Amount == 0 {
			reg.RegistrationStatus = domain.RegistrationConfirmed
			reg.PaymentStatus = domain.PaymentCompleted
			reg.ConfirmedAt = &now
			reg.PaymentInfo = &domain.PaymentInfo{
				Method:      domain.PaymentMethodFree,
				Currency:    reg.Currency,
				ProcessedAt: &now,
			}
			if err := repo.Create(ctx, reg); err != nil {
				return fmt.Errorf("create registration: %w", err)
			}
			if err := s.policy.adjustCounter(ctx, store, t.ID, 1); err != nil {
				return fmt.Errorf("increment counter: %w", err)
			}
			result = &domain.RegistrationResult{Registration: reg}
			return nil
		}

		if err := repo.Create(ctx, reg); err != nil {
			return fmt.Errorf("create registration: %w", err)
		}

		txnID := newTransactionID(now)
		requesterID := ""
		if in.Requester != nil {
			requesterID = in.Requester.UserID
		}
		pt, err := s.signer.Seal(domain.CallbackRef{Kind: s.Kind(), TargetID: t.ID, UserID: requesterID}, txnID, reg.PublicInfo)
		if err != nil {
			return fmt.Errorf("seal callback reference: %w", err)
		}
		session, err := s.gateway.Initiate(ctx, domain.PaymentRequest{
			TransactionID: txnID,
			Amount:        reg.Amount,
			Currency:      reg.Currency,
			Description:   fmt.Sprintf("%s registration: %s", s.Kind(), t.Name),
			Customer:      sub.contact,
			SuccessURL:    s.callbackURL(domain.OutcomeSuccess),
			FailURL:       s.callbackURL(domain.OutcomeFail),
			CancelURL:     s.callbackURL(domain.OutcomeCancel),
			PassThrough:   pt,
		})
		if err != nil {
			return fmt.Errorf("initiate payment: %w", err)
		}

		attached, err := repo.AttachPayment(ctx, reg.ID, &domain.PaymentInfo{
			Method:          s.gateway.Name(),
			TransactionID:   txnID,
			Amount:          reg.Amount,
			Currency:        reg.Currency,
			GatewayResponse: session.Raw,
		}, now)
		if err != nil {
			return fmt.Errorf("attach payment: %w", err)
		}
		result = &domain.RegistrationResult{Registration: attached, PaymentURL: session.URL}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.PaymentURL == "" {
		s.metrics.RegistrationCreated(s.Kind(), metrics.ModeFree)
		s.sendConfirmation(ctx, result.Registration, target)
	} else {
		s.metrics.RegistrationCreated(s.Kind(), metrics.ModePaid)
	}
	return result, nil
}

func (s *registrationService) callbackURL(outcome domain.CallbackOutcome) string {
	return s.callbackBaseURL + "/payments/callback/" + string(outcome)
}

func (s *registrationService) ProcessSuccess(ctx context.Context, cb *domain.Callback) (*domain.CallbackResult, error) {
	return s.processCallback(ctx, cb, true)
}

func (s *registrationService) ProcessFailure(ctx context.Context, cb *domain.Callback) (*domain.CallbackResult, error) {
	return s.processCallback(ctx, cb, false)
}

// settled reports whether reg already sits in the terminal state a callback with this outcome leads to.
func settled(reg *domain.Registration, success bool) bool {
	if success {
		return reg.RegistrationStatus == domain.RegistrationConfirmed
	}
	return reg.RegistrationStatus == domain.RegistrationCancelled
}

// contradicts reports whether reg has moved past the point where a callback with this outcome may apply.
func contradicts(reg *domain.Registration, success bool) bool {
	switch reg.RegistrationStatus {
	case domain.RegistrationCancelled, domain.RegistrationRefunded:
		return success
	case domain.RegistrationPaid, domain.RegistrationConfirmed:
		return !success
	}
	return false
}

func (s *registrationService) processCallback(ctx context.Context, cb *domain.Callback, success bool) (*domain.CallbackResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	if cb == nil || strings.TrimSpace(cb.TransactionID) == "" {
		return nil, fmt.Errorf("%w: missing transaction id", domain.ErrInvalidCallback)
	}
	log := s.logger.With("transaction_id", cb.TransactionID)

	reg, err := s.store.Registrations(s.Kind()).GetByTransactionID(ctx, cb.TransactionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("get registration: %w", err)
	}
	log = log.With("registration_id", reg.ID)

	if cb.Ref != nil && (cb.Ref.Kind != s.Kind() || cb.Ref.TargetID != reg.TargetID) {
		log.ErrorContext(ctx, "callback reference does not match registration", "ref_target", cb.Ref.TargetID, "target", reg.TargetID)
		return nil, domain.ErrRoutingAmbiguous
	}

	if settled(reg, success) {
		log.InfoContext(ctx, "callback already applied", "status", reg.RegistrationStatus)
		if success {
			s.sendConfirmation(ctx, reg, nil)
		}
		return &domain.CallbackResult{Kind: s.Kind(), Registration: reg, Applied: false}, nil
	}
	if contradicts(reg, success) {
		log.ErrorContext(ctx, "callback contradicts registration state", "status", reg.RegistrationStatus, "payment_status", reg.PaymentStatus)
		return nil, domain.ErrTransitionConflict
	}

	claimed := success
	changes := []domain.StatusChange{domain.ChangePaymentFailed}
	reason := strings.TrimSpace(cb.FailedReason)
	var raw []byte
	if success {
		// The callback body is replayable; only the gateway's own answer counts.
		v, verr := s.gateway.Verify(ctx, cb.TransactionID)
		if verr != nil {
			reason = "payment verification failed: " + verr.Error()
			log.WarnContext(ctx, "payment verification failed", "err", verr)
		} else {
			raw = v.Raw
			reason = v.Check(reg)
		}
		if reason == "" {
			changes = s.policy.successPath()
		} else {
			success = false
			log.WarnContext(ctx, "payment not confirmed by gateway", "reason", reason)
		}
	} else {
		// Fail and cancel callbacks are unauthenticated; the gateway decides whether the payment went through.
		v, verr := s.gateway.Verify(ctx, cb.TransactionID)
		if verr != nil {
			log.WarnContext(ctx, "payment verification failed", "err", verr)
			return nil, fmt.Errorf("%w: verify payment: %w", domain.ErrGatewayUnavailable, verr)
		}
		raw = v.Raw
		if len(raw) == 0 && cb.Payload != nil {
			raw = marshalPayload(cb.Payload)
		}
		if gatewayReason := v.Check(reg); gatewayReason == "" {
			log.WarnContext(ctx, "failure callback for a paid transaction, confirming", "reported_reason", reason)
			success = true
			reason = ""
			changes = s.policy.successPath()
		} else {
			switch {
			case cb.Outcome == domain.OutcomeCancel && reason != "":
				// keep the payer's cancellation reason
			case v.FailureReason != "":
				reason = v.FailureReason
			case reason == "":
				reason = gatewayReason
			}
		}
	}

	updated, err := s.applyChanges(ctx, reg, changes, raw, reason)
	if errors.Is(err, domain.ErrStaleTransition) {
		current, gerr := s.store.Registrations(s.Kind()).GetByID(ctx, reg.ID)
		if gerr != nil {
			return nil, fmt.Errorf("reload registration: %w", gerr)
		}
		if settled(current, success) || settled(current, claimed) {
			log.InfoContext(ctx, "callback applied concurrently", "status", current.RegistrationStatus)
			return &domain.CallbackResult{Kind: s.Kind(), Registration: current, Applied: false}, nil
		}
		log.ErrorContext(ctx, "callback lost transition race", "status", current.RegistrationStatus)
		return nil, domain.ErrTransitionConflict
	}
	if err != nil {
		return nil, err
	}

	if success {
		s.sendConfirmation(ctx, updated, nil)
	} else {
		s.sendFailure(ctx, updated, reason)
	}
	return &domain.CallbackResult{Kind: s.Kind(), Registration: updated, Applied: true}, nil
}

// applyChanges walks reg through changes in one transaction, adjusting the target counter alongside
// every status move that affects it. Steps whose pre-state reg has already left are skipped.
func (s *registrationService) applyChanges(ctx context.Context, reg *domain.Registration, changes []domain.StatusChange, raw []byte, reason string) (*domain.Registration, error) {
	now := s.now()
	var updated *domain.Registration
	err := s.tx.WithinTx(ctx, func(ctx context.Context, store domain.Store) error {
		repo := store.Registrations(s.Kind())
		cur := reg
		moved := false
		for _, change := range changes {
			if !change.Matches(cur) {
				continue
			}
			change.At = now
			change.GatewayResponse = raw
			change.FailureReason = reason
			if change.ToStatus != domain.RegistrationCancelled {
				change.FailureReason = ""
			}

			next, err := repo.Transition(ctx, cur.ID, change)
			if err != nil {
				return err
			}
			if delta := change.CounterDelta(cur.RegistrationStatus); delta != 0 {
				if err := s.policy.adjustCounter(ctx, store, cur.TargetID, delta); err != nil {
					return fmt.Errorf("adjust counter: %w", err)
				}
			}
			cur = next
			moved = true
		}
		if !moved {
			return domain.ErrStaleTransition
		}
		updated = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// authorize allows the registrant, the target owner and admins.
func (s *registrationService) authorize(ctx context.Context, reg *domain.Registration, actor *domain.Requester) error {
	if actor == nil {
		return domain.ErrForbidden
	}
	if actor.HasRole(domain.RoleAdmin) || reg.IsRegistrant(actor.UserID) {
		return nil
	}
	_, err := s.authorizeOwner(ctx, s.store, reg.TargetID, actor)
	return err
}

// authorizeOwner loads the target and allows its owner and admins.
func (s *registrationService) authorizeOwner(ctx context.Context, store domain.Store, targetID string, actor *domain.Requester) (*registrationTarget, error) {
	if actor == nil {
		return nil, domain.ErrForbidden
	}
	t, err := s.policy.get(ctx, store, targetID, false)
	if err != nil {
		return nil, err
	}
	if actor.HasRole(domain.RoleAdmin) || t.OwnerID == actor.UserID {
		return t, nil
	}
	return nil, domain.ErrForbidden
}

func (s *registrationService) getRegistration(ctx context.Context, id string) (*domain.Registration, error) {
	reg, err := s.store.Registrations(s.Kind()).GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get registration: %w", err)
	}
	return reg, nil
}

func (s *registrationService) Get(ctx context.Context, registrationID string, actor *domain.Requester) (*domain.Registration, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	reg, err := s.getRegistration(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, reg, actor); err != nil {
		return nil, err
	}
	return reg, nil
}

func (s *registrationService) ListByTarget(ctx context.Context, targetID string, actor *domain.Requester, params domain.PaginationParams) ([]*domain.Registration, int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	if _, err := s.authorizeOwner(ctx, s.store, targetID, actor); err != nil {
		return nil, 0, err
	}
	regs, total, err := s.store.Registrations(s.Kind()).ListByTarget(ctx, targetID, params)
	if err != nil {
		return nil, 0, fmt.Errorf("list registrations: %w", err)
	}
	return regs, total, nil
}

func (s *registrationService) Cancel(ctx context.Context, registrationID string, actor *domain.Requester) (*domain.Registration, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	reg, err := s.getRegistration(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, reg, actor); err != nil {
		return nil, err
	}
	switch reg.RegistrationStatus {
	case domain.RegistrationCancelled:
		return reg, nil
	case domain.RegistrationRefunded:
		return nil, domain.ErrTransitionConflict
	}

	updated, err := s.applyChanges(ctx, reg, []domain.StatusChange{domain.CancelFrom(reg.RegistrationStatus, reg.PaymentStatus)}, nil, "")
	if errors.Is(err, domain.ErrStaleTransition) {
		current, gerr := s.getRegistration(ctx, reg.ID)
		if gerr != nil {
			return nil, gerr
		}
		if current.RegistrationStatus == domain.RegistrationCancelled {
			return current, nil
		}
		return nil, domain.ErrTransitionConflict
	}
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "registration cancelled", "registration_id", reg.ID, "from", reg.RegistrationStatus)
	return updated, nil
}

func (s *registrationService) Refund(ctx context.Context, registrationID string, actor *domain.Requester) (*domain.Registration, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	reg, err := s.getRegistration(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorizeOwner(ctx, s.store, reg.TargetID, actor); err != nil {
		return nil, err
	}
	switch {
	case reg.RegistrationStatus == domain.RegistrationRefunded:
		return reg, nil
	case reg.PaymentInfo == nil || reg.PaymentInfo.Method == domain.PaymentMethodFree:
		return nil, fmt.Errorf("%w: nothing was paid", domain.ErrTransitionConflict)
	}

	change := domain.RefundFrom(reg.RegistrationStatus)
	if !change.Matches(reg) || (reg.RegistrationStatus != domain.RegistrationPaid && reg.RegistrationStatus != domain.RegistrationConfirmed) {
		return nil, domain.ErrTransitionConflict
	}
	updated, err := s.applyChanges(ctx, reg, []domain.StatusChange{change}, nil, "")
	if errors.Is(err, domain.ErrStaleTransition) {
		return nil, domain.ErrTransitionConflict
	}
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "registration refunded", "registration_id", reg.ID, "from", reg.RegistrationStatus)
	return updated, nil
}

func (s *registrationService) Recount(ctx context.Context, targetID string, actor *domain.Requester) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	var count int
	err := s.tx.WithinTx(ctx, func(ctx context.Context, store domain.Store) error {
		if _, err := s.authorizeOwner(ctx, store, targetID, actor); err != nil {
			return err
		}
		if _, err := s.policy.get(ctx, store, targetID, true); err != nil {
			return err
		}
		n, err := store.Registrations(s.Kind()).CountConfirmed(ctx, targetID)
		if err != nil {
			return fmt.Errorf("count confirmed: %w", err)
		}
		if err := s.policy.setCounter(ctx, store, targetID, n); err != nil {
			return fmt.Errorf("set counter: %w", err)
		}
		count = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.InfoContext(ctx, "counter recounted", "target_id", targetID, "count", count)
	return count, nil
}
