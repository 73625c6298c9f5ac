package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"campusclubs/internal/domain"
	"campusclubs/internal/metrics"
)

const cancelledByPayer = "cancelled by payer"

type callbackRouter struct {
	services map[domain.Kind]domain.RegistrationService
	store    domain.Store
	signer   *CallbackSigner
	locker   domain.CallbackLocker
	metrics  *metrics.Registrations
	logger   *slog.Logger
}

// NewCallbackRouter returns a router dispatching gateway callbacks to the registration service owning
// the transaction. locker may be nil.
func NewCallbackRouter(store domain.Store, signer *CallbackSigner, locker domain.CallbackLocker, m *metrics.Registrations, logger *slog.Logger, services ...domain.RegistrationService) domain.CallbackRouter {
	if logger == nil {
		logger = slog.Default()
	}
	byKind := make(map[domain.Kind]domain.RegistrationService, len(services))
	for _, svc := range services {
		byKind[svc.Kind()] = svc
	}
	return &callbackRouter{
		services: byKind,
		store:    store,
		signer:   signer,
		locker:   locker,
		metrics:  m,
		logger:   logger,
	}
}

func (r *callbackRouter) Route(ctx context.Context, payload *domain.CallbackPayload, outcome domain.CallbackOutcome) (*domain.CallbackResult, error) {
	result, kind, err := r.route(ctx, payload, outcome)
	switch {
	case err != nil:
		r.metrics.CallbackFailed(err)
		if kind != "" {
			r.metrics.CallbackProcessed(kind, outcome, metrics.ResultError)
		}
	case result.Applied:
		r.metrics.CallbackProcessed(result.Kind, outcome, metrics.ResultApplied)
	default:
		r.metrics.CallbackProcessed(result.Kind, outcome, metrics.ResultNoop)
	}
	return result, err
}

func (r *callbackRouter) route(ctx context.Context, payload *domain.CallbackPayload, outcome domain.CallbackOutcome) (*domain.CallbackResult, domain.Kind, error) {
	if payload == nil {
		return nil, "", fmt.Errorf("%w: empty payload", domain.ErrInvalidCallback)
	}
	txnID := strings.TrimSpace(payload.TransactionID)
	if txnID == "" {
		return nil, "", fmt.Errorf("%w: missing mer_txnid", domain.ErrInvalidCallback)
	}
	log := r.logger.With("transaction_id", txnID, "outcome", string(outcome))

	if r.locker != nil {
		key := "callback:" + txnID
		token, acquired, err := r.locker.TryLock(ctx, key)
		switch {
		case err != nil:
			log.WarnContext(ctx, "callback lock unavailable", "err", err)
		case !acquired:
			return nil, "", domain.ErrCallbackInProgress
		default:
			defer func() {
				if err := r.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
					log.WarnContext(ctx, "release callback lock failed", "err", err)
				}
			}()
		}
	}

	ref := r.signer.Open(txnID, payload.PassThrough)
	var kind domain.Kind
	if ref != nil {
		kind = ref.Kind
		r.metrics.CallbackRouted(metrics.RouteDiscriminator)
	} else {
		if strings.TrimSpace(payload.OptD) != "" {
			log.WarnContext(ctx, "callback reference rejected, probing stores")
		}
		probed, err := r.probe(ctx, txnID)
		if err != nil {
			log.ErrorContext(ctx, "callback routing failed", "err", err)
			return nil, "", err
		}
		kind = probed
		r.metrics.CallbackRouted(metrics.RouteProbe)
	}

	svc, ok := r.services[kind]
	if !ok {
		return nil, kind, fmt.Errorf("%w: no service for %s", domain.ErrRoutingAmbiguous, kind)
	}

	cb := &domain.Callback{
		TransactionID: txnID,
		Outcome:       outcome,
		Ref:           ref,
		FailedReason:  payload.FailedReason,
		Payload:       payload,
	}
	var result *domain.CallbackResult
	var err error
	switch outcome {
	case domain.OutcomeSuccess:
		result, err = svc.ProcessSuccess(ctx, cb)
	case domain.OutcomeCancel:
		if strings.TrimSpace(cb.FailedReason) == "" {
			cb.FailedReason = cancelledByPayer
		}
		result, err = svc.ProcessFailure(ctx, cb)
	case domain.OutcomeFail:
		result, err = svc.ProcessFailure(ctx, cb)
	default:
		return nil, kind, fmt.Errorf("%w: unknown outcome %q", domain.ErrInvalidCallback, outcome)
	}
	if err != nil {
		log.ErrorContext(ctx, "callback processing failed", "kind", string(kind), "err", err)
		return nil, kind, err
	}
	return result, kind, nil
}

// probe looks the transaction up in every registration store. Transaction ids are unique across
// domains, so more than one match means the stores are inconsistent.
func (r *callbackRouter) probe(ctx context.Context, txnID string) (domain.Kind, error) {
	var found []domain.Kind
	for _, kind := range []domain.Kind{domain.KindEvent, domain.KindClub} {
		if _, ok := r.services[kind]; !ok {
			continue
		}
		_, err := r.store.Registrations(kind).GetByTransactionID(ctx, txnID)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("probe %s registrations: %w", kind, err)
		}
		found = append(found, kind)
	}
	switch len(found) {
	case 0:
		return "", domain.ErrRegistrationNotFound
	case 1:
		return found[0], nil
	}
	return "", domain.ErrRoutingAmbiguous
}
