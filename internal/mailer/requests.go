package mailer

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dripwire/dripwire-backend/internal/subscribers"
	"github.com/dripwire/dripwire-backend/pkg/db/models"
	"github.com/dripwire/dripwire-backend/pkg/enums"
	pkgerrors "github.com/dripwire/dripwire-backend/pkg/errors"
	"github.com/dripwire/dripwire-backend/pkg/logger"
)

// RequestService accepts and delivers ad-hoc mail outside any sequence.
type RequestService interface {
	Enqueue(ctx context.Context, params EnqueueParams) (*models.MailRequest, error)
	// ProcessPending drains up to limit pending requests through the
	// gateway. It returns how many were attempted.
	ProcessPending(ctx context.Context, limit int) (int, error)
}

// EnqueueParams describes one ad-hoc mail request.
type EnqueueParams struct {
	DomainID uuid.UUID
	UserID   uuid.UUID
	Reason   string
	Message  string
}

// RequestServiceParams wires RequestService dependencies.
type RequestServiceParams struct {
	Requests    RequestRepository
	Subscribers subscribers.Repository
	Gateway     Gateway
	Logger      *logger.Logger
	Now         func() time.Time
}

type requestService struct {
	requests    RequestRepository
	subscribers subscribers.Repository
	gateway     Gateway
	logger      *logger.Logger
	now         func() time.Time
}

// NewRequestService wires mail request dependencies.
func NewRequestService(params RequestServiceParams) (RequestService, error) {
	if params.Requests == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "mail request repository required")
	}
	if params.Subscribers == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "subscribers repository required")
	}
	if params.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "mail gateway required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &requestService{
		requests:    params.Requests,
		subscribers: params.Subscribers,
		gateway:     params.Gateway,
		logger:      params.Logger,
		now:         now,
	}, nil
}

func (s *requestService) Enqueue(ctx context.Context, params EnqueueParams) (*models.MailRequest, error) {
	if params.DomainID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "domain id required")
	}
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if params.Reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason required")
	}

	request := &models.MailRequest{
		ID:       uuid.New(),
		DomainID: params.DomainID,
		UserID:   params.UserID,
		Reason:   params.Reason,
		Status:   enums.MailRequestPending,
	}
	if params.Message != "" {
		request.Message = &params.Message
	}
	if err := s.requests.Create(ctx, request); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create mail request")
	}
	return request, nil
}

func (s *requestService) ProcessPending(ctx context.Context, limit int) (int, error) {
	pending, err := s.requests.ListPending(ctx, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending mail requests")
	}

	attempted := 0
	for i := range pending {
		request := &pending[i]
		attempted++
		s.deliver(ctx, request)
	}
	return attempted, nil
}

func (s *requestService) deliver(ctx context.Context, request *models.MailRequest) {
	now := s.now().UTC()
	logCtx := s.logger.WithFields(ctx, map[string]any{
		"mail_request_id": request.ID.String(),
		"domain_id":       request.DomainID.String(),
	})

	subscriber, err := s.subscribers.Get(ctx, request.DomainID, request.UserID)
	if err != nil {
		s.logger.Warn(logCtx, "mail request recipient unresolved")
		if markErr := s.requests.MarkFailed(ctx, request.ID, "recipient not found", now); markErr != nil {
			s.logger.Error(logCtx, "mark mail request failed", markErr)
		}
		return
	}

	body := request.Reason
	if request.Message != nil {
		body = *request.Message
	}
	result := s.gateway.Send(ctx, Message{
		EmailID:  uuid.New(),
		DomainID: request.DomainID,
		UserID:   request.UserID,
		To:       subscriber.Email,
		Subject:  request.Reason,
		HTML:     body,
	})

	switch {
	case result.Delivered:
		if err := s.requests.MarkSent(ctx, request.ID, now); err != nil {
			s.logger.Error(logCtx, "mark mail request sent", err)
		}
	case result.Permanent:
		if err := s.requests.MarkFailed(ctx, request.ID, result.Reason, now); err != nil {
			s.logger.Error(logCtx, "mark mail request failed", err)
		}
	default:
		// Transient failures stay pending; the next drain retries them.
		s.logger.Warn(logCtx, "mail request delivery deferred")
	}
}
