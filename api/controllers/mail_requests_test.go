package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/dripwire/dripwire-backend/internal/mailer"
	"github.com/dripwire/dripwire-backend/pkg/db/models"
	"github.com/dripwire/dripwire-backend/pkg/enums"
	pkgerrors "github.com/dripwire/dripwire-backend/pkg/errors"
	"github.com/dripwire/dripwire-backend/pkg/logger"
)

type testRequestService struct {
	enqueueFn func(ctx context.Context, params mailer.EnqueueParams) (*models.MailRequest, error)
}

func (s *testRequestService) Enqueue(ctx context.Context, params mailer.EnqueueParams) (*models.MailRequest, error) {
	if s.enqueueFn != nil {
		return s.enqueueFn(ctx, params)
	}
	return &models.MailRequest{}, nil
}

func (s *testRequestService) ProcessPending(ctx context.Context, limit int) (int, error) {
	return 0, nil
}

func TestCreateMailRequestSuccess(t *testing.T) {
	domainID := uuid.New()
	userID := uuid.New()
	svc := &testRequestService{
		enqueueFn: func(ctx context.Context, params mailer.EnqueueParams) (*models.MailRequest, error) {
			if params.DomainID != domainID || params.UserID != userID {
				t.Fatalf("unexpected scope %s/%s", params.DomainID, params.UserID)
			}
			if params.Reason != "password_reset" {
				t.Fatalf("unexpected reason %q", params.Reason)
			}
			return &models.MailRequest{
				ID:       uuid.New(),
				DomainID: domainID,
				UserID:   userID,
				Reason:   params.Reason,
				Status:   enums.MailRequestPending,
			}, nil
		},
	}

	body := `{"domainId":"` + domainID.String() + `","userId":"` + userID.String() + `","reason":"password_reset","message":"<p>Reset your password</p>"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/mail-requests", strings.NewReader(body))
	resp := httptest.NewRecorder()
	CreateMailRequest(svc, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data models.MailRequest `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data.Status != enums.MailRequestPending {
		t.Fatalf("unexpected status %q", envelope.Data.Status)
	}
}

func TestCreateMailRequestBadJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/mail-requests", strings.NewReader("{"))
	resp := httptest.NewRecorder()
	CreateMailRequest(&testRequestService{}, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCreateMailRequestValidationError(t *testing.T) {
	svc := &testRequestService{
		enqueueFn: func(ctx context.Context, params mailer.EnqueueParams) (*models.MailRequest, error) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "message is required")
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/mail-requests", strings.NewReader(`{"reason":"welcome"}`))
	resp := httptest.NewRecorder()
	CreateMailRequest(svc, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
