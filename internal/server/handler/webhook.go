package handler

import (
	"errors"
	"net/http"

	"github.com/garrettladley/paygate/internal/client/stripe"
	"github.com/garrettladley/paygate/internal/service/webhook"
	"github.com/garrettladley/paygate/internal/xerrors"
	"github.com/garrettladley/paygate/internal/xhttp"
	"github.com/garrettladley/paygate/internal/xslog"
)

const DefaultMaxWebhookBodyBytes = 64 << 10

type Webhook struct {
	service      webhook.Service
	maxBodyBytes int64
}

func NewWebhook(service webhook.Service, maxBodyBytes int64) *Webhook {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxWebhookBodyBytes
	}
	return &Webhook{service: service, maxBodyBytes: maxBodyBytes}
}

type webhookResponse struct {
	Received bool   `json:"received"`
	Result   string `json:"result"`
}

// HandleWebhook handles POST /payments/webhook requests.
func (h *Webhook) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := xslog.FromContext(ctx)

	body, err := xhttp.ReadBody(w, r, h.maxBodyBytes)
	if err != nil {
		logger.WarnContext(ctx, "failed to read webhook body", xslog.Error(err))
		xerrors.WriteError(ctx, w, xerrors.BadRequest(xerrors.WithMessage("failed to read request body")))
		return
	}

	req := webhook.ProcessRequest{
		Body:      body,
		Signature: r.Header.Get(stripe.SignatureHeader),
	}

	result, err := h.service.ProcessWebhook(ctx, req)
	if err != nil {
		if errors.Is(err, webhook.ErrMissingSignature) {
			xerrors.WriteError(ctx, w, xerrors.BadRequest(xerrors.WithMessage("missing signature header")))
			return
		}

		if errors.Is(err, webhook.ErrInvalidSignature) {
			xerrors.WriteError(ctx, w, xerrors.BadRequest(xerrors.WithMessage("invalid signature"), xerrors.WithCause(err)))
			return
		}

		// 503 so Stripe redelivers once the bus is back
		if errors.Is(err, webhook.ErrPublish) {
			xerrors.WriteError(ctx, w, xerrors.ServiceUnavailable(xerrors.WithMessage("failed to relay event"), xerrors.WithCause(err)))
			return
		}

		xerrors.WriteError(ctx, w, xerrors.Internal(xerrors.WithMessage("failed to process webhook"), xerrors.WithCause(err)))
		return
	}

	xhttp.WriteOK(w, webhookResponse{Received: true, Result: result.String()})
}
