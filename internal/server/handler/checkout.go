package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/garrettladley/paygate/internal/bus"
	"github.com/garrettladley/paygate/internal/service/checkout"
	"github.com/garrettladley/paygate/internal/validator"
	"github.com/garrettladley/paygate/internal/xerrors"
	"github.com/garrettladley/paygate/internal/xhttp"
	"github.com/garrettladley/paygate/internal/xslog"
	go_json "github.com/goccy/go-json"
)

const maxCheckoutBodyBytes = 1 << 20

type Checkout struct {
	service checkout.Service
}

func NewCheckout(service checkout.Service) *Checkout {
	return &Checkout{service: service}
}

// HandleCreatePaymentSession handles POST /payments/create-payment-session requests.
func (h *Checkout) HandleCreatePaymentSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := xhttp.ReadBody(w, r, maxCheckoutBodyBytes)
	if err != nil {
		xerrors.WriteError(ctx, w, xerrors.BadRequest(xerrors.WithMessage("failed to read request body"), xerrors.WithCause(err)))
		return
	}

	var req checkout.Request
	if err := go_json.Unmarshal(body, &req); err != nil {
		xerrors.WriteError(ctx, w, xerrors.BadRequest(xerrors.WithMessage("invalid JSON body"), xerrors.WithCause(err)))
		return
	}

	if err := validator.Validate(req); err != nil {
		xerrors.WriteError(ctx, w, err)
		return
	}

	result, err := h.service.CreatePaymentSession(ctx, req)
	if err != nil {
		xerrors.WriteError(ctx, w, checkoutError(err))
		return
	}

	xslog.FromContext(ctx).InfoContext(ctx, "payment session created", xslog.OrderID(req.OrderID))
	xhttp.WriteCreated(w, result)
}

// HandleCreatePaymentSessionMessage answers create.payment.session bus requests
// with the same result and errors as the HTTP route.
func (h *Checkout) HandleCreatePaymentSessionMessage(ctx context.Context, msg bus.Request) (any, error) {
	var req checkout.Request
	if err := go_json.Unmarshal(msg.Data, &req); err != nil {
		return nil, xerrors.BadRequest(xerrors.WithMessage("invalid JSON body"), xerrors.WithCause(err))
	}

	if err := validator.Validate(req); err != nil {
		return nil, err
	}

	result, err := h.service.CreatePaymentSession(ctx, req)
	if err != nil {
		return nil, checkoutError(err)
	}

	xslog.FromContext(ctx).InfoContext(ctx, "payment session created", xslog.OrderID(req.OrderID), xslog.Pattern(msg.Pattern))
	return result, nil
}

func checkoutError(err error) error {
	var verr *checkout.ValidationError
	if errors.As(err, &verr) {
		return xerrors.Validation(verr.Fields)
	}

	var uerr *checkout.UpstreamError
	if errors.As(err, &uerr) {
		if uerr.Timeout {
			return xerrors.GatewayTimeout(xerrors.WithMessage("payment processor timed out"), xerrors.WithCause(err))
		}
		return xerrors.BadGateway(xerrors.WithMessage("payment processor unavailable"), xerrors.WithCause(err))
	}

	return xerrors.Internal(xerrors.WithCause(err))
}
