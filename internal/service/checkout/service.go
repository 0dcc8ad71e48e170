package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/garrettladley/paygate/internal/xslog"
)

const DefaultTimeout = 10 * time.Second

type Config struct {
	SuccessURL string
	CancelURL  string
	Timeout    time.Duration
}

var _ Service = (*Processor)(nil)

type Processor struct {
	sessions   SessionCreator
	successURL string
	cancelURL  string
	timeout    time.Duration
}

func NewProcessor(sessions SessionCreator, cfg Config) *Processor {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Processor{
		sessions:   sessions,
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
		timeout:    timeout,
	}
}

func (p *Processor) CreatePaymentSession(ctx context.Context, req Request) (Result, error) {
	items, err := Translate(req)
	if err != nil {
		return Result{}, err
	}

	ctx = xslog.WithAttrs(ctx, xslog.OrderID(items.OrderID))
	logger := xslog.FromContext(ctx)

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	session, err := p.sessions.CreateSession(callCtx, items, p.successURL, p.cancelURL)
	if err != nil {
		timeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded)
		return Result{}, &UpstreamError{Timeout: timeout, Cause: err}
	}

	logger.InfoContext(ctx, "created checkout session",
		xslog.SessionID(session.ID),
		xslog.Count(len(items.Items)),
		xslog.Duration(time.Since(start)),
	)

	return Result{
		CancelURL:  session.CancelURL,
		SuccessURL: session.SuccessURL,
		URL:        session.URL,
	}, nil
}
