package stripe

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	paywebhook "github.com/garrettladley/paygate/internal/service/webhook"
)

const testSecret = "whsec_test_secret"

func eventBody(r *rand.Rand) []byte {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	id := make([]byte, 1+r.IntN(24))
	for i := range id {
		id[i] = letters[r.IntN(len(letters))]
	}
	return fmt.Appendf(nil,
		`{"id":"evt_%s","object":"event","type":"charge.succeeded","data":{"object":{"id":"ch_%s","metadata":{"orderId":"ord_%d"},"amount":%d}}}`,
		id, id, r.IntN(1_000_000), r.IntN(1_000_000),
	)
}

func TestVerifyRoundTrip(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewPCG(1, 2))
	v := NewVerifier(testSecret)

	for i := range 200 {
		body := eventBody(r)
		header := Sign(body, testSecret, time.Now())

		if _, err := v.Verify(body, header); err != nil {
			t.Fatalf("case %d: Verify(sign(body)) error = %v", i, err)
		}
	}
}

func TestVerifyRejectsBodyMutation(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewPCG(3, 4))
	v := NewVerifier(testSecret)

	for i := range 200 {
		body := eventBody(r)
		header := Sign(body, testSecret, time.Now())

		mutated := append([]byte(nil), body...)
		mutated[r.IntN(len(mutated))] ^= byte(1 + r.IntN(255))

		_, err := v.Verify(mutated, header)
		if !errors.Is(err, paywebhook.ErrInvalidSignature) {
			t.Fatalf("case %d: Verify(mutated body) error = %v, want ErrInvalidSignature", i, err)
		}
	}
}

func TestVerifyRejectsSignatureMutation(t *testing.T) {
	t.Parallel()

	const hexDigits = "0123456789abcdef"
	r := rand.New(rand.NewPCG(5, 6))
	v := NewVerifier(testSecret)

	for i := range 200 {
		body := eventBody(r)
		header := Sign(body, testSecret, time.Now())

		sigStart := strings.Index(header, "v1=") + len("v1=")
		pos := sigStart + r.IntN(len(header)-sigStart)
		mutated := []byte(header)
		for {
			c := hexDigits[r.IntN(len(hexDigits))]
			if c != mutated[pos] {
				mutated[pos] = c
				break
			}
		}

		_, err := v.Verify(body, string(mutated))
		if !errors.Is(err, paywebhook.ErrInvalidSignature) {
			t.Fatalf("case %d: Verify(mutated signature) error = %v, want ErrInvalidSignature", i, err)
		}
	}
}

func TestVerifyErrors(t *testing.T) {
	t.Parallel()

	body := []byte(`{"id":"evt_1","object":"event","type":"charge.succeeded","data":{"object":{"id":"ch_1"}}}`)
	tests := []struct {
		name    string
		body    []byte
		header  string
		wantErr error
	}{
		{
			name:    "wrong secret",
			body:    body,
			header:  Sign(body, "whsec_other", time.Now()),
			wantErr: paywebhook.ErrInvalidSignature,
		},
		{
			name:    "too old",
			body:    body,
			header:  Sign(body, testSecret, time.Now().Add(-time.Hour)),
			wantErr: paywebhook.ErrInvalidSignature,
		},
		{
			name:    "garbage header",
			body:    body,
			header:  "not-a-signature",
			wantErr: paywebhook.ErrInvalidSignature,
		},
		{
			name:    "signed but not json",
			body:    []byte("hello"),
			header:  Sign([]byte("hello"), testSecret, time.Now()),
			wantErr: paywebhook.ErrMalformedEvent,
		},
	}

	v := NewVerifier(testSecret)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := v.Verify(tt.body, tt.header)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Verify() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestVerifyEnvelope(t *testing.T) {
	t.Parallel()

	object := `{"id":"ch_1","metadata":{"orderId":"ord_1"},"receipt_url":"https://pay.stripe.com/receipts/ch_1"}`
	body := []byte(`{"id":"evt_1","object":"event","api_version":"2020-08-27","type":"charge.succeeded","data":{"object":` + object + `}}`)

	got, err := NewVerifier(testSecret).Verify(body, Sign(body, testSecret, time.Now()))
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	want := paywebhook.Envelope{ID: "evt_1", Type: "charge.succeeded", Object: []byte(object)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Verify() mismatch (-want +got):\n%s", diff)
	}
}
