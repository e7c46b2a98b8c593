package stripe_webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"
	"go.uber.org/fx"

	cfgpkg "github.com/fatflowers/coursepay/pkg/config"
)

// SignatureHeader is the header the provider signs deliveries with.
const SignatureHeader = "Stripe-Signature"

var (
	ErrMissingSignature    = errors.New("stripe signature header is missing")
	ErrInvalidSignature    = errors.New("stripe signature verification failed")
	ErrSecretNotConfigured = errors.New("stripe webhook secret is not configured")
	ErrInvalidPayload      = errors.New("stripe webhook payload is malformed")
)

type Mode string

const (
	ModeLive Mode = "live"
	ModeTest Mode = "test"
)

func ModeOf(livemode bool) Mode {
	if livemode {
		return ModeLive
	}
	return ModeTest
}

// Verifier authenticates raw webhook deliveries. Live and test deliveries are
// signed with different secrets; the unverified livemode flag only selects
// which secret to try, so a forged flag can at worst fail verification.
type Verifier struct {
	secrets   map[Mode]string
	tolerance time.Duration
}

func NewVerifier(cfg *cfgpkg.Config) *Verifier {
	return &Verifier{
		secrets: map[Mode]string{
			ModeLive: cfg.Stripe.Live.WebhookSecret,
			ModeTest: cfg.Stripe.Test.WebhookSecret,
		},
		tolerance: cfg.Stripe.SignatureTolerance,
	}
}

// envelope is the subset of the event read before verification.
type envelope struct {
	ID       string `json:"id"`
	Livemode *bool  `json:"livemode"`
}

// Verify checks header against the exact payload bytes and returns the
// decoded event.
func (v *Verifier) Verify(payload []byte, header string) (*stripe.Event, error) {
	if header == "" {
		return nil, ErrMissingSignature
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if env.ID == "" || env.Livemode == nil {
		return nil, fmt.Errorf("%w: id and livemode are required", ErrInvalidPayload)
	}

	mode := ModeOf(*env.Livemode)
	secret := v.secrets[mode]
	if secret == "" {
		return nil, fmt.Errorf("%w: mode=%s", ErrSecretNotConfigured, mode)
	}

	event, err := webhook.ConstructEventWithOptions(payload, header, secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	// The signed body must agree with the flag used to pick the secret.
	if event.Livemode != *env.Livemode {
		return nil, fmt.Errorf("%w: livemode mismatch", ErrInvalidSignature)
	}
	return &event, nil
}

var Module = fx.Options(
	fx.Provide(NewVerifier),
)
