// Package push delivers Web Push notifications signed with a VAPID key pair.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"github.com/kidandcat/taskmaster/internal/db"
)

// ErrGone matches a DeliveryError whose subscription no longer exists on the
// push service.
var ErrGone = errors.New("subscription gone")

// DeliveryError is a failed push send. Gone failures mean the subscription
// should be discarded; anything else is transient.
type DeliveryError struct {
	StatusCode int
	Gone       bool
	Err        error
}

func (e *DeliveryError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("push delivery: %v", e.Err)
	case e.Gone:
		return fmt.Sprintf("push delivery: subscription gone (status %d)", e.StatusCode)
	default:
		return fmt.Sprintf("push delivery: status %d", e.StatusCode)
	}
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func (e *DeliveryError) Is(target error) bool {
	return target == ErrGone && e.Gone
}

// VAPID is the sender identity for the whole process.
type VAPID struct {
	PublicKey  string
	PrivateKey string
	// Subject is a mailto: or https: contact for the push service operator.
	Subject string
	TTL     int
	Urgency string
}

// Payload is the JSON document the service worker receives.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon,omitempty"`
	Badge string `json:"badge,omitempty"`
	Data  any    `json:"data,omitempty"`
}

type Dispatcher struct {
	vapid  VAPID
	client webpush.HTTPClient
	logger *zap.Logger
}

type Option func(*Dispatcher)

// WithHTTPClient overrides the client used to reach push services.
func WithHTTPClient(c webpush.HTTPClient) Option {
	return func(d *Dispatcher) { d.client = c }
}

func NewDispatcher(vapid VAPID, logger *zap.Logger, opts ...Option) (*Dispatcher, error) {
	if vapid.PublicKey == "" || vapid.PrivateKey == "" {
		return nil, fmt.Errorf("vapid key pair is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	// webpush adds mailto: itself unless the subject is an https URL.
	vapid.Subject = strings.TrimPrefix(vapid.Subject, "mailto:")
	d := &Dispatcher{
		vapid:  vapid,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// PublicKey is handed to browsers as the applicationServerKey.
func (d *Dispatcher) PublicKey() string { return d.vapid.PublicKey }

// Send encrypts payload for sub and posts it to the subscription endpoint.
func (d *Dispatcher) Send(ctx context.Context, sub db.PushSubscription, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	resp, err := webpush.SendNotificationWithContext(ctx, body, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		HTTPClient:      d.client,
		Subscriber:      d.vapid.Subject,
		VAPIDPublicKey:  d.vapid.PublicKey,
		VAPIDPrivateKey: d.vapid.PrivateKey,
		TTL:             d.vapid.TTL,
		Urgency:         webpush.Urgency(d.vapid.Urgency),
	})
	if err != nil {
		return &DeliveryError{Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	derr := &DeliveryError{
		StatusCode: resp.StatusCode,
		Gone:       resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound,
	}
	d.logger.Debug("push rejected",
		zap.Int("status", resp.StatusCode),
		zap.String("endpoint", Redact(sub.Endpoint)),
	)
	return derr
}

// GenerateKeys returns a new base64url VAPID key pair.
func GenerateKeys() (publicKey, privateKey string, err error) {
	privateKey, publicKey, err = webpush.GenerateVAPIDKeys()
	if err != nil {
		return "", "", fmt.Errorf("generate vapid keys: %w", err)
	}
	return publicKey, privateKey, nil
}

// Redact trims an endpoint URL for logs; the full URL is a capability.
func Redact(endpoint string) string {
	if i := strings.Index(endpoint, "://"); i >= 0 {
		if j := strings.IndexByte(endpoint[i+3:], '/'); j >= 0 {
			return endpoint[:i+3+j] + "/…"
		}
	}
	if len(endpoint) > 32 {
		return endpoint[:32] + "…"
	}
	return endpoint
}
