package webhooks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"ontohub/internal/platform/config"
	"ontohub/internal/platform/models"
)

const (
	EventHeader    = "X-OntoHub-Event"
	DeliveryHeader = "X-OntoHub-Delivery"

	errorSnippetLen = 200
)

// Request describes one delivery to one webhook.
type Request struct {
	WebhookID    string
	TargetURL    string
	EventType    string
	OntologyCode string
	PackageID    string
	// Payload is sent and signed byte for byte.
	Payload []byte
	Secret  string
	// AttachmentPath switches the body to multipart when it names a regular file.
	AttachmentPath string
}

// Ledger persists the terminal row of a delivery.
type Ledger interface {
	Create(ctx context.Context, d *models.Delivery) error
}

type Options struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	UserAgent      string
}

func OptionsFromConfig(cfg config.WebhooksConfig) Options {
	return Options{
		MaxAttempts:    cfg.MaxAttempts,
		InitialBackoff: cfg.InitialBackoff,
		ConnectTimeout: cfg.ConnectTimeout,
		RequestTimeout: cfg.RequestTimeout,
		UserAgent:      cfg.UserAgent,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = time.Second
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 5 * time.Second
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 30 * time.Second
	}
	if o.UserAgent == "" {
		o.UserAgent = "OntoHub-Webhook"
	}
	return o
}

// RetryPolicy returns the wait before the attempt following attempt.
type RetryPolicy interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialRetryPolicy doubles Initial after every attempt, capped at Max.
type ExponentialRetryPolicy struct {
	Initial time.Duration
	Max     time.Duration
}

func (p ExponentialRetryPolicy) NextDelay(attempt int) time.Duration {
	initial := p.Initial
	if initial <= 0 {
		initial = time.Second
	}
	maximum := p.Max
	if maximum <= 0 {
		maximum = time.Minute
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maximum {
			return maximum
		}
	}
	return delay
}

// Recorder observes terminal delivery outcomes. kind is empty on success.
type Recorder interface {
	RecordDelivery(status, kind string)
}

// Engine performs signed HTTP deliveries with bounded retries and records
// exactly one ledger row per Deliver call.
type Engine struct {
	ledger Ledger
	opts   Options

	Client      *http.Client
	RetryPolicy RetryPolicy
	// Sleep waits between attempts; it returns early with ctx.Err().
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
	// Recorder is optional.
	Recorder Recorder
}

func NewEngine(ledger Ledger, opts Options) *Engine {
	opts = opts.withDefaults()

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   opts.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.TLSHandshakeTimeout = opts.ConnectTimeout

	return &Engine{
		ledger: ledger,
		opts:   opts,
		Client: &http.Client{
			Timeout:   opts.RequestTimeout,
			Transport: transport,
		},
		RetryPolicy: ExponentialRetryPolicy{Initial: opts.InitialBackoff},
		Sleep:       sleepContext,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Deliver runs the full attempt sequence for req and returns its terminal
// result. Retries of one target are strictly sequential.
func (e *Engine) Deliver(ctx context.Context, req Request) Result {
	id := newDeliveryID()
	target := strings.TrimSpace(req.TargetURL)
	logger := log.With().
		Str("delivery_id", id).
		Str("webhook_id", req.WebhookID).
		Str("target_url", target).
		Str("event", req.EventType).
		Logger()

	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		result := Failed{
			ID:      id,
			Kind:    KindInvalidURL,
			Message: fmt.Sprintf("Invalid URL protocol: %q", schemeOf(target)),
		}
		logger.Warn().Str("kind", string(result.Kind)).Msg(result.Message)
		e.record(ctx, req, result)
		return result
	}

	attachment := regularFile(req.AttachmentPath)

	var result Result
	for attempt := 1; attempt <= e.opts.MaxAttempts; attempt++ {
		result = e.attempt(ctx, id, target, req, attachment, attempt)
		if _, ok := result.(Delivered); ok {
			break
		}

		failed := result.(Failed)
		logger.Warn().
			Int("attempt", attempt).
			Str("kind", string(failed.Kind)).
			Str("error", failed.Message).
			Msg("Webhook delivery attempt failed")

		if attempt == e.opts.MaxAttempts {
			break
		}
		if err := e.Sleep(ctx, e.RetryPolicy.NextDelay(attempt)); err != nil {
			logger.Warn().Err(err).Int("attempt", attempt).Msg("Webhook retries abandoned")
			break
		}
	}

	switch r := result.(type) {
	case Delivered:
		logger.Info().Int("status", r.ResponseStatus).Int("attempts", r.Attempts).Msg("Webhook delivered")
	case Failed:
		logger.Error().Str("kind", string(r.Kind)).Int("attempts", r.Attempts).Str("error", r.Message).Msg("Webhook delivery failed")
	}

	e.record(ctx, req, result)
	return result
}

// Reject records a delivery that could not be scheduled at all.
func (e *Engine) Reject(ctx context.Context, req Request, cause error) Result {
	result := Failed{
		ID:      newDeliveryID(),
		Kind:    KindDispatchRejected,
		Message: fmt.Sprintf("delivery not scheduled: %v", cause),
	}
	log.Error().
		Str("delivery_id", result.ID).
		Str("webhook_id", req.WebhookID).
		Str("kind", string(result.Kind)).
		Err(cause).
		Msg("Webhook delivery rejected")
	e.record(ctx, req, result)
	return result
}

func (e *Engine) attempt(ctx context.Context, id, target string, req Request, attachment string, n int) Result {
	body, contentType := e.body(req.Payload, attachment)
	defer body.Close()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, body)
	if err != nil {
		return Failed{ID: id, Kind: KindTransport, Message: err.Error(), Attempts: n}
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("User-Agent", e.opts.UserAgent)
	httpReq.Header.Set(EventHeader, req.EventType)
	httpReq.Header.Set(DeliveryHeader, id)
	if req.Secret != "" {
		httpReq.Header.Set(SignatureHeader, SignatureValue(req.Secret, req.Payload))
	}

	resp, err := e.Client.Do(httpReq)
	if err != nil {
		return Failed{ID: id, Kind: KindTransport, Message: err.Error(), Attempts: n}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return Delivered{ID: id, ResponseStatus: resp.StatusCode, Attempts: n}
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorSnippetLen*4))
	status := resp.StatusCode
	return Failed{
		ID:             id,
		Kind:           KindNon2xx,
		ResponseStatus: &status,
		Message:        fmt.Sprintf("HTTP %d: %s", status, truncate(string(snippet), errorSnippetLen)),
		Attempts:       n,
	}
}

// body builds a fresh request body for one attempt.
func (e *Engine) body(payload []byte, attachment string) (io.ReadCloser, string) {
	if attachment == "" {
		return io.NopCloser(bytes.NewReader(payload)), "application/json"
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeMultipart(mw, payload, attachment))
	}()
	return pr, mw.FormDataContentType()
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func writeMultipart(mw *multipart.Writer, payload []byte, attachment string) error {
	if err := mw.WriteField("payload", string(payload)); err != nil {
		return err
	}

	f, err := os.Open(attachment)
	if err != nil {
		return err
	}
	defer f.Close()

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(filepath.Base(attachment))))
	h.Set("Content-Type", "application/zip")
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return err
	}
	return mw.Close()
}

func (e *Engine) record(ctx context.Context, req Request, result Result) {
	var kind ErrorKind
	d := &models.Delivery{
		ID:           result.DeliveryID(),
		WebhookID:    req.WebhookID,
		EventType:    req.EventType,
		OntologyCode: req.OntologyCode,
		PackageID:    req.PackageID,
		Payload:      string(req.Payload),
		CreatedAt:    e.Now(),
	}
	switch r := result.(type) {
	case Delivered:
		status := r.ResponseStatus
		d.Status = models.DeliverySuccess
		d.ResponseStatus = &status
	case Failed:
		msg := r.Message
		d.Status = models.DeliveryFailure
		d.ResponseStatus = r.ResponseStatus
		d.ErrorMessage = &msg
		kind = r.Kind
	}
	if e.Recorder != nil {
		e.Recorder.RecordDelivery(string(d.Status), string(kind))
	}

	if err := e.ledger.Create(context.WithoutCancel(ctx), d); err != nil {
		log.Error().
			Err(err).
			Str("kind", "AUDIT_PERSIST_ERROR").
			Str("delivery_id", d.ID).
			Str("webhook_id", d.WebhookID).
			Msg("Failed to record webhook delivery")
	}
}

func newDeliveryID() string {
	return "dlv_" + uuid.New().String()
}

func schemeOf(target string) string {
	if i := strings.Index(target, "://"); i >= 0 {
		return target[:i]
	}
	return target
}

func regularFile(path string) string {
	if path == "" {
		return ""
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return ""
	}
	return path
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
