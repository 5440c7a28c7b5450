package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ontohub/internal/platform/models"
)

type memLedger struct {
	mu   sync.Mutex
	rows []*models.Delivery
	err  error
}

func (l *memLedger) Create(ctx context.Context, d *models.Delivery) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.rows = append(l.rows, d)
	return nil
}

func (l *memLedger) all() []*models.Delivery {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*models.Delivery(nil), l.rows...)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func newTestEngine(ledger Ledger) (*Engine, *[]time.Duration) {
	e := NewEngine(ledger, Options{MaxAttempts: 3, InitialBackoff: time.Second})
	var delays []time.Duration
	e.Sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return e, &delays
}

func TestEngine_SignsExactBody(t *testing.T) {
	payload := []byte(`{"event":"ontology.activated","package_id":"p1"}`)

	var gotSig, gotBody, gotEvent, gotDelivery, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		gotSig = r.Header.Get(SignatureHeader)
		gotEvent = r.Header.Get(EventHeader)
		gotDelivery = r.Header.Get(DeliveryHeader)
		gotType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ledger := &memLedger{}
	e, _ := newTestEngine(ledger)

	result := e.Deliver(context.Background(), Request{
		WebhookID:    "wh_1",
		TargetURL:    srv.URL,
		EventType:    models.EventOntologyActivated,
		OntologyCode: "eco",
		PackageID:    "p1",
		Payload:      payload,
		Secret:       "s",
	})

	delivered, ok := result.(Delivered)
	if !ok {
		t.Fatalf("Expected Delivered, got %#v", result)
	}
	if delivered.ResponseStatus != http.StatusOK || delivered.Attempts != 1 {
		t.Errorf("Unexpected result %+v", delivered)
	}
	if gotBody != string(payload) {
		t.Errorf("Body = %s, want %s", gotBody, payload)
	}
	if gotSig != "sha256="+Sign("s", payload) {
		t.Errorf("Signature header = %q", gotSig)
	}
	if gotEvent != models.EventOntologyActivated {
		t.Errorf("Event header = %q", gotEvent)
	}
	if gotType != "application/json" {
		t.Errorf("Content-Type = %q", gotType)
	}

	rows := ledger.all()
	if len(rows) != 1 {
		t.Fatalf("Expected 1 ledger row, got %d", len(rows))
	}
	if rows[0].ID != gotDelivery || rows[0].ID != delivered.ID {
		t.Errorf("Delivery id mismatch: header %s, row %s, result %s", gotDelivery, rows[0].ID, delivered.ID)
	}
	if rows[0].Status != models.DeliverySuccess || rows[0].Payload != string(payload) || rows[0].PackageID != "p1" {
		t.Errorf("Unexpected row %+v", rows[0])
	}
}

func TestEngine_NoSignatureWithoutSecret(t *testing.T) {
	var present bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present = r.Header[SignatureHeader]
	}))
	defer srv.Close()

	e, _ := newTestEngine(&memLedger{})
	e.Deliver(context.Background(), Request{WebhookID: "wh_1", TargetURL: srv.URL, Payload: []byte(`{}`)})

	if present {
		t.Error("Expected no signature header without a secret")
	}
}

func TestEngine_InvalidURLFailsFast(t *testing.T) {
	tests := []struct {
		name   string
		target string
		scheme string
	}{
		{name: "FTP", target: "ftp://example.com", scheme: "ftp"},
		{name: "No Scheme", target: "example.com/hook", scheme: "example.com/hook"},
		{name: "Uppercase", target: "HTTP://example.com", scheme: "HTTP"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := &memLedger{}
			e, delays := newTestEngine(ledger)
			var calls int32
			e.Client = &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
				atomic.AddInt32(&calls, 1)
				return nil, errors.New("unexpected network call")
			})}

			result := e.Deliver(context.Background(), Request{WebhookID: "wh_1", TargetURL: tt.target, Payload: []byte(`{}`)})

			failed, ok := result.(Failed)
			if !ok || failed.Kind != KindInvalidURL {
				t.Fatalf("Expected INVALID_URL failure, got %#v", result)
			}
			if !strings.Contains(failed.Message, "Invalid URL protocol") || !strings.Contains(failed.Message, tt.scheme) {
				t.Errorf("Message %q should name the protocol %q", failed.Message, tt.scheme)
			}
			if calls != 0 || len(*delays) != 0 {
				t.Errorf("Expected no network call and no retry, got %d calls, %d waits", calls, len(*delays))
			}
			rows := ledger.all()
			if len(rows) != 1 || rows[0].Status != models.DeliveryFailure || rows[0].ResponseStatus != nil {
				t.Errorf("Expected one FAILURE row without status, got %+v", rows)
			}
		})
	}
}

func TestEngine_RetriesNon2xx(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, "upstream exploded")
	}))
	defer srv.Close()

	ledger := &memLedger{}
	e, delays := newTestEngine(ledger)

	result := e.Deliver(context.Background(), Request{WebhookID: "wh_1", TargetURL: srv.URL, Payload: []byte(`{}`)})

	failed, ok := result.(Failed)
	if !ok {
		t.Fatalf("Expected Failed, got %#v", result)
	}
	if hits != 3 {
		t.Errorf("Expected 3 attempts, got %d", hits)
	}
	if failed.Kind != KindNon2xx || failed.ResponseStatus == nil || *failed.ResponseStatus != 500 {
		t.Errorf("Unexpected failure %+v", failed)
	}
	if failed.Message != "HTTP 500: upstream exploded" {
		t.Errorf("Message = %q", failed.Message)
	}

	wantDelays := []time.Duration{time.Second, 2 * time.Second}
	if len(*delays) != len(wantDelays) {
		t.Fatalf("Expected waits %v, got %v", wantDelays, *delays)
	}
	for i, d := range wantDelays {
		if (*delays)[i] != d {
			t.Errorf("Wait %d = %v, want %v", i, (*delays)[i], d)
		}
	}

	rows := ledger.all()
	if len(rows) != 1 {
		t.Fatalf("Expected exactly 1 ledger row, got %d", len(rows))
	}
	if rows[0].ResponseStatus == nil || *rows[0].ResponseStatus != 500 || rows[0].Status != models.DeliveryFailure {
		t.Errorf("Unexpected row %+v", rows[0])
	}
}

func TestEngine_TruncatesErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, strings.Repeat("x", 500))
	}))
	defer srv.Close()

	e, _ := newTestEngine(&memLedger{})
	e.opts.MaxAttempts = 1

	failed := e.Deliver(context.Background(), Request{TargetURL: srv.URL, Payload: []byte(`{}`)}).(Failed)
	if want := "HTTP 502: " + strings.Repeat("x", 200); failed.Message != want {
		t.Errorf("Message length %d, want %d", len(failed.Message), len(want))
	}
}

func TestEngine_StopsOnFirstSuccess(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	ledger := &memLedger{}
	e, _ := newTestEngine(ledger)

	result := e.Deliver(context.Background(), Request{TargetURL: srv.URL, Payload: []byte(`{}`)})
	delivered, ok := result.(Delivered)
	if !ok || delivered.Attempts != 2 || delivered.ResponseStatus != http.StatusAccepted {
		t.Fatalf("Expected delivery on second attempt, got %#v", result)
	}
	if hits != 2 {
		t.Errorf("Expected 2 hits, got %d", hits)
	}
	if rows := ledger.all(); len(rows) != 1 || rows[0].Status != models.DeliverySuccess {
		t.Errorf("Expected one SUCCESS row, got %+v", rows)
	}
}

func TestEngine_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	target := srv.URL
	srv.Close()

	ledger := &memLedger{}
	e, delays := newTestEngine(ledger)

	failed, ok := e.Deliver(context.Background(), Request{TargetURL: target, Payload: []byte(`{}`)}).(Failed)
	if !ok || failed.Kind != KindTransport || failed.ResponseStatus != nil {
		t.Fatalf("Expected transport failure, got %#v", failed)
	}
	if failed.Attempts != 3 || len(*delays) != 2 {
		t.Errorf("Expected 3 attempts with 2 waits, got %d attempts, %d waits", failed.Attempts, len(*delays))
	}
	if rows := ledger.all(); len(rows) != 1 {
		t.Errorf("Expected 1 row, got %d", len(rows))
	}
}

func TestEngine_Multipart(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "eco-v2.zip")
	if err := os.WriteFile(archive, []byte("PK\x03\x04zipdata"), 0644); err != nil {
		t.Fatal(err)
	}
	payload := []byte(`{"event":"ontology.activated","package_id":"p2"}`)

	var gotPayload, gotFile, gotFileType, gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotPayload = r.FormValue("payload")
		gotSig = r.Header.Get(SignatureHeader)
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		gotFile = string(data)
		gotFileType = hdr.Header.Get("Content-Type")
	}))
	defer srv.Close()

	e, _ := newTestEngine(&memLedger{})
	result := e.Deliver(context.Background(), Request{
		TargetURL:      srv.URL,
		Payload:        payload,
		Secret:         "s",
		AttachmentPath: archive,
	})

	if _, ok := result.(Delivered); !ok {
		t.Fatalf("Expected Delivered, got %#v", result)
	}
	if gotPayload != string(payload) {
		t.Errorf("payload field = %q", gotPayload)
	}
	if gotFile != "PK\x03\x04zipdata" {
		t.Errorf("file field = %q", gotFile)
	}
	if gotFileType != "application/zip" {
		t.Errorf("file content type = %q", gotFileType)
	}
	if !Verify("s", []byte(gotPayload), gotSig) {
		t.Error("Signature does not cover the payload field")
	}
}

func TestEngine_MissingAttachmentFallsBackToJSON(t *testing.T) {
	var gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("Content-Type")
	}))
	defer srv.Close()

	e, _ := newTestEngine(&memLedger{})
	for _, path := range []string{filepath.Join(t.TempDir(), "missing.zip"), t.TempDir()} {
		e.Deliver(context.Background(), Request{TargetURL: srv.URL, Payload: []byte(`{}`), AttachmentPath: path})
		if gotType != "application/json" {
			t.Errorf("%s: Content-Type = %q, want application/json", path, gotType)
		}
	}
}

func TestEngine_PersistErrorDoesNotChangeResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	e, _ := newTestEngine(&memLedger{err: errors.New("database is locked")})
	if _, ok := e.Deliver(context.Background(), Request{TargetURL: srv.URL, Payload: []byte(`{}`)}).(Delivered); !ok {
		t.Error("Expected Delivered despite ledger failure")
	}
}

func TestEngine_Reject(t *testing.T) {
	ledger := &memLedger{}
	e, _ := newTestEngine(ledger)

	result := e.Reject(context.Background(), Request{WebhookID: "wh_1", OntologyCode: "eco", Payload: []byte(`{}`)}, errors.New("queue full"))
	failed, ok := result.(Failed)
	if !ok || failed.Kind != KindDispatchRejected {
		t.Fatalf("Expected DISPATCH_REJECTED, got %#v", result)
	}
	rows := ledger.all()
	if len(rows) != 1 || rows[0].Status != models.DeliveryFailure || rows[0].ID != failed.ID {
		t.Errorf("Expected one FAILURE row, got %+v", rows)
	}
}

type outcomeRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *outcomeRecorder) RecordDelivery(status, kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, status+"/"+kind)
}

func TestEngine_RecordsOutcomeByKind(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer ok.Close()
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer broken.Close()

	rec := &outcomeRecorder{}
	e, _ := newTestEngine(&memLedger{})
	e.Recorder = rec

	e.Deliver(context.Background(), Request{WebhookID: "wh_1", TargetURL: ok.URL, Payload: []byte(`{}`)})
	e.Deliver(context.Background(), Request{WebhookID: "wh_2", TargetURL: broken.URL, Payload: []byte(`{}`)})
	e.Deliver(context.Background(), Request{WebhookID: "wh_3", TargetURL: "ftp://example.com", Payload: []byte(`{}`)})
	e.Reject(context.Background(), Request{WebhookID: "wh_4", Payload: []byte(`{}`)}, errors.New("queue full"))

	want := []string{"SUCCESS/", "FAILURE/NON_2XX_RESPONSE", "FAILURE/INVALID_URL", "FAILURE/DISPATCH_REJECTED"}
	if len(rec.outcomes) != len(want) {
		t.Fatalf("Expected %d outcomes, got %v", len(want), rec.outcomes)
	}
	for i := range want {
		if rec.outcomes[i] != want[i] {
			t.Errorf("Outcome %d: expected %s, got %s", i, want[i], rec.outcomes[i])
		}
	}
}

func TestExponentialRetryPolicy(t *testing.T) {
	p := ExponentialRetryPolicy{Initial: time.Second, Max: 5 * time.Second}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := p.NextDelay(i + 1); got != w {
			t.Errorf("NextDelay(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestSummarize(t *testing.T) {
	status := 500
	tests := []struct {
		name   string
		result Result
		want   models.DeliveryStatus
	}{
		{name: "Delivered", result: Delivered{ID: "dlv_1", ResponseStatus: 200}, want: models.DeliverySuccess},
		{name: "Failed", result: Failed{ID: "dlv_2", Kind: KindNon2xx, ResponseStatus: &status, Message: "HTTP 500: x"}, want: models.DeliveryFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Summarize(tt.result)
			if s.Status != tt.want || s.DeliveryID != tt.result.DeliveryID() {
				t.Errorf("Unexpected summary %+v", s)
			}
			if tt.want == models.DeliveryFailure && (s.ErrorMessage == nil || *s.ErrorMessage != "HTTP 500: x") {
				t.Errorf("Expected error message in summary, got %+v", s)
			}
		})
	}
}
