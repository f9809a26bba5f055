package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joseph-ayodele/cardscan/internal/common"
	"github.com/joseph-ayodele/cardscan/internal/source"
)

const islandResult = `{
  "readResults": [{
    "page": 1,
    "lines": [
      {"boundingBox": [1,2,3,4,5,6,7,8], "text": "Island"},
      {"boundingBox": [10,20,30,20,30,40,10,40], "text": "Ferry 9:30"}
    ]
  }]
}`

// fakeRead scripts the remote read service: one submit endpoint and one operation endpoint
// that answers with the scripted bodies in order, repeating the last one.
type fakeRead struct {
	t *testing.T

	submitStatus int
	submitBody   string
	omitLocation bool

	pollBodies  []string
	pollStatus  int
	onPoll      func(n int)
	submits     atomic.Int32
	polls       atomic.Int32
	mu          sync.Mutex
	lastKey     string
	lastCT      string
	lastPayload []byte
}

func (f *fakeRead) server() *httptest.Server {
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+DefaultAPIPath, func(w http.ResponseWriter, r *http.Request) {
		f.submits.Add(1)
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.lastKey = r.Header.Get(SubscriptionKeyHeader)
		f.lastCT = r.Header.Get("Content-Type")
		f.lastPayload = body
		f.mu.Unlock()

		status := f.submitStatus
		if status == 0 {
			status = http.StatusAccepted
		}
		if status == http.StatusAccepted && !f.omitLocation {
			w.Header().Set(OperationLocationHeader, srv.URL+"/operations/1")
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, f.submitBody)
	})
	mux.HandleFunc("GET /operations/1", func(w http.ResponseWriter, r *http.Request) {
		n := int(f.polls.Add(1))
		if f.onPoll != nil {
			f.onPoll(n)
		}
		if f.pollStatus != 0 {
			w.WriteHeader(f.pollStatus)
			return
		}
		i := min(n-1, len(f.pollBodies)-1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, f.pollBodies[i])
	})
	srv = httptest.NewServer(mux)
	f.t.Cleanup(srv.Close)
	return srv
}

func (f *fakeRead) last() (key, contentType string, payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastKey, f.lastCT, f.lastPayload
}

func newTestClient(t *testing.T, endpoint string, poll PollConfig) *Client {
	t.Helper()
	c, err := NewClient(Config{APIKey: "test-key", Endpoint: endpoint, Poll: poll}, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func fastPoll() PollConfig {
	return PollConfig{Interval: time.Millisecond, MaxAttempts: 60, Backoff: 1}
}

func status(s string) string { return `{"status":"` + s + `"}` }

func succeeded(result string) string {
	return `{"status":"succeeded","analyzeResult":` + result + `}`
}

func TestNewClientRequiresCredentials(t *testing.T) {
	for _, cfg := range []Config{
		{Endpoint: "https://example.test"},
		{APIKey: "k"},
		{APIKey: "  ", Endpoint: "https://example.test"},
	} {
		_, err := NewClient(cfg, nil)
		if !errors.Is(err, common.ErrConfiguration) {
			t.Errorf("NewClient(%+v) err = %v, want ErrConfiguration", cfg, err)
		}
	}
}

func TestNewClientDefaults(t *testing.T) {
	c, err := NewClient(Config{APIKey: "k", Endpoint: "https://example.test/"}, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if got, want := c.cfg.analyzeURL(), "https://example.test/vision/v3.2/read/analyze"; got != want {
		t.Errorf("analyzeURL = %q, want %q", got, want)
	}
	if c.cfg.Poll != DefaultPollConfig() {
		t.Errorf("poll = %+v, want defaults", c.cfg.Poll)
	}
	if c.cfg.SubmitTimeout != 30*time.Second || c.cfg.PollTimeout != 10*time.Second {
		t.Errorf("timeouts = %v/%v", c.cfg.SubmitTimeout, c.cfg.PollTimeout)
	}
}

func TestPollConfigNext(t *testing.T) {
	p := PollConfig{Backoff: 2, MaxInterval: 3 * time.Second}
	if got := p.next(time.Second); got != 2*time.Second {
		t.Errorf("next(1s) = %v", got)
	}
	if got := p.next(2 * time.Second); got != 3*time.Second {
		t.Errorf("next(2s) = %v, want capped 3s", got)
	}
	if got := (PollConfig{Backoff: 1}).next(time.Second); got != time.Second {
		t.Errorf("constant backoff next = %v", got)
	}
}

func TestImageToBoxTextsURL(t *testing.T) {
	f := &fakeRead{t: t, pollBodies: []string{
		status("notStarted"), status("running"), status("running"), succeeded(islandResult),
	}}
	srv := f.server()
	c := newTestClient(t, srv.URL, fastPoll())

	regions, err := c.ImageToBoxTexts(context.Background(), "https://images.example/card.jpg", false)
	if err != nil {
		t.Fatalf("ImageToBoxTexts: %v", err)
	}
	if got := f.polls.Load(); got != 4 {
		t.Errorf("polls = %d, want 4", got)
	}
	if got := f.submits.Load(); got != 1 {
		t.Errorf("submits = %d, want 1", got)
	}
	key, ct, body := f.last()
	if key != "test-key" {
		t.Errorf("subscription key = %q", key)
	}
	if ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}
	var payload map[string]string
	if err := json.Unmarshal(body, &payload); err != nil || payload["url"] != "https://images.example/card.jpg" {
		t.Errorf("payload = %s (%v)", body, err)
	}

	texts := regions.Texts()
	if len(texts) != 2 || texts[0] != "Island" || texts[1] != "Ferry 9:30" {
		t.Fatalf("texts = %v", texts)
	}
	first := regions.Regions()[0].Box().Flat()
	want := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	for i := range want {
		if first[i] != want[i] {
			t.Fatalf("box = %v, want %v", first, want)
		}
	}
}

func TestSubmitBytesAsOctetStream(t *testing.T) {
	f := &fakeRead{t: t, pollBodies: []string{succeeded(`{"readResults":[]}`)}}
	srv := f.server()
	c := newTestClient(t, srv.URL, fastPoll())

	data := []byte("\x89PNG\r\n\x1a\nnot-really-a-png")
	regions, err := c.Recognize(context.Background(), source.FromBytes(data), time.Now())
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if regions.Len() != 0 {
		t.Errorf("regions = %d, want 0", regions.Len())
	}
	_, ct, body := f.last()
	if ct != "application/octet-stream" {
		t.Errorf("content type = %q", ct)
	}
	if string(body) != string(data) {
		t.Errorf("payload not sent verbatim")
	}
}

func TestAwaitTimesOutAfterMaxAttempts(t *testing.T) {
	f := &fakeRead{t: t, pollBodies: []string{status("running")}}
	srv := f.server()
	c := newTestClient(t, srv.URL, fastPoll())

	_, err := c.ImageToBoxTexts(context.Background(), "https://images.example/a.png", false)
	if !errors.Is(err, common.ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if got := f.polls.Load(); got != 60 {
		t.Errorf("polls = %d, want 60", got)
	}
}

func TestAwaitRemoteFailure(t *testing.T) {
	f := &fakeRead{t: t, pollBodies: []string{
		status("running"), `{"status":"failed","error":{"message":"bad image"}}`,
	}}
	srv := f.server()
	c := newTestClient(t, srv.URL, fastPoll())

	_, err := c.ImageToBoxTexts(context.Background(), "https://images.example/a.png", false)
	var failed *common.ServiceFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("err = %v, want ServiceFailedError", err)
	}
	if failed.Message != "bad image" {
		t.Errorf("message = %q", failed.Message)
	}
	if !errors.Is(err, common.ErrServiceFailed) {
		t.Errorf("errors.Is(ErrServiceFailed) = false")
	}
}

func TestAwaitRemoteFailureDefaultMessage(t *testing.T) {
	f := &fakeRead{t: t, pollBodies: []string{status("failed")}}
	srv := f.server()
	c := newTestClient(t, srv.URL, fastPoll())

	_, err := c.ImageToBoxTexts(context.Background(), "https://images.example/a.png", false)
	var failed *common.ServiceFailedError
	if !errors.As(err, &failed) || failed.Message != "Operation failed" {
		t.Fatalf("err = %v", err)
	}
}

func TestSubmitRejected(t *testing.T) {
	f := &fakeRead{t: t,
		submitStatus: http.StatusBadRequest,
		submitBody:   `{"error":{"code":"InvalidImageUrl","message":"Image URL is badly formatted."}}`,
	}
	srv := f.server()
	c := newTestClient(t, srv.URL, fastPoll())

	_, err := c.ImageToBoxTexts(context.Background(), "https://images.example/a.png", false)
	var rejected *common.ServiceRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("err = %v, want ServiceRejectedError", err)
	}
	if rejected.StatusCode != 400 || rejected.Code != "InvalidImageUrl" {
		t.Errorf("rejected = %+v", rejected)
	}
	if f.polls.Load() != 0 {
		t.Errorf("polled after rejection")
	}
}

func TestSubmitNon202SuccessIsRejected(t *testing.T) {
	f := &fakeRead{t: t, submitStatus: http.StatusOK, submitBody: "ok"}
	srv := f.server()
	c := newTestClient(t, srv.URL, fastPoll())

	_, err := c.ImageToBoxTexts(context.Background(), "https://images.example/a.png", false)
	if !errors.Is(err, common.ErrServiceRejected) {
		t.Fatalf("err = %v, want ErrServiceRejected", err)
	}
	if f.polls.Load() != 0 {
		t.Errorf("polls = %d, want 0", f.polls.Load())
	}
}

func TestSubmitMissingOperationLocation(t *testing.T) {
	f := &fakeRead{t: t, omitLocation: true}
	srv := f.server()
	c := newTestClient(t, srv.URL, fastPoll())

	_, err := c.ImageToBoxTexts(context.Background(), "https://images.example/a.png", false)
	if !errors.Is(err, common.ErrMissingOperationHandle) {
		t.Fatalf("err = %v, want ErrMissingOperationHandle", err)
	}
	if !errors.Is(err, common.ErrServiceRejected) {
		t.Errorf("missing handle should also match ErrServiceRejected")
	}
}

func TestAwaitUnknownStatus(t *testing.T) {
	f := &fakeRead{t: t, pollBodies: []string{status("paused")}}
	srv := f.server()
	c := newTestClient(t, srv.URL, fastPoll())

	_, err := c.ImageToBoxTexts(context.Background(), "https://images.example/a.png", false)
	var unknown *common.UnknownStatusError
	if !errors.As(err, &unknown) || unknown.Status != "paused" {
		t.Fatalf("err = %v, want UnknownStatusError(paused)", err)
	}
	if f.polls.Load() != 1 {
		t.Errorf("polls = %d, want 1", f.polls.Load())
	}
}

func TestAwaitPollHTTPErrorIsTransport(t *testing.T) {
	f := &fakeRead{t: t, pollStatus: http.StatusInternalServerError}
	srv := f.server()
	c := newTestClient(t, srv.URL, fastPoll())

	_, err := c.ImageToBoxTexts(context.Background(), "https://images.example/a.png", false)
	if !errors.Is(err, common.ErrTransport) {
		t.Fatalf("err = %v, want ErrTransport", err)
	}
}

func TestSubmitTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c := newTestClient(t, srv.URL, fastPoll())

	src, err := source.Classify("https://images.example/a.png", false)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	_, err = c.Submit(context.Background(), src)
	if !errors.Is(err, common.ErrTransport) {
		t.Fatalf("err = %v, want ErrTransport", err)
	}
	if common.CodeOf(err) != common.CodeTransport {
		t.Errorf("code = %q", common.CodeOf(err))
	}
}

func TestAwaitTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c := newTestClient(t, srv.URL, fastPoll())

	_, err := c.Await(context.Background(), JobHandle{OperationURL: srv.URL + "/operations/1", SubmittedAt: time.Now()})
	if !errors.Is(err, common.ErrTransport) {
		t.Fatalf("err = %v, want ErrTransport", err)
	}
}

func TestLogImageInfoWarnsOnOversizedUnknownPayload(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	c, err := NewClient(Config{APIKey: "k", Endpoint: "https://example.test"}, logger)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	c.logImageInfo(source.FromBytes(make([]byte, source.MaxBytes+1)))
	out := buf.String()
	if !strings.Contains(out, "vision.submit.inspect_failed") {
		t.Errorf("missing inspect failure log:\n%s", out)
	}
	if !strings.Contains(out, "vision.submit.image_limit") {
		t.Errorf("missing size warning:\n%s", out)
	}
}

func TestAwaitMalformedBodies(t *testing.T) {
	cases := map[string]string{
		"not json":               `<html>`,
		"status wrong type":      `{"status":5}`,
		"succeeded no result":    `{"status":"succeeded"}`,
		"short bounding box":     succeeded(`{"readResults":[{"lines":[{"boundingBox":[1,2,3],"text":"x"}]}]}`),
		"odd bounding box":       succeeded(`{"readResults":[{"lines":[{"boundingBox":[1,2,3,4,5,6,7,8,9],"text":"x"}]}]}`),
		"text wrong type":        succeeded(`{"readResults":[{"lines":[{"boundingBox":[1,2,3,4,5,6,7,8],"text":7}]}]}`),
		"readResults not a list": succeeded(`{"readResults":"nope"}`),
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			f := &fakeRead{t: t, pollBodies: []string{body}}
			srv := f.server()
			c := newTestClient(t, srv.URL, fastPoll())
			_, err := c.ImageToBoxTexts(context.Background(), "https://images.example/a.png", false)
			if !errors.Is(err, common.ErrMalformedResponse) {
				t.Fatalf("err = %v, want ErrMalformedResponse", err)
			}
		})
	}
}

func TestAwaitCallerCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := &fakeRead{t: t, pollBodies: []string{status("running")}}
	f.onPoll = func(n int) {
		if n == 2 {
			cancel()
		}
	}
	srv := f.server()
	c := newTestClient(t, srv.URL, PollConfig{Interval: 5 * time.Millisecond, MaxAttempts: 60, Backoff: 1})

	_, err := c.ImageToBoxTexts(ctx, "https://images.example/a.png", false)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if got := f.polls.Load(); got > 3 {
		t.Errorf("polls = %d after cancel", got)
	}
}

func TestAwaitCallerDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	f := &fakeRead{t: t, pollBodies: []string{status("running")}}
	srv := f.server()
	c := newTestClient(t, srv.URL, PollConfig{Interval: 10 * time.Millisecond, MaxAttempts: 1000, Backoff: 1})

	_, err := c.ImageToBoxTexts(ctx, "https://images.example/a.png", false)
	if !errors.Is(err, common.ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("deadline cause not reachable: %v", err)
	}
}

func TestImageToBoxTextsSourceErrorsSkipNetwork(t *testing.T) {
	f := &fakeRead{t: t}
	srv := f.server()
	c := newTestClient(t, srv.URL, fastPoll())

	_, err := c.ImageToBoxTexts(context.Background(), "/definitely/not/here.png", false)
	if !errors.Is(err, common.ErrSourceNotFound) {
		t.Fatalf("err = %v, want ErrSourceNotFound", err)
	}
	if f.submits.Load() != 0 {
		t.Errorf("submitted despite source error")
	}
}

func TestParseAnalyzeResultSkipsIncompleteLines(t *testing.T) {
	data := `{"readResults":[
		{"lines":[{"text":"no box"},{"boundingBox":[0,0,1,0,1,1,0,1]}]},
		{"lines":null},
		{"lines":[{"boundingBox":[0,0,2,0,2,2,0,2],"text":"kept"}]}
	]}`
	regions, err := ParseAnalyzeResult([]byte(data))
	if err != nil {
		t.Fatalf("ParseAnalyzeResult: %v", err)
	}
	if got := strings.Join(regions.Texts(), ","); got != "kept" {
		t.Errorf("texts = %q", got)
	}
}

func TestParseAnalyzeResultSkipsNullFields(t *testing.T) {
	cases := map[string]string{
		"null box":  `{"readResults":[{"lines":[{"boundingBox":null,"text":"a"},{"boundingBox":[0,0,10,0,10,10,0,10],"text":"Island"}]}]}`,
		"null text": `{"readResults":[{"lines":[{"boundingBox":[0,0,1,0,1,1,0,1],"text":null},{"boundingBox":[0,0,10,0,10,10,0,10],"text":"Island"}]}]}`,
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			regions, err := ParseAnalyzeResult([]byte(data))
			if err != nil {
				t.Fatalf("ParseAnalyzeResult: %v", err)
			}
			if regions.Len() != 1 || regions.Texts()[0] != "Island" {
				t.Errorf("texts = %v, want [Island]", regions.Texts())
			}
		})
	}
}

func TestParseAnalyzeResultEmpty(t *testing.T) {
	for _, data := range []string{`{}`, `{"readResults":[]}`, `{"readResults":null}`, `{"readResults":[{"lines":[]}]}`} {
		regions, err := ParseAnalyzeResult([]byte(data))
		if err != nil {
			t.Fatalf("ParseAnalyzeResult(%s): %v", data, err)
		}
		if regions.Len() != 0 {
			t.Errorf("ParseAnalyzeResult(%s) len = %d", data, regions.Len())
		}
	}
}
