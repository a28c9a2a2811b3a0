package diagnosis

import (
	"context"
	"errors"
	"image"
	"image/jpeg"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestClient(t *testing.T, endpoint string, mutate ...func(*Config)) *Client {
	t.Helper()

	nop := zerolog.Nop()
	cfg := Config{EndpointURL: endpoint, Logger: &nop}
	for _, m := range mutate {
		m(&cfg)
	}

	c, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

func jsonHandler(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func TestNewClientValidatesEndpoint(t *testing.T) {
	for _, endpoint := range []string{"", "ftp://example.com/predict", "://bad"} {
		if _, err := NewClient(Config{EndpointURL: endpoint}); err == nil {
			t.Errorf("Expected error for endpoint %q", endpoint)
		}
	}

	c, err := NewClient(Config{EndpointURL: "https://example.com/predict"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if c.size != CanonicalSize || c.quality != JPEGQuality {
		t.Errorf("Expected protocol defaults, got size=%d quality=%f", c.size, c.quality)
	}
}

func TestSubmitSendsSingleImagePart(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}

		mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mediaType != "multipart/form-data" {
			t.Errorf("unexpected content type %q: %v", r.Header.Get("Content-Type"), err)
			return
		}

		reader := multipart.NewReader(r.Body, params["boundary"])
		part, err := reader.NextPart()
		if err != nil {
			t.Errorf("NextPart failed: %v", err)
			return
		}
		if part.FormName() != "image" || part.FileName() != "image.jpg" {
			t.Errorf("unexpected part %q/%q", part.FormName(), part.FileName())
		}

		img, err := jpeg.Decode(part)
		if err != nil {
			t.Errorf("uploaded part is not a JPEG: %v", err)
			return
		}
		if img.Bounds().Dx() != 384 || img.Bounds().Dy() != 384 {
			t.Errorf("Expected 384x384 upload, got %v", img.Bounds())
		}
		if _, err := reader.NextPart(); err != io.EOF {
			t.Errorf("Expected a single part, got %v", err)
		}

		_, _ = io.WriteString(w, `{"prediction": 0.87, "class": "malignant", "confidence": 0.92}`)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	result, err := c.Submit(context.Background(), createTestImage(640, 480))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if result.Class != "malignant" || result.Confidence != 0.92 || result.Prediction != 0.87 {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestSubmitTolerantDecode(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		class      string
		prediction float64
		confidence float64
	}{
		{"string numerics", `{"prediction": "0.87", "class": "malignant", "confidence": "0.92"}`, "malignant", 0.87, 0.92},
		{"bad prediction", `{"prediction": "not-a-number", "class": "benign", "confidence": 0.5}`, "benign", 0, 0.5},
		{"missing numerics", `{"class": "benign"}`, "benign", 0, 0},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			server := httptest.NewServer(jsonHandler(http.StatusOK, test.body))
			defer server.Close()

			result, err := newTestClient(t, server.URL).Submit(context.Background(), createTestImage(50, 50))
			if err != nil {
				t.Fatalf("Submit failed: %v", err)
			}
			if result.Class != test.class || result.Prediction != test.prediction || result.Confidence != test.confidence {
				t.Errorf("unexpected result %+v", result)
			}
		})
	}
}

func TestSubmitDecodingErrors(t *testing.T) {
	for _, body := range []string{`{"prediction": 0.1, "confidence": 0.2}`, `not json`, `{"class": 7}`, `[]`} {
		server := httptest.NewServer(jsonHandler(http.StatusOK, body))

		result, err := newTestClient(t, server.URL).Submit(context.Background(), createTestImage(50, 50))
		server.Close()

		if !errors.Is(err, ErrDecoding) {
			t.Errorf("body %q: expected ErrDecoding, got %v", body, err)
		}
		if result != nil {
			t.Errorf("body %q: expected nil result, got %+v", body, result)
		}
	}
}

func TestSubmitEmptyResponse(t *testing.T) {
	server := httptest.NewServer(jsonHandler(http.StatusOK, ""))
	defer server.Close()

	_, err := newTestClient(t, server.URL).Submit(context.Background(), createTestImage(50, 50))
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("Expected ErrEmptyResponse, got %v", err)
	}
	if KindOf(err) != KindEmptyResponse {
		t.Errorf("Expected KindEmptyResponse, got %v", KindOf(err))
	}
}

func TestSubmitNonSuccessStatusStillDecodes(t *testing.T) {
	server := httptest.NewServer(jsonHandler(http.StatusInternalServerError, `{"prediction": 0.3, "class": "benign", "confidence": 0.7}`))
	defer server.Close()

	result, err := newTestClient(t, server.URL).Submit(context.Background(), createTestImage(50, 50))
	if err != nil {
		t.Fatalf("Expected success despite status 500, got %v", err)
	}
	if result.Class != "benign" {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestSubmitRequireSuccessStatus(t *testing.T) {
	server := httptest.NewServer(jsonHandler(http.StatusBadGateway, `{"prediction": 0.3, "class": "benign", "confidence": 0.7}`))
	defer server.Close()

	c := newTestClient(t, server.URL, func(cfg *Config) { cfg.RequireSuccessStatus = true })
	_, err := c.Submit(context.Background(), createTestImage(50, 50))
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("Expected ErrNetwork, got %v", err)
	}

	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusBadGateway {
		t.Errorf("Expected StatusError with 502, got %v", err)
	}
}

func TestSubmitConnectionRefused(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	addr := listener.Addr().String()
	listener.Close()

	_, err = newTestClient(t, "http://"+addr+"/predict").Submit(context.Background(), createTestImage(50, 50))
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("Expected ErrNetwork, got %v", err)
	}
}

func TestSubmitAbortedMidUpload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 64)
		_, _ = r.Body.Read(buf)

		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Error("response writer does not support hijacking")
			return
		}
		conn, _, err := hj.Hijack()
		if err != nil {
			t.Errorf("hijack failed: %v", err)
			return
		}
		conn.Close()
	}))
	defer server.Close()

	result, err := newTestClient(t, server.URL).Submit(context.Background(), createTestImage(200, 200))
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("Expected ErrNetwork, got %v", err)
	}
	if result != nil {
		t.Errorf("Expected no partial result, got %+v", result)
	}
}

func TestSubmitAbortedMidResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)

		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Error("response writer does not support hijacking")
			return
		}
		conn, bufrw, err := hj.Hijack()
		if err != nil {
			t.Errorf("hijack failed: %v", err)
			return
		}
		_, _ = bufrw.WriteString("HTTP/1.1 200 OK\r\nContent-Type: application/json\r\nContent-Length: 100\r\n\r\n{\"class\": \"ben")
		_ = bufrw.Flush()
		conn.Close()
	}))
	defer server.Close()

	result, err := newTestClient(t, server.URL).Submit(context.Background(), createTestImage(50, 50))
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("Expected ErrNetwork, got %v", err)
	}
	if result != nil {
		t.Errorf("Expected no partial result, got %+v", result)
	}
}

func TestSubmitEncodingErrorSkipsNetwork(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).Submit(context.Background(), image.NewRGBA(image.Rect(0, 0, 0, 0)))
	if !errors.Is(err, ErrEncoding) {
		t.Fatalf("Expected ErrEncoding, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Error("server should not be called when encoding fails")
	}
}

func TestSubmitCanceledContext(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	out := newTestClient(t, server.URL).SubmitAsync(ctx, createTestImage(50, 50))
	cancel()

	select {
	case outcome := <-out:
		if !errors.Is(outcome.Err, ErrNetwork) {
			t.Fatalf("Expected ErrNetwork, got %v", outcome.Err)
		}
		if !errors.Is(outcome.Err, context.Canceled) {
			t.Errorf("Expected context.Canceled cause, got %v", outcome.Err)
		}
		if outcome.Result != nil {
			t.Errorf("Expected nil result, got %+v", outcome.Result)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("SubmitAsync did not complete after cancellation")
	}

	if _, ok := <-out; ok {
		t.Error("Expected outcome channel to be closed after one value")
	}
}

func TestSubmitAsyncDeliversResult(t *testing.T) {
	server := httptest.NewServer(jsonHandler(http.StatusOK, `{"prediction": 0.1, "class": "benign", "confidence": 0.9}`))
	defer server.Close()

	outcome := <-newTestClient(t, server.URL).SubmitAsync(context.Background(), createTestImage(50, 50))
	if outcome.Err != nil {
		t.Fatalf("SubmitAsync failed: %v", outcome.Err)
	}
	if outcome.Result.Confidence != 0.9 {
		t.Errorf("unexpected result %+v", outcome.Result)
	}
}

func TestSubmitObservedPhases(t *testing.T) {
	server := httptest.NewServer(jsonHandler(http.StatusOK, `{"prediction": 0.1, "class": "benign", "confidence": 0.9}`))
	defer server.Close()

	var phases []Phase
	_, err := newTestClient(t, server.URL).SubmitObserved(context.Background(), createTestImage(50, 50), func(p Phase) {
		phases = append(phases, p)
	})
	if err != nil {
		t.Fatalf("SubmitObserved failed: %v", err)
	}

	if len(phases) != 2 || phases[0] != PhaseEncoding || phases[1] != PhaseTransmitting {
		t.Errorf("unexpected phases %v", phases)
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		err      error
		expected string
	}{
		{nil, ""},
		{newError(KindEncoding, errors.New("x")), "Failed to prepare image"},
		{newError(KindEmptyResponse, nil), "No data received"},
		{errors.New("other"), "other"},
	}

	for _, test := range tests {
		if got := UserMessage(test.err); got != test.expected {
			t.Errorf("UserMessage(%v) = %q, expected %q", test.err, got, test.expected)
		}
	}
}

func TestErrorIs(t *testing.T) {
	err := newError(KindDecoding, errors.New("boom"))
	if !errors.Is(err, ErrDecoding) {
		t.Error("Expected errors.Is to match ErrDecoding")
	}
	if errors.Is(err, ErrNetwork) {
		t.Error("errors.Is should not match a different kind")
	}
	if err.Error() != "classification response could not be decoded: boom" {
		t.Errorf("unexpected message %q", err.Error())
	}
}
