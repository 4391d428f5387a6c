package dashboard

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"lst-tools/blur"
	"lst-tools/job"
)

func fakeRunner(req job.Request) (job.Report, error) {
	if req.Size%2 == 0 {
		return job.Report{}, fmt.Errorf("%w: even size", blur.ErrInvalidParameter)
	}
	if req.Device == "gpu" {
		return job.Report{}, &blur.DeviceError{Device: blur.Accelerator, Op: "detect", Err: errors.New("no adapter")}
	}
	return job.Report{
		Source: job.SyntheticName,
		Width:  req.Width,
		Height: req.Height,
		Result: blur.Result{KernelSize: req.Size, Sigma: req.Sigma, Device: blur.GeneralPurpose},
	}, nil
}

func TestHandleBenchmark(t *testing.T) {
	srv := httptest.NewServer(NewServer(fakeRunner, Config{}).Handler())
	defer srv.Close()

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"defaults", `{"width": 32}`, http.StatusOK},
		{"even size", `{"size": 10}`, http.StatusBadRequest},
		{"malformed", `{"size": `, http.StatusBadRequest},
		{"device failure", `{"device": "gpu"}`, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/benchmark", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Errorf("status %d, want %d", resp.StatusCode, tt.status)
			}
		})
	}
}

func TestHandleBenchmarkReport(t *testing.T) {
	srv := httptest.NewServer(NewServer(fakeRunner, Config{}).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/benchmark", "application/json", strings.NewReader(`{"width": 32, "size": 5}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var got map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got["width"] != 32.0 || got["height"] != float64(job.DefaultHeight) || got["kernel_size"] != 5.0 || got["sigma"] != job.DefaultSigma {
		t.Errorf("got %v", got)
	}
}

func TestBroadcastReachesWebsocketClients(t *testing.T) {
	s := NewServer(fakeRunner, Config{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for s.bc.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	resp, err := http.Post(srv.URL+"/benchmark", "application/json", strings.NewReader(`{"size": 3}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatal(err)
	}
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(msg, &got); err != nil {
		t.Fatal(err)
	}
	if got["torch_device"] != blur.GeneralPurposeID || got["kernel_size"] != 3.0 {
		t.Errorf("got %s", msg)
	}
}

func TestHandleBenchmarkSurvivesPanickingRunner(t *testing.T) {
	runner := func(req job.Request) (job.Report, error) {
		if req.Size == 7 {
			panic("device lost mid-run")
		}
		return fakeRunner(req)
	}
	srv := httptest.NewServer(NewServer(runner, Config{}).Handler())
	defer srv.Close()
	client := &http.Client{Timeout: 2 * time.Second}

	for _, tt := range []struct {
		body   string
		status int
	}{
		{`{"size": 7}`, http.StatusInternalServerError},
		{`{"size": 3}`, http.StatusOK},
	} {
		resp, err := client.Post(srv.URL+"/benchmark", "application/json", strings.NewReader(tt.body))
		if err != nil {
			t.Fatalf("%s: %v", tt.body, err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.status {
			t.Errorf("%s: status %d, want %d", tt.body, resp.StatusCode, tt.status)
		}
	}
}

func TestHandleBenchmarkLimits(t *testing.T) {
	var ran []job.Request
	runner := func(req job.Request) (job.Report, error) {
		ran = append(ran, req)
		return fakeRunner(req)
	}
	dataDir := t.TempDir()

	tests := []struct {
		name   string
		cfg    Config
		body   string
		status int
	}{
		{"within default cap", Config{}, `{"width": 64, "height": 64}`, http.StatusOK},
		{"over default cap", Config{}, `{"width": 5000, "height": 5000}`, http.StatusBadRequest},
		{"over custom cap", Config{MaxCells: 100}, `{"width": 11, "height": 10}`, http.StatusBadRequest},
		{"at custom cap", Config{MaxCells: 100}, `{"width": 10, "height": 10}`, http.StatusOK},
		{"overflowing shape", Config{}, `{"width": 4294967296, "height": 4294967296}`, http.StatusBadRequest},
		{"zero width", Config{}, `{"width": 0}`, http.StatusBadRequest},
		{"path without data dir", Config{}, `{"path": "lst.tif"}`, http.StatusBadRequest},
		{"network path", Config{DataDir: "/"}, `{"path": "/vsicurl/http://example.com/lst.tif"}`, http.StatusBadRequest},
		{"missing raster", Config{DataDir: dataDir}, `{"path": "../../etc/lst.tif"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ran = nil
			srv := httptest.NewServer(NewServer(runner, tt.cfg).Handler())
			defer srv.Close()

			resp, err := http.Post(srv.URL+"/benchmark", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Errorf("status %d, want %d", resp.StatusCode, tt.status)
			}
			if tt.status == http.StatusBadRequest && len(ran) != 0 {
				t.Errorf("rejected request reached the runner: %+v", ran)
			}
		})
	}
}

func TestResolvePath(t *testing.T) {
	tests := []struct {
		dir, path, want string
	}{
		{"/data", "lst.tif", "/data/lst.tif"},
		{"/data", "/lst.tif", "/data/lst.tif"},
		{"/data", "../../etc/passwd", "/data/etc/passwd"},
		{"/data", "a/../../b.tif", "/data/b.tif"},
		{"/data", "/vsicurl/http://host/x.tif", "/data/vsicurl/http:/host/x.tif"},
	}
	for _, tt := range tests {
		if got := resolvePath(tt.dir, tt.path); got != tt.want {
			t.Errorf("resolvePath(%q, %q) = %q, want %q", tt.dir, tt.path, got, tt.want)
		}
	}
}

func TestHandleBenchmarkKeepsExplicitSeedZero(t *testing.T) {
	var seeds []int64
	runner := func(req job.Request) (job.Report, error) {
		seeds = append(seeds, req.Seed)
		return fakeRunner(req)
	}
	srv := httptest.NewServer(NewServer(runner, Config{}).Handler())
	defer srv.Close()

	for _, body := range []string{`{"seed": 0}`, `{}`} {
		resp, err := http.Post(srv.URL+"/benchmark", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
	}
	if want := []int64{0, job.DefaultSeed}; !reflect.DeepEqual(seeds, want) {
		t.Errorf("got seeds %v, want %v", seeds, want)
	}
}
