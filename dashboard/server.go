// Package dashboard serves benchmarks over HTTP and streams their reports to
// websocket clients.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"lst-tools/blur"
	"lst-tools/job"
)

type Runner func(job.Request) (job.Report, error)

// DefaultMaxCells bounds the grid a single request may benchmark.
const DefaultMaxCells = 4096 * 4096

const maxBodyBytes = 1 << 16

// Config limits what clients may ask of the server.
type Config struct {
	// DataDir is the directory request paths are resolved under. Requests
	// naming a path are refused when it is empty.
	DataDir string
	// MaxCells caps width x height of the benchmarked grid. DefaultMaxCells
	// when zero.
	MaxCells int
}

type Server struct {
	bc  *Broadcaster
	run Runner
	cfg Config
	// Benchmarks own their device for the whole call, so they run one at a time.
	mu sync.Mutex
}

func NewServer(run Runner, cfg Config) *Server {
	if cfg.MaxCells <= 0 {
		cfg.MaxCells = DefaultMaxCells
	}
	return &Server{bc: NewBroadcaster(), run: run, cfg: cfg}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /benchmark", s.HandleBenchmark)
	mux.HandleFunc("GET /ws", s.bc.HandleWS)
	return mux
}

// HandleBenchmark runs the JSON request in the body and answers with the
// report, which is also broadcast. Fields left out of the body take their
// defaults.
func (s *Server) HandleBenchmark(w http.ResponseWriter, r *http.Request) {
	req := job.DefaultRequest()
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req, err := s.admit(req)
	if err != nil {
		logrus.Warnf("Rejected benchmark: %v", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}

	rep, err := s.runLocked(req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, blur.ErrInvalidParameter) {
			status = http.StatusBadRequest
		}
		logrus.Errorf("Benchmark failed: %v", err)
		writeError(w, status, err)
		return
	}

	if err := s.bc.Broadcast(rep); err != nil {
		logrus.Error(err)
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(rep); err != nil {
		logrus.Error(err)
	}
}

// admit resolves req.Path under the data directory and checks the grid size
// against MaxCells before anything is allocated.
func (s *Server) admit(req job.Request) (job.Request, error) {
	if req.Path != "" {
		if s.cfg.DataDir == "" {
			return req, fmt.Errorf("%w: raster paths are disabled on this server", blur.ErrInvalidParameter)
		}
		req.Path = resolvePath(s.cfg.DataDir, req.Path)
		// GDAL reads /vsi prefixes as virtual file systems, network ones included.
		if strings.HasPrefix(req.Path, "/vsi") {
			return req, fmt.Errorf("%w: path %q is not a local file", blur.ErrInvalidParameter, req.Path)
		}
	}
	width, height, err := req.Shape()
	if err != nil {
		return req, fmt.Errorf("%w: %v", blur.ErrInvalidParameter, err)
	}
	if err := blur.ValidateShape(width, height); err != nil {
		return req, err
	}
	if width > s.cfg.MaxCells/height {
		return req, fmt.Errorf("%w: grid %dx%d exceeds %d cells", blur.ErrInvalidParameter, width, height, s.cfg.MaxCells)
	}
	return req, nil
}

// resolvePath maps a client path to a file under dir. Absolute paths and ..
// segments cannot climb out of dir.
func resolvePath(dir, path string) string {
	return filepath.Join(dir, filepath.Clean("/"+path))
}

// runLocked runs one benchmark at a time. A panicking runner is reported as an
// error and leaves the server usable.
func (s *Server) runLocked(req job.Request) (rep job.Report, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("Benchmark panicked: %v\n%s", r, debug.Stack())
			rep, err = job.Report{}, fmt.Errorf("benchmark panicked: %v", r)
		}
	}()
	return s.run(req)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		logrus.Infof("Listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	s.bc.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
