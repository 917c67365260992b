// Package httpapi exposes the key-value service over HTTP with plain-text
// bodies: GET /get?key=K, PUT /put?key=K&value=V, DELETE /delete?key=K.
package httpapi

import (
	"fmt"
	"net/http"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/IvanBrykalov/kvserve/kv"
)

// Server translates HTTP requests into service calls and semantic statuses
// back into HTTP codes.
type Server struct {
	svc    *kv.Service
	logger log.Logger
}

// New returns a Server for svc. A nil logger disables request logging.
func New(svc *kv.Service, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Server{svc: svc, logger: logger}
}

// Register installs the service routes on mux. The caller owns the mux and
// may add its own endpoints (e.g. /metrics) alongside.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/get", s.handleGet)
	mux.HandleFunc("/put", s.handlePut)
	mux.HandleFunc("/delete", s.handleDelete)
	mux.HandleFunc("/healthz", s.handleHealthz)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	res := s.svc.Read(r.Context(), r.URL.Query().Get("key"))
	s.writeResult(w, r, res, res.Value)
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, http.MethodPut)
		return
	}
	q := r.URL.Query()
	res := s.svc.Write(r.Context(), q.Get("key"), q.Get("value"))
	s.writeResult(w, r, res, "key-value pair stored")
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, http.MethodDelete)
		return
	}
	res := s.svc.Delete(r.Context(), r.URL.Query().Get("key"))
	s.writeResult(w, r, res, "key deleted")
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintln(w, "ok")
}

// writeResult maps a semantic status to an HTTP code and writes the body:
// okBody on success, the key-not-found message on absence, and the error
// text otherwise.
func (s *Server) writeResult(w http.ResponseWriter, r *http.Request, res kv.Result, okBody string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	code := statusCode(res.Status)
	w.WriteHeader(code)

	switch res.Status {
	case kv.StatusOK:
		_, _ = fmt.Fprint(w, okBody)
	case kv.StatusNotFound:
		_, _ = fmt.Fprint(w, "key not found")
	default:
		msg := "internal error"
		if res.Err != nil {
			msg = res.Err.Error()
		}
		_, _ = fmt.Fprint(w, msg)
	}

	if code >= http.StatusInternalServerError {
		level.Error(s.logger).Log("msg", "request failed", "path", r.URL.Path, "code", code, "err", res.Err)
	}
}

func statusCode(st kv.Status) int {
	switch st {
	case kv.StatusOK:
		return http.StatusOK
	case kv.StatusBadRequest:
		return http.StatusBadRequest
	case kv.StatusNotFound:
		return http.StatusNotFound
	case kv.StatusUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func methodNotAllowed(w http.ResponseWriter, allow string) {
	w.Header().Set("Allow", allow)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}
