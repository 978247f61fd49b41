package devserver

import (
	"net/http"
	"sync"
)

// faultInjector makes the next N requests on a path fail with a fixed status.
type faultInjector struct {
	mu      sync.Mutex
	pending map[string]fault
}

type fault struct {
	remaining int
	status    int
}

func newFaultInjector() *faultInjector {
	return &faultInjector{pending: make(map[string]fault)}
}

func (fi *faultInjector) add(path string, count, status int) {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	if count <= 0 {
		delete(fi.pending, path)
		return
	}
	fi.pending[path] = fault{remaining: count, status: status}
}

// take consumes one pending failure for path.
func (fi *faultInjector) take(path string) (int, bool) {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	f, ok := fi.pending[path]
	if !ok {
		return 0, false
	}
	f.remaining--
	if f.remaining == 0 {
		delete(fi.pending, path)
	} else {
		fi.pending[path] = f
	}
	return f.status, true
}

func (fi *faultInjector) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status, ok := fi.take(r.URL.Path); ok {
			writeJSON(w, status, map[string]string{"error": "Injected failure"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// FailNext makes the next count requests on path answer status.
func (s *Server) FailNext(path string, count, status int) {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	s.faults.add(path, count, status)
}

// ExpireAccessTokens invalidates every access token handed out so far.
func (s *Server) ExpireAccessTokens() {
	s.Tokens.ExpireAccessTokens()
	s.logger.Info("access tokens expired")
}

func (s *Server) HandleExpireTokens() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.ExpireAccessTokens()
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleInjectFailure takes {"path": "/api/v1/posts/", "count": 2, "status": 503}.
func (s *Server) HandleInjectFailure() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Path   string `json:"path"`
			Count  int    `json:"count"`
			Status int    `json:"status"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, err)
			return
		}
		if body.Path == "" {
			writeError(w, fieldError("path", "This field is required."))
			return
		}
		s.FailNext(body.Path, body.Count, body.Status)
		w.WriteHeader(http.StatusNoContent)
	}
}
