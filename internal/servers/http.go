package servers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"

	"depthview/internal/logger"
	"depthview/internal/model"
)

type StatusSource interface {
	Status() model.ConnectivityStatus
}

type ViewSource interface {
	Latest() model.View
}

// Deps are the pieces the HTTP surface reads from. WS and Metrics may be nil.
type Deps struct {
	Status  StatusSource
	Views   ViewSource
	WS      http.HandlerFunc
	Metrics http.Handler
	Log     *logger.Logger
}

// NewRouter mounts health, readiness, the latest view, the view stream and
// metrics.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(d.Log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		st := d.Status.Status()
		if st != model.Connected {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": st.String()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": st.String()})
	})

	r.Get("/api/view", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, d.Views.Latest())
	})

	if d.WS != nil {
		r.Get("/ws", d.WS)
	}
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}
	return r
}

// Serve runs the server until ctx is done, then shuts down within 5s.
func Serve(ctx context.Context, addr string, h http.Handler, log *logger.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http listening", logger.NewField("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return errors.Wrap(err, "http server")
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "http shutdown")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				logger.NewField("method", r.Method),
				logger.NewField("path", r.URL.Path),
				logger.NewField("status", ww.Status()),
				logger.NewField("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}
