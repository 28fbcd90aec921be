package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"orgchart/api/internal/directory"
	"orgchart/api/internal/export"
	"orgchart/api/internal/util"
)

type ServerOptions struct {
	CORSOrigin   string
	CallerHeader string
	MetricsPath  string
	Log          logrus.FieldLogger
}

type HTTPServer struct {
	service      *Service
	corsOrigin   string
	callerHeader string
	metricsPath  string
	metrics      http.Handler
	log          logrus.FieldLogger
}

func NewHTTPServer(service *Service, opts ServerOptions) *HTTPServer {
	if opts.CORSOrigin == "" {
		opts.CORSOrigin = "*"
	}
	if opts.CallerHeader == "" {
		opts.CallerHeader = "X-Org-User"
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	return &HTTPServer{
		service:      service,
		corsOrigin:   opts.CORSOrigin,
		callerHeader: opts.CallerHeader,
		metricsPath:  opts.MetricsPath,
		metrics:      promhttp.Handler(),
		log:          opts.Log,
	}
}

func (s *HTTPServer) Handler() http.Handler {
	var origins []string
	for _, origin := range strings.Split(s.corsOrigin, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID", s.callerHeader},
		ExposedHeaders: []string{"X-Request-ID", "Content-Disposition"},
		MaxAge:         600,
	})
	return s.withMiddleware(c.Handler(http.HandlerFunc(s.handle)))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == s.metricsPath {
		s.metrics.ServeHTTP(w, r)
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	ctx := directory.WithCaller(r.Context(), r.Header.Get(s.callerHeader))
	r = r.WithContext(ctx)

	parts, err := splitEscapedPath(r.URL.EscapedPath())
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_PATH", "Invalid path", nil)
		return
	}
	if len(parts) < 2 || parts[0] != "api" || parts[1] != "charts" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
		return
	}

	if len(parts) == 2 {
		if r.Method != http.MethodPost {
			s.writeMappedError(w, r, domainError(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil))
			return
		}
		view, err := s.service.CreateChart(ctx)
		if err != nil {
			s.writeViewError(w, r, err, view)
			return
		}
		writeJSON(w, http.StatusCreated, view)
		return
	}

	s.handleChart(w, r, parts[2], parts[3:])
}

func (s *HTTPServer) handleChart(w http.ResponseWriter, r *http.Request, chartID string, rest []string) {
	ctx := r.Context()

	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		s.respondView(w, r, http.StatusOK)(s.service.View(ctx, chartID))

	case len(rest) == 0 && r.Method == http.MethodDelete:
		if err := s.service.DeleteChart(ctx, chartID); err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case len(rest) == 1 && rest[0] == "reset" && r.Method == http.MethodPost:
		s.respondView(w, r, http.StatusOK)(s.service.ResetChart(ctx, chartID))

	case len(rest) == 2 && rest[0] == "zoom" && rest[1] == "reset" && r.Method == http.MethodPost:
		s.respondView(w, r, http.StatusOK)(s.service.ResetZoom(ctx, chartID))

	case len(rest) == 1 && rest[0] == "search" && r.Method == http.MethodGet:
		query := r.URL.Query().Get("q")
		people, err := s.service.Search(ctx, chartID, query)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		if people == nil {
			people = []directory.Person{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"query": query, "results": people})

	case len(rest) == 1 && rest[0] == "export" && r.Method == http.MethodGet:
		s.handleExportDownload(w, r, chartID)

	case len(rest) == 1 && rest[0] == "export" && r.Method == http.MethodPost:
		s.handleExportUpload(w, r, chartID)

	case len(rest) == 3 && rest[0] == "nodes" && r.Method == http.MethodPost:
		nodeID := rest[1]
		switch rest[2] {
		case "click":
			s.respondView(w, r, http.StatusOK)(s.service.ClickNode(ctx, chartID, nodeID))
		case "open":
			s.respondView(w, r, http.StatusOK)(s.service.OpenNode(ctx, chartID, nodeID))
		case "more":
			s.respondView(w, r, http.StatusOK)(s.service.ShowMore(ctx, chartID, nodeID))
		default:
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
		}

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	failures := s.service.Ready(ctx)
	checks := map[string]any{}
	for _, name := range s.service.CheckNames() {
		if err, failed := failures[name]; failed {
			checks[name] = map[string]any{"status": "error", "error": err.Error()}
			continue
		}
		checks[name] = map[string]any{"status": "ok"}
	}

	status := "ready"
	statusCode := http.StatusOK
	if len(failures) > 0 {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleExportDownload(w http.ResponseWriter, r *http.Request, chartID string) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	res, err := s.service.Export(r.Context(), chartID, format)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", res.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Data)
}

func (s *HTTPServer) handleExportUpload(w http.ResponseWriter, r *http.Request, chartID string) {
	var body struct {
		Format string `json:"format"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	format, err := export.ParseFormat(body.Format)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	res, location, err := s.service.ExportAndUpload(r.Context(), chartID, format)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"location": location,
		"filename": res.Filename,
		"bytes":    len(res.Data),
	})
}

// respondView writes view on success, or the mapped error with view as details.
func (s *HTTPServer) respondView(w http.ResponseWriter, r *http.Request, status int) func(ChartView, error) {
	return func(view ChartView, err error) {
		if err != nil {
			s.writeViewError(w, r, err, view)
			return
		}
		writeJSON(w, status, view)
	}
}

func (s *HTTPServer) writeViewError(w http.ResponseWriter, r *http.Request, err error, view ChartView) {
	status, code, message, details := mapError(err)
	if details == nil && view.ChartID != "" {
		details = view
	}
	s.logError(r, status, err)
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) writeMappedError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	s.logError(r, status, err)
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) logError(r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.log.WithError(err).WithFields(logrus.Fields{
			"request_id": RequestID(r.Context()),
			"status":     status,
			"path":       r.URL.Path,
		}).Error("request failed")
	}
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = util.NewID("")
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		writer.Header().Set("X-Request-ID", requestID)
		writer.Header().Set("Cache-Control", "no-store")
		writer.Header().Set("Content-Type", "application/json")

		next.ServeHTTP(writer, r)

		s.log.WithFields(logrus.Fields{
			"request_id":  requestID,
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      writer.status,
			"duration_ms": time.Since(started).Milliseconds(),
		}).Info("http request")
	})
}

type requestIDKey struct{}

// RequestID returns the id the middleware assigned to the request.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) || errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

// splitEscapedPath splits a raw path and unescapes each segment so ids may
// contain encoded slashes.
func splitEscapedPath(path string) ([]string, error) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil, nil
	}
	raw := strings.Split(trimmed, "/")
	parts := make([]string, len(raw))
	for i, segment := range raw {
		unescaped, err := url.PathUnescape(segment)
		if err != nil {
			return nil, err
		}
		parts[i] = unescaped
	}
	return parts, nil
}
