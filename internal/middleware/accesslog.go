package middleware

import (
	"net/http"
	"regexp"
	"time"

	"github.com/R3E-Network/compliance_layer/internal/logging"
)

// Inbound correlation headers, in order of preference.
const (
	TraceIDHeader   = "X-Trace-ID"
	RequestIDHeader = "X-Request-ID"
)

var validTraceID = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,64}$`)

// AccessLog tags each request with a trace ID and writes one access line
// when the handler returns.
type AccessLog struct {
	logger *logging.Logger
	now    func() time.Time
}

// NewAccessLog creates an access log writing to logger.
func NewAccessLog(logger *logging.Logger) *AccessLog {
	return &AccessLog{logger: logger, now: time.Now}
}

// Handler wraps next.
func (a *AccessLog) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := inboundTraceID(r)
		ctx := logging.WithTraceID(r.Context(), traceID)
		w.Header().Set(TraceIDHeader, traceID)

		cw := &countingWriter{ResponseWriter: w}
		start := a.now()
		next.ServeHTTP(cw, r.WithContext(ctx))

		a.logger.LogRequest(ctx, logging.RequestRecord{
			Method:   r.Method,
			Path:     r.URL.Path,
			Status:   cw.status(),
			Bytes:    cw.bytes,
			Client:   clientKey(r),
			Duration: a.now().Sub(start),
		})
	})
}

// inboundTraceID reuses a caller-supplied ID when it is safe to log and
// generates one otherwise.
func inboundTraceID(r *http.Request) string {
	for _, h := range []string{TraceIDHeader, RequestIDHeader} {
		if id := r.Header.Get(h); validTraceID.MatchString(id) {
			return id
		}
	}
	return logging.NewTraceID()
}

// countingWriter records the status and body size of a response.
type countingWriter struct {
	http.ResponseWriter
	code  int
	bytes int64
}

func (cw *countingWriter) WriteHeader(code int) {
	if cw.code == 0 {
		cw.code = code
	}
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *countingWriter) Write(b []byte) (int, error) {
	if cw.code == 0 {
		cw.code = http.StatusOK
	}
	n, err := cw.ResponseWriter.Write(b)
	cw.bytes += int64(n)
	return n, err
}

func (cw *countingWriter) status() int {
	if cw.code == 0 {
		return http.StatusOK
	}
	return cw.code
}
