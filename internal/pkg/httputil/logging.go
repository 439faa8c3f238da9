package httputil

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bissquit/statusboard/internal/domain"
	"github.com/bissquit/statusboard/internal/pkg/ctxlog"
	"github.com/go-chi/chi/v5/middleware"
)

// requestTags collects request attributes that are only known once inner
// handlers have run, so the access log line can report them.
type requestTags struct {
	organizationID string
	userID         string
}

type tagsKey struct{}

// Audiences reported in access logs and request metrics.
const (
	AudiencePublic = "public"
	AudienceTenant = "tenant"
	AudienceSystem = "system"
)

// Audience classifies a request path by who may call it.
func Audience(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/v1/public/"), strings.HasPrefix(path, "/ws/public/"):
		return AudiencePublic
	case strings.HasPrefix(path, "/api/v1/"), strings.HasPrefix(path, "/ws/org/"):
		return AudienceTenant
	default:
		return AudienceSystem
	}
}

// AnnotateActor attaches the authenticated actor to the request logger and
// to the access log line.
func AnnotateActor(ctx context.Context, actor *domain.Actor) context.Context {
	if tags, ok := ctx.Value(tagsKey{}).(*requestTags); ok {
		tags.organizationID = actor.OrganizationID
		tags.userID = actor.UserID
	}
	return ctxlog.With(ctx, "organization_id", actor.OrganizationID, "user_id", actor.UserID)
}

// RequestLoggerMiddleware injects a logger carrying request_id into the
// context and writes one access log line per request.
func RequestLoggerMiddleware(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			logger := base.With("request_id", middleware.GetReqID(r.Context()))

			tags := &requestTags{}
			ctx := context.WithValue(ctxlog.WithLogger(r.Context(), logger), tagsKey{}, tags)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			level := slog.LevelInfo
			if ww.Status() >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"audience", Audience(r.URL.Path),
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_addr", r.RemoteAddr,
			}
			if tags.organizationID != "" {
				attrs = append(attrs, "organization_id", tags.organizationID, "user_id", tags.userID)
			}
			logger.Log(ctx, level, "http request", attrs...)
		})
	}
}
