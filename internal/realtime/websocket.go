package realtime

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/bissquit/statusboard/internal/domain"
	"github.com/bissquit/statusboard/internal/pkg/ctxlog"
	"github.com/bissquit/statusboard/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	readLimit = 4096
	// missed pings tolerated before the peer is considered gone
	pongWaitFactor = 3
)

// OrganizationResolver looks organizations up by public slug.
type OrganizationResolver interface {
	GetBySlug(ctx context.Context, slug string) (*domain.Organization, error)
}

// HandlerConfig configures the websocket transport.
type HandlerConfig struct {
	PingInterval       time.Duration
	WriteTimeout       time.Duration
	PublicConnectRate  float64
	PublicConnectBurst int
	AllowedOrigins     []string
}

// Handler serves organization channels over websockets.
type Handler struct {
	router   *Router
	orgs     OrganizationResolver
	tokens   httputil.TokenValidator
	limiter  *rate.Limiter
	upgrader websocket.Upgrader
	ping     time.Duration
	write    time.Duration
}

// Message is a control frame sent to websocket clients. Events are sent
// as domain.Event values.
type Message struct {
	Type           string `json:"type"`
	OrganizationID string `json:"organization_id,omitempty"`
}

// Control message types.
const (
	MessageSubscribed = "subscribed"
	MessageResync     = "resync"
)

// NewHandler creates a websocket handler.
func NewHandler(router *Router, orgs OrganizationResolver, tokens httputil.TokenValidator, cfg HandlerConfig) *Handler {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.PublicConnectRate > 0 {
		limit = rate.Limit(cfg.PublicConnectRate)
	}

	return &Handler{
		router:  router,
		orgs:    orgs,
		tokens:  tokens,
		limiter: rate.NewLimiter(limit, cfg.PublicConnectBurst),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
		ping:  cfg.PingInterval,
		write: cfg.WriteTimeout,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// RegisterRoutes registers the websocket endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/public/{slug}", h.ServePublic)
	r.Get("/ws/org/{orgID}", h.ServeOrganization)
}

// ServePublic handles GET /ws/public/{slug}. No authentication; private
// update content is removed from events.
func (h *Handler) ServePublic(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.Allow() {
		httputil.Error(w, http.StatusTooManyRequests, "too many connection attempts")
		return
	}

	org, err := h.orgs.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		httputil.HandleDomainError(r.Context(), w, err)
		return
	}

	h.serve(w, r, org.ID, true)
}

// ServeOrganization handles GET /ws/org/{orgID}. Browsers cannot set
// headers on websocket requests, so the token may also be passed as the
// token query parameter.
func (h *Handler) ServeOrganization(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			token = parts[1]
		}
	}
	if token == "" {
		httputil.Error(w, http.StatusUnauthorized, "missing token")
		return
	}

	actor, err := h.tokens.ValidateToken(r.Context(), token)
	if err != nil {
		httputil.Error(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}

	orgID := chi.URLParam(r, "orgID")
	if actor.OrganizationID != orgID {
		httputil.Error(w, http.StatusForbidden, "access denied")
		return
	}

	r = r.WithContext(httputil.AnnotateActor(r.Context(), actor))
	h.serve(w, r, orgID, false)
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, orgID string, public bool) {
	logger := ctxlog.FromContext(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	sub, err := h.router.Subscribe(ctx, orgID, SubscribeOptions{Public: public})
	if err != nil {
		logger.Warn("subscribe failed", "organization_id", orgID, "error", err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "unavailable"),
			time.Now().Add(h.write))
		return
	}
	defer sub.Cancel()

	logger.Debug("websocket subscribed", "organization_id", orgID, "public", public, "subscription_id", sub.ID())

	go h.readPump(conn, cancel)

	if err := h.writeJSON(conn, Message{Type: MessageSubscribed, OrganizationID: orgID}); err != nil {
		return
	}
	h.writePump(ctx, conn, sub)
}

// readPump discards client frames and cancels ctx when the peer goes away.
func (h *Handler) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(readLimit)
	deadline := func() time.Time { return time.Now().Add(pongWaitFactor * h.ping) }
	_ = conn.SetReadDeadline(deadline())
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(deadline())
	})

	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

func (h *Handler) writePump(ctx context.Context, conn *websocket.Conn, sub *Subscription) {
	ticker := time.NewTicker(h.ping)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(h.write))
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if sub.Lagged() {
				if err := h.writeJSON(conn, Message{Type: MessageResync, OrganizationID: sub.OrganizationID()}); err != nil {
					return
				}
			}
			if err := h.writeJSON(conn, event); err != nil {
				return
			}
		case <-ticker.C:
			if sub.Lagged() {
				if err := h.writeJSON(conn, Message{Type: MessageResync, OrganizationID: sub.OrganizationID()}); err != nil {
					return
				}
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.write)); err != nil {
				return
			}
		}
	}
}

func (h *Handler) writeJSON(conn *websocket.Conn, v any) error {
	if err := conn.SetWriteDeadline(time.Now().Add(h.write)); err != nil {
		return err
	}
	return conn.WriteJSON(v)
}
