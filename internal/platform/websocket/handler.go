package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/rohanchauhan123/appointment-system/internal/platform/auth"
	"github.com/rohanchauhan123/appointment-system/internal/platform/db"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 256
)

// ActorVerifier confirms that a token subject still exists and is active in
// the given tenant.
type ActorVerifier interface {
	VerifyActor(ctx context.Context, tenantID string, userID uuid.UUID) (auth.Actor, error)
}

// VerifierFunc adapts a function to ActorVerifier.
type VerifierFunc func(ctx context.Context, tenantID string, userID uuid.UUID) (auth.Actor, error)

func (f VerifierFunc) VerifyActor(ctx context.Context, tenantID string, userID uuid.UUID) (auth.Actor, error) {
	return f(ctx, tenantID, userID)
}

// HandlerConfig configures the websocket endpoint.
type HandlerConfig struct {
	Tokens         *auth.TokenIssuer
	Verifier       ActorVerifier
	DefaultTenant  string
	AllowedOrigins []string
	Logger         zerolog.Logger
}

// WebSocketHandler authenticates upgrade requests and runs the client pumps.
type WebSocketHandler struct {
	hub      *Hub
	cfg      HandlerConfig
	upgrader gorillawebsocket.Upgrader
}

func NewWebSocketHandler(hub *Hub, cfg HandlerConfig) *WebSocketHandler {
	origins := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		origins[o] = true
	}
	return &WebSocketHandler{
		hub: hub,
		cfg: cfg,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(origins) == 0 || origins["*"] || origins[origin]
			},
		},
	}
}

func (wsh *WebSocketHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", wsh.HandleConnect)
}

// authenticate resolves the tenant and actor for an upgrade request. Browsers
// cannot set headers on websocket upgrades, so the token may also arrive as
// ?token=.
func (wsh *WebSocketHandler) authenticate(c echo.Context) (string, auth.Actor, error) {
	tokenStr, ok := auth.BearerToken(c.Request().Header.Get("Authorization"))
	if !ok {
		tokenStr = c.QueryParam("token")
	}
	if tokenStr == "" {
		return "", auth.Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "missing token")
	}

	claims, err := wsh.cfg.Tokens.Parse(tokenStr)
	if err != nil {
		return "", auth.Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}

	requested := c.Request().Header.Get("X-Tenant-ID")
	if requested == "" {
		requested = c.QueryParam("tenant_id")
	}
	tenantID := claims.TenantID
	switch {
	case tenantID == "" && requested != "":
		tenantID = requested
	case tenantID == "":
		tenantID = wsh.cfg.DefaultTenant
	case requested != "" && requested != tenantID:
		return "", auth.Actor{}, echo.NewHTTPError(http.StatusForbidden, "token does not belong to the requested tenant")
	}
	if !db.ValidTenantID(tenantID) {
		return "", auth.Actor{}, echo.NewHTTPError(http.StatusBadRequest, "invalid tenant identifier")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return "", auth.Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid token subject")
	}
	actor, err := wsh.cfg.Verifier.VerifyActor(c.Request().Context(), tenantID, userID)
	if err != nil || !actor.Active {
		return "", auth.Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "user not found or inactive")
	}
	return tenantID, actor, nil
}

// HandleConnect authenticates the request, upgrades it, registers the client
// on its tenant topic and starts read/write pumps.
func (wsh *WebSocketHandler) HandleConnect(c echo.Context) error {
	tenantID, actor, err := wsh.authenticate(c)
	if err != nil {
		return err
	}

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written an error response.
		wsh.cfg.Logger.Debug().Err(err).Msg("websocket upgrade failed")
		return nil
	}

	client := &Client{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		UserID:   actor.ID.String(),
		Topics:   []string{TenantTopic(tenantID)},
		Send:     make(chan []byte, sendBuffer),
	}
	wsh.hub.Register(client)

	wsh.cfg.Logger.Info().
		Str("client_id", client.ID).
		Str("tenant_id", tenantID).
		Str("user_id", client.UserID).
		Msg("websocket client connected")

	go wsh.writePump(client, ws)
	go wsh.readPump(client, ws)

	return nil
}

func (wsh *WebSocketHandler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		wsh.hub.Unregister(client)
		ws.Close()
		wsh.cfg.Logger.Info().Str("client_id", client.ID).Msg("websocket client disconnected")
	}()

	ws.SetReadLimit(maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	// The feed is server-push only. Inbound frames are read so control
	// frames and disconnects are seen, then dropped.
	for {
		if _, _, err := ws.NextReader(); err != nil {
			break
		}
	}
}

func (wsh *WebSocketHandler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				ws.WriteMessage(gorillawebsocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
