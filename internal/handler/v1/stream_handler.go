package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/dmehra2102/prod-golang-projects/medlink/internal/fanout"
	"github.com/dmehra2102/prod-golang-projects/medlink/internal/geo"
	"github.com/dmehra2102/prod-golang-projects/medlink/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	maxMessage = 1024
)

// subscription is the part of a feed or request stream the pumps need.
type subscription interface {
	Events() <-chan fanout.Event
	Reason() fanout.CloseReason
	Close()
}

type clientMessage struct {
	Action    string  `json:"action"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type StreamHandler struct {
	streams  *service.StreamService
	upgrader websocket.Upgrader
	log      *zap.Logger
}

func NewStreamHandler(streams *service.StreamService, allowedOrigins []string, log *zap.Logger) *StreamHandler {
	return &StreamHandler{
		streams: streams,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		log: log,
	}
}

// Feed streams pending requests near the doctor. The subscription is opened
// before the upgrade so failures are still plain HTTP errors.
func (h *StreamHandler) Feed(c *gin.Context) {
	center, radius, ok := parseArea(c)
	if !ok {
		return
	}
	feed, err := h.streams.OpenFeed(c.Request.Context(), center, radius, callerFrom(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		feed.Close()
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	onMessage := func(msg clientMessage) {
		if msg.Action != "move" {
			return
		}
		// the request context is gone once the handler returns
		err := h.streams.MoveFeed(context.Background(), feed, geo.Point{Latitude: msg.Latitude, Longitude: msg.Longitude})
		if err != nil {
			h.log.Debug("feed move rejected", zap.String("doctor_id", feed.DoctorID.String()), zap.Error(err))
		}
	}
	go h.readPump(conn, feed, onMessage)
	go h.writePump(conn, feed)
}

// Request streams status and doctor location changes of one request.
func (h *StreamHandler) Request(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	st, err := h.streams.OpenRequestStream(c.Request.Context(), id, callerFrom(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		st.Close()
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	go h.readPump(conn, st, nil)
	go h.writePump(conn, st)
}

// readPump consumes client frames until the connection drops, then closes
// the subscription, which in turn ends the write pump.
func (h *StreamHandler) readPump(conn *websocket.Conn, sub subscription, onMessage func(clientMessage)) {
	defer sub.Close()

	conn.SetReadLimit(maxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if onMessage == nil {
			continue
		}
		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		onMessage(msg)
	}
}

func (h *StreamHandler) writePump(conn *websocket.Conn, sub subscription) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.Close()
		conn.Close()
	}()

	events := sub.Events()
	for {
		select {
		case ev, ok := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				code := websocket.CloseNormalClosure
				if sub.Reason() == fanout.ReasonOverflow {
					code = websocket.CloseTryAgainLater
				}
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, string(sub.Reason())))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// originChecker allows requests without an Origin header and origins listed
// in the CORS config. A "*" entry allows any origin.
func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
