package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"visionpro-worker-go/internal/hub"
)

const writeTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsSubscriber adapts one websocket connection to the hub. The write mutex
// serializes concurrent publishes; a write error marks it dead and the hub
// prunes it.
type wsSubscriber struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	msgType int
}

func (s *wsSubscriber) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(s.msgType, data)
}

// serveCameraSocket streams a camera's JPEG frames as binary messages.
func (s *Server) serveCameraSocket(c *gin.Context) {
	cameraID := c.Param("camera_id")
	s.serveChannel(c, hub.CameraChannel(cameraID), websocket.BinaryMessage)
}

// serveEventsSocket streams detection events as JSON text messages.
func (s *Server) serveEventsSocket(c *gin.Context) {
	s.serveChannel(c, hub.EventsChannel, websocket.TextMessage)
}

func (s *Server) serveChannel(c *gin.Context, channel string, msgType int) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Str("channel", channel).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	sub := &wsSubscriber{conn: conn, msgType: msgType}
	handle := s.bus.Subscribe(channel, sub)
	defer s.bus.Unsubscribe(channel, handle)

	log.Debug().Str("channel", channel).Msg("WebSocket viewer connected")

	// Read pump: we never expect client messages, but reading is how we
	// notice the peer going away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			log.Debug().Str("channel", channel).Msg("WebSocket viewer disconnected")
			return
		}
	}
}
