package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"smartattend/internal/session"
)

const writeWait = 10 * time.Second

// streamSession pushes the session view to the instructor display every time
// the token rotates, then a final expired view and a normal close.
func (s *Server) streamSession(c *gin.Context) {
	sess, err := s.deps.Checkin.Session(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already answered the request
		log.WithField("session_id", sess.ID).Debugf("websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.streamPoll)
	defer ticker.Stop()

	var last string
	for {
		v := s.viewSession(sess)
		key := string(v.Status)
		if v.Proof != nil {
			key += ":" + v.Proof.Token
		}
		if key != last {
			last = key
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(v); err != nil {
				return
			}
		}
		if v.Status == session.StatusExpired {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session expired")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return
		}

		select {
		case <-closed:
			return
		case <-ticker.C:
		}
	}
}
