package protocol

import (
	log "log/slog"
	"time"

	ws "github.com/gorilla/websocket"
)

// WebSocket is a thin reconnecting wrapper over a gorilla connection.
type WebSocket struct {
	conn   *ws.Conn
	url    string
	reconn uint // seconds between reconnect attempts
}

func NewWebSocket(url string, reconn uint) (*WebSocket, error) {
	if reconn == 0 {
		reconn = 2
	}
	conn, _, err := ws.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return &WebSocket{conn: conn, url: url, reconn: reconn}, nil
}

func (web *WebSocket) Write(payload []byte) error {
	log.Debug("hub write", "msg", string(payload))
	return web.conn.WriteMessage(ws.TextMessage, payload)
}

type incomeKind uint

const (
	connClose incomeKind = iota
	readFailure
	readOK
)

type income struct {
	kind incomeKind
	msg  []byte
	err  error
}

func (web *WebSocket) Read() income {
	_, msg, err := web.conn.ReadMessage()
	if err != nil {
		if isClosed(err) {
			return income{kind: connClose, err: err}
		}
		return income{kind: readFailure, err: err}
	}
	log.Debug("hub read", "msg", string(msg))
	return income{kind: readOK, msg: msg}
}

func (web *WebSocket) TryReconn() {
	for {
		conn, _, err := ws.DefaultDialer.Dial(web.url, nil)
		if err == nil {
			web.conn = conn
			return
		}
		time.Sleep(time.Second * time.Duration(web.reconn))
	}
}

func isClosed(err error) bool {
	return ws.IsCloseError(err,
		ws.CloseNormalClosure,
		ws.CloseGoingAway,
		ws.CloseAbnormalClosure)
}
