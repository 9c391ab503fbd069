package switchboard

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/peertalk/peertalk/internal/metrics"
	"github.com/peertalk/peertalk/internal/ratelimit"
	"github.com/peertalk/peertalk/xmpp"
)

const (
	wsWriteWait     = 1 * time.Second
	wsSendQueueSize = 32
)

var wsUpgrader = websocket.Upgrader{
	// Origin is enforced by withOriginPolicy before the upgrade.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsPeer is one connected endpoint. Reads happen on the handler goroutine;
// a writer goroutine drains the send queue so Deliver never blocks routing.
type wsPeer struct {
	jid  xmpp.JID
	conn *websocket.Conn

	send chan *xmpp.Element
	done chan struct{}
}

func (p *wsPeer) JID() xmpp.JID { return p.jid }

func (p *wsPeer) Deliver(stanza *xmpp.Element) error {
	select {
	case p.send <- stanza:
		return nil
	case <-p.done:
		return errors.New("connection closed")
	default:
		return errors.New("send queue full")
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	jid := xmpp.ParseJID(r.URL.Query().Get("jid"))
	if !jid.IsValid() || jid.Node == "" {
		http.Error(w, "missing or invalid jid", http.StatusBadRequest)
		return
	}

	if max := int64(s.cfg.MaxConnections); max > 0 && s.conns.Load() >= max {
		s.metrics.Inc(metrics.EventConnectionRejected)
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.conns.Add(1)
	defer s.conns.Add(-1)

	peer := &wsPeer{
		jid:  jid,
		conn: conn,
		send: make(chan *xmpp.Element, wsSendQueueSize),
		done: make(chan struct{}),
	}
	defer close(peer.done)

	if err := s.board.Register(peer); err != nil {
		s.metrics.Inc(metrics.EventConnectionRejected)
		writeClose(conn, websocket.ClosePolicyViolation, "jid already connected")
		return
	}
	defer s.board.Unregister(peer)

	s.metrics.Inc(metrics.EventConnectionOpened)
	defer s.metrics.Inc(metrics.EventConnectionClosed)
	s.log.Info("peer connected", "jid", jid.String(), "remote_addr", r.RemoteAddr)

	go s.writePump(peer)

	limiter := ratelimit.NewStanzaLimiter(nil, s.cfg.MaxStanzasPerSecond)

	conn.SetReadLimit(s.cfg.MaxStanzaBytes)
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.WSIdleTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.cfg.WSIdleTimeout))
	})

	for {
		msgType, msgReader, err := conn.NextReader()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			writeClose(conn, websocket.CloseUnsupportedData, "expected text message")
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.WSIdleTimeout))

		if !limiter.Allow() {
			s.metrics.Inc(metrics.EventRateLimited)
			writeClose(conn, websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}

		raw, err := io.ReadAll(msgReader)
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				writeClose(conn, websocket.CloseMessageTooBig, "stanza too large")
			}
			return
		}

		stanza, err := xmpp.Parse(raw)
		if err != nil {
			s.metrics.Inc(metrics.EventStanzaRejected)
			writeClose(conn, websocket.CloseUnsupportedData, "malformed stanza")
			return
		}
		if stanza.Name() != xmpp.QNIq {
			s.metrics.Inc(metrics.EventStanzaRejected)
			continue
		}

		if err := s.board.Route(jid, stanza); err != nil {
			s.log.Debug("stanza not routed", "from", jid.String(), "to", stanza.Attr(xmpp.QNTo), "err", err)
			s.board.RouteError(jid, stanza)
		}
	}
}

func (s *Server) writePump(p *wsPeer) {
	ticker := time.NewTicker(s.cfg.WSPingInterval)
	defer ticker.Stop()

	for {
		select {
		case stanza := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := p.conn.WriteMessage(websocket.TextMessage, []byte(stanza.String())); err != nil {
				return
			}
		case <-ticker.C:
			if err := p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case <-p.done:
			return
		}
	}
}

func writeClose(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
}
