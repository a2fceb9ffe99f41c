package mockex

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/MementoRC/candles-feed/internal/candles"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsConn is one client connection with serialized writes.
type wsConn struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) sendJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if t, ok := v.(TextFrame); ok {
		return c.conn.WriteMessage(websocket.TextMessage, []byte(t))
	}
	return c.conn.WriteJSON(v)
}

// subscriptions tracks open connections and which internal
// subscription keys each one listens to.
type subscriptions struct {
	mu    sync.RWMutex
	conns map[string]*wsConn
	byKey map[string]map[string]*wsConn
}

func newSubscriptions() *subscriptions {
	return &subscriptions{
		conns: map[string]*wsConn{},
		byKey: map[string]map[string]*wsConn{},
	}
}

func (s *subscriptions) addConn(c *wsConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[c.id] = c
}

func (s *subscriptions) dropConn(c *wsConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c.id)
	for key, listeners := range s.byKey {
		delete(listeners, c.id)
		if len(listeners) == 0 {
			delete(s.byKey, key)
		}
	}
}

func (s *subscriptions) subscribe(key string, c *wsConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	listeners, ok := s.byKey[key]
	if !ok {
		listeners = map[string]*wsConn{}
		s.byKey[key] = listeners
	}
	listeners[c.id] = c
}

func (s *subscriptions) unsubscribe(key string, c *wsConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if listeners, ok := s.byKey[key]; ok {
		delete(listeners, c.id)
		if len(listeners) == 0 {
			delete(s.byKey, key)
		}
	}
}

func (s *subscriptions) listeners(key string) []*wsConn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*wsConn, 0, len(s.byKey[key]))
	for _, c := range s.byKey[key] {
		out = append(out, c)
	}
	return out
}

func (s *subscriptions) all() []*wsConn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*wsConn, 0, len(s.conns))
	for _, c := range s.conns {
		out = append(out, c)
	}
	return out
}

// handleWS upgrades a connection and serves its frames: control
// frames get their venue reply, subscribe/unsubscribe frames update
// the routing map (a fresh subscription is immediately primed with
// the current last bar), anything else is ignored the way real venues
// ignore junk.
func (s *Server) handleWS(host *pluginHost) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if status := s.conds.apply(); status != 0 {
			s.writeJSON(w, status, host.plugin.ErrorBody(status, "simulated network fault"))
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := &wsConn{id: uuid.NewString(), conn: conn}
		s.subs.addConn(c)
		s.log.Debug().Str("conn", c.id).Str("exchange", host.plugin.Name()).Msg("ws connected")

		defer func() {
			s.subs.dropConn(c)
			_ = conn.Close()
		}()
		for {
			_, frame, err := conn.ReadMessage()
			if err != nil {
				return
			}
			s.handleWSFrame(host, c, frame)
		}
	}
}

func (s *Server) handleWSFrame(host *pluginHost, c *wsConn, frame []byte) {
	if reply, handled := host.plugin.ControlReply(frame); handled {
		if reply != nil {
			_ = c.sendJSON(reply)
		}
		return
	}
	op, reqs, id, ok := host.plugin.ParseSubscription(frame)
	if !ok {
		return
	}
	if ack := host.plugin.AckFrame(op, reqs, id); ack != nil {
		_ = c.sendJSON(ack)
	}
	for _, req := range reqs {
		sub, found := s.resolveSub(req)
		if !found {
			continue
		}
		key := routingKey(host.plugin, sub)
		switch op {
		case "subscribe":
			s.subs.subscribe(key, c)
			// Prime the new subscriber with the current bar so it
			// does not wait out a generator tick.
			if sr, found := s.lookup(req.Symbol, req.Interval); found {
				s.mu.RLock()
				bar := sr.last()
				s.mu.RUnlock()
				_ = c.sendJSON(host.plugin.FormatWSCandle(sub, bar))
			}
		case "unsubscribe":
			s.subs.unsubscribe(key, c)
		}
	}
}

// resolveSub maps a wire subscription request onto a registered pair.
func (s *Server) resolveSub(req SubRequest) (Subscription, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pair, ok := s.symbolIndex[stripKey(req.Symbol)]
	if !ok {
		return Subscription{}, false
	}
	if _, ok := s.series[seriesKey(pair, req.Interval)]; !ok {
		return Subscription{}, false
	}
	return Subscription{Pair: pair, Interval: req.Interval}, true
}

// broadcastCandle pushes one bar to every listener of the matching
// subscription across all plugins. This is the single broadcast
// primitive; the generator and the subscription primer both go
// through the plugin's frame formatter.
func (s *Server) broadcastCandle(sub Subscription, bar candles.Bar) {
	for _, host := range s.plugins {
		listeners := s.subs.listeners(routingKey(host.plugin, sub))
		if len(listeners) == 0 {
			continue
		}
		frame := host.plugin.FormatWSCandle(sub, bar)
		for _, c := range listeners {
			if err := c.sendJSON(frame); err != nil {
				s.log.Debug().Err(err).Str("conn", c.id).Msg("broadcast failed")
			}
		}
	}
}

func routingKey(p Plugin, sub Subscription) string {
	return p.Name() + "#" + p.SubscriptionKey(sub)
}

// CloseWSConnections drops every open WebSocket, simulating a venue
// cycling its stream endpoint. Clients observe a transport error and
// run their reconnect path.
func (s *Server) CloseWSConnections() {
	for _, c := range s.subs.all() {
		c.mu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "cycling"),
			time.Now().Add(time.Second))
		c.mu.Unlock()
		_ = c.conn.Close()
	}
}
