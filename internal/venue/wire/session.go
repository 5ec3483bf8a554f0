// Package wire implements the concrete venue Session over a websocket
// line protocol with a REST login side-channel.
package wire

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tradebot/gotrade/internal/domain"
	"github.com/tradebot/gotrade/internal/venue"
)

var log = logrus.WithField("component", "venue_wire")

const (
	dialTimeout  = 10 * time.Second
	writeTimeout = 5 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 25 * time.Second
)

// Options configures the wire session.
type Options struct {
	// RestPort is the login/handshake side-channel port on the same host.
	RestPort int
	// APIToken is the bearer token for the REST handshake. Empty means the
	// venue endpoint does not require authentication (paper setups).
	APIToken string
}

// Session is the production venue.Session: JSON frames over a single
// websocket, with a REST call to obtain the websocket ticket. All inbound
// events are delivered to the handler from one reader goroutine.
type Session struct {
	opts Options

	handler venue.Handler

	mu        sync.Mutex // guards conn and connected during connect/disconnect
	conn      *websocket.Conn
	connected bool

	writeMu sync.Mutex // serializes websocket writes

	done chan struct{}
}

// NewSession creates an unconnected wire session.
func NewSession(opts Options) *Session {
	return &Session{opts: opts}
}

// SetHandler registers the callback sink. Must be called before Connect.
func (s *Session) SetHandler(h venue.Handler) {
	s.handler = h
}

// loginResponse is the REST handshake reply.
type loginResponse struct {
	Ticket string `json:"ticket"`
	// NextOrderID lets the venue announce the order id floor at login.
	NextOrderID int64 `json:"next_order_id"`
}

// Connect performs the REST login handshake, dials the websocket and starts
// the reader goroutine. No reconnection is ever attempted: a dropped
// connection surfaces through ConnectionEvent(false) and IsConnected.
func (s *Session) Connect(host string, port int, sessionID int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handler == nil {
		return errors.New("wire: handler must be set before Connect")
	}
	if s.connected {
		return errors.New("wire: already connected")
	}

	ticket, err := s.login(host, sessionID)
	if err != nil {
		return errors.Wrap(err, "wire: login")
	}

	u := url.URL{
		Scheme:   "ws",
		Host:     fmt.Sprintf("%s:%d", host, port),
		Path:     "/v1/session",
		RawQuery: url.Values{"session_id": {fmt.Sprint(sessionID)}, "ticket": {ticket}}.Encode(),
	}
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		return errors.Wrapf(err, "wire: dial %s:%d", host, port)
	}

	s.conn = conn
	s.connected = true
	s.done = make(chan struct{})

	go s.readLoop(conn)
	go s.pingLoop(conn)

	log.Infof("connected to venue %s:%d (session %d)", host, port, sessionID)
	s.handler.ConnectionEvent(true)
	return nil
}

// login obtains a one-shot websocket ticket from the REST side-channel.
// With RestPort <= 0 the handshake is skipped and an empty ticket is used.
func (s *Session) login(host string, sessionID int32) (string, error) {
	if s.opts.RestPort <= 0 {
		return "", nil
	}
	client := resty.New().
		SetBaseURL(fmt.Sprintf("http://%s:%d", host, s.opts.RestPort)).
		SetTimeout(dialTimeout).
		SetHeader("X-Correlation-ID", uuid.NewString())
	if s.opts.APIToken != "" {
		client.SetAuthToken(s.opts.APIToken)
	}

	var out loginResponse
	resp, err := client.R().
		SetBody(map[string]any{"session_id": sessionID}).
		SetResult(&out).
		Post("/v1/login")
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", errors.Errorf("login rejected: %s (%s)", resp.Status(), resp.String())
	}
	return out.Ticket, nil
}

// Disconnect closes the websocket. Safe to call when not connected.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return
	}
	s.connected = false
	close(s.done)
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeTimeout))
	_ = s.conn.Close()
	s.conn = nil
}

// IsConnected reports the session state.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Session) ResolveContract(requestID int64, desc domain.ContractDescriptor) error {
	p := toContractPayload(desc)
	return s.send(requestFrame{Op: opResolve, RequestID: requestID, Contract: &p})
}

func (s *Session) PlaceOrder(venueOrderID int64, spec domain.OrderSpec) error {
	p := toOrderPayload(venueOrderID, spec)
	return s.send(requestFrame{Op: opPlaceOrder, Order: &p})
}

func (s *Session) CancelOrder(venueOrderID int64) error {
	return s.send(requestFrame{Op: opCancelOrder, OrderID: venueOrderID})
}

func (s *Session) SubscribeQuote(tickerID int64, desc domain.ContractDescriptor) error {
	p := toContractPayload(desc)
	return s.send(requestFrame{Op: opSubscribeQuote, TickerID: tickerID, Contract: &p})
}

func (s *Session) RequestAccountSummary(requestID int64) error {
	return s.send(requestFrame{Op: opAccountSummary, RequestID: requestID})
}

func (s *Session) RequestCurrentTime() error {
	return s.send(requestFrame{Op: opCurrentTime})
}

// send marshals and writes a single frame. Writes are serialized; a send on
// a closed session fails fast so callers can observe the disconnect.
func (s *Session) send(f requestFrame) error {
	f.CorrID = uuid.NewString()

	s.mu.Lock()
	conn := s.conn
	connected := s.connected
	s.mu.Unlock()
	if !connected || conn == nil {
		return errors.Errorf("wire: not connected (op=%s)", f.Op)
	}

	data, err := json.Marshal(f)
	if err != nil {
		return errors.Wrapf(err, "wire: marshal %s", f.Op)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.Wrapf(err, "wire: write %s", f.Op)
	}
	return nil
}

// readLoop is the single callback goroutine. Every inbound frame is decoded
// and dispatched to the handler sequentially; when the read fails the loop
// reports the disconnect and exits.
func (s *Session) readLoop(conn *websocket.Conn) {
	defer func() {
		s.mu.Lock()
		wasConnected := s.connected
		s.connected = false
		s.mu.Unlock()
		if wasConnected {
			s.handler.ConnectionEvent(false)
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				// local Disconnect, not a venue-side drop
			default:
				log.Warnf("read loop terminated: %v", err)
			}
			return
		}

		var ev eventFrame
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Warnf("dropping malformed frame: %v", err)
			continue
		}
		s.dispatch(ev)
	}
}

func (s *Session) dispatch(ev eventFrame) {
	switch ev.Ev {
	case evContract:
		s.handler.ContractResolved(ev.Key, ev.ContractID)
	case evAmbiguous:
		s.handler.ResolutionAmbiguous(ev.Key, ev.Matches)
	case evTick:
		field, ok := parseTickField(ev.Field)
		if !ok {
			log.Debugf("ignoring unknown tick field %q for %s", ev.Field, ev.Key)
			return
		}
		s.handler.QuoteTick(ev.Key, field, ev.Value)
	case evOrderState:
		s.handler.OrderState(ev.OrderID, ev.State)
	case evOrderStatus:
		s.handler.OrderStatus(venue.OrderStatusUpdate{
			VenueOrderID:  ev.OrderID,
			Status:        ev.Status,
			FilledQty:     ev.Filled,
			RemainingQty:  ev.Remaining,
			AvgFillPrice:  ev.AvgPrice,
			LastFillPrice: ev.LastPrice,
			SessionID:     ev.SessionID,
		})
	case evOrderError:
		s.handler.OrderError(ev.OrderID, ev.Code, ev.Message)
	case evAccount:
		s.handler.AccountSummary(ev.Tag, ev.TagValue, ev.Currency)
	case evTime:
		s.handler.CurrentTime(ev.Unix)
	default:
		log.Debugf("ignoring unknown event %q", ev.Ev)
	}
}

// pingLoop keeps the connection alive. It exits on Disconnect or when the
// write side fails; the read loop owns disconnect reporting.
func (s *Session) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
