package venue

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/tradebot/gotrade/internal/domain"
)

var log = logrus.WithField("component", "venue_client")

// Client wraps the single venue session handle shared by every strategy
// worker in the process.
//
// Every mutating request (resolve, place, modify, cancel, account summary,
// server time) is issued while holding the client's serializing lock: the
// underlying session maintains monotonically increasing request and order id
// counters that are not safe under concurrent mutation. Read-only queries
// (IsConnected, Stats) take no lock.
//
// The session invokes exactly one callback goroutine for all asynchronous
// replies; Client installs a recover barrier around the registered Handler so
// a single malformed message cannot terminate that goroutine.
type Client struct {
	session Session

	mu               sync.Mutex // serializes all mutating requests
	nextRequestID    int64
	nextVenueOrderID int64

	connected atomic.Bool

	requestsIssued atomic.Int64 // diagnostic counter, read by the watchdog
}

// NewClient wraps a session. The first venue order id is seeded from the
// caller (typically persisted or venue-announced at login); request ids
// start at 1.
func NewClient(session Session, firstVenueOrderID int64) *Client {
	if firstVenueOrderID <= 0 {
		firstVenueOrderID = 1
	}
	return &Client{
		session:          session,
		nextRequestID:    1,
		nextVenueOrderID: firstVenueOrderID,
	}
}

// SetHandler installs the callback sink, wrapped in the recover barrier.
// Must be called before Connect.
func (c *Client) SetHandler(h Handler) {
	c.session.SetHandler(&guardedHandler{inner: h, client: c})
}

// Connect establishes the venue session. No reconnection is attempted by
// this layer; when the connection drops, in-flight requests are silently
// orphaned and callers apply their own timeouts.
func (c *Client) Connect(host string, port int, sessionID int32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.session.Connect(host, port, sessionID); err != nil {
		return err
	}
	c.connected.Store(true)
	return nil
}

// Disconnect tears the session down.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.Disconnect()
	c.connected.Store(false)
}

// IsConnected reports whether the session is currently up. Loss of
// connection is detected here, never raised as an error from request calls.
func (c *Client) IsConnected() bool {
	return c.connected.Load() && c.session.IsConnected()
}

// ResolveContract issues one asynchronous contract resolution request.
func (c *Client) ResolveContract(desc domain.ContractDescriptor) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	reqID := c.nextRequestID
	c.nextRequestID++
	c.requestsIssued.Add(1)
	return c.session.ResolveContract(reqID, desc)
}

// SubscribeQuote starts a live quote subscription and returns the ticker id
// allocated for it.
func (c *Client) SubscribeQuote(desc domain.ContractDescriptor) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tickerID := c.nextRequestID
	c.nextRequestID++
	c.requestsIssued.Add(1)
	if err := c.session.SubscribeQuote(tickerID, desc); err != nil {
		return 0, err
	}
	return tickerID, nil
}

// PlaceOrder transmits a new order and returns the venue order id allocated
// for it. The same id is reused for modify and cancel.
func (c *Client) PlaceOrder(spec domain.OrderSpec) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	venueOrderID := c.nextVenueOrderID
	c.nextVenueOrderID++
	c.requestsIssued.Add(1)
	if err := c.session.PlaceOrder(venueOrderID, spec); err != nil {
		return 0, err
	}
	return venueOrderID, nil
}

// ModifyOrder retransmits an order under its existing venue order id. This
// is a true modify, not a new order: the venue matches on the id.
func (c *Client) ModifyOrder(venueOrderID int64, spec domain.OrderSpec) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestsIssued.Add(1)
	return c.session.PlaceOrder(venueOrderID, spec)
}

// CancelOrder transmits a cancel request. Completion is confirmed only by a
// later status callback, never synchronously.
func (c *Client) CancelOrder(venueOrderID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestsIssued.Add(1)
	return c.session.CancelOrder(venueOrderID)
}

// RequestAccountSummary asks for an asynchronous account summary snapshot.
func (c *Client) RequestAccountSummary() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	reqID := c.nextRequestID
	c.nextRequestID++
	c.requestsIssued.Add(1)
	return c.session.RequestAccountSummary(reqID)
}

// RequestCurrentTime asks for the venue's wall clock.
func (c *Client) RequestCurrentTime() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestsIssued.Add(1)
	return c.session.RequestCurrentTime()
}

// RequestsIssued returns the running count of mutating requests. Read-only,
// no lock.
func (c *Client) RequestsIssued() int64 {
	return c.requestsIssued.Load()
}

// guardedHandler forwards callbacks to the inner handler behind a recover
// barrier: no panic inside a callback may escape the one shared callback
// goroutine serving every feed and order in the process.
type guardedHandler struct {
	inner  Handler
	client *Client
}

func (g *guardedHandler) guard(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("callback %s panicked (dropped): %v", name, r)
		}
	}()
	fn()
}

func (g *guardedHandler) ContractResolved(key string, contractID int64) {
	g.guard("contract_resolved", func() { g.inner.ContractResolved(key, contractID) })
}

func (g *guardedHandler) ResolutionAmbiguous(key string, matches int) {
	g.guard("resolution_ambiguous", func() { g.inner.ResolutionAmbiguous(key, matches) })
}

func (g *guardedHandler) QuoteTick(key string, field domain.TickField, value float64) {
	g.guard("quote_tick", func() { g.inner.QuoteTick(key, field, value) })
}

func (g *guardedHandler) OrderState(venueOrderID int64, state string) {
	g.guard("order_state", func() { g.inner.OrderState(venueOrderID, state) })
}

func (g *guardedHandler) OrderStatus(update OrderStatusUpdate) {
	g.guard("order_status", func() { g.inner.OrderStatus(update) })
}

func (g *guardedHandler) OrderError(venueOrderID int64, code int, message string) {
	g.guard("order_error", func() { g.inner.OrderError(venueOrderID, code, message) })
}

func (g *guardedHandler) AccountSummary(tag, value, currency string) {
	g.guard("account_summary", func() { g.inner.AccountSummary(tag, value, currency) })
}

func (g *guardedHandler) CurrentTime(unixSeconds int64) {
	g.guard("current_time", func() { g.inner.CurrentTime(unixSeconds) })
}

func (g *guardedHandler) ConnectionEvent(connected bool) {
	g.client.connected.Store(connected)
	if !connected {
		log.Warn("venue session reported disconnect; in-flight requests are orphaned")
	}
	g.guard("connection_event", func() { g.inner.ConnectionEvent(connected) })
}
