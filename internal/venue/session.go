package venue

import (
	"github.com/tradebot/gotrade/internal/domain"
)

// Session is the boundary to the external venue connection. Implementations
// (the websocket wire session, the test fake) must deliver every asynchronous
// reply to the registered Handler from exactly one goroutine, strictly
// sequentially, and must never invoke the Handler concurrently.
//
// The session keeps internal monotonically increasing request/order counters
// that are not safe under concurrent mutation; callers are expected to go
// through Client, which serializes every mutating request behind one lock.
type Session interface {
	// Connect establishes the session. It does not retry; a lost connection
	// is observable via IsConnected and is never re-established by this layer.
	Connect(host string, port int, sessionID int32) error
	Disconnect()
	IsConnected() bool

	// SetHandler registers the callback sink. Must be called before Connect.
	SetHandler(h Handler)

	// Mutating requests. Replies arrive asynchronously on the callback
	// goroutine; requests of a lost session are silently orphaned and the
	// caller owns the timeout.
	ResolveContract(requestID int64, desc domain.ContractDescriptor) error
	PlaceOrder(venueOrderID int64, spec domain.OrderSpec) error
	CancelOrder(venueOrderID int64) error
	SubscribeQuote(tickerID int64, desc domain.ContractDescriptor) error
	RequestAccountSummary(requestID int64) error
	RequestCurrentTime() error
}

// OrderStatusUpdate is the detailed status/fill callback shape.
type OrderStatusUpdate struct {
	VenueOrderID  int64
	Status        string
	FilledQty     float64
	RemainingQty  float64
	AvgFillPrice  float64
	LastFillPrice float64
	SessionID     int32 // originating client/session id, used for cross-talk filtering
}

// Handler receives every venue-originated event. All methods run on the
// session's single callback goroutine; implementations must not block on
// strategy-owned resources.
type Handler interface {
	ContractResolved(key string, contractID int64)
	ResolutionAmbiguous(key string, matches int)
	QuoteTick(key string, field domain.TickField, value float64)
	OrderState(venueOrderID int64, state string)
	OrderStatus(update OrderStatusUpdate)
	OrderError(venueOrderID int64, code int, message string)
	AccountSummary(tag string, value string, currency string)
	CurrentTime(unixSeconds int64)
	ConnectionEvent(connected bool)
}
