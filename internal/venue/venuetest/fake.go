// Package venuetest provides an in-memory venue.Session for tests. Events
// are injected by the test and delivered to the handler synchronously, so
// the test goroutine doubles as the session's single callback goroutine.
package venuetest

import (
	"sync"

	"github.com/tradebot/gotrade/internal/domain"
	"github.com/tradebot/gotrade/internal/venue"
)

// ResolveCall records one ResolveContract request.
type ResolveCall struct {
	RequestID int64
	Desc      domain.ContractDescriptor
}

// PlaceCall records one PlaceOrder request. A repeated venue order id means
// a modify.
type PlaceCall struct {
	VenueOrderID int64
	Spec         domain.OrderSpec
}

// SubscribeCall records one SubscribeQuote request.
type SubscribeCall struct {
	TickerID int64
	Desc     domain.ContractDescriptor
}

// FakeSession implements venue.Session and records every request for
// assertion. Err, when set, is returned from every subsequent request.
type FakeSession struct {
	mu        sync.Mutex
	handler   venue.Handler
	connected bool

	Err error

	Resolves   []ResolveCall
	Places     []PlaceCall
	Cancels    []int64
	Subscribes []SubscribeCall

	AccountRequests int
	TimeRequests    int
}

func New() *FakeSession {
	return &FakeSession{}
}

func (f *FakeSession) SetHandler(h venue.Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
}

func (f *FakeSession) Connect(host string, port int, sessionID int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.connected = true
	return nil
}

func (f *FakeSession) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

func (f *FakeSession) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *FakeSession) ResolveContract(requestID int64, desc domain.ContractDescriptor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Resolves = append(f.Resolves, ResolveCall{RequestID: requestID, Desc: desc})
	return nil
}

func (f *FakeSession) PlaceOrder(venueOrderID int64, spec domain.OrderSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Places = append(f.Places, PlaceCall{VenueOrderID: venueOrderID, Spec: spec})
	return nil
}

func (f *FakeSession) CancelOrder(venueOrderID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Cancels = append(f.Cancels, venueOrderID)
	return nil
}

func (f *FakeSession) SubscribeQuote(tickerID int64, desc domain.ContractDescriptor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Subscribes = append(f.Subscribes, SubscribeCall{TickerID: tickerID, Desc: desc})
	return nil
}

func (f *FakeSession) RequestAccountSummary(requestID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.AccountRequests++
	return nil
}

func (f *FakeSession) RequestCurrentTime() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.TimeRequests++
	return nil
}

// Handler returns the registered handler so tests can inject venue events.
// Calls into it must come from one goroutine, matching the real session's
// delivery contract.
func (f *FakeSession) Handler() venue.Handler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handler
}

// ResolveCount returns how many resolve requests were transmitted.
func (f *FakeSession) ResolveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Resolves)
}

// PlaceCount returns how many place/modify requests were transmitted.
func (f *FakeSession) PlaceCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Places)
}
