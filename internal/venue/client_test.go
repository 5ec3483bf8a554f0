package venue_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/tradebot/gotrade/internal/domain"
	"github.com/tradebot/gotrade/internal/venue"
	"github.com/tradebot/gotrade/internal/venue/venuetest"
)

func testSpec() domain.OrderSpec {
	return domain.OrderSpec{
		Key:        1,
		Side:       domain.SideBuy,
		Contract:   domain.NewDescriptor(domain.Equity("AAPL")),
		Quantity:   100,
		LimitPrice: decimal.NewFromFloat(184.50),
	}
}

func TestPlaceOrderAllocatesIncreasingIDs(t *testing.T) {
	fake := venuetest.New()
	c := venue.NewClient(fake, 500)

	id1, err := c.PlaceOrder(testSpec())
	if err != nil {
		t.Fatalf("place failed: %v", err)
	}
	id2, _ := c.PlaceOrder(testSpec())

	if id1 != 500 || id2 != 501 {
		t.Errorf("venue order ids must start at seed and increase: got %d, %d", id1, id2)
	}
}

func TestModifyOrderReusesID(t *testing.T) {
	fake := venuetest.New()
	c := venue.NewClient(fake, 500)

	id, _ := c.PlaceOrder(testSpec())
	if err := c.ModifyOrder(id, testSpec()); err != nil {
		t.Fatalf("modify failed: %v", err)
	}

	if fake.PlaceCount() != 2 {
		t.Fatalf("expected 2 transmissions, got %d", fake.PlaceCount())
	}
	if fake.Places[1].VenueOrderID != id {
		t.Errorf("modify must reuse venue order id %d, got %d", id, fake.Places[1].VenueOrderID)
	}
}

func TestRequestIDsIncrease(t *testing.T) {
	fake := venuetest.New()
	c := venue.NewClient(fake, 1)
	desc := domain.NewDescriptor(domain.Equity("AAPL"))

	_ = c.ResolveContract(desc)
	tickerID, _ := c.SubscribeQuote(desc)

	if fake.Resolves[0].RequestID != 1 {
		t.Errorf("first request id should be 1, got %d", fake.Resolves[0].RequestID)
	}
	if tickerID != 2 {
		t.Errorf("ticker id should continue the sequence, got %d", tickerID)
	}
}

func TestRequestsIssuedCounter(t *testing.T) {
	fake := venuetest.New()
	c := venue.NewClient(fake, 1)
	desc := domain.NewDescriptor(domain.Equity("AAPL"))

	_ = c.ResolveContract(desc)
	_, _ = c.SubscribeQuote(desc)
	_, _ = c.PlaceOrder(testSpec())
	_ = c.RequestCurrentTime()

	if got := c.RequestsIssued(); got != 4 {
		t.Errorf("requests issued counter: got %d want 4", got)
	}
}

// panicHandler panics on every callback to exercise the recover barrier.
type panicHandler struct{}

func (panicHandler) ContractResolved(string, int64)              { panic("boom") }
func (panicHandler) ResolutionAmbiguous(string, int)             { panic("boom") }
func (panicHandler) QuoteTick(string, domain.TickField, float64) { panic("boom") }
func (panicHandler) OrderState(int64, string)                    { panic("boom") }
func (panicHandler) OrderStatus(venue.OrderStatusUpdate)         { panic("boom") }
func (panicHandler) OrderError(int64, int, string)               { panic("boom") }
func (panicHandler) AccountSummary(string, string, string)       { panic("boom") }
func (panicHandler) CurrentTime(int64)                           { panic("boom") }
func (panicHandler) ConnectionEvent(bool)                        { panic("boom") }

func TestRecoverBarrier(t *testing.T) {
	fake := venuetest.New()
	c := venue.NewClient(fake, 1)
	c.SetHandler(panicHandler{})

	h := fake.Handler()
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("panic escaped the callback barrier: %v", r)
		}
	}()
	h.QuoteTick("EQ:AAPL", domain.TickBid, 184.5)
	h.OrderStatus(venue.OrderStatusUpdate{VenueOrderID: 1})
	h.CurrentTime(0)
}

func TestConnectionEventTracksState(t *testing.T) {
	fake := venuetest.New()
	c := venue.NewClient(fake, 1)
	c.SetHandler(panicHandler{}) // 回调 panic 不影响连接状态记录

	if err := c.Connect("127.0.0.1", 7496, 1); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if !c.IsConnected() {
		t.Fatal("client should report connected after Connect")
	}

	fake.Handler().ConnectionEvent(false)
	if c.IsConnected() {
		t.Error("client should report disconnected after connection event")
	}
}
