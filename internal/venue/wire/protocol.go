package wire

import (
	"github.com/tradebot/gotrade/internal/domain"
)

// Frame op codes (client -> venue).
const (
	opResolve        = "resolve"
	opPlaceOrder     = "place_order"
	opCancelOrder    = "cancel_order"
	opSubscribeQuote = "subscribe_quote"
	opAccountSummary = "account_summary"
	opCurrentTime    = "current_time"
)

// Event codes (venue -> client).
const (
	evContract    = "contract"
	evAmbiguous   = "ambiguous"
	evTick        = "tick"
	evOrderState  = "order_state"
	evOrderStatus = "order_status"
	evOrderError  = "order_error"
	evAccount     = "account"
	evTime        = "time"
)

// contractPayload is the wire form of a contract descriptor. The canonical
// security key travels with every request so replies can be routed without
// request-id bookkeeping on our side.
type contractPayload struct {
	Key        string `json:"key"`
	Kind       string `json:"kind"`
	Underlying string `json:"underlying"`
	Expiry     string `json:"expiry,omitempty"`
	Strike     string `json:"strike,omitempty"`
	Right      string `json:"right,omitempty"`
	Exchange   string `json:"exchange"`
	Currency   string `json:"currency"`
}

func toContractPayload(desc domain.ContractDescriptor) contractPayload {
	p := contractPayload{
		Key:        desc.Security.Key(),
		Kind:       string(desc.Security.Kind),
		Underlying: desc.Security.Underlying,
		Exchange:   desc.Exchange,
		Currency:   desc.Currency,
	}
	if desc.Security.IsOption() {
		p.Expiry = desc.Security.Expiry.Format("20060102")
		p.Strike = desc.Security.Strike.StringFixed(2)
		p.Right = string(desc.Security.Right)
	}
	return p
}

// orderPayload is the wire form of an order spec.
type orderPayload struct {
	VenueOrderID int64           `json:"venue_order_id"`
	Side         string          `json:"side"`
	Contract     contractPayload `json:"contract"`
	Exchange     string          `json:"exchange"`
	Quantity     float64         `json:"quantity"`
	LimitPrice   string          `json:"limit_price"`
	Reference    string          `json:"reference,omitempty"`

	// scale-order parameters, omitted when the order is not scaled
	ScaleInitial   float64 `json:"scale_initial,omitempty"`
	ScaleChunk     float64 `json:"scale_chunk,omitempty"`
	ScaleIncrement string  `json:"scale_increment,omitempty"`
	ScaleAdjAmount string  `json:"scale_adj_amount,omitempty"`
	ScaleAdjSecs   int     `json:"scale_adj_secs,omitempty"`
}

func toOrderPayload(venueOrderID int64, spec domain.OrderSpec) orderPayload {
	p := orderPayload{
		VenueOrderID: venueOrderID,
		Side:         string(spec.Side),
		Contract:     toContractPayload(spec.Contract),
		Exchange:     spec.Exchange,
		Quantity:     spec.Quantity,
		LimitPrice:   spec.LimitPrice.String(),
		Reference:    spec.Reference,
	}
	if spec.Scale != nil {
		p.ScaleInitial = spec.Scale.InitialSize
		p.ScaleChunk = spec.Scale.SubsequentSize
		p.ScaleIncrement = spec.Scale.PriceIncrement.String()
		p.ScaleAdjAmount = spec.Scale.AdjustAmount.String()
		p.ScaleAdjSecs = int(spec.Scale.AdjustInterval.Seconds())
	}
	return p
}

// requestFrame is the outbound envelope. CorrID is a uuid echoed back by the
// venue in acks; it exists for log correlation only.
type requestFrame struct {
	Op        string           `json:"op"`
	CorrID    string           `json:"corr_id"`
	RequestID int64            `json:"request_id,omitempty"`
	TickerID  int64            `json:"ticker_id,omitempty"`
	Contract  *contractPayload `json:"contract,omitempty"`
	Order     *orderPayload    `json:"order,omitempty"`
	OrderID   int64            `json:"order_id,omitempty"`
}

// eventFrame is the inbound envelope; only the fields matching Ev are set.
type eventFrame struct {
	Ev string `json:"ev"`

	Key        string  `json:"key,omitempty"`
	ContractID int64   `json:"con_id,omitempty"`
	Matches    int     `json:"matches,omitempty"`
	Field      string  `json:"field,omitempty"`
	Value      float64 `json:"value,omitempty"`

	OrderID   int64   `json:"order_id,omitempty"`
	State     string  `json:"state,omitempty"`
	Status    string  `json:"status,omitempty"`
	Filled    float64 `json:"filled,omitempty"`
	Remaining float64 `json:"remaining,omitempty"`
	AvgPrice  float64 `json:"avg_price,omitempty"`
	LastPrice float64 `json:"last_price,omitempty"`
	SessionID int32   `json:"session_id,omitempty"`

	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`

	Tag      string `json:"tag,omitempty"`
	TagValue string `json:"tag_value,omitempty"`
	Currency string `json:"currency,omitempty"`
	Unix     int64  `json:"unix,omitempty"`
}

// parseTickField maps wire field names to domain tick fields.
func parseTickField(s string) (domain.TickField, bool) {
	switch s {
	case "bid":
		return domain.TickBid, true
	case "ask":
		return domain.TickAsk, true
	case "last":
		return domain.TickLast, true
	case "close":
		return domain.TickClose, true
	case "implied_vol":
		return domain.TickImpliedVol, true
	case "halted":
		return domain.TickHalted, true
	default:
		return 0, false
	}
}
