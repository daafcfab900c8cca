package upbit

// subscription is the ordered request frame set Upbit expects: a ticket
// identifying the session, one block per stream type, and a format selector.
// It is marshalled as a JSON array.
type subscription []any

type ticketBlock struct {
	Ticket string `json:"ticket"`
}

type typeBlock struct {
	Type  string   `json:"type"`
	Codes []string `json:"codes"`
}

type formatBlock struct {
	Format string `json:"format"`
}

// tickerFrame is an inbound ticker message in SIMPLE format. Only the fields
// the engine consumes are decoded.
type tickerFrame struct {
	Type       string  `json:"ty"`  // "ticker"
	Code       string  `json:"cd"`  // e.g. "KRW-BTC"
	TradePrice float64 `json:"tp"`  // last trade price
	Timestamp  int64   `json:"tms"` // Unix milliseconds
}
