package kalshi

// types.go — wire types del API de portfolio de Kalshi. Todos los precios
// vienen en centavos y los saldos en centavos enteros.

type balanceResponse struct {
	Balance int64 `json:"balance"` // cents
}

type marketPosition struct {
	Ticker string `json:"ticker"`
	// Position is signed: positive = YES contracts, negative = NO.
	Position       int   `json:"position"`
	MarketExposure int64 `json:"market_exposure"` // cents
	TotalTraded    int64 `json:"total_traded"`    // cents
	RestingOrders  int   `json:"resting_orders_count"`
}

type positionsResponse struct {
	MarketPositions []marketPosition `json:"market_positions"`
	Cursor          string           `json:"cursor"`
}

type wireOrder struct {
	OrderID        string `json:"order_id"`
	ClientOrderID  string `json:"client_order_id"`
	Ticker         string `json:"ticker"`
	Side           string `json:"side"`   // "yes" | "no"
	Action         string `json:"action"` // "buy" | "sell"
	Type           string `json:"type"`
	YesPrice       int    `json:"yes_price"`
	NoPrice        int    `json:"no_price"`
	InitialCount   int    `json:"initial_count"`
	RemainingCount int    `json:"remaining_count"`
	Status         string `json:"status"` // "resting" | "executed" | "canceled" | ...
	CreatedTime    string `json:"created_time"`
	ExpirationTime string `json:"expiration_time"`
}

type ordersResponse struct {
	Orders []wireOrder `json:"orders"`
	Cursor string      `json:"cursor"`
}

type orderResponse struct {
	Order wireOrder `json:"order"`
}

type createOrderRequest struct {
	Ticker        string `json:"ticker"`
	ClientOrderID string `json:"client_order_id"`
	Side          string `json:"side"`
	Action        string `json:"action"`
	Type          string `json:"type"` // always "limit"
	Count         int    `json:"count"`
	YesPrice      int    `json:"yes_price,omitempty"`
	NoPrice       int    `json:"no_price,omitempty"`
	ExpirationTs  int64  `json:"expiration_ts,omitempty"` // unix seconds
}

type amendOrderRequest struct {
	Action        string `json:"action"`
	Side          string `json:"side"`
	Count         int    `json:"count"`
	YesPrice      int    `json:"yes_price,omitempty"`
	NoPrice       int    `json:"no_price,omitempty"`
	ClientOrderID string `json:"updated_client_order_id"`
}
