package dto

// ── exchange ──

// ProposeExchangeRequest body of POST /exchanges
type ProposeExchangeRequest struct {
	FromShiftID int64  `json:"from_shift_id" binding:"required,min=1"`
	ToShiftID   int64  `json:"to_shift_id"   binding:"required,min=1"`
	Comment     string `json:"comment"       binding:"max=1000"`
}

// ExchangeListRequest query of GET /exchanges
type ExchangeListRequest struct {
	ShiftID int64 `form:"shift_id" binding:"omitempty,min=1"`
	PaginationRequest
}

// ExchangeResponse an approved exchange
type ExchangeResponse struct {
	ID            int64          `json:"id"`
	FromShiftID   int64          `json:"from_shift_id"`
	ToShiftID     int64          `json:"to_shift_id"`
	RequestedByID *int64         `json:"requested_by_id,omitempty"`
	Outcome       string         `json:"outcome"`
	Comment       string         `json:"comment"`
	FromShift     *ShiftResponse `json:"from_shift,omitempty"`
	ToShift       *ShiftResponse `json:"to_shift,omitempty"`
	CreatedAt     string         `json:"created_at"`
}

// ExchangeRejection body returned when validation rejects a proposal
type ExchangeRejection struct {
	Reason string `json:"reason"`
}

// ShiftResponse one shift
type ShiftResponse struct {
	ID         int64   `json:"id"`
	IdentityID int64   `json:"identity_id"`
	Start      string  `json:"start"`
	End        string  `json:"end"`
	Direction  string  `json:"direction"`
	Status     string  `json:"status"`
	Activity   string  `json:"activity,omitempty"`
	Comment    *string `json:"comment,omitempty"`
}
