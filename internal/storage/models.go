package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// AlertRecord is a persisted alert and its delivery outcome.
type AlertRecord struct {
	ID             int64
	Symbol         string
	Horizon        string
	PercentChange  decimal.Decimal
	ThresholdPct   decimal.Decimal
	Price          decimal.Decimal
	ReferencePrice decimal.Decimal
	TriggeredAt    time.Time
	Delivered      bool
	DeliveryError  *string
	CreatedAt      time.Time
}

// Direction reports "up" or "down" from the sign of the change.
func (r AlertRecord) Direction() string {
	if r.PercentChange.IsNegative() {
		return "down"
	}
	return "up"
}
