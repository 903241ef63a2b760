package order

type Status string

const (
	StatusPendingPayment Status = "pending_payment"
	StatusConfirmed      Status = "confirmed"
	StatusCancelled      Status = "cancelled"
)

// Terminal orders never change status again.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusCancelled
}

type LineStatus string

const (
	LinePending   LineStatus = "pending"
	LineConfirmed LineStatus = "confirmed"
	LineCancelled LineStatus = "cancelled"
)

type ShipmentStatus string

const (
	ShipmentPending    ShipmentStatus = "pending"
	ShipmentProcessing ShipmentStatus = "processing"
	ShipmentCancelled  ShipmentStatus = "cancelled"
)

// Outcome is the set of statuses written together when an order settles.
type Outcome struct {
	Order    Status
	Lines    LineStatus
	Shipment ShipmentStatus
}

var (
	Confirmed = Outcome{Order: StatusConfirmed, Lines: LineConfirmed, Shipment: ShipmentProcessing}
	Cancelled = Outcome{Order: StatusCancelled, Lines: LineCancelled, Shipment: ShipmentCancelled}
)
