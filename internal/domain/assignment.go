package domain

import "time"

// AssignmentStatus tracks a delivery assignment
type AssignmentStatus string

const (
	AssignmentBroadcasted AssignmentStatus = "broadcasted"
	AssignmentAssigned    AssignmentStatus = "assigned"
	AssignmentCompleted   AssignmentStatus = "completed"
)

// DeliveryAssignment offers a shop order to nearby delivery boys; the first to
// accept gets it.
type DeliveryAssignment struct {
	ID            string           `json:"_id" bson:"_id"`
	OrderID       string           `json:"order" bson:"order_id"`
	ShopID        string           `json:"shop" bson:"shop_id"`
	BroadcastedTo []string         `json:"broadcastedTo" bson:"broadcasted_to"`
	AssignedTo    string           `json:"assignedTo,omitempty" bson:"assigned_to,omitempty"`
	Status        AssignmentStatus `json:"status" bson:"status"`
	AcceptedAt    *time.Time       `json:"acceptedAt,omitempty" bson:"accepted_at,omitempty"`
	CreatedAt     time.Time        `json:"createdAt" bson:"created_at"`
	UpdatedAt     time.Time        `json:"updatedAt" bson:"updated_at"`
}

// OfferedTo reports whether the assignment was broadcast to deliveryBoyID
func (a *DeliveryAssignment) OfferedTo(deliveryBoyID string) bool {
	for _, id := range a.BroadcastedTo {
		if id == deliveryBoyID {
			return true
		}
	}
	return false
}
