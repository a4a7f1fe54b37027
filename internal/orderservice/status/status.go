package status

import "mercadito/pkg/models"

// transitions is the single definition of the order lifecycle. Delivered has
// no outgoing edges; cancelled is absent on purpose, it is owned by the
// compensation path and can never be requested.
var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderPending:   {models.OrderPreparing},
	models.OrderPreparing: {models.OrderReady},
	models.OrderReady:     {models.OrderDelivered},
	models.OrderDelivered: {},
}

// Known reports whether s is a status a caller may request.
func Known(s models.OrderStatus) bool {
	switch s {
	case models.OrderPending, models.OrderPreparing, models.OrderReady, models.OrderDelivered:
		return true
	}
	return false
}

// CanTransition reports whether current -> next is a permitted step.
func CanTransition(current, next models.OrderStatus) bool {
	for _, allowed := range transitions[current] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Next returns the permitted successors of current.
func Next(current models.OrderStatus) []models.OrderStatus {
	return transitions[current]
}
