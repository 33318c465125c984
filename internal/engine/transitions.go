package engine

import "github.com/example/ride-dispatch/internal/models"

// roleSystem marks transitions the engine performs on its own (the initial
// broadcast and the expiry sweep), never on behalf of a caller.
const roleSystem = models.Role("")

// transitions is the full state machine: from-state × to-state → role that
// may request it. Everything outside this table is rejected; guard logic
// lives here once instead of being scattered across handlers.
var transitions = map[models.OrderStatus]map[models.OrderStatus]models.Role{
	models.StatusCreated: {
		models.StatusBroadcast:            roleSystem,
		models.StatusCancelledByPassenger: models.RolePassenger,
	},
	models.StatusBroadcast: {
		models.StatusAccepted:             models.RoleDriver,
		models.StatusCancelledByPassenger: models.RolePassenger,
		models.StatusExpired:              roleSystem,
	},
	models.StatusAccepted: {
		models.StatusArrived:              models.RoleDriver,
		models.StatusCancelledByPassenger: models.RolePassenger,
		models.StatusCancelledByDriver:    models.RoleDriver,
	},
	models.StatusArrived: {
		models.StatusStarted:              models.RoleDriver,
		models.StatusCancelledByPassenger: models.RolePassenger,
		models.StatusCancelledByDriver:    models.RoleDriver,
	},
	models.StatusStarted: {
		models.StatusCompleted:            models.RoleDriver,
		models.StatusCancelledByPassenger: models.RolePassenger,
	},
}

// allowed reports whether `by` may move an order from `from` to `to`.
func allowed(from, to models.OrderStatus, by models.Role) bool {
	next, ok := transitions[from]
	if !ok {
		return false
	}
	role, ok := next[to]
	return ok && role == by
}
