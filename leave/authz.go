package leave

import (
	"fmt"

	"github.com/warp/leave-engine/generic"
)

func forbidden(a Actor, op string) error {
	return fmt.Errorf("%w: %s %q may not %s", generic.ErrForbidden, a.Role, a.ID, op)
}

// authorizeCreate lets employees file for themselves; admins file for anyone.
func authorizeCreate(a Actor, employeeID string) error {
	if a.IsAdmin() || a.ID == employeeID {
		return nil
	}
	return forbidden(a, "file a request for "+employeeID)
}

// authorizeReview covers decide, modify, refund and discount: admins, or the
// supervisor the request is assigned to.
func authorizeReview(a Actor, r *Request, op string) error {
	if a.IsAdmin() {
		return nil
	}
	if a.Role == RoleSupervisor && r.SupervisorID != "" && a.ID == r.SupervisorID {
		return nil
	}
	return forbidden(a, op+" request "+r.ID)
}

// authorizeCancel adds the requesting employee to the reviewers.
func authorizeCancel(a Actor, r *Request) error {
	if a.ID == r.EmployeeID {
		return nil
	}
	return authorizeReview(a, r, OpCancel)
}

func authorizeAdmin(a Actor, op string) error {
	if a.IsAdmin() {
		return nil
	}
	return forbidden(a, op)
}
