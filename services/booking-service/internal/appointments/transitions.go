package appointments

import (
	"github.com/clinicazen/platform/libs/auth"
	"github.com/clinicazen/platform/services/booking-service/internal/model"
)

// Confirming is allowed to admins and the assigned therapist; cancelling to
// admins and the owning client.

func authorizeConfirm(p auth.Principal, a model.Appointment) error {
	if p.IsAdmin() || (p.Role == auth.RoleTherapist && p.UserID == a.TherapistID) {
		return nil
	}
	return ErrConfirmForbidden
}

func authorizeCancel(p auth.Principal, a model.Appointment) error {
	if p.IsAdmin() || p.UserID == a.ClientID {
		return nil
	}
	return ErrCancelForbidden
}

// confirmTransition returns whether a state change is needed.
func confirmTransition(status model.AppointmentStatus) (bool, error) {
	switch status {
	case model.StatusPending:
		return true, nil
	case model.StatusConfirmed:
		return false, nil
	default:
		return false, ErrConfirmCancelled
	}
}

// cancelTransition returns whether a state change is needed. Cancelling a
// cancelled appointment keeps the fee, reason and time recorded the first time.
func cancelTransition(status model.AppointmentStatus) bool {
	return status != model.StatusCancelled
}

func defaultCancelReason(p auth.Principal, a model.Appointment) string {
	if p.IsAdmin() && p.UserID != a.ClientID {
		return "Cancelada por administración"
	}
	return "Cancelada por el cliente"
}
