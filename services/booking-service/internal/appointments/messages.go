package appointments

import (
	"fmt"
	"time"

	"github.com/clinicazen/platform/services/booking-service/internal/model"
	"github.com/clinicazen/platform/services/booking-service/internal/outbox"
)

func when(at time.Time, loc *time.Location) (string, string) {
	local := at.In(loc)
	return local.Format("02/01/2006"), local.Format("15:04")
}

func requestedNotification(p outbox.AppointmentPayload, loc *time.Location) model.Notification {
	day, clock := when(p.ScheduledAt, loc)
	return model.Notification{
		UserID:        p.Therapist.ID,
		Kind:          model.NotificationRequested,
		Title:         "Nueva solicitud de cita",
		Message:       fmt.Sprintf("%s ha solicitado %s el %s a las %s.", p.Client.Name, p.TherapyName, day, clock),
		AppointmentID: p.AppointmentID,
	}
}

func confirmedNotification(p outbox.AppointmentPayload, loc *time.Location) model.Notification {
	day, clock := when(p.ScheduledAt, loc)
	return model.Notification{
		UserID:        p.Client.ID,
		Kind:          model.NotificationConfirmed,
		Title:         "Cita confirmada",
		Message:       fmt.Sprintf("Tu cita de %s el %s a las %s ha sido confirmada.", p.TherapyName, day, clock),
		AppointmentID: p.AppointmentID,
	}
}

func cancelledNotifications(p outbox.AppointmentPayload, loc *time.Location) []model.Notification {
	day, clock := when(p.ScheduledAt, loc)
	clientMsg := fmt.Sprintf("Tu cita de %s el %s a las %s ha sido cancelada. Motivo: %s.", p.TherapyName, day, clock, p.CancellationReason)
	if p.CancellationFee != "" {
		clientMsg += fmt.Sprintf(" Se aplicará un cargo por cancelación de %s €.", p.CancellationFee)
	}
	return []model.Notification{
		{
			UserID:        p.Client.ID,
			Kind:          model.NotificationCancelled,
			Title:         "Cita cancelada",
			Message:       clientMsg,
			AppointmentID: p.AppointmentID,
		},
		{
			UserID:        p.Therapist.ID,
			Kind:          model.NotificationCancelled,
			Title:         "Cita cancelada",
			Message:       fmt.Sprintf("La cita de %s con %s el %s a las %s ha sido cancelada.", p.TherapyName, p.Client.Name, day, clock),
			AppointmentID: p.AppointmentID,
		},
	}
}
