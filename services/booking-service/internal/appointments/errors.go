package appointments

import "github.com/clinicazen/platform/libs/apperr"

var (
	ErrTherapyNotFound     = apperr.NotFound("La terapia solicitada no existe.")
	ErrTherapistNotFound   = apperr.NotFound("El terapeuta solicitado no existe.")
	ErrAppointmentNotFound = apperr.NotFound("Cita no encontrada.")
	ErrOutsideAvailability = apperr.Unprocessable("El horario solicitado no está dentro de la disponibilidad del terapeuta.")
	ErrSlotTaken           = apperr.Conflict("Ese horario ya está reservado. Por favor, elige otro.")
	ErrConfirmCancelled    = apperr.Conflict("La cita está cancelada y no puede confirmarse.")
	ErrPastAppointment     = apperr.Validation("No se pueden reservar citas en el pasado.", map[string]string{"startTime": "debe ser posterior a la hora actual"})
	ErrInvalidWindow       = apperr.Validation("La hora de fin debe ser posterior a la hora de inicio.", map[string]string{"endTime": "debe ser posterior a startTime"})
	ErrConfirmForbidden    = apperr.Forbidden("Solo el terapeuta asignado o un administrador puede confirmar la cita.")
	ErrCancelForbidden     = apperr.Forbidden("Solo el cliente de la cita o un administrador puede cancelarla.")
)
