package model

import "time"

type User struct {
	ID           string
	Email        string
	PasswordHash string
	FullName     string
	Phone        string
	Role         string
	CreatedAt    time.Time
}

type TherapistProfile struct {
	UserID      string
	DisplayName string
	Bio         string
	Specialties []string
	Active      bool
}

type NotificationKind string

const (
	NotificationRequested NotificationKind = "APPOINTMENT_REQUESTED"
	NotificationConfirmed NotificationKind = "APPOINTMENT_CONFIRMED"
	NotificationCancelled NotificationKind = "APPOINTMENT_CANCELLED"
)

type Notification struct {
	ID            string
	UserID        string
	Kind          NotificationKind
	Title         string
	Message       string
	AppointmentID string
	Read          bool
	CreatedAt     time.Time
}
