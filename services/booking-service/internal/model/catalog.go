package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Therapy struct {
	ID              string
	Name            string
	Description     string
	DurationMinutes int
	Price           decimal.Decimal
	ImageURL        string
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Testimonial struct {
	ID         string
	AuthorID   string
	AuthorName string
	TherapyID  string
	Rating     int
	Content    string
	Approved   bool
	CreatedAt  time.Time
}
