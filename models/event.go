package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Event struct {
	ID               string          `json:"id"`
	ArtistID         string          `json:"artist_id"`
	Name             string          `json:"name"`
	Venue            string          `json:"venue"`
	City             string          `json:"city"`
	Date             time.Time       `json:"date"`
	QueueCapacity    int             `json:"queue_capacity"`
	CurrentQueueSize int             `json:"current_queue_size"`
	IsActive         bool            `json:"is_active"`
	MinPrice         decimal.Decimal `json:"min_price"`
	MaxPrice         decimal.Decimal `json:"max_price"`
}

// AtCapacity reports whether another admission would exceed the ceiling.
func (e *Event) AtCapacity() bool {
	return e.CurrentQueueSize >= e.QueueCapacity
}

// EventDisplay is the denormalized slice of an event returned with queue
// status responses.
type EventDisplay struct {
	Name     string          `json:"name"`
	Venue    string          `json:"venue"`
	City     string          `json:"city"`
	Date     time.Time       `json:"date"`
	MinPrice decimal.Decimal `json:"min_price"`
	MaxPrice decimal.Decimal `json:"max_price"`
}

func (e *Event) Display() EventDisplay {
	return EventDisplay{
		Name:     e.Name,
		Venue:    e.Venue,
		City:     e.City,
		Date:     e.Date,
		MinPrice: e.MinPrice,
		MaxPrice: e.MaxPrice,
	}
}
