package models

import "time"

// PNRRecord is the full status snapshot of a tracked booking.
type PNRRecord struct {
	PNR         string      `json:"pnr"`
	Train       Train       `json:"train"`
	Journey     Journey     `json:"journey"`
	Passengers  []Passenger `json:"passengers"`
	ChartStatus string      `json:"chartStatus,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

type Train struct {
	Number string `json:"number"`
	Name   string `json:"name,omitempty"`
	Class  string `json:"class,omitempty"`
}

type Journey struct {
	From          string `json:"from"`
	To            string `json:"to"`
	Date          string `json:"date"`
	BoardingPoint string `json:"boardingPoint,omitempty"`
}

// Passenger is one traveller on the booking. Number is the 1-based position
// on the ticket and identifies the passenger across snapshots.
type Passenger struct {
	Number        int    `json:"number"`
	BookingStatus string `json:"bookingStatus"`
	CurrentStatus string `json:"currentStatus"`
	Coach         string `json:"coach,omitempty"`
	Berth         string `json:"berth,omitempty"`
}

// VersionedPNR is the wire shape of a PNR record served by the sync API.
type VersionedPNR struct {
	Version int       `json:"version"`
	Record  PNRRecord `json:"record"`
}
