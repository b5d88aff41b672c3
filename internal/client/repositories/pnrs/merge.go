package pnrs

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/models"
)

// Merge takes the snapshot with the newer UpdatedAt as the base (the client's
// on a tie) and fills the base's empty fields from the other side. Passengers
// are matched by Number; unmatched passengers from either side are kept.
func (r *StoreRepository) Merge(client, server json.RawMessage) (json.RawMessage, error) {
	return MergeSnapshots(client, server)
}

func MergeSnapshots(client, server json.RawMessage) (json.RawMessage, error) {
	var c, s models.PNRRecord
	if err := json.Unmarshal(client, &c); err != nil {
		return nil, fmt.Errorf("decode client snapshot: %w", err)
	}
	if len(server) == 0 || string(server) == "null" {
		return json.Marshal(c)
	}
	if err := json.Unmarshal(server, &s); err != nil {
		return nil, fmt.Errorf("decode server snapshot: %w", err)
	}

	newer, older := c, s
	if s.UpdatedAt.After(c.UpdatedAt) {
		newer, older = s, c
	}
	return json.Marshal(mergeRecords(newer, older))
}

func mergeRecords(newer, older models.PNRRecord) models.PNRRecord {
	out := newer

	fill(&out.PNR, older.PNR)
	fill(&out.ChartStatus, older.ChartStatus)
	fill(&out.Train.Number, older.Train.Number)
	fill(&out.Train.Name, older.Train.Name)
	fill(&out.Train.Class, older.Train.Class)
	fill(&out.Journey.From, older.Journey.From)
	fill(&out.Journey.To, older.Journey.To)
	fill(&out.Journey.Date, older.Journey.Date)
	fill(&out.Journey.BoardingPoint, older.Journey.BoardingPoint)

	if out.CreatedAt.IsZero() || (!older.CreatedAt.IsZero() && older.CreatedAt.Before(out.CreatedAt)) {
		out.CreatedAt = older.CreatedAt
	}

	byNumber := make(map[int]models.Passenger, len(newer.Passengers)+len(older.Passengers))
	for _, p := range older.Passengers {
		byNumber[p.Number] = p
	}
	for _, p := range newer.Passengers {
		if prev, ok := byNumber[p.Number]; ok {
			fill(&p.BookingStatus, prev.BookingStatus)
			fill(&p.CurrentStatus, prev.CurrentStatus)
			fill(&p.Coach, prev.Coach)
			fill(&p.Berth, prev.Berth)
		}
		byNumber[p.Number] = p
	}

	out.Passengers = make([]models.Passenger, 0, len(byNumber))
	for _, p := range byNumber {
		out.Passengers = append(out.Passengers, p)
	}
	sort.Slice(out.Passengers, func(i, j int) bool { return out.Passengers[i].Number < out.Passengers[j].Number })

	return out
}

func fill(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}
