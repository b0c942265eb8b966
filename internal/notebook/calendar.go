package notebook

import (
	"context"
	"time"

	"github.com/homelab-00/transcription-suite/internal/database"
)

// DayGroup is one calendar day's recordings, for GET /api/notebook/calendar.
type DayGroup struct {
	Date       string                `json:"date"`
	Recordings []database.Recording `json:"recordings"`
}

// Calendar groups a month's recordings by the day they were recorded.
func Calendar(ctx context.Context, db *database.DB, year, month int) ([]DayGroup, error) {
	loc := time.UTC
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, loc)
	to := from.AddDate(0, 1, 0)

	recordings, err := db.ListRecordings(ctx, &from, &to)
	if err != nil {
		return nil, err
	}

	byDay := make(map[string][]database.Recording)
	var order []string
	for _, r := range recordings {
		day := r.RecordedAt.Format("2006-01-02")
		if _, seen := byDay[day]; !seen {
			order = append(order, day)
		}
		byDay[day] = append(byDay[day], r)
	}

	out := make([]DayGroup, 0, len(order))
	for _, day := range order {
		out = append(out, DayGroup{Date: day, Recordings: byDay[day]})
	}
	return out, nil
}

// TimeSlotFreeSpace describes whether a one-hour window starting at
// date+hour is occupied by existing recordings. FreeSeconds is 3600 when no
// recording overlaps the window and 0 when any does; partial occupancy is
// not measured.
type TimeSlotFreeSpace struct {
	Date            string  `json:"date"`
	Hour            int     `json:"hour"`
	Occupied        bool    `json:"occupied"`
	FreeSeconds     float64 `json:"free_seconds"`
}

// TimeSlot reports whether the one-hour window [date hour:00, date hour+1:00)
// overlaps any existing recording.
func TimeSlot(ctx context.Context, db *database.DB, date string, hour int) (*TimeSlotFreeSpace, error) {
	start, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, err
	}
	start = start.Add(time.Duration(hour) * time.Hour)

	overlaps, _, err := db.CheckTimeSlotOverlap(ctx, start, time.Hour, 0)
	if err != nil {
		return nil, err
	}

	free := 3600.0
	if overlaps {
		free = 0
	}
	return &TimeSlotFreeSpace{Date: date, Hour: hour, Occupied: overlaps, FreeSeconds: free}, nil
}
