package orders

import (
	"fmt"
	"time"
)

const orderNumberPrefix = "ORD"

// sequenceDay is the calendar day, in loc, that an order placed at t counts against.
func sequenceDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc)
}

// FormatOrderNumber renders ORD-YYMMDD-NNNN. Sequences past 9999 keep growing.
func FormatOrderNumber(day time.Time, seq int) string {
	return fmt.Sprintf("%s-%s-%04d", orderNumberPrefix, day.Format("060102"), seq)
}

func sequenceKey(day time.Time) string {
	return day.Format("2006-01-02")
}
