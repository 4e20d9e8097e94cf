package scheduler

import "time"

// Event is one calendar occasion worth an in-character greeting.
type Event struct {
	Key   string // marker key, stable per occasion
	Label string // shown to the model
}

// Fixed-date holidays, keyed by month-day.
var fixedHolidays = map[string]string{
	"01-01": "元旦",
	"02-14": "情人节",
	"03-14": "白色情人节",
	"05-20": "520",
	"12-24": "平安夜",
	"12-25": "圣诞节",
}

// Lunar holidays resolved to gregorian dates ahead of time. The table needs
// a yearly refresh; an absent year simply skips the lunar triggers.
var lunarHolidays = map[string]string{
	"2025-01-29": "春节",
	"2025-08-29": "七夕",
	"2025-10-06": "中秋节",
	"2026-02-17": "春节",
	"2026-08-19": "七夕",
	"2026-09-25": "中秋节",
	"2027-02-06": "春节",
	"2027-08-08": "七夕",
	"2027-09-15": "中秋节",
	"2028-01-26": "春节",
	"2028-08-26": "七夕",
	"2028-10-03": "中秋节",
}

// EventsOn returns the occasions falling on the given day. birthday is a
// month-day string ("01-02"), empty disables it. firstMet drives the
// monthly same-day anniversary; the month of first meeting itself does not
// count.
func EventsOn(now time.Time, birthday string, firstMet time.Time) []Event {
	var events []Event

	monthDay := now.Format("01-02")
	if label, ok := fixedHolidays[monthDay]; ok {
		events = append(events, Event{Key: "holiday:" + monthDay, Label: label})
	}
	if label, ok := lunarHolidays[now.Format("2006-01-02")]; ok {
		events = append(events, Event{Key: "holiday:lunar:" + monthDay, Label: label})
	}
	if birthday != "" && monthDay == birthday {
		events = append(events, Event{Key: "birthday", Label: "生日"})
	}
	if !firstMet.IsZero() && now.Day() == firstMet.Day() {
		sameMonth := now.Year() == firstMet.Year() && now.Month() == firstMet.Month()
		if !sameMonth {
			events = append(events, Event{Key: "anniversary", Label: "相识纪念日"})
		}
	}
	return events
}
