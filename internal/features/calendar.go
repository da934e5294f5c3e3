package features

import "time"

// Weekday returns the day of week with Monday as 0.
func Weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// TimeOfDay returns the morning (5-11h), afternoon (12-17h), evening (18-23h)
// and night (0-4h) flags for hour. Exactly one flag is set for hours 0-23.
func TimeOfDay(hour int) (morning, afternoon, evening, night float64) {
	switch {
	case hour >= 5 && hour <= 11:
		morning = 1
	case hour >= 12 && hour <= 17:
		afternoon = 1
	case hour >= 18 && hour <= 23:
		evening = 1
	case hour >= 0 && hour <= 4:
		night = 1
	}
	return
}

// IsWeekendDay reports Saturday (5) or Sunday (6).
func IsWeekendDay(dayOfWeek int) bool {
	return dayOfWeek == 5 || dayOfWeek == 6
}

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Calendar carries whatever is known about when a record happened. A zero
// Calendar yields no time-of-day signal.
type Calendar struct {
	Time      *time.Time
	Hour      *int
	DayOfWeek *int
}

// CalendarAt is a Calendar with a full timestamp.
func CalendarAt(t time.Time) Calendar { return Calendar{Time: &t} }

// apply writes the calendar columns into row. Hour and DayOfWeek override the
// values derived from Time. The extended columns (month, day, week, quarter)
// are only written when extended is set and Time is known.
func (c Calendar) apply(row Row, extended bool) {
	hour, dow := -1, -1
	if c.Time != nil {
		hour, dow = c.Time.Hour(), Weekday(*c.Time)
	}
	if c.Hour != nil {
		hour = *c.Hour
	}
	if c.DayOfWeek != nil {
		dow = *c.DayOfWeek
	}

	row[Hour], row[DayOfWeek] = 0, 0
	row[IsMorning], row[IsAfternoon], row[IsEvening], row[IsNight], row[IsWeekend] = 0, 0, 0, 0, 0
	if hour >= 0 {
		row[Hour] = float64(hour)
		row[IsMorning], row[IsAfternoon], row[IsEvening], row[IsNight] = TimeOfDay(hour)
	}
	if dow >= 0 {
		row[DayOfWeek] = float64(dow)
		row[IsWeekend] = flag(IsWeekendDay(dow))
	}

	if !extended || c.Time == nil {
		return
	}
	t := *c.Time
	_, week := t.ISOWeek()
	row[Month] = float64(t.Month())
	row[Day] = float64(t.Day())
	row[WeekOfYear] = float64(week)
	row[Quarter] = float64((int(t.Month())-1)/3 + 1)
}
