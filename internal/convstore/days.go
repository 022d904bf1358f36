package convstore

import "github.com/roach88/convsync/internal/model"

func groupByDay(msgs []model.Message) []DayGroup {
	days := make([]DayGroup, 0)
	for _, m := range msgs {
		day := m.Day()
		if n := len(days); n > 0 && days[n-1].Date == day {
			days[n-1].Messages = append(days[n-1].Messages, m)
			continue
		}
		days = append(days, DayGroup{Date: day, Messages: []model.Message{m}})
	}
	return days
}

// Boundaries returns the number of day separators a renderer draws between
// the groups of days.
func Boundaries(days []DayGroup) int {
	if len(days) == 0 {
		return 0
	}
	return len(days) - 1
}
