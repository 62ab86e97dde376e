package core

import (
	"fmt"
	"strings"
	"time"
)

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// MonthlyTime is one month of a yearly time report.
type MonthlyTime struct {
	Month     int    `json:"month"`
	MonthName string `json:"month_name"`
	TimeSpent int    `json:"time_spent"`
}

// MonthlyReport expands {month: seconds} into the 12 months of a year.
func MonthlyReport(byMonth map[int]int) []MonthlyTime {
	report := make([]MonthlyTime, 0, 12)
	for m := 1; m <= 12; m++ {
		report = append(report, MonthlyTime{
			Month:     m,
			MonthName: MonthName(m),
			TimeSpent: byMonth[m],
		})
	}
	return report
}

// MonthName returns the abbreviated English name of month m (1-12).
func MonthName(m int) string {
	return time.Month(m).String()[:3]
}

// FormatSeconds renders a duration in seconds as "Xm Ys".
func FormatSeconds(secs int) string {
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%dm %ds", secs/60, secs%60)
}

// YearRange returns [Jan 1 of year, Jan 1 of year+1) in UTC.
func YearRange(year int) (time.Time, time.Time) {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(1, 0, 0)
}
