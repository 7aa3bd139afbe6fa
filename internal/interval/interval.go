// Package interval renders scheduling intervals as the Japanese duration
// strings shown next to the rating buttons.
package interval

import (
	"fmt"
	"time"
)

const (
	minuteSeconds = 60
	hourSeconds   = 3600
	daySeconds    = 86400
	monthDays     = 30
	yearDays      = 365
)

// FormatSeconds converts a duration in seconds to a bucketed string:
// 秒 below a minute, 分 below an hour, 時間 below a day, 日 below 30 days,
// ヶ月 (30-day months) below a year, 年 with one decimal beyond that.
// Every bucket truncates except 年, which rounds to one decimal.
func FormatSeconds(seconds float64) string {
	if seconds < minuteSeconds {
		return fmt.Sprintf("%d秒", int(seconds))
	}
	if seconds < hourSeconds {
		return fmt.Sprintf("%d分", int(seconds/minuteSeconds))
	}
	if seconds < daySeconds {
		return fmt.Sprintf("%d時間", int(seconds/hourSeconds))
	}
	days := seconds / daySeconds
	if days < monthDays {
		return fmt.Sprintf("%d日", int(days))
	}
	if days < yearDays {
		return fmt.Sprintf("%dヶ月", int(days/monthDays))
	}
	return fmt.Sprintf("%.1f年", days/yearDays)
}

// Format renders a time.Duration using the same buckets.
func Format(d time.Duration) string {
	return FormatSeconds(d.Seconds())
}
