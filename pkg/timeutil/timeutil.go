package timeutil

import (
	"fmt"
	"time"
)

const (
	TimeFormatCommonStyleDay = "2006-01-02"
	TimeFormatCommonStyleMin = "2006-01-02 15:04"
	TimeFormatCNStyleDay     = "2006年01月02日"
	TimeFormatClock          = "15:04"
)

var weekdayCN = []string{"日", "一", "二", "三", "四", "五", "六"}

// WeekdayCN 中文星期，time.Weekday 以周日为 0
func WeekdayCN(t time.Time) string {
	return weekdayCN[int(t.Weekday())]
}

// SeasonCN 按月份划分四季
func SeasonCN(t time.Time) string {
	switch m := t.Month(); {
	case m >= 3 && m <= 5:
		return "春季"
	case m >= 6 && m <= 8:
		return "夏季"
	case m >= 9 && m <= 11:
		return "秋季"
	default:
		return "冬季"
	}
}

// DateToInt "2006-01-02" -> 20060102
func DateToInt(date string) (int, error) {
	t, err := time.Parse(TimeFormatCommonStyleDay, date)
	if err != nil {
		return 0, err
	}
	return t.Year()*10000 + int(t.Month())*100 + t.Day(), nil
}

// IntToDate 20060102 -> "2006-01-02"
func IntToDate(v int) string {
	return fmt.Sprintf("%04d-%02d-%02d", v/10000, v/100%100, v%100)
}

// ClockToInt "15:04" -> 1504
func ClockToInt(clock string) (int, error) {
	t, err := time.Parse(TimeFormatClock, clock)
	if err != nil {
		return 0, err
	}
	return t.Hour()*100 + t.Minute(), nil
}

// IntToClock 1504 -> "15:04"
func IntToClock(v int) string {
	return fmt.Sprintf("%02d:%02d", v/100, v%100)
}
