package record

import (
	"math"
	"time"
)

// FullTermWeeks is the length of a full-term pregnancy.
const FullTermWeeks = 40

const week = 7 * 24 * time.Hour

// WeeksRemaining is the number of started weeks between today and dueDate,
// rounded up. A zero or past due date yields 0.
func WeeksRemaining(dueDate, today time.Time) int {
	if dueDate.IsZero() {
		return 0
	}
	diff := dueDate.Sub(today)
	if diff <= 0 {
		return 0
	}
	weeks := int(diff / week)
	if diff%week != 0 {
		weeks++
	}
	return weeks
}

// ProgressPercent is currentWeek as a rounded percentage of a full term.
func ProgressPercent(currentWeek int) int {
	if currentWeek <= 0 {
		return 0
	}
	return int(math.Round(float64(currentWeek) / FullTermWeeks * 100))
}
