// Package alert turns newly created health records into clinician
// notifications and keeps the global, newest-first notification log.
package alert

import (
	"fmt"
	"time"

	"github.com/momcare/pregnancy-tracker/internal/domain/record"
)

// Readings strictly above these limits are urgent.
const (
	SystolicLimit  = 140
	DiastolicLimit = 90
)

// Derive builds the notification for a record that has just been stored.
func Derive(rec record.HealthRecord, patientID, patientName string) Notification {
	return Notification{
		ID:          record.NewID(),
		PatientID:   patientID,
		PatientName: patientName,
		Severity:    SeverityOf(rec),
		Message:     Message(rec),
		Timestamp:   time.Now().UTC(),
	}
}

// SeverityOf is urgent only for a blood pressure reading whose systolic or
// diastolic value exceeds its limit.
func SeverityOf(rec record.HealthRecord) Severity {
	if bp, ok := rec.Data.(record.BloodPressure); ok && highBloodPressure(bp) {
		return SeverityUrgent
	}
	return SeverityInfo
}

func highBloodPressure(bp record.BloodPressure) bool {
	return bp.Systolic > SystolicLimit || bp.Diastolic > DiastolicLimit
}

// Message renders the feed text for rec.
func Message(rec record.HealthRecord) string {
	switch d := rec.Data.(type) {
	case record.BloodPressure:
		if highBloodPressure(d) {
			return fmt.Sprintf("High blood pressure reading: %d/%d", d.Systolic, d.Diastolic)
		}
		return fmt.Sprintf("New blood pressure reading: %d/%d", d.Systolic, d.Diastolic)
	case record.SugarLevel:
		return fmt.Sprintf("New sugar level reading: %d mg/dL (%s)", d.Level, d.TestType)
	case record.BabyMovement:
		return fmt.Sprintf("Baby movement recorded: %d movements in %d minutes", d.Count, d.Duration)
	case record.WeeklyUpdate:
		return "New weekly update submitted"
	default:
		return "New health record added"
	}
}
