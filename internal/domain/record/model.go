package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RecordType discriminates the payload carried by a HealthRecord.
type RecordType string

const (
	TypeBloodPressure RecordType = "blood_pressure"
	TypeSugarLevel    RecordType = "sugar_level"
	TypeBabyMovement  RecordType = "baby_movement"
	TypeWeeklyUpdate  RecordType = "weekly_update"
)

// Types lists every record type in display order.
var Types = []RecordType{TypeBloodPressure, TypeSugarLevel, TypeBabyMovement, TypeWeeklyUpdate}

// ParseType validates s as a RecordType.
func ParseType(s string) (RecordType, error) {
	switch t := RecordType(s); t {
	case TypeBloodPressure, TypeSugarLevel, TypeBabyMovement, TypeWeeklyUpdate:
		return t, nil
	}
	return "", fmt.Errorf("unknown record type %q", s)
}

// Label is the human form of the type, e.g. "blood pressure".
func (t RecordType) Label() string {
	return strings.ReplaceAll(string(t), "_", " ")
}

// TestType is the circumstance of a blood sugar test.
type TestType string

const (
	TestFasting  TestType = "fasting"
	TestRandom   TestType = "random"
	TestPostMeal TestType = "post_meal"
)

func (t TestType) valid() bool {
	return t == TestFasting || t == TestRandom || t == TestPostMeal
}

// Label is the human form of the test type, e.g. "post meal".
func (t TestType) Label() string {
	return strings.ReplaceAll(string(t), "_", " ")
}

// Payload is the measurement carried by a record. It is implemented only by
// BloodPressure, SugarLevel, BabyMovement and WeeklyUpdate.
type Payload interface {
	Type() RecordType
	payload()
}

// BloodPressure is a blood pressure and pulse reading.
type BloodPressure struct {
	Systolic  int    `json:"systolic"`  // mmHg
	Diastolic int    `json:"diastolic"` // mmHg
	HeartRate int    `json:"heartRate"` // bpm
	Notes     string `json:"notes"`
}

// SugarLevel is a blood glucose reading.
type SugarLevel struct {
	Level    int      `json:"level"` // mg/dL
	TestType TestType `json:"testType"`
	Notes    string   `json:"notes"`
}

// BabyMovement is a fetal movement count over a period.
type BabyMovement struct {
	Count    int    `json:"count"`
	Duration int    `json:"duration"` // minutes
	Notes    string `json:"notes"`
}

// WeeklyUpdate is the weekly weight, symptom and mood check-in.
type WeeklyUpdate struct {
	Weight   float64  `json:"weight"` // kg
	Symptoms []string `json:"symptoms"`
	Mood     int      `json:"mood"` // 1-10
	Notes    string   `json:"notes"`
}

func (BloodPressure) Type() RecordType { return TypeBloodPressure }
func (SugarLevel) Type() RecordType    { return TypeSugarLevel }
func (BabyMovement) Type() RecordType  { return TypeBabyMovement }
func (WeeklyUpdate) Type() RecordType  { return TypeWeeklyUpdate }

func (BloodPressure) payload() {}
func (SugarLevel) payload()    {}
func (BabyMovement) payload()  {}
func (WeeklyUpdate) payload()  {}

// HealthRecord is one timestamped measurement submitted by a patient.
// Records are immutable once built.
type HealthRecord struct {
	ID        string
	PatientID string
	Date      time.Time
	Data      Payload
}

// Type returns the discriminant of the record's payload.
func (r HealthRecord) Type() RecordType {
	if r.Data == nil {
		return ""
	}
	return r.Data.Type()
}

type wireRecord struct {
	ID        string          `json:"id"`
	PatientID string          `json:"patientId"`
	Date      time.Time       `json:"date"`
	Type      RecordType      `json:"type"`
	Data      json.RawMessage `json:"data"`
}

func (r HealthRecord) MarshalJSON() ([]byte, error) {
	if r.Data == nil {
		return nil, fmt.Errorf("record %s has no data", r.ID)
	}
	data, err := json.Marshal(r.Data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireRecord{
		ID:        r.ID,
		PatientID: r.PatientID,
		Date:      r.Date,
		Type:      r.Data.Type(),
		Data:      data,
	})
}

// UnmarshalJSON decodes data into the variant named by type. Fields that do
// not belong to that variant are rejected.
func (r *HealthRecord) UnmarshalJSON(b []byte) error {
	var w wireRecord
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}

	var p Payload
	switch w.Type {
	case TypeBloodPressure:
		var v BloodPressure
		if err := decodeStrict(w.Data, &v); err != nil {
			return fmt.Errorf("decode %s data: %w", w.Type, err)
		}
		p = v
	case TypeSugarLevel:
		var v SugarLevel
		if err := decodeStrict(w.Data, &v); err != nil {
			return fmt.Errorf("decode %s data: %w", w.Type, err)
		}
		if !v.TestType.valid() {
			return fmt.Errorf("decode %s data: invalid testType %q", w.Type, v.TestType)
		}
		p = v
	case TypeBabyMovement:
		var v BabyMovement
		if err := decodeStrict(w.Data, &v); err != nil {
			return fmt.Errorf("decode %s data: %w", w.Type, err)
		}
		p = v
	case TypeWeeklyUpdate:
		var v WeeklyUpdate
		if err := decodeStrict(w.Data, &v); err != nil {
			return fmt.Errorf("decode %s data: %w", w.Type, err)
		}
		if v.Symptoms == nil {
			v.Symptoms = []string{}
		}
		p = v
	default:
		return fmt.Errorf("unknown record type %q", w.Type)
	}

	*r = HealthRecord{ID: w.ID, PatientID: w.PatientID, Date: w.Date, Data: p}
	return nil
}

func decodeStrict(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("missing data")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
