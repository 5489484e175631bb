package record

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"
)

// RawFields holds form input keyed by payload field name. Values are strings
// or numbers as supplied by the client; "symptoms" may also be a list or a
// comma-separated string.
type RawFields map[string]interface{}

// ValidationError reports a rejected submission field.
type ValidationError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Reason
}

func required(field string) *ValidationError {
	return &ValidationError{Field: field, Reason: "is required"}
}

// NewID returns a unique identifier that sorts by creation order.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the random source does.
		panic(fmt.Sprintf("generate id: %v", err))
	}
	return id.String()
}

// Build validates raw form fields for type t and returns a new record dated
// now. It has no side effects.
func Build(t RecordType, raw RawFields, patientID string, now time.Time) (HealthRecord, error) {
	data, err := buildPayload(t, raw)
	if err != nil {
		return HealthRecord{}, err
	}
	return HealthRecord{
		ID:        NewID(),
		PatientID: patientID,
		Date:      now.UTC(),
		Data:      data,
	}, nil
}

func buildPayload(t RecordType, raw RawFields) (Payload, error) {
	notes, err := optionalString(raw, "notes")
	if err != nil {
		return nil, err
	}

	switch t {
	case TypeBloodPressure:
		sys, err := intField(raw, "systolic")
		if err != nil {
			return nil, err
		}
		dia, err := intField(raw, "diastolic")
		if err != nil {
			return nil, err
		}
		hr, err := intField(raw, "heartRate")
		if err != nil {
			return nil, err
		}
		return BloodPressure{Systolic: sys, Diastolic: dia, HeartRate: hr, Notes: notes}, nil

	case TypeSugarLevel:
		level, err := intField(raw, "level")
		if err != nil {
			return nil, err
		}
		tt, err := optionalString(raw, "testType")
		if err != nil {
			return nil, err
		}
		testType := TestFasting
		if tt != "" {
			testType = TestType(tt)
		}
		if !testType.valid() {
			return nil, &ValidationError{Field: "testType", Reason: "must be one of fasting, random, post_meal"}
		}
		return SugarLevel{Level: level, TestType: testType, Notes: notes}, nil

	case TypeBabyMovement:
		count, err := intField(raw, "count")
		if err != nil {
			return nil, err
		}
		dur, err := intField(raw, "duration")
		if err != nil {
			return nil, err
		}
		return BabyMovement{Count: count, Duration: dur, Notes: notes}, nil

	case TypeWeeklyUpdate:
		weight, err := floatField(raw, "weight")
		if err != nil {
			return nil, err
		}
		mood, err := intField(raw, "mood")
		if err != nil {
			return nil, err
		}
		if mood < 1 || mood > 10 {
			return nil, &ValidationError{Field: "mood", Reason: "must be between 1 and 10"}
		}
		symptoms, err := symptomSet(raw["symptoms"])
		if err != nil {
			return nil, err
		}
		return WeeklyUpdate{Weight: weight, Symptoms: symptoms, Mood: mood, Notes: notes}, nil
	}

	return nil, &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown record type %q", t)}
}

func intField(raw RawFields, name string) (int, error) {
	v, ok := raw[name]
	if !ok || v == nil {
		return 0, required(name)
	}
	invalid := &ValidationError{Field: name, Reason: "must be a whole number"}

	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, required(name)
		}
		n, err := strconv.ParseInt(s, 10, 0)
		if err != nil {
			return 0, invalid
		}
		return int(n), nil
	case json.Number:
		if n, err := strconv.ParseInt(x.String(), 10, 0); err == nil {
			return int(n), nil
		}
		f, err := x.Float64()
		if err != nil {
			return 0, invalid
		}
		return wholeNumber(f, invalid)
	case float64:
		return wholeNumber(x, invalid)
	case float32:
		return wholeNumber(float64(x), invalid)
	case uint, uint8, uint16, uint32, uint64:
		n, err := cast.ToUint64E(x)
		if err != nil || n > math.MaxInt {
			return 0, invalid
		}
		return int(n), nil
	case bool:
		return 0, invalid
	}

	n, err := cast.ToInt64E(v)
	if err != nil || n < math.MinInt || n > math.MaxInt {
		return 0, invalid
	}
	return int(n), nil
}

// wholeNumber converts f to int when it is integral and fits the int range.
func wholeNumber(f float64, invalid *ValidationError) (int, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, invalid
	}
	if f < float64(math.MinInt) || f >= -float64(math.MinInt) {
		return 0, invalid
	}
	return int(f), nil
}

func floatField(raw RawFields, name string) (float64, error) {
	v, ok := raw[name]
	if !ok || v == nil {
		return 0, required(name)
	}
	invalid := &ValidationError{Field: name, Reason: "must be a number"}

	var f float64
	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, required(name)
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, invalid
		}
		f = parsed
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, invalid
		}
		f = parsed
	case bool:
		return 0, invalid
	default:
		parsed, err := cast.ToFloat64E(v)
		if err != nil {
			return 0, invalid
		}
		f = parsed
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, invalid
	}
	return f, nil
}

func optionalString(raw RawFields, name string) (string, error) {
	v, ok := raw[name]
	if !ok || v == nil {
		return "", nil
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return "", &ValidationError{Field: name, Reason: "must be text"}
	}
	return s, nil
}

// symptomSet normalises the symptoms input to a de-duplicated list in
// first-seen order. Absent input yields an empty, non-nil set.
func symptomSet(v interface{}) ([]string, error) {
	var items []string
	switch x := v.(type) {
	case nil:
	case string:
		items = strings.Split(x, ",")
	default:
		list, err := cast.ToStringSliceE(v)
		if err != nil {
			return nil, &ValidationError{Field: "symptoms", Reason: "must be a list of text"}
		}
		items = list
	}

	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, s := range items {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out, nil
}
