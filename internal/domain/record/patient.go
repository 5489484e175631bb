package record

import "time"

// Patient is a registered patient together with the embedded record list.
type Patient struct {
	ID                string             `json:"id"`
	Name              string             `json:"name"`
	Email             string             `json:"email,omitempty"`
	DueDate           *time.Time         `json:"dueDate,omitempty"`
	CurrentWeek       int                `json:"currentWeek"`
	EmergencyContacts []EmergencyContact `json:"emergencyContacts,omitempty"`
	HealthRecords     []HealthRecord     `json:"healthRecords"`
	CreatedAt         time.Time          `json:"createdAt"`
}

// EmergencyContact is a person the patient can call from the dashboard.
type EmergencyContact struct {
	Name         string `json:"name"`
	Relationship string `json:"relationship,omitempty"`
	Phone        string `json:"phone"`
}
