package contacts

import "time"

type Contact struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

type Owner struct {
	ID    string `json:"uid"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type Profile struct {
	Owner
	EmergencyContacts []Contact `json:"emergencyContacts"`
}

// Alert is the audit record of one escalation.
type Alert struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	SessionID string    `json:"session_id"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Sent      int       `json:"sent"`
	Failed    int       `json:"failed"`
	CreatedAt time.Time `json:"created_at"`
}

type saveRequest struct {
	UID            string `json:"uid" validate:"required"`
	Phone          string `json:"phone"`
	Name           string `json:"name"`
	EmergencyName  string `json:"emergencyName"`
	EmergencyPhone string `json:"emergencyPhone" validate:"required"`
}
