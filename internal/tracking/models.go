package tracking

import "time"

type Location struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot is a point-in-time copy of a session, used for the initial
// stream event and for GET /sos/session/:id.
type Snapshot struct {
	ID        string     `json:"sessionId"`
	UserID    string     `json:"userId"`
	UserName  string     `json:"userName"`
	Locations []Location `json:"locations"`
	Ended     bool       `json:"ended"`
	CreatedAt time.Time  `json:"createdAt"`
	EndedAt   *time.Time `json:"endedAt"`
	Viewers   int        `json:"viewersActive"`
}

type AppendResult struct {
	Recorded bool
	Viewers  int
}

type initMessage struct {
	Type    string   `json:"type"`
	Session Snapshot `json:"session"`
}

type updateMessage struct {
	Type     string   `json:"type"`
	Location Location `json:"location"`
}

type updateLocationRequest struct {
	SessionID string    `json:"sessionId" validate:"required"`
	Location  *point    `json:"location" validate:"required"`
	Timestamp time.Time `json:"timestamp"`
}

type point struct {
	Lat float64 `json:"lat" validate:"latitude"`
	Lng float64 `json:"lng" validate:"longitude"`
}

type endSessionRequest struct {
	SessionID string `json:"sessionId" validate:"required"`
}
