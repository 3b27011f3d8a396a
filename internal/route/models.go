package route

import (
	"time"

	"github.com/Abhinavchoudhary2005/AlertIQ/internal/shared/geo"
)

// SavedRoute is a named commute a journey can be started from.
type SavedRoute struct {
	ID             string      `json:"id"`
	OwnerID        string      `json:"owner_id"`
	Name           string      `json:"name"`
	Points         []geo.Point `json:"points"`
	TotalDistanceM float64     `json:"total_distance_m"`
	CreatedAt      time.Time   `json:"created_at"`
}

type createRequest struct {
	OwnerID string       `json:"ownerId"`
	UID     string       `json:"uid"`
	Name    string       `json:"name" validate:"required"`
	Route   []routePoint `json:"route" validate:"required,min=1,dive"`
}

type routePoint struct {
	Lat float64 `json:"lat" validate:"latitude"`
	Lng float64 `json:"lng" validate:"longitude"`
}
