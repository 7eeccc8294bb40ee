package handler

import (
	"terrarun/internal/territory/model"
	"terrarun/internal/territory/service"
)

// CaptureRequest is the POST /territories/capture body.
type CaptureRequest struct {
	HexIDs           []string         `json:"hexIds"`
	Coordinates      []model.LatLng   `json:"coordinates"`
	RoutePoints      [][]model.LatLng `json:"routePoints,omitempty"`
	CaptureSessionID string           `json:"captureSessionId,omitempty"`
}

func (r CaptureRequest) toDomain() service.CaptureRequest {
	return service.CaptureRequest{
		HexIDs:           r.HexIDs,
		Coordinates:      r.Coordinates,
		RoutePoints:      r.RoutePoints,
		CaptureSessionID: r.CaptureSessionID,
	}
}

// RenameRequest is the PATCH /territories/{id}/name body.
type RenameRequest struct {
	Name string `json:"name"`
}
