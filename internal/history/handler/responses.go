package handler

import (
	"labtrail/internal/history"
)

// RecentResponse is the HTTP response for GET /audit/recent.
type RecentResponse struct {
	Count   int                 `json:"count"`
	Entries []history.EntryView `json:"entries"`
}

// AcceptedResponse acknowledges an ingest request. Recording happens
// asynchronously, so acceptance says nothing about persistence.
type AcceptedResponse struct {
	Status    string `json:"status"`
	RequestID string `json:"requestId,omitempty"`
}

// ProfilesResponse lists the entity types with display profiles.
type ProfilesResponse struct {
	EntityTypes []string `json:"entityTypes"`
}
