package handler

import (
	"encoding/json"
	"strings"

	"labtrail/internal/history"
	id "labtrail/pkg/domain"
	dErrors "labtrail/pkg/domain-errors"
	audit "labtrail/pkg/platform/audit"
)

// IngestEntryRequest is the HTTP request body for POST /audit/entries.
type IngestEntryRequest struct {
	EntityType string         `json:"entityType"`
	EntityID   any            `json:"entityId"`
	Action     string         `json:"action"`
	Before     any            `json:"before"`
	After      any            `json:"after"`
	Meta       map[string]any `json:"meta"`
	Actor      *ActorBody     `json:"actor"`

	parsedAction audit.Action
}

// ActorBody overrides the actor resolved from the request.
type ActorBody struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	Name   string `json:"name"`
}

// Validate validates and parses the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *IngestEntryRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}

	r.EntityType = strings.TrimSpace(r.EntityType)
	if _, err := id.ParseEntityType(r.EntityType); err != nil {
		return err
	}

	action, err := audit.ParseAction(r.Action)
	if err != nil {
		return err
	}
	r.parsedAction = action

	switch v := r.EntityID.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return dErrors.New(dErrors.CodeValidation, "entityId is required")
		}
	case json.Number:
	case nil:
		return dErrors.New(dErrors.CodeValidation, "entityId is required")
	default:
		return dErrors.New(dErrors.CodeValidation, "entityId must be a string or number")
	}

	if action == audit.ActionUpdate && (r.Before == nil || r.After == nil) {
		return dErrors.New(dErrors.CodeValidation, "before and after are required for UPDATE")
	}
	return nil
}

// ToIngest converts the validated body into a service request.
func (r *IngestEntryRequest) ToIngest() history.IngestRequest {
	req := history.IngestRequest{
		EntityType: r.EntityType,
		EntityID:   r.EntityID,
		Action:     string(r.parsedAction),
		Before:     r.Before,
		After:      r.After,
		Meta:       r.Meta,
	}
	if r.Actor != nil {
		req.Actor = audit.Actor{
			UserID: strings.TrimSpace(r.Actor.UserID),
			Role:   strings.TrimSpace(r.Actor.Role),
			Name:   strings.TrimSpace(r.Actor.Name),
		}
	}
	return req
}
