package api

import "time"

type HealthResponse struct {
	SchemaVersion string    `json:"schema_version"`
	GeneratedAt   time.Time `json:"generated_at"`
	Status        string    `json:"status"`
	Identifier    uint32    `json:"identifier,omitempty"`
	Source        string    `json:"source,omitempty"`
	Clients       int       `json:"clients"`
}
