// Package registry manages the credential registry: the subjects allowed
// through the gate, keyed by the external ID printed in their scannable
// credential. The gate cycle only ever reads it; CRUD belongs to the admin
// HTTP surface.
package registry

import "time"

// Entry is one registry subject.
type Entry struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"externalId"` // credential payload, unique
	Name       string    `json:"name"`
	Course     string    `json:"course,omitempty"`
	Email      string    `json:"email,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}
