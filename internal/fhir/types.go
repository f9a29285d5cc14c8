// Package fhir pulls Schedule and Slot resources from an upstream FHIR R4
// server and materializes them as bookable day schedules.
package fhir

import "time"

// Bundle is the subset of a FHIR R4 searchset bundle the sync reads.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	Type         string        `json:"type"`
	Total        int           `json:"total"`
	Link         []BundleLink  `json:"link"`
	Entry        []BundleEntry `json:"entry"`
}

type BundleLink struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

// NextURL returns the bundle's pagination link, or "" on the last page.
func (b *Bundle) NextURL() string {
	for _, l := range b.Link {
		if l.Relation == "next" {
			return l.URL
		}
	}
	return ""
}

type BundleEntry struct {
	FullURL  string   `json:"fullUrl"`
	Resource Resource `json:"resource"`
}

// Resource is a union of the Schedule and Slot fields the mapper consumes.
// FHIR resources are polymorphic; ResourceType discriminates.
type Resource struct {
	ResourceType string `json:"resourceType"`
	ID           string `json:"id"`

	// Schedule
	Actor []Reference `json:"actor,omitempty"`

	// Slot
	Schedule *Reference `json:"schedule,omitempty"`
	Status   string     `json:"status,omitempty"`
	Start    time.Time  `json:"start,omitempty"`
	End      time.Time  `json:"end,omitempty"`

	ServiceCategory []CodeableConcept `json:"serviceCategory,omitempty"`
}

type Reference struct {
	Reference string `json:"reference"`
	Display   string `json:"display,omitempty"`
}

type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

// Slot status codes from the R4 value set the sync cares about.
const (
	SlotStatusFree       = "free"
	SlotStatusBusy       = "busy"
	SlotStatusBusyUnavai = "busy-unavailable"
)
