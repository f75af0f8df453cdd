package models

import (
	"fmt"
	"time"
)

// Criticality is the coarse priority tier of a component or reported issue.
type Criticality string

const (
	CriticalityHigh   Criticality = "high"
	CriticalityMedium Criticality = "medium"
	CriticalityLow    Criticality = "low"
)

// IsValidCriticality checks if a criticality value is valid
func IsValidCriticality(c Criticality) bool {
	switch c {
	case CriticalityHigh, CriticalityMedium, CriticalityLow:
		return true
	default:
		return false
	}
}

// Component is the static maintenance specification for one serviceable part
// of a piece of equipment. Intervals left nil are never evaluated.
type Component struct {
	Name          string      `bson:"name" json:"name"`
	Criticality   Criticality `bson:"criticality" json:"criticality"`
	HoursInterval *float64    `bson:"hours_interval,omitempty" json:"hours_interval,omitempty"`
	KmInterval    *float64    `bson:"km_interval,omitempty" json:"km_interval,omitempty"`
	DaysInterval  *int        `bson:"days_interval,omitempty" json:"days_interval,omitempty"`
}

// ComponentRecord tracks the last completed service for a component on a
// specific piece of equipment. The baseline only ever moves forward.
type ComponentRecord struct {
	Component        Component `bson:"component" json:"component"`
	LastServiceDate  time.Time `bson:"last_service_date" json:"last_service_date"`
	LastServiceHours float64   `bson:"last_service_hours" json:"last_service_hours"`
	LastServiceKm    float64   `bson:"last_service_km" json:"last_service_km"`
}

// IsDue reports whether the component is due for maintenance given the
// current readings. Thresholds are checked in fixed order: hours, then
// kilometres, then days; the first one reached wins and its reason is
// returned. A dimension without a configured interval is skipped.
func (r *ComponentRecord) IsDue(referenceDate time.Time, currentHours, currentKm float64) (bool, string) {
	if iv := r.Component.HoursInterval; iv != nil {
		delta := currentHours - r.LastServiceHours
		if delta >= *iv {
			return true, fmt.Sprintf("hours threshold reached: %.0fh since last service >= %.0fh interval", delta, *iv)
		}
	}

	if iv := r.Component.KmInterval; iv != nil {
		delta := currentKm - r.LastServiceKm
		if delta >= *iv {
			return true, fmt.Sprintf("distance threshold reached: %.0f km since last service >= %.0f km interval", delta, *iv)
		}
	}

	if iv := r.Component.DaysInterval; iv != nil {
		days := int(referenceDate.Sub(r.LastServiceDate).Hours() / 24)
		if days >= *iv {
			return true, fmt.Sprintf("calendar threshold reached: %d days since last service >= %d day interval", days, *iv)
		}
	}

	return false, ""
}

// Rebaseline advances the last-service readings to the given values. The
// counters are monotonic, so a value behind the current baseline is ignored
// rather than moving the record backward.
func (r *ComponentRecord) Rebaseline(serviceDate time.Time, hours, km float64) {
	if serviceDate.After(r.LastServiceDate) {
		r.LastServiceDate = serviceDate
	}
	if hours > r.LastServiceHours {
		r.LastServiceHours = hours
	}
	if km > r.LastServiceKm {
		r.LastServiceKm = km
	}
}
