package core

import "time"

// RunSchedule re-runs a suite on a cron expression, non-interactively.
type RunSchedule struct {
	// ID is the unique schedule identifier.
	ID string `json:"id"`
	// SuiteName names the suite to run.
	SuiteName string `json:"suiteName"`
	// EnvironmentName names the environment to run against.
	EnvironmentName string `json:"environmentName"`
	// CronExpr is a 5-field (minute) or 6-field (second) cron expression.
	CronExpr string `json:"cronExpr"`
	// Active schedules fire; inactive ones are kept but not registered.
	Active bool `json:"active"`
	// Description is optional free text.
	Description string `json:"description,omitempty"`
	// NextRunAt is the next computed fire time.
	NextRunAt time.Time `json:"nextRunAt,omitzero"`
	// LastRunAt is when the schedule last fired.
	LastRunAt time.Time `json:"lastRunAt,omitzero"`
	// Deleted marks the schedule soft-deleted; it no longer fires and is
	// hidden from listings.
	Deleted bool `json:"deleted,omitempty"`
	// CreatedAt is when the schedule was created.
	CreatedAt time.Time `json:"createdAt,omitzero"`
	// UpdatedAt is when the schedule was last modified.
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}
