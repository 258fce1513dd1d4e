package model

import "time"

// MaintenanceReport summarizes a maintenance sweep.
type MaintenanceReport struct {
	RunID            string    `json:"run_id" yaml:"run_id"`
	PinsProcessed    int       `json:"pins_processed" yaml:"pins_processed"`
	ScoresUpdated    int       `json:"scores_updated" yaml:"scores_updated"`
	LifecycleUpdated int       `json:"lifecycle_updated" yaml:"lifecycle_updated"`
	ExpiredPins      int       `json:"expired_pins" yaml:"expired_pins"`
	NewClassics      int       `json:"new_classics" yaml:"new_classics"`
	NewTrending      int       `json:"new_trending" yaml:"new_trending"`
	HiddenPins       int       `json:"hidden_pins" yaml:"hidden_pins"`
	Errors           []string  `json:"errors" yaml:"errors"`
	Skipped          bool      `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	StartedAt        time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt       time.Time `json:"finished_at" yaml:"finished_at"`
}

// MaintenanceRun is the persisted marker of the last completed sweep.
type MaintenanceRun struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Processed  int       `json:"processed"`
	Errors     int       `json:"errors"`
}

// DashboardStats aggregates place counts for the admin dashboard.
type DashboardStats struct {
	TotalPlaces          int         `json:"total_places" yaml:"total_places"`
	VisiblePlaces        int         `json:"visible_places" yaml:"visible_places"`
	HiddenPlaces         int         `json:"hidden_places" yaml:"hidden_places"`
	TabCounts            map[Tab]int `json:"tab_counts" yaml:"tab_counts"`
	TotalEndorsements    uint        `json:"total_endorsements" yaml:"total_endorsements"`
	TotalDownvotes       uint        `json:"total_downvotes" yaml:"total_downvotes"`
	ExternalLookupsToday uint        `json:"external_lookups_today" yaml:"external_lookups_today"`
	GeneratedAt          time.Time   `json:"generated_at" yaml:"generated_at"`
}
