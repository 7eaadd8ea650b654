// Package loadtest drives a running snackboard server with many simulated
// snackers at once and checks that the ranking it serves afterwards matches
// what was pushed.
package loadtest

import "time"

// Config holds configuration for a load run.
type Config struct {
	BaseURL    string        // Base URL of the server
	Users      int           // Number of simulated snackers
	MaxBites   int           // Upper bound of a snacker's final count
	Workers    int           // Number of concurrent workers
	Timeout    time.Duration // HTTP request timeout
	OutputFile string        // Where the generated plan is written; empty skips it
	Strict     bool          // Fail the run when the ranking disagrees with the plan
	Verbose    bool
}

// Snacker is one simulated user and the count it ends on.
type Snacker struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Final    int    `json:"final"`
}

// Mismatch describes a snacker whose served count differs from its plan.
type Mismatch struct {
	UserID   string
	Expected int
	Got      int
	Missing  bool
}

// Stats holds run statistics.
type Stats struct {
	Snackers       int
	PushesPlanned  int
	PushesAccepted int
	PushesFailed   int
	RankingEntries int
	Mismatches     []Mismatch
	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
}
