package models

// MonitorStatus is the state of a single user's monitor
type MonitorStatus struct {
	Active       bool
	MailAddress  string // empty when not monitored
	MessageCount int
}

// MonitorSummary is one entry of the active monitors listing
type MonitorSummary struct {
	UserID      int64
	MailAddress string
	Active      bool
}
