package repo

import "time"

// DailyChatStats is the aggregate chat row for one calendar day.
type DailyChatStats struct {
	Date                 string
	TotalConversations   int
	TotalWithoutResponse int
	AvgWaitSeconds       int
	UpdatedAt            time.Time
}

// GroupSnapshot mirrors one group of the latest chat statistics fetch. The
// snapshot table is fully replaced on every synchronization run.
type GroupSnapshot struct {
	GroupID        string
	GroupName      string
	QueueSize      int
	AvgWaitSeconds int
	UpdatedAt      time.Time
}

// DailyAppointmentStats is the appointment aggregate for one calendar day.
type DailyAppointmentStats struct {
	Date              string
	TotalAppointments int
	BotAppointments   int
	CRCAppointments   int
	UpdatedAt         time.Time
}

// FinancialAppointment is one reconciled Feegow record, keyed by the vendor's
// appointment id. Date, Specialty and ProfessionalName are set once on insert
// and preserved on conflict.
type FinancialAppointment struct {
	AppointmentID  int64
	Date           string
	StatusID       int
	Value          float64
	Specialty      string
	Professional   string
	ProcedureGroup string
	ScheduledBy    string
	UnitName       string
	UpdatedAt      time.Time
}
