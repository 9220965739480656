package models

import "time"

// Shift identifies the reporting period within a day
type Shift string

const (
	ShiftMorning Shift = "morning"
	ShiftNight   Shift = "night"
)

// Valid reports whether s is a known shift
func (s Shift) Valid() bool {
	return s == ShiftMorning || s == ShiftNight
}

// FormStatus is the lifecycle state of a ward form
type FormStatus string

const (
	StatusDraft    FormStatus = "draft"
	StatusFinal    FormStatus = "final"
	StatusApproved FormStatus = "approved"
)

// Valid reports whether s is a known status
func (s FormStatus) Valid() bool {
	return s == StatusDraft || s == StatusFinal || s == StatusApproved
}

// Rank orders statuses for merge preference: approved > final > draft
func (s FormStatus) Rank() int {
	switch s {
	case StatusApproved:
		return 2
	case StatusFinal:
		return 1
	default:
		return 0
	}
}

// Locked reports whether a form in this status can no longer be edited
func (s FormStatus) Locked() bool {
	return s == StatusFinal || s == StatusApproved
}

// SourceTag says which collection a shift record was read from
type SourceTag string

const (
	SourceLiveForm     SourceTag = "liveForm"
	SourceDailySummary SourceTag = "dailySummary"
)

// Snapshot holds point-in-time counts. They do not accumulate over time.
type Snapshot struct {
	PatientCensus     int `json:"patient_census"`
	NurseManagerCount int `json:"nurse_manager_count"`
	RNCount           int `json:"rn_count"`
	PNCount           int `json:"pn_count"`
	WCCount           int `json:"wc_count"`
	AvailableBeds     int `json:"available_beds"`
	UnavailableBeds   int `json:"unavailable_beds"`
	PlannedDischarge  int `json:"planned_discharge"`
}

// Add returns the field-wise sum of s and o
func (s Snapshot) Add(o Snapshot) Snapshot {
	return Snapshot{
		PatientCensus:     s.PatientCensus + o.PatientCensus,
		NurseManagerCount: s.NurseManagerCount + o.NurseManagerCount,
		RNCount:           s.RNCount + o.RNCount,
		PNCount:           s.PNCount + o.PNCount,
		WCCount:           s.WCCount + o.WCCount,
		AvailableBeds:     s.AvailableBeds + o.AvailableBeds,
		UnavailableBeds:   s.UnavailableBeds + o.UnavailableBeds,
		PlannedDischarge:  s.PlannedDischarge + o.PlannedDischarge,
	}
}

// Flows holds event counts that accumulate over a shift
type Flows struct {
	NewAdmit    int `json:"new_admit"`
	TransferIn  int `json:"transfer_in"`
	ReferIn     int `json:"refer_in"`
	Discharge   int `json:"discharge"`
	TransferOut int `json:"transfer_out"`
	ReferOut    int `json:"refer_out"`
	Deaths      int `json:"deaths"`
}

// Add returns the field-wise sum of f and o
func (f Flows) Add(o Flows) Flows {
	return Flows{
		NewAdmit:    f.NewAdmit + o.NewAdmit,
		TransferIn:  f.TransferIn + o.TransferIn,
		ReferIn:     f.ReferIn + o.ReferIn,
		Discharge:   f.Discharge + o.Discharge,
		TransferOut: f.TransferOut + o.TransferOut,
		ReferOut:    f.ReferOut + o.ReferOut,
		Deaths:      f.Deaths + o.Deaths,
	}
}

// AdmitTotal is new admissions plus transfers and referrals in
func (f Flows) AdmitTotal() int {
	return f.NewAdmit + f.TransferIn + f.ReferIn
}

// DischargeTotal is discharges, transfers and referrals out, and deaths
func (f Flows) DischargeTotal() int {
	return f.Discharge + f.TransferOut + f.ReferOut + f.Deaths
}

// ShiftRecord is one shift's worth of raw counts for one ward on one date
type ShiftRecord struct {
	WardID    string     `json:"ward_id"`
	Date      string     `json:"date"`
	Shift     Shift      `json:"shift"`
	Status    FormStatus `json:"status"`
	Source    SourceTag  `json:"source"`
	UpdatedAt time.Time  `json:"updated_at"`
	Snapshot
	Flows
}

// ReconciledDay holds the authoritative record per shift for one ward-day.
// A nil shift means no record exists, which differs from a record of zeros.
type ReconciledDay struct {
	Morning *ShiftRecord
	Night   *ShiftRecord
}

// HasData reports whether any shift has a record
func (d ReconciledDay) HasData() bool {
	return d.Morning != nil || d.Night != nil
}

// DayRollup is one ward's combined counts for one date
type DayRollup struct {
	WardID string `json:"ward_id"`
	Date   string `json:"date"`
	Snapshot
	Flows
	AdmitTotal     int  `json:"admit_total"`
	DischargeTotal int  `json:"discharge_total"`
	HasData        bool `json:"has_data"`
}

// RangeSummary is one ward's counts over a date range
type RangeSummary struct {
	WardID   string `json:"ward_id"`
	WardName string `json:"ward_name"`
	Snapshot
	Flows
	AdmitTotal     int  `json:"admit_total"`
	DischargeTotal int  `json:"discharge_total"`
	HasData        bool `json:"has_data"`

	daysWithData int
}

// DaysWithData is the number of dates that contributed to the snapshot averages
func (r RangeSummary) DaysWithData() int {
	return r.daysWithData
}

// WithDaysWithData returns a copy of r carrying n as its day count
func (r RangeSummary) WithDaysWithData(n int) RangeSummary {
	r.daysWithData = n
	return r
}

// GrandTotalWardID is the sentinel ward id of the grand total row
const GrandTotalWardID = "GRAND_TOTAL"

// GrandTotalRow sums every RangeSummary field across a ward set
type GrandTotalRow struct {
	WardID   string `json:"ward_id"`
	WardName string `json:"ward_name"`
	Snapshot
	Flows
	AdmitTotal     int  `json:"admit_total"`
	DischargeTotal int  `json:"discharge_total"`
	WardCount      int  `json:"ward_count"`
	HasData        bool `json:"has_data"`
}

// WardSetSummary is the table view: per-ward rows plus the grand total
type WardSetSummary struct {
	Start      string         `json:"start"`
	End        string         `json:"end"`
	Rows       []RangeSummary `json:"rows"`
	GrandTotal GrandTotalRow  `json:"grand_total"`
	// wards whose records could not be fetched; their rows are zero
	Unavailable []string `json:"unavailable_wards,omitempty"`
}

// TrendWardPoint is one ward's values on a trend date
type TrendWardPoint struct {
	WardName       string `json:"ward_name"`
	PatientCount   int    `json:"patient_count"`
	AdmitCount     int    `json:"admit_count"`
	DischargeCount int    `json:"discharge_count"`
	HasData        bool   `json:"has_data"`
}

// TrendPoint is one calendar date of the line chart
type TrendPoint struct {
	DateString          string                    `json:"date_string"`
	Date                string                    `json:"date"`
	TotalPatientCount   int                       `json:"total_patient_count"`
	TotalAdmitCount     int                       `json:"total_admit_count"`
	TotalDischargeCount int                       `json:"total_discharge_count"`
	PerWard             map[string]TrendWardPoint `json:"per_ward"`
}

// TrendSeries is the line chart view over a date range
type TrendSeries struct {
	Start  string       `json:"start"`
	End    string       `json:"end"`
	Points []TrendPoint `json:"points"`
	// wards whose records could not be fetched; their values are zero-filled
	Unavailable []string `json:"unavailable_wards,omitempty"`
}

// BedInput is one ward's bed counts fed to the bed projector
type BedInput struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Available        int    `json:"available"`
	Unavailable      int    `json:"unavailable"`
	PlannedDischarge int    `json:"planned_discharge"`
}

// BedSlice is one ward's slice of the bed pie chart
type BedSlice struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Value             int    `json:"value"`
	Available         int    `json:"available"`
	Unavailable       int    `json:"unavailable"`
	PlannedDischarge  int    `json:"planned_discharge"`
	TotalBeds         int    `json:"total_beds"`
	IsUnavailableMode bool   `json:"is_unavailable_mode"`
}

// Ward is a hospital care unit
type Ward struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Role controls which wards a user may see
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleSupervisor Role = "supervisor"
	RoleNurse      Role = "nurse"
)

// UserContext is the authenticated caller
type UserContext struct {
	Username string `json:"username"`
	Role     Role   `json:"role"`
	WardID   string `json:"ward_id,omitempty"`
}

// SeesAllWards reports whether the role is hospital-wide
func (u UserContext) SeesAllWards() bool {
	return u.Role == RoleAdmin || u.Role == RoleSupervisor
}

// SelectionKind distinguishes a single-ward view from a multi-ward view
type SelectionKind string

const (
	SelectSingle SelectionKind = "single"
	SelectMulti  SelectionKind = "multi"
)

// WardSelection is decided once at the request boundary
type WardSelection struct {
	Kind   SelectionKind `json:"kind"`
	WardID string        `json:"ward_id,omitempty"`
}

// AllWards selects every accessible ward
func AllWards() WardSelection {
	return WardSelection{Kind: SelectMulti}
}

// SingleWard selects one ward
func SingleWard(id string) WardSelection {
	return WardSelection{Kind: SelectSingle, WardID: id}
}
