package database

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Ward represents the wards table
type Ward struct {
	ID        string `gorm:"primaryKey;size:64" json:"id"`
	Name      string `gorm:"not null" json:"name"`
	SortOrder int    `gorm:"default:0" json:"sort_order"`
	Archived  bool   `json:"archived"`
}

// ShiftCounts are the raw per-shift columns. Pointers let a missing value be
// told apart from a submitted zero.
type ShiftCounts struct {
	PatientCensus     *int `json:"patient_census"`
	NurseManagerCount *int `json:"nurse_manager_count"`
	RNCount           *int `json:"rn_count"`
	PNCount           *int `json:"pn_count"`
	WCCount           *int `json:"wc_count"`
	AvailableBeds     *int `json:"available_beds"`
	UnavailableBeds   *int `json:"unavailable_beds"`
	PlannedDischarge  *int `json:"planned_discharge"`
	NewAdmit          *int `json:"new_admit"`
	TransferIn        *int `json:"transfer_in"`
	ReferIn           *int `json:"refer_in"`
	Discharge         *int `json:"discharge"`
	TransferOut       *int `json:"transfer_out"`
	ReferOut          *int `json:"refer_out"`
	Deaths            *int `json:"deaths"`
}

// WardForm represents the ward_forms table, one live form per ward, date and shift
type WardForm struct {
	ID        string      `gorm:"primaryKey;size:36" json:"id"`
	WardID    string      `gorm:"uniqueIndex:idx_form_ward_date_shift;size:64;not null" json:"ward_id"`
	Date      string      `gorm:"uniqueIndex:idx_form_ward_date_shift;size:10;not null;index" json:"date"`
	Shift     string      `gorm:"uniqueIndex:idx_form_ward_date_shift;size:16;not null" json:"shift"`
	Status    string      `gorm:"size:16;not null;default:draft" json:"status"`
	Counts    ShiftCounts `gorm:"embedded" json:"counts"`
	CreatedBy string      `json:"created_by"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// DailySummary represents the daily_summaries table: precomputed per-shift
// counts for one ward-day, lower priority than a live form.
type DailySummary struct {
	ID              string      `gorm:"primaryKey;size:36" json:"id"`
	WardID          string      `gorm:"uniqueIndex:idx_summary_ward_date;size:64;not null" json:"ward_id"`
	Date            string      `gorm:"uniqueIndex:idx_summary_ward_date;size:10;not null;index" json:"date"`
	MorningRecorded bool        `json:"morning_recorded"`
	NightRecorded   bool        `json:"night_recorded"`
	Morning         ShiftCounts `gorm:"embedded;embeddedPrefix:morning_" json:"morning"`
	Night           ShiftCounts `gorm:"embedded;embeddedPrefix:night_" json:"night"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// DashboardUser represents the dashboard_users table
type DashboardUser struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"unique;not null" json:"username"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Role         string    `gorm:"size:16;not null" json:"role"`
	WardID       string    `gorm:"size:64" json:"ward_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// APIKey represents the api_keys table used by ingestion clients
type APIKey struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	Key       string     `gorm:"unique;not null" json:"-"`
	Name      string     `gorm:"not null" json:"name"`
	CreatedAt time.Time  `json:"created_at"`
	LastUsed  *time.Time `json:"last_used"`
}

// APIUsage represents the api_usage table, one row per key per day
type APIUsage struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	KeyID          uint   `gorm:"uniqueIndex:idx_usage_key_date;not null" json:"key_id"`
	Date           string `gorm:"uniqueIndex:idx_usage_key_date;size:10;not null" json:"date"`
	RequestCount   int    `gorm:"default:0" json:"request_count"`
	TotalSummaries int    `gorm:"default:0" json:"total_summaries"`
}

// TableName pins the table name
func (APIUsage) TableName() string {
	return "api_usage"
}

// Options selects the backing database
type Options struct {
	DatabaseURL string
	DataPath    string
}

// InitDB opens postgres when a DSN is given, otherwise a sqlite file, and migrates the schema
func InitDB(opts Options) (*gorm.DB, error) {
	var dialector gorm.Dialector
	cfg := &gorm.Config{}

	if opts.DatabaseURL != "" {
		dialector = postgres.New(postgres.Config{
			DSN:                  opts.DatabaseURL,
			PreferSimpleProtocol: true,
		})
		cfg.PrepareStmt = false
	} else {
		dbPath := opts.DataPath
		if dbPath == "" {
			dbPath = "census.db"
		}
		dialector = sqlite.Open(dbPath)
	}

	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates every table
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Ward{}, &WardForm{}, &DailySummary{}, &DashboardUser{}, &APIKey{}, &APIUsage{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
