// ABOUTME: Data models for Gripp dashboard entities
// ABOUTME: Defines Project, ProjectLine, Employee, Invoice, and sync bookkeeping structs
package models

import (
	"strings"
	"time"
)

// DateValue is Gripp's date-object shape ({date, timezone_type, timezone}).
type DateValue struct {
	Date         string `json:"date"`
	TimezoneType int    `json:"timezone_type,omitempty"`
	Timezone     string `json:"timezone,omitempty"`
}

// Time parses the embedded date string. Gripp sends "2006-01-02 15:04:05"
// with an optional fractional-seconds suffix; bare dates also occur.
func (d *DateValue) Time() (time.Time, error) {
	s := d.Date
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

type Tag struct {
	ID   int64  `json:"id,omitempty"`
	Name string `json:"searchname"`
}

type Company struct {
	ID   int64  `json:"id"`
	Name string `json:"searchname"`
}

type Phase struct {
	ID   int64  `json:"id,omitempty"`
	Name string `json:"searchname"`
}

type Product struct {
	ID   int64  `json:"id"`
	Name string `json:"searchname"`
}

// ProjectLine is a budgeted work item within a project. Amount is budgeted
// hours; AmountWritten is written hours (a string-encoded decimal on the wire).
type ProjectLine struct {
	ID            int64    `json:"id"`
	Amount        float64  `json:"amount"`
	AmountWritten float64  `json:"amountwritten"`
	SellingPrice  float64  `json:"sellingprice"`
	Description   string   `json:"description,omitempty"`
	Product       *Product `json:"product,omitempty"`
}

// Project is a normalized Gripp project. Once normalized, Tags and Company
// are always typed values, never raw JSON strings.
type Project struct {
	ID               int64         `json:"id"`
	Name             string        `json:"name"`
	Number           int64         `json:"number"`
	Color            string        `json:"color,omitempty"`
	Archived         bool          `json:"archived"`
	Company          *Company      `json:"company,omitempty"`
	Phase            *Phase        `json:"phase,omitempty"`
	Tags             []Tag         `json:"tags"`
	Deadline         *DateValue    `json:"deadline,omitempty"`
	StartDate        *DateValue    `json:"startdate,omitempty"`
	EndDate          *DateValue    `json:"enddate,omitempty"`
	TotalExclVAT     float64       `json:"totalexclvat"`
	TotalInclVAT     float64       `json:"totalinclvat"`
	Lines            []ProjectLine `json:"projectlines"`
	StarredEmployees []int64       `json:"employees_starred,omitempty"`
	ViewOnlineURL    string        `json:"viewonlineurl,omitempty"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

type Employee struct {
	ID         int64  `json:"id"`
	FirstName  string `json:"firstname"`
	LastName   string `json:"lastname"`
	SearchName string `json:"searchname"`
	Email      string `json:"email,omitempty"`
	Function   string `json:"function,omitempty"`
	Active     bool   `json:"active"`
}

// AbsenceRequestLine is a single day within an absence request.
type AbsenceRequestLine struct {
	ID     int64      `json:"id"`
	Date   *DateValue `json:"date,omitempty"`
	Amount float64    `json:"amount"`
}

type AbsenceRequest struct {
	ID          int64                `json:"id"`
	Employee    *Employee            `json:"employee,omitempty"`
	Description string               `json:"description,omitempty"`
	Status      *AbsenceStatus       `json:"status,omitempty"`
	Lines       []AbsenceRequestLine `json:"absencerequestlines"`
}

type AbsenceStatus struct {
	ID   int64  `json:"id"`
	Name string `json:"searchname"`
}

type Invoice struct {
	ID           int64      `json:"id"`
	Number       int64      `json:"number"`
	Subject      string     `json:"subject,omitempty"`
	Company      *Company   `json:"company,omitempty"`
	Date         *DateValue `json:"date,omitempty"`
	TotalExclVAT float64    `json:"totalexclvat"`
	TotalInclVAT float64    `json:"totalinclvat"`
	TotalOpen    float64    `json:"totalopeninclvat"`
}

// CacheEntry is an arbitrary key-value pair with a write timestamp. Entries
// are overwritten on every write; staleness is the reader's call.
type CacheEntry struct {
	Key       string    `json:"key"`
	Value     []byte    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Sync run states.
const (
	SyncIdle     = "idle"
	SyncLoading  = "loading"
	SyncSyncing  = "syncing"
	SyncComplete = "complete"
	SyncError    = "error"
)

// ProjectBudget holds derived budget metrics. Computed on demand from a
// project's lines, never stored.
type ProjectBudget struct {
	Progress           float64 `json:"progress"`
	StartHourlyRate    float64 `json:"start_hourly_rate"`
	RealizedHourlyRate float64 `json:"realized_hourly_rate"`
	Overspend          float64 `json:"overspend"`
	BudgetedHours      float64 `json:"budgeted_hours"`
	WrittenHours       float64 `json:"written_hours"`
}
