// ABOUTME: Data models for upstream field-map jobs
// ABOUTME: Defines JobSummary, JobDetail, and product rate structs consumed from the job-tracking API
package models

import (
	"time"
)

// JobSummary is the list-level representation of an upstream job. The last
// four fields are denormalized from the most recent detail fetch when one
// exists, else left at their zero values.
type JobSummary struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	Customer             string    `json:"customer,omitempty"`
	Contractor           string    `json:"contractor,omitempty"`
	Area                 float64   `json:"area"`
	Status               string    `json:"status,omitempty"`
	OrderNumber          string    `json:"orderNumber,omitempty"`
	RequestedGeometryURL string    `json:"requestedGeometryUrl,omitempty"`
	WorkedGeometryURL    string    `json:"workedGeometryUrl,omitempty"`
	ModifiedDate         time.Time `json:"modifiedDate"`
	DueDate              time.Time `json:"dueDate,omitempty"`
	Deleted              bool      `json:"deleted,omitempty"`

	Products []string `json:"products,omitempty"`
	Notes    string   `json:"notes,omitempty"`
	Address  string   `json:"address,omitempty"`
	RTS      bool     `json:"rts,omitempty"`
}

// JobDetail is the full record for a single job. ModifiedDate is the staleness
// key: a cached detail is reused only while it matches the modified-list
// entry's ModifiedDate.
type JobDetail struct {
	ID                   string        `json:"id"`
	AccountID            string        `json:"accountId"`
	Name                 string        `json:"name"`
	Customer             string        `json:"customer,omitempty"`
	Contractor           string        `json:"contractor,omitempty"`
	Area                 float64       `json:"area"`
	Status               string        `json:"status,omitempty"`
	OrderNumber          string        `json:"orderNumber,omitempty"`
	OrderType            string        `json:"orderType,omitempty"`
	OrderSubtype         string        `json:"orderSubtype,omitempty"`
	Comments             string        `json:"comments,omitempty"`
	Notes                string        `json:"notes,omitempty"`
	Address              string        `json:"address,omitempty"`
	Products             []string      `json:"products,omitempty"`
	ProductRates         []ProductRate `json:"productRates,omitempty"`
	Color                string        `json:"color,omitempty"`
	Urgency              string        `json:"urgency,omitempty"`
	RTS                  bool          `json:"rts,omitempty"`
	RequestedGeometryURL string        `json:"requestedGeometryUrl,omitempty"`
	WorkedGeometryURL    string        `json:"workedGeometryUrl,omitempty"`
	CreatedDate          time.Time     `json:"createdDate,omitempty"`
	ModifiedDate         time.Time     `json:"modifiedDate"`
	DueDate              time.Time     `json:"dueDate,omitempty"`
	Deleted              bool          `json:"deleted,omitempty"`
}

// ProductRate is an application rate for one product on a job.
type ProductRate struct {
	Product string  `json:"product"`
	Rate    float64 `json:"rate"`
	Unit    string  `json:"unit,omitempty"`
}

// Job status constants as reported by the upstream API.
const (
	StatusOpen      = "open"
	StatusScheduled = "scheduled"
	StatusInWork    = "in_work"
	StatusWorked    = "worked"
	StatusInvoiced  = "invoiced"
	StatusCancelled = "cancelled"
)
