// Package report renders project status reports as HTML or PDF.
package report

import (
	"errors"
	"time"
)

// Format represents the report output format
type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
)

// ErrPDFDependencyMissing indicates headless Chromium is not installed.
var ErrPDFDependencyMissing = errors.New("pdf dependency missing")

// Result contains the generated report bytes
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// ProjectInfo holds project metadata for the report header.
type ProjectInfo struct {
	Name        string
	Description string
	Status      string
	Priority    string
	OwnerName   string
	StartDate   *time.Time
	EndDate     *time.Time
}

// MemberInfo is one row of the member table.
type MemberInfo struct {
	Name  string
	Email string
	Role  string
}

// TaskInfo is one row of a task table.
type TaskInfo struct {
	Title          string
	Priority       string
	AssigneeName   string
	DueDate        *time.Time
	EstimatedHours float64
	ActualHours    float64
}

// TaskGroup collects the tasks in one workflow column.
type TaskGroup struct {
	Status string
	Tasks  []TaskInfo
}

// Data is everything the report template needs.
type Data struct {
	Project        ProjectInfo
	Members        []MemberInfo
	TaskGroups     []TaskGroup
	TotalTasks     int
	EstimatedHours float64
	ActualHours    float64
	GeneratedAt    time.Time
}
