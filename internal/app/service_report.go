package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"taskboard/api/internal/report"
	"taskboard/api/internal/store"
)

// ProjectReport renders the status report for one project as HTML or
// PDF. PDF rendering needs headless Chromium; its absence degrades the
// PDF path only.
func (s *Service) ProjectReport(ctx context.Context, session Session, projectID string, format report.Format) (*report.Result, error) {
	project, err := s.db.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load project %s: %w", projectID, err)
	}
	visible, err := s.canSeeProject(ctx, session, projectID)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, ErrAuthorization("not a member of this project")
	}

	members, err := s.db.ListProjectMembers(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	tasks, _, err := s.db.ListTasks(ctx, store.TaskFilter{ProjectID: projectID, Limit: 1000})
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	data := buildReportData(project, members, tasks)

	html, err := report.RenderHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}

	switch format {
	case report.FormatHTML:
		return &report.Result{
			Data:     []byte(html),
			Filename: project.Name + "-report.html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case report.FormatPDF:
		result, err := report.RenderPDF(ctx, html, project.Name)
		if err != nil {
			if errors.Is(err, report.ErrPDFDependencyMissing) {
				return nil, ErrUnavailable("pdf rendering unavailable")
			}
			return nil, fmt.Errorf("render pdf: %w", err)
		}
		return result, nil
	default:
		return nil, ErrValidation("invalid format", FieldError{Field: "format", Message: "must be html or pdf"})
	}
}

var reportStatusOrder = []string{store.TaskTodo, store.TaskInProgress, store.TaskInReview, store.TaskDone}

func buildReportData(project store.Project, members []store.ProjectMember, tasks []store.Task) report.Data {
	info := report.ProjectInfo{
		Name:        project.Name,
		Description: project.Description,
		Status:      project.Status,
		Priority:    project.Priority,
		OwnerName:   project.OwnerName,
		StartDate:   project.StartDate,
		EndDate:     project.EndDate,
	}

	memberRows := make([]report.MemberInfo, 0, len(members))
	for _, m := range members {
		memberRows = append(memberRows, report.MemberInfo{
			Name:  m.UserName,
			Email: m.UserEmail,
			Role:  m.Role,
		})
	}

	byStatus := make(map[string][]report.TaskInfo)
	var estimated, actual float64
	for _, t := range tasks {
		byStatus[t.Status] = append(byStatus[t.Status], report.TaskInfo{
			Title:          t.Title,
			Priority:       t.Priority,
			AssigneeName:   t.AssigneeName,
			DueDate:        t.DueDate,
			EstimatedHours: t.EstimatedHours,
			ActualHours:    t.ActualHours,
		})
		estimated += t.EstimatedHours
		actual += t.ActualHours
	}

	groups := make([]report.TaskGroup, 0, len(reportStatusOrder))
	for _, status := range reportStatusOrder {
		if rows := byStatus[status]; len(rows) > 0 {
			groups = append(groups, report.TaskGroup{Status: status, Tasks: rows})
		}
	}

	return report.Data{
		Project:        info,
		Members:        memberRows,
		TaskGroups:     groups,
		TotalTasks:     len(tasks),
		EstimatedHours: estimated,
		ActualHours:    actual,
		GeneratedAt:    time.Now(),
	}
}
