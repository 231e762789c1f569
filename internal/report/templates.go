package report

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"
)

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"lower": strings.ToLower,
	"formatDate": func(t *time.Time) string {
		if t == nil {
			return "—"
		}
		return t.Format("Jan 2, 2006")
	},
	"formatHours": func(h float64) string {
		return fmt.Sprintf("%.1f", h)
	},
	"statusLabel": statusLabel,
}).Parse(reportHTMLTemplate))

// statusLabel turns enum values like "in_progress" into "In Progress".
func statusLabel(status string) string {
	words := strings.Split(strings.ReplaceAll(status, "_", " "), " ")
	for i, word := range words {
		if word == "" {
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

// RenderHTML fills the report template.
func RenderHTML(data Data) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render report template: %w", err)
	}
	return buf.String(), nil
}

const reportHTMLTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>{{.Project.Name}} — Project Report</title>
<style>
    body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; color: #1f2430; max-width: 800px; margin: 0 auto; padding: 32px; }
    h1 { margin-bottom: 4px; }
    h2 { margin-top: 32px; border-bottom: 1px solid #d8dde6; padding-bottom: 6px; }
    .meta { color: #5b6472; margin-bottom: 24px; }
    .badge { display: inline-block; padding: 2px 10px; border-radius: 10px; background: #eef1f6; font-size: 13px; margin-right: 6px; }
    table { width: 100%; border-collapse: collapse; margin: 12px 0; }
    th { text-align: left; font-size: 13px; text-transform: uppercase; color: #5b6472; border-bottom: 2px solid #d8dde6; padding: 6px 8px; }
    td { border-bottom: 1px solid #eef1f6; padding: 6px 8px; }
    .totals { background: #f5f7fa; padding: 12px 16px; border-radius: 6px; margin-top: 16px; }
    .footer { margin-top: 40px; font-size: 12px; color: #8a93a2; }
    .empty { color: #8a93a2; font-style: italic; }
</style>
</head>
<body>
    <h1>{{.Project.Name}}</h1>
    <div class="meta">
        <span class="badge">{{statusLabel .Project.Status}}</span>
        <span class="badge">{{statusLabel .Project.Priority}} priority</span>
        <span>Owner: {{.Project.OwnerName}}</span>
        · <span>{{formatDate .Project.StartDate}} – {{formatDate .Project.EndDate}}</span>
    </div>
    {{if .Project.Description}}<p>{{.Project.Description}}</p>{{end}}

    <h2>Members</h2>
    {{if .Members}}
    <table>
        <tr><th>Name</th><th>Email</th><th>Role</th></tr>
        {{range .Members}}
        <tr><td>{{.Name}}</td><td>{{.Email}}</td><td>{{statusLabel .Role}}</td></tr>
        {{end}}
    </table>
    {{else}}<p class="empty">No members.</p>{{end}}

    <h2>Tasks ({{.TotalTasks}})</h2>
    {{range .TaskGroups}}
    <h3>{{statusLabel .Status}}</h3>
    {{if .Tasks}}
    <table>
        <tr><th>Title</th><th>Priority</th><th>Assignee</th><th>Due</th><th>Est. h</th><th>Actual h</th></tr>
        {{range .Tasks}}
        <tr>
            <td>{{.Title}}</td>
            <td>{{statusLabel .Priority}}</td>
            <td>{{if .AssigneeName}}{{.AssigneeName}}{{else}}—{{end}}</td>
            <td>{{formatDate .DueDate}}</td>
            <td>{{formatHours .EstimatedHours}}</td>
            <td>{{formatHours .ActualHours}}</td>
        </tr>
        {{end}}
    </table>
    {{else}}<p class="empty">None.</p>{{end}}
    {{end}}

    <div class="totals">
        <strong>Hours:</strong> {{formatHours .EstimatedHours}} estimated · {{formatHours .ActualHours}} logged
    </div>

    <div class="footer">Generated {{.GeneratedAt.Format "Jan 2, 2006 15:04 MST"}} by Taskboard</div>
</body>
</html>`
