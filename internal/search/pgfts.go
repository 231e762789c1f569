package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true — if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across projects, tasks and comments
// using plainto_tsquery and ts_rank, with ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	if q.ProjectIDs != nil && len(q.ProjectIDs) == 0 {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	argN := 2

	scopeClause := ""
	if q.ProjectIDs != nil {
		placeholders := make([]string, len(q.ProjectIDs))
		for i, id := range q.ProjectIDs {
			placeholders[i] = fmt.Sprintf("$%d", argN)
			args = append(args, id)
			argN++
		}
		scopeClause = fmt.Sprintf(" IN (%s)", strings.Join(placeholders, ", "))
	}

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultProject {
		projectWhere := "p.fts @@ " + tsQuery
		if scopeClause != "" {
			projectWhere += " AND p.id" + scopeClause
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'project'::text AS type, p.id, p.name AS title,
				ts_headline('english', coalesce(p.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				p.id AS project_id,
				ts_rank(p.fts, %s) AS rank
			FROM projects p
			WHERE %s`, tsQuery, tsQuery, projectWhere))
	}

	if q.FilterType == "" || q.FilterType == ResultTask {
		taskWhere := "t.fts @@ " + tsQuery
		if scopeClause != "" {
			taskWhere += " AND t.project_id" + scopeClause
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'task'::text AS type, t.id, t.title,
				ts_headline('english', coalesce(t.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				t.project_id,
				ts_rank(t.fts, %s) AS rank
			FROM tasks t
			WHERE %s`, tsQuery, tsQuery, taskWhere))
	}

	if q.FilterType == "" || q.FilterType == ResultComment {
		commentWhere := "c.fts @@ " + tsQuery
		if scopeClause != "" {
			commentWhere += " AND t.project_id" + scopeClause
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'comment'::text AS type, c.id, ''::text AS title,
				ts_headline('english', coalesce(c.content, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				t.project_id,
				ts_rank(c.fts, %s) AS rank
			FROM comments c
			JOIN tasks t ON t.id = c.task_id
			WHERE %s`, tsQuery, tsQuery, commentWhere))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, project_id
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.ProjectID); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ProjectRecord, []TaskRecord, []CommentRecord, error) {
	projectRows, err := p.db.QueryContext(ctx, `
		SELECT id, name, description, status
		FROM projects
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load projects: %w", err)
	}
	defer projectRows.Close()

	projects := make([]ProjectRecord, 0)
	for projectRows.Next() {
		var rec ProjectRecord
		if err := projectRows.Scan(&rec.ID, &rec.Name, &rec.Description, &rec.Status); err != nil {
			return nil, nil, nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, rec)
	}
	if err := projectRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate projects: %w", err)
	}

	taskRows, err := p.db.QueryContext(ctx, `
		SELECT id, title, description, project_id, status
		FROM tasks
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load tasks: %w", err)
	}
	defer taskRows.Close()

	tasks := make([]TaskRecord, 0)
	for taskRows.Next() {
		var rec TaskRecord
		if err := taskRows.Scan(&rec.ID, &rec.Title, &rec.Description, &rec.ProjectID, &rec.Status); err != nil {
			return nil, nil, nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, rec)
	}
	if err := taskRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate tasks: %w", err)
	}

	commentRows, err := p.db.QueryContext(ctx, `
		SELECT c.id, c.content, c.task_id, t.project_id
		FROM comments c
		JOIN tasks t ON t.id = c.task_id
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load comments: %w", err)
	}
	defer commentRows.Close()

	comments := make([]CommentRecord, 0)
	for commentRows.Next() {
		var rec CommentRecord
		if err := commentRows.Scan(&rec.ID, &rec.Content, &rec.TaskID, &rec.ProjectID); err != nil {
			return nil, nil, nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, rec)
	}
	if err := commentRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate comments: %w", err)
	}

	return projects, tasks, comments, nil
}
