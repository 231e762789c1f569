package search

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"

	"taskboard/api/internal/logging"
)

const (
	idxProjects = "taskboard_projects"
	idxTasks    = "taskboard_tasks"
	idxComments = "taskboard_comments"
)

// Meili implements Searcher via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures indexes. The
// health monitor keeps probing even when the initial connection fails,
// so a Meilisearch that comes up later is picked up automatically.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		logging.Component("search").WithField("url", url).Warnf("meilisearch unavailable: %v", err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndexes() {
	log := logging.Component("search")
	indexes := []struct {
		uid        string
		primaryKey string
		filterable []string
		searchable []string
	}{
		{
			uid:        idxProjects,
			primaryKey: "id",
			filterable: []string{"projectId", "status"},
			searchable: []string{"name", "description"},
		},
		{
			uid:        idxTasks,
			primaryKey: "id",
			filterable: []string{"projectId", "status"},
			searchable: []string{"title", "description"},
		},
		{
			uid:        idxComments,
			primaryKey: "id",
			filterable: []string{"projectId", "taskId"},
			searchable: []string{"content"},
		},
	}

	for _, idx := range indexes {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{
			Uid:        idx.uid,
			PrimaryKey: idx.primaryKey,
		}); err != nil {
			log.WithField("index", idx.uid).Debugf("create index (may already exist): %v", err)
		}

		index := m.client.Index(idx.uid)
		filterableInterface := make([]interface{}, len(idx.filterable))
		for i, v := range idx.filterable {
			filterableInterface[i] = v
		}
		if _, err := index.UpdateFilterableAttributes(&filterableInterface); err != nil {
			log.WithField("index", idx.uid).Warnf("update filterable attrs: %v", err)
		}
		if _, err := index.UpdateSearchableAttributes(&idx.searchable); err != nil {
			log.WithField("index", idx.uid).Warnf("update searchable attrs: %v", err)
		}
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				logging.Component("search").Info("meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries all three indexes (or a filtered subset) and merges results.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}
	if q.ProjectIDs != nil && len(q.ProjectIDs) == 0 {
		return nil, 0, nil
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	var queries []*meili.SearchRequest
	targetIndexes := []struct {
		uid  string
		rtyp ResultType
	}{
		{idxProjects, ResultProject},
		{idxTasks, ResultTask},
		{idxComments, ResultComment},
	}

	for _, ti := range targetIndexes {
		if q.FilterType != "" && q.FilterType != ti.rtyp {
			continue
		}
		sr := &meili.SearchRequest{
			IndexUID:              ti.uid,
			Limit:                 limit,
			Offset:                int64(q.Offset),
			AttributesToHighlight: []string{"*"},
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
			ShowRankingScore:      true,
		}

		if q.ProjectIDs != nil {
			quoted := make([]string, len(q.ProjectIDs))
			for i, id := range q.ProjectIDs {
				quoted[i] = fmt.Sprintf("%q", id)
			}
			sr.Filter = []string{fmt.Sprintf("projectId IN [%s]", strings.Join(quoted, ", "))}
		}
		queries = append(queries, sr)
	}

	if len(queries) == 0 {
		return nil, 0, nil
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: queries,
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		rtyp := indexToResultType(sr.IndexUID)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit, rtyp))
		}
	}

	return results, total, nil
}

func indexToResultType(uid string) ResultType {
	switch uid {
	case idxProjects:
		return ResultProject
	case idxTasks:
		return ResultTask
	case idxComments:
		return ResultComment
	default:
		return ""
	}
}

func hitToResult(hit meili.Hit, rtyp ResultType) Result {
	r := Result{Type: rtyp}
	r.ID = decodeString(hit, "id")
	r.ProjectID = decodeString(hit, "projectId")

	switch rtyp {
	case ResultProject:
		r.Title = firstNonBlank(decodeFormattedString(hit, "name"), decodeString(hit, "name"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "description"), decodeString(hit, "description"))
	case ResultTask:
		r.Title = firstNonBlank(decodeFormattedString(hit, "title"), decodeString(hit, "title"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "description"), decodeString(hit, "description"))
	case ResultComment:
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "content"), decodeString(hit, "content"))
	}
	return r
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]string
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	return strings.TrimSpace(formatted[key])
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexProject adds or updates a project in the search index.
func (m *Meili) IndexProject(p ProjectRecord) error {
	p.ProjectID = p.ID
	_, err := m.client.Index(idxProjects).AddDocuments([]ProjectRecord{p}, nil)
	return err
}

// IndexTask adds or updates a task in the search index.
func (m *Meili) IndexTask(t TaskRecord) error {
	_, err := m.client.Index(idxTasks).AddDocuments([]TaskRecord{t}, nil)
	return err
}

// IndexComment adds or updates a comment in the search index.
func (m *Meili) IndexComment(c CommentRecord) error {
	_, err := m.client.Index(idxComments).AddDocuments([]CommentRecord{c}, nil)
	return err
}

// DeleteProject removes a project from the search index.
func (m *Meili) DeleteProject(id string) error {
	_, err := m.client.Index(idxProjects).DeleteDocument(id, nil)
	return err
}

// DeleteTask removes a task from the search index.
func (m *Meili) DeleteTask(id string) error {
	_, err := m.client.Index(idxTasks).DeleteDocument(id, nil)
	return err
}

// DeleteComment removes a comment from the search index.
func (m *Meili) DeleteComment(id string) error {
	_, err := m.client.Index(idxComments).DeleteDocument(id, nil)
	return err
}

// IndexProjects bulk-indexes projects.
func (m *Meili) IndexProjects(projects []ProjectRecord) error {
	if len(projects) == 0 {
		return nil
	}
	for i := range projects {
		projects[i].ProjectID = projects[i].ID
	}
	_, err := m.client.Index(idxProjects).AddDocuments(projects, nil)
	return err
}

// IndexTasks bulk-indexes tasks.
func (m *Meili) IndexTasks(tasks []TaskRecord) error {
	if len(tasks) == 0 {
		return nil
	}
	_, err := m.client.Index(idxTasks).AddDocuments(tasks, nil)
	return err
}

// IndexComments bulk-indexes comments.
func (m *Meili) IndexComments(comments []CommentRecord) error {
	if len(comments) == 0 {
		return nil
	}
	_, err := m.client.Index(idxComments).AddDocuments(comments, nil)
	return err
}
