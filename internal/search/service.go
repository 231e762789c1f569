package search

import (
	"context"

	"taskboard/api/internal/logging"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) Response {
	log := logging.Component("search")
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Warnf("meilisearch error, falling back to pgfts: %v", err)
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		log.Errorf("pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexProject indexes a project (fire-and-forget to Meilisearch).
func (s *Service) IndexProject(p ProjectRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexProject(p); err != nil {
			logging.Component("search").Warnf("index project %s: %v", p.ID, err)
		}
	}()
}

// IndexTask indexes a task (fire-and-forget to Meilisearch).
func (s *Service) IndexTask(t TaskRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexTask(t); err != nil {
			logging.Component("search").Warnf("index task %s: %v", t.ID, err)
		}
	}()
}

// IndexComment indexes a comment (fire-and-forget to Meilisearch).
func (s *Service) IndexComment(c CommentRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexComment(c); err != nil {
			logging.Component("search").Warnf("index comment %s: %v", c.ID, err)
		}
	}()
}

// DeleteProject removes a project from the search index (fire-and-forget).
func (s *Service) DeleteProject(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteProject(id); err != nil {
			logging.Component("search").Warnf("delete project %s: %v", id, err)
		}
	}()
}

// DeleteTask removes a task from the search index (fire-and-forget).
func (s *Service) DeleteTask(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteTask(id); err != nil {
			logging.Component("search").Warnf("delete task %s: %v", id, err)
		}
	}()
}

// DeleteComment removes a comment from the search index (fire-and-forget).
func (s *Service) DeleteComment(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteComment(id); err != nil {
			logging.Component("search").Warnf("delete comment %s: %v", id, err)
		}
	}()
}

// ReindexAllFromPG reads all searchable entities from PostgreSQL and
// pushes them to Meilisearch. Called at startup when Meilisearch is healthy.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	projects, tasks, comments, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		logging.Component("search").Errorf("reindex load failed: %v", err)
		return
	}

	log := logging.Component("search")
	if err := s.meili.IndexProjects(projects); err != nil {
		log.Warnf("reindex projects: %v", err)
	}
	if err := s.meili.IndexTasks(tasks); err != nil {
		log.Warnf("reindex tasks: %v", err)
	}
	if err := s.meili.IndexComments(comments); err != nil {
		log.Warnf("reindex comments: %v", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
