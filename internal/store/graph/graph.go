// Package graph adapts the relationship graph (C1) on top of
// github.com/neo4j/neo4j-go-driver/v5. Nodes are Developer/Project/Skill;
// edges are CONTRIBUTES_TO, HAS_SKILL, COLLABORATES_WITH, REVIEWS.
package graph

import (
	"context"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/engintel/platform/internal/config"
	"github.com/engintel/platform/internal/errs"
)

// Store wraps a lazily-initialised Neo4j driver.
type Store struct {
	dsn      config.StoreDSN
	deadline time.Duration

	mu     sync.Mutex
	driver neo4j.DriverWithContext
}

// New returns a Store that dials lazily on first use.
func New(dsn config.StoreDSN, operationDeadline time.Duration) *Store {
	return &Store{dsn: dsn, deadline: operationDeadline}
}

func (s *Store) dialed(ctx context.Context) (neo4j.DriverWithContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.driver != nil {
		return s.driver, nil
	}
	drv, err := neo4j.NewDriverWithContext(s.dsn.URI, neo4j.BasicAuth(s.dsn.User, s.dsn.Password, ""))
	if err != nil {
		return nil, errs.Wrap(errs.UpstreamUnavailable, "connect to graph store", err)
	}
	if err := drv.VerifyConnectivity(ctx); err != nil {
		return nil, errs.Wrap(errs.UpstreamUnavailable, "verify graph store connectivity", err)
	}
	s.driver = drv
	return s.driver, nil
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.dialed(ctx)
	return err
}

// Close releases the underlying driver, if opened.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.driver != nil {
		return s.driver.Close(ctx)
	}
	return nil
}

func (s *Store) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.deadline)
}

// session opens a session-scoped unit of work (C1's "session-scoped unit
// for the graph store").
func (s *Store) session(ctx context.Context) (neo4j.SessionWithContext, error) {
	drv, err := s.dialed(ctx)
	if err != nil {
		return nil, err
	}
	return drv.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead}), nil
}

// Collaborator is one row of a get_collaborators result.
type Collaborator struct {
	Email      string
	Name       string
	Weight     int
	SharedRepo string
}

// GetCollaborators traverses COLLABORATES_WITH edges from one developer.
func (s *Store) GetCollaborators(ctx context.Context, email string, limit int) ([]Collaborator, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Close(ctx)
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 20
	}
	result, err := sess.Run(ctx, `
		MATCH (d:Developer {email: $email})-[c:COLLABORATES_WITH]-(other:Developer)
		RETURN other.email AS email, other.name AS name, c.weight AS weight, c.shared_repo AS shared_repo
		ORDER BY c.weight DESC
		LIMIT $limit`, map[string]any{"email": email, "limit": limit})
	if err != nil {
		return nil, errs.Wrap(errs.UpstreamUnavailable, "query collaborators", err)
	}

	var out []Collaborator
	for result.Next(ctx) {
		rec := result.Record()
		out = append(out, Collaborator{
			Email:      asString(rec.Values[0]),
			Name:       asString(rec.Values[1]),
			Weight:     asInt(rec.Values[2]),
			SharedRepo: asString(rec.Values[3]),
		})
	}
	if err := result.Err(); err != nil {
		return nil, errs.Wrap(errs.UpstreamUnavailable, "iterate collaborators", err)
	}
	return out, nil
}

// TeamEdge is one edge of the team collaboration graph.
type TeamEdge struct {
	From, To string
	Weight   int
}

// GetTeamCollaborationGraph returns every COLLABORATES_WITH edge among
// members of the given team, for visualisation/analysis tools.
func (s *Store) GetTeamCollaborationGraph(ctx context.Context, teamID string) ([]TeamEdge, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Close(ctx)
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	result, err := sess.Run(ctx, `
		MATCH (a:Developer {team_id: $team})-[c:COLLABORATES_WITH]-(b:Developer {team_id: $team})
		RETURN a.email AS from_email, b.email AS to_email, c.weight AS weight`,
		map[string]any{"team": teamID})
	if err != nil {
		return nil, errs.Wrap(errs.UpstreamUnavailable, "query team collaboration graph", err)
	}

	var out []TeamEdge
	for result.Next(ctx) {
		rec := result.Record()
		out = append(out, TeamEdge{From: asString(rec.Values[0]), To: asString(rec.Values[1]), Weight: asInt(rec.Values[2])})
	}
	return out, result.Err()
}

// ExpertCandidate is one row of a find_knowledge_experts result — the raw
// graph-side signal the Graph-RAG fusion step (C9) combines with semantic
// similarity.
type ExpertCandidate struct {
	Email             string
	Name              string
	ContributionCount int
	ExpertiseWeight   int
	CollaborationSum  int
}

// FindKnowledgeExperts scores developers by contribution/expertise/
// collaboration edge weights relevant to a topic (skill name or project).
// Returns an empty, non-error slice when the graph has no matching nodes,
// so callers (C9) can fall back to the synthetic score (§4.9 of SPEC_FULL).
func (s *Store) FindKnowledgeExperts(ctx context.Context, topic string, limit int) ([]ExpertCandidate, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Close(ctx)
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 10
	}
	result, err := sess.Run(ctx, `
		MATCH (d:Developer)
		OPTIONAL MATCH (d)-[:HAS_SKILL]->(s:Skill) WHERE toLower(s.name) CONTAINS toLower($topic)
		OPTIONAL MATCH (d)-[:CONTRIBUTES_TO]->(p:Project) WHERE toLower(p.name) CONTAINS toLower($topic)
		OPTIONAL MATCH (d)-[c:COLLABORATES_WITH]-(:Developer)
		WITH d, count(DISTINCT s) AS skill_hits, count(DISTINCT p) AS contrib_hits, sum(coalesce(c.weight,0)) AS collab_sum
		WHERE skill_hits > 0 OR contrib_hits > 0
		RETURN d.email AS email, d.name AS name, contrib_hits AS contributions, skill_hits AS expertise, collab_sum AS collaboration
		ORDER BY expertise DESC, contributions DESC
		LIMIT $limit`, map[string]any{"topic": topic, "limit": limit})
	if err != nil {
		return nil, errs.Wrap(errs.UpstreamUnavailable, "query knowledge experts", err)
	}

	var out []ExpertCandidate
	for result.Next(ctx) {
		rec := result.Record()
		out = append(out, ExpertCandidate{
			Email:             asString(rec.Values[0]),
			Name:              asString(rec.Values[1]),
			ContributionCount: asInt(rec.Values[2]),
			ExpertiseWeight:   asInt(rec.Values[3]),
			CollaborationSum:  asInt(rec.Values[4]),
		})
	}
	return out, result.Err()
}

func asString(v any) string {
	if v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func asInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}
