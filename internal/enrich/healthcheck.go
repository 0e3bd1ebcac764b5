package enrich

import (
	"context"
	"fmt"
	"strings"

	"github.com/stablewatch/ecosystem-cli/internal/model"
	"github.com/stablewatch/ecosystem-cli/pkg/webscan"
)

// HealthCheckStage probes each record's website and records the result.
// Dead sites are annotated, never deleted; a project can resurrect and the
// row keeps its research history either way.
type HealthCheckStage struct{}

func (s *HealthCheckStage) Name() string        { return "healthcheck" }
func (s *HealthCheckStage) Description() string { return "probe website liveness" }

func (s *HealthCheckStage) Prerequisites() []string { return []string{"Scanner"} }

func (s *HealthCheckStage) Run(ctx context.Context, deps *Deps, recs []*model.Record) ([]*model.Record, Result, error) {
	eligible := func(rec *model.Record) bool {
		if strings.TrimSpace(rec.Website) == "" {
			return false
		}
		return !rec.HasNoteMarker(HealthPrefix)
	}

	res, err := forEachParallel(ctx, deps, recs, eligible, func(ctx context.Context, rec *model.Record) (bool, error) {
		status, code := deps.Scanner.Probe(ctx, rec.Website)

		note := fmt.Sprintf("%s %s", HealthPrefix, status)
		if status == webscan.StatusAlive || status == webscan.StatusDead {
			note = fmt.Sprintf("%s %s (HTTP %d)", HealthPrefix, status, code)
		}
		rec.AppendNote(note)
		return true, nil
	})
	return recs, res, err
}
