package bake

import (
	"fmt"
	"log/slog"
	"path"

	"tools.zach/dev/sekaibake/internal/honor"
)

// Job is one planned badge: what to render and where to write it.
type Job struct {
	Target honor.Target
	// Rel is the slash-separated output path below the baked root.
	Rel string
}

// Plan expands honors into jobs and names every output file. Padding is
// computed per group before any name is produced, so a malformed
// requirement anywhere fails the plan before rendering starts. Jobs whose
// "<type>/<group folder>" matches exclude are dropped; exclude may be nil.
func Plan(honors []*honor.Honor, exclude func(rel string) bool, log *slog.Logger) ([]Job, error) {
	if log == nil {
		log = slog.Default()
	}

	padding := map[*honor.Group]int{}
	for _, h := range honors {
		if _, done := padding[h.Group]; done || !needsPadding(h.Group) {
			continue
		}
		width, err := GroupPadding(h.Group)
		if err != nil {
			return nil, fmt.Errorf("plan group %d: %w", h.Group.ID, err)
		}
		padding[h.Group] = width
	}

	var jobs []Job
	owner := map[string]honor.Target{}
	for _, t := range honor.Targets(honors) {
		rel, err := RelPath(t, padding[t.Group()])
		if err != nil {
			return nil, fmt.Errorf("plan: %w", err)
		}
		if exclude != nil && exclude(groupRel(rel)) {
			continue
		}
		if prev, dup := owner[rel]; dup {
			log.Warn("badges share an output path, later one wins", "path", rel, "first", prev, "second", t)
		}
		owner[rel] = t
		jobs = append(jobs, Job{Target: t, Rel: rel})
	}
	return jobs, nil
}

// needsPadding reports whether any honor of g is named by padded
// requirement number.
func needsPadding(g *honor.Group) bool {
	for _, h := range g.Honors {
		if usesPaddedNames(h) {
			return true
		}
	}
	return false
}

// groupRel trims "<type>/<group>/<size>/<file>" to "<type>/<group>".
func groupRel(rel string) string {
	return path.Dir(path.Dir(rel))
}
