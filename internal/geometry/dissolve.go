package geometry

import (
	"fmt"
	"strings"

	sf "github.com/peterstace/simplefeatures/geom"
)

// Administrative boundary data accumulated over fifteen years and several
// vendors contains topologically invalid polygons that no single union
// strategy handles reliably. RobustDissolve therefore tries an explicit
// ordered list of strategies, treating each failure as a typed result that
// selects the next strategy rather than as control flow by exception.

// StepResult records the outcome of one cascade strategy attempt.
type StepResult struct {
	Strategy string
	Err      error
}

type strategy struct {
	name  string
	apply func(geoms []sf.Geometry, tolerance float64) (sf.Geometry, error)
}

var dissolveStrategies = []strategy{
	// fast path: assumes adjacent polygons share exact edges, so refuses
	// to touch invalid input at all
	{"coverage", coverageUnion},
	// general union, handles overlaps and gaps
	{"unary", unaryUnion},
	// union the valid members, carry the invalid ones through untouched;
	// a slightly wrong boundary beats a crash
	{"reconstruct", reconstructUnion},
	{"simplify-unary", simplifyThen(unaryUnion)},
	{"simplify-coverage", simplifyThen(coverageUnion)},
}

// RobustDissolve unions a group of polygons using the fallback cascade.
// The first succeeding strategy's result is returned. If every strategy
// fails, the final geometry-engine error is propagated (wrapped with the
// attempt history): boundary correctness matters more than availability,
// so an empty or invalid stand-in is never fabricated.
func RobustDissolve(geoms []sf.Geometry, tolerance float64) (sf.Geometry, error) {
	if len(geoms) == 0 {
		return sf.Geometry{}, fmt.Errorf("robust dissolve: empty group")
	}
	if len(geoms) == 1 {
		return geoms[0], nil
	}

	var steps []StepResult
	for _, s := range dissolveStrategies {
		result, err := s.apply(geoms, tolerance)
		steps = append(steps, StepResult{Strategy: s.name, Err: err})
		if err == nil {
			return result, nil
		}
	}

	last := steps[len(steps)-1]
	var attempted []string
	for _, s := range steps {
		attempted = append(attempted, fmt.Sprintf("%s: %v", s.Strategy, s.Err))
	}
	return sf.Geometry{}, fmt.Errorf("robust dissolve exhausted all strategies (%s): %w",
		strings.Join(attempted, "; "), last.Err)
}

// coverageUnion unions geometries that are assumed to form a valid
// coverage (shared exact edges, no overlaps). Any invalid member fails the
// strategy immediately.
func coverageUnion(geoms []sf.Geometry, _ float64) (sf.Geometry, error) {
	for i, g := range geoms {
		if err := g.Validate(); err != nil {
			return sf.Geometry{}, fmt.Errorf("coverage union: member %d invalid: %w", i, err)
		}
	}
	return foldUnion(geoms)
}

// unaryUnion unions all geometries without a validity pre-check, relying
// on the geometry engine to cope with overlaps and gaps.
func unaryUnion(geoms []sf.Geometry, _ float64) (sf.Geometry, error) {
	return foldUnion(geoms)
}

// reconstructUnion unions the valid subset and appends the polygons of
// invalid members untouched as extra multipolygon parts, avoiding any
// union operation over invalid geometry.
func reconstructUnion(geoms []sf.Geometry, _ float64) (sf.Geometry, error) {
	var valid, invalid []sf.Geometry
	for _, g := range geoms {
		if err := g.Validate(); err != nil {
			invalid = append(invalid, g)
		} else {
			valid = append(valid, g)
		}
	}

	var parts []sf.Polygon
	if len(valid) > 0 {
		merged, err := foldUnion(valid)
		if err != nil {
			return sf.Geometry{}, fmt.Errorf("reconstruct: union of valid members: %w", err)
		}
		parts = append(parts, extractPolygons(merged)...)
	}
	for _, g := range invalid {
		parts = append(parts, extractPolygons(g)...)
	}
	if len(parts) == 0 {
		return sf.Geometry{}, fmt.Errorf("reconstruct: no polygonal parts in group")
	}
	return sf.NewMultiPolygon(parts).AsGeometry(), nil
}

// simplifyThen simplifies every member with the configured tolerance and
// retries the given strategy on the result. Simplification often removes
// the self-intersections that defeated the earlier levels.
func simplifyThen(next func([]sf.Geometry, float64) (sf.Geometry, error)) func([]sf.Geometry, float64) (sf.Geometry, error) {
	return func(geoms []sf.Geometry, tolerance float64) (sf.Geometry, error) {
		simplified := make([]sf.Geometry, 0, len(geoms))
		for i, g := range geoms {
			s, err := g.Simplify(tolerance, sf.NoValidate{})
			if err != nil {
				return sf.Geometry{}, fmt.Errorf("simplifying member %d: %w", i, err)
			}
			simplified = append(simplified, s)
		}
		return next(simplified, tolerance)
	}
}

// foldUnion accumulates a pairwise union over the group.
func foldUnion(geoms []sf.Geometry) (sf.Geometry, error) {
	acc := geoms[0]
	for _, g := range geoms[1:] {
		merged, err := sf.Union(acc, g)
		if err != nil {
			return sf.Geometry{}, err
		}
		acc = merged
	}
	return acc, nil
}

// extractPolygons flattens a geometry into its polygonal parts.
func extractPolygons(g sf.Geometry) []sf.Polygon {
	switch g.Type() {
	case sf.TypePolygon:
		return []sf.Polygon{g.MustAsPolygon()}
	case sf.TypeMultiPolygon:
		mp := g.MustAsMultiPolygon()
		polys := make([]sf.Polygon, 0, mp.NumPolygons())
		for i := 0; i < mp.NumPolygons(); i++ {
			polys = append(polys, mp.PolygonN(i))
		}
		return polys
	case sf.TypeGeometryCollection:
		gc := g.MustAsGeometryCollection()
		var polys []sf.Polygon
		for i := 0; i < gc.NumGeometries(); i++ {
			polys = append(polys, extractPolygons(gc.GeometryN(i))...)
		}
		return polys
	default:
		return nil
	}
}
