package postgis

import (
	"strconv"
	"strings"
)

// GeometryOptions controls how a WKT value is turned into a geometry
// expression.
type GeometryOptions struct {
	// SourceSRID is the SRID the WKT coordinates are expressed in.
	SourceSRID int

	// TargetSRID reprojects the geometry when non-zero and different from
	// SourceSRID.
	TargetSRID int

	// ForceMulti promotes singular geometries to their MULTI form.
	ForceMulti bool
}

// GeometryStep is one SQL function wrapped around a geometry expression.
type GeometryStep struct {
	Func string
	Args []string
}

// Wrap applies the step to expr.
func (s GeometryStep) Wrap(expr string) string {
	if len(s.Args) == 0 {
		return s.Func + "(" + expr + ")"
	}
	return s.Func + "(" + expr + ", " + strings.Join(s.Args, ", ") + ")"
}

// GeometryPlan is a base geometry constructor and the steps applied to it,
// innermost first.
type GeometryPlan struct {
	Base  string
	Steps []GeometryStep
}

// Expr renders the plan as nested SQL calls.
func (p GeometryPlan) Expr() string {
	expr := p.Base
	for _, s := range p.Steps {
		expr = s.Wrap(expr)
	}
	return expr
}

// PlanGeometry builds the normalization plan for wkt. Steps always appear in
// this order when they apply: ST_Force_2D, ST_CurveToLine, ST_Transform,
// ST_Multi.
func PlanGeometry(wkt string, opts GeometryOptions) GeometryPlan {
	var steps []GeometryStep

	// 3D geometries with NaN Z values are flattened instead of rejected.
	if strings.Contains(wkt, "NaN") {
		wkt = strings.ReplaceAll(wkt, "NaN", "0")
		steps = append(steps, GeometryStep{Func: "ST_Force_2D"})
	}

	upper := strings.ToUpper(wkt)
	if strings.Contains(upper, "CURVE") || strings.Contains(upper, "CIRCULARSTRING") {
		steps = append(steps, GeometryStep{Func: "ST_CurveToLine"})
	}

	if opts.TargetSRID != 0 && opts.TargetSRID != opts.SourceSRID {
		steps = append(steps, GeometryStep{Func: "ST_Transform", Args: []string{strconv.Itoa(opts.TargetSRID)}})
	}

	if opts.ForceMulti {
		steps = append(steps, GeometryStep{Func: "ST_Multi"})
	}

	return GeometryPlan{
		Base:  "ST_GeomFromText(" + quote(wkt) + ", " + strconv.Itoa(opts.SourceSRID) + ")",
		Steps: steps,
	}
}

// PrepareGeometry renders wkt as a normalized geometry expression.
func PrepareGeometry(wkt string, opts GeometryOptions) string {
	return PlanGeometry(wkt, opts).Expr()
}

// geometryKind returns the leading type keyword of wkt, e.g. POLYGON for
// "POLYGON ((...))" or MULTIPOINT for "SRID=4326;MULTIPOINT(...)".
func geometryKind(wkt string) string {
	s := strings.ToUpper(strings.TrimSpace(wkt))
	if i := strings.IndexByte(s, ';'); i >= 0 && strings.HasPrefix(s, "SRID=") {
		s = strings.TrimSpace(s[i+1:])
	}
	end := 0
	for end < len(s) && s[end] >= 'A' && s[end] <= 'Z' {
		end++
	}
	return s[:end]
}

// needsMulti reports whether rows of kind must be promoted to fit a column
// declared as declared.
func needsMulti(declared, kind string) bool {
	return strings.HasPrefix(strings.ToUpper(declared), "MULTI") && !strings.HasPrefix(kind, "MULTI")
}
