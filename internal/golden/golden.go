// Package golden checks the color pipeline against reference values for a
// handful of test points, one scenario per stage setting.
package golden

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/gogpu/pipecheck/internal/colorsci"
)

//go:embed reference-values.json
var referenceJSON []byte

// Color is an RGB(A) value as stored in the reference file.
type Color struct {
	R, G, B float64
	A       float64 `json:",omitempty"`
}

// Scenario is one stage configuration with its expected results.
type Scenario struct {
	Name        string
	Settings    map[string]float64 `json:"settings"`
	Description string             `json:"description"`
	Tolerance   float64            `json:"tolerance"`
	Results     map[string]Color   `json:"results"`
}

// Stage returns the one-based stage number encoded in the scenario name
// ("stage6_rrt_acesFit" is 6).
func (s *Scenario) Stage() int {
	head, _, _ := strings.Cut(s.Name, "_")
	n, err := strconv.Atoi(strings.TrimPrefix(head, "stage"))
	if err != nil {
		return 0
	}
	return n
}

// Params applies the scenario settings on top of the neutral parameters.
func (s *Scenario) Params() colorsci.Params {
	p := colorsci.NeutralParams()
	p.OutputSpace = colorsci.LinearRec709
	for k, v := range s.Settings {
		switch k {
		case "inputSpace":
			p.InputSpace = colorsci.Space(v)
		case "gradingSpace":
			p.GradingSpace = colorsci.GradingSpace(v)
		case "exposure":
			p.Exposure = float32(v)
		case "contrast":
			p.Contrast = float32(v)
		case "saturation":
			p.Saturation = float32(v)
		case "tonemapOp":
			p.Tonemap = colorsci.TonemapOp(v)
		case "tonemapExposure":
			p.TonemapExposure = float32(v)
		case "whitePoint":
			p.WhitePoint = float32(v)
		case "outputSpace":
			p.OutputSpace = colorsci.Space(v)
		case "blackLevel":
			p.BlackLevel = float32(v)
		case "whiteLevel":
			p.WhiteLevel = float32(v)
		}
	}
	return p
}

// Reference is the parsed reference file.
type Reference struct {
	TestPoints map[string]Color `json:"testPoints"`
	Scenarios  []*Scenario      `json:"-"`
}

// PointNames returns the test point names in a stable order.
func (r *Reference) PointNames() []string {
	names := make([]string, 0, len(r.TestPoints))
	for name := range r.TestPoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load parses the embedded reference values.
func Load() (*Reference, error) {
	return Parse(referenceJSON)
}

// Parse decodes a reference file.
func Parse(data []byte) (*Reference, error) {
	var raw struct {
		TestPoints    map[string]Color     `json:"testPoints"`
		StageExpected map[string]*Scenario `json:"stageExpected"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("golden: parse reference values: %w", err)
	}
	ref := &Reference{TestPoints: raw.TestPoints}
	for name, sc := range raw.StageExpected {
		sc.Name = name
		ref.Scenarios = append(ref.Scenarios, sc)
	}
	sort.Slice(ref.Scenarios, func(i, j int) bool {
		return ref.Scenarios[i].Name < ref.Scenarios[j].Name
	})
	return ref, nil
}

// Evaluator runs one stage over the test points. points and the result
// are in the same order.
type Evaluator func(stage int, p *colorsci.Params, points []colorsci.RGB) ([]colorsci.RGB, error)

// KernelFor returns the CPU kernel of a one-based stage number, or nil.
func KernelFor(stage int) colorsci.Kernel {
	switch stage {
	case 4:
		return colorsci.InputConvert
	case 5:
		return colorsci.ColorGrade
	case 6:
		return colorsci.RRT
	case 7:
		return colorsci.ODT
	case 8:
		return colorsci.OutputEncode
	case 9:
		return colorsci.DisplayRemap
	}
	return nil
}

// CPU evaluates stages with the reference kernels.
func CPU(stage int, p *colorsci.Params, points []colorsci.RGB) ([]colorsci.RGB, error) {
	k := KernelFor(stage)
	if k == nil {
		return nil, fmt.Errorf("golden: no kernel for stage %d", stage)
	}
	out := make([]colorsci.RGB, len(points))
	for i, c := range points {
		out[i] = k(p, c)
	}
	return out, nil
}

// PointResult is the outcome for one test point.
type PointResult struct {
	Point    string
	Computed colorsci.RGB
	Expected Color
	MaxDelta float64
	Pass     bool
}

// ScenarioResult is the outcome for one scenario.
type ScenarioResult struct {
	Scenario *Scenario
	Points   []PointResult
	Err      error
}

// Passed counts passing points.
func (r *ScenarioResult) Passed() int {
	n := 0
	for _, p := range r.Points {
		if p.Pass {
			n++
		}
	}
	return n
}

// Failed counts failing points. An evaluation error fails every point.
func (r *ScenarioResult) Failed() int {
	if r.Err != nil {
		return len(r.Scenario.Results)
	}
	return len(r.Points) - r.Passed()
}

// Verify runs every scenario (or only those of stage, when non-zero).
func Verify(ref *Reference, eval Evaluator, stage int) []ScenarioResult {
	names := ref.PointNames()
	points := make([]colorsci.RGB, len(names))
	for i, n := range names {
		c := ref.TestPoints[n]
		points[i] = colorsci.RGB{float32(c.R), float32(c.G), float32(c.B)}
	}

	var results []ScenarioResult
	for _, sc := range ref.Scenarios {
		if stage != 0 && sc.Stage() != stage {
			continue
		}
		res := ScenarioResult{Scenario: sc}
		p := sc.Params()
		computed, err := eval(sc.Stage(), &p, points)
		if err != nil {
			res.Err = err
			results = append(results, res)
			continue
		}
		for i, name := range names {
			want, ok := sc.Results[name]
			if !ok {
				continue
			}
			got := computed[i]
			d := max(
				math.Abs(float64(got[0])-want.R),
				math.Abs(float64(got[1])-want.G),
				math.Abs(float64(got[2])-want.B),
			)
			res.Points = append(res.Points, PointResult{
				Point:    name,
				Computed: got,
				Expected: want,
				MaxDelta: d,
				Pass:     d <= sc.Tolerance,
			})
		}
		results = append(results, res)
	}
	return results
}
