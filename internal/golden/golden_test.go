package golden

import (
	"errors"
	"testing"

	"github.com/gogpu/pipecheck/internal/colorsci"
)

func TestLoad(t *testing.T) {
	ref, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(ref.TestPoints) != 4 {
		t.Errorf("got %d test points, want 4", len(ref.TestPoints))
	}
	if len(ref.Scenarios) != 7 {
		t.Errorf("got %d scenarios, want 7", len(ref.Scenarios))
	}
}

func TestScenario_Stage(t *testing.T) {
	tests := []struct {
		name string
		want int
	}{
		{"stage4_inputConvert_ACEScg", 4},
		{"stage9_displayRemap_default", 9},
		{"bogus", 0},
	}
	for _, tt := range tests {
		sc := Scenario{Name: tt.name}
		if got := sc.Stage(); got != tt.want {
			t.Errorf("Stage(%q) = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestVerify_CPUKernelsPass(t *testing.T) {
	ref, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	for _, res := range Verify(ref, CPU, 0) {
		if res.Err != nil {
			t.Errorf("%s: %v", res.Scenario.Name, res.Err)
			continue
		}
		for _, p := range res.Points {
			if !p.Pass {
				t.Errorf("%s/%s: computed %v, expected %+v, max delta %.2e > %v",
					res.Scenario.Name, p.Point, p.Computed, p.Expected, p.MaxDelta, res.Scenario.Tolerance)
			}
		}
	}
}

func TestVerify_StageFilter(t *testing.T) {
	ref, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	results := Verify(ref, CPU, 6)
	if len(results) != 2 {
		t.Fatalf("stage 6 ran %d scenarios, want 2", len(results))
	}
	for _, r := range results {
		if r.Scenario.Stage() != 6 {
			t.Errorf("scenario %s ran under stage filter 6", r.Scenario.Name)
		}
	}
}

func TestVerify_DetectsWrongKernel(t *testing.T) {
	ref, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	identity := func(_ int, _ *colorsci.Params, pts []colorsci.RGB) ([]colorsci.RGB, error) {
		return pts, nil
	}
	failed := 0
	for _, r := range Verify(ref, identity, 4) {
		failed += r.Failed()
	}
	if failed == 0 {
		t.Error("identity evaluator passed the ACEScg input conversion")
	}
}

func TestVerify_EvaluatorErrorFailsScenario(t *testing.T) {
	ref, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	broken := func(int, *colorsci.Params, []colorsci.RGB) ([]colorsci.RGB, error) {
		return nil, errors.New("device lost")
	}
	for _, r := range Verify(ref, broken, 9) {
		if r.Err == nil || r.Failed() != len(r.Scenario.Results) {
			t.Errorf("%s: Failed() = %d with err %v", r.Scenario.Name, r.Failed(), r.Err)
		}
	}
}
