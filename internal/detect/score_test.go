package detect

import (
	"math"
	"testing"

	"doc-scanner/pkg/geometry"
)

// rectCandidate builds an axis-aligned candidate centered at (cx, cy).
func rectCandidate(cx, cy, w, h float64) Candidate {
	return Candidate{
		Corners: [4]geometry.Point2D{
			{X: cx - w/2, Y: cy - h/2},
			{X: cx + w/2, Y: cy - h/2},
			{X: cx + w/2, Y: cy + h/2},
			{X: cx - w/2, Y: cy + h/2},
		},
		Area:     w * h,
		Strategy: "test",
	}
}

func TestScoreBounded(t *testing.T) {
	const width, height = 480, 640
	imgArea := float64(width * height)

	centers := []geometry.Point2D{
		{X: 240, Y: 320},
		{X: 0, Y: 0},
		{X: 480, Y: 640},
		{X: 240, Y: 0},
	}
	ratios := []float64{0.02, 0.10, 0.35, 0.70, 0.95}
	aspects := []float64{1.0, 1.414, 2.5}

	for _, ctr := range centers {
		for _, r := range ratios {
			for _, a := range aspects {
				w := math.Sqrt(r * imgArea / a)
				h := a * w
				sc := scoreCandidate(rectCandidate(ctr.X, ctr.Y, w, h), width, height, DefaultShapes())

				total := sc.Score.Total()
				if total < 0 || total > 100 {
					t.Errorf("total %.2f out of [0, 100] for center=%+v r=%.2f aspect=%.2f", total, ctr, r, a)
				}
				if sc.Score.Center < 0 || sc.Score.Center > centerWeight {
					t.Errorf("center component %.2f out of range", sc.Score.Center)
				}
				if sc.Score.Size < 0 || sc.Score.Size > sizeWeight {
					t.Errorf("size component %.2f out of range", sc.Score.Size)
				}
				if sc.Score.Aspect < 0 || sc.Score.Aspect > aspectWeight {
					t.Errorf("aspect component %.2f out of range", sc.Score.Aspect)
				}
			}
		}
	}
}

func TestScoreCenteredBeatsEdge(t *testing.T) {
	const width, height = 480, 640

	centered := scoreCandidate(rectCandidate(240, 320, 200, 280), width, height, DefaultShapes())
	edge := scoreCandidate(rectCandidate(100, 140, 200, 280), width, height, DefaultShapes())

	if centered.Score.Size != edge.Score.Size || centered.Score.Aspect != edge.Score.Aspect {
		t.Fatalf("size/aspect should match: %+v vs %+v", centered.Score, edge.Score)
	}
	if centered.Score.Total() <= edge.Score.Total() {
		t.Errorf("centered %.2f should beat edge %.2f", centered.Score.Total(), edge.Score.Total())
	}
}

func TestScoreSizeBranches(t *testing.T) {
	const width, height = 480, 640
	imgArea := float64(width * height)

	cases := []struct {
		name  string
		ratio float64
		want  float64
	}{
		{"sweet spot", 0.35, 35},
		{"window low edge", 0.10, 10},
		{"undersized", 0.05, 7.5},
		{"oversized", 0.85, 5},
		{"whole frame", 1.0, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			side := math.Sqrt(tc.ratio * imgArea)
			c := rectCandidate(240, 320, side, side)
			c.Area = tc.ratio * imgArea
			sc := scoreCandidate(c, width, height, DefaultShapes())
			if math.Abs(sc.Score.Size-tc.want) > 1e-9 {
				t.Errorf("size score = %.4f, want %.4f", sc.Score.Size, tc.want)
			}
		})
	}
}

func TestScoreAspectPrefersPaper(t *testing.T) {
	const width, height = 480, 640

	a4 := scoreCandidate(rectCandidate(240, 320, 300, 300*math.Sqrt2), width, height, DefaultShapes())
	if a4.Score.Aspect < 24.9 {
		t.Errorf("A-series aspect score = %.2f, want near 25", a4.Score.Aspect)
	}
	if a4.Paper != "A-series" {
		t.Errorf("paper = %q, want A-series", a4.Paper)
	}

	banner := scoreCandidate(rectCandidate(240, 320, 100, 300), width, height, DefaultShapes())
	if banner.Score.Aspect != 0 {
		t.Errorf("banner aspect score = %.2f, want 0", banner.Score.Aspect)
	}
}

func TestSelectBestFirstSeenWins(t *testing.T) {
	tie := Score{Center: 30, Size: 20, Aspect: 10}
	cands := []ScoredCandidate{
		{Candidate: Candidate{Strategy: "first"}, Score: tie},
		{Candidate: Candidate{Strategy: "second"}, Score: tie},
	}

	best, ok := selectBest(cands)
	if !ok {
		t.Fatal("selectBest returned no winner")
	}
	if best.Strategy != "first" {
		t.Errorf("tie should keep first candidate, got %s", best.Strategy)
	}

	cands = append(cands, ScoredCandidate{
		Candidate: Candidate{Strategy: "third"},
		Score:     Score{Center: 30, Size: 20, Aspect: 11},
	})
	best, _ = selectBest(cands)
	if best.Strategy != "third" {
		t.Errorf("strictly higher score should win, got %s", best.Strategy)
	}

	if _, ok := selectBest(nil); ok {
		t.Error("empty slice should report no winner")
	}
}

func TestNearestShape(t *testing.T) {
	cases := []struct {
		aspect float64
		want   string
	}{
		{1.414, "A-series"},
		{1.30, "US Letter"},
		{1.02, "Square"},
	}
	for _, tc := range cases {
		shape, delta := NearestShape(tc.aspect, DefaultShapes())
		if shape.Name != tc.want {
			t.Errorf("NearestShape(%.3f) = %s, want %s", tc.aspect, shape.Name, tc.want)
		}
		if delta < 0 {
			t.Errorf("delta %.4f negative", delta)
		}
	}
}
