package export

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/san-kum/opspace/internal/dynamo"
)

func series(n int) ([]float64, []float64, []r3.Vector, []r3.Vector, []dynamo.Control) {
	times := make([]float64, n)
	errs := make([]float64, n)
	pos := make([]r3.Vector, n)
	tgt := make([]r3.Vector, n)
	tau := make([]dynamo.Control, n)
	for i := 0; i < n; i++ {
		times[i] = float64(i) * 0.01
		errs[i] = 0.1 / float64(i+1)
		pos[i] = r3.Vector{X: 0.4 + 0.1*float64(i)/float64(n), Y: 0, Z: 0.3}
		tgt[i] = r3.Vector{X: 0.5, Y: 0, Z: 0.3}
		tau[i] = dynamo.Control{1, -1, 0.5}
	}
	return times, errs, pos, tgt, tau
}

func TestSavePNGAndSVG(t *testing.T) {
	times, errs, pos, tgt, tau := series(50)
	dir := t.TempDir()

	p, err := ErrorPlot(times, errs)
	test.That(t, err, test.ShouldBeNil)
	pngPath := filepath.Join(dir, "error.png")
	test.That(t, Save(p, pngPath), test.ShouldBeNil)
	data, err := os.ReadFile(pngPath)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(data[1:4]), test.ShouldEqual, "PNG")

	p, err = TrackingPlot(times, pos, tgt)
	test.That(t, err, test.ShouldBeNil)
	svgPath := filepath.Join(dir, "tracking.svg")
	test.That(t, Save(p, svgPath), test.ShouldBeNil)
	data, err = os.ReadFile(svgPath)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(data), test.ShouldContainSubstring, "<svg")

	p, err = TorquePlot(times, tau)
	test.That(t, err, test.ShouldBeNil)
	var buf bytes.Buffer
	test.That(t, Write(p, &buf, "svg"), test.ShouldBeNil)
	test.That(t, buf.Len(), test.ShouldBeGreaterThan, 0)
}

func TestSaveRejectsUnknownFormat(t *testing.T) {
	times, errs, _, _, _ := series(5)
	p, err := ErrorPlot(times, errs)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, Save(p, filepath.Join(t.TempDir(), "plot.bmp")), test.ShouldNotBeNil)
}

func TestPlotDimensionErrors(t *testing.T) {
	times, errs, pos, tgt, tau := series(5)

	_, err := ErrorPlot(times, errs[:3])
	test.That(t, err, test.ShouldNotBeNil)
	_, err = ErrorPlot(nil, nil)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = TrackingPlot(times, pos[:2], tgt)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = TorquePlot(times, tau[:1])
	test.That(t, err, test.ShouldNotBeNil)
}

func TestDownsample(t *testing.T) {
	test.That(t, Downsample(10, 4), test.ShouldResemble, []int{0, 1, 2, 3})
	test.That(t, Downsample(0, 3), test.ShouldResemble, []int{0, 1, 2})

	idx := Downsample(10, 2001)
	test.That(t, idx[0], test.ShouldEqual, 0)
	test.That(t, idx[len(idx)-1], test.ShouldEqual, 2000)
	test.That(t, len(idx), test.ShouldBeLessThanOrEqualTo, 11)
}
