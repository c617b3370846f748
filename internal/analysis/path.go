package analysis

import (
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/san-kum/opspace/internal/dynamo"
)

type Point2 struct{ X, Y float64 }

// Path2D is an end-effector path projected onto a coordinate plane.
type Path2D struct {
	Plane  string
	Points []Point2
}

// ProjectPath projects positions onto "xy", "xz" or "yz".
func ProjectPath(positions []r3.Vector, plane string) (*Path2D, error) {
	pick, err := projector(plane)
	if err != nil {
		return nil, err
	}
	path := &Path2D{Plane: plane, Points: make([]Point2, len(positions))}
	for i, p := range positions {
		path.Points[i] = pick(p)
	}
	return path, nil
}

func projector(plane string) (func(r3.Vector) Point2, error) {
	switch plane {
	case "xy":
		return func(p r3.Vector) Point2 { return Point2{p.X, p.Y} }, nil
	case "xz":
		return func(p r3.Vector) Point2 { return Point2{p.X, p.Z} }, nil
	case "yz":
		return func(p r3.Vector) Point2 { return Point2{p.Y, p.Z} }, nil
	default:
		return nil, errors.Wrapf(dynamo.ErrInvalidConfiguration, "unknown plane %q", plane)
	}
}

// PathToASCII draws the path with the target marked as 'X'.
func PathToASCII(path *Path2D, target r3.Vector, width, height int) string {
	if path == nil || len(path.Points) == 0 || width < 2 || height < 2 {
		return ""
	}
	pick, _ := projector(path.Plane)
	goal := pick(target)

	minX, maxX := goal.X, goal.X
	minY, maxY := goal.Y, goal.Y
	for _, p := range path.Points {
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}

	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minX -= rangeX * 0.1
	maxX += rangeX * 0.1
	minY -= rangeY * 0.1
	maxY += rangeY * 0.1
	rangeX = maxX - minX
	rangeY = maxY - minY

	canvas := make([][]rune, height)
	for i := range canvas {
		canvas[i] = []rune(strings.Repeat(" ", width))
	}
	cell := func(p Point2) (int, int) {
		col := int((p.X - minX) / rangeX * float64(width-1))
		row := height - 1 - int((p.Y-minY)/rangeY*float64(height-1))
		return row, col
	}

	for _, p := range path.Points {
		row, col := cell(p)
		if row >= 0 && row < height && col >= 0 && col < width {
			canvas[row][col] = '•'
		}
	}
	if row, col := cell(path.Points[0]); row >= 0 && row < height && col >= 0 && col < width {
		canvas[row][col] = 'o'
	}
	if row, col := cell(goal); row >= 0 && row < height && col >= 0 && col < width {
		canvas[row][col] = 'X'
	}

	var sb strings.Builder
	for _, row := range canvas {
		sb.WriteString(strings.TrimRight(string(row), " "))
		sb.WriteRune('\n')
	}
	return sb.String()
}
