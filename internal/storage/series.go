package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/san-kum/opspace/internal/dynamo"
	"github.com/san-kum/opspace/internal/refine"
	"github.com/san-kum/opspace/internal/sim"
)

// Series is a stored run read back from CSV, one row per tick.
type Series struct {
	Header    []string
	Times     []float64
	Q         [][]float64
	DQ        [][]float64
	Torques   [][]float64
	Positions []r3.Vector
	Targets   []r3.Vector
	Errors    []float64
	Statuses  []string
}

func seriesHeader(dof int) []string {
	header := []string{"time"}
	for _, prefix := range []string{"q", "dq", "tau"} {
		for i := 0; i < dof; i++ {
			header = append(header, fmt.Sprintf("%s%d", prefix, i))
		}
	}
	return append(header, "x", "y", "z", "target_x", "target_y", "target_z", "error", "status")
}

// WriteSeries writes one CSV row per recorded tick.
func WriteSeries(w io.Writer, res *sim.Result) error {
	cw := csv.NewWriter(w)
	dof := 0
	if len(res.Torques) > 0 {
		dof = len(res.Torques[0])
	}
	if err := cw.Write(seriesHeader(dof)); err != nil {
		return err
	}

	for i := range res.Times {
		row := make([]string, 0, 3*dof+9)
		row = append(row, formatFloat(res.Times[i]))
		for _, v := range res.States[i] {
			row = append(row, formatFloat(v))
		}
		for _, v := range res.Torques[i] {
			row = append(row, formatFloat(v))
		}
		p, tgt := res.Positions[i], res.Targets[i]
		row = append(row,
			formatFloat(p.X), formatFloat(p.Y), formatFloat(p.Z),
			formatFloat(tgt.X), formatFloat(tgt.Y), formatFloat(tgt.Z),
			formatFloat(res.Errors[i]), res.Statuses[i].String())
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadSeries parses what WriteSeries produced.
func ReadSeries(r io.Reader) (*Series, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.New("storage: empty series")
	}

	header := records[0]
	if (len(header)-9)%3 != 0 || len(header) < 9 {
		return nil, errors.Errorf("storage: unexpected series header with %d columns", len(header))
	}
	dof := (len(header) - 9) / 3
	s := &Series{Header: header}

	for n, record := range records[1:] {
		vals := make([]float64, len(record)-1)
		for j := range vals {
			v, err := strconv.ParseFloat(record[j], 64)
			if err != nil {
				return nil, errors.Wrapf(err, "row %d column %s", n+1, header[j])
			}
			vals[j] = v
		}
		s.Times = append(s.Times, vals[0])
		s.Q = append(s.Q, vals[1:1+dof])
		s.DQ = append(s.DQ, vals[1+dof:1+2*dof])
		s.Torques = append(s.Torques, vals[1+2*dof:1+3*dof])
		rest := vals[1+3*dof:]
		s.Positions = append(s.Positions, r3.Vector{X: rest[0], Y: rest[1], Z: rest[2]})
		s.Targets = append(s.Targets, r3.Vector{X: rest[3], Y: rest[4], Z: rest[5]})
		s.Errors = append(s.Errors, rest[6])
		s.Statuses = append(s.Statuses, record[len(record)-1])
	}
	return s, nil
}

// DOF is the number of joints in the series.
func (s *Series) DOF() int { return (len(s.Header) - 9) / 3 }

// Len is the number of ticks.
func (s *Series) Len() int { return len(s.Times) }

// Result rebuilds the simulation result the series was written from. Metrics
// are not part of the series and are left empty.
func (s *Series) Result() (*sim.Result, error) {
	n := s.Len()
	res := &sim.Result{
		Times:      s.Times,
		States:     make([]dynamo.State, n),
		Torques:    make([]dynamo.Control, n),
		Positions:  s.Positions,
		Targets:    s.Targets,
		Errors:     s.Errors,
		Statuses:   make([]refine.Status, n),
		Metrics:    make(map[string]float64),
		StepsTaken: n,
	}
	for i := 0; i < n; i++ {
		res.States[i] = append(append(dynamo.State{}, s.Q[i]...), s.DQ[i]...)
		res.Torques[i] = dynamo.Control(s.Torques[i])
		st, err := refine.ParseStatus(s.Statuses[i])
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", i+1)
		}
		res.Statuses[i] = st
	}
	return res, nil
}
