package storage

import (
	"encoding/json"
	"io"
	"time"
)

type ExportData struct {
	RunMetadata
	Times     []float64    `json:"times"`
	States    [][]float64  `json:"states"`
	Torques   [][]float64  `json:"torques"`
	Positions [][3]float64 `json:"positions"`
	Errors    []float64    `json:"errors"`
	Statuses  []string     `json:"statuses_per_tick"`
}

// ExportJSON writes the whole run as a single JSON document.
func ExportJSON(w io.Writer, run Run) error {
	res := run.Result
	data := ExportData{
		RunMetadata: run.Metadata("", time.Now()),
		Times:       res.Times,
		States:      make([][]float64, len(res.States)),
		Torques:     make([][]float64, len(res.Torques)),
		Positions:   make([][3]float64, len(res.Positions)),
		Errors:      res.Errors,
		Statuses:    make([]string, len(res.Statuses)),
	}
	for i, s := range res.States {
		data.States[i] = s
	}
	for i, u := range res.Torques {
		data.Torques[i] = u
	}
	for i, p := range res.Positions {
		data.Positions[i] = vec(p)
	}
	for i, s := range res.Statuses {
		data.Statuses[i] = s.String()
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
