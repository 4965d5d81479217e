package commands

import (
	"fmt"
	"math"
	"strings"

	"github.com/leapstack-labs/dante/internal/cli/output"
	"github.com/leapstack-labs/dante/internal/session"
)

func formatShape(rows, cols int) string {
	return fmt.Sprintf("%d rows; %d columns", rows, cols)
}

// renderValue prints an evaluation result in the renderer's mode.
func renderValue(r *output.Renderer, v session.Value) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(valueJSON(v))
	}

	switch v := v.(type) {
	case session.Scalar:
		r.Println(session.FormatNumber(float64(v)))
	case session.Text:
		r.Println(string(v))
	case session.StringArray:
		r.Println(strings.Join(v, "\n"))
	case session.NumericMatrix:
		rows, cols := v.M.Dims()
		header := make([]string, cols)
		for c := range header {
			header[c] = fmt.Sprintf("V%d", c+1)
		}
		cells := make([][]string, rows)
		for i := range cells {
			cells[i] = make([]string, cols)
			for j := range cells[i] {
				cells[i][j] = session.FormatNumber(v.M.At(i, j))
			}
		}
		return r.Table(header, cells)
	default:
		r.Muted("(empty)")
	}
	return nil
}

// valueJSON converts v into something encoding/json accepts. NaN becomes null.
func valueJSON(v session.Value) any {
	switch v := v.(type) {
	case session.Scalar:
		return jsonNumber(float64(v))
	case session.Text:
		return string(v)
	case session.StringArray:
		return []string(v)
	case session.NumericMatrix:
		rows, cols := v.M.Dims()
		out := make([][]any, rows)
		for i := range out {
			out[i] = make([]any, cols)
			for j := range out[i] {
				out[i][j] = jsonNumber(v.M.At(i, j))
			}
		}
		return out
	default:
		return nil
	}
}

func jsonNumber(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}
