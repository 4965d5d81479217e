package session

import (
	"database/sql"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/marcboeker/go-duckdb"
	"gonum.org/v1/gonum/mat"
)

// Value is the closed set of results an evaluation can produce.
// The dynamic shape of engine results never leaves this package.
type Value interface {
	value()
}

// Scalar is a single number.
type Scalar float64

// Text is a single non-numeric value.
type Text string

// StringArray is a flat array of display strings. Results with several
// columns are flattened column-major: cell (r, c) is at index c*rows + r.
type StringArray []string

// NumericMatrix is an all-numeric result; NULL cells are NaN.
type NumericMatrix struct {
	M *mat.Dense
}

// Empty is a result without columns or rows, or a single NULL.
type Empty struct{}

func (Scalar) value()        {}
func (Text) value()          {}
func (StringArray) value()   {}
func (NumericMatrix) value() {}
func (Empty) value()         {}

// NA is the display string for missing values.
const NA = "NA"

// FormatNumber renders f deterministically as the shortest decimal that
// round-trips, in fixed notation for ordinary magnitudes.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return NA
	case math.IsInf(f, 1):
		return "Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	}
	if a := math.Abs(f); a == 0 || (a >= 1e-4 && a < 1e21) {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Strings converts any value into display strings. Matrices are flattened
// column-major, matching StringArray.
func Strings(v Value) []string {
	switch v := v.(type) {
	case StringArray:
		return v
	case Text:
		return []string{string(v)}
	case Scalar:
		return []string{FormatNumber(float64(v))}
	case NumericMatrix:
		r, c := v.M.Dims()
		out := make([]string, 0, r*c)
		for j := 0; j < c; j++ {
			for i := 0; i < r; i++ {
				out = append(out, FormatNumber(v.M.At(i, j)))
			}
		}
		return out
	default:
		return nil
	}
}

// Float converts a single-valued result to a number.
func Float(v Value) (float64, error) {
	switch v := v.(type) {
	case Scalar:
		return float64(v), nil
	case Text:
		f, err := strconv.ParseFloat(string(v), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", string(v))
		}
		return f, nil
	case NumericMatrix:
		if r, c := v.M.Dims(); r == 1 && c == 1 {
			return v.M.At(0, 0), nil
		}
	case Empty:
		return 0, fmt.Errorf("empty result")
	}
	return 0, fmt.Errorf("result is not a single number (%T)", v)
}

// Int converts a single-valued result to an integer.
func Int(v Value) (int, error) {
	f, err := Float(v)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || f != math.Trunc(f) {
		return 0, fmt.Errorf("not an integer: %s", FormatNumber(f))
	}
	return int(f), nil
}

// TextOf converts a single-valued result to a string.
func TextOf(v Value) (string, bool) {
	switch v := v.(type) {
	case Text:
		return string(v), true
	case Scalar:
		return FormatNumber(float64(v)), true
	case StringArray:
		if len(v) == 1 {
			return v[0], true
		}
	}
	return "", false
}

// Matrix returns the numeric payload of v, if it has one.
func Matrix(v Value) (*mat.Dense, bool) {
	switch v := v.(type) {
	case NumericMatrix:
		return v.M, true
	case Scalar:
		return mat.NewDense(1, 1, []float64{float64(v)}), true
	}
	return nil, false
}

// decode drains rows into a Value.
func decode(rows *sql.Rows) (Value, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		for rows.Next() {
		}
		return Empty{}, rows.Err()
	}

	var cells [][]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		cells = append(cells, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return fromCells(cells, len(cols)), nil
}

// fromCells classifies a row-major grid of scanned cells.
func fromCells(cells [][]any, ncol int) Value {
	nrow := len(cells)
	if nrow == 0 || ncol == 0 {
		return Empty{}
	}

	numeric := true
	for _, row := range cells {
		for _, cell := range row {
			if cell == nil {
				continue
			}
			if _, ok := exactFloat(cell); !ok {
				numeric = false
			}
		}
	}

	if nrow == 1 && ncol == 1 {
		cell := cells[0][0]
		switch {
		case cell == nil:
			return Empty{}
		case numeric:
			f, _ := toFloat(cell)
			return Scalar(f)
		default:
			return Text(formatCell(cell))
		}
	}

	if numeric {
		data := make([]float64, 0, nrow*ncol)
		for _, row := range cells {
			for _, cell := range row {
				if cell == nil {
					data = append(data, math.NaN())
					continue
				}
				f, _ := toFloat(cell)
				data = append(data, f)
			}
		}
		return NumericMatrix{M: mat.NewDense(nrow, ncol, data)}
	}

	out := make(StringArray, nrow*ncol)
	for r, row := range cells {
		for c, cell := range row {
			out[c*nrow+r] = formatCell(cell)
		}
	}
	return out
}

// maxExactDecimal bounds the unscaled decimals whose shortest float64
// rendering reproduces every digit.
var maxExactDecimal = new(big.Int).Exp(big.NewInt(10), big.NewInt(15), nil)

// exactFloat is toFloat restricted to cells that survive the conversion
// unchanged. Wide integers and decimals are rejected so the caller keeps
// them as text.
func exactFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return exactInt(big.NewInt(int64(n)))
	case int64:
		return exactInt(big.NewInt(n))
	case uint64:
		return exactInt(new(big.Int).SetUint64(n))
	case *big.Int:
		return exactInt(n)
	case duckdb.Decimal:
		if n.Value != nil && n.Value.CmpAbs(maxExactDecimal) >= 0 {
			return 0, false
		}
	}
	return toFloat(v)
}

func exactInt(n *big.Int) (float64, bool) {
	f, acc := new(big.Float).SetInt(n).Float64()
	return f, acc == big.Exact
}

// toFloat reports whether a scanned cell is numeric and converts it.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case *big.Int:
		f, _ := new(big.Float).SetInt(n).Float64()
		return f, true
	case duckdb.Decimal:
		return decimalFloat(n), true
	case interface{ Float64() float64 }:
		return n.Float64(), true
	}
	return 0, false
}

// formatCell renders one scanned cell for display. Integers are printed exactly.
func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return NA
	case string:
		return x
	case []byte:
		return string(x)
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	case int:
		return strconv.Itoa(x)
	case int8:
		return strconv.FormatInt(int64(x), 10)
	case int16:
		return strconv.FormatInt(int64(x), 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint8:
		return strconv.FormatUint(uint64(x), 10)
	case uint16:
		return strconv.FormatUint(uint64(x), 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float32:
		return FormatNumber(float64(x))
	case float64:
		return FormatNumber(x)
	case *big.Int:
		return x.String()
	case duckdb.Decimal:
		return decimalString(x)
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format(time.DateOnly)
		}
		return x.Format(time.DateTime)
	case fmt.Stringer:
		return x.String()
	case interface{ Float64() float64 }:
		return FormatNumber(x.Float64())
	}
	return fmt.Sprint(v)
}

// decimalString renders a decimal exactly, without trailing fractional zeros.
func decimalString(d duckdb.Decimal) string {
	if d.Value == nil {
		return "0"
	}
	digits := new(big.Int).Abs(d.Value).String()
	sign := ""
	if d.Value.Sign() < 0 {
		sign = "-"
	}
	scale := int(d.Scale)
	if scale == 0 {
		return sign + digits
	}
	if len(digits) <= scale {
		digits = strings.Repeat("0", scale-len(digits)+1) + digits
	}
	whole, frac := digits[:len(digits)-scale], strings.TrimRight(digits[len(digits)-scale:], "0")
	if frac == "" {
		return sign + whole
	}
	return sign + whole + "." + frac
}

func decimalFloat(d duckdb.Decimal) float64 {
	if d.Value == nil {
		return 0
	}
	f := new(big.Float).SetInt(d.Value)
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(d.Scale)), nil))
	out, _ := f.Quo(f, scale).Float64()
	return out
}
