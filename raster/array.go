package raster

import (
	"fmt"
	"math"
)

// Array is a two-dimensional pixel grid in row-major order. Exactly one of
// the typed backing slices is populated, selected by the dtype tag; all
// element access goes through that tag. Values move in and out as float64,
// which every supported type converts to without loss.
type Array struct {
	dtype DType
	rows  int
	cols  int

	u8  []uint8
	i16 []int16
	u16 []uint16
	i32 []int32
	u32 []uint32
	f32 []float32
	f64 []float64
}

// NewArray allocates a zero-filled rows x cols grid of the given type.
func NewArray(dtype DType, rows, cols int) (*Array, error) {
	if !dtype.Valid() {
		return nil, fmt.Errorf("unknown dtype %q", dtype)
	}
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidShape, rows, cols)
	}
	a := &Array{dtype: dtype, rows: rows, cols: cols}
	n := rows * cols
	switch dtype {
	case DTByte:
		a.u8 = make([]uint8, n)
	case DTInt16:
		a.i16 = make([]int16, n)
	case DTUInt16:
		a.u16 = make([]uint16, n)
	case DTInt32:
		a.i32 = make([]int32, n)
	case DTUInt32:
		a.u32 = make([]uint32, n)
	case DTFloat32:
		a.f32 = make([]float32, n)
	case DTFloat64:
		a.f64 = make([]float64, n)
	}
	return a, nil
}

// NewByteArray wraps data as a rows x cols Byte grid. The slice is owned by
// the Array afterwards. The remaining constructors follow the same contract.
func NewByteArray(data []uint8, rows, cols int) (*Array, error) {
	if err := checkDims(len(data), rows, cols); err != nil {
		return nil, err
	}
	return &Array{dtype: DTByte, rows: rows, cols: cols, u8: data}, nil
}

func NewInt16Array(data []int16, rows, cols int) (*Array, error) {
	if err := checkDims(len(data), rows, cols); err != nil {
		return nil, err
	}
	return &Array{dtype: DTInt16, rows: rows, cols: cols, i16: data}, nil
}

func NewUInt16Array(data []uint16, rows, cols int) (*Array, error) {
	if err := checkDims(len(data), rows, cols); err != nil {
		return nil, err
	}
	return &Array{dtype: DTUInt16, rows: rows, cols: cols, u16: data}, nil
}

func NewInt32Array(data []int32, rows, cols int) (*Array, error) {
	if err := checkDims(len(data), rows, cols); err != nil {
		return nil, err
	}
	return &Array{dtype: DTInt32, rows: rows, cols: cols, i32: data}, nil
}

func NewUInt32Array(data []uint32, rows, cols int) (*Array, error) {
	if err := checkDims(len(data), rows, cols); err != nil {
		return nil, err
	}
	return &Array{dtype: DTUInt32, rows: rows, cols: cols, u32: data}, nil
}

func NewFloat32Array(data []float32, rows, cols int) (*Array, error) {
	if err := checkDims(len(data), rows, cols); err != nil {
		return nil, err
	}
	return &Array{dtype: DTFloat32, rows: rows, cols: cols, f32: data}, nil
}

func NewFloat64Array(data []float64, rows, cols int) (*Array, error) {
	if err := checkDims(len(data), rows, cols); err != nil {
		return nil, err
	}
	return &Array{dtype: DTFloat64, rows: rows, cols: cols, f64: data}, nil
}

func checkDims(n, rows, cols int) error {
	if rows <= 0 || cols <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidShape, rows, cols)
	}
	if n != rows*cols {
		return fmt.Errorf("%w: %d values for %dx%d grid", ErrInvalidShape, n, rows, cols)
	}
	return nil
}

func (a *Array) DType() DType { return a.dtype }
func (a *Array) Rows() int    { return a.rows }
func (a *Array) Cols() int    { return a.cols }
func (a *Array) Len() int     { return a.rows * a.cols }

// SameShape reports whether b has identical row and column counts.
func (a *Array) SameShape(b *Array) bool {
	return b != nil && a.rows == b.rows && a.cols == b.cols
}

// Value returns the element at (row, col) as float64.
func (a *Array) Value(row, col int) float64 {
	return a.ValueAt(row*a.cols + col)
}

// ValueAt returns the element at a flat row-major index as float64.
func (a *Array) ValueAt(i int) float64 {
	switch a.dtype {
	case DTByte:
		return float64(a.u8[i])
	case DTInt16:
		return float64(a.i16[i])
	case DTUInt16:
		return float64(a.u16[i])
	case DTInt32:
		return float64(a.i32[i])
	case DTUInt32:
		return float64(a.u32[i])
	case DTFloat32:
		return float64(a.f32[i])
	default:
		return a.f64[i]
	}
}

// SetValue stores v at (row, col), rounding and clamping to the element type.
func (a *Array) SetValue(row, col int, v float64) {
	a.SetValueAt(row*a.cols+col, v)
}

// SetValueAt stores v at a flat row-major index.
func (a *Array) SetValueAt(i int, v float64) {
	switch a.dtype {
	case DTByte:
		a.u8[i] = uint8(a.dtype.clampTo(v))
	case DTInt16:
		a.i16[i] = int16(a.dtype.clampTo(v))
	case DTUInt16:
		a.u16[i] = uint16(a.dtype.clampTo(v))
	case DTInt32:
		a.i32[i] = int32(a.dtype.clampTo(v))
	case DTUInt32:
		a.u32[i] = uint32(a.dtype.clampTo(v))
	case DTFloat32:
		a.f32[i] = float32(v)
	default:
		a.f64[i] = v
	}
}

// Fill sets every element to v.
func (a *Array) Fill(v float64) {
	for i := 0; i < a.Len(); i++ {
		a.SetValueAt(i, v)
	}
}

// Clone returns a deep copy sharing no storage with a.
func (a *Array) Clone() *Array {
	c := &Array{dtype: a.dtype, rows: a.rows, cols: a.cols}
	switch a.dtype {
	case DTByte:
		c.u8 = append([]uint8(nil), a.u8...)
	case DTInt16:
		c.i16 = append([]int16(nil), a.i16...)
	case DTUInt16:
		c.u16 = append([]uint16(nil), a.u16...)
	case DTInt32:
		c.i32 = append([]int32(nil), a.i32...)
	case DTUInt32:
		c.u32 = append([]uint32(nil), a.u32...)
	case DTFloat32:
		c.f32 = append([]float32(nil), a.f32...)
	default:
		c.f64 = append([]float64(nil), a.f64...)
	}
	return c
}

// Equal reports elementwise equality of two grids of the same dtype and
// shape. NaN elements compare equal to NaN so nodata-filled float grids can
// be compared directly.
func (a *Array) Equal(b *Array) bool {
	if b == nil || a.dtype != b.dtype || !a.SameShape(b) {
		return false
	}
	for i := 0; i < a.Len(); i++ {
		va, vb := a.ValueAt(i), b.ValueAt(i)
		if va == vb {
			continue
		}
		if math.IsNaN(va) && math.IsNaN(vb) {
			continue
		}
		return false
	}
	return true
}

// Float64s returns a freshly allocated float64 copy of the grid.
func (a *Array) Float64s() []float64 {
	out := make([]float64, a.Len())
	if a.dtype == DTFloat64 {
		copy(out, a.f64)
		return out
	}
	for i := range out {
		out[i] = a.ValueAt(i)
	}
	return out
}

// CastTo returns a copy of the grid converted to dtype, rounding and
// clamping integer targets.
func (a *Array) CastTo(dtype DType) (*Array, error) {
	out, err := NewArray(dtype, a.rows, a.cols)
	if err != nil {
		return nil, err
	}
	for i := 0; i < a.Len(); i++ {
		out.SetValueAt(i, a.ValueAt(i))
	}
	return out, nil
}

// Slice copies the half-open window [r0,r1) x [c0,c1) into a new grid.
func (a *Array) Slice(r0, r1, c0, c1 int) (*Array, error) {
	if r0 < 0 || c0 < 0 || r1 > a.rows || c1 > a.cols || r0 >= r1 || c0 >= c1 {
		return nil, fmt.Errorf("%w: window [%d:%d, %d:%d] of %dx%d", ErrOutOfBounds, r0, r1, c0, c1, a.rows, a.cols)
	}
	out, err := NewArray(a.dtype, r1-r0, c1-c0)
	if err != nil {
		return nil, err
	}
	for r := r0; r < r1; r++ {
		for c := c0; c < c1; c++ {
			out.SetValue(r-r0, c-c0, a.Value(r, c))
		}
	}
	return out, nil
}

// isNodata reports whether v matches nodata, treating NaN as self-matching.
func isNodata(v, nodata float64) bool {
	if math.IsNaN(nodata) {
		return math.IsNaN(v)
	}
	return v == nodata
}
