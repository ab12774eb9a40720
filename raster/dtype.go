package raster

import "math"

// DType names a supported pixel data type. The names follow the GDAL
// convention so they can be written straight into file metadata.
type DType string

const (
	DTByte    DType = "Byte"
	DTInt16   DType = "Int16"
	DTUInt16  DType = "UInt16"
	DTInt32   DType = "Int32"
	DTUInt32  DType = "UInt32"
	DTFloat32 DType = "Float32"
	DTFloat64 DType = "Float64"
)

// DTypes lists every supported data type in a stable order.
var DTypes = []DType{DTByte, DTInt16, DTUInt16, DTInt32, DTUInt32, DTFloat32, DTFloat64}

func (d DType) Valid() bool {
	switch d {
	case DTByte, DTInt16, DTUInt16, DTInt32, DTUInt32, DTFloat32, DTFloat64:
		return true
	}
	return false
}

// Size returns the width of one pixel in bytes.
func (d DType) Size() int {
	switch d {
	case DTByte:
		return 1
	case DTInt16, DTUInt16:
		return 2
	case DTInt32, DTUInt32, DTFloat32:
		return 4
	case DTFloat64:
		return 8
	}
	return 0
}

func (d DType) IsFloat() bool {
	return d == DTFloat32 || d == DTFloat64
}

func (d DType) IsSigned() bool {
	return d == DTInt16 || d == DTInt32
}

func (d DType) IsUnsigned() bool {
	return d == DTByte || d == DTUInt16 || d == DTUInt32
}

// DefaultNodata returns the conventional fill value for a data type family:
// NaN for floats, -999 for signed integers, 0 for unsigned integers.
func (d DType) DefaultNodata() float64 {
	switch {
	case d.IsFloat():
		return math.NaN()
	case d.IsSigned():
		return -999
	default:
		return 0
	}
}

// clampTo rounds and clamps a float64 to the representable range of d.
// Used when casting promoted computation results back to the stored type.
func (d DType) clampTo(v float64) float64 {
	if d.IsFloat() {
		return v
	}
	if math.IsNaN(v) {
		return 0
	}
	v = math.Round(v)
	var lo, hi float64
	switch d {
	case DTByte:
		lo, hi = 0, math.MaxUint8
	case DTInt16:
		lo, hi = math.MinInt16, math.MaxInt16
	case DTUInt16:
		lo, hi = 0, math.MaxUint16
	case DTInt32:
		lo, hi = math.MinInt32, math.MaxInt32
	case DTUInt32:
		lo, hi = 0, math.MaxUint32
	}
	return math.Max(lo, math.Min(hi, v))
}
