package num

import (
	"fmt"
	"strings"
)

// Parameters for array printing
var (
	PrintThreshold = 12
	PrintEdgeitems = 4
)

// Array is a general n dimensional float32 tensor similar to a numpy ndarray.
// Data is stored in row major order with the batch as the first dimension.
type Array struct {
	dims []int
	data []float32
}

// NewArray allocates a zeroed array with the given shape.
func NewArray(dims ...int) *Array {
	return &Array{dims: append([]int{}, dims...), data: make([]float32, Prod(dims))}
}

// NewArrayLike allocates a zeroed array with the same shape as a.
func NewArrayLike(a *Array) *Array {
	return NewArray(a.dims...)
}

// FromSlice returns an array which is a view on the given data.
func FromSlice(data []float32, dims ...int) *Array {
	if len(data) != Prod(dims) {
		panic(fmt.Sprintf("FromSlice: data length %d does not match shape %v", len(data), dims))
	}
	return &Array{dims: append([]int{}, dims...), data: data}
}

// Dims returns the shape of the array
func (a *Array) Dims() []int { return a.dims }

// Size is total number of elements
func (a *Array) Size() int { return len(a.data) }

// Data returns the underlying storage.
func (a *Array) Data() []float32 { return a.data }

// Row returns a view on the i'th entry along the first dimension.
func (a *Array) Row(i int) *Array {
	n := Prod(a.dims[1:])
	return &Array{dims: append([]int{}, a.dims[1:]...), data: a.data[i*n : (i+1)*n]}
}

// Reshape returns a new array of the same size with a view on the same data but with a different shape.
// A single dimension may be given as -1, in which case it is inferred.
func (a *Array) Reshape(dims ...int) *Array {
	dims = append([]int{}, dims...)
	n := len(a.data)
	for i := range dims {
		if dims[i] == -1 {
			other := 1
			for j, dim := range dims {
				if i != j {
					if dim == -1 {
						panic("Reshape: can only have single -1 value")
					}
					other *= dim
				}
			}
			dims[i] = n / other
		}
	}
	if Prod(dims) != n {
		panic("reshape must be to array of same size")
	}
	return &Array{dims: dims, data: a.data}
}

// Resize returns an array with the given shape, reusing a's storage if it is large enough.
func Resize(a *Array, dims ...int) *Array {
	n := Prod(dims)
	if a == nil || cap(a.data) < n {
		return NewArray(dims...)
	}
	return &Array{dims: append([]int{}, dims...), data: a.data[:n]}
}

func (a *Array) String() string {
	return format(a.dims, a.data, "")
}

func format(dims []int, data []float32, indent string) string {
	switch len(dims) {
	case 0:
		return formatValue(data[0])
	case 1:
		var b strings.Builder
		b.WriteString("[")
		for i := 0; i < dims[0]; i++ {
			if dims[0] > PrintThreshold+1 && i == PrintEdgeitems {
				b.WriteString("    ... ")
				i = dims[0] - PrintEdgeitems - 1
				continue
			}
			b.WriteString(formatValue(data[i]))
		}
		b.WriteString("]")
		return b.String()
	default:
		stride := Prod(dims[1:])
		var b strings.Builder
		b.WriteString(indent + "[\n")
		for i := 0; i < dims[0]; i++ {
			if dims[0] > PrintThreshold+1 && i == PrintEdgeitems {
				b.WriteString(indent + "   ...  ...   \n")
				i = dims[0] - PrintEdgeitems - 1
				continue
			}
			sub := format(dims[1:], data[i*stride:(i+1)*stride], indent+" ")
			if len(dims) == 2 {
				sub = indent + " " + sub + "\n"
			}
			b.WriteString(sub)
		}
		b.WriteString(indent + "]\n")
		return b.String()
	}
}

func formatValue(val float32) string {
	if abs(val) < 1 {
		val = float32(int(10000*val+0.5)) / 10000
	}
	return fmt.Sprintf("%7.5g ", val)
}

func abs(x float32) float32 {
	if x >= 0 {
		return x
	}
	return -x
}

// Product of elements of an integer array. Zero dimension array (scalar) has size 1.
func Prod(arr []int) int {
	prod := 1
	for _, v := range arr {
		prod *= v
	}
	return prod
}

// Check if two arrays are the same shape
func SameShape(xd, yd []int) bool {
	if len(xd) != len(yd) {
		return false
	}
	for i := range xd {
		if xd[i] != yd[i] {
			return false
		}
	}
	return true
}

// Total size of one of more arrays in bytes
func Bytes(arr ...*Array) (bytes int) {
	for _, a := range arr {
		if a != nil {
			bytes += 4 * a.Size()
		}
	}
	return bytes
}
