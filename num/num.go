// Package num contains numeric Array processing routines such as matrix multiplication and the
// activation, loss and convolution kernels used by the network layers.
//
// Matrix products are delegated to gonum's pure Go BLAS implementation.
package num

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// TransType flag indicates if matrix is transposed
type TransType int

const (
	NoTrans TransType = iota
	Trans
)

func (t TransType) blas() blas.Transpose {
	if t == Trans {
		return blas.Trans
	}
	return blas.NoTrans
}

// Smallest probability used when taking the log in the loss function.
const epsilon = 1e-7

// Fill array with a scalar value
func Fill(a *Array, scalar float32) {
	for i := range a.data {
		a.data[i] = scalar
	}
}

// Copy from src to dst, broadcast vector to matrix if needed, vector is tiled row wise
func Copy(dst, src *Array) {
	ddim, sdim := dst.dims, src.dims
	if SameShape(ddim, sdim) {
		copy(dst.data, src.data)
	} else if len(sdim) == 1 && len(ddim) == 2 && sdim[0] == ddim[1] {
		for row := 0; row < ddim[0]; row++ {
			copy(dst.data[row*ddim[1]:], src.data)
		}
	} else {
		panic(fmt.Sprintf("Copy: cannot copy from %v to %v shape", sdim, ddim))
	}
}

// Scale array: x <- alpha*x
func Scale(alpha float32, x *Array) {
	blas32.Scal(alpha, vector(x))
}

// Array addition and scaling: y <- alpha*x + y
func Axpy(alpha float32, x, y *Array) {
	if x.Size() != y.Size() {
		panic("Axpy: arrays must be same size")
	}
	blas32.Axpy(alpha, vector(x), vector(y))
}

// Sum returns the sum of the values in the array.
func Sum(a *Array) float64 {
	total := 0.0
	for _, v := range a.data {
		total += float64(v)
	}
	return total
}

// SumRows adds the rows of the 2d matrix x into the vector y: y <- y + sum_i x[i,:]
func SumRows(x, y *Array) {
	if len(x.dims) != 2 || y.Size() != x.dims[1] {
		panic(fmt.Sprintf("SumRows: invalid shape %v -> %v", x.dims, y.dims))
	}
	cols := x.dims[1]
	for row := 0; row < x.dims[0]; row++ {
		for j, v := range x.data[row*cols : (row+1)*cols] {
			y.data[j] += v
		}
	}
}

// Matrix matrix multiplication: mC <- alpha*dot(mA, mB) + beta*mC
func Gemm(alpha, beta float32, mA, mB, mC *Array, aTrans, bTrans TransType) {
	adim, bdim, cdim := mA.dims, mB.dims, mC.dims
	if len(adim) != 2 || len(bdim) != 2 || len(cdim) != 2 {
		panic("Gemm: must have 2 dimensional arrays")
	}
	m, k := adim[0], adim[1]
	k2, n := bdim[0], bdim[1]
	if aTrans == Trans {
		m, k = k, m
	}
	if bTrans == Trans {
		k2, n = n, k2
	}
	if k2 != k {
		panic(fmt.Sprintf("Gemm: invalid input shape %v x %v", adim, bdim))
	}
	if cdim[0] != m || cdim[1] != n {
		panic(fmt.Sprintf("Gemm: invalid output shape %v expecting [%d %d]", cdim, m, n))
	}
	blas32.Gemm(aTrans.blas(), bTrans.blas(), alpha, general(mA), general(mB), beta, general(mC))
}

// Sigmoid activation function: y = 1/(1+e**(-x))
func Sigmoid(x, y *Array) {
	unary(x, y, func(v float32) float32 {
		return float32(1 / (1 + math.Exp(-float64(v))))
	})
}

// SigmoidD sets y to the gradient of the sigmoid at input x multiplied by grad.
func SigmoidD(x, grad, y *Array) {
	binary(x, grad, y, func(v, g float32) float32 {
		s := float32(1 / (1 + math.Exp(-float64(v))))
		return g * s * (1 - s)
	})
}

// Tanh activation function: y = tanh(x)
func Tanh(x, y *Array) {
	unary(x, y, func(v float32) float32 {
		return float32(math.Tanh(float64(v)))
	})
}

func TanhD(x, grad, y *Array) {
	binary(x, grad, y, func(v, g float32) float32 {
		t := float32(math.Tanh(float64(v)))
		return g * (1 - t*t)
	})
}

// Relu rectified linear activation function: y = max(x, 0)
func Relu(x, y *Array) {
	unary(x, y, func(v float32) float32 {
		if v > 0 {
			return v
		}
		return 0
	})
}

func ReluD(x, grad, y *Array) {
	binary(x, grad, y, func(v, g float32) float32 {
		if v > 0 {
			return g
		}
		return 0
	})
}

// Softmax activation function applied to each row of the 2d matrix x.
func Softmax(x, res *Array) {
	xdim := x.dims
	if len(xdim) != 2 || !SameShape(xdim, res.dims) {
		panic("Softmax: arrays must be 2d and same shape")
	}
	cols := xdim[1]
	for row := 0; row < xdim[0]; row++ {
		in := x.data[row*cols : (row+1)*cols]
		out := res.data[row*cols : (row+1)*cols]
		max := in[0]
		for _, v := range in[1:] {
			if v > max {
				max = v
			}
		}
		sum := 0.0
		for j, v := range in {
			e := math.Exp(float64(v - max))
			out[j] = float32(e)
			sum += e
		}
		for j := range out {
			out[j] = float32(float64(out[j]) / sum)
		}
	}
}

// SoftmaxLoss computes the element wise cross entropy loss: res = -y * log(yPred)
func SoftmaxLoss(yOneHot, yPred, res *Array) {
	binary(yOneHot, yPred, res, func(y, p float32) float32 {
		if y == 0 {
			return 0
		}
		if p < epsilon {
			p = epsilon
		}
		return -y * float32(math.Log(float64(p)))
	})
}

// QuadraticLoss function: (x-y)**2
func QuadraticLoss(x, y, res *Array) {
	binary(x, y, res, func(a, b float32) float32 {
		return (a - b) * (a - b)
	})
}

// Onehot sets each row of y to the one hot representation of the corresponding label.
func Onehot(labels []int32, y *Array, classes int) {
	ydim := y.dims
	if len(ydim) != 2 || ydim[0] != len(labels) || ydim[1] != classes {
		panic("Onehot: invalid array shape")
	}
	Fill(y, 0)
	for i, label := range labels {
		y.data[i*classes+int(label)] = 1
	}
}

// Unhot converts from one hot format or class probabilities back to labels using the index of the max value in each row.
func Unhot(x *Array, labels []int32) {
	xdim := x.dims
	if len(xdim) != 2 || xdim[0] != len(labels) {
		panic("Unhot: invalid array shape")
	}
	cols := xdim[1]
	for row := range labels {
		in := x.data[row*cols : (row+1)*cols]
		best := 0
		for j, v := range in {
			if v > in[best] {
				best = j
			}
		}
		labels[row] = int32(best)
	}
}

func unary(x, y *Array, fn func(float32) float32) {
	if x.Size() != y.Size() {
		panic("UnaryFunc: arrays must be same size")
	}
	for i, v := range x.data {
		y.data[i] = fn(v)
	}
}

func binary(x, y, z *Array, fn func(a, b float32) float32) {
	if x.Size() != z.Size() || y.Size() != z.Size() {
		panic("BinaryFunc: arrays must be same size")
	}
	for i := range z.data {
		z.data[i] = fn(x.data[i], y.data[i])
	}
}

func general(a *Array) blas32.General {
	return blas32.General{Rows: a.dims[0], Cols: a.dims[1], Stride: a.dims[1], Data: a.data}
}

func vector(a *Array) blas32.Vector {
	return blas32.Vector{N: len(a.data), Data: a.data, Inc: 1}
}
