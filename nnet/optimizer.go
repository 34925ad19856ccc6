package nnet

import (
	"math"

	"github.com/pkg/errors"

	"github.com/jnb666/mnistrun/num"
)

// Optimizer updates the network weights from the gradients accumulated over a batch.
type Optimizer interface {
	Update(layers []ParamLayer, batchSize int)
}

// NewOptimizer returns the optimizer named in the config: "sgd" or "adam" (the default).
func NewOptimizer(c Config) (Optimizer, error) {
	switch c.Optimizer {
	case "sgd":
		return &sgd{eta: c.Eta, lambda: c.Lambda}, nil
	case "adam", "":
		eta := c.Eta
		if eta == 0 {
			eta = 0.001
		}
		return &adam{eta: eta, beta1: 0.9, beta2: 0.999, eps: 1e-7}, nil
	default:
		return nil, errors.Errorf("invalid optimizer %q", c.Optimizer)
	}
}

// stochastic gradient descent with optional L2 weight decay
type sgd struct {
	eta, lambda float64
}

func (o *sgd) Update(layers []ParamLayer, batchSize int) {
	n := float32(batchSize)
	for _, l := range layers {
		w, b := l.Params()
		dw, db := l.ParamGrads()
		if o.lambda != 0 {
			num.Scale(float32(1-o.eta*o.lambda), w)
		}
		num.Axpy(-float32(o.eta)/n, dw, w)
		num.Axpy(-float32(o.eta)/n, db, b)
	}
}

// adam optimizer as per Kingma & Ba, moments are allocated on the first update
type adam struct {
	eta, beta1, beta2, eps float64
	t                      int
	m, v                   []*num.Array
}

func (o *adam) Update(layers []ParamLayer, batchSize int) {
	if o.m == nil {
		for _, l := range layers {
			w, b := l.Params()
			o.m = append(o.m, num.NewArrayLike(w), num.NewArrayLike(b))
			o.v = append(o.v, num.NewArrayLike(w), num.NewArrayLike(b))
		}
	}
	o.t++
	lr := o.eta * math.Sqrt(1-math.Pow(o.beta2, float64(o.t))) / (1 - math.Pow(o.beta1, float64(o.t)))
	n := float64(batchSize)
	for i, l := range layers {
		w, b := l.Params()
		dw, db := l.ParamGrads()
		o.step(w, dw, o.m[2*i], o.v[2*i], lr, n)
		o.step(b, db, o.m[2*i+1], o.v[2*i+1], lr, n)
	}
}

func (o *adam) step(x, dx, m, v *num.Array, lr, n float64) {
	xd, gd, md, vd := x.Data(), dx.Data(), m.Data(), v.Data()
	b1, b2 := float32(o.beta1), float32(o.beta2)
	for i, g := range gd {
		g /= float32(n)
		md[i] = b1*md[i] + (1-b1)*g
		vd[i] = b2*vd[i] + (1-b2)*g*g
		xd[i] -= float32(lr * float64(md[i]) / (math.Sqrt(float64(vd[i])) + o.eps))
	}
}
