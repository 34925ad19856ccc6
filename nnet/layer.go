package nnet

import (
	"encoding/json"
	"fmt"
	"math/rand"

	"github.com/pkg/errors"

	"github.com/jnb666/mnistrun/num"
)

// Layer interface type represents one layer of the neural net.
// Shapes passed to Init and OutShape exclude the batch dimension, arrays passed to Fprop and Bprop have the
// batch as the first dimension.
type Layer interface {
	Init(inShape []int) Layer
	OutShape(inShape []int) []int
	Fprop(in *num.Array) *num.Array
	Bprop(grad *num.Array) *num.Array
	ToString() string
}

// ParamLayer is a layer with weight and bias parameters
type ParamLayer interface {
	Layer
	InitParams(scale, bias float32, normal bool, rng *rand.Rand)
	Params() (W, B *num.Array)
	ParamGrads() (dW, dB *num.Array)
	SetParams(W, B *num.Array)
}

// OutputLayer is the final layer in the stack
type OutputLayer interface {
	Layer
	Loss(yOneHot, yPred *num.Array) *num.Array
}

// layers which require a particular input shape
type shapeChecker interface {
	checkShape(inShape []int) error
}

// Layer configuration details
type LayerConfig struct {
	Type string
	Data json.RawMessage `json:",omitempty"`
}

type ConfigLayer interface {
	Marshal() LayerConfig
}

// Unmarshal JSON data and construct new layer
func (l LayerConfig) Unmarshal() (Layer, error) {
	switch l.Type {
	case "conv":
		cfg := new(Conv)
		return cfg.unmarshal(l.Data)
	case "maxPool":
		cfg := new(MaxPool)
		return cfg.unmarshal(l.Data)
	case "linear":
		cfg := new(Linear)
		return cfg.unmarshal(l.Data)
	case "activation":
		cfg := new(Activation)
		return cfg.unmarshal(l.Data)
	case "logRegression":
		return &logRegression{}, nil
	case "flatten":
		return &flatten{}, nil
	default:
		return nil, errors.Errorf("invalid layer type %q", l.Type)
	}
}

func (l LayerConfig) String() string {
	layer, err := l.Unmarshal()
	if err != nil {
		return fmt.Sprintf("%s: %s", l.Type, err)
	}
	return layer.ToString()
}

// Convolutional layer, implements ParamLayer interface.
type Conv struct {
	Nfeats, Size, Stride, Pad int
}

func (c Conv) Marshal() LayerConfig {
	if c.Stride == 0 {
		c.Stride = 1
	}
	return LayerConfig{Type: "conv", Data: marshal(c)}
}

func (c Conv) ToString() string {
	return fmt.Sprintf("conv %+v", c)
}

func (c *Conv) unmarshal(data json.RawMessage) (Layer, error) {
	if err := unmarshal(data, c); err != nil {
		return nil, errors.Wrap(err, "conv")
	}
	return &conv{Conv: *c}, nil
}

// Max pooling layer, should follow conv layer.
type MaxPool struct {
	Size, Stride int
}

func (c MaxPool) Marshal() LayerConfig {
	if c.Stride == 0 {
		c.Stride = c.Size
	}
	return LayerConfig{Type: "maxPool", Data: marshal(c)}
}

func (c MaxPool) ToString() string {
	return fmt.Sprintf("maxPool %+v", c)
}

func (c *MaxPool) unmarshal(data json.RawMessage) (Layer, error) {
	if err := unmarshal(data, c); err != nil {
		return nil, errors.Wrap(err, "maxPool")
	}
	return &maxPool{MaxPool: *c}, nil
}

// Linear fully connected layer, implements ParamLayer interface.
type Linear struct {
	Nout int
}

func (c Linear) Marshal() LayerConfig {
	return LayerConfig{Type: "linear", Data: marshal(c)}
}

func (c Linear) ToString() string {
	return fmt.Sprintf("linear %+v", c)
}

func (c *Linear) unmarshal(data json.RawMessage) (Layer, error) {
	if err := unmarshal(data, c); err != nil {
		return nil, errors.Wrap(err, "linear")
	}
	return &linear{Linear: *c}, nil
}

// Sigmoid, tanh or relu activation layer, implements OutputLayer interface.
type Activation struct {
	Atype string
}

func (c Activation) Marshal() LayerConfig {
	return LayerConfig{Type: "activation", Data: marshal(c)}
}

func (c Activation) ToString() string {
	return fmt.Sprintf("activation %+v", c)
}

func (c *Activation) unmarshal(data json.RawMessage) (Layer, error) {
	if err := unmarshal(data, c); err != nil {
		return nil, errors.Wrap(err, "activation")
	}
	layer := &activation{Activation: *c}
	switch c.Atype {
	case "sigmoid":
		layer.activ = num.Sigmoid
		layer.deriv = num.SigmoidD
	case "tanh":
		layer.activ = num.Tanh
		layer.deriv = num.TanhD
	case "relu":
		layer.activ = num.Relu
		layer.deriv = num.ReluD
	default:
		return nil, errors.Errorf("activation type %q invalid", c.Atype)
	}
	return layer, nil
}

// LogRegression output layer with soft max activation.
type LogRegression struct{}

func (c LogRegression) Marshal() LayerConfig {
	return LayerConfig{Type: "logRegression"}
}

// Flatten layer reshapes from 4 to 2 dimensions.
type Flatten struct{}

func (c Flatten) Marshal() LayerConfig {
	return LayerConfig{Type: "flatten"}
}

// linear layer implementation
type linear struct {
	Linear
	layerBase
	paramBase
	nIn int
}

func (l *linear) OutShape(inShape []int) []int {
	return []int{l.Nout}
}

func (l *linear) checkShape(inShape []int) error {
	if len(inShape) != 1 {
		return errors.Errorf("linear: expect 1 dimensional input per sample, got %v", inShape)
	}
	if l.Nout <= 0 {
		return errors.Errorf("linear: invalid output size %d", l.Nout)
	}
	return nil
}

func (l *linear) Init(inShape []int) Layer {
	if len(inShape) != 1 {
		panic("Linear: expect 1 dimensional input per sample")
	}
	l.nIn = inShape[0]
	l.paramBase = newParams([]int{l.nIn, l.Nout}, []int{l.Nout})
	return l
}

func (l *linear) Fprop(in *num.Array) *num.Array {
	l.src = in
	l.dst = num.Resize(l.dst, in.Dims()[0], l.Nout)
	num.Copy(l.dst, l.b)
	num.Gemm(1, 1, l.src, l.w, l.dst, num.NoTrans, num.NoTrans)
	return l.dst
}

func (l *linear) Bprop(grad *num.Array) *num.Array {
	l.dsrc = num.Resize(l.dsrc, l.src.Dims()...)
	num.Fill(l.db, 0)
	num.SumRows(grad, l.db)
	num.Gemm(1, 0, l.src, grad, l.dw, num.Trans, num.NoTrans)
	num.Gemm(1, 0, grad, l.w, l.dsrc, num.NoTrans, num.Trans)
	return l.dsrc
}

// convolutional layer implementation using im2col and matrix multiply for each sample
type conv struct {
	Conv
	layerBase
	paramBase
	shape num.ConvShape
	cols  *num.Array
	dcols *num.Array
}

func (l *conv) OutShape(inShape []int) []int {
	s := l.convShape(inShape)
	h, w := s.Out()
	return []int{l.Nfeats, h, w}
}

func (l *conv) convShape(inShape []int) num.ConvShape {
	if len(inShape) != 3 {
		panic("Conv: expect 3 dimensional input per sample")
	}
	return num.ConvShape{C: inShape[0], H: inShape[1], W: inShape[2], Size: l.Size, Stride: l.Stride, Pad: l.Pad}
}

func (l *conv) checkShape(inShape []int) error {
	if len(inShape) != 3 {
		return errors.Errorf("conv: expect 3 dimensional input per sample, got %v", inShape)
	}
	if l.Nfeats <= 0 {
		return errors.Errorf("conv: invalid number of features %d", l.Nfeats)
	}
	return errors.Wrap(l.convShape(inShape).Check(), "conv")
}

func (l *conv) Init(inShape []int) Layer {
	l.shape = l.convShape(inShape)
	nIn := l.shape.C * l.Size * l.Size
	l.paramBase = newParams([]int{l.Nfeats, nIn}, []int{l.Nfeats})
	return l
}

func (l *conv) Fprop(in *num.Array) *num.Array {
	l.src = in
	batch := in.Dims()[0]
	oh, ow := l.shape.Out()
	k := l.shape.C * l.Size * l.Size
	l.cols = num.Resize(l.cols, batch, k, oh*ow)
	l.dst = num.Resize(l.dst, batch, l.Nfeats, oh, ow)
	bias := l.b.Data()
	for n := 0; n < batch; n++ {
		cols := l.cols.Row(n)
		num.Im2col(l.shape, in.Row(n).Data(), cols.Data())
		out := l.dst.Row(n).Reshape(l.Nfeats, oh*ow)
		data := out.Data()
		for f := 0; f < l.Nfeats; f++ {
			row := data[f*oh*ow : (f+1)*oh*ow]
			for i := range row {
				row[i] = bias[f]
			}
		}
		num.Gemm(1, 1, l.w, cols, out, num.NoTrans, num.NoTrans)
	}
	return l.dst
}

func (l *conv) Bprop(grad *num.Array) *num.Array {
	batch := grad.Dims()[0]
	oh, ow := l.shape.Out()
	k := l.shape.C * l.Size * l.Size
	l.dsrc = num.Resize(l.dsrc, l.src.Dims()...)
	l.dcols = num.Resize(l.dcols, k, oh*ow)
	num.Fill(l.dw, 0)
	num.Fill(l.db, 0)
	db := l.db.Data()
	for n := 0; n < batch; n++ {
		g := grad.Row(n).Reshape(l.Nfeats, oh*ow)
		gdata := g.Data()
		for f := range db {
			for _, v := range gdata[f*oh*ow : (f+1)*oh*ow] {
				db[f] += v
			}
		}
		num.Gemm(1, 1, g, l.cols.Row(n), l.dw, num.NoTrans, num.Trans)
		num.Gemm(1, 0, l.w, g, l.dcols, num.Trans, num.NoTrans)
		num.Col2im(l.shape, l.dcols.Data(), l.dsrc.Row(n).Data())
	}
	return l.dsrc
}

// max pooling layer implementation
type maxPool struct {
	MaxPool
	layerBase
	shape num.ConvShape
	index []int32
}

func (l *maxPool) OutShape(inShape []int) []int {
	s := l.poolShape(inShape)
	h, w := s.Out()
	return []int{inShape[0], h, w}
}

func (l *maxPool) poolShape(inShape []int) num.ConvShape {
	if len(inShape) != 3 {
		panic("MaxPool: expect 3 dimensional input per sample")
	}
	stride := l.Stride
	if stride == 0 {
		stride = l.Size
	}
	return num.ConvShape{C: inShape[0], H: inShape[1], W: inShape[2], Size: l.Size, Stride: stride}
}

func (l *maxPool) checkShape(inShape []int) error {
	if len(inShape) != 3 {
		return errors.Errorf("maxPool: expect 3 dimensional input per sample, got %v", inShape)
	}
	return errors.Wrap(l.poolShape(inShape).Check(), "maxPool")
}

func (l *maxPool) Init(inShape []int) Layer {
	l.shape = l.poolShape(inShape)
	return l
}

func (l *maxPool) Fprop(in *num.Array) *num.Array {
	l.src = in
	batch := in.Dims()[0]
	oh, ow := l.shape.Out()
	l.dst = num.Resize(l.dst, batch, l.shape.C, oh, ow)
	n := l.shape.C * oh * ow
	if cap(l.index) < batch*n {
		l.index = make([]int32, batch*n)
	}
	l.index = l.index[:batch*n]
	for i := 0; i < batch; i++ {
		num.MaxPool(l.shape, in.Row(i).Data(), l.dst.Row(i).Data(), l.index[i*n:(i+1)*n])
	}
	return l.dst
}

func (l *maxPool) Bprop(grad *num.Array) *num.Array {
	batch := grad.Dims()[0]
	l.dsrc = num.Resize(l.dsrc, l.src.Dims()...)
	n := len(l.index) / batch
	for i := 0; i < batch; i++ {
		num.MaxPoolD(grad.Row(i).Data(), l.index[i*n:(i+1)*n], l.dsrc.Row(i).Data())
	}
	return l.dsrc
}

// activation layers
type activation struct {
	Activation
	layerBase
	activ func(x, y *num.Array)
	deriv func(x, grad, y *num.Array)
	loss  *num.Array
}

func (l *activation) Init(inShape []int) Layer {
	return l
}

func (l *activation) Fprop(in *num.Array) *num.Array {
	l.src = in
	l.dst = num.Resize(l.dst, in.Dims()...)
	l.activ(l.src, l.dst)
	return l.dst
}

func (l *activation) Bprop(grad *num.Array) *num.Array {
	l.dsrc = num.Resize(l.dsrc, grad.Dims()...)
	l.deriv(l.src, grad, l.dsrc)
	return l.dsrc
}

func (l *activation) Loss(yOneHot, yPred *num.Array) *num.Array {
	l.loss = num.Resize(l.loss, yPred.Dims()...)
	num.QuadraticLoss(yOneHot, yPred, l.loss)
	return l.loss
}

// log regression output layer, the gradient passed to Bprop is the difference between the prediction and the
// one hot labels which is the gradient of the cross entropy loss with respect to the softmax input.
type logRegression struct {
	layerBase
	loss *num.Array
}

func (l *logRegression) ToString() string { return "logRegression" }

func (l *logRegression) checkShape(inShape []int) error {
	if len(inShape) != 1 {
		return errors.Errorf("logRegression: expect 1 dimensional input per sample, got %v", inShape)
	}
	return nil
}

func (l *logRegression) Init(inShape []int) Layer {
	return l
}

func (l *logRegression) Fprop(in *num.Array) *num.Array {
	l.src = in
	l.dst = num.Resize(l.dst, in.Dims()...)
	num.Softmax(l.src, l.dst)
	return l.dst
}

func (l *logRegression) Bprop(grad *num.Array) *num.Array {
	l.dsrc = num.Resize(l.dsrc, grad.Dims()...)
	num.Copy(l.dsrc, grad)
	return l.dsrc
}

func (l *logRegression) Loss(yOneHot, yPred *num.Array) *num.Array {
	l.loss = num.Resize(l.loss, yPred.Dims()...)
	num.SoftmaxLoss(yOneHot, yPred, l.loss)
	return l.loss
}

type flatten struct {
	layerBase
}

func (l *flatten) ToString() string { return "flatten" }

func (l *flatten) OutShape(inShape []int) []int {
	return []int{num.Prod(inShape)}
}

func (l *flatten) Init(inShape []int) Layer {
	return l
}

func (l *flatten) Fprop(in *num.Array) *num.Array {
	l.src = in
	l.dst = in.Reshape(in.Dims()[0], -1)
	return l.dst
}

func (l *flatten) Bprop(grad *num.Array) *num.Array {
	l.dsrc = grad.Reshape(l.src.Dims()...)
	return l.dsrc
}

// base layer type, output and gradient buffers are resized to match the batch size on each call.
type layerBase struct {
	src  *num.Array
	dst  *num.Array
	dsrc *num.Array
}

func (l layerBase) OutShape(inShape []int) []int { return inShape }

// weight and bias parameters
type paramBase struct {
	w, b   *num.Array
	dw, db *num.Array
}

func newParams(wShape, bShape []int) paramBase {
	return paramBase{
		w:  num.NewArray(wShape...),
		b:  num.NewArray(bShape...),
		dw: num.NewArray(wShape...),
		db: num.NewArray(bShape...),
	}
}

func (p paramBase) Params() (W, B *num.Array) {
	return p.w, p.b
}

func (p paramBase) ParamGrads() (dW, dB *num.Array) {
	return p.dw, p.db
}

func (p paramBase) InitParams(scale, bias float32, normal bool, rng *rand.Rand) {
	weights := p.w.Data()
	for i := range weights {
		if normal {
			weights[i] = float32(rng.NormFloat64()) * scale
		} else {
			weights[i] = (2*rng.Float32() - 1) * scale
		}
	}
	num.Fill(p.b, bias)
}

func (p paramBase) SetParams(W, B *num.Array) {
	num.Copy(p.w, W)
	num.Copy(p.b, B)
}

func marshal(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

func unmarshal(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
