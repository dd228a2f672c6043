package embedding

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// DNNConfig describes an image classification network whose output logits
// are used as the embedding.
type DNNConfig struct {
	// ModelPath is the network weights file (ONNX, Caffe, TensorFlow...).
	ModelPath string
	// ConfigPath is the optional network description file.
	ConfigPath string
	// InputSize is the square input side length the network expects.
	InputSize int
	// Scale multiplies pixel values before they enter the network.
	Scale float64
	// Mean is subtracted from each channel before scaling.
	Mean gocv.Scalar
	// SwapRB converts OpenCV's BGR frames to RGB.
	SwapRB bool
}

// DefaultDNNConfig returns settings suited to ImageNet models like
// SqueezeNet, whose 1000 class logits match Width.
func DefaultDNNConfig(modelPath string) DNNConfig {
	return DNNConfig{
		ModelPath: modelPath,
		InputSize: 227,
		Scale:     1.0 / 255.0,
		Mean:      gocv.NewScalar(0, 0, 0, 0),
		SwapRB:    true,
	}
}

// DNN embeds frames with a network loaded through OpenCV's dnn module.
type DNN struct {
	config DNNConfig
	net    gocv.Net
	mu     sync.Mutex
}

// NewDNN loads the network in config. The output width is checked on the
// first Embed call, since most formats do not declare it up front.
func NewDNN(config DNNConfig) (*DNN, error) {
	if _, err := os.Stat(config.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	if config.InputSize <= 0 {
		config.InputSize = 227
	}
	if config.Scale == 0 {
		config.Scale = 1.0
	}

	net := gocv.ReadNet(config.ModelPath, config.ConfigPath)
	if net.Empty() {
		net.Close()
		return nil, fmt.Errorf("%w: %s", ErrModelLoad, config.ModelPath)
	}

	return &DNN{config: config, net: net}, nil
}

// Embed runs frame through the network and returns its output vector.
func (d *DNN) Embed(frame *gocv.Mat) ([]float64, error) {
	if frame == nil || frame.Empty() {
		return nil, ErrEmptyFrame
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	size := image.Point{X: d.config.InputSize, Y: d.config.InputSize}
	blob := gocv.BlobFromImage(*frame, d.config.Scale, size, d.config.Mean, d.config.SwapRB, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()

	if out.Total() != Width {
		return nil, fmt.Errorf("%w: network produced %d values, want %d", ErrOutputWidth, out.Total(), Width)
	}

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read network output: %w", err)
	}

	vec := make([]float64, len(data))
	for i, v := range data {
		vec[i] = float64(v)
	}
	return vec, nil
}

// Width returns the embedding width.
func (d *DNN) Width() int {
	return Width
}

// Close releases the network.
func (d *DNN) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
