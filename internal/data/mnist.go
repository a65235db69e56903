package data

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
)

// MNIST file names, looked up with and without a .gz suffix.
const (
	TrainImagesFile = "train-images-idx3-ubyte"
	TrainLabelsFile = "train-labels-idx1-ubyte"
	TestImagesFile  = "t10k-images-idx3-ubyte"
	TestLabelsFile  = "t10k-labels-idx1-ubyte"
)

// MNISTOptions configures LoadMNIST.
type MNISTOptions struct {
	Shuffle    bool  // shuffle training order once at load time
	Seed       int64 // shuffle seed
	MaxSamples int   // keep at most this many examples per split (0 = all)
}

// MNIST serves batches from the IDX files of the MNIST dataset.
//
// Pixels are scaled from 0..255 to [0,1] and labels are one-hot encoded.
// Batches walk the (optionally shuffled) example order and wrap around, so
// NextTrainBatch never runs out.
type MNIST struct {
	train *split
	test  *split // nil when the t10k files are absent
}

type split struct {
	mu     sync.Mutex
	images []byte // count * ImagePixels
	labels []byte // count
	order  []int
	next   int
}

// LoadMNIST reads the training split from dir and, when present, the test split.
func LoadMNIST(dir string, opts MNISTOptions) (*MNIST, error) {
	rng := rand.New(rand.NewSource(opts.Seed)) //nolint:gosec // shuffling is not security-critical

	train, err := loadSplit(dir, TrainImagesFile, TrainLabelsFile, opts, rng)
	if err != nil {
		return nil, fmt.Errorf("load mnist train split: %w", err)
	}
	m := &MNIST{train: train}

	testOpts := opts
	testOpts.Shuffle = false
	test, err := loadSplit(dir, TestImagesFile, TestLabelsFile, testOpts, rng)
	switch {
	case err == nil:
		m.test = test
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("load mnist test split: %w", err)
	}
	return m, nil
}

func findIDX(dir, name string) (string, error) {
	for _, candidate := range []string{name, name + ".gz"} {
		path := filepath.Join(dir, candidate)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%s(.gz) in %s: %w", name, dir, fs.ErrNotExist)
}

func loadSplit(dir, imagesName, labelsName string, opts MNISTOptions, rng *rand.Rand) (*split, error) {
	imagesPath, err := findIDX(dir, imagesName)
	if err != nil {
		return nil, err
	}
	labelsPath, err := findIDX(dir, labelsName)
	if err != nil {
		return nil, err
	}

	images, err := ReadIDXFile(imagesPath)
	if err != nil {
		return nil, err
	}
	labels, err := ReadIDXFile(labelsPath)
	if err != nil {
		return nil, err
	}
	return newSplit(images, labels, opts, rng)
}

func newSplit(images, labels *IDX, opts MNISTOptions, rng *rand.Rand) (*split, error) {
	if len(images.Dims) != 3 || images.Dims[1] != ImageSize || images.Dims[2] != ImageSize {
		return nil, fmt.Errorf("images must be N x %d x %d, got %v", ImageSize, ImageSize, images.Dims)
	}
	if len(labels.Dims) != 1 || labels.Dims[0] != images.Dims[0] {
		return nil, fmt.Errorf("labels %v do not match %d images", labels.Dims, images.Dims[0])
	}
	for i, l := range labels.Data {
		if int(l) >= NumClasses {
			return nil, fmt.Errorf("label %d of example %d out of range", l, i)
		}
	}

	count := images.Dims[0]
	order := make([]int, count)
	for i := range order {
		order[i] = i
	}
	if opts.Shuffle {
		rng.Shuffle(count, func(i, j int) { order[i], order[j] = order[j], order[i] })
	}
	if opts.MaxSamples > 0 && opts.MaxSamples < count {
		order = order[:opts.MaxSamples]
	}
	return &split{images: images.Data, labels: labels.Data, order: order}, nil
}

// Len returns the number of training examples served.
func (m *MNIST) Len() int {
	return len(m.train.order)
}

// NextTrainBatch implements Source.
func (m *MNIST) NextTrainBatch(ctx context.Context, n int) (Batch, error) {
	return m.train.nextBatch(ctx, n)
}

// NextTestBatch implements TestSource. Without t10k files it serves
// training examples.
func (m *MNIST) NextTestBatch(ctx context.Context, n int) (Batch, error) {
	if m.test == nil {
		return m.train.nextBatch(ctx, n)
	}
	return m.test.nextBatch(ctx, n)
}

func (s *split) nextBatch(ctx context.Context, n int) (Batch, error) {
	if err := ctx.Err(); err != nil {
		return Batch{}, fmt.Errorf("%w: %w", ErrBatchFetch, err)
	}
	if n <= 0 {
		return Batch{}, fmt.Errorf("%w: invalid batch size %d", ErrBatchFetch, n)
	}
	batch, err := newBatch(n)
	if err != nil {
		return Batch{}, fmt.Errorf("%w: %w", ErrBatchFetch, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	images := batch.Images.AsFloat32()
	labels := batch.Labels.AsFloat32()
	for i := 0; i < n; i++ {
		idx := s.order[s.next]
		s.next = (s.next + 1) % len(s.order)

		src := s.images[idx*ImagePixels : (idx+1)*ImagePixels]
		dst := images[i*ImagePixels : (i+1)*ImagePixels]
		for p, v := range src {
			dst[p] = float32(v) / 255
		}
		labels[i*NumClasses+int(s.labels[idx])] = 1
	}
	return batch, nil
}
