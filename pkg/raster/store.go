package raster

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// Store errors.
var (
	ErrCheckedOut    = errors.New("layer is already checked out")
	ErrNotCheckedOut = errors.New("layer is not checked out")
	ErrLayerIndex    = errors.New("layer index out of range")
)

// Store owns the layers of a print and lends them out as images. A layer is
// expanded on Checkout and compressed back on Commit; only one borrower may
// hold a given layer, while different layers may be borrowed concurrently.
type Store struct {
	layers []Layer
	out    []atomic.Bool
}

// NewStore wraps the given layers.
func NewStore(layers []Layer) *Store {
	return &Store{layers: layers, out: make([]atomic.Bool, len(layers))}
}

// Len returns the number of layers.
func (s *Store) Len() int { return len(s.layers) }

// Layer returns layer i. It must not be called while the layer is checked out.
func (s *Store) Layer(i int) Layer { return s.layers[i] }

// Layers returns all layers.
func (s *Store) Layers() []Layer { return s.layers }

// Checkout expands layer i into an image owned by the caller until Commit.
func (s *Store) Checkout(i int) (*Image, error) {
	if i < 0 || i >= len(s.layers) {
		return nil, fmt.Errorf("%w: %d", ErrLayerIndex, i)
	}
	if !s.out[i].CompareAndSwap(false, true) {
		return nil, fmt.Errorf("%w: %d", ErrCheckedOut, i)
	}
	return s.layers[i].Image(), nil
}

// Commit stores img as the new content of layer i and releases it.
func (s *Store) Commit(i int, img *Image) error {
	if i < 0 || i >= len(s.layers) {
		return fmt.Errorf("%w: %d", ErrLayerIndex, i)
	}
	if !s.out[i].Load() {
		return fmt.Errorf("%w: %d", ErrNotCheckedOut, i)
	}
	s.layers[i] = FromImage(img)
	s.out[i].Store(false)
	return nil
}

// With checks out layer i, calls fn and commits the image on every exit
// path, including an error or panic from fn.
func (s *Store) With(i int, fn func(img *Image) error) (err error) {
	img, err := s.Checkout(i)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Commit(i, img); err == nil {
			err = cerr
		}
	}()
	return fn(img)
}
