// Package session holds the state of one lesion capture: the source photo,
// the user's crop placement and the progress of its diagnosis submission.
//
// A Session is owned by the caller and passed explicitly; nothing here is
// global. It is safe for concurrent use.
package session

import (
	"context"
	"errors"
	"image"
	"sync"

	"github.com/menta2k/derm-dx/pkg/client"
	"github.com/menta2k/derm-dx/pkg/compositor"
	"github.com/menta2k/derm-dx/pkg/diagnosis"
	"github.com/menta2k/derm-dx/pkg/types"
)

// State of the submission state machine
type State int

const (
	Idle State = iota
	Encoding
	Transmitting
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Encoding:
		return "encoding"
	case Transmitting:
		return "transmitting"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	// ErrBusy is returned when a submission is already in flight
	ErrBusy = errors.New("session: submission already in progress")
	// ErrCanceled is returned to a submission abandoned through Cancel or Reset
	ErrCanceled = errors.New("session: submission canceled")
)

// observedClassifier is implemented by classifiers that report submission phases
type observedClassifier interface {
	SubmitObserved(ctx context.Context, img image.Image, observe func(diagnosis.Phase)) (*types.DiagnosisResult, error)
}

// Session tracks one capture from crop to diagnosis
type Session struct {
	classifier client.Classifier
	compositor *compositor.Compositor
	source     image.Image
	canvasSize int

	mu         sync.Mutex
	transform  types.CropTransform
	state      State
	result     *types.DiagnosisResult
	err        error
	generation uint64
	cancel     context.CancelFunc
}

// New creates a session for a source photo with the crop reset to its initial placement
func New(classifier client.Classifier, source image.Image, canvasSize int) *Session {
	b := source.Bounds()
	return &Session{
		classifier: classifier,
		compositor: compositor.New(),
		source:     source,
		canvasSize: canvasSize,
		transform:  compositor.InitialTransform(b.Dx(), b.Dy()),
	}
}

// Source returns the captured photo
func (s *Session) Source() image.Image {
	return s.source
}

// Transform returns the current crop placement
func (s *Session) Transform() types.CropTransform {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transform
}

// SetTransform updates the crop placement, raising the scale to the fill scale if needed
func (s *Session) SetTransform(t types.CropTransform) types.CropTransform {
	b := s.source.Bounds()
	t = compositor.ClampScale(t, b.Dx(), b.Dy())

	s.mu.Lock()
	s.transform = t
	s.mu.Unlock()
	return t
}

// ResetCrop restores the initial centered placement
func (s *Session) ResetCrop() types.CropTransform {
	b := s.source.Bounds()
	return s.SetTransform(compositor.InitialTransform(b.Dx(), b.Dy()))
}

// Crop composes the source with the current placement
func (s *Session) Crop() *image.NRGBA {
	return s.compositor.Compose(s.source, s.canvasSize, s.Transform())
}

// State returns the current submission state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Result returns the last successful diagnosis, if any
func (s *Session) Result() *types.DiagnosisResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Err returns the last submission error, if any
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Submit crops the source and classifies it. Only one submission may be in
// flight; a new one can start from any terminal state.
func (s *Session) Submit(ctx context.Context) (*types.DiagnosisResult, error) {
	s.mu.Lock()
	if s.state == Encoding || s.state == Transmitting {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	ctx, cancel := context.WithCancel(ctx)
	s.generation++
	gen := s.generation
	s.cancel = cancel
	s.state = Encoding
	s.result = nil
	s.err = nil
	transform := s.transform
	s.mu.Unlock()
	defer cancel()

	cropped := s.compositor.Compose(s.source, s.canvasSize, transform)

	var (
		result *types.DiagnosisResult
		err    error
	)
	if oc, ok := s.classifier.(observedClassifier); ok {
		result, err = oc.SubmitObserved(ctx, cropped, func(p diagnosis.Phase) {
			if p == diagnosis.PhaseTransmitting {
				s.advance(gen, Transmitting)
			}
		})
	} else {
		s.advance(gen, Transmitting)
		result, err = s.classifier.Classify(ctx, cropped)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		// Abandoned by Cancel or Reset; the session has moved on
		return nil, ErrCanceled
	}
	s.cancel = nil
	if err != nil {
		s.state = Failed
		s.err = err
		return nil, err
	}
	s.state = Succeeded
	s.result = result
	return result, nil
}

func (s *Session) advance(gen uint64, state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen == s.generation {
		s.state = state
	}
}

// Cancel abandons an in-flight submission; its outcome is discarded and the session returns to Idle
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abandonLocked()
}

// Reset cancels any submission and clears result, error and crop
func (s *Session) Reset() {
	s.mu.Lock()
	s.abandonLocked()
	s.result = nil
	s.err = nil
	s.mu.Unlock()

	s.ResetCrop()
}

func (s *Session) abandonLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.state == Encoding || s.state == Transmitting {
		s.generation++
		s.state = Idle
	}
}
