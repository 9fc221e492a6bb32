package persephone

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/tartarus-sandbox/persephone/pkg/domain"
)

var (
	// ErrUnknownBackend is returned by NewBackend for an unregistered name.
	ErrUnknownBackend = errors.New("unknown forecast backend")

	// ErrInvalidParams is returned by Fit when the configuration does not
	// suit the backend.
	ErrInvalidParams = errors.New("invalid backend parameters")

	// ErrInvalidModel is returned by Predict when handed a model it did not fit.
	ErrInvalidModel = errors.New("model was not produced by this backend")
)

// Model is the fitted state returned by Backend.Fit. Only the backend that
// produced it can interpret it.
type Model any

// Horizon describes which points Predict must produce.
type Horizon struct {
	// Offset is the 0-based position of the first requested point relative
	// to the first fitted observation. 0 restates the training window;
	// the training length starts the first out-of-sample point.
	Offset int
	// Weeks is the calendar of the requested points, one per prediction.
	Weeks []domain.Week
}

// Len is the number of predictions requested.
func (h Horizon) Len() int {
	return len(h.Weeks)
}

// Backend fits a forecasting model and predicts from it. Implementations hold
// no state between calls; every fitted detail lives in the returned Model.
type Backend interface {
	// Name identifies the backend in results, logs and errors.
	Name() string

	// Fit trains a model on the training partition.
	Fit(ctx context.Context, train *Series, params Params) (Model, error)

	// Predict returns exactly h.Len() values. Points a backend cannot
	// restate in-sample are NaN.
	Predict(ctx context.Context, model Model, h Horizon) ([]float64, error)
}

// BackendFactory builds a Backend.
type BackendFactory func() Backend

var (
	registryMu sync.RWMutex
	registry   = make(map[string]BackendFactory)
)

// RegisterBackend makes a backend available through NewBackend.
func RegisterBackend(name string, factory BackendFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// NewBackend returns the registered backend with the given name.
func NewBackend(name string) (Backend, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownBackend, name, Backends())
	}
	return factory(), nil
}

// Backends lists registered backend names in sorted order.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	RegisterBackend(ProphetName, func() Backend { return NewProphetBackend() })
	RegisterBackend(ARIMAName, func() Backend { return NewARIMABackend() })
	RegisterBackend(SmoothingName, func() Backend { return NewSmoothingBackend() })
	RegisterBackend(MeanName, func() Backend { return NewMeanBackend() })
	RegisterBackend(NaiveName, func() Backend { return NewNaiveBackend() })
}

func missing(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func checkContext(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}
