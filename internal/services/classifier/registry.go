// Package classifier holds the probability models used by the confidence gate.
package classifier

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	domsvc "MetaGate/internal/domain/service"
	"MetaGate/pkg/logger"
)

const (
	NameLogistic   = "logistic"
	NameNaiveBayes = "naive_bayes"
)

var ErrUnknownModel = errors.New("classifier: unknown model")

// Options configure the built-in models.
type Options struct {
	LearningRate float64
	Epochs       int
	L2           float64
}

// Registry maps model names to factories. Each fold gets a fresh model.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]domsvc.ClassifierFactory
	log       *logger.Logger
}

// NewRegistry registers the built-in models.
func NewRegistry(opts Options, log *logger.Logger) *Registry {
	if log == nil {
		log = logger.Nop()
	}
	r := &Registry{factories: make(map[string]domsvc.ClassifierFactory), log: log}
	r.Register(NameLogistic, func() domsvc.Classifier {
		return NewLogistic(opts.LearningRate, opts.Epochs, opts.L2)
	})
	r.Register(NameNaiveBayes, func() domsvc.Classifier { return NewNaiveBayes() })
	return r
}

func (r *Registry) Register(name string, f domsvc.ClassifierFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Names lists registered models, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for n := range r.factories {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Resolve returns the factory for name. An unavailable model is replaced by
// fallback with a warning; the returned name is the model actually used.
func (r *Registry) Resolve(name, fallback string) (domsvc.ClassifierFactory, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if f, ok := r.factories[name]; ok {
		return f, name, nil
	}
	f, ok := r.factories[fallback]
	if !ok {
		return nil, "", fmt.Errorf("%w: %q (fallback %q also unavailable)", ErrUnknownModel, name, fallback)
	}
	r.log.Warn("model unavailable, using fallback",
		logger.String("model", name),
		logger.String("fallback", fallback),
	)
	return f, fallback, nil
}
