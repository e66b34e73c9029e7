// Package output provides formatters for deploy summaries in several
// formats (pretty, plain, json, yaml, tsv).
//
// The package uses a registry so the format can be selected at runtime:
//
//	formatter, err := output.Get("pretty")
//	if err != nil {
//	    return err
//	}
//	var buf bytes.Buffer
//	if err := formatter.Format(&buf, result); err != nil {
//	    return err
//	}
//	fmt.Print(buf.String())
package output

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jamesainslie/weave/pkg/weave/arweave"
)

// Item states shown in summaries.
const (
	StatePlanned  = "planned"
	StateCached   = "cached"
	StateUploaded = "uploaded"
	StateFailed   = "failed"
)

// Item is one row of a deploy summary.
type Item struct {
	// Path is the file path relative to the deploy root. Empty for the
	// manifest, bundle and fee records.
	Path string `json:"path" yaml:"path"`

	// ID is the record id.
	ID string `json:"id" yaml:"id"`

	// Type is file, manifest, bundle or fee.
	Type string `json:"type" yaml:"type"`

	// Size is the payload size in bytes.
	Size int64 `json:"size" yaml:"size"`

	// Reward is the network fee in winston. Empty for bundled items.
	Reward string `json:"reward,omitempty" yaml:"reward,omitempty"`

	// State is planned, cached, uploaded or failed.
	State string `json:"state" yaml:"state"`

	// Strategy records how an uploaded item was submitted.
	Strategy string `json:"strategy,omitempty" yaml:"strategy,omitempty"`

	// Error is set for failed items.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Result is the data a formatter renders, either for a deploy plan
// awaiting confirmation or for a finished deploy.
type Result struct {
	Source  string `json:"source" yaml:"source"`
	Gateway string `json:"gateway" yaml:"gateway"`
	Address string `json:"address" yaml:"address"`

	Items []Item `json:"items" yaml:"items"`

	// Reward is the sum of item rewards in winston.
	Reward string `json:"reward" yaml:"reward"`

	// ServiceFee is the platform fee in winston. Empty when none is paid.
	ServiceFee string `json:"service_fee,omitempty" yaml:"service_fee,omitempty"`

	// Balance and BalanceAfter are wallet balances in winston.
	Balance      string `json:"balance,omitempty" yaml:"balance,omitempty"`
	BalanceAfter string `json:"balance_after,omitempty" yaml:"balance_after,omitempty"`

	ManifestID  string `json:"manifest_id,omitempty" yaml:"manifest_id,omitempty"`
	ManifestURL string `json:"manifest_url,omitempty" yaml:"manifest_url,omitempty"`
	BundleID    string `json:"bundle_id,omitempty" yaml:"bundle_id,omitempty"`

	// FreeBundler reports that every file is small enough for the remote
	// bundler's free tier.
	FreeBundler bool `json:"free_bundler,omitempty" yaml:"free_bundler,omitempty"`

	// AlreadyDeployed reports a single-file deploy answered from the cache.
	AlreadyDeployed bool `json:"already_deployed,omitempty" yaml:"already_deployed,omitempty"`

	Duration time.Duration `json:"-" yaml:"-"`
	Warnings []string      `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// TotalSize returns the sum of item sizes, excluding cached files.
func (r *Result) TotalSize() int64 {
	var total int64
	for _, it := range r.Items {
		if it.State != StateCached {
			total += it.Size
		}
	}
	return total
}

// Count returns the number of items in state.
func (r *Result) Count(state string) int {
	n := 0
	for _, it := range r.Items {
		if it.State == state {
			n++
		}
	}
	return n
}

// AR formats a winston amount for display, "-" when empty.
func AR(winston string) string {
	if winston == "" {
		return "-"
	}
	return arweave.WinstonToAR(winston) + " AR"
}

// Formatter is the interface that all output formatters must implement.
type Formatter interface {
	// Format writes the formatted output to the buffer.
	Format(w *bytes.Buffer, r *Result) error
}

// FormatterFactory is a function that creates a new Formatter instance.
type FormatterFactory func() Formatter

// Registry manages formatter registration and lookup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]FormatterFactory
}

// NewRegistry creates a new formatter registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]FormatterFactory),
	}
}

// Register adds a formatter factory, replacing any with the same name.
func (r *Registry) Register(name string, factory FormatterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a new formatter instance by name.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown formatter: %s", name)
	}
	return factory(), nil
}

// Available returns a sorted list of all registered formatter names.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global formatter registry.
var DefaultRegistry = NewRegistry()

// Register adds a formatter factory to the default registry.
func Register(name string, factory FormatterFactory) {
	DefaultRegistry.Register(name, factory)
}

// Get returns a new formatter instance from the default registry.
func Get(name string) (Formatter, error) {
	return DefaultRegistry.Get(name)
}

// Available returns the formatter names in the default registry.
func Available() []string {
	return DefaultRegistry.Available()
}
