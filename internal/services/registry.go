// Package services wires the remedyd service graph into a single
// registry handed to transports, so handlers depend on one façade
// instead of a bag of constructors.
package services

import (
	"github.com/fyrsmithlabs/remedyd/internal/engine"
	"github.com/fyrsmithlabs/remedyd/internal/learning"
	"github.com/fyrsmithlabs/remedyd/internal/pattern"
	"github.com/fyrsmithlabs/remedyd/internal/risk"
)

// Registry provides access to all remedyd services.
type Registry interface {
	Engine() engine.Service
	Learning() learning.Service
	Patterns() *pattern.Registry
	Policy() *risk.PolicyProvider
	Observations() *pattern.MemorySource
}

// Options configures the registry with service instances.
type Options struct {
	Engine       engine.Service
	Learning     learning.Service
	Patterns     *pattern.Registry
	Policy       *risk.PolicyProvider
	Observations *pattern.MemorySource
}

// registry is the concrete implementation of Registry.
type registry struct {
	engine       engine.Service
	learning     learning.Service
	patterns     *pattern.Registry
	policy       *risk.PolicyProvider
	observations *pattern.MemorySource
}

// NewRegistry creates a new service registry.
func NewRegistry(opts Options) Registry {
	return &registry{
		engine:       opts.Engine,
		learning:     opts.Learning,
		patterns:     opts.Patterns,
		policy:       opts.Policy,
		observations: opts.Observations,
	}
}

func (r *registry) Engine() engine.Service { return r.engine }

func (r *registry) Learning() learning.Service { return r.learning }

func (r *registry) Patterns() *pattern.Registry { return r.patterns }

func (r *registry) Policy() *risk.PolicyProvider { return r.policy }

func (r *registry) Observations() *pattern.MemorySource { return r.observations }
