package cluster

import (
	"fmt"
	"sync"

	"github.com/dominion-zone/dominion-lancer/internal/chain"
	"github.com/dominion-zone/dominion-lancer/internal/scenario/suitypes"
)

// Builder configures a cluster before genesis. Each builder produces at
// most one cluster.
type Builder struct {
	mu      sync.Mutex
	objects []*suitypes.Object
	built   bool
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// AddObject seeds one object into genesis. Fails after Build.
func (b *Builder) AddObject(obj *suitypes.Object) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.built {
		return fmt.Errorf("already built")
	}
	b.objects = append(b.objects, obj.Clone())
	return nil
}

// Build starts the cluster with the seeded objects.
func (b *Builder) Build() (*Cluster, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.built {
		return nil, fmt.Errorf("already built")
	}
	b.built = true

	c := &Cluster{
		objects:  make(map[chain.ObjectID]*suitypes.Object, len(b.objects)),
		appliers: builtinAppliers(),
	}
	if err := c.start(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, obj := range b.objects {
		seeded := obj.Clone()
		if seeded.Version == 0 {
			seeded.Version = c.nextVersion()
		}
		c.objects[seeded.ID] = seeded
	}
	return c, nil
}
