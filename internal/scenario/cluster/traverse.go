package cluster

import (
	"fmt"

	"github.com/dominion-zone/dominion-lancer/internal/chain"
	"github.com/dominion-zone/dominion-lancer/internal/scenario/suitypes"
)

// Recursive traversal walks the dynamic-field and owned-child graphs
// transitively. The walk runs over each object's annotated layout, locates
// every object::UID occurrence, and recurses over the objects hanging off
// those UIDs. Visited ids are memoized, so cyclic graphs terminate.

// GetObjectRecursive returns the object and every object transitively
// reachable from its UIDs.
func (c *Cluster) GetObjectRecursive(id chain.ObjectID) ([]*suitypes.Object, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.running {
		return nil, fmt.Errorf("cluster is not running")
	}
	root, ok := c.objects[id]
	if !ok {
		return nil, fmt.Errorf("object %s not found", id)
	}
	visited := make(map[chain.ObjectID]struct{})
	var out []*suitypes.Object
	c.walk(root, visited, &out)
	return out, nil
}

// GetOwnedObjectsRecursive returns every object address-owned by addr plus
// everything transitively reachable from them.
func (c *Cluster) GetOwnedObjectsRecursive(addr chain.Address) ([]*suitypes.Object, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.running {
		return nil, fmt.Errorf("cluster is not running")
	}
	visited := make(map[chain.ObjectID]struct{})
	var out []*suitypes.Object
	for _, obj := range c.objects {
		if obj.Owner.Kind == suitypes.OwnerAddress && obj.Owner.Address == addr {
			c.walk(obj, visited, &out)
		}
	}
	return out, nil
}

// walk visits obj and recurses over its UID children. Caller holds mu.
func (c *Cluster) walk(obj *suitypes.Object, visited map[chain.ObjectID]struct{}, out *[]*suitypes.Object) {
	if _, seen := visited[obj.ID]; seen {
		return
	}
	visited[obj.ID] = struct{}{}
	*out = append(*out, obj.Clone())

	if obj.Data.Kind != suitypes.DataStruct {
		return
	}
	var uids []chain.ObjectID
	collectUIDs(obj.Data.Fields, &uids)

	for _, uid := range uids {
		// Dynamic fields and owned children both hang off the UID as
		// object-owned entries in the store.
		for _, candidate := range c.objects {
			if candidate.Owner.Kind == suitypes.OwnerObject && candidate.Owner.Address == uid {
				c.walk(candidate, visited, out)
			}
		}
	}
}

// collectUIDs locates every object::UID occurrence in an annotated value.
func collectUIDs(v suitypes.MoveValue, out *[]chain.ObjectID) {
	switch v.Kind {
	case suitypes.ValueUID:
		*out = append(*out, v.Address)
	case suitypes.ValueVector:
		for _, e := range v.Vector {
			collectUIDs(e, out)
		}
	case suitypes.ValueStruct:
		for _, f := range v.Struct {
			collectUIDs(f, out)
		}
	}
}
