// Package compiler loads Move packages for publication from a scenario's
// input tree. The Move toolchain is an external collaborator: scenarios
// ship prebuilt module bytecode next to a manifest naming the published
// dependencies, and Compile picks both up.
package compiler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/dominion-zone/dominion-lancer/internal/chain"
)

// Package is one compiled Move package.
type Package struct {
	modules [][]byte
	depIDs  []chain.ObjectID
}

// manifest sits next to the bytecode as package.json.
type manifest struct {
	Dependencies []string `json:"dependencies"`
}

// Compile reads a package directory: every *.mv file becomes a module (in
// name order) and package.json lists published dependency ids.
func Compile(path string) (*Package, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read package %s: %w", path, err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".mv" {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("package %s contains no modules", path)
	}
	sort.Strings(names)

	modules := make([][]byte, len(names))
	for i, name := range names {
		data, err := os.ReadFile(filepath.Join(path, name))
		if err != nil {
			return nil, fmt.Errorf("read module %s: %w", name, err)
		}
		modules[i] = data
	}

	// The stdlib and framework are implicit dependencies of every package.
	depIDs := []chain.ObjectID{
		chain.MustObjectID("0x1"),
		chain.MustObjectID("0x2"),
	}
	manifestPath := filepath.Join(path, "package.json")
	if data, err := os.ReadFile(manifestPath); err == nil {
		var m manifest
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse %s: %w", manifestPath, err)
		}
		for _, dep := range m.Dependencies {
			id, err := chain.ObjectIDFromHex(dep)
			if err != nil {
				return nil, fmt.Errorf("dependency %q: %w", dep, err)
			}
			depIDs = append(depIDs, id)
		}
	}

	return &Package{modules: modules, depIDs: depIDs}, nil
}

// Bytes returns the module bytecode in publication order.
func (p *Package) Bytes() [][]byte {
	out := make([][]byte, len(p.modules))
	for i, m := range p.modules {
		out[i] = append([]byte(nil), m...)
	}
	return out
}

// DepIDs returns the published dependency ids.
func (p *Package) DepIDs() []chain.ObjectID {
	return append([]chain.ObjectID(nil), p.depIDs...)
}
