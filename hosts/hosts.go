// Package hosts loads the host inventory the coordinator distributes
// work over. The inventory is YAML: a default niceness plus one entry
// per machine, each optionally overriding niceness, worker count, and
// the endpoint its worker daemon listens on.
package hosts

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ostrokach/biskit/worker"
)

// Entry is one machine in the inventory.
type Entry struct {
	// Name identifies the host. Required and unique.
	Name string `yaml:"name"`

	// Niceness orders hosts for assignment; lower is preferred. Nil
	// falls back to the inventory default.
	Niceness *int `yaml:"niceness,omitempty"`

	// Workers is how many workers to spawn on this host. Zero falls
	// back to the pool default.
	Workers int `yaml:"workers,omitempty"`

	// URL is the worker daemon endpoint, e.g. ws://alpha:9000. Unused
	// by in-process transports.
	URL string `yaml:"url,omitempty"`
}

// Inventory is the parsed host list.
type Inventory struct {
	// DefaultNiceness applies to entries without their own niceness.
	DefaultNiceness int `yaml:"default_niceness"`

	Hosts []Entry `yaml:"hosts"`
}

// Parse decodes a YAML inventory and validates it.
func Parse(data []byte) (*Inventory, error) {
	var inv Inventory
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("hosts: parse: %w", err)
	}

	if len(inv.Hosts) == 0 {
		return nil, fmt.Errorf("hosts: inventory lists no hosts")
	}
	seen := make(map[string]struct{}, len(inv.Hosts))
	for i, e := range inv.Hosts {
		if e.Name == "" {
			return nil, fmt.Errorf("hosts: entry %d has no name", i)
		}
		if _, dup := seen[e.Name]; dup {
			return nil, fmt.Errorf("hosts: duplicate host %q", e.Name)
		}
		seen[e.Name] = struct{}{}
		if e.Workers < 0 {
			return nil, fmt.Errorf("hosts: host %q has negative worker count", e.Name)
		}
	}
	return &inv, nil
}

// Load reads and parses an inventory file.
func Load(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("hosts: read %s: %w", path, err)
	}
	return Parse(data)
}

// WorkerHosts converts the inventory into pool host descriptors, with
// the default niceness resolved.
func (inv *Inventory) WorkerHosts() []worker.Host {
	out := make([]worker.Host, 0, len(inv.Hosts))
	for _, e := range inv.Hosts {
		niceness := inv.DefaultNiceness
		if e.Niceness != nil {
			niceness = *e.Niceness
		}
		out = append(out, worker.Host{
			Name:     e.Name,
			Niceness: niceness,
			Slots:    e.Workers,
		})
	}
	return out
}

// Endpoints maps host names to their daemon URLs, for dialing
// transports. Hosts without a URL are omitted.
func (inv *Inventory) Endpoints() map[string]string {
	out := make(map[string]string, len(inv.Hosts))
	for _, e := range inv.Hosts {
		if e.URL != "" {
			out[e.Name] = e.URL
		}
	}
	return out
}
