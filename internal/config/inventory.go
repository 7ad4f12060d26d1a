package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/devrev/kvring/internal/ring"
	"gopkg.in/yaml.v3"
)

// Machine is one provisionable host from the inventory file
type Machine struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// NodeID returns the ring identity of the machine
func (m Machine) NodeID() ring.NodeID {
	return ring.NodeID{Address: m.Address, Port: m.Port}
}

// Inventory lists every machine the controller may start
type Inventory struct {
	Nodes []Machine `yaml:"nodes"`
}

// LoadInventory reads and validates the inventory file
func LoadInventory(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory file: %w", err)
	}

	return ParseInventory(data)
}

// ParseInventory decodes and validates inventory YAML
func ParseInventory(data []byte) (*Inventory, error) {
	var inv Inventory
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("failed to parse inventory: %w", err)
	}

	if err := inv.Validate(); err != nil {
		return nil, fmt.Errorf("invalid inventory: %w", err)
	}

	return &inv, nil
}

// Validate checks every machine is addressable and listed once
func (inv *Inventory) Validate() error {
	if len(inv.Nodes) == 0 {
		return errors.New("inventory lists no nodes")
	}

	seen := make(map[string]bool, len(inv.Nodes))
	for i, m := range inv.Nodes {
		if m.Address == "" {
			return fmt.Errorf("node %d: address is required", i)
		}
		if m.Port <= 0 || m.Port > 65535 {
			return fmt.Errorf("node %d: port must be between 1 and 65535", i)
		}
		key := m.NodeID().String()
		if seen[key] {
			return fmt.Errorf("node %d: %s listed twice", i, key)
		}
		seen[key] = true
		if inv.Nodes[i].Name == "" {
			inv.Nodes[i].Name = fmt.Sprintf("node%d", i+1)
		}
	}
	return nil
}

// NodeIDs returns the machines in inventory order
func (inv *Inventory) NodeIDs() []ring.NodeID {
	out := make([]ring.NodeID, 0, len(inv.Nodes))
	for _, m := range inv.Nodes {
		out = append(out, m.NodeID())
	}
	return out
}
