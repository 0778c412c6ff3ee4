// Package cartridge loads the cartridge catalog: the personas a session or
// chat can run under.
package cartridge

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jmbento/omnicall-ai/internal/models"
)

// DefaultID is the cartridge used when a channel does not pick one.
const DefaultID = "default"

// ErrUnknownCartridge is returned by Get for ids not in the catalog.
var ErrUnknownCartridge = errors.New("unknown cartridge")

//go:embed cartridges.yaml
var builtinYAML []byte

type file struct {
	Cartridges []models.Cartridge `yaml:"cartridges"`
}

// Catalog is an immutable set of cartridges.
type Catalog struct {
	byID  map[string]models.Cartridge
	order []string
}

// Builtin returns the embedded catalog.
func Builtin() *Catalog {
	c, err := Parse(builtinYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded cartridges.yaml: %v", err))
	}
	return c
}

// Load reads the catalog from path, or the embedded one when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Builtin(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cartridges: %w", err)
	}
	return Parse(data)
}

// Parse decodes a catalog and validates ids.
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse cartridges: %w", err)
	}
	c := &Catalog{byID: make(map[string]models.Cartridge, len(f.Cartridges))}
	for i, cart := range f.Cartridges {
		cart.ID = strings.TrimSpace(cart.ID)
		if cart.ID == "" {
			return nil, fmt.Errorf("parse cartridges: entry %d has no id", i)
		}
		if _, dup := c.byID[cart.ID]; dup {
			return nil, fmt.Errorf("parse cartridges: duplicate id %q", cart.ID)
		}
		if cart.Vertical == "" {
			cart.Vertical = models.VerticalGeneral
		}
		c.byID[cart.ID] = cart
		c.order = append(c.order, cart.ID)
	}
	return c, nil
}

// Get returns a cartridge by id.
func (c *Catalog) Get(id string) (models.Cartridge, error) {
	cart, ok := c.byID[id]
	if !ok {
		return models.Cartridge{}, fmt.Errorf("%w: %s", ErrUnknownCartridge, id)
	}
	cart.Tools = slices.Clone(cart.Tools)
	return cart, nil
}

// List returns all cartridges in file order.
func (c *Catalog) List() []models.Cartridge {
	out := make([]models.Cartridge, 0, len(c.order))
	for _, id := range c.order {
		cart, _ := c.Get(id)
		out = append(out, cart)
	}
	return out
}

// Tools returns the tool names a cartridge may call.
func (c *Catalog) Tools(id string) []string {
	cart, err := c.Get(id)
	if err != nil {
		return nil
	}
	return cart.Tools
}

// Persona returns the system instruction of id, falling back to the default
// cartridge's for unknown ids.
func (c *Catalog) Persona(id string) string {
	if cart, ok := c.byID[id]; ok {
		return cart.SystemInstruction
	}
	return c.byID[DefaultID].SystemInstruction
}
