// Package nvcatalog maps NV item ids to display names.
//
// The default table is embedded. An nvitems.xml file in the format used by
// other Qualcomm tools can replace it:
//
//	<nvitems>
//	  <nv id="550" name="NV_UE_IMEI_I"/>
//	</nvitems>
//
// A Catalog is immutable once built; pass it to whatever needs names.
package nvcatalog

import (
	_ "embed"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed data/nvitems.yaml
var defaultYAML []byte

// Item is one catalog entry.
type Item struct {
	ID          uint16 `yaml:"id" xml:"id,attr"`
	Name        string `yaml:"name" xml:"name,attr"`
	Description string `yaml:"description,omitempty" xml:"description,attr,omitempty"`
}

// Catalog is an id to name table.
type Catalog struct {
	items  []Item
	byID   map[uint16]Item
	byName map[string]uint16
}

type yamlContainer struct {
	Items []Item `yaml:"items"`
}

type xmlContainer struct {
	Items []Item `xml:"nv"`
}

var (
	defaultCatalog *Catalog
	defaultOnce    sync.Once
	defaultErr     error
)

// Default returns the embedded catalog. It is parsed once.
func Default() (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCatalog, defaultErr = ParseYAML(defaultYAML)
	})
	return defaultCatalog, defaultErr
}

// Load reads a catalog file. Files ending in .xml are parsed as nvitems.xml,
// anything else as YAML.
func Load(path string) (*Catalog, error) {
	if strings.EqualFold(filepath.Ext(path), ".xml") {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open NV catalog: %w", err)
		}
		defer f.Close()
		return ParseXML(f)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read NV catalog: %w", err)
	}
	return ParseYAML(data)
}

// ParseYAML builds a catalog from the embedded YAML format.
func ParseYAML(data []byte) (*Catalog, error) {
	var c yamlContainer
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse NV catalog: %w", err)
	}
	return New(c.Items), nil
}

// ParseXML builds a catalog from nvitems.xml.
func ParseXML(r io.Reader) (*Catalog, error) {
	var c xmlContainer
	if err := xml.NewDecoder(r).Decode(&c); err != nil {
		return nil, fmt.Errorf("failed to parse nvitems.xml: %w", err)
	}
	return New(c.Items), nil
}

// New builds a catalog from items. Later duplicates win.
func New(items []Item) *Catalog {
	c := &Catalog{
		byID:   make(map[uint16]Item, len(items)),
		byName: make(map[string]uint16, len(items)),
	}
	for _, it := range items {
		c.byID[it.ID] = it
		c.byName[strings.ToUpper(it.Name)] = it.ID
	}
	c.items = make([]Item, 0, len(c.byID))
	for _, it := range c.byID {
		c.items = append(c.items, it)
	}
	sort.Slice(c.items, func(i, j int) bool { return c.items[i].ID < c.items[j].ID })
	return c
}

// Name returns the name of id, or "" when unknown. A nil catalog knows
// no names.
func (c *Catalog) Name(id uint16) string {
	if c == nil {
		return ""
	}
	return c.byID[id].Name
}

// Get returns the entry for id.
func (c *Catalog) Get(id uint16) (Item, bool) {
	if c == nil {
		return Item{}, false
	}
	it, ok := c.byID[id]
	return it, ok
}

// Lookup resolves a name (case-insensitive) to its id.
func (c *Catalog) Lookup(name string) (uint16, bool) {
	if c == nil {
		return 0, false
	}
	id, ok := c.byName[strings.ToUpper(name)]
	return id, ok
}

// Items returns all entries sorted by id.
func (c *Catalog) Items() []Item {
	if c == nil {
		return nil
	}
	return c.items
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.items)
}
