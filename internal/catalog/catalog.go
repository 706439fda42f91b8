package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"shipflow/internal/shipment"
)

// DefaultCategory is assigned to SKUs the catalog does not list.
const DefaultCategory = "general"

const maxKitDepth = 8

// Component is one SKU inside a kit.
type Component struct {
	SKU      string `yaml:"sku"`
	Quantity int    `yaml:"quantity"`
}

// PackagingRule is one packaging option. Rules are tried in file order.
// MaxUnits of zero means unbounded; empty Categories accepts any category.
type PackagingRule struct {
	ID         string   `yaml:"id"`
	MaxUnits   int      `yaml:"max_units"`
	Categories []string `yaml:"categories"`
}

type document struct {
	Kits       map[string][]Component `yaml:"kits"`
	Categories map[string]string      `yaml:"categories"`
	Packaging  []PackagingRule        `yaml:"packaging"`
}

// Catalog holds kit definitions, SKU categories, and packaging rules. It is
// read-only after Load and safe for concurrent use.
type Catalog struct {
	kits       map[string][]Component
	categories map[string]string
	packaging  []PackagingRule
}

// ErrNoPackaging is returned when no rule fits a composition.
var ErrNoPackaging = errors.New("no packaging rule fits")

// Empty returns a catalog with no kits, categories, or packaging rules.
func Empty() *Catalog {
	return &Catalog{kits: map[string][]Component{}, categories: map[string]string{}}
}

// Load reads a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog and normalizes every SKU.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	cat := Empty()
	for sku, components := range doc.Kits {
		key := NormalizeSKU(sku)
		if key == "" {
			return nil, errors.New("catalog: kit with empty sku")
		}
		normalized := make([]Component, 0, len(components))
		for _, c := range components {
			c.SKU = NormalizeSKU(c.SKU)
			if c.SKU == "" || c.Quantity <= 0 {
				return nil, fmt.Errorf("catalog: kit %s has an invalid component %+v", key, c)
			}
			normalized = append(normalized, c)
		}
		cat.kits[key] = normalized
	}
	for sku, category := range doc.Categories {
		category = strings.TrimSpace(strings.ToLower(category))
		if category == "" {
			return nil, fmt.Errorf("catalog: sku %s has an empty category", sku)
		}
		cat.categories[NormalizeSKU(sku)] = category
	}
	seen := map[string]bool{}
	for _, rule := range doc.Packaging {
		rule.ID = strings.TrimSpace(rule.ID)
		if rule.ID == "" {
			return nil, errors.New("catalog: packaging rule without id")
		}
		if seen[rule.ID] {
			return nil, fmt.Errorf("catalog: duplicate packaging rule %s", rule.ID)
		}
		if rule.MaxUnits < 0 {
			return nil, fmt.Errorf("catalog: packaging rule %s has negative max_units", rule.ID)
		}
		seen[rule.ID] = true
		for i, c := range rule.Categories {
			rule.Categories[i] = strings.TrimSpace(strings.ToLower(c))
		}
		cat.packaging = append(cat.packaging, rule)
	}
	if err := cat.checkCycles(); err != nil {
		return nil, err
	}
	return cat, nil
}

var upper = cases.Upper(language.Und)

// NormalizeSKU folds compatibility characters and case so "ｍｕｇ-01" and
// "MUG-01" name the same product.
func NormalizeSKU(sku string) string {
	return strings.TrimSpace(upper.String(norm.NFKC.String(sku)))
}

// IsKit reports whether sku is a kit.
func (c *Catalog) IsKit(sku string) bool {
	_, ok := c.kits[NormalizeSKU(sku)]
	return ok
}

// Category returns the category for sku and whether the catalog lists it.
func (c *Catalog) Category(sku string) (string, bool) {
	category, ok := c.categories[NormalizeSKU(sku)]
	if !ok {
		return DefaultCategory, false
	}
	return category, true
}

// Explode replaces kits with their components and merges lines with the same
// SKU. Output order follows the first appearance of each SKU.
func (c *Catalog) Explode(items []shipment.LineItem) ([]shipment.LineItem, error) {
	var (
		out   []shipment.LineItem
		index = map[string]int{}
	)
	add := func(sku string, qty int) {
		if i, ok := index[sku]; ok {
			out[i].Quantity += qty
			return
		}
		index[sku] = len(out)
		out = append(out, shipment.LineItem{SKU: sku, Quantity: qty})
	}

	var expand func(sku string, qty, depth int) error
	expand = func(sku string, qty, depth int) error {
		if depth > maxKitDepth {
			return fmt.Errorf("kit %s nests deeper than %d levels", sku, maxKitDepth)
		}
		components, ok := c.kits[sku]
		if !ok {
			add(sku, qty)
			return nil
		}
		for _, comp := range components {
			if err := expand(comp.SKU, qty*comp.Quantity, depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	for _, item := range items {
		sku := NormalizeSKU(item.SKU)
		if sku == "" || item.Quantity <= 0 {
			return nil, fmt.Errorf("invalid line item %+v", item)
		}
		if err := expand(sku, item.Quantity, 0); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// SelectPackaging returns the first rule that holds every unit and accepts
// every category in items. The result depends only on the composition.
func (c *Catalog) SelectPackaging(items []shipment.LineItem) (string, error) {
	units := 0
	var categories []string
	for _, item := range items {
		units += item.Quantity
		category := item.Category
		if category == "" {
			category, _ = c.Category(item.SKU)
		}
		if !slices.Contains(categories, category) {
			categories = append(categories, category)
		}
	}
	for _, rule := range c.packaging {
		if rule.MaxUnits > 0 && units > rule.MaxUnits {
			continue
		}
		if len(rule.Categories) > 0 && !containsAll(rule.Categories, categories) {
			continue
		}
		return rule.ID, nil
	}
	return "", fmt.Errorf("%w %d units in %v", ErrNoPackaging, units, categories)
}

// PackagingRules returns a copy of the rules in evaluation order.
func (c *Catalog) PackagingRules() []PackagingRule {
	return slices.Clone(c.packaging)
}

// Counts summarizes the catalog for preflight output.
func (c *Catalog) Counts() (kits, categories, packaging int) {
	return len(c.kits), len(c.categories), len(c.packaging)
}

func (c *Catalog) checkCycles() error {
	for sku := range c.kits {
		if _, err := c.Explode([]shipment.LineItem{{SKU: sku, Quantity: 1}}); err != nil {
			return fmt.Errorf("catalog: %w", err)
		}
	}
	return nil
}

func containsAll(allowed, wanted []string) bool {
	for _, w := range wanted {
		if !slices.Contains(allowed, w) {
			return false
		}
	}
	return true
}
