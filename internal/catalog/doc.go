// Package catalog loads the YAML product catalog used by the decision
// handlers: kit definitions for hydration, SKU categories, and the ordered
// packaging rules.
//
// SKUs are normalized (NFKC, upper case, trimmed) on load and on lookup.
package catalog
