package orchestrator

import "github.com/kode4food/beckn/pkg/api"

// Selector picks the provider and item a flow will select from a catalog.
// It reports false when the catalog offers nothing to select
type Selector func(*api.Catalog) (*api.Provider, *api.Item, bool)

// SelectMinETA picks the item with the smallest ETA across all providers.
// Items without an ETA rank after any item that has one, and ties keep
// catalog order, so a catalog without ETAs yields its first item
func SelectMinETA(cat *api.Catalog) (*api.Provider, *api.Item, bool) {
	var bestProv *api.Provider
	var bestItem *api.Item
	for i := range cat.Providers {
		p := &cat.Providers[i]
		for j := range p.Items {
			it := &p.Items[j]
			if bestItem == nil || earlier(it, bestItem) {
				bestProv, bestItem = p, it
			}
		}
	}
	return bestProv, bestItem, bestItem != nil
}

// SelectFirst picks the first item of the first provider that has any
func SelectFirst(cat *api.Catalog) (*api.Provider, *api.Item, bool) {
	for i := range cat.Providers {
		p := &cat.Providers[i]
		if len(p.Items) > 0 {
			return p, &p.Items[0], true
		}
	}
	return nil, nil, false
}

func earlier(l, r *api.Item) bool {
	switch {
	case l.ETA == nil:
		return false
	case r.ETA == nil:
		return true
	default:
		return *l.ETA < *r.ETA
	}
}
