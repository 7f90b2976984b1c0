package responder

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kode4food/beckn/pkg/api"
)

type (
	// Inventory is an ordered list of offer groups. Matching walks the list
	// in order, so earlier keys win when a query contains several
	Inventory struct {
		entries  []Entry
		fallback Entry
	}

	// Entry is the group of products offered for one service type
	Entry struct {
		Key      string    `yaml:"key"`
		Products []Product `yaml:"products"`
	}

	// Product is one inventory line
	Product struct {
		ID          string `yaml:"id"`
		Name        string `yaml:"name"`
		Price       string `yaml:"price"`
		Description string `yaml:"description"`
		ETA         *int   `yaml:"eta"`
	}

	inventoryFile struct {
		Inventory []Entry `yaml:"inventory"`
	}
)

// FallbackKey names the entry used when no other key matches
const FallbackKey = "fallback"

const defaultFulfillmentID = "ful_1"

var (
	ErrNoFallback   = errors.New("inventory has no fallback entry")
	ErrDuplicateKey = errors.New("duplicate inventory key")
	ErrEmptyKey     = errors.New("inventory entry has no key")
)

// DefaultInventory returns the built-in offer set, keyed by the mitigation
// action types the planner emits
func DefaultInventory() *Inventory {
	inv, _ := NewInventory([]Entry{
		{
			Key: "deploy_mobile_generator",
			Products: []Product{
				{
					ID:          "gen_100kw",
					Name:        "100kW Mobile Generator",
					Price:       "150.0",
					Description: "Diesel generator on trailer",
					ETA:         hours(4),
				},
				{
					ID:          "gen_500kw",
					Name:        "500kW Power Unit",
					Price:       "600.0",
					Description: "Industrial grade power unit",
					ETA:         hours(2),
				},
			},
		},
		{
			Key: "dispatch_battery_discharge",
			Products: []Product{
				{
					ID:          "vpp_battery_1mw",
					Name:        "1MW VPP Battery Discharge",
					Price:       "300.0",
					Description: "Aggregated home battery fleet",
					ETA:         hours(1),
				},
			},
		},
		{
			Key: "reduce_ev_load",
			Products: []Product{
				{
					ID:          "ev_smart_pause",
					Name:        "EV Charging Pause",
					Price:       "80.0",
					Description: "Managed pause of public chargers",
					ETA:         hours(1),
				},
			},
		},
		{
			Key: "shift_hvac_load",
			Products: []Product{
				{
					ID:          "hvac_pre_cool",
					Name:        "HVAC Pre-cooling Shift",
					Price:       "120.0",
					Description: "Commercial building load shift",
					ETA:         hours(2),
				},
				{
					ID:          "spot_cool",
					Name:        "Spot Cooler",
					Price:       "50.0",
					Description: "5 ton spot cooler",
					ETA:         hours(3),
				},
			},
		},
		{
			Key: FallbackKey,
			Products: []Product{
				{
					ID:          "generic_service",
					Name:        "General Service",
					Price:       "100.0",
					Description: "Standard service request",
				},
			},
		},
	})
	return inv
}

// NewInventory validates the entries and builds an Inventory
func NewInventory(entries []Entry) (*Inventory, error) {
	inv := &Inventory{entries: entries}
	seen := map[string]bool{}
	found := false
	for _, e := range entries {
		if e.Key == "" {
			return nil, ErrEmptyKey
		}
		if seen[e.Key] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateKey, e.Key)
		}
		seen[e.Key] = true
		if e.Key == FallbackKey {
			inv.fallback = e
			found = true
		}
	}
	if !found {
		return nil, ErrNoFallback
	}
	return inv, nil
}

// LoadInventory reads an inventory from a YAML file
func LoadInventory(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var parsed inventoryFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("inventory %s: %w", path, err)
	}
	return NewInventory(parsed.Inventory)
}

// Match returns the first entry whose key appears in query, or the fallback
func (i *Inventory) Match(query string) Entry {
	for _, e := range i.entries {
		if strings.Contains(query, e.Key) {
			return e
		}
	}
	return i.fallback
}

// Keys returns the entry keys in match order
func (i *Inventory) Keys() []string {
	res := make([]string, len(i.entries))
	for idx, e := range i.entries {
		res[idx] = e.Key
	}
	return res
}

// Items converts the entry's products to catalog items priced in currency
func (e Entry) Items(currency string) []api.Item {
	res := make([]api.Item, 0, len(e.Products))
	for _, p := range e.Products {
		item := api.Item{
			ID: p.ID,
			Descriptor: api.Descriptor{
				Name:      p.Name,
				ShortDesc: p.Description,
			},
			FulfillmentID: defaultFulfillmentID,
			ETA:           p.ETA,
		}
		if p.Price != "" {
			item.Price = &api.Price{Currency: currency, Value: p.Price}
		}
		res = append(res, item)
	}
	return res
}

func hours(n int) *int {
	return &n
}
