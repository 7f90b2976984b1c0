package api

import "encoding/json"

type (
	// Descriptor names and describes a catalog entity
	Descriptor struct {
		Name      string   `json:"name"`
		Code      string   `json:"code,omitempty"`
		Symbol    string   `json:"symbol,omitempty"`
		ShortDesc string   `json:"short_desc,omitempty"`
		LongDesc  string   `json:"long_desc,omitempty"`
		Images    []string `json:"images,omitempty"`
	}

	// Price is a currency amount expressed as a decimal string
	Price struct {
		Currency       string `json:"currency"`
		Value          string `json:"value"`
		EstimatedValue string `json:"estimated_value,omitempty"`
	}

	// Item is a single offer within a provider's catalog
	Item struct {
		ID            string     `json:"id"`
		Descriptor    Descriptor `json:"descriptor"`
		Price         *Price     `json:"price,omitempty"`
		CategoryID    string     `json:"category_id,omitempty"`
		FulfillmentID string     `json:"fulfillment_id,omitempty"`

		// ETA is the number of hours until the item can be fulfilled
		ETA *int `json:"eta,omitempty"`
	}

	// Provider groups the items offered by one party
	Provider struct {
		ID         string     `json:"id"`
		Descriptor Descriptor `json:"descriptor"`
		Items      []Item     `json:"items,omitempty"`
	}

	// ProviderRef points an order at the provider it was placed with
	ProviderRef struct {
		ID string `json:"id"`
	}

	// Fulfillment describes how an order will be delivered
	Fulfillment struct {
		ID       string `json:"id"`
		Type     string `json:"type,omitempty"`
		Tracking bool   `json:"tracking"`
	}

	// Catalog is the responder's offer set returned by discovery
	Catalog struct {
		Descriptor Descriptor `json:"descriptor"`
		Providers  []Provider `json:"providers"`
	}

	// Breakup is one priced line of a Quote
	Breakup struct {
		Title string `json:"title"`
		Price Price  `json:"price"`
	}

	// Quote is the priced breakdown attached to an order after selection
	Quote struct {
		Price   Price     `json:"price"`
		Breakup []Breakup `json:"breakup,omitempty"`
	}

	// Billing identifies who pays for an order
	Billing struct {
		Name    string `json:"name"`
		Address string `json:"address,omitempty"`
		Email   string `json:"email,omitempty"`
		Phone   string `json:"phone,omitempty"`
	}

	// Order is the transactional object that evolves across selection and
	// confirmation. Once ID is assigned it never changes
	Order struct {
		ID          string         `json:"id,omitempty"`
		State       string         `json:"state,omitempty"`
		Provider    *ProviderRef   `json:"provider,omitempty"`
		Items       []Item         `json:"items,omitempty"`
		Billing     *Billing       `json:"billing,omitempty"`
		Fulfillment *Fulfillment   `json:"fulfillment,omitempty"`
		Quote       *Quote         `json:"quote,omitempty"`
		Payment     map[string]any `json:"payment,omitempty"`
	}

	// Intent is a loosely-typed description of what the initiator wants.
	// Each filter is kept as raw JSON so it round-trips untouched
	Intent struct {
		Item        json.RawMessage `json:"item,omitempty"`
		Provider    json.RawMessage `json:"provider,omitempty"`
		Fulfillment json.RawMessage `json:"fulfillment,omitempty"`
		Category    json.RawMessage `json:"category,omitempty"`
	}
)

// OrderStateCreated is assigned to an order when it is confirmed
const OrderStateCreated = "Created"

// NewItemIntent builds an Intent that searches for items by name
func NewItemIntent(name string) Intent {
	item, _ := json.Marshal(map[string]any{
		"descriptor": Descriptor{Name: name},
	})
	return Intent{Item: item}
}

// FindItem returns the provider and item with the given identifiers
func (c *Catalog) FindItem(providerID, itemID string) (*Provider, *Item, bool) {
	for i := range c.Providers {
		p := &c.Providers[i]
		if p.ID != providerID {
			continue
		}
		for j := range p.Items {
			if p.Items[j].ID == itemID {
				return p, &p.Items[j], true
			}
		}
	}
	return nil, nil, false
}
