package dtos

// SubscriptionRequest to the exchange to subscribe / unsubscribe products on channels.
// The auth fields are only set when credentials are configured.
type SubscriptionRequest struct {
	Type       string   `json:"type"`
	ProductIDs []string `json:"product_ids"`
	Channels   []string `json:"channels"`

	Key        string `json:"key,omitempty"`
	Passphrase string `json:"passphrase,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`
	Signature  string `json:"signature,omitempty"`
}

// SubscriptionsList is the exchange's acknowledgement listing active channels.
type SubscriptionsList struct {
	Type     string `json:"type"`
	Channels []struct {
		Name       string   `json:"name"`
		ProductIDs []string `json:"product_ids"`
	} `json:"channels"`
}

// Products lists every product subscribed on any channel, in first-seen order.
func (l SubscriptionsList) Products() []string {
	seen := make(map[string]bool)

	var products []string

	for _, channel := range l.Channels {
		for _, product := range channel.ProductIDs {
			if !seen[product] {
				seen[product] = true
				products = append(products, product)
			}
		}
	}

	return products
}
