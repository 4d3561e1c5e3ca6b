package helpers

// FieldSchema describes one property of a stored record
type FieldSchema struct {
	Type        string   `json:"type"`
	Format      string   `json:"format,omitempty"`
	Description string   `json:"description"`
	Minimum     *float64 `json:"minimum,omitempty"`
	Exclusive   bool     `json:"exclusive_minimum,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Default     any      `json:"default,omitempty"`
}

// RecordSchema describes a stored record and the collection holding it
type RecordSchema struct {
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Collection  string                 `json:"collection"`
	Required    []string               `json:"required"`
	Properties  map[string]FieldSchema `json:"properties"`
}

func floatPtr(f float64) *float64 { return &f }

// Schemas returns the shapes of sportsitem, bid and auction keyed by lowercase name
func Schemas() map[string]RecordSchema {
	return map[string]RecordSchema{
		"sportsitem": {
			Title:       "SportsItem",
			Description: "Sports memorabilia or experience being auctioned",
			Collection:  "sportsitem",
			Required:    []string{"title"},
			Properties: map[string]FieldSchema{
				"title":       {Type: "string", Description: "Item title, e.g. 'Signed Jersey'"},
				"description": {Type: "string", Description: "Details about the item"},
				"sport":       {Type: "string", Description: "Sport type, e.g. Football"},
				"team":        {Type: "string", Description: "Associated team"},
				"player":      {Type: "string", Description: "Associated player"},
				"image_url":   {Type: "string", Description: "Primary image URL"},
			},
		},
		"bid": {
			Title:       "Bid",
			Description: "A bid placed on an auction",
			Collection:  "bid",
			Required:    []string{"auction_id", "bidder_name", "amount"},
			Properties: map[string]FieldSchema{
				"auction_id":  {Type: "string", Description: "Auction ID"},
				"bidder_name": {Type: "string", Description: "Display name for bidder"},
				"amount":      {Type: "number", Description: "Bid amount", Minimum: floatPtr(0), Exclusive: true},
				"created_at":  {Type: "string", Format: "date-time", Description: "When the bid was accepted"},
			},
		},
		"auction": {
			Title:       "Auction",
			Description: "Auction metadata",
			Collection:  "auction",
			Required:    []string{"title", "starting_price", "start_time", "end_time"},
			Properties: map[string]FieldSchema{
				"item_id":        {Type: "string", Description: "Reference to a SportsItem"},
				"title":          {Type: "string", Description: "Auction title"},
				"description":    {Type: "string", Description: "Auction description"},
				"image_url":      {Type: "string", Description: "Hero image for auction"},
				"starting_price": {Type: "number", Description: "Starting price", Minimum: floatPtr(0)},
				"current_price":  {Type: "number", Description: "Cached current price", Minimum: floatPtr(0)},
				"start_time":     {Type: "string", Format: "date-time", Description: "When the auction starts"},
				"end_time":       {Type: "string", Format: "date-time", Description: "When the auction ends"},
				"status": {
					Type:        "string",
					Description: "Derived from the time window at read time",
					Enum:        []string{"scheduled", "live", "ended"},
					Default:     "scheduled",
				},
				"tags":       {Type: "array", Description: "Searchable tags"},
				"updated_at": {Type: "string", Format: "date-time", Description: "Last price change"},
			},
		},
	}
}
