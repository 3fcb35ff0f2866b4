package models

// ListingFields is one listing as extracted from a search result fragment.
type ListingFields struct {
	Address       string
	ReferenceURL  string
	Price         int
	Beds          float64 // 0 when the beds column could not be parsed
	Baths         float64
	AvailableDate string
}

// Listing is the persisted record, one per unique address
type Listing struct {
	Address string   `json:"address" bson:"_id"`
	Refs    []string `json:"refs" bson:"refs"`

	// Snapshot from the first sighting; never refreshed by later runs.
	Price         int     `json:"price" bson:"price"`
	Beds          float64 `json:"beds" bson:"beds"`
	Baths         float64 `json:"baths" bson:"baths"`
	AvailableDate string  `json:"date" bson:"date"`

	// Curated fields, owned by the dashboard.
	Notes       string `json:"notes" bson:"notes"`
	IsFavorite  bool   `json:"isFavorite" bson:"favorite"`
	IsDismissed bool   `json:"isDismissed" bson:"dismissed"`

	Timestamp int64 `json:"timestamp" bson:"timestamp"` // first seen, unix nanoseconds
}

// NewListing creates the persisted record for a first sighting.
func NewListing(f ListingFields, timestamp int64) Listing {
	return Listing{
		Address:       f.Address,
		Refs:          []string{f.ReferenceURL},
		Price:         f.Price,
		Beds:          f.Beds,
		Baths:         f.Baths,
		AvailableDate: f.AvailableDate,
		Timestamp:     timestamp,
	}
}

// Broker is one configured search query.
type Broker struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url"`
}
