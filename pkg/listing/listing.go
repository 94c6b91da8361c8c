// Package listing defines the records returned by the listings feed.
package listing

// Listing is a single property record from the feed.
// Only AgentName takes part in ranking; the other fields are kept for logging.
type Listing struct {
	// ID is the feed's object identifier (a GUID string).
	ID string `json:"Id"`

	// AgentID is the numeric identifier of the listing agent.
	AgentID int `json:"MakelaarId"`

	// AgentName is the listing agent's display name. May be empty.
	AgentName string `json:"MakelaarNaam"`

	// Address is the street address of the property.
	Address string `json:"Adres"`
}

// Page is the result of fetching one page of a search.
type Page struct {
	// Number is the 1-based page number that was requested.
	Number int

	// Listings holds the page's records in feed order.
	Listings []Listing

	// TotalPages is the page count reported by the feed.
	// Nil means the feed did not report one and pagination stops after this page.
	TotalPages *int

	// TotalListings is the feed's reported total object count for the search.
	TotalListings int
}

// IsLast reports whether no further pages should be requested after this one.
func (p Page) IsLast() bool {
	return p.TotalPages == nil || p.Number >= *p.TotalPages
}
