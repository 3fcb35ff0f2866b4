package parser

// Selectors for the search result markup
const (
	NothingFoundSelector = "div.nothing_found"
	ListingSelector      = "div.property_item"
	TitleSelector        = "a.item_title"
	ColumnSelector       = "div.column"
)

// Column positions inside a listing fragment
const (
	priceColumn = iota
	bedsColumn
	bathsColumn
	dateColumn

	columnCount
)
