package api

import "github.com/rickgao/basemap-orders/internal/model"

// Order represents an order from GET /compute/ops/orders/v2/{id}.
type Order struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	State        string     `json:"state"`
	SourceType   string     `json:"source_type,omitempty"`
	CreatedOn    string     `json:"created_on,omitempty"`
	LastModified string     `json:"last_modified,omitempty"`
	LastMessage  string     `json:"last_message,omitempty"`
	ErrorHints   []string   `json:"error_hints,omitempty"`
	Links        OrderLinks `json:"_links"`
}

// OrderLinks holds the self link and, once terminal, the delivered results.
type OrderLinks struct {
	Self    string                 `json:"_self"`
	Results []model.ResultArtifact `json:"results,omitempty"`
}

// Handle returns the order's handle.
func (o *Order) Handle() model.OrderHandle {
	return model.OrderHandle{ID: o.ID, Location: o.Links.Self}
}

// OrdersResponse from GET /compute/ops/orders/v2
type OrdersResponse struct {
	Orders []Order   `json:"orders"`
	Links  pageLinks `json:"_links"`
}

// pageLinks covers both pagination link spellings used by the APIs.
type pageLinks struct {
	Self  string `json:"_self,omitempty"`
	Next  string `json:"next,omitempty"`
	UNext string `json:"_next,omitempty"`
}

func (l pageLinks) next() string {
	if l.Next != "" {
		return l.Next
	}
	return l.UNext
}

// ListOrdersOptions configures a ListOrders request.
type ListOrdersOptions struct {
	State    string // filter by order state
	MaxPages int    // 0 = all pages
}

// Mosaic represents a basemap mosaic.
type Mosaic struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	FirstAcquired string    `json:"first_acquired,omitempty"`
	LastAcquired  string    `json:"last_acquired,omitempty"`
	Level         int       `json:"level,omitempty"`
	QuadSize      int       `json:"quad_size,omitempty"`
	ItemTypes     []string  `json:"item_types,omitempty"`
	ProductType   string    `json:"product_type,omitempty"`
	BBox          []float64 `json:"bbox,omitempty"`
}

// MosaicsResponse from GET /basemaps/v1/mosaics
type MosaicsResponse struct {
	Mosaics []Mosaic  `json:"mosaics"`
	Links   pageLinks `json:"_links"`
}

// Quad is a single tile within a mosaic.
type Quad struct {
	ID             string    `json:"id"`
	BBox           []float64 `json:"bbox,omitempty"`
	PercentCovered float64   `json:"percent_covered,omitempty"`
}

// QuadsResponse from GET /basemaps/v1/mosaics/{id}/quads
type QuadsResponse struct {
	Items []Quad    `json:"items"`
	Links pageLinks `json:"_links"`
}

// ListQuadsOptions configures a ListQuads request.
type ListQuadsOptions struct {
	BBox     [4]float64 // xmin, ymin, xmax, ymax in WGS84
	PageSize int
	Limit    int // max quads returned; 0 = all
}

// Feed represents an analytics feed.
type Feed struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Created     string `json:"created,omitempty"`
	Updated     string `json:"updated,omitempty"`
}

// FeedsResponse from GET /analytics/feeds
type FeedsResponse struct {
	Data  []Feed `json:"data"`
	Links []Link `json:"links"`
}

// Subscription represents an analytics subscription.
type Subscription struct {
	ID          string `json:"id"`
	FeedID      string `json:"feedID"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	StartTime   string `json:"startTime,omitempty"`
	EndTime     string `json:"endTime,omitempty"`
	Created     string `json:"created,omitempty"`
	Updated     string `json:"updated,omitempty"`
}

// SubscriptionsResponse from GET /analytics/subscriptions
type SubscriptionsResponse struct {
	Data  []Subscription `json:"data"`
	Links []Link         `json:"links"`
}

// Link is an analytics API hypermedia link.
type Link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

func nextLink(links []Link) string {
	for _, l := range links {
		if l.Rel == "next" {
			return l.Href
		}
	}
	return ""
}
