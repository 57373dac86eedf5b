package api

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rickgao/basemap-orders/internal/model"
)

const mosaicsPath = "/basemaps/v1/mosaics"

// ErrMosaicNotFound is returned when no mosaic matches a name.
var ErrMosaicNotFound = errors.New("mosaic not found")

// GetMosaicByName looks up a mosaic by name, preferring an exact match over
// the first partial match.
func (c *Client) GetMosaicByName(ctx context.Context, name string) (*Mosaic, error) {
	query := url.Values{}
	query.Set("name__contains", name)

	var resp MosaicsResponse
	if err := c.get(ctx, c.endpoint(mosaicsPath, query), &resp); err != nil {
		return nil, fmt.Errorf("get mosaic %s: %w", name, err)
	}

	if len(resp.Mosaics) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrMosaicNotFound, name)
	}
	for i := range resp.Mosaics {
		if resp.Mosaics[i].Name == name {
			return &resp.Mosaics[i], nil
		}
	}
	return &resp.Mosaics[0], nil
}

// ListQuads fetches the quads of a mosaic intersecting opts.BBox, following
// _next links until exhausted or opts.Limit quads are collected.
func (c *Client) ListQuads(ctx context.Context, mosaicID string, opts ListQuadsOptions) ([]Quad, error) {
	ctx, cancel := withPaginationTimeout(ctx)
	defer cancel()

	query := url.Values{}
	query.Set("bbox", formatBBox(opts.BBox))
	query.Set("minimal", "true")
	if opts.PageSize > 0 {
		query.Set("_page_size", strconv.Itoa(opts.PageSize))
	}

	var quads []Quad
	next := c.endpoint(mosaicsPath+"/"+url.PathEscape(mosaicID)+"/quads", query)
	for next != "" {
		var resp QuadsResponse
		if err := c.get(ctx, next, &resp); err != nil {
			return nil, fmt.Errorf("list quads %s: %w", mosaicID, err)
		}

		quads = append(quads, resp.Items...)
		if opts.Limit > 0 && len(quads) >= opts.Limit {
			return quads[:opts.Limit], nil
		}
		next = resp.Links.next()
	}

	return quads, nil
}

// QuadProduct resolves a mosaic by name and builds an order product from the
// quads covering bbox.
func (c *Client) QuadProduct(ctx context.Context, mosaicName string, opts ListQuadsOptions) (model.Product, error) {
	mosaic, err := c.GetMosaicByName(ctx, mosaicName)
	if err != nil {
		return model.Product{}, err
	}

	quads, err := c.ListQuads(ctx, mosaic.ID, opts)
	if err != nil {
		return model.Product{}, err
	}
	if len(quads) == 0 {
		return model.Product{}, fmt.Errorf("no quads in %s for bbox %s", mosaic.Name, formatBBox(opts.BBox))
	}

	return model.Product{MosaicName: mosaic.Name, QuadIDs: QuadIDs(quads)}, nil
}

// QuadIDs extracts quad identifiers in order.
func QuadIDs(quads []Quad) []string {
	ids := make([]string, len(quads))
	for i, q := range quads {
		ids[i] = q.ID
	}
	return ids
}

// ParseBBox parses "xmin,ymin,xmax,ymax".
func ParseBBox(s string) ([4]float64, error) {
	var bbox [4]float64
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return bbox, fmt.Errorf("bbox %q: want 4 comma-separated values", s)
	}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return bbox, fmt.Errorf("bbox %q: %w", s, err)
		}
		bbox[i] = v
	}
	if bbox[0] >= bbox[2] || bbox[1] >= bbox[3] {
		return bbox, fmt.Errorf("bbox %q: min must be less than max", s)
	}
	return bbox, nil
}

func formatBBox(b [4]float64) string {
	parts := make([]string, 4)
	for i, v := range b {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, ",")
}
