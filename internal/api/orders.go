package api

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rickgao/basemap-orders/internal/model"
)

const ordersPath = "/compute/ops/orders/v2"

// CreateOrder submits spec. The request is sent exactly once.
func (c *Client) CreateOrder(ctx context.Context, spec *model.OrderSpec) (*Order, error) {
	var resp Order
	if err := c.post(ctx, c.endpoint(ordersPath, nil), spec, &resp); err != nil {
		return nil, fmt.Errorf("create order %q: %w", spec.Name, err)
	}
	return &resp, nil
}

// GetOrder fetches a single order by id.
func (c *Client) GetOrder(ctx context.Context, id string) (*Order, error) {
	return c.getOrderAt(ctx, c.endpoint(ordersPath+"/"+url.PathEscape(id), nil), id)
}

func (c *Client) getOrderAt(ctx context.Context, rawURL, id string) (*Order, error) {
	var resp Order
	if err := c.get(ctx, rawURL, &resp); err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	return &resp, nil
}

// ListOrders fetches orders, following next links.
func (c *Client) ListOrders(ctx context.Context, opts ListOrdersOptions) ([]Order, error) {
	ctx, cancel := withPaginationTimeout(ctx)
	defer cancel()

	query := url.Values{}
	if opts.State != "" {
		query.Set("state", opts.State)
	}

	var all []Order
	next := c.endpoint(ordersPath, query)
	for page := 0; next != ""; page++ {
		if opts.MaxPages > 0 && page >= opts.MaxPages {
			break
		}

		var resp OrdersResponse
		if err := c.get(ctx, next, &resp); err != nil {
			return nil, fmt.Errorf("list orders: %w", err)
		}
		all = append(all, resp.Orders...)
		next = resp.Links.next()
	}

	return all, nil
}

// SubmitOrder creates the order and returns its handle.
func (c *Client) SubmitOrder(ctx context.Context, spec *model.OrderSpec) (model.OrderHandle, error) {
	order, err := c.CreateOrder(ctx, spec)
	if err != nil {
		return model.OrderHandle{}, err
	}
	return order.Handle(), nil
}

// OrderStatus queries the current state of an order, preferring its self link.
func (c *Client) OrderStatus(ctx context.Context, handle model.OrderHandle) (model.OrderStatus, error) {
	rawURL := handle.Location
	if rawURL == "" {
		rawURL = c.endpoint(ordersPath+"/"+url.PathEscape(handle.ID), nil)
	}

	order, err := c.getOrderAt(ctx, rawURL, handle.ID)
	if err != nil {
		return model.OrderStatus{}, err
	}

	return model.OrderStatus{
		State:   model.OrderState(order.State),
		Results: order.Links.Results,
	}, nil
}
