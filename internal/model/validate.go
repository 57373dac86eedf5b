package model

import (
	"errors"
	"fmt"
)

// ErrInvalidSpec is wrapped by every OrderSpec validation failure.
var ErrInvalidSpec = errors.New("invalid order spec")

// Validate checks the constraints an order must satisfy before submission.
func (s *OrderSpec) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil spec", ErrInvalidSpec)
	}
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidSpec)
	}
	if len(s.Products) == 0 {
		return fmt.Errorf("%w: at least one product is required", ErrInvalidSpec)
	}
	for i, p := range s.Products {
		if p.MosaicName == "" {
			return fmt.Errorf("%w: products[%d].mosaic_name is required", ErrInvalidSpec, i)
		}
		hasGeom := p.Geometry != nil
		hasQuads := len(p.QuadIDs) > 0
		if hasGeom == hasQuads {
			return fmt.Errorf("%w: products[%d] needs exactly one of geometry or quad_ids", ErrInvalidSpec, i)
		}
	}
	for i, t := range s.Tools {
		if t.count() != 1 {
			return fmt.Errorf("%w: tools[%d] must set exactly one tool", ErrInvalidSpec, i)
		}
		if t.Reproject != nil && t.Reproject.Projection == "" {
			return fmt.Errorf("%w: tools[%d].reproject.projection is required", ErrInvalidSpec, i)
		}
	}
	if s.Delivery.IsEmpty() {
		return fmt.Errorf("%w: delivery is required", ErrInvalidSpec)
	}
	return nil
}
