package config

import (
	"fmt"

	"github.com/aliskhannn/image-storage/internal/processor"
)

// Policy converts the domain settings into a transformation policy.
func (d Domain) Policy() (processor.Policy, error) {
	format, err := processor.ParseFormat(d.Format)
	if err != nil {
		return processor.Policy{}, fmt.Errorf("domain %s: %w", d.Name, err)
	}

	filter, err := processor.ParseFilter(d.Filter)
	if err != nil {
		return processor.Policy{}, fmt.Errorf("domain %s: %w", d.Name, err)
	}

	p := processor.Policy{Format: format, Filter: filter}

	switch {
	case d.Width == 0 && d.Height == 0:
	case d.Width > 0 && d.Height > 0:
		p.Size = &processor.Size{Width: d.Width, Height: d.Height}
	default:
		return processor.Policy{}, fmt.Errorf("domain %s: width and height must both be set, got %dx%d", d.Name, d.Width, d.Height)
	}

	return p, nil
}
