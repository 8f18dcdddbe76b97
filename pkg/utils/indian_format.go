// Package utils provides symbol, time and number formatting helpers shared by
// the retrieval layer and its presentation adapters.
package utils

import (
	"fmt"

	"github.com/seenimoa/niftypulse/pkg/models"
)

// FormatPrice renders a price or change with two decimals, "-" when unavailable.
func FormatPrice(d models.Decimal) string {
	return d.Format(2)
}

// FormatPct renders a percentage as "1.96%", "-" when unavailable.
func FormatPct(d models.Decimal) string {
	if !d.Valid {
		return "-"
	}
	return d.Format(2) + "%"
}

// FormatVolume formats volume in human-readable Indian units.
// e.g., 1500000 → "15.00 L", 25000000 → "2.50 Cr"
func FormatVolume(volume *int64) string {
	if volume == nil {
		return "-"
	}
	v := float64(*volume)
	switch {
	case v >= 1e7:
		return fmt.Sprintf("%.2f Cr", v/1e7)
	case v >= 1e5:
		return fmt.Sprintf("%.2f L", v/1e5)
	case v >= 1e3:
		return fmt.Sprintf("%.2f K", v/1e3)
	default:
		return fmt.Sprintf("%d", *volume)
	}
}
