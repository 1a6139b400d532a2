package bot

import (
	"strconv"
	"strings"

	"github.com/ziad784/whatsapp-bot2/internal/models"
)

// Rate holds per-page prices in minor currency units.
type Rate struct {
	BW    int64
	Color int64
}

// PricingTable maps each paper size to its per-page rates.
type PricingTable map[models.PaperSize]Rate

// DefaultPricing is the shop's current price list.
var DefaultPricing = PricingTable{
	models.SizeA4: {BW: 100, Color: 200},
	models.SizeA3: {BW: 200, Color: 400},
}

// PerPage returns the per-page rate for the given options. Unknown sizes
// fall back to the A4 rate.
func (p PricingTable) PerPage(color bool, size models.PaperSize) int64 {
	rate, ok := p[size]
	if !ok {
		rate = p[models.SizeA4]
	}
	if color {
		return rate.Color
	}
	return rate.BW
}

// Cost is pages x copies x per-page rate.
func (p PricingTable) Cost(pages, copies int, color bool, size models.PaperSize) int64 {
	return int64(pages) * int64(copies) * p.PerPage(color, size)
}

// ParsePageRange counts the pages a range expression covers: "a-b" spans
// b-a+1 pages when both ends parse and b >= a, anything else counts as one
// page. "all" is resolved against the document before reaching here.
func ParsePageRange(pages string) int {
	pages = strings.TrimSpace(pages)
	if start, end, ok := strings.Cut(pages, "-"); ok {
		a, errA := strconv.Atoi(strings.TrimSpace(start))
		b, errB := strconv.Atoi(strings.TrimSpace(end))
		if errA == nil && errB == nil && b >= a {
			return b - a + 1
		}
	}
	return 1
}
