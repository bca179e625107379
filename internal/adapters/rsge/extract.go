package rsge

import (
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// Counterparty is a buyer or seller identified by a normalized tax id.
type Counterparty struct {
	TIN  string
	Name string
}

var (
	buyerTINKeys   = []string{"BUYER_TIN", "BUYER_UN_ID"}
	buyerNameKeys  = []string{"BUYER_NAME", "BUYER"}
	sellerTINKeys  = []string{"SELLER_TIN", "SELLER_UN_ID"}
	sellerNameKeys = []string{"SELLER_NAME", "SELLER"}
)

// ExtractCounterparties turns waybill records into unique (tax id, name)
// pairs. Cancelled waybills (status -1 or -2) contribute nothing. Pairs
// keep first-seen order by tax id; a longer name replaces a shorter one
// for the same id.
func ExtractCounterparties(waybills []Waybill) []Counterparty {
	byTIN := map[string]Counterparty{}
	var order []string
	skipped := 0

	for _, wb := range waybills {
		if isCancelled(wb) {
			skipped++
			continue
		}
		addCounterparty(byTIN, &order, wb, buyerTINKeys, buyerNameKeys)
		addCounterparty(byTIN, &order, wb, sellerTINKeys, sellerNameKeys)
	}

	out := make([]Counterparty, 0, len(order))
	for _, tin := range order {
		out = append(out, byTIN[tin])
	}
	log.Info().Int("waybills", len(waybills)).Int("customers", len(out)).
		Int("skippedCancelled", skipped).Msg("counterparties extracted")
	if len(out) == 0 && len(waybills) > 0 {
		log.Warn().Msg("extraction produced 0 customers; all waybills cancelled or missing tin fields")
	}
	return out
}

func addCounterparty(byTIN map[string]Counterparty, order *[]string, wb Waybill, tinKeys, nameKeys []string) {
	tin := normalizeTIN(firstNonBlank(wb, tinKeys...))
	if tin == "" {
		return
	}
	name := firstNonBlank(wb, nameKeys...)

	existing, seen := byTIN[tin]
	if !seen {
		if name == "" {
			name = tin
		}
		byTIN[tin] = Counterparty{TIN: tin, Name: name}
		*order = append(*order, tin)
		return
	}
	if name != "" && len(name) > len(existing.Name) {
		byTIN[tin] = Counterparty{TIN: tin, Name: name}
	}
}

func isCancelled(wb Waybill) bool {
	s := firstNonBlank(wb, "STATUS")
	if s == "" {
		return false
	}
	status, err := strconv.Atoi(s)
	if err != nil {
		return false
	}
	return status == -1 || status == -2
}

// normalizeTIN strips whitespace, hyphens, dots and underscores.
func normalizeTIN(tin string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '-' || r == '.' || r == '_':
			return -1
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			return -1
		}
		return r
	}, strings.TrimSpace(tin))
}
