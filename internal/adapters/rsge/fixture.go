package rsge

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// FixtureSource stands in for the real service when it is disabled. It
// returns a small fixed set of waybills so the rest of the pipeline can be
// exercised offline.
type FixtureSource struct{}

func (FixtureSource) SaleWaybills(_ context.Context, start, _ time.Time) ([]Waybill, error) {
	log.Info().Msg("fixture source: returning sample sale waybills")
	date := start.Format("2006-01-02")
	return []Waybill{
		{"ID": "wb1", "BUYER_TIN": "999999999", "BUYER_NAME": "Sample Buyer One", "STATUS": "1", "CREATE_DATE": date},
		{"ID": "wb2", "BUYER_TIN": "888888888", "BUYER_NAME": "Sample Buyer Two", "STATUS": "1", "CREATE_DATE": date},
	}, nil
}

func (FixtureSource) BuyerWaybills(_ context.Context, start, _ time.Time) ([]Waybill, error) {
	log.Info().Msg("fixture source: returning sample buyer waybills")
	date := start.Format("2006-01-02")
	return []Waybill{
		{"ID": "wb3", "SELLER_TIN": "777777777", "SELLER_NAME": "Sample Supplier", "STATUS": "1", "CREATE_DATE": date},
	}, nil
}
