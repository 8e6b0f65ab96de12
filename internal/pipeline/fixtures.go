package pipeline

import (
	"time"

	"token-screener/internal/domain"
	"token-screener/internal/sources"
	"token-screener/internal/window"
)

func fptr(v float64) *float64 { return &v }
func bptr(v bool) *bool       { return &v }
func sptr(v string) *string   { return &v }

// FixtureRecords returns a deterministic demo set relative to ref: three
// records observed inside the previous local day and one observed on ref's day.
func FixtureRecords(ref time.Time, loc *time.Location) []*domain.CandidateRecord {
	w := window.PreviousDay(ref, loc)
	inside := w.Start.Add(10 * time.Hour)
	high := domain.EngagementHigh

	return []*domain.CandidateRecord{
		{
			Source:          domain.SourceStatic,
			Symbol:          "SOLID",
			Name:            "Solid Protocol",
			Chain:           sptr("solana"),
			Identifier:      sptr("fixture-solid"),
			ObservedAt:      inside,
			Price:           fptr(1.25),
			Volume24h:       fptr(4_000_000),
			MarketCap:       fptr(80_000_000),
			DexLiquidityUSD: fptr(900_000),
			Signals: domain.Signals{
				HasMVP:             bptr(true),
				HasAudit:           bptr(true),
				IsTierExchange:     bptr(true),
				TeamPublic:         bptr(true),
				InvestorsPresent:   bptr(true),
				HasRoadmap:         bptr(true),
				HasVesting:         bptr(true),
				Top10HolderPct:     fptr(35),
				SingleHolderMaxPct: fptr(8),
				EngagementQuality:  &high,
			},
		},
		{
			Source:     domain.SourceStatic,
			Symbol:     "DRKT",
			Name:       "DogeRocket",
			Identifier: sptr("fixture-dogerocket"),
			ObservedAt: inside.Add(time.Hour),
			Price:      fptr(0.003),
			Volume24h:  fptr(2_000_000),
			MarketCap:  fptr(6_000_000),
		},
		{
			Source:     domain.SourceStatic,
			Symbol:     "NTH",
			Name:       "Nothing Token",
			Identifier: sptr("fixture-nothing"),
			ObservedAt: inside.Add(2 * time.Hour),
			Price:      fptr(0.5),
			Volume24h:  fptr(5_000),
			MarketCap:  fptr(40_000),
		},
		{
			Source:     domain.SourceStatic,
			Symbol:     "LATE",
			Name:       "Late Listing",
			Identifier: sptr("fixture-late"),
			ObservedAt: w.End.Add(time.Minute),
			Price:      fptr(2),
			Volume24h:  fptr(20_000_000),
		},
	}
}

// FixtureAdapter serves FixtureRecords as a single static page.
func FixtureAdapter(ref time.Time, loc *time.Location) sources.Adapter {
	return sources.NewStatic(domain.SourceStatic, FixtureRecords(ref, loc))
}
