package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/viktsys/tt2ingest/database"
	"github.com/viktsys/tt2ingest/ingest"
	"github.com/viktsys/tt2ingest/source"
	"github.com/viktsys/tt2ingest/source/listingtrack"
	"github.com/viktsys/tt2ingest/source/nasdaq"
	"github.com/viktsys/tt2ingest/source/sp500"
	"github.com/viktsys/tt2ingest/source/static"
	"github.com/viktsys/tt2ingest/source/yahoo"
	"github.com/viktsys/tt2ingest/universe"
)

// openStore connects and migrates, like every command that touches data.
func openStore(ctx context.Context) (*database.Store, error) {
	log.Info("initializing database", zap.String("driver", cfg.DB.Driver))
	store, err := database.Open(cfg.DB, cfg.Ingest.BatchSize, log)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func newPipeline(store *database.Store) *ingest.Pipeline {
	src := cfg.Source
	client := source.NewClient(src.Timeout, src.UserAgent)
	yf := yahoo.New(client, src.YahooBaseURL, src.HistoryRange)

	sources := ingest.Sources{
		Assets: map[ingest.Kind]source.AssetSource{
			ingest.KindSP500:    sp500.New(client, src.SP500URL),
			ingest.KindIPOs:     static.IPOs,
			ingest.KindSPACs:    static.SPACs,
			ingest.KindListings: listingtrack.New(client, src.ListingTrackURL),
			ingest.KindMovers:   yf,
		},
		History:  yf,
		Analyst:  yf,
		Insiders: yf,
		Earnings: nasdaq.New(client, src.NasdaqBaseURL),
	}

	exec := ingest.NewExecutor(cfg.Ingest.WorkerCount, ingest.RetryFromConfig(cfg.Retry), log)
	return ingest.NewPipeline(store, universe.NewResolver(store), sources, exec, ingest.Options{
		EarningsDays: src.EarningsDays,
		Logger:       log,
	})
}

func parseKinds(names []string, all bool) ([]ingest.Kind, error) {
	if all {
		return ingest.AllKinds, nil
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("name at least one kind or use --all (kinds: %v)", ingest.AllKinds)
	}
	return ingest.ParseKinds(names)
}
