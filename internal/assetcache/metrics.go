package assetcache

import (
	"context"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var keyCache = tag.MustNewKey("cache")

// Measures recorded by the worker, tagged with the cache name.
var (
	MeasureHits               = stats.Int64("medtrack/assetcache/hits", "Requests served from the cache", stats.UnitDimensionless)
	MeasureMisses             = stats.Int64("medtrack/assetcache/misses", "Requests not found in the cache", stats.UnitDimensionless)
	MeasureStores             = stats.Int64("medtrack/assetcache/stores", "Responses written to the cache", stats.UnitDimensionless)
	MeasureNetworkFailures    = stats.Int64("medtrack/assetcache/network_failures", "Network fetches that failed", stats.UnitDimensionless)
	MeasureNavigationFallback = stats.Int64("medtrack/assetcache/navigation_fallbacks", "Navigations answered with the cached shell", stats.UnitDimensionless)
	MeasurePurged             = stats.Int64("medtrack/assetcache/purged", "Stale containers deleted on activation", stats.UnitDimensionless)
)

// Views counts every measure by cache name.
var Views = []*view.View{
	countView(MeasureHits),
	countView(MeasureMisses),
	countView(MeasureStores),
	countView(MeasureNetworkFailures),
	countView(MeasureNavigationFallback),
	countView(MeasurePurged),
}

func countView(m *stats.Int64Measure) *view.View {
	return &view.View{
		Name:        m.Name(),
		Description: m.Description(),
		TagKeys:     []tag.Key{keyCache},
		Measure:     m,
		Aggregation: view.Count(),
	}
}

// RegisterViews registers Views with the default opencensus exporter.
func RegisterViews() error {
	return view.Register(Views...)
}

func record(ctx context.Context, cache string, m *stats.Int64Measure) {
	stats.RecordWithOptions(ctx,
		stats.WithTags(tag.Upsert(keyCache, cache)),
		stats.WithMeasurements(m.M(1)))
}
