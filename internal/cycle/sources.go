package cycle

import (
	"fmt"
	"log/slog"
	"time"

	"threadwatch/internal/config"
	"threadwatch/internal/forum"
	"threadwatch/internal/logging"
	"threadwatch/internal/services"
	"threadwatch/internal/sources"
	"threadwatch/internal/sources/discourse"
	"threadwatch/internal/sources/reddit"
)

// Source pairs an adapter with the fixed category stamped on its posts.
// An empty Category sends posts through the classifier.
type Source struct {
	Adapter  sources.Adapter
	Category forum.Category
}

// BuildSources constructs adapters for every enabled configured source.
func BuildSources(cfg *config.Config, recorder sources.Recorder, logger *slog.Logger) ([]Source, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	enabled := cfg.EnabledSources()
	out := make([]Source, 0, len(enabled))
	for _, src := range enabled {
		fetcher := sources.NewFetcher(src.Name, cfg.RequestTimeout(),
			sources.WithRecorder(recorder),
			sources.WithUserAgents(cfg.HTTP.UserAgents),
			sources.WithLogger(logger),
		)
		var adapter sources.Adapter
		switch src.Kind {
		case config.SourceKindReddit:
			adapter = reddit.New(reddit.Config{
				Name:      src.Name,
				BaseURL:   src.BaseURL,
				Subreddit: src.Forum,
				Limit:     src.Limit,
				MoreDelay: time.Duration(src.DetailDelayMilli) * time.Millisecond,
			}, fetcher, reddit.WithLogger(logger))
		case config.SourceKindDiscourse:
			d, err := discourse.New(discourse.Config{
				Name:        src.Name,
				BaseURL:     src.BaseURL,
				Category:    src.Forum,
				Limit:       src.Limit,
				DetailLimit: src.DetailLimit,
				DetailDelay: time.Duration(src.DetailDelayMilli) * time.Millisecond,
			}, fetcher, discourse.WithLogger(logger))
			if err != nil {
				return nil, err
			}
			adapter = d
		default:
			return nil, services.Wrap(services.ErrConfiguration, "cycle", "build sources", fmt.Sprintf("source %q has unsupported kind %q", src.Name, src.Kind), nil)
		}
		out = append(out, Source{Adapter: adapter, Category: forum.ParseCategory(src.Category)})
	}
	return out, nil
}
