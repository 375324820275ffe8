package agent

import (
	"path/filepath"

	"github.com/pytrel-systems/dragon/config"
	"github.com/pytrel-systems/dragon/internal/action"
	"github.com/pytrel-systems/dragon/internal/channel"
	"github.com/pytrel-systems/dragon/internal/engage"
	"github.com/pytrel-systems/dragon/internal/freshness"
	"github.com/pytrel-systems/dragon/internal/ledger"
	"github.com/pytrel-systems/dragon/internal/planner"
	"github.com/pytrel-systems/dragon/internal/queue"
	"github.com/pytrel-systems/dragon/internal/ratelimit"
	"github.com/pytrel-systems/dragon/internal/state"
	"github.com/pytrel-systems/dragon/internal/telemetry"
)

// Build constructs a fully wired agent from configuration: stores, ledger,
// planner, limiter, metrics, channel clients and engager. This is the one
// place that knows credential shape.
func Build(cfg *config.Config) (*Agent, Deps, error) {
	led, err := ledger.New(cfg.Runtime.Dir)
	if err != nil {
		return nil, Deps{}, err
	}

	xHTTP := channel.NewHTTPClient(cfg.Channels.X.Timeout, 2, 0)
	xClient, err := channel.NewXClient(cfg.Channels.X.BaseURL, cfg.Channels.X.AccessToken, xHTTP)
	if err != nil {
		return nil, Deps{}, err
	}
	mbHTTP := channel.NewHTTPClient(cfg.Channels.Moltbook.Timeout, 2, 0)
	mbClient, err := channel.NewMoltbookClient(cfg.Channels.Moltbook.BaseURL, cfg.Channels.Moltbook.AppKey, mbHTTP)
	if err != nil {
		return nil, Deps{}, err
	}

	metrics := telemetry.New()
	q := queue.New(cfg.Runtime.Dir)
	engager := engage.New(q, led,
		map[action.Channel]channel.Sender{
			action.ChannelX:        xClient,
			action.ChannelMoltbook: mbClient,
		},
		metrics,
		engage.Config{
			MaxPerRun:          cfg.Engage.MaxPerRun,
			Cooldown:           cfg.Engage.Cooldown,
			RequireFreshnessOK: cfg.Freshness.RequireOK,
		})

	statusFile := cfg.Freshness.StatusFile
	if statusFile == "" {
		statusFile = filepath.Join(cfg.Runtime.Dir, "status.json")
	}

	deps := Deps{
		States: state.NewStore(cfg.Runtime.Dir,
			state.WithTTLs(cfg.Plan.ConversationTTL, cfg.Plan.RepliedTTL)),
		Queue:  q,
		Ledger: led,
		Planner: planner.New(planner.Config{
			DailyPostCooldown:    cfg.Plan.DailyPostCooldown,
			MaxRepliesPerRun:     cfg.Plan.MaxRepliesPerRun,
			MaxInitiationsPerRun: cfg.Plan.MaxInitiationsPerRun,
			MinFollowerCount:     cfg.Plan.MinFollowerCount,
			ConversationCap:      cfg.Plan.ConversationCap,
			ConversationCooldown: cfg.Plan.ConversationCooldown,
		}),
		Limiter: ratelimit.New(cfg.RateLimit.MaxPerWindow, cfg.RateLimit.Window),
		Engager: engager,
		Status:  freshness.FileSource{Path: statusFile},
		Inbound: xClient,
		Metrics: metrics,
	}
	return New(cfg, deps), deps, nil
}
