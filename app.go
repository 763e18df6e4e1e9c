package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"

	"github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/agents/investigator"
	"github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/agents/procurement"
	"github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/agents/supervisor"
	contractx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/contract"
	llmx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/llm"
	"github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/memory"
	"github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/negotiation"
	"github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/reasoning"
	statex "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/state"
	toolx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/tool"
	configx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/pkg/config"
	dbx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/pkg/db"
	qstashx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/pkg/qstash"
)

const (
	storeSQL     = "sql"
	storeUpstash = "upstash"
	storeMemory  = "memory"
)

// AppConfig is loaded with the SENTINELL prefix.
type AppConfig struct {
	WorkflowStore string `split_words:"true" default:"sql"`
	// RemoteSuppliers lists ID=URL pairs of suppliers served by another
	// process. The in-process mock supplier is always registered.
	RemoteSuppliers []string `split_words:"true"`
	SeedInventory   bool     `split_words:"true" default:"true"`
}

func (c *AppConfig) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.WorkflowStore)) {
	case storeSQL, storeUpstash, storeMemory:
	default:
		return fmt.Errorf("unknown workflow store %q", c.WorkflowStore)
	}
	_, err := parseRemoteSuppliers(c.RemoteSuppliers)
	return err
}

type app struct {
	db          *bun.DB
	gateway     *toolx.Gateway
	rates       toolx.RateSource
	exchange    *negotiation.Exchange
	memory      contractx.MemoryBank
	supervisor  *supervisor.Supervisor
	procurement *procurement.Service
}

func (a *app) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			log.Warn().Err(err).Msg("close database")
		}
	}
}

// buildApp wires every component from the environment.
func buildApp(ctx context.Context) (*app, error) {
	appCfg, err := configx.New[AppConfig]("SENTINELL")
	if err != nil {
		return nil, err
	}
	dbCfg, err := configx.New[dbx.Config]("DB")
	if err != nil {
		return nil, err
	}
	db, err := dbx.Open(ctx, *dbCfg)
	if err != nil {
		return nil, err
	}
	a := &app{db: db}
	if err := a.wire(ctx, appCfg); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context, appCfg *AppConfig) error {
	bank, err := memory.NewBunBank(ctx, a.db)
	if err != nil {
		return err
	}
	a.memory = bank

	inventory, err := toolx.NewBunInventory(ctx, a.db)
	if err != nil {
		return err
	}
	if appCfg.SeedInventory {
		if err := inventory.Seed(ctx, toolx.SeedInventory()); err != nil {
			return err
		}
	}

	toolCfg, err := configx.New[toolx.Config]("TOOL")
	if err != nil {
		return err
	}
	a.rates = toolx.DefaultRates()
	if url := strings.TrimSpace(toolCfg.RatesURL); url != "" {
		if a.rates, err = toolx.NewHTTPRates(url, &http.Client{Timeout: toolCfg.QueryTimeout}); err != nil {
			return err
		}
	}

	llmCfg, err := configx.New[llmx.Config]("OPENROUTER")
	if err != nil {
		return err
	}
	reasoner, err := reasoning.NewReasoner(ctx, *llmCfg)
	if err != nil {
		return err
	}
	gwOpts := []toolx.GatewayOption{
		toolx.WithNews(toolx.NewGoldenNews()),
		toolx.WithInventory(inventory),
		toolx.WithRates(a.rates),
	}
	summarizer, err := reasoning.NewSummarizer(*llmCfg)
	if err != nil {
		return err
	}
	if summarizer != nil {
		gwOpts = append(gwOpts, toolx.WithSummarizer(summarizer))
	}
	if a.gateway, err = toolx.NewGateway(*toolCfg, gwOpts...); err != nil {
		return err
	}

	invCfg, err := configx.New[investigator.Config]("INVESTIGATOR")
	if err != nil {
		return err
	}
	inv, err := investigator.New(reasoner, a.gateway, *invCfg)
	if err != nil {
		return err
	}
	supCfg, err := configx.New[supervisor.Config]("SUPERVISOR")
	if err != nil {
		return err
	}
	if a.supervisor, err = supervisor.New(inv, *supCfg); err != nil {
		return err
	}

	requester, err := a.buildRequester(appCfg)
	if err != nil {
		return err
	}
	store, err := buildStore(ctx, appCfg.WorkflowStore, a.db)
	if err != nil {
		return err
	}

	procCfg, err := configx.New[procurement.Config]("PROCUREMENT")
	if err != nil {
		return err
	}
	if !strings.EqualFold(procCfg.Currency, requester.CanonicalCurrency()) {
		return fmt.Errorf("procurement currency %s differs from negotiation currency %s", procCfg.Currency, requester.CanonicalCurrency())
	}
	var opts []procurement.Option
	if dest := strings.TrimSpace(procCfg.NotifyDestination); dest != "" {
		qCfg, err := configx.New[qstashx.Config]("QSTASH")
		if err != nil {
			return err
		}
		client, err := qstashx.NewClient(*qCfg)
		if err != nil {
			return err
		}
		notifier, err := procurement.NewQStashNotifier(client, dest)
		if err != nil {
			return err
		}
		opts = append(opts, procurement.WithNotifier(notifier))
	}
	a.procurement, err = procurement.New(ctx, store, bank, requester, *procCfg, opts...)
	return err
}

func (a *app) buildRequester(appCfg *AppConfig) (*negotiation.Requester, error) {
	exCfg, err := configx.New[negotiation.ExchangeConfig]("SUPPLIER")
	if err != nil {
		return nil, err
	}
	if a.exchange, err = negotiation.NewExchange(*exCfg); err != nil {
		return nil, err
	}
	dir := negotiation.NewDirectory()
	if err := dir.Register(a.exchange); err != nil {
		return nil, err
	}

	remotes, err := parseRemoteSuppliers(appCfg.RemoteSuppliers)
	if err != nil {
		return nil, err
	}
	for id, url := range remotes {
		s, err := negotiation.NewHTTPSupplier(id, url, nil)
		if err != nil {
			return nil, err
		}
		if err := dir.Register(s); err != nil {
			return nil, err
		}
	}

	reqCfg, err := configx.New[negotiation.RequesterConfig]("NEGOTIATION")
	if err != nil {
		return nil, err
	}
	return negotiation.NewRequester(dir, a.gateway, *reqCfg)
}

func buildStore(ctx context.Context, kind string, db *bun.DB) (statex.Store, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case storeMemory:
		return statex.NewMemoryStore(), nil
	case storeUpstash:
		cfg, err := configx.New[statex.UpstashRedisConfig]("UPSTASH_REDIS")
		if err != nil {
			return nil, err
		}
		return statex.NewUpstashRedisStore(*cfg)
	default:
		return statex.NewBunStore(ctx, db)
	}
}

func parseRemoteSuppliers(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		id, url, ok := strings.Cut(pair, "=")
		id, url = strings.TrimSpace(id), strings.TrimSpace(url)
		if !ok || id == "" || url == "" {
			return nil, fmt.Errorf("remote supplier %q must be ID=URL", pair)
		}
		if _, dup := out[id]; dup {
			return nil, errors.New("duplicate remote supplier " + id)
		}
		out[id] = url
	}
	return out, nil
}
