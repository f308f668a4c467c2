package container

import (
	"context"
	"fmt"
	"net/http"

	"github.com/toringerhartCAMM/QC/internal/checks"
	"github.com/toringerhartCAMM/QC/internal/config"
	"github.com/toringerhartCAMM/QC/internal/engine"
	"github.com/toringerhartCAMM/QC/internal/imagestore"
	"github.com/toringerhartCAMM/QC/internal/journal"
	"github.com/toringerhartCAMM/QC/internal/query"
	"github.com/toringerhartCAMM/QC/internal/storage"
	"github.com/toringerhartCAMM/QC/internal/transport"
)

// Container holds all application dependencies
type Container struct {
	config   *config.Config
	client   *imagestore.Client
	planes   storage.PlaneSource
	journal  *journal.Journal
	registry *checks.Registry
	engine   *engine.Engine
	builder  *query.Builder
	handler  http.Handler
}

// New builds the dependency graph and establishes the server session.
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	timeout, err := cfg.ServerRequestTimeout()
	if err != nil {
		return nil, fmt.Errorf("invalid server timeout: %w", err)
	}

	client, err := imagestore.NewClient(cfg.Server.Host, cfg.Server.Port,
		cfg.Server.Username, cfg.Server.Password, timeout)
	if err != nil {
		return nil, err
	}
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}

	planes, err := storage.NewPlaneSource(cfg, client)
	if err != nil {
		return nil, err
	}

	jrnl, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return nil, err
	}

	registry := checks.NewRegistry(planes, client.UpdateService(), cfg.Checks.SaturationThreshold)
	eng := engine.New(client, jrnl, cfg.Checks.ContinueOnError)
	builder := query.NewBuilder(client.QueryService())
	handler := transport.NewHandler(eng, registry, builder, client.RoiService(), cfg)

	return &Container{
		config:   cfg,
		client:   client,
		planes:   planes,
		journal:  jrnl,
		registry: registry,
		engine:   eng,
		builder:  builder,
		handler:  handler,
	}, nil
}

// Close releases local resources. The server session simply expires.
func (c *Container) Close() error {
	return c.journal.Close()
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Engine returns the quality-check engine
func (c *Container) Engine() *engine.Engine {
	return c.engine
}

// Registry returns the check registry
func (c *Container) Registry() *checks.Registry {
	return c.registry
}

// Builder returns the search query builder
func (c *Container) Builder() *query.Builder {
	return c.builder
}

// Journal returns the local run journal
func (c *Container) Journal() *journal.Journal {
	return c.journal
}
