package main

import (
	"fmt"

	"go.uber.org/zap"

	"pti/dm/internal/config"
	"pti/dm/internal/directions"
	"pti/dm/internal/journal"
	"pti/dm/internal/manager"
	"pti/dm/internal/ontology"
	"pti/dm/internal/weather"
)

// components are the long-lived pieces shared by all dialogues.
type components struct {
	factory *manager.Factory
	ont     *ontology.Ontology
	journal *journal.Journal
}

func (c *components) Close() error {
	if c.journal != nil {
		return c.journal.Close()
	}
	return nil
}

func loadOntology(cfg config.Config) (*ontology.Ontology, error) {
	if cfg.Ontology.Path == "" {
		return ontology.Default()
	}
	return ontology.Load(cfg.Ontology.Path)
}

func newDirections(cfg config.Config, ont *ontology.Ontology, log *zap.Logger) directions.Finder {
	if cfg.Directions.Provider == config.ProviderFixture {
		return directions.FixtureFinder{Path: cfg.Directions.FixturePath, Location: ont.Location(), Logger: log.Named("directions")}
	}
	return directions.NewGoogleClient(directions.GoogleOptions{
		APIKey:   cfg.Directions.APIKey,
		BaseURL:  cfg.Directions.BaseURL,
		Timeout:  cfg.Directions.Timeout,
		Location: ont.Location(),
		Logger:   log,
	})
}

func build(cfg config.Config, log *zap.Logger, sessionDir string, withJournal bool) (*components, error) {
	ont, err := loadOntology(cfg)
	if err != nil {
		return nil, fmt.Errorf("load ontology: %w", err)
	}
	c := &components{ont: ont}
	opts := manager.Options{
		Dialogue:   cfg.Dialogue,
		Ontology:   ont,
		Directions: newDirections(cfg, ont, log),
		Weather: weather.NewOpenWeatherMap(weather.OpenWeatherMapOptions{
			APIKey:       cfg.Weather.APIKey,
			BaseURL:      cfg.Weather.BaseURL,
			Timeout:      cfg.Weather.Timeout,
			DefaultState: ont.DefaultValue("in_state"),
			Logger:       log,
		}),
		InferDefaultStops: cfg.InferDefaultStops(),
		SessionDir:        sessionDir,
		Logger:            log,
	}
	if withJournal && cfg.Journal.Path != "" {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return nil, err
		}
		c.journal = j
		opts.Journal = j
	}
	c.factory = manager.NewFactory(opts)
	return c, nil
}
