package pipeline

import (
	"context"
	"fmt"
	"log"

	"rental-tracker/config"
	"rental-tracker/db"
	"rental-tracker/filter"
	"rental-tracker/models"
	"rental-tracker/query"
)

// GlobalRules normalizes the filters that apply to every broker: those from
// the config file followed by the store's filter table, if it has one.
func GlobalRules(ctx context.Context, cfg *config.Config, store db.Store) ([]filter.Rule, error) {
	raw := append([]filter.RawRule{}, cfg.Filters...)
	if fs, ok := store.(db.FilterSource); ok {
		stored, err := fs.ListFilterRules(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load stored filters: %w", err)
		}
		raw = append(raw, stored...)
	}

	rules, err := filter.Normalize(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid search filters: %w", err)
	}
	return rules, nil
}

// Brokers returns the configured brokers, with query parameters applied,
// followed by the store's brokers. A URL is only listed once.
func Brokers(ctx context.Context, cfg *config.Config, store db.Store) ([]models.Broker, error) {
	seen := make(map[string]bool)
	var brokers []models.Broker

	for _, b := range cfg.Brokers {
		u, err := query.BuildSearchURL(b.URL, b.Query)
		if err != nil {
			return nil, fmt.Errorf("broker %s: %w", b.Name, err)
		}
		if seen[u] {
			continue
		}
		seen[u] = true
		brokers = append(brokers, models.Broker{Name: b.Name, URL: u})
	}

	if bs, ok := store.(db.BrokerSource); ok {
		stored, err := bs.ListBrokers(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load stored brokers: %w", err)
		}
		for _, b := range stored {
			if seen[b.URL] {
				continue
			}
			seen[b.URL] = true
			brokers = append(brokers, b)
		}
	}

	return brokers, nil
}

// LoadQueries builds the queries for a run. Every broker gets the global
// rules; configured brokers add their own.
func LoadQueries(ctx context.Context, cfg *config.Config, store db.Store) ([]Query, error) {
	global, err := GlobalRules(ctx, cfg, store)
	if err != nil {
		return nil, err
	}
	brokers, err := Brokers(ctx, cfg, store)
	if err != nil {
		return nil, err
	}

	own := make(map[string][]filter.RawRule)
	for _, b := range cfg.Brokers {
		u, _ := query.BuildSearchURL(b.URL, b.Query) // validated by Brokers
		own[u] = append(own[u], b.Filters...)
	}

	queries := make([]Query, 0, len(brokers))
	for _, b := range brokers {
		rules := append([]filter.Rule{}, global...)
		if raw := own[b.URL]; len(raw) > 0 {
			extra, err := filter.Normalize(raw)
			if err != nil {
				return nil, fmt.Errorf("broker %s: invalid filters: %w", b.Name, err)
			}
			rules = append(rules, extra...)
		}
		queries = append(queries, Query{Broker: b, Rules: rules})
	}

	if len(queries) == 0 {
		log.Println("Warning: no brokers configured")
	}
	return queries, nil
}
