package preflight

import (
	"context"

	"shipflow/internal/config"
	"shipflow/internal/database"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

// RunAll executes every preflight check for the given config. db may be nil
// when the database could not be opened; the database check then fails.
func RunAll(ctx context.Context, cfg *config.Config, db *database.DB) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDiskSpace("Data volume", cfg.Paths.DataDir, MinFreeBytes),
		CheckDatabase(ctx, db),
		CheckCatalog(cfg.Catalog.Path),
	}
	if cfg.Locks.Backend == config.LockBackendFile {
		results = append(results, CheckDirectoryAccess("Lock directory", cfg.Locks.Dir))
	}

	timeout := serviceTimeout(cfg)
	results = append(results,
		CheckService(ctx, "Order catalog", cfg.Services.CatalogURL, "", timeout),
		CheckService(ctx, "Carrier rates", cfg.Services.RatesURL, "", timeout),
		CheckService(ctx, "Picking sessions", cfg.Services.SessionsURL, "", timeout),
		CheckService(ctx, "Carrier system", cfg.Services.CarrierURL, cfg.Services.CarrierAPIKey, timeout),
	)
	return results
}
