// Package selection decides which catalog models a backup run processes.
package selection

import (
	"context"
	"fmt"
	"strings"
	"time"

	"revit-server-backup/internal/logging"
)

// Policy names accepted by Parse
const (
	PolicyAll            = "all"
	PolicyRecentlyEdited = "edited"
	PolicySpecific       = "model"
)

// Catalog is the part of the model catalog a policy needs
type Catalog interface {
	ListAllModels(ctx context.Context) ([]string, error)
	LastEditTime(ctx context.Context, id string) (time.Time, error)
}

// Clock supplies the current time
type Clock func() time.Time

// Policy filters the catalog down to the models to back up. Select returns an
// error only when the catalog listing itself fails.
type Policy interface {
	Name() string
	Select(ctx context.Context, catalog Catalog) ([]string, error)
}

// All selects every model in catalog order
type All struct{}

func (All) Name() string { return PolicyAll }

func (All) Select(ctx context.Context, catalog Catalog) ([]string, error) {
	return catalog.ListAllModels(ctx)
}

// RecentlyEdited selects models whose last edit is strictly newer than Window.
// Models whose history cannot be read are logged and left out.
type RecentlyEdited struct {
	Window time.Duration
	Now    Clock
	Logger *logging.Logger
}

func (p RecentlyEdited) Name() string { return PolicyRecentlyEdited }

func (p RecentlyEdited) Select(ctx context.Context, catalog Catalog) ([]string, error) {
	models, err := catalog.ListAllModels(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	logger := p.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	selected := make([]string, 0, len(models))
	for _, id := range models {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		lastEdit, err := catalog.LastEditTime(ctx, id)
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"model": id,
				"error": err.Error(),
			}).Warn("Could not determine last edit time, model excluded")
			continue
		}

		elapsed := now().Sub(lastEdit)
		if elapsed < p.Window {
			selected = append(selected, id)
			continue
		}
		logger.WithFields(map[string]interface{}{
			"model":     id,
			"last_edit": lastEdit.Format(time.RFC3339),
		}).Debug("Model not edited within window")
	}

	return selected, nil
}

// Specific selects the single model whose identifier matches ID exactly
type Specific struct {
	ID     string
	Logger *logging.Logger
}

func (p Specific) Name() string { return PolicySpecific }

func (p Specific) Select(ctx context.Context, catalog Catalog) ([]string, error) {
	models, err := catalog.ListAllModels(ctx)
	if err != nil {
		return nil, err
	}

	for _, id := range models {
		if id == p.ID {
			return []string{id}, nil
		}
	}

	logger := p.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	logger.WithField("model", p.ID).Warn("Model not found in catalog")
	return []string{}, nil
}

// Parse builds a policy from its CLI name
func Parse(name string, window time.Duration, id string, logger *logging.Logger) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case PolicyAll:
		return All{}, nil
	case PolicyRecentlyEdited:
		if window <= 0 {
			return nil, fmt.Errorf("edit window must be positive, got %s", window)
		}
		return RecentlyEdited{Window: window, Logger: logger}, nil
	case PolicySpecific:
		if id == "" {
			return nil, fmt.Errorf("a model identifier is required for the %q policy", PolicySpecific)
		}
		return Specific{ID: id, Logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown selection policy %q, must be one of: %s, %s, %s",
			name, PolicyAll, PolicyRecentlyEdited, PolicySpecific)
	}
}
