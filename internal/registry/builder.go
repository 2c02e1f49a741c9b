// Package registry assembles the published catalog of approved applications.
// The catalog is rebuilt wholesale from the approved-manifest set and
// monotonically versioned; consumers read immutable snapshots.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"manifestgate/internal/manifest"
)

// ApprovedSource lists the manifests currently admitted to the platform.
type ApprovedSource interface {
	ListApproved(ctx context.Context) ([]manifest.Manifest, error)
}

// AppMeta is the per-application catalog record.
type AppMeta struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Entry       string   `json:"entry"`
	Description string   `json:"description,omitempty"`
	Icon        string   `json:"icon,omitempty"`
	Category    string   `json:"category,omitempty"`
	Permissions []string `json:"permissions"`
}

// EndpointMeta records one callable endpoint and its owning app.
type EndpointMeta struct {
	App         string            `json:"app"`
	Fn          string            `json:"fn"`
	Args        map[string]string `json:"args,omitempty"`
	Scopes      []string          `json:"scopes,omitempty"`
	Description string            `json:"description,omitempty"`
}

// RouteMeta records one navigable route and its owning app.
type RouteMeta struct {
	App  string `json:"app"`
	Href string `json:"href"`
}

// BuiltRegistry is one immutable catalog snapshot.
type BuiltRegistry struct {
	Version   int64                   `json:"version"`
	BuildTime time.Time               `json:"buildTime"`
	Apps      map[string]AppMeta      `json:"apps"`
	Endpoints map[string]EndpointMeta `json:"endpoints"`
	Routes    map[string]RouteMeta    `json:"routes"`
}

// Builder rebuilds catalogs on demand. Safe for concurrent use; a rebuild
// racing a new approval simply yields a snapshot without that manifest, and
// the approval's own rebuild supersedes it.
type Builder struct {
	source ApprovedSource
	logger *slog.Logger

	mu      sync.Mutex
	version int64
	current *BuiltRegistry
}

// NewBuilder wires the builder to the approved-manifest source.
func NewBuilder(source ApprovedSource, logger *slog.Logger) *Builder {
	return &Builder{source: source, logger: logger}
}

// Current returns the latest snapshot, building the first one on demand.
func (b *Builder) Current(ctx context.Context) (*BuiltRegistry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return b.rebuildLocked(ctx)
	}
	return b.current, nil
}

// Rebuild forces a fresh snapshot and bumps the catalog version.
func (b *Builder) Rebuild(ctx context.Context) (*BuiltRegistry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rebuildLocked(ctx)
}

func (b *Builder) rebuildLocked(ctx context.Context) (*BuiltRegistry, error) {
	manifests, err := b.source.ListApproved(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry: list approved: %w", err)
	}

	// Deterministic assembly order keeps collision resolution stable.
	sort.Slice(manifests, func(i, j int) bool { return manifests[i].ID < manifests[j].ID })

	b.version++
	built := &BuiltRegistry{
		Version:   b.version,
		BuildTime: time.Now().UTC(),
		Apps:      make(map[string]AppMeta, len(manifests)),
		Endpoints: map[string]EndpointMeta{},
		Routes:    map[string]RouteMeta{},
	}

	for _, m := range manifests {
		built.Apps[m.ID] = AppMeta{
			ID:          m.ID,
			Name:        m.Name,
			Version:     m.Version,
			Entry:       m.Entry,
			Description: m.Description,
			Icon:        m.Icon,
			Category:    m.Category,
			Permissions: append([]string{}, m.Permissions...),
		}
		for key, ep := range m.Endpoints {
			if owner, taken := built.Endpoints[key]; taken {
				b.logger.WarnContext(ctx, "endpoint key collision",
					"key", key, "kept", owner.App, "dropped", m.ID)
				continue
			}
			built.Endpoints[key] = EndpointMeta{
				App:         m.ID,
				Fn:          ep.Fn,
				Args:        ep.Args,
				Scopes:      append([]string{}, ep.Scopes...),
				Description: ep.Description,
			}
		}
		for key, href := range m.Routes {
			if owner, taken := built.Routes[key]; taken {
				b.logger.WarnContext(ctx, "route key collision",
					"key", key, "kept", owner.App, "dropped", m.ID)
				continue
			}
			built.Routes[key] = RouteMeta{App: m.ID, Href: href}
		}
	}

	b.current = built
	b.logger.InfoContext(ctx, "registry rebuilt",
		"version", built.Version, "apps", len(built.Apps),
		"endpoints", len(built.Endpoints), "routes", len(built.Routes))
	return built, nil
}
