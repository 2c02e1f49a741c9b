package registry_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"manifestgate/internal/manifest"
	"manifestgate/internal/registry"
)

type fakeApproved struct {
	mu        sync.Mutex
	manifests []manifest.Manifest
}

func (f *fakeApproved) ListApproved(_ context.Context) ([]manifest.Manifest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]manifest.Manifest{}, f.manifests...), nil
}

func (f *fakeApproved) add(m manifest.Manifest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.manifests = append(f.manifests, m)
}

type BuilderSuite struct {
	suite.Suite
	source  *fakeApproved
	builder *registry.Builder
}

func TestBuilderSuite(t *testing.T) {
	suite.Run(t, new(BuilderSuite))
}

func (s *BuilderSuite) SetupTest() {
	s.source = &fakeApproved{}
	s.source.add(manifest.Manifest{
		ID:          "app_notes",
		Name:        "Notes",
		Version:     "1.0.0",
		Entry:       "/apps/notes",
		Permissions: []string{"storage"},
		Endpoints: map[string]manifest.Endpoint{
			"notes.create": {Fn: "createNote", Scopes: []string{"storage"}},
		},
		Routes: map[string]string{"notes.home": "/apps/notes"},
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.builder = registry.NewBuilder(s.source, logger)
}

func (s *BuilderSuite) TestBuild() {
	ctx := context.Background()

	s.Run("first access builds on demand", func() {
		built, err := s.builder.Current(ctx)

		s.Require().NoError(err)
		s.EqualValues(1, built.Version)
		s.Contains(built.Apps, "app_notes")
		s.Equal("app_notes", built.Endpoints["notes.create"].App)
		s.Equal("/apps/notes", built.Routes["notes.home"].Href)
	})

	s.Run("current reuses the snapshot", func() {
		first, err := s.builder.Current(ctx)
		s.Require().NoError(err)
		second, err := s.builder.Current(ctx)
		s.Require().NoError(err)

		s.Equal(first.Version, second.Version)
	})

	s.Run("rebuild bumps the version and picks up approvals", func() {
		before, err := s.builder.Current(ctx)
		s.Require().NoError(err)

		s.source.add(manifest.Manifest{
			ID: "app_todo", Name: "Todo", Version: "2.0.0", Entry: "/apps/todo",
			Endpoints: map[string]manifest.Endpoint{"todo.add": {Fn: "addTodo"}},
		})
		after, err := s.builder.Rebuild(ctx)
		s.Require().NoError(err)

		s.Greater(after.Version, before.Version)
		s.Contains(after.Apps, "app_todo")
		s.Contains(after.Endpoints, "todo.add")
	})

	s.Run("endpoint key collisions keep the first owner", func() {
		s.source.add(manifest.Manifest{
			ID: "app_clone", Name: "Clone", Version: "1.0.0", Entry: "/apps/clone",
			Endpoints: map[string]manifest.Endpoint{"notes.create": {Fn: "stealCreate"}},
		})

		built, err := s.builder.Rebuild(ctx)
		s.Require().NoError(err)

		s.Equal("app_notes", built.Endpoints["notes.create"].App)
	})

	s.Run("concurrent rebuilds stay monotonic", func() {
		start, err := s.builder.Current(ctx)
		s.Require().NoError(err)

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.builder.Rebuild(ctx)
				s.NoError(err)
			}()
		}
		wg.Wait()

		end, err := s.builder.Current(ctx)
		s.Require().NoError(err)
		s.Equal(start.Version+10, end.Version)
	})
}
