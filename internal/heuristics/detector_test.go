package heuristics_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"

	"manifestgate/internal/heuristics"
	"manifestgate/internal/manifest"
)

type DetectorSuite struct {
	suite.Suite
	detector *heuristics.Detector
}

func TestDetectorSuite(t *testing.T) {
	suite.Run(t, new(DetectorSuite))
}

func (s *DetectorSuite) SetupTest() {
	s.detector = heuristics.New([]string{"app_official"})
}

func (s *DetectorSuite) cleanManifest() *manifest.Manifest {
	return &manifest.Manifest{
		ID:          "app_notes",
		Name:        "Notes",
		Version:     "1.2.0",
		Entry:       "/apps/notes",
		Description: "A note taking app",
		Permissions: []string{"storage"},
		Endpoints: map[string]manifest.Endpoint{
			"notes.create": {Fn: "createNote", Args: map[string]string{"title": "string"}, Scopes: []string{"storage"}},
		},
		Signer:    "acme",
		Signature: "c2ln",
	}
}

func (s *DetectorSuite) TestDetect() {
	s.Run("clean manifest raises no flags", func() {
		res := s.detector.Detect(s.cleanManifest())

		s.Empty(res.Flags)
		s.Empty(res.Warnings)
	})

	s.Run("501 endpoints trigger sprawl", func() {
		m := s.cleanManifest()
		m.Endpoints = map[string]manifest.Endpoint{}
		for i := 0; i < 501; i++ {
			m.Endpoints[fmt.Sprintf("ep.%d", i)] = manifest.Endpoint{Fn: fmt.Sprintf("fn%d", i)}
		}

		res := s.detector.Detect(m)

		s.True(res.Has(heuristics.FlagEndpointSprawl))
	})

	s.Run("500 endpoints do not trigger sprawl", func() {
		m := s.cleanManifest()
		m.Endpoints = map[string]manifest.Endpoint{}
		for i := 0; i < 500; i++ {
			m.Endpoints[fmt.Sprintf("ep.%d", i)] = manifest.Endpoint{Fn: fmt.Sprintf("fn%d", i)}
		}

		res := s.detector.Detect(m)

		s.False(res.Has(heuristics.FlagEndpointSprawl))
	})

	s.Run("eleven arguments trigger large surface", func() {
		m := s.cleanManifest()
		args := map[string]string{}
		for i := 0; i < 11; i++ {
			args[fmt.Sprintf("arg%d", i)] = "string"
		}
		m.Endpoints["wide"] = manifest.Endpoint{Fn: "wide", Args: args}

		res := s.detector.Detect(m)

		s.True(res.Has(heuristics.FlagLargeArgSurface))
	})

	s.Run("object typed argument triggers untyped flag", func() {
		m := s.cleanManifest()
		m.Endpoints["loose"] = manifest.Endpoint{Fn: "loose", Args: map[string]string{"payload": "object"}}

		res := s.detector.Detect(m)

		s.True(res.Has(heuristics.FlagUntypedArgs))
	})

	s.Run("undeclared scope flag", func() {
		m := s.cleanManifest()
		m.Endpoints["geo"] = manifest.Endpoint{Fn: "geo", Scopes: []string{"location"}}

		res := s.detector.Detect(m)

		s.True(res.Has(heuristics.FlagUndeclaredScopes))
	})

	s.Run("unsigned manifest flag", func() {
		m := s.cleanManifest()
		m.Signature = ""

		res := s.detector.Detect(m)

		s.True(res.Has(heuristics.FlagUnsignedManifest))
	})

	s.Run("trust implying name flags spoofed identity", func() {
		m := s.cleanManifest()
		m.Name = "Official Wallet"

		res := s.detector.Detect(m)

		s.True(res.Has(heuristics.FlagSpoofedIdentity))
	})

	s.Run("allowlisted id is exempt from spoof matching", func() {
		m := s.cleanManifest()
		m.ID = "app_official"
		m.Name = "Official Platform App"

		res := s.detector.Detect(m)

		s.False(res.Has(heuristics.FlagSpoofedIdentity))
	})

	s.Run("nine permissions trigger excessive permissions", func() {
		m := s.cleanManifest()
		m.Permissions = []string{"profile", "storage", "messages", "contacts", "location", "media", "notifications", "payments", "wallet"}

		res := s.detector.Detect(m)

		s.True(res.Has(heuristics.FlagExcessivePermissions))
	})

	s.Run("missing description flag", func() {
		m := s.cleanManifest()
		m.Description = ""

		res := s.detector.Detect(m)

		s.True(res.Has(heuristics.FlagMissingDescription))
	})

	s.Run("relative entry flag", func() {
		m := s.cleanManifest()
		m.Entry = "index.html"

		res := s.detector.Detect(m)

		s.True(res.Has(heuristics.FlagSuspiciousEntry))
	})

	s.Run("duplicate function names flag", func() {
		m := s.cleanManifest()
		m.Endpoints["a"] = manifest.Endpoint{Fn: "shared"}
		m.Endpoints["b"] = manifest.Endpoint{Fn: "shared"}

		res := s.detector.Detect(m)

		s.True(res.Has(heuristics.FlagDuplicateFunctions))
	})

	s.Run("pre-1.0 version flag", func() {
		m := s.cleanManifest()
		m.Version = "0.4.1"

		res := s.detector.Detect(m)

		s.True(res.Has(heuristics.FlagPrereleaseVersion))
	})

	s.Run("flags are sorted and warnings align in count", func() {
		m := s.cleanManifest()
		m.Signature = ""
		m.Description = ""

		res := s.detector.Detect(m)

		s.Equal([]string{heuristics.FlagMissingDescription, heuristics.FlagUnsignedManifest}, res.Flags)
		s.Len(res.Warnings, 2)
		s.Len(res.Recommendations, 2)
	})
}
