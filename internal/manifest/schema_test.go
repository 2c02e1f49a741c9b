package manifest_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/suite"

	"manifestgate/internal/manifest"
	domainerrors "manifestgate/pkg/domain-errors"
)

type SchemaSuite struct {
	suite.Suite
}

func TestSchemaSuite(t *testing.T) {
	suite.Run(t, new(SchemaSuite))
}

func (s *SchemaSuite) validSubmission() map[string]any {
	return map[string]any{
		"id":          "app_notes",
		"name":        "Notes",
		"version":     "1.2.0",
		"entry":       "/apps/notes/index.html",
		"permissions": []string{"profile", "storage"},
		"endpoints": map[string]any{
			"notes.create": map[string]any{
				"fn":     "createNote",
				"args":   map[string]string{"title": "string", "body": "string"},
				"scopes": []string{"storage"},
			},
		},
		"routes": map[string]string{"notes.home": "/apps/notes"},
	}
}

func (s *SchemaSuite) raw(v any) json.RawMessage {
	b, err := json.Marshal(v)
	s.Require().NoError(err)
	return b
}

func (s *SchemaSuite) TestValidateRaw() {
	s.Run("accepts a well formed submission", func() {
		m, err := manifest.ValidateRaw(s.raw(s.validSubmission()))

		s.Require().NoError(err)
		s.Equal("app_notes", m.ID)
		s.Equal("1.2.0", m.Version)
		s.Equal("createNote", m.Endpoints["notes.create"].Fn)
		s.Equal("/apps/notes", m.Routes["notes.home"])
	})

	s.Run("rejects malformed JSON", func() {
		_, err := manifest.ValidateRaw(json.RawMessage(`{"id": `))

		s.True(domainerrors.Is(err, domainerrors.CodeBadRequest))
	})

	s.Run("rejects id without prefix", func() {
		sub := s.validSubmission()
		sub["id"] = "notes"

		_, err := manifest.ValidateRaw(s.raw(sub))

		var derr *domainerrors.Error
		s.Require().ErrorAs(err, &derr)
		s.Equal(domainerrors.CodeValidation, derr.Code)
		s.NotEmpty(derr.Fields)
	})

	s.Run("rejects non-semver version", func() {
		sub := s.validSubmission()
		sub["version"] = "1.2"

		_, err := manifest.ValidateRaw(s.raw(sub))

		s.True(domainerrors.Is(err, domainerrors.CodeValidation))
	})

	s.Run("rejects relative entry", func() {
		sub := s.validSubmission()
		sub["entry"] = "index.html"

		_, err := manifest.ValidateRaw(s.raw(sub))

		s.True(domainerrors.Is(err, domainerrors.CodeValidation))
	})

	s.Run("rejects missing required fields", func() {
		sub := s.validSubmission()
		delete(sub, "permissions")

		_, err := manifest.ValidateRaw(s.raw(sub))

		s.True(domainerrors.Is(err, domainerrors.CodeValidation))
	})

	s.Run("rejects endpoint without fn", func() {
		sub := s.validSubmission()
		sub["endpoints"] = map[string]any{
			"notes.create": map[string]any{"scopes": []string{"storage"}},
		}

		_, err := manifest.ValidateRaw(s.raw(sub))

		s.True(domainerrors.Is(err, domainerrors.CodeValidation))
	})

	s.Run("rejects unknown signature scheme", func() {
		sub := s.validSubmission()
		sub["signatureScheme"] = "rsa"

		_, err := manifest.ValidateRaw(s.raw(sub))

		s.True(domainerrors.Is(err, domainerrors.CodeValidation))
	})
}

func (s *SchemaSuite) TestScopeHelpers() {
	m := &manifest.Manifest{
		Permissions: []string{"storage"},
		Endpoints: map[string]manifest.Endpoint{
			"a": {Fn: "a", Scopes: []string{"storage", "payments"}},
			"b": {Fn: "b", Scopes: []string{"profile"}},
		},
	}

	s.Run("used scopes are sorted and deduplicated", func() {
		s.Equal([]string{"payments", "profile", "storage"}, m.UsedScopes())
	})

	s.Run("undeclared scopes exclude declared permissions", func() {
		s.Equal([]string{"payments", "profile"}, m.UndeclaredScopes())
	})

	s.Run("sensitive scope detection covers endpoints and permissions", func() {
		s.True(m.TouchesSensitiveScope())
		s.False((&manifest.Manifest{Permissions: []string{"storage"}}).TouchesSensitiveScope())
		s.True((&manifest.Manifest{Permissions: []string{"wallet"}}).TouchesSensitiveScope())
	})
}
