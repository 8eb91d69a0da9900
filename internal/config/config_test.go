package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDefault(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := validDefault(t)

	assert.Equal(t, "matriz", cfg.Directus.Collection)
	assert.Equal(t, 10*time.Second, cfg.Directus.Timeout)
	assert.Equal(t, 5, cfg.App.MaxMembersPerFounder)
	assert.Equal(t, 5*time.Second, cfg.UI.ErrorMessageDuration)
	assert.Zero(t, cfg.UI.AutoRefresh)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty url", func(c *Config) { c.Directus.URL = "" }},
		{"empty collection", func(c *Config) { c.Directus.Collection = "" }},
		{"zero timeout", func(c *Config) { c.Directus.Timeout = 0 }},
		{"zero cap", func(c *Config) { c.App.MaxMembersPerFounder = 0 }},
		{"no complete literals", func(c *Config) { c.App.CompleteValues.Complete = nil }},
		{"negative refresh", func(c *Config) { c.UI.AutoRefresh = -time.Second }},
		{"bad format pattern", func(c *Config) { c.App.Formats[FieldPhone] = FormatRule{Pattern: "("} }},
		{"bad validation pattern", func(c *Config) { c.App.Validation.Patterns[FieldPhone] = "[" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLookup(t *testing.T) {
	cfg := validDefault(t)

	assert.Equal(t, "matriz", cfg.Lookup("directus.collection", nil))
	assert.Equal(t, 10*time.Second, cfg.Lookup("directus.timeout", nil))
	assert.Equal(t, 3, cfg.Lookup("app.validation.min_length.name", 0))
	assert.Equal(t, `^\d{10,11}$`, cfg.Lookup("app.validation.patterns.phone", ""))
	assert.Equal(t, "$1-$2", cfg.LookupString("app.formats.id_number.replace", ""))
	assert.Equal(t, 5, cfg.LookupInt("app.max_members_per_founder", 0))
}

func TestLookupFallsBackToDefault(t *testing.T) {
	cfg := validDefault(t)

	assert.Equal(t, "fallback", cfg.Lookup("directus.nope", "fallback"))
	assert.Equal(t, 0, cfg.Lookup("app.validation.min_length.email", 0))
	assert.Equal(t, 42, cfg.Lookup("app.title.deeper", 42))
	assert.Nil(t, cfg.Lookup("", nil))
	assert.Equal(t, "x", cfg.LookupString("app.max_members_per_founder", "x"))
	assert.Equal(t, 7, cfg.LookupInt("app.title", 7))
}

func TestFormatValue(t *testing.T) {
	cfg := validDefault(t)

	tests := []struct {
		kind, in, want string
	}{
		{FieldPhone, "09912345678", "0991-234-5678"},
		{FieldPhone, "0991234567", "0991234567"},
		{FieldIDNumber, "17123456789", "1712-3456789"},
		{FieldIDNumber, "1712345678", "1712345678"},
		{FieldPhone, "", ""},
		{FieldName, "Ana", "Ana"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cfg.FormatValue(tt.kind, tt.in), "%s(%q)", tt.kind, tt.in)
	}
}

func TestFormatValueIdempotent(t *testing.T) {
	cfg := validDefault(t)

	inputs := []string{
		"09912345678",
		"0991-234-5678",
		"17123456789",
		"1712-3456789",
		"1234567890123456789012",
		"12345",
		"abc 09912345678",
	}
	for _, kind := range []string{FieldPhone, FieldIDNumber} {
		for _, in := range inputs {
			once := cfg.FormatValue(kind, in)
			assert.Equal(t, once, cfg.FormatValue(kind, once), "%s(%q) not idempotent", kind, in)
		}
	}
}

func TestValidateField(t *testing.T) {
	cfg := validDefault(t)

	assert.NoError(t, cfg.ValidateField(FieldName, "Ana"))
	assert.NoError(t, cfg.ValidateField(FieldPhone, "0991234567"))
	assert.NoError(t, cfg.ValidateField(FieldIDNumber, "17123456789"))
	assert.NoError(t, cfg.ValidateField(FieldAddress, "Av. Amazonas"))

	err := cfg.ValidateField(FieldName, "Al")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, FieldName, verr.Field)
	assert.Contains(t, verr.Message, "al menos 3")

	err = cfg.ValidateField(FieldPhone, "09912-34567")
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Message, "no es válido")

	assert.Error(t, cfg.ValidateField(FieldIDNumber, ""))
	// Multibyte names are counted in characters.
	assert.NoError(t, cfg.ValidateField(FieldName, "Íña"))
}

func TestClassifier(t *testing.T) {
	c := validDefault(t).Classifier()

	assert.True(t, c.IsComplete("Sí"))
	assert.True(t, c.IsComplete("true"))
	assert.False(t, c.IsComplete("NO"))
	assert.False(t, c.IsComplete(""))
	assert.False(t, c.IsComplete("SÍ"))
	assert.Equal(t, "Sí", c.CompleteValue())
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "referidos.yaml")
	data := `
directus:
  url: https://cms.example.com
  timeout: 3s
app:
  max_members_per_founder: 7
  validation:
    min_length:
      name: 4
ui:
  auto_refresh: 30s
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "https://cms.example.com", cfg.Directus.URL)
	assert.Equal(t, "matriz", cfg.Directus.Collection)
	assert.Equal(t, 3*time.Second, cfg.Directus.Timeout)
	assert.Equal(t, 7, cfg.App.MaxMembersPerFounder)
	assert.Equal(t, 4, cfg.App.Validation.MinLength[FieldName])
	assert.Equal(t, 5, cfg.App.Validation.MinLength[FieldAddress])
	assert.Equal(t, 30*time.Second, cfg.UI.AutoRefresh)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := DefaultConfig()
	env := map[string]string{
		"REFERIDOS_PORT":         "9090",
		"REFERIDOS_DIRECTUS_URL": "http://localhost:8055",
		"REFERIDOS_COLLECTION":   " socios ",
	}
	cfg.applyEnv(func(k string) string { return env[k] })

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "http://localhost:8055", cfg.Directus.URL)
	assert.Equal(t, "socios", cfg.Directus.Collection)
	assert.Equal(t, "referidos.db", cfg.Server.DBPath)
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "referidos.yaml")
	cfg := DefaultConfig()
	cfg.App.Title = "Referidos QA"
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Referidos QA", loaded.App.Title)
	assert.Equal(t, cfg.Directus.Timeout, loaded.Directus.Timeout)
}
