package config

import (
	"os"
	"path/filepath"
	"testing"

	"druktour/internal/models"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("DRUKTOUR_DB_PATH", filepath.Join(tmpDir, "druktour.db"))

	yamlContent := `
database:
  path: "${DRUKTOUR_DB_PATH}"
telegram:
  bot_token: "test_token"
reviewers: [1001, 1002]
api:
  enabled: true
  auth:
    enabled: true
    api_keys:
      - key: "k1"
        name: "website"
        permissions: ["itinerary:edit"]
pricing:
  method_fees:
    card: 3
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Database.Path != filepath.Join(tmpDir, "druktour.db") {
		t.Errorf("expected env-expanded database path, got %s", cfg.Database.Path)
	}
	if len(cfg.Reviewers) != 2 || cfg.Reviewers[0] != 1001 {
		t.Errorf("expected reviewers [1001 1002], got %v", cfg.Reviewers)
	}
	if !cfg.API.HTTP.Enabled {
		t.Errorf("expected http enabled when api is enabled")
	}
	if cfg.Pricing.MethodFees["card"] != 3 {
		t.Errorf("expected configured card fee 3, got %v", cfg.Pricing.MethodFees["card"])
	}
	if _, ok := cfg.Pricing.MethodFees["cash"]; ok {
		t.Errorf("configured fees must not be merged with defaults")
	}
}

func TestLoadConfig_WithDotEnv(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("database:\n  path: \"${DOTENV_DB_PATH}\"\n"), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	if err := os.WriteFile(".env", []byte("DOTENV_DB_PATH=from-dotenv.db\n"), 0o644); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}
	defer os.Remove(".env")
	defer os.Unsetenv("DOTENV_DB_PATH")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Database.Path != "from-dotenv.db" {
		t.Errorf("expected path from .env, got %s", cfg.Database.Path)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "valid config",
			cfg:     Config{Database: DatabaseConfig{Path: "path"}},
			wantErr: false,
		},
		{
			name:    "missing database path",
			cfg:     Config{},
			wantErr: true,
		},
		{
			name: "placeholder token",
			cfg: Config{
				Database:  DatabaseConfig{Path: "path"},
				Telegram:  TelegramConfig{BotToken: "YOUR_BOT_TOKEN_HERE"},
				Reviewers: []int64{1},
			},
			wantErr: true,
		},
		{
			name: "bot without reviewers",
			cfg: Config{
				Database: DatabaseConfig{Path: "path"},
				Telegram: TelegramConfig{BotToken: "token"},
			},
			wantErr: true,
		},
		{
			name: "auth without keys",
			cfg: Config{
				Database: DatabaseConfig{Path: "path"},
				API:      APIConfig{Enabled: true, Auth: APIAuthConfig{Enabled: true}},
			},
			wantErr: true,
		},
		{
			name: "negative fee",
			cfg: Config{
				Database: DatabaseConfig{Path: "path"},
				Pricing:  PricingConfig{MethodFees: map[string]float64{"card": -1}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	if cfg.API.GRPC.Port != 8081 {
		t.Errorf("expected default gRPC port 8081, got %d", cfg.API.GRPC.Port)
	}
	if cfg.API.HTTP.Port != 8080 {
		t.Errorf("expected default HTTP port 8080, got %d", cfg.API.HTTP.Port)
	}
	if cfg.Session.TTLSeconds != models.DefaultSessionTTL {
		t.Errorf("expected default session ttl %d, got %d", models.DefaultSessionTTL, cfg.Session.TTLSeconds)
	}
	if cfg.Bot.RateLimitMessages != models.RateLimitMessages {
		t.Errorf("expected default rate limit messages %d, got %d", models.RateLimitMessages, cfg.Bot.RateLimitMessages)
	}
	if cfg.Google.ApprovalsSheet != "Approvals" {
		t.Errorf("expected default approvals sheet, got %s", cfg.Google.ApprovalsSheet)
	}
	if cfg.API.Auth.HeaderAPIKey != "x-api-key" {
		t.Errorf("expected default api key header, got %s", cfg.API.Auth.HeaderAPIKey)
	}
	if len(cfg.Pricing.MethodFees) != 4 {
		t.Errorf("expected 4 default payment methods, got %d", len(cfg.Pricing.MethodFees))
	}
}
