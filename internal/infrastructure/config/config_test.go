package config

import (
	"os"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func TestDatabaseConfig_ConnectionString(t *testing.T) {
	tests := []struct {
		name string
		cfg  DatabaseConfig
		want string
	}{
		{
			name: "standard configuration",
			cfg: DatabaseConfig{
				Host:     "localhost",
				Port:     5432,
				User:     "testuser",
				Password: "testpass",
				Database: "testdb",
				SSLMode:  "disable",
			},
			want: "host=localhost port=5432 user=testuser password=testpass dbname=testdb sslmode=disable",
		},
		{
			name: "production configuration",
			cfg: DatabaseConfig{
				Host:     "db.example.com",
				Port:     5433,
				User:     "produser",
				Password: "securepass123",
				Database: "proddb",
				SSLMode:  "require",
			},
			want: "host=db.example.com port=5433 user=produser password=securepass123 dbname=proddb sslmode=require",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.ConnectionString(); got != tt.want {
				t.Errorf("DatabaseConfig.ConnectionString() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInitConfig(t *testing.T) {
	// Save original working directory
	originalWd, _ := os.Getwd()
	defer os.Chdir(originalWd)

	tests := []struct {
		name string
		env  string
	}{
		{name: "default dev environment", env: ""},
		{name: "explicit dev environment", env: "dev"},
		{name: "test environment", env: "test"},
		{name: "prod environment", env: "prod"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Reset viper for each test
			viper.Reset()

			if err := InitConfig(tt.env); err != nil {
				t.Fatalf("InitConfig() error = %v", err)
			}

			// Verify default values are set
			if got := viper.GetString("DB_DRIVER"); got != DriverPostgres {
				t.Errorf("InitConfig() DB_DRIVER = %v, want %v", got, DriverPostgres)
			}
			if got := viper.GetString("DB_HOST"); got != "localhost" {
				t.Errorf("InitConfig() DB_HOST = %v, want localhost", got)
			}
			if got := viper.GetString("DB_SSLMODE"); got != "disable" {
				t.Errorf("InitConfig() DB_SSLMODE = %v, want disable", got)
			}
			if got := viper.GetInt("CONDITION_CACHE_SIZE"); got != 256 {
				t.Errorf("InitConfig() CONDITION_CACHE_SIZE = %v, want 256", got)
			}
			if got := viper.GetString("LOG_LEVEL"); got != "info" {
				t.Errorf("InitConfig() LOG_LEVEL = %v, want info", got)
			}
		})
	}
}

func setDefaults() {
	viper.SetDefault("DB_DRIVER", DriverPostgres)
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", 15432)
	viper.SetDefault("DB_USER", "kankei")
	viper.SetDefault("DB_NAME", "kankei_dev")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_PATH", "kankei.db")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_ENCODING", "json")
	viper.SetDefault("CONDITION_CACHE_SIZE", 256)
	viper.SetDefault("METRICS_PORT", 9090)
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		setupEnv    func()
		wantErr     bool
		wantErrMsg  string
		validateCfg func(*testing.T, *Config)
	}{
		{
			name: "postgres with password",
			setupEnv: func() {
				viper.Set("DB_PASSWORD", "testpassword")
			},
			validateCfg: func(t *testing.T, cfg *Config) {
				if cfg.Database.Driver != DriverPostgres {
					t.Errorf("Load() Database.Driver = %v, want postgres", cfg.Database.Driver)
				}
				if cfg.Database.Password != "testpassword" {
					t.Errorf("Load() Database.Password = %v, want testpassword", cfg.Database.Password)
				}
				if cfg.Database.Port != 15432 {
					t.Errorf("Load() Database.Port = %v, want 15432", cfg.Database.Port)
				}
				if cfg.Engine.ProgramCacheSize != 256 {
					t.Errorf("Load() Engine.ProgramCacheSize = %v, want 256", cfg.Engine.ProgramCacheSize)
				}
			},
		},
		{
			name:       "postgres without password",
			setupEnv:   func() {},
			wantErr:    true,
			wantErrMsg: "DB_PASSWORD is required",
		},
		{
			name: "sqlite without password",
			setupEnv: func() {
				viper.Set("DB_DRIVER", "SQLite")
				viper.Set("DB_PATH", "/tmp/kankei.db")
			},
			validateCfg: func(t *testing.T, cfg *Config) {
				if cfg.Database.Driver != DriverSQLite {
					t.Errorf("Load() Database.Driver = %v, want sqlite", cfg.Database.Driver)
				}
				if cfg.Database.Path != "/tmp/kankei.db" {
					t.Errorf("Load() Database.Path = %v, want /tmp/kankei.db", cfg.Database.Path)
				}
			},
		},
		{
			name: "sqlite without path",
			setupEnv: func() {
				viper.Set("DB_DRIVER", DriverSQLite)
				viper.Set("DB_PATH", "")
			},
			wantErr:    true,
			wantErrMsg: "DB_PATH is required",
		},
		{
			name: "unknown driver",
			setupEnv: func() {
				viper.Set("DB_DRIVER", "mysql")
			},
			wantErr:    true,
			wantErrMsg: "DB_DRIVER must be one of: postgres sqlite",
		},
		{
			name: "invalid log level",
			setupEnv: func() {
				viper.Set("DB_PASSWORD", "testpassword")
				viper.Set("LOG_LEVEL", "verbose")
			},
			wantErr:    true,
			wantErrMsg: "LOG_LEVEL must be one of",
		},
		{
			name: "negative condition cache size",
			setupEnv: func() {
				viper.Set("DB_PASSWORD", "testpassword")
				viper.Set("CONDITION_CACHE_SIZE", -1)
			},
			wantErr:    true,
			wantErrMsg: "CONDITION_CACHE_SIZE is out of range",
		},
		{
			name: "schema file",
			setupEnv: func() {
				viper.Set("DB_PASSWORD", "testpassword")
				viper.Set("SCHEMA_FILE", "schema/forum.yaml")
			},
			validateCfg: func(t *testing.T, cfg *Config) {
				if cfg.Engine.SchemaFile != "schema/forum.yaml" {
					t.Errorf("Load() Engine.SchemaFile = %v, want schema/forum.yaml", cfg.Engine.SchemaFile)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			setDefaults()
			tt.setupEnv()
			defer viper.Reset()

			cfg, err := Load()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !strings.Contains(err.Error(), tt.wantErrMsg) {
					t.Errorf("Load() error = %v, want containing %q", err, tt.wantErrMsg)
				}
				return
			}
			if tt.validateCfg != nil {
				tt.validateCfg(t, cfg)
			}
		})
	}
}
