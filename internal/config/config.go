package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/lawnchairsociety/levelforge/internal/biome"
	"github.com/lawnchairsociety/levelforge/internal/policy"
	"github.com/lawnchairsociety/levelforge/internal/wfc"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfiguration wraps every validation failure.
var ErrInvalidConfiguration = errors.New("config: invalid configuration")

// WorldConfig holds every setting for a generation run.
type WorldConfig struct {
	World       WorldSection       `yaml:"world"`
	Solver      SolverSection      `yaml:"solver"`
	Constraints ConstraintsSection `yaml:"constraints"`
	Store       StoreConfig        `yaml:"store"`
	Archive     ArchiveConfig      `yaml:"archive"`
	Serve       ServeConfig        `yaml:"serve"`
}

// WorldSection describes the world being generated.
type WorldSection struct {
	Seed              uint32       `yaml:"seed"`
	Size              [2]int       `yaml:"size"`
	NodeCountRange    [2]int       `yaml:"node_count_range"`
	RandomizationMode policy.Mode  `yaml:"randomization_mode"`
	Biomes            []biome.Type `yaml:"biomes"`
	BiomeScale        float64      `yaml:"biome_scale"`
	BiomeFalloff      string       `yaml:"biome_falloff"`
	LoopDensityRange  [2]float64   `yaml:"loop_density_range"`

	// TileLibrary is a YAML tile library path. Empty uses the built-in set.
	TileLibrary string `yaml:"tile_library"`
}

// SolverSection holds placement and collapse tuning.
type SolverSection struct {
	// DistrictMinDistance <= 0 derives the separation from the world size.
	DistrictMinDistance float64 `yaml:"district_min_distance"`
	PlacementAttempts   int     `yaml:"placement_attempts"`
	GridThreshold       int     `yaml:"grid_threshold"`

	// ForceCollapseAfter < 0 disables forced collapse.
	ForceCollapseAfter int `yaml:"force_collapse_after"`
	MaxTicks           int `yaml:"max_ticks"`

	// Workers is the per-tick worker count. 0 means GOMAXPROCS.
	Workers int `yaml:"workers"`

	// MaxRestarts is how many perturbed-seed reruns follow a contradiction.
	MaxRestarts int `yaml:"max_restarts"`

	// MaxLinkDistance limits spatial adjacency. 0 means unlimited.
	MaxLinkDistance float64 `yaml:"max_link_distance"`
}

// ConstraintsSection holds tile adjacency constraints.
type ConstraintsSection struct {
	Exclusions           []wfc.Exclusion `yaml:"exclusions"`
	BiomeMismatchPenalty float64         `yaml:"biome_mismatch_penalty"`
}

// StoreConfig holds run history database settings.
type StoreConfig struct {
	Enabled bool `yaml:"enabled"`

	// Driver is "sqlite" or "postgres".
	Driver     string         `yaml:"driver"`
	SQLitePath string         `yaml:"sqlite_path"`
	Postgres   PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// ArchiveConfig controls what a run writes to disk and where snapshots go.
type ArchiveConfig struct {
	Dir      string   `yaml:"dir"`
	YAML     bool     `yaml:"yaml"`
	Snapshot bool     `yaml:"snapshot"`
	S3       S3Config `yaml:"s3"`
}

// S3Config holds snapshot upload settings. An empty bucket disables upload.
type S3Config struct {
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`

	// Static credentials. Empty uses the default AWS credential chain.
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// ServeConfig holds settings for the long-running serve mode.
type ServeConfig struct {
	Addr      string          `yaml:"addr"`
	WebSocket WebSocketConfig `yaml:"websocket"`

	// Feed subscriber limits. Zero means unlimited.
	MaxSubscribers      int `yaml:"max_subscribers"`
	MaxSubscribersPerIP int `yaml:"max_subscribers_per_ip"`
}

// WebSocketConfig holds WebSocket-specific settings.
type WebSocketConfig struct {
	// AllowedOrigins is a list of origins allowed to connect via WebSocket.
	// Empty list enforces same-origin policy.
	// Use "*" to allow all origins.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// MaxMessageSize is the maximum inbound WebSocket message size in bytes.
	MaxMessageSize int64 `yaml:"max_message_size"`
}

// DefaultConfig returns a WorldConfig with the stock world settings.
func DefaultConfig() *WorldConfig {
	return &WorldConfig{
		World: WorldSection{
			Seed:              12345,
			Size:              [2]int{48, 48},
			NodeCountRange:    [2]int{8, 14},
			RandomizationMode: policy.Partial,
			Biomes:            []biome.Type{"tundra", "plains", "forest", "marsh", "hazards"},
			BiomeScale:        biome.DefaultScale,
			BiomeFalloff:      string(biome.Linear),
			LoopDensityRange:  [2]float64{0.1, 0.4},
		},
		Solver: SolverSection{
			PlacementAttempts:  30,
			GridThreshold:      16,
			ForceCollapseAfter: wfc.DefaultForceCollapseAfter,
			MaxTicks:           wfc.DefaultMaxTicks,
		},
		Constraints: ConstraintsSection{
			Exclusions:           []wfc.Exclusion{{A: "hazards", B: "plains"}},
			BiomeMismatchPenalty: wfc.DefaultMismatchPenalty,
		},
		Store: StoreConfig{
			Driver:     "sqlite",
			SQLitePath: "data/levelforge.db",
			Postgres: PostgresConfig{
				Host:            "localhost",
				Port:            5432,
				User:            "levelforge",
				Database:        "levelforge",
				SSLMode:         "disable",
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Archive: ArchiveConfig{
			Dir:      "out",
			YAML:     true,
			Snapshot: true,
		},
		Serve: ServeConfig{
			Addr: ":8080",
			WebSocket: WebSocketConfig{
				AllowedOrigins: []string{}, // Same-origin only by default
				MaxMessageSize: 4096,
			},
			MaxSubscribers:      32,
			MaxSubscribersPerIP: 4,
		},
	}
}

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, returns default config.
// If it can't be parsed, returns default config and the parse error.
func LoadConfig(path string) (*WorldConfig, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil // Use defaults if file doesn't exist
		}
		return config, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return DefaultConfig(), err
	}

	return config, nil
}

// Validate checks the configuration before any generation work starts.
func (c *WorldConfig) Validate() error {
	w := c.World
	if w.Size[0] <= 0 || w.Size[1] <= 0 {
		return invalid("world size %dx%d must be positive", w.Size[0], w.Size[1])
	}
	if w.NodeCountRange[0] < 0 || w.NodeCountRange[1] < 0 {
		return invalid("node count range %v must not be negative", w.NodeCountRange)
	}
	if w.NodeCountRange[0] > w.NodeCountRange[1] {
		return invalid("node count range %v is inverted", w.NodeCountRange)
	}
	if _, err := policy.ParseMode(string(w.RandomizationMode)); err != nil {
		return invalid("%v", err)
	}
	if _, err := biome.ParseInterpolation(w.BiomeFalloff); err != nil {
		return invalid("biome falloff: %v", err)
	}
	if w.BiomeScale < 0 {
		return invalid("biome scale %v must not be negative", w.BiomeScale)
	}
	lo, hi := w.LoopDensityRange[0], w.LoopDensityRange[1]
	if lo < 0 || hi > 1 || lo > hi {
		return invalid("loop density range %v must be an ordered range within [0,1]", w.LoopDensityRange)
	}

	s := c.Solver
	if s.PlacementAttempts <= 0 {
		return invalid("placement attempts %d must be positive", s.PlacementAttempts)
	}
	if s.GridThreshold <= 0 {
		return invalid("grid threshold %d must be positive", s.GridThreshold)
	}
	if s.ForceCollapseAfter == 0 {
		return invalid("force collapse threshold of 0 is not allowed, use a negative value to disable")
	}
	if s.MaxTicks <= 0 {
		return invalid("max ticks %d must be positive", s.MaxTicks)
	}
	if s.Workers < 0 || s.MaxRestarts < 0 || s.MaxLinkDistance < 0 {
		return invalid("workers, max restarts and max link distance must not be negative")
	}

	// Zero is rejected rather than silently replaced by the evaluator default.
	if p := c.Constraints.BiomeMismatchPenalty; p <= 0 || p > 1 {
		return invalid("biome mismatch penalty %v must be within (0,1]", p)
	}

	if c.Serve.MaxSubscribers < 0 || c.Serve.MaxSubscribersPerIP < 0 {
		return invalid("subscriber limits must not be negative")
	}

	if c.Store.Enabled {
		switch c.Store.Driver {
		case "sqlite", "postgres":
		default:
			return invalid("unknown store driver %q", c.Store.Driver)
		}
	}
	return nil
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}

// IsOriginAllowed checks if the given origin is allowed based on the config.
// Returns true if:
// - AllowedOrigins contains "*" (allow all)
// - AllowedOrigins contains the exact origin
// - AllowedOrigins is empty and origin matches the request host (same-origin)
func (c *WebSocketConfig) IsOriginAllowed(origin, requestHost string) bool {
	if len(c.AllowedOrigins) == 0 {
		return isSameOrigin(origin, requestHost)
	}

	for _, allowed := range c.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	return false
}

// isSameOrigin checks if the origin matches the request host (same-origin policy).
func isSameOrigin(origin, requestHost string) bool {
	if origin == "" {
		return true // No origin header means same-origin (e.g., non-browser client)
	}

	originHost := origin
	if idx := strings.Index(origin, "://"); idx != -1 {
		originHost = origin[idx+3:]
	}
	originHost = strings.TrimSuffix(originHost, "/")

	return originHost == requestHost
}
