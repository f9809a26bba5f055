package vision

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/joseph-ayodele/cardscan/internal/common"
)

const (
	// SubscriptionKeyHeader carries the API key on every request.
	SubscriptionKeyHeader = "Ocp-Apim-Subscription-Key"
	// OperationLocationHeader carries the polling URL on a 202 response.
	OperationLocationHeader = "Operation-Location"

	DefaultAPIPath = "/vision/v3.2/read/analyze"
)

// PollConfig bounds the wait for a read operation. Interval grows by Backoff after every
// unfinished poll, capped at MaxInterval. The defaults give 60 polls one second apart.
type PollConfig struct {
	Interval    time.Duration
	MaxAttempts int
	Backoff     float64
	MaxInterval time.Duration
}

func DefaultPollConfig() PollConfig {
	return PollConfig{
		Interval:    time.Second,
		MaxAttempts: 60,
		Backoff:     1.0,
		MaxInterval: 10 * time.Second,
	}
}

func (p PollConfig) next(cur time.Duration) time.Duration {
	if p.Backoff <= 1 {
		return cur
	}
	n := time.Duration(float64(cur) * p.Backoff)
	if p.MaxInterval > 0 && n > p.MaxInterval {
		return p.MaxInterval
	}
	return n
}

// Config for the read client.
type Config struct {
	APIKey        string
	Endpoint      string        // e.g. https://<resource>.cognitiveservices.azure.com
	APIPath       string        // default /vision/v3.2/read/analyze
	SubmitTimeout time.Duration // per submit request, default 30s
	PollTimeout   time.Duration // per poll request, default 10s
	Poll          PollConfig
	HTTPClient    *http.Client // optional; timeouts above still apply per request
}

// ConfigFromEnv converts the loaded application config.
func ConfigFromEnv(vc common.VisionConfig) Config {
	return Config{
		APIKey:        vc.APIKey,
		Endpoint:      vc.Endpoint,
		APIPath:       vc.APIPath,
		SubmitTimeout: vc.SubmitTimeout,
		PollTimeout:   vc.PollTimeout,
		Poll: PollConfig{
			Interval:    vc.PollInterval,
			MaxAttempts: vc.MaxPolls,
			Backoff:     vc.PollBackoff,
			MaxInterval: vc.MaxPollInterval,
		},
	}
}

func (c Config) analyzeURL() string {
	return strings.TrimRight(c.Endpoint, "/") + "/" + strings.TrimLeft(c.APIPath, "/")
}

type Client struct {
	cfg  Config
	http *http.Client
	log  *slog.Logger
}

// NewClient validates credentials up front so a misconfigured client never touches the network.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, common.ConfigError("vision API key is required (AZURE_VISION_KEY)")
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, common.ConfigError("vision endpoint is required (AZURE_VISION_ENDPOINT)")
	}
	if cfg.APIPath == "" {
		cfg.APIPath = DefaultAPIPath
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 30 * time.Second
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Second
	}
	def := DefaultPollConfig()
	if cfg.Poll.Interval <= 0 {
		cfg.Poll.Interval = def.Interval
	}
	if cfg.Poll.MaxAttempts <= 0 {
		cfg.Poll.MaxAttempts = def.MaxAttempts
	}
	if cfg.Poll.Backoff < 1 {
		cfg.Poll.Backoff = def.Backoff
	}
	if cfg.Poll.MaxInterval <= 0 {
		cfg.Poll.MaxInterval = def.MaxInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{cfg: cfg, http: hc, log: logger}, nil
}
