package store

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"

	"stock-autotrader/internal/optimizer"
	"stock-autotrader/internal/ta"
	"stock-autotrader/internal/types"
)

const (
	ModeDryRun = "DRY_RUN"
	ModeLive   = "LIVE"
)

type Config struct {
	Mode     string `yaml:"mode"`
	Symbol   string `yaml:"symbol"`
	Exchange string `yaml:"exchange"`
	Candles  struct {
		Interval string `yaml:"interval"`
		Period   string `yaml:"period"`
	} `yaml:"candles"`
	Strategy struct {
		Mode              string          `yaml:"mode"`
		Modes             []string        `yaml:"modes"`
		TargetMA          string          `yaml:"target_ma"`
		Tolerance         float64         `yaml:"tolerance"`
		Strict            bool            `yaml:"strict"`
		TakeProfit        optimizer.Range `yaml:"take_profit"`
		StopLoss          optimizer.Range `yaml:"stop_loss"`
		InitialBalance    float64         `yaml:"initial_balance"`
		DefaultTakeProfit float64         `yaml:"default_take_profit"`
		DefaultStopLoss   float64         `yaml:"default_stop_loss"`
		Windows           struct {
			Short int `yaml:"short"`
			Mid   int `yaml:"mid"`
			Long  int `yaml:"long"`
		} `yaml:"windows"`
	} `yaml:"strategy"`
	Schedule struct {
		RefreshSeconds      int `yaml:"refresh_seconds"`
		PollSeconds         int `yaml:"poll_seconds"`
		ReportSeconds       int `yaml:"report_seconds"`
		ErrorBackoffSeconds int `yaml:"error_backoff_seconds"`
	} `yaml:"schedule"`
	Market struct {
		Timezone         string `yaml:"timezone"`
		Close            string `yaml:"close"`
		Open             string `yaml:"open"`
		LiquidateOnClose bool   `yaml:"liquidate_on_close"`
	} `yaml:"market"`
	Sizing struct {
		Allocation float64 `yaml:"allocation"`
		MinCash    float64 `yaml:"min_cash"`
	} `yaml:"sizing"`
	Broker struct {
		BaseURL       string  `yaml:"base_url"`
		Paper         bool    `yaml:"paper"`
		RatePerSecond float64 `yaml:"rate_per_second"`
		TokenCache    string  `yaml:"token_cache"`
		PaperCash     float64 `yaml:"paper_cash"`
	} `yaml:"broker"`
	Notify struct {
		Discord bool `yaml:"discord"`
	} `yaml:"notify"`
	Status struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"status"`
}

func (c *Config) Validate() error {
	if c.Mode != ModeDryRun && c.Mode != ModeLive {
		return fmt.Errorf("invalid mode '%s': must be 'DRY_RUN' or 'LIVE'", c.Mode)
	}
	if strings.TrimSpace(c.Symbol) == "" {
		return errors.New("symbol cannot be empty")
	}
	if _, err := c.StrategyModes(); err != nil {
		return err
	}
	switch types.TargetMA(c.Strategy.TargetMA) {
	case types.TargetMAShort, types.TargetMAMid, types.TargetMALong:
	default:
		return fmt.Errorf("strategy.target_ma must be 'short', 'mid' or 'long', got '%s'", c.Strategy.TargetMA)
	}
	if c.Strategy.Tolerance <= 0 {
		return fmt.Errorf("strategy.tolerance must be > 0, got %v", c.Strategy.Tolerance)
	}
	if err := c.Grid().Validate(); err != nil {
		return fmt.Errorf("strategy grid: %w", err)
	}
	if err := c.DefaultThresholds().Validate(); err != nil {
		return fmt.Errorf("strategy defaults: %w", err)
	}
	if c.Schedule.PollSeconds <= 0 || c.Schedule.RefreshSeconds <= 0 || c.Schedule.ReportSeconds <= 0 || c.Schedule.ErrorBackoffSeconds <= 0 {
		return errors.New("schedule intervals must be > 0")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := ParseClock(c.Market.Close); err != nil {
		return fmt.Errorf("market.close: %w", err)
	}
	if _, err := ParseClock(c.Market.Open); err != nil {
		return fmt.Errorf("market.open: %w", err)
	}
	if c.Sizing.Allocation <= 0 || c.Sizing.Allocation > 1 {
		return fmt.Errorf("sizing.allocation must be in (0, 1], got %.2f", c.Sizing.Allocation)
	}
	if c.Sizing.MinCash < 0 {
		return fmt.Errorf("sizing.min_cash must be >= 0, got %.2f", c.Sizing.MinCash)
	}
	if c.Mode == ModeLive && c.Broker.BaseURL == "" {
		return errors.New("broker.base_url is required in LIVE mode")
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(b)
}

// ParseConfig decodes YAML, applies defaults and validates.
func ParseConfig(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %v: %w", err, types.ErrInvalidConfiguration)
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeDryRun
	}
	c.Symbol = strings.ToUpper(strings.TrimSpace(c.Symbol))
	if c.Exchange == "" {
		c.Exchange = "NAS"
	}
	if c.Candles.Interval == "" {
		c.Candles.Interval = "5m"
	}
	if c.Candles.Period == "" {
		c.Candles.Period = "60d"
	}

	s := &c.Strategy
	if s.Mode == "" && len(s.Modes) == 0 {
		s.Mode = types.ModeMA5Touch.String()
	}
	if s.TargetMA == "" {
		s.TargetMA = string(types.TargetMAMid)
	}
	if s.Tolerance == 0 {
		s.Tolerance = types.DefaultSignalParams().Tolerance
	}
	grid := optimizer.DefaultGrid()
	if s.TakeProfit == (optimizer.Range{}) {
		s.TakeProfit = grid.TakeProfit
	}
	if s.StopLoss == (optimizer.Range{}) {
		s.StopLoss = grid.StopLoss
	}
	if s.InitialBalance == 0 {
		s.InitialBalance = optimizer.DefaultInitialBalance
	}
	if s.DefaultTakeProfit == 0 {
		s.DefaultTakeProfit = 1.0
	}
	if s.DefaultStopLoss == 0 {
		s.DefaultStopLoss = -3.0
	}
	w := ta.DefaultWindows()
	if s.Windows.Short == 0 {
		s.Windows.Short = w.Short
	}
	if s.Windows.Mid == 0 {
		s.Windows.Mid = w.Mid
	}
	if s.Windows.Long == 0 {
		s.Windows.Long = w.Long
	}

	if c.Schedule.RefreshSeconds == 0 {
		c.Schedule.RefreshSeconds = 300
	}
	if c.Schedule.PollSeconds == 0 {
		c.Schedule.PollSeconds = 3
	}
	if c.Schedule.ReportSeconds == 0 {
		c.Schedule.ReportSeconds = 30
	}
	if c.Schedule.ErrorBackoffSeconds == 0 {
		c.Schedule.ErrorBackoffSeconds = 60
	}

	if c.Market.Timezone == "" {
		c.Market.Timezone = "Asia/Seoul"
	}
	if c.Market.Close == "" {
		c.Market.Close = "05:00"
	}
	if c.Market.Open == "" {
		c.Market.Open = "18:00"
	}

	if c.Sizing.Allocation == 0 {
		c.Sizing.Allocation = 1.0
	}
	if c.Sizing.MinCash == 0 {
		c.Sizing.MinCash = 100
	}

	if c.Broker.RatePerSecond == 0 {
		c.Broker.RatePerSecond = 15
	}
	if c.Broker.TokenCache == "" {
		c.Broker.TokenCache = ".kis_token.yaml"
	}
	if c.Broker.PaperCash == 0 {
		c.Broker.PaperCash = 10000
	}
	if c.Status.Addr == "" {
		c.Status.Addr = ":8080"
	}
}

// StrategyModes returns the candidate modes for the optimizer. `modes` wins over `mode`.
func (c *Config) StrategyModes() ([]types.Mode, error) {
	names := c.Strategy.Modes
	if len(names) == 0 {
		names = []string{c.Strategy.Mode}
	}
	out := make([]types.Mode, 0, len(names))
	for _, n := range names {
		m, err := types.ParseMode(n)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (c *Config) SignalParams() types.SignalParams {
	return types.SignalParams{
		TargetMA:  types.TargetMA(c.Strategy.TargetMA),
		Tolerance: c.Strategy.Tolerance,
		Strict:    c.Strategy.Strict,
	}
}

func (c *Config) Windows() ta.Windows {
	return ta.Windows{Short: c.Strategy.Windows.Short, Mid: c.Strategy.Windows.Mid, Long: c.Strategy.Windows.Long}
}

// Grid builds the optimizer search space.
func (c *Config) Grid() optimizer.Grid {
	modes, _ := c.StrategyModes()
	return optimizer.Grid{
		Modes:          modes,
		TakeProfit:     c.Strategy.TakeProfit,
		StopLoss:       c.Strategy.StopLoss,
		InitialBalance: c.Strategy.InitialBalance,
		Params:         c.SignalParams(),
		Windows:        c.Windows(),
	}
}

// DefaultThresholds are used until the first successful optimization.
func (c *Config) DefaultThresholds() types.ThresholdConfig {
	modes, _ := c.StrategyModes()
	mode := types.ModeMA5Touch
	if len(modes) > 0 {
		mode = modes[0]
	}
	return types.ThresholdConfig{
		Mode:          mode,
		TakeProfitPct: c.Strategy.DefaultTakeProfit,
		StopLossPct:   c.Strategy.DefaultStopLoss,
	}
}

func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Market.Timezone)
	if err != nil {
		return nil, fmt.Errorf("market.timezone %q: %w", c.Market.Timezone, err)
	}
	return loc, nil
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Schedule.PollSeconds) * time.Second
}

func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Schedule.RefreshSeconds) * time.Second
}

func (c *Config) ReportInterval() time.Duration {
	return time.Duration(c.Schedule.ReportSeconds) * time.Second
}

func (c *Config) ErrorBackoff() time.Duration {
	return time.Duration(c.Schedule.ErrorBackoffSeconds) * time.Second
}

// ParseClock parses a wall-clock "HH:MM" into minutes after midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q, want HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}
