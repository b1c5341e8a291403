// Package config holds the settings shared by the CLI and the tool server.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"nesram/candidate"
	"nesram/drmario"
	"nesram/engine"
	"nesram/signature"
)

var ErrInvalidConfig = errors.New("invalid config")

// Duration is a time.Duration written as "50ms" in JSON.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		// bare numbers are nanoseconds
		var n int64
		if err2 := json.Unmarshal(b, &n); err2 != nil {
			return fmt.Errorf("duration: %w", err)
		}
		*d = Duration(n)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	*d = Duration(v)
	return nil
}

type Config struct {
	ProcessName string `json:"process_name"`
	PID         int    `json:"pid,omitempty"`

	MinRegionSize uint `json:"min_region_size"`
	MaxRegionSize uint `json:"max_region_size"`
	MaxScanBytes  uint `json:"max_scan_bytes"`
	Stride        int  `json:"stride"`

	FrameDelay    Duration `json:"frame_delay"`
	MaxFrameDelta int      `json:"max_frame_delta"`
	TieBreak      string   `json:"tie_break"`

	RevalidateEvery    int      `json:"revalidate_every"`
	RevalidateInterval Duration `json:"revalidate_interval"`
	AutoReconnect      bool     `json:"auto_reconnect"`

	// WebsocketAddr enables the websocket transport of the tool server
	WebsocketAddr string `json:"websocket_addr,omitempty"`
}

func Default() Config {
	return Config{
		ProcessName:        "mednafen",
		MinRegionSize:      candidate.DefaultMinSize,
		MaxRegionSize:      candidate.DefaultMaxSize,
		MaxScanBytes:       signature.DefaultMaxScanBytes,
		Stride:             signature.DefaultStride,
		FrameDelay:         Duration(drmario.DefaultFrameDelay),
		MaxFrameDelta:      drmario.DefaultMaxFrameDelta,
		TieBreak:           string(signature.TieReject),
		RevalidateEvery:    engine.DefaultRevalidateEvery,
		RevalidateInterval: Duration(engine.DefaultRevalidateInterval),
	}
}

// Load reads a JSON file over the defaults. Keys missing from the file
// keep their default value.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.ProcessName, "process", c.ProcessName, "Emulator process name")
	fs.IntVar(&c.PID, "pid", c.PID, "Emulator process ID (overrides -process)")
	fs.UintVar(&c.MinRegionSize, "min-region", c.MinRegionSize, "Smallest candidate region in bytes")
	fs.UintVar(&c.MaxRegionSize, "max-region", c.MaxRegionSize, "Largest candidate region in bytes")
	fs.UintVar(&c.MaxScanBytes, "scan-bytes", c.MaxScanBytes, "Bytes scanned per candidate region")
	fs.IntVar(&c.Stride, "stride", c.Stride, "Alignment of candidate windows")
	fs.Func("frame-delay", "Wait between frame counter reads (default "+time.Duration(c.FrameDelay).String()+")", func(s string) error {
		d, err := time.ParseDuration(s)
		c.FrameDelay = Duration(d)
		return err
	})
	fs.IntVar(&c.MaxFrameDelta, "max-frame-delta", c.MaxFrameDelta, "Largest frame counter advance accepted")
	fs.StringVar(&c.TieBreak, "tie-break", c.TieBreak, "Policy for several live windows: reject, lowest or highest")
	fs.IntVar(&c.RevalidateEvery, "revalidate-every", c.RevalidateEvery, "Recheck the binding every N operations")
	fs.Func("revalidate-interval", "Recheck the binding after this long (default "+time.Duration(c.RevalidateInterval).String()+")", func(s string) error {
		d, err := time.ParseDuration(s)
		c.RevalidateInterval = Duration(d)
		return err
	})
	fs.BoolVar(&c.AutoReconnect, "auto-reconnect", c.AutoReconnect, "Rediscover on access after the binding went stale")
	fs.StringVar(&c.WebsocketAddr, "ws", c.WebsocketAddr, "Serve tools over websocket on this address")
}

func (c Config) Validate() error {
	switch {
	case c.ProcessName == "" && c.PID == 0:
		return fmt.Errorf("%w: need a process name or pid", ErrInvalidConfig)
	case c.PID < 0:
		return fmt.Errorf("%w: pid %d", ErrInvalidConfig, c.PID)
	case c.MinRegionSize < engine.WindowSize:
		return fmt.Errorf("%w: min_region_size 0x%x is below the window size", ErrInvalidConfig, c.MinRegionSize)
	case c.MaxRegionSize < c.MinRegionSize:
		return fmt.Errorf("%w: max_region_size 0x%x < min_region_size 0x%x", ErrInvalidConfig, c.MaxRegionSize, c.MinRegionSize)
	case c.MaxScanBytes < engine.WindowSize:
		return fmt.Errorf("%w: max_scan_bytes 0x%x is below the window size", ErrInvalidConfig, c.MaxScanBytes)
	case c.Stride <= 0:
		return fmt.Errorf("%w: stride %d", ErrInvalidConfig, c.Stride)
	case c.FrameDelay <= 0:
		return fmt.Errorf("%w: frame_delay must be positive", ErrInvalidConfig)
	case c.MaxFrameDelta < 1 || c.MaxFrameDelta > 255:
		return fmt.Errorf("%w: max_frame_delta %d not in 1..255", ErrInvalidConfig, c.MaxFrameDelta)
	case c.RevalidateEvery <= 0:
		return fmt.Errorf("%w: revalidate_every %d", ErrInvalidConfig, c.RevalidateEvery)
	case c.RevalidateInterval <= 0:
		return fmt.Errorf("%w: revalidate_interval must be positive", ErrInvalidConfig)
	}
	if _, err := signature.ParseTieBreak(c.TieBreak); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func (c Config) Filter() candidate.Filter {
	f := candidate.Default()
	f.MinSize = c.MinRegionSize
	f.MaxSize = c.MaxRegionSize
	return f
}

// Signature is the Dr. Mario signature with the configured frame check.
func (c Config) Signature() signature.Signature {
	sig := drmario.Signature()
	sig.Frame.Delay = time.Duration(c.FrameDelay)
	sig.Frame.MaxDelta = byte(c.MaxFrameDelta)
	return sig
}

func (c Config) Validator() (*signature.Validator, error) {
	tie, err := signature.ParseTieBreak(c.TieBreak)
	if err != nil {
		return nil, err
	}
	v := signature.NewValidator(c.Signature())
	v.Stride = c.Stride
	v.MaxScanBytes = c.MaxScanBytes
	v.TieBreak = tie
	return v, nil
}

func (c Config) EngineOptions() engine.Options {
	return engine.Options{
		Filter:             c.Filter(),
		RevalidateEvery:    c.RevalidateEvery,
		RevalidateInterval: time.Duration(c.RevalidateInterval),
		AutoReconnect:      c.AutoReconnect,
	}
}
