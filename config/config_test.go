package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"nesram/signature"
	"nesram/test"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	test.ExpectSuccess(t, cfg.Validate())
	test.ExpectEquality(t, cfg.ProcessName, "mednafen")
	test.ExpectEquality(t, cfg.Stride, 16)
	test.ExpectEquality(t, time.Duration(cfg.FrameDelay), 50*time.Millisecond)
	test.ExpectEquality(t, cfg.AutoReconnect, false)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nesram.json")
	data := `{"pid": 4242, "frame_delay": "100ms", "tie_break": "lowest", "revalidate_every": 8}`
	test.DemandSuccess(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	test.DemandSuccess(t, err)
	test.ExpectEquality(t, cfg.PID, 4242)
	test.ExpectEquality(t, time.Duration(cfg.FrameDelay), 100*time.Millisecond)
	test.ExpectEquality(t, cfg.TieBreak, "lowest")
	test.ExpectEquality(t, cfg.RevalidateEvery, 8)
	// untouched keys keep defaults
	test.ExpectEquality(t, cfg.ProcessName, "mednafen")
	test.ExpectEquality(t, cfg.MaxFrameDelta, 128)
}

func TestLoadInvalid(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.json")
	test.DemandSuccess(t, os.WriteFile(bad, []byte(`{"tie_break": "random"}`), 0644))
	_, err := Load(bad)
	test.ExpectErrorIs(t, err, ErrInvalidConfig)

	broken := filepath.Join(dir, "broken.json")
	test.DemandSuccess(t, os.WriteFile(broken, []byte(`{"stride":`), 0644))
	_, err = Load(broken)
	test.ExpectFailure(t, err)

	_, err = Load(filepath.Join(dir, "missing.json"))
	test.ExpectFailure(t, err)
}

func TestValidate(t *testing.T) {
	for _, edit := range []func(*Config){
		func(c *Config) { c.ProcessName = "" },
		func(c *Config) { c.PID = -1 },
		func(c *Config) { c.MinRegionSize = 0x100 },
		func(c *Config) { c.MaxRegionSize = 0x400 },
		func(c *Config) { c.MaxScanBytes = 0 },
		func(c *Config) { c.Stride = 0 },
		func(c *Config) { c.FrameDelay = 0 },
		func(c *Config) { c.MaxFrameDelta = 256 },
		func(c *Config) { c.RevalidateEvery = 0 },
		func(c *Config) { c.RevalidateInterval = 0 },
	} {
		cfg := Default()
		edit(&cfg)
		test.ExpectErrorIs(t, cfg.Validate(), ErrInvalidConfig)
	}
}

func TestRegisterFlags(t *testing.T) {
	cfg := Default()
	fs := flag.NewFlagSet("nesram", flag.ContinueOnError)
	cfg.RegisterFlags(fs)

	err := fs.Parse([]string{"-pid", "77", "-frame-delay", "20ms", "-tie-break", "highest", "-auto-reconnect", "-ws", ":8765"})
	test.DemandSuccess(t, err)
	test.ExpectEquality(t, cfg.PID, 77)
	test.ExpectEquality(t, time.Duration(cfg.FrameDelay), 20*time.Millisecond)
	test.ExpectEquality(t, cfg.TieBreak, "highest")
	test.ExpectEquality(t, cfg.AutoReconnect, true)
	test.ExpectEquality(t, cfg.WebsocketAddr, ":8765")
}

func TestValidator(t *testing.T) {
	cfg := Default()
	cfg.Stride = 32
	cfg.TieBreak = "lowest"
	cfg.MaxFrameDelta = 10

	v, err := cfg.Validator()
	test.DemandSuccess(t, err)
	test.ExpectEquality(t, v.Stride, 32)
	test.ExpectEquality(t, v.TieBreak, signature.TieLowest)
	test.ExpectEquality(t, v.Signature.Frame.MaxDelta, byte(10))
	test.ExpectEquality(t, v.Signature.Frame.Delay, 50*time.Millisecond)

	opts := cfg.EngineOptions()
	test.ExpectEquality(t, opts.Filter.MinSize, uint(0x800))
	test.ExpectEquality(t, opts.RevalidateInterval, time.Second)
}

func TestDurationJSON(t *testing.T) {
	var d Duration
	test.ExpectSuccess(t, d.UnmarshalJSON([]byte(`"1.5s"`)))
	test.ExpectEquality(t, time.Duration(d), 1500*time.Millisecond)
	test.ExpectSuccess(t, d.UnmarshalJSON([]byte(`1000`)))
	test.ExpectEquality(t, time.Duration(d), time.Microsecond)
	test.ExpectFailure(t, d.UnmarshalJSON([]byte(`"soon"`)))

	b, err := Duration(time.Second).MarshalJSON()
	test.DemandSuccess(t, err)
	test.ExpectEquality(t, string(b), `"1s"`)
}
