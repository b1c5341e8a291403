package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"nesram/coloransi"
	"nesram/drmario"
	"nesram/engine"
	"nesram/hexdump"
	"nesram/mcp"
	"nesram/pod"
	"nesram/process"
	"nesram/process_blob"
)

type cli struct {
	eng  *engine.Engine
	opts *options
	out  io.Writer
}

type command struct {
	name  string
	usage string
	help  string
	run   func(ctx context.Context, c *cli, args []string) error
}

var commands = []command{
	{"connect", "connect", "Locate the NES RAM window", cmdConnect},
	{"read", "read <off> [len]", "Hex dump RAM bytes", cmdRead},
	{"write", "write <off> <hex>", "Write bytes, e.g. write 0x0301 02", cmdWrite},
	{"state", "state", "Print the decoded Dr. Mario state", cmdState},
	{"playfield", "playfield [1|2]", "Draw one or both playfields", cmdPlayfield},
	{"find", "find", "Run discovery and report every candidate region", cmdFind},
	{"maps", "maps", "List the emulator's memory map", cmdMaps},
	{"aob", "aob [-limit n] <pattern>", "Search process memory for a byte pattern", cmdAOB},
	{"watch", "watch [interval]", "Follow the game, reconnecting when needed", cmdWatch},
	{"dump", "dump [-all] <dir>", "Save the emulator's memory for offline use", cmdDump},
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func (c *cli) printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.out, string(data))
	return err
}

// connect binds the window or explains why it could not.
func (c *cli) connect(ctx context.Context) (engine.ConnectResult, error) {
	res, err := c.eng.Connect(ctx)
	if err != nil {
		return res, err
	}
	if res.Status != engine.StatusConnected {
		if res.Result != nil && res.Result.Ambiguous {
			return res, fmt.Errorf("%w: %d windows look live, see -tie-break", engine.ErrNotConnected, len(res.Result.Matches))
		}
		return res, fmt.Errorf("%w: NES RAM not found in %s, is a game running?", engine.ErrNotConnected, res.Process)
	}
	return res, nil
}

func cmdConnect(ctx context.Context, c *cli, args []string) error {
	res, err := c.connect(ctx)
	if err != nil {
		return err
	}
	if c.opts.asJSON {
		return c.printJSON(map[string]any{
			"status":       res.Status,
			"pid":          res.Process.PID,
			"state":        res.State.String(),
			"base_address": fmt.Sprintf("0x%x", uint64(res.Binding.Base)),
			"region":       res.Binding.Region.Line(),
		})
	}
	fmt.Fprintf(c.out, "Connected to %s\n", res.Process)
	fmt.Fprintf(c.out, "NES RAM at %s\n", res.Binding.Base.ToString())
	fmt.Fprintf(c.out, "Region     %s\n", res.Binding.Region.Line())
	return nil
}

func parseOffset(s string) (int, error) {
	v, err := mcp.ParseNumber(s)
	if err != nil {
		return 0, usageError("bad offset '%s'", s)
	}
	return v, nil
}

func cmdRead(ctx context.Context, c *cli, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return usageError("read <off> [len]")
	}
	offset, err := parseOffset(args[0])
	if err != nil {
		return err
	}
	length := 1
	if len(args) == 2 {
		if length, err = mcp.ParseNumber(args[1]); err != nil {
			return usageError("bad length '%s'", args[1])
		}
	}

	if _, err := c.connect(ctx); err != nil {
		return err
	}
	data, err := c.eng.Read(ctx, offset, length)
	if err != nil {
		return err
	}

	if c.opts.asJSON {
		return c.printJSON(map[string]any{"offset": offset, "length": len(data), "hex": hex.EncodeToString(data)})
	}
	options := hexdump.DefaultOptions()
	options.Color = coloransi.Enabled
	options.StartOffset = uint64(offset)
	hexdump.DumpToWriter(c.out, data, options)
	return nil
}

func cmdWrite(ctx context.Context, c *cli, args []string) error {
	if len(args) < 2 {
		return usageError("write <off> <hex>")
	}
	offset, err := parseOffset(args[0])
	if err != nil {
		return err
	}
	data, err := hex.DecodeString(strings.Join(args[1:], ""))
	if err != nil {
		return usageError("bad hex data: %v", err)
	}

	if _, err := c.connect(ctx); err != nil {
		return err
	}
	if err := c.eng.Write(ctx, offset, data); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Wrote %d bytes at $%04X\n", len(data), offset)
	return nil
}

func (c *cli) snapshot(ctx context.Context) ([]byte, error) {
	if _, err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c.eng.Snapshot(ctx)
}

func cmdState(ctx context.Context, c *cli, args []string) error {
	window, err := c.snapshot(ctx)
	if err != nil {
		return err
	}

	if c.opts.asJSON {
		gs, err := drmario.Decode(window)
		if err != nil {
			return err
		}
		return c.printJSON(gs)
	}

	ram, err := drmario.DecodeRAM(window)
	if err != nil {
		return err
	}
	if err := pod.PrintStruct(ram, 0, c.out); err != nil {
		return err
	}

	gs, err := drmario.Decode(window)
	if err != nil {
		return err
	}
	for _, p := range gs.Players {
		fmt.Fprintf(c.out, "P%d: %d viruses on field, %d capsule halves, next %s/%s\n",
			p.Player, len(p.Viruses), len(p.Capsules), p.Capsule.LeftName, p.Capsule.RightName)
	}
	return nil
}

func cmdPlayfield(ctx context.Context, c *cli, args []string) error {
	players := []int{1, 2}
	if len(args) > 0 {
		p, err := strconv.Atoi(args[0])
		if err != nil || (p != 1 && p != 2) {
			return usageError("player must be 1 or 2")
		}
		players = []int{p}
	}

	window, err := c.snapshot(ctx)
	if err != nil {
		return err
	}
	for _, p := range players {
		addr := drmario.PlayfieldAddr(p)
		text, err := drmario.Render(window[addr:addr+drmario.PlayfieldSize], p, coloransi.Enabled)
		if err != nil {
			return err
		}
		fmt.Fprint(c.out, text)
	}
	return nil
}

func cmdFind(ctx context.Context, c *cli, args []string) error {
	report, err := c.eng.FindRAM(ctx)
	if err != nil {
		return err
	}
	res := report.Result

	if c.opts.asJSON {
		return c.printJSON(report)
	}

	full := strconv.Itoa(res.MaxScore)
	table := pod.NewTable(
		pod.ColumnSpec{Header: "Region"},
		pod.ColumnSpec{Header: "Size", Right: true},
		pod.ColumnSpec{Header: "Perms"},
		pod.ColumnSpec{Header: "Scanned", Right: true},
		pod.ColumnSpec{Header: "Best", Right: true, FormatFunc: pod.Highlight(coloransi.BrightGreen, func(v string) bool { return v == full })},
		pod.ColumnSpec{Header: "Best at"},
		pod.ColumnSpec{Header: "Static", Right: true},
		pod.ColumnSpec{Header: "Live", Right: true},
		pod.ColumnSpec{Header: "Error"},
	)
	for _, r := range res.Reports {
		bestAt := ""
		if r.BestScore > 0 {
			bestAt = r.BestAt.ToString()
		}
		table.AddRow(
			fmt.Sprintf("0x%x", r.Region.Address),
			process.ProcessMemorySize(r.Region.Size).ToString(),
			r.Region.Perms,
			strconv.FormatUint(uint64(r.Scanned), 10),
			strconv.Itoa(r.BestScore),
			bestAt,
			strconv.Itoa(len(r.StaticMatches)),
			strconv.Itoa(len(r.Advanced)),
			r.ReadError,
		)
	}

	fmt.Fprintf(c.out, "%s: %d regions, %d candidates, signature has %d checks\n",
		report.Process, report.Regions, report.Candidates, res.MaxScore)
	if err := table.Render(c.out); err != nil {
		return err
	}

	switch {
	case res.Found:
		fmt.Fprintf(c.out, "NES RAM at %s\n", res.Match.ToString())
	case res.Ambiguous:
		fmt.Fprintf(c.out, "%d live windows, refusing to choose\n", len(res.Matches))
	default:
		fmt.Fprintln(c.out, "NES RAM not found")
	}
	return nil
}

func cmdMaps(ctx context.Context, c *cli, args []string) error {
	items, err := c.eng.Maps(ctx)
	if err != nil {
		return err
	}
	if c.opts.asJSON {
		return c.printJSON(items)
	}

	filter := c.eng.Filter()
	table := pod.NewTable(
		pod.ColumnSpec{Header: "Start"},
		pod.ColumnSpec{Header: "End"},
		pod.ColumnSpec{Header: "Size", Right: true},
		pod.ColumnSpec{Header: "Perms"},
		pod.ColumnSpec{Header: "Path"},
		pod.ColumnSpec{Header: "Candidate", FormatFunc: pod.Highlight(coloransi.BrightGreen, func(v string) bool { return v == "yes" })},
	)
	for _, item := range items {
		candidate := "yes"
		if reason := filter.Reason(item); reason != "" {
			candidate = "no: " + reason
		}
		table.AddRow(
			fmt.Sprintf("0x%x", item.Address),
			fmt.Sprintf("0x%x", item.End()),
			process.ProcessMemorySize(item.Size).ToString(),
			item.Perms,
			item.Path,
			candidate,
		)
	}
	return table.Render(c.out)
}

func cmdAOB(ctx context.Context, c *cli, args []string) error {
	fs := flag.NewFlagSet("aob", flag.ContinueOnError)
	limit := fs.Int("limit", 32, "Stop after this many matches (0 for all)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return usageError("aob [-limit n] <pattern>")
	}

	aob, err := process.ParseAOB(strings.Join(fs.Args(), " "))
	if err != nil {
		return usageError("%v", err)
	}

	matches, err := c.eng.Scan(ctx, aob, *limit)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Found %d matches\n", len(matches))

	options := hexdump.DefaultOptions()
	options.Color = coloransi.Enabled
	options.OffsetWidth = 12
	options.MaxLines = 4
	if !slices.Contains(aob.Mask, 0) {
		options.HighlightPattern = aob.Pattern
	}

	return c.eng.WithProcess(ctx, func(proc process.Process, h process.Handle) error {
		for _, match := range matches {
			fmt.Fprintf(c.out, "\nMatch at %s:\n", match.ToString())
			start := match &^ 0xF
			data, err := proc.ReadMemory(start, 48)
			if err != nil {
				fmt.Fprintln(c.out, "  context not readable:", err)
				continue
			}
			options.StartOffset = uint64(start)
			hexdump.DumpToWriter(c.out, data, options)
		}
		return nil
	})
}

// cmdWatch polls the game and reconnects on its own when the binding is
// lost, so it survives emulator restarts and save state loads.
func cmdWatch(ctx context.Context, c *cli, args []string) error {
	interval := 250 * time.Millisecond
	if len(args) > 0 {
		d, err := time.ParseDuration(args[0])
		if err != nil {
			return usageError("bad interval: %v", err)
		}
		interval = d
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastFrame := -1
	for {
		window, err := c.eng.Snapshot(ctx)
		switch {
		case errors.Is(err, engine.ErrNotConnected):
			if _, err := c.connect(ctx); err != nil {
				fmt.Fprintf(c.out, "waiting: %v\n", err)
			}
		case err != nil && ctx.Err() == nil:
			fmt.Fprintf(c.out, "%s: %v\n", engine.ErrorKind(err), err)
		case err == nil:
			gs, _ := drmario.Decode(window)
			if int(gs.Frame) != lastFrame {
				lastFrame = int(gs.Frame)
				fmt.Fprintf(c.out, "frame %3d mode %d | P1 lvl %2d viruses %2d | P2 lvl %2d viruses %2d\n",
					gs.Frame, gs.GameMode,
					gs.Players[0].Level, gs.Players[0].VirusCount,
					gs.Players[1].Level, gs.Players[1].VirusCount)
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func cmdDump(ctx context.Context, c *cli, args []string) error {
	fs := flag.NewFlagSet("dump", flag.ContinueOnError)
	all := fs.Bool("all", false, "Save every readable region, not only candidates")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usageError("dump [-all] <dir>")
	}
	dir := fs.Arg(0)

	keep := c.eng.Filter().Keep
	if *all {
		keep = nil
	}

	return c.eng.WithProcess(ctx, func(proc process.Process, h process.Handle) error {
		meta := process_blob.Metadata{PID: h.PID, Name: h.Name, StartTime: h.StartTime}
		stats, err := process_blob.Save(proc, meta, dir, keep)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "Saved %d regions to %s (%d filtered, %d unreadable, %d too large, %d read errors)\n",
			stats.Saved, dir, stats.Filtered, stats.NotReadable, stats.TooLarge, stats.ReadErrors)
		return nil
	})
}
