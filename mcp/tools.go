package mcp

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"nesram/drmario"
	"nesram/engine"
	"nesram/hexdump"

	gomcp "github.com/mark3labs/mcp-go/mcp"
)

// ErrInvalidArgument is returned for tool arguments that cannot be used.
var ErrInvalidArgument = errors.New("invalid argument")

const KindInvalidArgument = "InvalidArgument"

// ErrorKind extends engine.ErrorKind with argument errors.
func ErrorKind(err error) string {
	if errors.Is(err, ErrInvalidArgument) {
		return KindInvalidArgument
	}
	return engine.ErrorKind(err)
}

type Handler func(ctx context.Context, args json.RawMessage) (any, error)

type Tool struct {
	Name        string
	Description string
	Options     []gomcp.ToolOption // input schema
	Handler     Handler
}

func (t Tool) definition() gomcp.Tool {
	opts := append([]gomcp.ToolOption{gomcp.WithDescription(t.Description)}, t.Options...)
	return gomcp.NewTool(t.Name, opts...)
}

const numberHint = `; strings such as "0x43" or "$43" also work`

// Number is an integer argument. Besides JSON numbers it accepts strings
// such as "0x43", "$43" or "67".
type Number int

func (n *Number) UnmarshalJSON(b []byte) error {
	var i int
	if err := json.Unmarshal(b, &i); err == nil {
		*n = Number(i)
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: %s is not an integer", ErrInvalidArgument, b)
	}
	v, err := ParseNumber(s)
	if err != nil {
		return err
	}
	*n = Number(v)
	return nil
}

// ParseNumber parses decimal, 0x-prefixed or $-prefixed hex.
func ParseNumber(s string) (int, error) {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "$"); ok {
		s = "0x" + rest
	}
	v, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: '%s' is not an integer", ErrInvalidArgument, s)
	}
	return int(v), nil
}

func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		if errors.Is(err, ErrInvalidArgument) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return nil
}

// first returns the first argument that was given.
func first(ns ...*Number) (int, bool) {
	for _, n := range ns {
		if n != nil {
			return int(*n), true
		}
	}
	return 0, false
}

func hexAddr(addr uint64) string {
	return fmt.Sprintf("0x%x", addr)
}

func defaultTools(eng *engine.Engine) []Tool {
	return []Tool{
		{
			Name:        "connect",
			Description: "Attach to the emulator and locate the NES RAM window",
			Handler:     connectTool(eng),
		},
		{
			Name:        "read_memory",
			Description: "Read bytes from NES RAM ($0000-$07FF)",
			Options: []gomcp.ToolOption{
				gomcp.WithNumber("offset", gomcp.Description("NES RAM offset (0x0000-0x07FF)"+numberHint)),
				gomcp.WithNumber("address", gomcp.Description("Alias of offset")),
				gomcp.WithNumber("length", gomcp.Description("Number of bytes to read"), gomcp.DefaultNumber(1)),
				gomcp.WithNumber("size", gomcp.Description("Alias of length")),
			},
			Handler: readTool(eng),
		},
		{
			Name:        "write_memory",
			Description: "Write bytes to NES RAM",
			Options: []gomcp.ToolOption{
				gomcp.WithNumber("offset", gomcp.Description("NES RAM offset (0x0000-0x07FF)"+numberHint)),
				gomcp.WithNumber("address", gomcp.Description("Alias of offset")),
				gomcp.WithArray("data",
					gomcp.Required(),
					gomcp.Description("Bytes to write (0-255)"),
					gomcp.Items(map[string]any{"type": "integer", "minimum": 0, "maximum": 255}),
				),
			},
			Handler: writeTool(eng),
		},
		{
			Name:        "game_state",
			Description: "Decode Dr. Mario state: mode, capsules, positions, levels, viruses and playfields",
			Handler:     gameStateTool(eng),
		},
		{
			Name:        "playfield",
			Description: "Render a player's playfield as text",
			Options: []gomcp.ToolOption{
				gomcp.WithNumber("player", gomcp.Description("1 or 2"), gomcp.DefaultNumber(1), gomcp.Min(1), gomcp.Max(2)),
			},
			Handler: playfieldTool(eng),
		},
		{
			Name:        "find_ram",
			Description: "Run discovery without binding and report every candidate region",
			Handler:     findRAMTool(eng),
		},
		{
			Name:        "get_maps",
			Description: "List the emulator's memory map (debugging)",
			Handler:     mapsTool(eng),
		},
	}
}

type connectOutput struct {
	Status      string `json:"status"`
	BaseAddress string `json:"base_address,omitempty"`
	Region      string `json:"region,omitempty"`
	PID         int    `json:"pid"`
	State       string `json:"state"`
	Matches     int    `json:"matches,omitempty"`
	Ambiguous   bool   `json:"ambiguous,omitempty"`
}

func connectTool(eng *engine.Engine) Handler {
	return func(ctx context.Context, _ json.RawMessage) (any, error) {
		res, err := eng.Connect(ctx)
		if err != nil {
			return nil, err
		}

		out := connectOutput{
			Status: string(res.Status),
			PID:    int(res.Process.PID),
			State:  res.State.String(),
		}
		if res.Status == engine.StatusConnected {
			out.BaseAddress = hexAddr(uint64(res.Binding.Base))
			out.Region = res.Binding.Region.Line()
		} else if res.Result != nil {
			out.Matches = len(res.Result.Matches)
			out.Ambiguous = res.Result.Ambiguous
		}
		return out, nil
	}
}

type readArgs struct {
	Offset  *Number `json:"offset"`
	Address *Number `json:"address"`
	Length  *Number `json:"length"`
	Size    *Number `json:"size"`
}

type readOutput struct {
	Offset int    `json:"offset"`
	Length int    `json:"length"`
	Hex    string `json:"hex"`
	Values []int  `json:"values"`
	Dump   string `json:"dump"`
}

func readTool(eng *engine.Engine) Handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args readArgs
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		offset, ok := first(args.Offset, args.Address)
		if !ok {
			return nil, fmt.Errorf("%w: offset is required", ErrInvalidArgument)
		}
		length, ok := first(args.Length, args.Size)
		if !ok {
			length = 1
		}

		data, err := eng.Read(ctx, offset, length)
		if err != nil {
			return nil, err
		}

		values := make([]int, len(data))
		for i, b := range data {
			values[i] = int(b)
		}
		return readOutput{
			Offset: offset,
			Length: len(data),
			Hex:    hex.EncodeToString(data),
			Values: values,
			Dump:   hexdump.DumpWithOffset(data, uint64(offset)),
		}, nil
	}
}

type writeArgs struct {
	Offset  *Number  `json:"offset"`
	Address *Number  `json:"address"`
	Data    []Number `json:"data"`
}

type writeOutput struct {
	OK     bool `json:"ok"`
	Offset int  `json:"offset"`
	Length int  `json:"length"`
}

func writeTool(eng *engine.Engine) Handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args writeArgs
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		offset, ok := first(args.Offset, args.Address)
		if !ok {
			return nil, fmt.Errorf("%w: offset is required", ErrInvalidArgument)
		}
		if args.Data == nil {
			return nil, fmt.Errorf("%w: data is required", ErrInvalidArgument)
		}

		data := make([]byte, len(args.Data))
		for i, v := range args.Data {
			if v < 0 || v > 0xFF {
				return nil, fmt.Errorf("%w: data[%d] = %d is not a byte", ErrInvalidArgument, i, v)
			}
			data[i] = byte(v)
		}

		if err := eng.Write(ctx, offset, data); err != nil {
			return nil, err
		}
		return writeOutput{OK: true, Offset: offset, Length: len(data)}, nil
	}
}

func gameStateTool(eng *engine.Engine) Handler {
	return func(ctx context.Context, _ json.RawMessage) (any, error) {
		window, err := eng.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		return drmario.Decode(window)
	}
}

type playfieldArgs struct {
	Player *Number `json:"player"`
}

type playfieldOutput struct {
	Player    int    `json:"player"`
	Playfield string `json:"playfield"`
}

func playfieldTool(eng *engine.Engine) Handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args playfieldArgs
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		player := 1
		if args.Player != nil {
			player = int(*args.Player)
		}
		if player != 1 && player != 2 {
			return nil, fmt.Errorf("%w: player must be 1 or 2, got %d", ErrInvalidArgument, player)
		}

		field, err := eng.Read(ctx, drmario.PlayfieldAddr(player), drmario.PlayfieldSize)
		if err != nil {
			return nil, err
		}
		text, err := drmario.Render(field, player, false)
		if err != nil {
			return nil, err
		}
		return playfieldOutput{Player: player, Playfield: text}, nil
	}
}

type regionReport struct {
	Address       string   `json:"address"`
	Size          uint     `json:"size"`
	Perms         string   `json:"perms"`
	Path          string   `json:"path,omitempty"`
	Scanned       uint     `json:"scanned"`
	BestScore     int      `json:"best_score"`
	BestAt        string   `json:"best_at,omitempty"`
	StaticMatches []string `json:"static_matches,omitempty"`
	Advanced      []string `json:"advanced,omitempty"`
	ReadError     string   `json:"read_error,omitempty"`
}

type findOutput struct {
	PID        int            `json:"pid"`
	Regions    int            `json:"regions"`
	Candidates int            `json:"candidates"`
	MaxScore   int            `json:"max_score"`
	Found      bool           `json:"found"`
	Chosen     string         `json:"chosen,omitempty"`
	Matches    []string       `json:"matches,omitempty"`
	Ambiguous  bool           `json:"ambiguous,omitempty"`
	Reports    []regionReport `json:"reports"`
}

func findRAMTool(eng *engine.Engine) Handler {
	return func(ctx context.Context, _ json.RawMessage) (any, error) {
		report, err := eng.FindRAM(ctx)
		if err != nil {
			return nil, err
		}

		res := report.Result
		out := findOutput{
			PID:        int(report.Process.PID),
			Regions:    report.Regions,
			Candidates: report.Candidates,
			MaxScore:   res.MaxScore,
			Found:      res.Found,
			Ambiguous:  res.Ambiguous,
			Reports:    make([]regionReport, 0, len(res.Reports)),
		}
		if res.Found {
			out.Chosen = hexAddr(uint64(res.Match))
		}
		for _, m := range res.Matches {
			out.Matches = append(out.Matches, hexAddr(uint64(m)))
		}

		for _, r := range res.Reports {
			rr := regionReport{
				Address:   hexAddr(r.Region.Address),
				Size:      r.Region.Size,
				Perms:     r.Region.Perms,
				Path:      r.Region.Path,
				Scanned:   r.Scanned,
				BestScore: r.BestScore,
				ReadError: r.ReadError,
			}
			if r.BestScore > 0 {
				rr.BestAt = hexAddr(uint64(r.BestAt))
			}
			for _, a := range r.StaticMatches {
				rr.StaticMatches = append(rr.StaticMatches, hexAddr(uint64(a)))
			}
			for _, a := range r.Advanced {
				rr.Advanced = append(rr.Advanced, hexAddr(uint64(a)))
			}
			out.Reports = append(out.Reports, rr)
		}
		return out, nil
	}
}

type mapEntry struct {
	Address  string `json:"address"`
	End      string `json:"end"`
	Size     uint   `json:"size"`
	Perms    string `json:"perms"`
	Path     string `json:"path,omitempty"`
	Rejected string `json:"rejected,omitempty"` // why the candidate filter skips it
}

type mapsOutput struct {
	PID     int        `json:"pid"`
	Count   int        `json:"count"`
	Regions []mapEntry `json:"regions"`
	Maps    string     `json:"maps"`
}

func mapsTool(eng *engine.Engine) Handler {
	return func(ctx context.Context, _ json.RawMessage) (any, error) {
		items, err := eng.Maps(ctx)
		if err != nil {
			return nil, err
		}

		filter := eng.Filter()
		out := mapsOutput{
			PID:     int(eng.Process().PID),
			Count:   len(items),
			Regions: make([]mapEntry, 0, len(items)),
		}
		var lines strings.Builder
		for _, item := range items {
			out.Regions = append(out.Regions, mapEntry{
				Address:  hexAddr(item.Address),
				End:      hexAddr(item.End()),
				Size:     item.Size,
				Perms:    item.Perms,
				Path:     item.Path,
				Rejected: filter.Reason(item),
			})
			lines.WriteString(item.Line())
			lines.WriteByte('\n')
		}
		out.Maps = lines.String()
		return out, nil
	}
}
