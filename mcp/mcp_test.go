package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"nesram/drmario"
	"nesram/engine"
	"nesram/process/memory_map"
	"nesram/process_blob"
	"nesram/signature"
	"nesram/test"

	"github.com/gorilla/websocket"
	gomcp "github.com/mark3labs/mcp-go/mcp"
)

const (
	ramRegion = 0x7f3000000000
	ramBase   = ramRegion + 0x2000
)

func emulator(t *testing.T) *process_blob.ProcessImage {
	t.Helper()
	img := process_blob.NewProcessImage(4321, "mednafen", 1)
	img.AddRegion(memory_map.MemoryMapItem{Address: 0x55d000000000, Size: 0x21000, Perms: "r-xp", Path: "/usr/games/mednafen", Inode: 99}, nil)
	img.AddRegion(memory_map.MemoryMapItem{Address: ramRegion, Size: 0x10000, Perms: "rw-p"}, nil)

	ram := make([]byte, drmario.RAMSize)
	for i := 0; i < drmario.PlayfieldSize; i++ {
		ram[drmario.AddrPlayfield1+i] = drmario.TileEmpty
		ram[drmario.AddrPlayfield2+i] = drmario.TileEmpty
	}
	ram[drmario.AddrPlayfield1+40] = 0xD1
	ram[drmario.AddrPlayfield2+127] = 0x62
	ram[drmario.AddrNumPlayers] = 1
	test.DemandSuccess(t, img.Poke(ramBase, ram))
	img.AddTicker(ramBase + drmario.AddrFrameCounter)
	return img
}

func newServer(img *process_blob.ProcessImage) *Server {
	v := signature.NewValidator(drmario.Signature())
	v.Sleep = func(ctx context.Context, d time.Duration) error {
		if img != nil {
			img.Tick()
		}
		return ctx.Err()
	}
	now := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	eng := engine.New(process_blob.NewImageLocator(img), v, engine.Options{
		Now: func() time.Time { return now },
	})
	return NewServer(eng)
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rawResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type callResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	IsError bool `json:"isError"`
}

var nextID int

func rpc(t *testing.T, s *Server, method string, params any) rawResponse {
	t.Helper()
	nextID++
	msg := map[string]any{"jsonrpc": "2.0", "id": nextID, "method": method}
	if params != nil {
		msg["params"] = params
	}
	raw, err := json.Marshal(msg)
	test.DemandSuccess(t, err)

	out := s.HandleMessage(context.Background(), raw)
	test.DemandSuccess(t, out != nil)

	var resp rawResponse
	test.DemandSuccess(t, json.Unmarshal(out, &resp))
	test.ExpectEquality(t, resp.JSONRPC, "2.0")
	test.ExpectEquality(t, string(resp.ID), fmt.Sprint(nextID))
	return resp
}

// call runs a tool and decodes its text content into v.
func call(t *testing.T, s *Server, name string, args any, v any) bool {
	t.Helper()
	resp := rpc(t, s, "tools/call", map[string]any{"name": name, "arguments": args})
	test.DemandSuccess(t, resp.Error == nil, name)

	var res callResult
	test.DemandSuccess(t, json.Unmarshal(resp.Result, &res))
	test.DemandEquality(t, len(res.Content), 1)
	test.ExpectEquality(t, res.Content[0].Type, "text")
	test.DemandSuccess(t, json.Unmarshal([]byte(res.Content[0].Text), v), name)
	return res.IsError
}

func callError(t *testing.T, s *Server, name string, args any) ToolError {
	t.Helper()
	var te ToolError
	isError := call(t, s, name, args, &te)
	test.ExpectSuccess(t, isError, name)
	return te
}

func TestInitialize(t *testing.T) {
	s := newServer(emulator(t))
	resp := rpc(t, s, "initialize", map[string]any{
		"protocolVersion": "2024-11-05",
		"clientInfo":      map[string]any{"name": "nesram-test", "version": "1"},
		"capabilities":    map[string]any{},
	})
	test.DemandSuccess(t, resp.Error == nil)

	var res struct {
		ProtocolVersion string         `json:"protocolVersion"`
		Capabilities    map[string]any `json:"capabilities"`
		ServerInfo      struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"serverInfo"`
	}
	test.DemandSuccess(t, json.Unmarshal(resp.Result, &res))
	test.ExpectInequality(t, res.ProtocolVersion, "")
	test.ExpectEquality(t, res.ServerInfo.Name, ServerName)
	test.ExpectEquality(t, res.ServerInfo.Version, ServerVersion)
	_, tools := res.Capabilities["tools"]
	test.ExpectSuccess(t, tools)

	resp = rpc(t, s, "ping", nil)
	test.ExpectSuccess(t, resp.Error == nil)
	test.ExpectEquality(t, string(resp.Result), "{}")
}

func TestToolsList(t *testing.T) {
	s := newServer(emulator(t))
	resp := rpc(t, s, "tools/list", nil)

	var res struct {
		Tools []struct {
			Name        string         `json:"name"`
			InputSchema map[string]any `json:"inputSchema"`
		} `json:"tools"`
	}
	test.DemandSuccess(t, json.Unmarshal(resp.Result, &res))

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
		test.ExpectEquality(t, tool.InputSchema["type"], any("object"), tool.Name)
	}
	slices.Sort(names)
	test.ExpectEquality(t, strings.Join(names, ","), "connect,find_ram,game_state,get_maps,playfield,read_memory,write_memory")
}

func TestProtocolErrors(t *testing.T) {
	s := newServer(emulator(t))
	ctx := context.Background()

	// notifications get no response
	test.ExpectSuccess(t, s.HandleMessage(ctx, []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)) == nil)
	test.ExpectSuccess(t, s.HandleMessage(ctx, []byte("   ")) == nil)

	var resp rawResponse
	test.DemandSuccess(t, json.Unmarshal(s.HandleMessage(ctx, []byte(`{"jsonrpc":`)), &resp))
	test.DemandSuccess(t, resp.Error != nil)
	test.ExpectEquality(t, resp.Error.Code, gomcp.PARSE_ERROR)
	test.ExpectEquality(t, string(resp.ID), "null")

	test.DemandSuccess(t, json.Unmarshal(s.HandleMessage(ctx, []byte(`{"jsonrpc":"1.0","id":7,"method":"ping"}`)), &resp))
	test.DemandSuccess(t, resp.Error != nil)
	test.ExpectEquality(t, resp.Error.Code, gomcp.INVALID_REQUEST)

	r := rpc(t, s, "emulator/reset", nil)
	test.DemandSuccess(t, r.Error != nil)
	test.ExpectEquality(t, r.Error.Code, gomcp.METHOD_NOT_FOUND)

	r = rpc(t, s, "tools/call", map[string]any{"name": "format_disk"})
	test.ExpectSuccess(t, r.Error != nil)
}

func TestNotConnected(t *testing.T) {
	s := newServer(emulator(t))

	te := callError(t, s, "read_memory", map[string]any{"offset": 0})
	test.ExpectEquality(t, te.Error, engine.KindNotConnected)

	te = callError(t, s, "game_state", nil)
	test.ExpectEquality(t, te.Error, engine.KindNotConnected)

	// bounds come before the connection check
	te = callError(t, s, "read_memory", map[string]any{"offset": 0x7FF, "length": 2})
	test.ExpectEquality(t, te.Error, engine.KindOutOfWindow)
}

func TestProcessUnavailable(t *testing.T) {
	s := newServer(nil)
	te := callError(t, s, "connect", nil)
	test.ExpectEquality(t, te.Error, engine.KindProcessUnavailable)
}

func TestConnectAndRead(t *testing.T) {
	s := newServer(emulator(t))

	var conn connectOutput
	test.ExpectFailure(t, call(t, s, "connect", nil, &conn))
	test.ExpectEquality(t, conn.Status, "connected")
	test.ExpectEquality(t, conn.BaseAddress, "0x7f3000002000")
	test.ExpectEquality(t, conn.PID, 4321)
	test.ExpectEquality(t, conn.State, "bound")

	var read readOutput
	test.ExpectFailure(t, call(t, s, "read_memory", map[string]any{"offset": drmario.AddrPlayfield1 + 40}, &read))
	test.ExpectEquality(t, read.Length, 1)
	test.ExpectEquality(t, read.Hex, "d1")
	test.DemandEquality(t, len(read.Values), 1)
	test.ExpectEquality(t, read.Values[0], 0xD1)
	test.ExpectSuccess(t, strings.HasPrefix(read.Dump, "0428  d1"))

	// aliases and hex strings
	test.ExpectFailure(t, call(t, s, "read_memory", map[string]any{"address": "$0427", "size": "0x3"}, &read))
	test.ExpectEquality(t, read.Offset, 0x427)
	test.ExpectEquality(t, read.Hex, "ffd1ff")
}

func TestReadInvalidArguments(t *testing.T) {
	s := newServer(emulator(t))
	for _, args := range []any{
		nil,
		map[string]any{"length": 4},
		map[string]any{"offset": "lots"},
		map[string]any{"offset": 1.5},
		map[string]any{"offset": []int{1}},
	} {
		te := callError(t, s, "read_memory", args)
		test.ExpectEquality(t, te.Error, KindInvalidArgument, args)
	}
}

func TestWriteMemory(t *testing.T) {
	s := newServer(emulator(t))
	var conn connectOutput
	call(t, s, "connect", nil, &conn)

	var w writeOutput
	test.ExpectFailure(t, call(t, s, "write_memory", map[string]any{"offset": 0x10, "data": []int{1, 2, 255}}, &w))
	test.ExpectSuccess(t, w.OK)
	test.ExpectEquality(t, w.Offset, 0x10)
	test.ExpectEquality(t, w.Length, 3)

	var read readOutput
	call(t, s, "read_memory", map[string]any{"offset": 0x10, "length": 3}, &read)
	test.ExpectEquality(t, read.Hex, "0102ff")

	te := callError(t, s, "write_memory", map[string]any{"offset": 0x10, "data": []int{256}})
	test.ExpectEquality(t, te.Error, KindInvalidArgument)
	te = callError(t, s, "write_memory", map[string]any{"offset": 0x10})
	test.ExpectEquality(t, te.Error, KindInvalidArgument)
	te = callError(t, s, "write_memory", map[string]any{"offset": 0x7FF, "data": []int{1, 2}})
	test.ExpectEquality(t, te.Error, engine.KindOutOfWindow)
}

func TestWriteReadOnly(t *testing.T) {
	img := emulator(t)
	s := newServer(img)
	var conn connectOutput
	call(t, s, "connect", nil, &conn)

	test.DemandSuccess(t, img.SetPerms(ramRegion, "r--p"))
	te := callError(t, s, "write_memory", map[string]any{"offset": 0, "data": []int{1}})
	test.ExpectEquality(t, te.Error, engine.KindReadOnlyViolation)
}

func TestGameState(t *testing.T) {
	s := newServer(emulator(t))
	var conn connectOutput
	call(t, s, "connect", nil, &conn)

	var gs drmario.GameState
	test.ExpectFailure(t, call(t, s, "game_state", nil, &gs))
	test.ExpectEquality(t, gs.NumPlayers, uint8(1))
	test.DemandEquality(t, len(gs.Players[0].Viruses), 1)
	test.ExpectEquality(t, gs.Players[0].Viruses[0].Row, 5)
	test.ExpectEquality(t, gs.Players[0].Viruses[0].Col, 0)
	test.ExpectEquality(t, gs.Players[0].Viruses[0].Colour, "red")
	test.ExpectEquality(t, gs.Players[0].Playfield[5][0], "red virus")
	test.ExpectEquality(t, gs.Players[0].Tiles[5][0], uint8(0xD1))

	test.DemandEquality(t, len(gs.Players[1].Capsules), 1)
	test.ExpectEquality(t, gs.Players[1].Capsules[0].Link, "left")
	test.ExpectEquality(t, gs.Players[1].Capsules[0].Colour, "blue")
}

func TestPlayfield(t *testing.T) {
	s := newServer(emulator(t))
	var conn connectOutput
	call(t, s, "connect", nil, &conn)

	var pf playfieldOutput
	test.ExpectFailure(t, call(t, s, "playfield", nil, &pf))
	test.ExpectEquality(t, pf.Player, 1)
	lines := strings.Split(pf.Playfield, "\n")
	test.DemandSuccess(t, len(lines) > 7)
	test.ExpectEquality(t, lines[0], "P1")
	test.ExpectEquality(t, lines[1], "+----------------+")
	test.ExpectEquality(t, lines[7], "|R*. . . . . . . |")

	test.ExpectFailure(t, call(t, s, "playfield", map[string]any{"player": 2}, &pf))
	test.ExpectSuccess(t, strings.HasPrefix(pf.Playfield, "P2\n"))
	test.ExpectSuccess(t, strings.Contains(pf.Playfield, ". B=|"))

	te := callError(t, s, "playfield", map[string]any{"player": 3})
	test.ExpectEquality(t, te.Error, KindInvalidArgument)
}

func TestFindRAMAndMaps(t *testing.T) {
	s := newServer(emulator(t))

	var found findOutput
	test.ExpectFailure(t, call(t, s, "find_ram", nil, &found))
	test.ExpectSuccess(t, found.Found)
	test.ExpectEquality(t, found.Chosen, "0x7f3000002000")
	test.ExpectEquality(t, found.Regions, 2)
	test.ExpectEquality(t, found.Candidates, 1)
	test.ExpectEquality(t, found.MaxScore, len(drmario.Signature().Static))
	test.DemandEquality(t, len(found.Reports), 1)
	test.ExpectEquality(t, found.Reports[0].BestScore, found.MaxScore)
	test.ExpectEquality(t, found.Reports[0].BestAt, "0x7f3000002000")

	// find_ram does not bind
	te := callError(t, s, "read_memory", map[string]any{"offset": 0})
	test.ExpectEquality(t, te.Error, engine.KindNotConnected)

	var maps mapsOutput
	test.ExpectFailure(t, call(t, s, "get_maps", nil, &maps))
	test.ExpectEquality(t, maps.PID, 4321)
	test.DemandEquality(t, maps.Count, 2)
	test.ExpectEquality(t, maps.Regions[0].Rejected, "not rw")
	test.ExpectEquality(t, maps.Regions[0].Path, "/usr/games/mednafen")
	test.ExpectEquality(t, maps.Regions[1].Rejected, "")
	test.ExpectEquality(t, maps.Regions[1].Address, "0x7f3000000000")
	test.ExpectEquality(t, strings.Count(maps.Maps, "\n"), 2)
}

func TestServeStdio(t *testing.T) {
	s := newServer(emulator(t))
	in := strings.NewReader(strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","clientInfo":{"name":"t","version":"1"},"capabilities":{}}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":"two","method":"ping"}`,
	}, "\n") + "\n")
	var out bytes.Buffer

	test.DemandSuccess(t, s.ServeStdio(context.Background(), in, &out))

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	test.DemandEquality(t, len(lines), 2)

	var resp rawResponse
	test.DemandSuccess(t, json.Unmarshal([]byte(lines[1]), &resp))
	test.ExpectEquality(t, string(resp.ID), `"two"`)
}

func TestServeStdioOversizedLine(t *testing.T) {
	s := newServer(emulator(t))
	junk := strings.Repeat("x", 5<<20)
	in := strings.NewReader(junk + "\n" + `{"jsonrpc":"2.0","id":3,"method":"ping"}` + "\n")
	var out bytes.Buffer

	test.DemandSuccess(t, s.ServeStdio(context.Background(), in, &out))

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	test.DemandEquality(t, len(lines), 2)

	var resp rawResponse
	test.DemandSuccess(t, json.Unmarshal([]byte(lines[0]), &resp))
	test.DemandSuccess(t, resp.Error != nil)
	test.ExpectEquality(t, resp.Error.Code, gomcp.PARSE_ERROR)

	resp = rawResponse{}
	test.DemandSuccess(t, json.Unmarshal([]byte(lines[1]), &resp))
	test.ExpectSuccess(t, resp.Error == nil)
	test.ExpectEquality(t, string(resp.ID), "3")
}

func TestWebsocket(t *testing.T) {
	s := newServer(emulator(t))
	srv := httptest.NewServer(s.WebsocketHandler(context.Background()))
	defer srv.Close()

	c, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	test.DemandSuccess(t, err)
	defer c.Close()

	send := func(msg string) rawResponse {
		t.Helper()
		test.DemandSuccess(t, c.WriteMessage(websocket.TextMessage, []byte(msg)))
		var resp rawResponse
		test.DemandSuccess(t, c.ReadJSON(&resp))
		return resp
	}

	resp := send(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"connect"}}`)
	test.DemandSuccess(t, resp.Error == nil)

	resp = send(`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"read_memory","arguments":{"offset":1064}}}`)
	test.DemandSuccess(t, resp.Error == nil)
	test.ExpectEquality(t, string(resp.ID), "2")

	var res callResult
	test.DemandSuccess(t, json.Unmarshal(resp.Result, &res))
	test.ExpectFailure(t, res.IsError)
	var read readOutput
	test.DemandSuccess(t, json.Unmarshal([]byte(res.Content[0].Text), &read))
	test.ExpectEquality(t, read.Hex, "d1")
}

func TestParseNumber(t *testing.T) {
	for s, want := range map[string]int{"67": 67, "0x43": 0x43, "$0740": 0x740, " 0X10 ": 16} {
		v, err := ParseNumber(s)
		test.ExpectSuccess(t, err, s)
		test.ExpectEquality(t, v, want, s)
	}
	_, err := ParseNumber("$")
	test.ExpectErrorIs(t, err, ErrInvalidArgument)
}

func TestRegisterReplaces(t *testing.T) {
	s := newServer(emulator(t))
	n := len(s.Tools())
	s.Register(Tool{Name: "ping_target", Handler: func(context.Context, json.RawMessage) (any, error) {
		return map[string]bool{"ok": false}, nil
	}})
	s.Register(Tool{Name: "ping_target", Description: "again", Handler: func(context.Context, json.RawMessage) (any, error) {
		return map[string]bool{"ok": true}, nil
	}})
	test.ExpectEquality(t, len(s.Tools()), n+1)

	var out map[string]bool
	test.ExpectFailure(t, call(t, s, "ping_target", nil, &out))
	test.ExpectSuccess(t, out["ok"])
}

func TestPanickingTool(t *testing.T) {
	s := newServer(emulator(t))
	s.Register(Tool{Name: "explode", Handler: func(context.Context, json.RawMessage) (any, error) {
		var window []byte
		return window[4], nil
	}})

	te := callError(t, s, "explode", nil)
	test.ExpectEquality(t, te.Error, engine.KindInternal)
	test.ExpectSuccess(t, strings.HasPrefix(te.Message, "panic: "), te.Message)

	resp := rpc(t, s, "ping", nil)
	test.ExpectSuccess(t, resp.Error == nil)

	var conn connectOutput
	test.ExpectFailure(t, call(t, s, "connect", nil, &conn))
	test.ExpectEquality(t, conn.Status, "connected")
}

func TestHugeReadKeepsBinding(t *testing.T) {
	s := newServer(emulator(t))
	var conn connectOutput
	call(t, s, "connect", nil, &conn)

	te := callError(t, s, "read_memory", map[string]any{"offset": 1, "length": 1 << 40})
	test.ExpectEquality(t, te.Error, engine.KindOutOfWindow)
	te = callError(t, s, "read_memory", map[string]any{"offset": 1, "length": "0x7fffffffffffffff"})
	test.ExpectEquality(t, te.Error, engine.KindOutOfWindow)
	te = callError(t, s, "write_memory", map[string]any{"offset": "0x7fffffffffffffff", "data": []int{1}})
	test.ExpectEquality(t, te.Error, engine.KindOutOfWindow)

	var read readOutput
	test.ExpectFailure(t, call(t, s, "read_memory", map[string]any{"offset": drmario.AddrPlayfield1 + 40}, &read))
	test.ExpectEquality(t, read.Hex, "d1")
}
