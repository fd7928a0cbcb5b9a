package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wricardo/gamecore/game/config"
	"github.com/wricardo/gamecore/game/controller"
	"github.com/wricardo/gamecore/game/engine"
	"github.com/wricardo/gamecore/game/rules/roadtrip"
	"github.com/wricardo/gamecore/game/service"
)

const (
	serverName    = "Game Core"
	serverVersion = "1.0.0"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API at baseURL
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(true),
		server.WithInstructions(`Game Core - MCP Interface

Every game is a session holding entities (cars, parks, cells, players) that
change only through actions. Actions are queued and applied in order, one per
tick; illegal actions are rejected with a named constraint and leave the state
unchanged.

TOOLS:
- list_games / game_rules: available games and how each is played
- create_session, get_session, list_sessions, delete_session
- snapshot: current state of a session
- play: queue and apply actions in one call (preferred)
- move: road trip shortcut, moves one car through a list of directions
- submit_action + tick: queue one action, apply the oldest pending action
- abort_session, reset_session
- history: consumed actions, applied or rejected
- save_session / load_session: export and restore a session's state`),
	)

	c.registerTools()
}

func sessionParam() mcp.ToolOption {
	return mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID"))
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	// Games
	c.mcpServer.AddTool(mcp.NewTool("list_games",
		mcp.WithDescription("List the games sessions can be created from"),
	), c.handleListGames)

	c.mcpServer.AddTool(mcp.NewTool("game_rules",
		mcp.WithDescription("Describe a game's rules, board and legend"),
		mcp.WithString("game", mcp.Required(), mcp.Description("Game id from list_games")),
	), c.handleGameRules)

	// Session management
	c.mcpServer.AddTool(mcp.NewTool("create_session",
		mcp.WithDescription("Create a new game session"),
		mcp.WithString("game", mcp.Description("Game id from list_games; the default game when omitted")),
	), c.handleCreateSession)

	c.mcpServer.AddTool(mcp.NewTool("list_sessions",
		mcp.WithDescription("List all active game sessions"),
		mcp.WithString("game", mcp.Description("Only sessions of this game")),
	), c.handleListSessions)

	c.mcpServer.AddTool(mcp.NewTool("get_session",
		mcp.WithDescription("Get details of a session, with decision aids for road trip games"),
		sessionParam(),
	), c.handleGetSession)

	c.mcpServer.AddTool(mcp.NewTool("delete_session",
		mcp.WithDescription("Delete a session"),
		sessionParam(),
	), c.handleDeleteSession)

	// Actions
	c.mcpServer.AddTool(mcp.NewTool("snapshot",
		mcp.WithDescription("Get the current state of a session"),
		sessionParam(),
	), c.handleSnapshot)

	c.mcpServer.AddTool(mcp.NewTool("play",
		mcp.WithDescription("Queue actions in order and apply them. Rejected actions are reported and do not stop the rest."),
		sessionParam(),
		mcp.WithArray("actions",
			mcp.Required(),
			mcp.Description(`Actions such as {"actor":"x","kind":"place","targets":["c11"]} or {"actor":"car_1","kind":"move","params":{"direction":{"string":"up"}}}`),
			mcp.Items(map[string]any{"type": "object"}),
		),
		mcp.WithString("intent", mcp.Description("Brief explanation of what these actions should achieve")),
	), c.handlePlay)

	c.mcpServer.AddTool(mcp.NewTool("move",
		mcp.WithDescription("Move a road trip car through a sequence of directions"),
		sessionParam(),
		mcp.WithString("car", mcp.Description("Car id, car_1 when omitted")),
		mcp.WithArray("directions",
			mcp.Required(),
			mcp.Description("Directions to move in order"),
			mcp.Items(map[string]any{"type": "string", "enum": []string{"up", "down", "left", "right"}}),
		),
		mcp.WithString("intent", mcp.Description("Brief explanation of the intent behind these moves")),
	), c.handleMove)

	c.mcpServer.AddTool(mcp.NewTool("submit_action",
		mcp.WithDescription("Queue one action without applying it"),
		sessionParam(),
		mcp.WithObject("action", mcp.Required(), mcp.Description("The action to queue")),
	), c.handleSubmit)

	c.mcpServer.AddTool(mcp.NewTool("tick",
		mcp.WithDescription("Apply the oldest pending action of a session"),
		sessionParam(),
	), c.handleTick)

	c.mcpServer.AddTool(mcp.NewTool("abort_session",
		mcp.WithDescription("End a session immediately"),
		sessionParam(),
		mcp.WithString("reason", mcp.Description("Why the session is aborted")),
	), c.handleAbort)

	c.mcpServer.AddTool(mcp.NewTool("reset_session",
		mcp.WithDescription("Restart a session from its game's initial layout"),
		sessionParam(),
	), c.handleReset)

	c.mcpServer.AddTool(mcp.NewTool("history",
		mcp.WithDescription("List the actions a session consumed"),
		sessionParam(),
		mcp.WithNumber("page", mcp.Description("Page number, from 1")),
		mcp.WithNumber("limit", mcp.Description("Entries per page")),
		mcp.WithString("order", mcp.Enum("asc", "desc"), mcp.Description("Oldest or newest first")),
	), c.handleHistory)

	c.mcpServer.AddTool(mcp.NewTool("save_session",
		mcp.WithDescription("Export a session's state as a versioned document"),
		sessionParam(),
	), c.handleSave)

	c.mcpServer.AddTool(mcp.NewTool("load_session",
		mcp.WithDescription("Replace a session's state with a document from save_session"),
		sessionParam(),
		mcp.WithString("document", mcp.Required(), mcp.Description("Saved document")),
	), c.handleLoad)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// ServeStdio serves the tools on stdin and stdout until the input closes
func (c *Client) ServeStdio() error {
	if err := server.ServeStdio(c.mcpServer); err != nil {
		return fmt.Errorf("serve MCP: %w", err)
	}
	return nil
}

// ServeHTTP answers one JSON-RPC message per POST
func (c *Client) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "Failed to read request", http.StatusBadRequest)
		return
	}

	response := c.mcpServer.HandleMessage(r.Context(), body)
	if response == nil {
		// Notifications have no response
		w.WriteHeader(http.StatusAccepted)
		return
	}

	data, err := json.Marshal(response)
	if err != nil {
		http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// apiCall sends body as JSON, or as-is when it is raw bytes, and decodes the
// response into result. Raw bytes results receive the body unchanged.
func (c *Client) apiCall(ctx context.Context, method, path string, body any, result any) error {
	var reqBody io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reqBody = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error      string `json:"error"`
			Constraint string `json:"constraint"`
		}
		json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error == "" {
			return fmt.Errorf("API error: %d", resp.StatusCode)
		}
		if errResp.Constraint != "" {
			return fmt.Errorf("%s (constraint %s)", errResp.Error, errResp.Constraint)
		}
		return fmt.Errorf("%s", errResp.Error)
	}

	switch r := result.(type) {
	case nil:
		return nil
	case *[]byte:
		*r, err = io.ReadAll(resp.Body)
		return err
	default:
		return json.NewDecoder(resp.Body).Decode(result)
	}
}

func sessionPath(id string, parts ...string) string {
	return "/api/sessions/" + url.PathEscape(id) + strings.Join(parts, "")
}

// Tool handlers

func (c *Client) handleListGames(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var games []*config.Info
	if err := c.apiCall(ctx, "GET", "/api/games", nil, &games); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatGames(games)), nil
}

func (c *Client) handleGameRules(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	game, err := request.RequireString("game")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var def config.Definition
	if err := c.apiCall(ctx, "GET", "/api/games/"+url.PathEscape(game), nil, &def); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatRules(&def)), nil
}

func (c *Client) handleCreateSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	body := map[string]string{"game": request.GetString("game", "")}

	var info service.SessionInfo
	if err := c.apiCall(ctx, "POST", "/api/sessions", body, &info); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("Created " + formatSessionInfo(&info)), nil
}

func (c *Client) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := "/api/sessions?sort=created&order=asc"
	if game := request.GetString("game", ""); game != "" {
		path += "&game=" + url.QueryEscape(game)
	}

	var response struct {
		Count    int                    `json:"count"`
		Sessions []*service.SessionInfo `json:"sessions"`
	}
	if err := c.apiCall(ctx, "GET", path, nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Active Sessions (%d):\n\n", response.Count)
	for _, s := range response.Sessions {
		status := engine.Status("")
		if s.Snapshot != nil && s.Snapshot.State != nil {
			status = s.Snapshot.State.Status
		}
		fmt.Fprintf(&b, "- %s (Game: %s, Status: %s, Created: %s)\n",
			s.ID, s.Game, status, s.CreatedAt.Format("15:04:05"))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var info service.SessionInfo
	if err := c.apiCall(ctx, "GET", sessionPath(sessionID), nil, &info); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatSessionInfo(&info)), nil
}

func (c *Client) handleDeleteSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := c.apiCall(ctx, "DELETE", sessionPath(sessionID), nil, nil); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Session %s deleted", sessionID)), nil
}

func (c *Client) handleSnapshot(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var snap engine.Snapshot
	if err := c.apiCall(ctx, "GET", sessionPath(sessionID, "/snapshot"), nil, &snap); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatSnapshot(&snap)), nil
}

func (c *Client) handlePlay(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		SessionID string          `json:"session_id"`
		Actions   []engine.Action `json:"actions"`
	}
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid play arguments", err), nil
	}
	if args.SessionID == "" || len(args.Actions) == 0 {
		return mcp.NewToolResultError("session_id and at least one action are required"), nil
	}
	return c.play(ctx, args.SessionID, args.Actions)
}

func (c *Client) handleMove(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		SessionID  string   `json:"session_id"`
		Car        string   `json:"car"`
		Directions []string `json:"directions"`
	}
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid move arguments", err), nil
	}
	if args.SessionID == "" || len(args.Directions) == 0 {
		return mcp.NewToolResultError("session_id and at least one direction are required"), nil
	}
	return c.play(ctx, args.SessionID, moveActions(args.Car, args.Directions))
}

// moveActions builds road trip move actions for car
func moveActions(car string, directions []string) []engine.Action {
	if car == "" {
		car = "car_1"
	}
	actions := make([]engine.Action, 0, len(directions))
	for _, dir := range directions {
		actions = append(actions, engine.Action{
			Actor:  engine.EntityID(car),
			Kind:   engine.KindMove,
			Params: map[string]engine.Value{roadtrip.ParamDirection: engine.StringValue(strings.ToLower(dir))},
		})
	}
	return actions
}

func (c *Client) play(ctx context.Context, sessionID string, actions []engine.Action) (*mcp.CallToolResult, error) {
	var result service.PlayResult
	body := map[string]any{"actions": actions}
	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "/play"), body, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatPlayResult(&result)), nil
}

func (c *Client) handleSubmit(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		SessionID string        `json:"session_id"`
		Action    engine.Action `json:"action"`
	}
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid action", err), nil
	}
	if args.SessionID == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}

	var result service.SubmitResult
	if err := c.apiCall(ctx, "POST", sessionPath(args.SessionID, "/actions"), args.Action, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Queued action %s (%s by %s), %d pending",
		result.Action.ID, result.Action.Kind, result.Action.Actor, result.Pending)), nil
}

func (c *Client) handleTick(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var result service.ActionResult
	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "/tick"), nil, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if result.Action == nil {
		return mcp.NewToolResultText("Nothing pending\n\n" + formatSnapshot(result.Snapshot)), nil
	}
	return mcp.NewToolResultText(formatActionLine(1, result) + "\n" + formatSnapshot(result.Snapshot)), nil
}

func (c *Client) handleAbort(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var snap engine.Snapshot
	body := map[string]string{"reason": request.GetString("reason", "")}
	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "/abort"), body, &snap); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("Session aborted\n\n" + formatSnapshot(&snap)), nil
}

func (c *Client) handleReset(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var response struct {
		Message  string           `json:"message"`
		Snapshot *engine.Snapshot `json:"snapshot"`
	}
	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "/reset"), nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s\n\n%s", response.Message, formatSnapshot(response.Snapshot))), nil
}

func (c *Client) handleHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	query := url.Values{}
	if page := request.GetInt("page", 0); page > 0 {
		query.Set("page", fmt.Sprint(page))
	}
	if limit := request.GetInt("limit", 0); limit > 0 {
		query.Set("limit", fmt.Sprint(limit))
	}
	if order := request.GetString("order", ""); order != "" {
		query.Set("order", order)
	}
	path := sessionPath(sessionID, "/history")
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var page controller.HistoryPage
	if err := c.apiCall(ctx, "GET", path, nil, &page); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatHistory(&page)), nil
}

func (c *Client) handleSave(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var doc []byte
	if err := c.apiCall(ctx, "GET", sessionPath(sessionID, "/save"), nil, &doc); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(doc)), nil
}

func (c *Client) handleLoad(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := request.RequireString("document")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var snap engine.Snapshot
	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "/load"), []byte(doc), &snap); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("Session restored\n\n" + formatSnapshot(&snap)), nil
}

// Formatting helpers

func formatGames(games []*config.Info) string {
	var b strings.Builder
	b.WriteString("Available Games:\n\n")
	for _, g := range games {
		fmt.Fprintf(&b, "• %s (%s rules)\n  %s\n  %s\n\n", g.ID, g.Rules, g.Name, g.Description)
	}
	return b.String()
}

func formatRules(def *config.Definition) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n%s\n\n", def.Name, def.Description)

	switch def.Rules {
	case config.RulesRoadTrip:
		rt := def.RoadTrip
		if rt == nil {
			break
		}
		fmt.Fprintf(&b, "Road trip on a %dx%d grid with %d car(s), battery %d.\n",
			rt.GridSize, rt.GridSize, rt.Cars, rt.MaxBattery)
		b.WriteString("Cars take turns moving up, down, left or right. Each move costs one battery;\n")
		b.WriteString("charging cells refill it. Visit every park to win.\n")
		if rt.MaxTurns > 0 {
			fmt.Fprintf(&b, "The game is drawn after %d turns.\n", rt.MaxTurns)
		}
		b.WriteString("\nBoard:\n")
		for _, row := range rt.Layout {
			b.WriteString(row + "\n")
		}
		b.WriteString("\nLegend:\n")
		legend := rt.Legend
		if len(legend) == 0 {
			legend = roadtrip.DefaultLegend()
		}
		keys := make([]string, 0, len(legend))
		for k := range legend {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s - %s\n", k, legend[k])
		}
		b.WriteString("\nMove action: {\"actor\":\"car_1\",\"kind\":\"move\",\"params\":{\"direction\":{\"string\":\"up\"}}}\n")
	case config.RulesScript:
		fmt.Fprintf(&b, "Scripted rules from %s. Use snapshot to see the entities and play to act.\n", def.Script)
	}
	return b.String()
}

func formatSessionInfo(info *service.SessionInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session: %s\nGame: %s (%s rules)\nCreated: %s\n\n",
		info.ID, info.Game, info.Rules, info.CreatedAt.Format("2006-01-02 15:04:05"))
	b.WriteString(formatSnapshot(info.Snapshot))

	for _, in := range info.Insights {
		fmt.Fprintf(&b, "\n%s at (%d,%d): battery %d, risk %s", in.Car, in.Position.X, in.Position.Y, in.Battery, in.BatteryRisk)
		if in.NearestCharger != nil {
			fmt.Fprintf(&b, ", charger (%d,%d) %d away", in.NearestCharger.X, in.NearestCharger.Y, in.ChargerDistance)
		}
		if in.NearestPark != "" {
			fmt.Fprintf(&b, ", %s %d away", in.NearestPark, in.ParkDistance)
		}
	}
	if len(info.Insights) > 0 {
		b.WriteString("\n")
	}
	return b.String()
}

func formatSnapshot(snap *engine.Snapshot) string {
	if snap == nil || snap.State == nil {
		return "No state available"
	}
	s := snap.State

	var b strings.Builder
	fmt.Fprintf(&b, "Status: %s | Turn: %d | Pending: %d", s.Status, s.Turn, snap.Pending)
	if snap.Actor != "" {
		fmt.Fprintf(&b, " | Next: %s", snap.Actor)
	}
	b.WriteString("\n")
	switch s.Status {
	case engine.StatusWon:
		fmt.Fprintf(&b, "🎉 VICTORY! Winner: %s\n", s.Winner)
	case engine.StatusLost:
		b.WriteString("💀 GAME OVER\n")
	case engine.StatusDrawn:
		b.WriteString("Game drawn\n")
	case engine.StatusAborted:
		b.WriteString("Game aborted\n")
	}
	if msg := s.Meta[roadtrip.MetaMessage]; msg != "" {
		fmt.Fprintf(&b, "%s\n", msg)
	}

	b.WriteString("\nEntities:\n")
	for _, id := range s.IDs() {
		e := s.Entities[id]
		keys := make([]string, 0, len(e.Attrs))
		for k := range e.Attrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		attrs := make([]string, 0, len(keys))
		for _, k := range keys {
			attrs = append(attrs, k+"="+e.Attrs[k].String())
		}
		fmt.Fprintf(&b, "  %s (%s) %s\n", id, e.Type, strings.Join(attrs, " "))
	}
	return b.String()
}

func formatActionLine(idx int, r service.ActionResult) string {
	status := "OK"
	if !r.Applied {
		status = "REJECTED"
		if r.Constraint != "" {
			status += " " + r.Constraint
		}
	}
	line := fmt.Sprintf("%d. %s %s", idx, r.Action.Actor, r.Action.Kind)
	if len(r.Action.Targets) > 0 {
		line += fmt.Sprintf(" %v", r.Action.Targets)
	}
	if dir, ok := r.Action.Param(roadtrip.ParamDirection); ok {
		line += " " + dir.String()
	}
	line += " → " + status
	if !r.Applied && r.Error != "" {
		line += ": " + r.Error
	}
	return line
}

func formatPlayResult(result *service.PlayResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Applied %d, rejected %d of %d requested\n", result.Applied, result.Rejected, result.Requested)
	if result.StoppedReason != "" {
		fmt.Fprintf(&b, "Stopped after %d submitted: %s\n", result.Submitted, result.StoppedReason)
	}
	for i, r := range result.Results {
		if r.Action == nil {
			continue
		}
		b.WriteString(formatActionLine(i+1, r) + "\n")
	}
	b.WriteString("\n" + formatSnapshot(result.Snapshot))
	return b.String()
}

func formatHistory(page *controller.HistoryPage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "History (page %d of %d, %d total):\n", page.Page, page.TotalPages, page.Total)
	for _, e := range page.Entries {
		status := "applied"
		if !e.Applied {
			status = "rejected"
			if e.Constraint != "" {
				status += " (" + e.Constraint + ")"
			}
		}
		fmt.Fprintf(&b, "#%d turn %d: %s %s %s\n", e.Seq, e.Turn, e.Actor, e.Kind, status)
	}
	return b.String()
}
