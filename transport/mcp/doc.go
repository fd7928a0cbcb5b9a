// Package mcp exposes the game API as Model Context Protocol tools.
//
// The Client is a thin proxy: every tool calls the REST API at its base URL,
// so an agent sees exactly what HTTP clients see, and renders the response as
// text. Tools cover games (list_games, game_rules), sessions (create, get,
// list, delete, reset, abort), actions (play, move, submit_action, tick) and
// state (snapshot, history, save_session, load_session).
//
// The same tools are served on stdio with ServeStdio, or over HTTP by
// mounting the Client as a handler; each POST carries one JSON-RPC message.
package mcp
