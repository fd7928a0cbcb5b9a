// Package api provides the HTTP REST API over the game service.
//
// Endpoints:
//
// Sessions:
//   - POST   /api/sessions                {"game": "tictactoe"} (empty for the default game)
//   - GET    /api/sessions                ?sort=created|accessed&order=asc|desc&limit=N&game=ID
//   - GET    /api/sessions/{id}
//   - DELETE /api/sessions/{id}
//
// Actions:
//   - POST /api/sessions/{id}/actions    queue one action, 202 with its assigned id
//   - POST /api/sessions/{id}/tick       apply the oldest pending action
//   - POST /api/sessions/{id}/play       {"actions": [...]} queue and apply in order
//   - POST /api/sessions/{id}/abort      {"reason": "..."}
//   - POST /api/sessions/{id}/reset
//
// State:
//   - GET  /api/sessions/{id}/snapshot
//   - GET  /api/sessions/{id}/history    ?page=N&limit=N&order=asc|desc
//   - GET  /api/sessions/{id}/save       versioned state document
//   - POST /api/sessions/{id}/load       body is a saved document
//
// Games:
//   - GET  /api/games
//   - GET  /api/games/{name}
//   - POST /api/games                    definition body, ?id= overrides the file name
//
// Plus /ws?session={id} for live snapshots and /health.
//
// Errors are JSON {"error": "...", "constraint": "..."}; constraint is set
// for rule violations. Status codes: 400 bad input or saved document, 404
// unknown session or game, 409 session not in progress, 422 rule violation,
// 429 action queue full.
package api
