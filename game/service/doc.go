// Package service is the business layer between the transports (HTTP,
// WebSocket, MCP) and the session controllers.
//
// GameService exposes session management, action submission, ticking,
// save and load, and the catalog of game definitions. SessionManager and
// ConfigManager are the storage contracts it depends on; the session and
// config packages implement them.
//
// Every operation that commits a new state persists the session and hands
// the resulting snapshot to the configured Publisher, so connected clients
// observe changes no matter which transport caused them.
//
// Usage:
//
//	configs, _ := config.NewManager("configs")
//	sessions := session.NewManager(configs)
//	svc := service.NewGameService(sessions, configs, service.WithPublisher(hub))
//
//	info, err := svc.CreateSession(ctx, "classic")
//	res, err := svc.Play(ctx, info.ID, actions)
package service
