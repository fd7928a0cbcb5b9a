// Package config loads the game definitions a server can host.
//
// A definition is a JSON or YAML file in the config directory. It names a
// rules engine and carries whatever that engine needs:
//
//	{
//	  "name": "Classic",
//	  "description": "Visit every park on a single charge budget",
//	  "rules": "roadtrip",
//	  "queue_capacity": 64,
//	  "roadtrip": { "grid_size": 15, "layout": [...], ... }
//	}
//
// Script definitions point at a Lua ruleset relative to the directory:
//
//	name: Tic Tac Toe
//	description: Three in a row
//	rules: script
//	script: tictactoe.lua
//
// Usage:
//
//	manager, err := config.NewManager("configs")
//	def, err := manager.LoadDefinition("classic")
//	infos, err := manager.ListDefinitions()
//
// Definitions are validated on load and cached. When classic is absent the
// first valid definition becomes the default, and an empty directory falls
// back to a built-in road trip.
package config
