// Package session manages the live game sessions a server hosts.
//
// Each session wraps one controller built from a game definition. Sessions
// are keyed case-insensitively; when no id is given a UUID is generated.
//
// Persistence:
//
// A Manager can be backed by a SessionPersistence. Sessions are saved when
// they are created and whenever they are touched, and sessions missing from
// memory are restored on demand by rebuilding the ruleset from the stored
// game name and loading the saved state document. Two backends exist:
//
//   - FilePersistence writes one JSON file per session to a directory.
//   - SQLitePersistence stores sessions in a SQLite table.
//
// Usage:
//
//	store, err := session.OpenSQLite("sessions.db")
//	manager := session.NewManagerWithPersistence(configs, store)
//	if err := manager.LoadPersistedSessions(); err != nil {
//		return err
//	}
//	sess, err := manager.Create("", "classic", def)
package session
