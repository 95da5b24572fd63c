// Package persistence keeps server identity across restarts.
//
// A SiLA server must announce the same UUID every time it starts, and a name
// set with SetServerName must survive a restart. Both are stored in a small
// JSON state file.
package persistence
