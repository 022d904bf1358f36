// Package cache provides the client's local SQLite cache.
//
// The cache holds two things between runs:
//   - the recent-chats list with its unread counts, shown at startup before
//     the server answers
//   - orphaned uploads, so a file uploaded for a message that was never sent
//     is reused instead of uploaded again
//
// Nothing in the cache is authoritative. The server's recent list replaces
// the cached one as soon as it arrives, and a missing or corrupt cache only
// costs a slower start.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// The schema version is tracked in PRAGMA user_version.
package cache
