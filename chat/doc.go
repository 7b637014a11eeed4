// Package chat locates the operator's live broadcast and polls its chat feed.
//
// A Subsystem runs two phases for one session:
//   - Locating: asks the Platform for the caller's broadcasts and picks the first one that has a
//     chat id, an actual start time and no actual end time. Misses and API errors are retried a
//     bounded number of times on a fixed delay (Retry), then the subsystem is Exhausted.
//   - Polling: fetches the chat feed every PollInterval starting from the last page token (Cursor)
//     and hands each page to the Listener as Messages. A failed fetch keeps the cursor.
//
// Timers come from an injected clockwork.Clock so tests drive both phases with a fake clock.
// TwitchSource is an optional second feed that pushes IRC messages to the same Listener.
package chat
