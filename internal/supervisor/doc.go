// Package supervisor runs the HTTP server in one of three modes: in-process,
// as a pool of worker processes sharing the listen socket, or as a single
// worker restarted whenever watched files change.
//
// Worker processes receive their configuration only through the environment
// pairs produced by config.Store.EnvPairs.
package supervisor
