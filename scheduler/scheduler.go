package scheduler

// Package scheduler provides scheduled job management for the watchlist
// backend. It handles:
// - Round-robin symbol refresh during market hours
//
// The main scheduler is implemented in jobs.go
