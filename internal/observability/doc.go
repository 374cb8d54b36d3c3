// Package observability records audit events for otk in a JSON Lines log,
// derives metrics and alerts from that log on demand, and builds the
// diagnostic logger.
package observability
