// Package retention prunes stored audit runs by age and by count, optionally
// archiving them as JSON first, and schedules pruning with cron.
package retention
