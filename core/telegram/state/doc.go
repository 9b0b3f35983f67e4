// Package state provides the per-user conversation state machine for the
// bot: one session per user, scratch data collected across turns, and an
// idle timeout that abandons stale conversations without further input.
package state
