// Package state defines the per-call conversation record.
//
// A ConversationState carries the message history, the current Stage, the
// facts collected about the caller and the lifecycle flags that drive
// routing. Collections only grow: customer info keys are never removed,
// pain points and discussed services never repeat, and InfoGathered flips
// to true at most once.
//
// Stages progress greeting → discovery → presentation → qualification →
// closing → ended, with presentation reachable from any non-terminal stage.
// StageEnded is absorbing.
package state
