// Package chat defines the conversation data model and the reconciliation
// rule that folds streamed updates into it.
//
// # Model
//
//   - Step: one unit of the agent's plan with a monotonic status
//     (pending -> running -> completed | error)
//   - Message: one turn (user, agent or system). Agent messages carry a
//     status and an ordered step list
//   - UpdateEvent: a decoded stream frame (message, step_update,
//     status_update, error)
//
// # Reconciliation
//
// Reconcile is a pure function from (Message, UpdateEvent) to Message:
//
//	msg = chat.Reconcile(msg, ev)
//
// The agent always sends its full step list, so steps are replaced rather
// than merged element by element. A step_update never touches content.
// Applying the same event twice gives the same message as applying it once.
//
// # Identity
//
// The agent message for a session is found through MessageIDForSession, so
// the stream side needs no separate index.
package chat
