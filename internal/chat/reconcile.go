// ABOUTME: Reconcile folds one UpdateEvent into an agent Message
// ABOUTME: Pure and idempotent; status is authoritative, step lists replace wholesale

package chat

// Reconcile returns the message that results from applying ev to current.
// Each field is handled independently:
//
//   - a present status replaces the message status unconditionally
//   - a non-empty step list replaces the steps, re-stamped with ev.ReceivedAt,
//     except that a step never moves backwards in its status order
//   - content replaces the message content unless ev is a step_update
//   - absent fields are left alone
//
// Only agent messages change; user and system messages come back as-is.
// current is never modified.
func Reconcile(current Message, ev UpdateEvent) Message {
	if current.Role != RoleAgent {
		return current
	}

	next := current.Clone()

	if status := ev.effectiveStatus(); status != StatusNone {
		next.Status = status
	}

	if len(ev.Steps) > 0 {
		next.Steps = mergeSteps(current.Steps, ev.Steps, ev.ReceivedAt)
	}

	if content, ok := ev.effectiveContent(); ok {
		next.Content = content
	}

	return next
}
