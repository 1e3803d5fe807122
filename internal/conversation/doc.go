// Package conversation holds the messages of one chat and drives agent turns.
//
// # Store
//
// Store is the ordered list of messages. It is append-only at the outer
// level; agent messages are patched in place by id and every change is
// published to subscribers:
//
//	changes := store.Subscribe(ctx)
//	for ch := range changes {
//		render(ch.Message)
//	}
//
// # Turns
//
// Conversation.Submit appends the user's message, performs the seed request
// and opens a stream.Controller for the returned session. Only one turn runs
// at a time; it ends when the stream reaches a terminal status, the stream
// fails, or the seed request fails. Wait blocks until then:
//
//	if err := conv.Submit(ctx, "buy milk"); err != nil {
//		return err
//	}
//	err := conv.Wait(ctx) // stream.ErrStreamTransport if the stream broke
//
// Failures the user should see are appended as agent messages with status
// error rather than returned to the renderer.
package conversation
