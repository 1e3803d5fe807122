// Package agent is the reference agent behind the taskstream server.
//
// # Overview
//
// The agent does not call a model. It classifies each request by keyword,
// picks a step plan for that kind of task and walks the plan on a timer,
// reporting progress the way a real agent would.
//
// # Plans
//
// NewPlan returns one of four scripts:
//
//   - device: requests that mention a phone or Android device
//   - shopping: requests to buy, order or price something
//   - search: requests to search for or find information
//   - general: everything else
//
// Every step has a list of progress phases (details text plus a percentage)
// and a completion note. A request containing FailMarker fails at its
// execution step.
//
// # Runner
//
// Runner executes plans in background goroutines:
//
//	runner := agent.NewRunner(store, hub, agent.RunnerOptions{StepDelay: 300 * time.Millisecond})
//	runner.Start(session, agent.NewPlan(text))
//
// Each progress change is written to the SessionStore first and then
// published on the Hub. The session status goes thinking, executing and
// finally completed or error. Starting a session that is already running
// cancels the old run.
//
// # Hub
//
// Hub fans snapshots out to subscribers per session:
//
//	ch, _ := hub.Subscribe(ctx, sessionID)
//	for snap := range ch { ... }
//
// Each snapshot carries a per-session sequence number. Publish never
// blocks; a slow subscriber loses older snapshots but always receives the
// latest, so the terminal snapshot is never lost.
package agent
