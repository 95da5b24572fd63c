// Package execution runs commands and tracks observable command executions.
//
// Unobservable commands run synchronously in the caller's goroutine and
// return their responses. Observable commands run in their own goroutine;
// Invoke returns the execution UUID at once and the execution moves from
// running to finishedSuccessfully or finishedWithError. A terminal state
// never changes again, and the first terminal result wins when a
// cancellation races with completion.
//
// Handlers of observable commands report through the execution attached to
// their context:
//
//	func countDown(ctx context.Context, params map[string]any) (map[string]any, error) {
//	    x, _ := execution.FromContext(ctx)
//	    for i := from; i > 0; i-- {
//	        x.SendIntermediate(map[string]any{"Current": i})
//	        x.SetProgress(float64(from-i) / float64(from))
//	    }
//	    return map[string]any{}, nil
//	}
//
// Finished executions are retained for a configurable window and then
// forgotten; afterwards their UUID is invalid.
package execution
