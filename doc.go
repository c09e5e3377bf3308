// Package cordon provides concurrency admission for servers that mix
// CPU-bound and I/O-bound requests on a fixed pool of execution slots.
//
// A small connection-admission pool gates inbound accepts: a CPU-bound
// request holds its slot for its full duration, so CPU work never oversubscribes
// the process. A request that is about to block on external I/O promotes
// itself to a long task: it takes a slot from a separate, larger long-task
// pool and hands its connection slot back to the accept path for the
// duration of the wait.
//
// # Basic Usage
//
//	import "github.com/vireolabs/cordon"
//
//	lim := cordon.New(
//	    cordon.WithMaxConnections(2),
//	    cordon.WithMaxLongTasks(32),
//	)
//
//	srv := &http.Server{
//	    Handler:     lim.Middleware(mux),
//	    ConnContext: lim.ConnContext,
//	}
//
//	ln, err := net.Listen("tcp", addr)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = srv.Serve(lim.Wrap(ln))
//
// # Promoting a Request
//
// A handler that knows a long wait is imminent promotes through its current
// task:
//
//	func handle(w http.ResponseWriter, r *http.Request) {
//	    if task := cordon.TaskFromContext(r.Context()); task != nil {
//	        _ = task.Start(r.Context())
//	    }
//	    rows, err := db.QueryContext(r.Context(), slowQuery) // blocks off-slot
//	    // ...
//	}
//
// Start schedules the promotion after a short delay (WithStartDelay), so
// requests that finish quickly never touch the long-task pool. The scoped
// form brackets just the blocking section and restores the connection slot
// afterwards:
//
//	err := task.Do(r.Context(), func(ctx context.Context) error {
//	    return fetchUpstream(ctx)
//	})
//
// The middleware guarantees a terminal stop when the response completes, on
// the error path included; handlers only ever need Stop for an explicit
// mid-request demotion.
//
// # Ordering Guarantees
//
// Waiters on each pool are served strictly by priority, FIFO among equals.
// A stopping long task re-acquires its connection slot at DemotePriority,
// ahead of all fresh accepts (AcceptPriority), so a terminating request is
// never starved by new arrivals.
package cordon
