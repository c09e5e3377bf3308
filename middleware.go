package cordon

import (
	"context"
	"net"
	"net/http"

	"github.com/vireolabs/cordon/internal/core"
)

// ConnContext installs the accepted *Conn into the request context so the
// middleware can discover the connection token. Assign it to
// [http.Server.ConnContext]. Connections not produced by Wrap (or wrapped
// again by TLS) pass through unchanged; requests on them run without a
// connection hand-off.
func (l *Limiter) ConnContext(ctx context.Context, c net.Conn) context.Context {
	if cc, ok := c.(*core.Conn); ok {
		return core.ContextWithConn(ctx, cc)
	}
	return ctx
}

// ContextWithTask returns a context with t installed as the current long
// task. The middleware does this per request; only custom transports need to
// call it directly. Nested installations scope like any context value: the
// previous task is visible again once the derived context goes out of use.
func ContextWithTask(ctx context.Context, t *LongTask) context.Context {
	return core.ContextWithTask(ctx, t)
}

// TaskFromContext returns the long task bound to the current request, or nil
// when long-task support is disabled (or the request did not pass through
// the middleware).
func TaskFromContext(ctx context.Context) *LongTask {
	return core.TaskFromContext(ctx)
}

// Middleware returns the request interceptor: it creates a LongTask per
// request, installs it in the request context, and guarantees a terminal
// stop once the response is complete — on normal return and on handler
// panic alike. Panics propagate unchanged after cleanup.
//
// The terminal stop is forced: the connection is going away (promotion
// marked it non-persistent, or the panic path is tearing it down), so
// re-acquiring a connection slot just to release it again would contend
// with pending accepts for nothing.
//
// When long-task support is disabled, Middleware returns next unchanged.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	if l.taskPool == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		task := l.TaskFor(core.ConnFromContext(r.Context()))
		ctx := core.ContextWithTask(r.Context(), task)
		defer func() {
			_ = task.Stop(context.WithoutCancel(ctx), true)
		}()
		tw := &taskResponseWriter{ResponseWriter: w, task: task}
		next.ServeHTTP(tw, r.WithContext(ctx))
	})
}

// taskResponseWriter enforces the non-persistent contract over net/http: if
// the request's task has started by the time the response header is written,
// the connection must not be reused, so a Connection: close header is added.
// For promotions that happen after the header has been flushed, the
// persistent flag on the wrapped Conn remains the authoritative signal.
type taskResponseWriter struct {
	http.ResponseWriter
	task        *core.LongTask
	wroteHeader bool
}

func (w *taskResponseWriter) WriteHeader(statusCode int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		if w.task.Started() {
			w.Header().Set("Connection", "close")
		}
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *taskResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// Flush forwards to the underlying writer so streaming handlers keep
// working through the wrapper.
func (w *taskResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
