package tracing

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// GinMiddleware instruments inbound HTTP requests.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer("stride/http")
	return func(c *gin.Context) {
		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))

		ctx, span := tracer.Start(ctx, "HTTP "+strings.ToUpper(c.Request.Method), trace.WithSpanKind(trace.SpanKindServer))

		c.Request = c.Request.WithContext(ctx)
		start := time.Now()

		// Deferred so a panicking handler still closes the span while the
		// recovery middleware unwinds past us.
		defer func() {
			route := c.FullPath()
			if route == "" {
				route = "unknown"
			}
			span.SetName("HTTP " + strings.ToUpper(c.Request.Method) + " " + route)
			span.SetAttributes(
				attribute.String("http.method", c.Request.Method),
				attribute.String("http.route", route),
				attribute.Int("http.status_code", c.Writer.Status()),
				attribute.Int64("http.server_duration_ms", time.Since(start).Milliseconds()),
			)

			if status := c.Writer.Status(); status >= http.StatusInternalServerError {
				if lastErr := c.Errors.Last(); lastErr != nil {
					span.RecordError(lastErr.Err)
				}
				span.SetStatus(codes.Error, "request error")
			}
			span.End()
		}()

		c.Next()
	}
}
