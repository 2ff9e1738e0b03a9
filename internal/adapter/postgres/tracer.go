package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/KimuSoft/twitch-point-timer/internal/adapter/metrics"
	"github.com/jackc/pgx/v5"
)

// QueryTracer records query latency and failures per statement kind.
type QueryTracer struct {
	metrics *metrics.DBMetrics
	now     func() time.Time
}

func NewQueryTracer(m *metrics.DBMetrics) *QueryTracer {
	return &QueryTracer{metrics: m, now: time.Now}
}

type queryStartKey struct{}

type queryStart struct {
	at        time.Time
	statement string
}

func (t *QueryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryStartKey{}, queryStart{at: t.now(), statement: statementKind(data.SQL)})
}

func (t *QueryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	start, ok := ctx.Value(queryStartKey{}).(queryStart)
	if !ok {
		return
	}

	t.metrics.QueryDuration.WithLabelValues(start.statement).Observe(t.now().Sub(start.at).Seconds())
	if data.Err != nil {
		t.metrics.Errors.WithLabelValues(start.statement).Inc()
	}
}

// statementKind keeps label cardinality bounded: SELECT, INSERT, UPDATE, ...
func statementKind(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "unknown"
	}
	return strings.ToUpper(fields[0])
}

var _ pgx.QueryTracer = (*QueryTracer)(nil)
