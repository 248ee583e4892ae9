package obs

import (
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const gormSpanKey = "obs:span"

// RegisterGormTracing adds span-per-statement callbacks to a gorm database,
// mirroring PGXTracer for the SQLite store.
func RegisterGormTracing(db *gorm.DB) error {
	tracer := otel.Tracer("db.gorm")
	before := func(op string) func(*gorm.DB) {
		return func(tx *gorm.DB) {
			ctx, span := tracer.Start(tx.Statement.Context, "gorm."+op, trace.WithSpanKind(trace.SpanKindClient))
			span.SetAttributes(attribute.String("db.system", "sqlite"), attribute.String("db.operation", op))
			tx.Statement.Context = ctx
			tx.InstanceSet(gormSpanKey, span)
		}
	}
	after := func(tx *gorm.DB) {
		v, ok := tx.InstanceGet(gormSpanKey)
		if !ok {
			return
		}
		span, ok := v.(trace.Span)
		if !ok {
			return
		}
		span.SetAttributes(
			attribute.String("db.statement", truncateSQL(tx.Statement.SQL.String())),
			attribute.Int64("db.rows_affected", tx.Statement.RowsAffected),
		)
		if tx.Error != nil && !errors.Is(tx.Error, gorm.ErrRecordNotFound) {
			span.RecordError(tx.Error)
			span.SetStatus(codes.Error, "statement failed")
		}
		span.End()
	}

	cb := db.Callback()
	return errors.Join(
		cb.Query().Before("gorm:query").Register("obs:query:before", before("query")),
		cb.Query().After("gorm:query").Register("obs:query:after", after),
		cb.Create().Before("gorm:create").Register("obs:create:before", before("create")),
		cb.Create().After("gorm:create").Register("obs:create:after", after),
		cb.Update().Before("gorm:update").Register("obs:update:before", before("update")),
		cb.Update().After("gorm:update").Register("obs:update:after", after),
		cb.Delete().Before("gorm:delete").Register("obs:delete:before", before("delete")),
		cb.Delete().After("gorm:delete").Register("obs:delete:after", after),
		cb.Raw().Before("gorm:raw").Register("obs:raw:before", before("raw")),
		cb.Raw().After("gorm:raw").Register("obs:raw:after", after),
	)
}
