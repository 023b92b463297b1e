// Package sqlmod is a host module exposing a single-statement query
// primitive backed by pgx, so a zim program can reach a Postgres
// database through the same arity-1 HostFn ABI as any other host call.
package sqlmod

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/deepnoodle-ai/zimvm/object"
)

// New connects to connString and builds the "sql" package object: one
// field, "query", a 1-arity HostFn a zim program reaches via
// import("sql").sql.query(statement). Query results become an array of
// objects, one per row, with fields named after the result columns.
// Any error, connection or query, is reported as Undef: the HostFn ABI
// carries no error channel, so a failed query is indistinguishable from
// one that legitimately returns nothing.
func New(ctx context.Context, connString string) (*object.Object, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}
	pkg := object.NewObject(1)
	pkg.SetField("query", object.FromHostFn(object.NewHostFn1("sql.query", queryFn(ctx, conn))))
	return pkg, nil
}

func queryFn(ctx context.Context, conn *pgx.Conn) func(object.Value) object.Value {
	return func(stmt object.Value) object.Value {
		if !stmt.IsString() {
			return object.Undef
		}
		rows, err := conn.Query(ctx, stmt.AsString())
		if err != nil {
			return object.Undef
		}
		defer rows.Close()

		fields := rows.FieldDescriptions()
		results := object.NewArray(0)
		for rows.Next() {
			vals, err := rows.Values()
			if err != nil {
				return object.Undef
			}
			row := object.NewObject(len(vals))
			for i, v := range vals {
				row.SetField(string(fields[i].Name), toValue(v))
			}
			results.Push(object.FromObject(row))
		}
		if rows.Err() != nil {
			return object.Undef
		}
		return object.FromArray(results)
	}
}

func toValue(v any) object.Value {
	switch t := v.(type) {
	case nil:
		return object.Undef
	case bool:
		return object.Bool(t)
	case int32:
		return object.Int32(t)
	case int64:
		return object.Int32(int32(t))
	case float32:
		return object.Float32(t)
	case float64:
		return object.Float32(float32(t))
	case string:
		return object.String(t)
	default:
		return object.Undef
	}
}
