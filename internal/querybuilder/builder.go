// Package querybuilder assembles SELECT statements from named parts so that
// generated SQL keeps placeholders and args in the same order.
package querybuilder

import (
	"fmt"
	"strings"
)

// Expr is a SQL fragment and the args for its placeholders.
type Expr struct {
	SQL  string
	Args []any
}

func E(sql string, args ...any) Expr {
	return Expr{SQL: sql, Args: args}
}

// And joins non-empty expressions with AND, parenthesizing each.
func And(exprs ...Expr) Expr {
	var parts []string
	var args []any
	for _, e := range exprs {
		if e.SQL == "" {
			continue
		}
		parts = append(parts, "("+e.SQL+")")
		args = append(args, e.Args...)
	}
	return Expr{SQL: strings.Join(parts, " AND "), Args: args}
}

type cte struct {
	name string
	body Expr
}

type join struct {
	kind  string
	table string
	alias string
	on    string
}

// Builder is a single SELECT with optional CTEs. Only CTE bodies, FROM
// subqueries and WHERE conditions carry args.
type Builder struct {
	ctes    []cte
	columns []string
	from    Expr
	alias   string
	joins   []join
	where   []Expr
	groupBy []string
	orderBy []string
	limit   int
}

func New() *Builder {
	return &Builder{}
}

func (b *Builder) With(name string, body Expr) *Builder {
	b.ctes = append(b.ctes, cte{name: name, body: body})
	return b
}

func (b *Builder) Select(columns ...string) *Builder {
	b.columns = append(b.columns, columns...)
	return b
}

func (b *Builder) From(table, alias string) *Builder {
	b.from = Expr{SQL: table}
	b.alias = alias
	return b
}

// FromQuery selects from a parenthesized subquery.
func (b *Builder) FromQuery(sub Expr, alias string) *Builder {
	b.from = Expr{SQL: "(" + sub.SQL + ")", Args: sub.Args}
	b.alias = alias
	return b
}

func (b *Builder) LeftJoin(table, alias, on string) *Builder {
	b.joins = append(b.joins, join{kind: "LEFT JOIN", table: table, alias: alias, on: on})
	return b
}

func (b *Builder) InnerJoin(table, alias, on string) *Builder {
	b.joins = append(b.joins, join{kind: "INNER JOIN", table: table, alias: alias, on: on})
	return b
}

// Where adds a condition; empty conditions are ignored so optional filter
// fragments can be passed straight through.
func (b *Builder) Where(sql string, args ...any) *Builder {
	if sql != "" {
		b.where = append(b.where, Expr{SQL: sql, Args: args})
	}
	return b
}

func (b *Builder) WhereExpr(e Expr) *Builder {
	return b.Where(e.SQL, e.Args...)
}

func (b *Builder) GroupBy(columns ...string) *Builder {
	b.groupBy = append(b.groupBy, columns...)
	return b
}

func (b *Builder) OrderBy(columns ...string) *Builder {
	b.orderBy = append(b.orderBy, columns...)
	return b
}

func (b *Builder) Limit(n int) *Builder {
	b.limit = n
	return b
}

// Build renders the statement.
func (b *Builder) Build() Expr {
	var sb strings.Builder
	var args []any

	if len(b.ctes) > 0 {
		sb.WriteString("WITH ")
		for i, c := range b.ctes {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s AS (%s)", c.name, c.body.SQL)
			args = append(args, c.body.Args...)
		}
		sb.WriteString(" ")
	}

	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(b.columns, ", "))

	sb.WriteString(" FROM ")
	sb.WriteString(b.from.SQL)
	args = append(args, b.from.Args...)
	if b.alias != "" {
		sb.WriteString(" AS ")
		sb.WriteString(b.alias)
	}

	for _, j := range b.joins {
		fmt.Fprintf(&sb, " %s %s AS %s ON %s", j.kind, j.table, j.alias, j.on)
	}

	if len(b.where) > 0 {
		where := And(b.where...)
		sb.WriteString(" WHERE ")
		sb.WriteString(where.SQL)
		args = append(args, where.Args...)
	}

	if len(b.groupBy) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(b.groupBy, ", "))
	}

	if len(b.orderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(b.orderBy, ", "))
	}

	if b.limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", b.limit)
	}

	return Expr{SQL: sb.String(), Args: args}
}
