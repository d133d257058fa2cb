package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// Dialect SQL方言
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

// Driver returns the database/sql driver name.
func (d Dialect) Driver() string {
	if d == DialectPostgres {
		return "postgres"
	}
	return "sqlite3"
}

// Goose returns the migration dialect name.
func (d Dialect) Goose() string {
	if d == DialectPostgres {
		return "postgres"
	}
	return "sqlite3"
}

// Rebind 将 ? 占位符转换为方言占位符
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SelectBuilder SELECT查询构建器
type SelectBuilder struct {
	dialect    Dialect
	table      string
	selectCols []string
	whereConds []string
	orderBy    []string
	limitVal   int
	args       []any
}

// Select 创建SELECT构建器
func (d Dialect) Select(table string, cols ...string) *SelectBuilder {
	if len(cols) == 0 {
		cols = []string{"*"}
	}
	return &SelectBuilder{dialect: d, table: table, selectCols: cols}
}

// Where 添加WHERE条件，多个条件以AND连接
func (b *SelectBuilder) Where(condition string, args ...any) *SelectBuilder {
	b.whereConds = append(b.whereConds, condition)
	b.args = append(b.args, args...)
	return b
}

// OrderBy 添加ORDER BY
func (b *SelectBuilder) OrderBy(cols ...string) *SelectBuilder {
	b.orderBy = append(b.orderBy, cols...)
	return b
}

// Limit 设置LIMIT
func (b *SelectBuilder) Limit(n int) *SelectBuilder {
	b.limitVal = n
	return b
}

// Build 构建SQL语句
func (b *SelectBuilder) Build() (string, []any) {
	var query strings.Builder

	query.WriteString("SELECT ")
	query.WriteString(strings.Join(b.selectCols, ", "))
	query.WriteString(" FROM " + b.table)

	if len(b.whereConds) > 0 {
		query.WriteString(" WHERE ")
		query.WriteString(strings.Join(b.whereConds, " AND "))
	}
	if len(b.orderBy) > 0 {
		query.WriteString(" ORDER BY ")
		query.WriteString(strings.Join(b.orderBy, ", "))
	}
	if b.limitVal > 0 {
		query.WriteString(fmt.Sprintf(" LIMIT %d", b.limitVal))
	}

	return b.dialect.Rebind(query.String()), b.args
}

// Query 执行查询
func (b *SelectBuilder) Query(ctx context.Context, db DBTX) (*sql.Rows, error) {
	q, args := b.Build()
	return db.QueryContext(ctx, q, args...)
}

// QueryRow 执行单行查询
func (b *SelectBuilder) QueryRow(ctx context.Context, db DBTX) *sql.Row {
	q, args := b.Build()
	return db.QueryRowContext(ctx, q, args...)
}

// InsertBuilder INSERT构建器
type InsertBuilder struct {
	dialect    Dialect
	table      string
	cols       []string
	args       []any
	onConflict []string
	doUpdate   []string
}

// Insert 创建INSERT构建器
func (d Dialect) Insert(table string) *InsertBuilder {
	return &InsertBuilder{dialect: d, table: table}
}

// Set 添加列和值
func (i *InsertBuilder) Set(col string, val any) *InsertBuilder {
	i.cols = append(i.cols, col)
	i.args = append(i.args, val)
	return i
}

// OnConflict 设置冲突目标，未调用DoUpdate时为DO NOTHING
func (i *InsertBuilder) OnConflict(cols ...string) *InsertBuilder {
	i.onConflict = append(i.onConflict, cols...)
	return i
}

// DoUpdate 冲突时用新值覆盖这些列
func (i *InsertBuilder) DoUpdate(cols ...string) *InsertBuilder {
	i.doUpdate = append(i.doUpdate, cols...)
	return i
}

// Build 构建INSERT语句
func (i *InsertBuilder) Build() (string, []any) {
	var query strings.Builder

	query.WriteString("INSERT INTO " + i.table)
	query.WriteString(" (" + strings.Join(i.cols, ", ") + ")")

	placeholders := make([]string, len(i.cols))
	for j := range placeholders {
		placeholders[j] = "?"
	}
	query.WriteString(" VALUES (" + strings.Join(placeholders, ", ") + ")")

	if len(i.onConflict) > 0 {
		query.WriteString(" ON CONFLICT (" + strings.Join(i.onConflict, ", ") + ")")
		if len(i.doUpdate) == 0 {
			query.WriteString(" DO NOTHING")
		} else {
			sets := make([]string, len(i.doUpdate))
			for j, col := range i.doUpdate {
				sets[j] = col + " = excluded." + col
			}
			query.WriteString(" DO UPDATE SET " + strings.Join(sets, ", "))
		}
	}

	return i.dialect.Rebind(query.String()), i.args
}

// Exec 执行INSERT
func (i *InsertBuilder) Exec(ctx context.Context, db DBTX) (sql.Result, error) {
	q, args := i.Build()
	return db.ExecContext(ctx, q, args...)
}

// UpdateBuilder UPDATE构建器
type UpdateBuilder struct {
	dialect    Dialect
	table      string
	sets       []string
	setArgs    []any
	conditions []string
	whereArgs  []any
}

// Update 创建UPDATE构建器
func (d Dialect) Update(table string) *UpdateBuilder {
	return &UpdateBuilder{dialect: d, table: table}
}

// Set 设置更新列
func (u *UpdateBuilder) Set(col string, val any) *UpdateBuilder {
	u.sets = append(u.sets, col+" = ?")
	u.setArgs = append(u.setArgs, val)
	return u
}

// Where 设置WHERE条件
func (u *UpdateBuilder) Where(condition string, args ...any) *UpdateBuilder {
	u.conditions = append(u.conditions, condition)
	u.whereArgs = append(u.whereArgs, args...)
	return u
}

// Build 构建UPDATE语句
func (u *UpdateBuilder) Build() (string, []any) {
	var query strings.Builder

	query.WriteString("UPDATE " + u.table)
	query.WriteString(" SET " + strings.Join(u.sets, ", "))
	if len(u.conditions) > 0 {
		query.WriteString(" WHERE " + strings.Join(u.conditions, " AND "))
	}

	args := make([]any, 0, len(u.setArgs)+len(u.whereArgs))
	args = append(args, u.setArgs...)
	args = append(args, u.whereArgs...)
	return u.dialect.Rebind(query.String()), args
}

// Exec 执行UPDATE
func (u *UpdateBuilder) Exec(ctx context.Context, db DBTX) (sql.Result, error) {
	q, args := u.Build()
	return db.ExecContext(ctx, q, args...)
}

// DeleteBuilder DELETE构建器
type DeleteBuilder struct {
	dialect    Dialect
	table      string
	conditions []string
	args       []any
}

// Delete 创建DELETE构建器
func (d Dialect) Delete(table string) *DeleteBuilder {
	return &DeleteBuilder{dialect: d, table: table}
}

// Where 设置WHERE条件
func (b *DeleteBuilder) Where(condition string, args ...any) *DeleteBuilder {
	b.conditions = append(b.conditions, condition)
	b.args = append(b.args, args...)
	return b
}

// Build 构建DELETE语句
func (b *DeleteBuilder) Build() (string, []any) {
	query := "DELETE FROM " + b.table
	if len(b.conditions) > 0 {
		query += " WHERE " + strings.Join(b.conditions, " AND ")
	}
	return b.dialect.Rebind(query), b.args
}

// Exec 执行DELETE
func (b *DeleteBuilder) Exec(ctx context.Context, db DBTX) (sql.Result, error) {
	q, args := b.Build()
	return db.ExecContext(ctx, q, args...)
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on error or panic.
func WithTx(ctx context.Context, db *sql.DB, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	return fn(ctx, tx)
}
