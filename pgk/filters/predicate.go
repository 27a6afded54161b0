package filters

import (
	"fmt"
	"strings"
	"sync"

	"github.com/saveblush/reraw-timeline/models"
)

// Expr boolean expression over a status
type Expr interface {
	Evaluate(status *models.Status) bool
	// SQL WHERE fragment over the statuses table.
	SQL() string
	// Query textual form of the expression.
	Query() string
	values() []Value
}

type allExpr struct{}

// All accepts every status
func All() Expr {
	return allExpr{}
}

func (allExpr) Evaluate(*models.Status) bool { return true }
func (allExpr) SQL() string                  { return "1 = 1" }
func (allExpr) Query() string                { return "()" }
func (allExpr) values() []Value              { return nil }

type logicExpr struct {
	op    string
	exprs []Expr
}

// And every expression accepts
func And(exprs ...Expr) Expr {
	return &logicExpr{op: "AND", exprs: exprs}
}

// Or at least one expression accepts
func Or(exprs ...Expr) Expr {
	return &logicExpr{op: "OR", exprs: exprs}
}

func (e *logicExpr) Evaluate(status *models.Status) bool {
	if e.op == "AND" {
		for _, x := range e.exprs {
			if !x.Evaluate(status) {
				return false
			}
		}
		return true
	}

	for _, x := range e.exprs {
		if x.Evaluate(status) {
			return true
		}
	}

	return false
}

func (e *logicExpr) SQL() string {
	if len(e.exprs) == 0 {
		if e.op == "AND" {
			return "1 = 1"
		}
		return "1 = 0"
	}

	parts := make([]string, len(e.exprs))
	for i, x := range e.exprs {
		parts[i] = "(" + x.SQL() + ")"
	}

	return strings.Join(parts, " "+e.op+" ")
}

func (e *logicExpr) Query() string {
	sep := " && "
	if e.op == "OR" {
		sep = " || "
	}
	parts := make([]string, len(e.exprs))
	for i, x := range e.exprs {
		parts[i] = x.Query()
	}

	return "(" + strings.Join(parts, sep) + ")"
}

func (e *logicExpr) values() []Value {
	var vs []Value
	for _, x := range e.exprs {
		vs = append(vs, x.values()...)
	}

	return vs
}

type notExpr struct {
	expr Expr
}

// Not negation
func Not(expr Expr) Expr {
	return &notExpr{expr: expr}
}

func (e *notExpr) Evaluate(status *models.Status) bool { return !e.expr.Evaluate(status) }
func (e *notExpr) SQL() string                         { return "NOT (" + e.expr.SQL() + ")" }
func (e *notExpr) Query() string                       { return "!" + e.expr.Query() }
func (e *notExpr) values() []Value                     { return e.expr.values() }

// memberExpr status field is contained in the set of a value
type memberExpr struct {
	column string
	name   string
	field  func(*models.Status) uint64
	value  Value
}

// UserIn author is in the value's set
func UserIn(v Value) Expr {
	return &memberExpr{column: "user_id", name: "user", field: func(s *models.Status) uint64 { return s.UserID }, value: v}
}

// ReplyToIn replied user is in the value's set
func ReplyToIn(v Value) Expr {
	return &memberExpr{column: "in_reply_to_user_id", name: "to", field: func(s *models.Status) uint64 { return s.InReplyToUserID }, value: v}
}

func (e *memberExpr) Evaluate(status *models.Status) bool {
	return e.value.SetValue().Contains(e.field(status))
}

func (e *memberExpr) SQL() string {
	return e.column + " IN " + e.value.SetSQL()
}

func (e *memberExpr) Query() string {
	return e.name + " in " + e.value.QueryProjection()
}

func (e *memberExpr) values() []Value {
	return []Value{e.value}
}

// userIsExpr author equals the value's user id
type userIsExpr struct {
	value Value
}

// UserIs author equals the numeric value
func UserIs(v Value) Expr {
	return &userIsExpr{value: v}
}

func (e *userIsExpr) Evaluate(status *models.Status) bool {
	return int64(status.UserID) == e.value.NumericValue()
}

func (e *userIsExpr) SQL() string {
	return "user_id = " + e.value.NumericSQL()
}

func (e *userIsExpr) Query() string {
	return "user == " + e.value.QueryProjection()
}

func (e *userIsExpr) values() []Value {
	return []Value{e.value}
}

// Predicate compiled expression with the lifecycle of its values.
// Reapply delivers relevant relation changes, coalesced while unread.
type Predicate struct {
	expr    Expr
	values  []Value
	reapply chan models.RelationChangeKind

	mu      sync.Mutex
	cancels []func()
}

// Compile check every value supports the type its expression reads
func Compile(expr Expr) (*Predicate, error) {
	if expr == nil {
		return nil, fmt.Errorf("compile: nil expression")
	}
	if err := checkTypes(expr); err != nil {
		return nil, fmt.Errorf("compile %s: %w", expr.Query(), err)
	}

	return &Predicate{
		expr:    expr,
		values:  expr.values(),
		reapply: make(chan models.RelationChangeKind, 1),
	}, nil
}

func checkTypes(expr Expr) error {
	switch e := expr.(type) {
	case *logicExpr:
		for _, x := range e.exprs {
			if err := checkTypes(x); err != nil {
				return err
			}
		}
	case *notExpr:
		return checkTypes(e.expr)
	case *memberExpr:
		if !supports(e.value, Set) {
			return fmt.Errorf("%s: %w", e.value.QueryProjection(), ErrUnsupportedType)
		}
	case *userIsExpr:
		if !supports(e.value, Numeric) {
			return fmt.Errorf("%s: %w", e.value.QueryProjection(), ErrUnsupportedType)
		}
	}

	return nil
}

func supports(v Value, t ValueType) bool {
	for _, st := range v.SupportedTypes() {
		if st == t {
			return true
		}
	}

	return false
}

// Evaluate evaluate status
func (p *Predicate) Evaluate(status *models.Status) bool {
	return p.expr.Evaluate(status)
}

// SQL WHERE fragment
func (p *Predicate) SQL() string {
	return p.expr.SQL()
}

// Query textual form
func (p *Predicate) Query() string {
	return p.expr.Query()
}

// Begin begin lifecycle of every value and forward their reapply signals
func (p *Predicate) Begin() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancels != nil {
		return nil
	}

	cancels := make([]func(), 0, len(p.values)*2)
	for _, v := range p.values {
		if err := v.BeginLifecycle(); err != nil {
			for _, cancel := range cancels {
				cancel()
			}
			return fmt.Errorf("begin %s: %w", v.QueryProjection(), err)
		}
		cancels = append(cancels, v.EndLifecycle, v.OnReapply(p.signal))
	}
	p.cancels = cancels

	return nil
}

// End end lifecycle of every value, idempotent
func (p *Predicate) End() {
	p.mu.Lock()
	cancels := p.cancels
	p.cancels = nil
	p.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// Reapply signals that the predicate outcome may have changed
func (p *Predicate) Reapply() <-chan models.RelationChangeKind {
	return p.reapply
}

// Refresh drop the cached snapshot of every value
func (p *Predicate) Refresh() {
	for _, v := range p.values {
		v.Refresh()
	}
}

func (p *Predicate) signal(kind models.RelationChangeKind) {
	select {
	case p.reapply <- kind:
	default:
		// a rebuild is already pending
	}
}
