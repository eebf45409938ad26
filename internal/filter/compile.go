package filter

import (
	"fmt"
	"strings"
)

// Query is a compiled filter: a SQL boolean expression over the `sources s`
// table (optionally referencing `roots r` via a correlated subquery) plus
// its positional arguments.
type Query struct {
	SQL  string
	Args []any
}

// sourceVirtualColumns maps built-in source.* keys to columns already
// present on the sources table (populated by the scanner), so evaluating
// them never requires touching the fact tables.
var sourceVirtualColumns = map[string]struct {
	column  string
	numeric bool
}{
	"source.size":      {"s.size", true},
	"source.mtime":     {"s.mtime", true},
	"source.device":    {"s.device", true},
	"source.inode":     {"s.inode", true},
	"source.basis_rev": {"s.basis_rev", true},
	"source.rel_path":  {"s.rel_path", false},
	"source.filename":  {"s.filename", false},
	"source.ext":       {"s.ext", false},
	"source.root":      {"(SELECT path FROM roots WHERE id = s.root_id)", false},
}

// Compile compiles an AST into a single parameterized SQL boolean
// expression evaluable over the `sources s` table. A nil Node compiles to
// the always-true expression "1=1".
func Compile(n Node) (Query, error) {
	if n == nil {
		return Query{SQL: "1=1"}, nil
	}
	var sb strings.Builder
	var args []any
	if err := compileNode(n, &sb, &args); err != nil {
		return Query{}, err
	}
	return Query{SQL: sb.String(), Args: args}, nil
}

func compileNode(n Node, sb *strings.Builder, args *[]any) error {
	switch v := n.(type) {
	case OrNode:
		return compileBoolList(v.Children, "OR", sb, args)
	case AndNode:
		return compileBoolList(v.Children, "AND", sb, args)
	case NotNode:
		sb.WriteString("NOT (")
		if err := compileNode(v.Child, sb, args); err != nil {
			return err
		}
		sb.WriteString(")")
		return nil
	case ExistsAtom:
		return compileExists(v.Key, sb, args)
	case CompareAtom:
		return compileCompare(v.Key, v.Op, v.Value, sb, args)
	case InAtom:
		var sub []Node
		for _, val := range v.Values {
			sub = append(sub, CompareAtom{Key: v.Key, Op: "=", Value: val})
		}
		return compileBoolList(sub, "OR", sb, args)
	default:
		return fmt.Errorf("filter: unknown AST node %T", n)
	}
}

func compileBoolList(children []Node, joiner string, sb *strings.Builder, args *[]any) error {
	sb.WriteString("(")
	for i, c := range children {
		if i > 0 {
			sb.WriteString(" " + joiner + " ")
		}
		sb.WriteString("(")
		if err := compileNode(c, sb, args); err != nil {
			return err
		}
		sb.WriteString(")")
	}
	sb.WriteString(")")
	return nil
}

func compileExists(key string, sb *strings.Builder, args *[]any) error {
	if _, ok := sourceVirtualColumns[key]; ok {
		// Built-in fields derived from the file are always present.
		sb.WriteString("1=1")
		return nil
	}
	sb.WriteString(
		"(EXISTS (SELECT 1 FROM source_facts sf WHERE sf.source_id = s.id AND sf.key = ?) OR " +
			"(s.object_id IS NOT NULL AND EXISTS (SELECT 1 FROM object_facts ofa WHERE ofa.object_id = s.object_id AND ofa.key = ?)))",
	)
	*args = append(*args, key, key)
	return nil
}

func compileCompare(key, op string, val Value, sb *strings.Builder, args *[]any) error {
	if vc, ok := sourceVirtualColumns[key]; ok {
		expr, arg := valueCompareExpr(vc.column, op, val, vc.numeric)
		sb.WriteString(expr)
		*args = append(*args, arg)
		return nil
	}

	sourceExpr, sourceArg := valueCompareExpr("sf.value", op, val, val.Kind == ValueNumber)
	objectExpr, objectArg := valueCompareExpr("ofa.value", op, val, val.Kind == ValueNumber)

	sb.WriteString(
		"(EXISTS (SELECT 1 FROM source_facts sf WHERE sf.source_id = s.id AND sf.key = ? AND " + sourceExpr + ") OR " +
			"(s.object_id IS NOT NULL AND EXISTS (SELECT 1 FROM object_facts ofa WHERE ofa.object_id = s.object_id AND ofa.key = ? AND " + objectExpr + ")))",
	)
	*args = append(*args, key, sourceArg, key, objectArg)
	return nil
}

// valueCompareExpr returns a SQL fragment "<column> <op> ?" coerced per the
// comparison's value kind, and the argument to bind for the placeholder.
// Numeric comparisons cast the column to REAL; date comparisons use
// SQLite's datetime() to normalize both sides, except against a numeric
// column (source.mtime), where the date is bound as epoch seconds;
// otherwise it's a plain text comparison, coercing both sides to the same
// representation.
func valueCompareExpr(column, op string, val Value, forceNumeric bool) (string, any) {
	sqlOp := op
	switch op {
	case "!=":
		sqlOp = "<>"
	}
	switch {
	case val.Kind == ValueDate && forceNumeric:
		return fmt.Sprintf("CAST(%s AS REAL) %s ?", column, sqlOp), float64(val.Time.Unix())
	case val.Kind == ValueNumber || forceNumeric:
		return fmt.Sprintf("CAST(%s AS REAL) %s ?", column, sqlOp), val.Num
	case val.Kind == ValueDate:
		return fmt.Sprintf("datetime(%s) %s datetime(?)", column, sqlOp), val.Raw
	default:
		return fmt.Sprintf("%s %s ?", column, sqlOp), val.Raw
	}
}
