package query

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/router-for-me/PersistedObjects/internal/apperrors"
	"github.com/router-for-me/PersistedObjects/internal/db"
	"github.com/router-for-me/PersistedObjects/internal/fields"
)

// maxExpressionLength bounds the size of a filter expression.
const maxExpressionLength = 4096

// likeEscape is appended to every LIKE produced by the compiler.
const likeEscape = ` ESCAPE '\'`

// Columns maps the names an expression may reference to their kinds.
type Columns map[string]fields.Kind

// Predicate is a parameterized SQL condition.
type Predicate struct {
	SQL  string
	Args []any
}

// compiler walks an expr AST and emits SQL with bind arguments.
type compiler struct {
	columns Columns
	args    []any
}

var comparisonOperators = map[string]string{
	"==": "=",
	"!=": "<>",
	"<":  "<",
	"<=": "<=",
	">":  ">",
	">=": ">=",
}

// mirrored maps an operator to its equivalent with swapped operands.
var mirrored = map[string]string{
	"==": "==",
	"!=": "!=",
	"<":  ">",
	"<=": ">=",
	">":  "<",
	">=": "<=",
}

// Compile parses an expression such as `status == "active" and priority >= 3`
// into a SQL predicate over the given columns.
func Compile(expression string, columns Columns) (*Predicate, error) {
	trimmed := strings.TrimSpace(expression)
	if trimmed == "" {
		return nil, apperrors.Validation("empty filter expression")
	}
	if len(trimmed) > maxExpressionLength {
		return nil, apperrors.Validation("filter expression longer than %d characters", maxExpressionLength)
	}
	tree, err := parser.Parse(trimmed)
	if err != nil {
		return nil, apperrors.Validation("invalid filter expression: %v", err)
	}
	c := &compiler{columns: columns}
	sql, err := c.predicate(tree.Node)
	if err != nil {
		return nil, err
	}
	return &Predicate{SQL: sql, Args: c.args}, nil
}

// predicate compiles a node that must evaluate to a boolean condition.
func (c *compiler) predicate(node ast.Node) (string, error) {
	switch n := node.(type) {
	case *ast.BinaryNode:
		return c.binary(n)
	case *ast.UnaryNode:
		if n.Operator != "not" && n.Operator != "!" {
			return "", apperrors.Validation("unsupported operator %q", n.Operator)
		}
		inner, err := c.predicate(n.Node)
		if err != nil {
			return "", err
		}
		return "NOT " + inner, nil
	case *ast.IdentifierNode:
		kind, err := c.column(n.Value)
		if err != nil {
			return "", err
		}
		if kind != fields.KindBoolean {
			return "", apperrors.Validation("field %q is not boolean", n.Value)
		}
		c.args = append(c.args, true)
		return "(" + db.QuoteIdent(n.Value) + " = ?)", nil
	case *ast.BoolNode:
		if n.Value {
			return "(1 = 1)", nil
		}
		return "(1 = 0)", nil
	default:
		return "", apperrors.Validation("unsupported expression %s", nodeName(node))
	}
}

func (c *compiler) binary(n *ast.BinaryNode) (string, error) {
	switch n.Operator {
	case "and", "&&", "or", "||":
		left, err := c.predicate(n.Left)
		if err != nil {
			return "", err
		}
		right, err := c.predicate(n.Right)
		if err != nil {
			return "", err
		}
		joiner := " AND "
		if n.Operator == "or" || n.Operator == "||" {
			joiner = " OR "
		}
		return "(" + left + joiner + right + ")", nil
	case "in":
		return c.in(n)
	case "contains", "startsWith", "endsWith":
		return c.like(n)
	}

	if _, ok := comparisonOperators[n.Operator]; !ok {
		return "", apperrors.Validation("unsupported operator %q", n.Operator)
	}

	operator := n.Operator
	ident, identOK := n.Left.(*ast.IdentifierNode)
	other := n.Right
	if !identOK || isNil(n.Left) {
		ident, identOK = n.Right.(*ast.IdentifierNode)
		other = n.Left
		operator = mirrored[operator]
	}
	if !identOK || isNil(ident) {
		return "", apperrors.Validation("comparison must reference a field")
	}
	kind, err := c.column(ident.Value)
	if err != nil {
		return "", err
	}
	quoted := db.QuoteIdent(ident.Value)

	if isNil(other) {
		switch operator {
		case "==":
			return "(" + quoted + " IS NULL)", nil
		case "!=":
			return "(" + quoted + " IS NOT NULL)", nil
		default:
			return "", apperrors.Validation("operator %q cannot compare with nil", operator)
		}
	}

	value, err := c.literal(other, kind, ident.Value)
	if err != nil {
		return "", err
	}
	c.args = append(c.args, value)
	return "(" + quoted + " " + comparisonOperators[operator] + " ?)", nil
}

func (c *compiler) in(n *ast.BinaryNode) (string, error) {
	ident, ok := n.Left.(*ast.IdentifierNode)
	if !ok {
		return "", apperrors.Validation("left side of in must be a field")
	}
	kind, err := c.column(ident.Value)
	if err != nil {
		return "", err
	}
	array, ok := n.Right.(*ast.ArrayNode)
	if !ok {
		return "", apperrors.Validation("right side of in must be a list")
	}
	if len(array.Nodes) == 0 {
		return "(1 = 0)", nil
	}
	placeholders := make([]string, 0, len(array.Nodes))
	for _, item := range array.Nodes {
		value, errLiteral := c.literal(item, kind, ident.Value)
		if errLiteral != nil {
			return "", errLiteral
		}
		c.args = append(c.args, value)
		placeholders = append(placeholders, "?")
	}
	return "(" + db.QuoteIdent(ident.Value) + " IN (" + strings.Join(placeholders, ", ") + "))", nil
}

func (c *compiler) like(n *ast.BinaryNode) (string, error) {
	ident, ok := n.Left.(*ast.IdentifierNode)
	if !ok {
		return "", apperrors.Validation("left side of %s must be a field", n.Operator)
	}
	kind, err := c.column(ident.Value)
	if err != nil {
		return "", err
	}
	if !kind.IsString() {
		return "", apperrors.Validation("%s requires a string field, %q is %s", n.Operator, ident.Value, kind)
	}
	str, ok := n.Right.(*ast.StringNode)
	if !ok {
		return "", apperrors.Validation("%s requires a string literal", n.Operator)
	}
	pattern := db.EscapeLike(str.Value)
	switch n.Operator {
	case "contains":
		pattern = "%" + pattern + "%"
	case "startsWith":
		pattern = pattern + "%"
	case "endsWith":
		pattern = "%" + pattern
	}
	c.args = append(c.args, pattern)
	return "(" + db.QuoteIdent(ident.Value) + " LIKE ?" + likeEscape + ")", nil
}

// column resolves a referenced name to a queryable column.
func (c *compiler) column(name string) (fields.Kind, error) {
	kind, ok := c.columns[name]
	if !ok {
		return "", apperrors.InvalidField(name, "not a queryable column; only indexed fields and timestamps can be filtered")
	}
	return kind, nil
}

// literal converts a literal node to a bind value of the column's kind.
func (c *compiler) literal(node ast.Node, kind fields.Kind, field string) (any, error) {
	var raw any
	switch n := node.(type) {
	case *ast.StringNode:
		raw = n.Value
	case *ast.IntegerNode:
		raw = n.Value
	case *ast.FloatNode:
		raw = n.Value
	case *ast.BoolNode:
		raw = n.Value
	case *ast.UnaryNode:
		if n.Operator != "-" {
			return nil, apperrors.Validation("unsupported operator %q in literal", n.Operator)
		}
		switch inner := n.Node.(type) {
		case *ast.IntegerNode:
			raw = -inner.Value
		case *ast.FloatNode:
			raw = -inner.Value
		default:
			return nil, apperrors.Validation("unsupported negation of %s", nodeName(n.Node))
		}
	default:
		return nil, apperrors.Validation("expected a literal, got %s", nodeName(node))
	}
	value, err := fields.Coerce(kind, raw)
	if err != nil {
		return nil, apperrors.InvalidField(field, err.Error())
	}
	return value, nil
}

func isNil(node ast.Node) bool {
	switch n := node.(type) {
	case *ast.NilNode:
		return true
	case *ast.IdentifierNode:
		return n.Value == "nil" || n.Value == "null"
	}
	return false
}

func nodeName(node ast.Node) string {
	return strings.TrimPrefix(fmt.Sprintf("%T", node), "*ast.")
}
