package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaError_Message(t *testing.T) {
	err := &SchemaError{Reason: "dependency cycle", Cycle: []string{"a", "b", "a"}}
	assert.Equal(t, "schema error: dependency cycle: a -> b -> a", err.Error())

	edge := DependencyEdge{ChildTable: "orders", ChildColumn: "user_id", ParentTable: "users", ParentColumn: "id"}
	err = &SchemaError{Table: "orders", Edge: &edge, Reason: "unknown column"}
	assert.Equal(t, `schema error in table "orders" (edge orders.user_id -> users.id): unknown column`, err.Error())
}

func TestPolicyError_Message(t *testing.T) {
	err := &PolicyError{Fragment: "policy.redact.orders", Table: "orders", Column: "user_id", Reason: "key column cannot be redacted"}
	assert.Equal(t, "policy error at policy.redact.orders (orders.user_id): key column cannot be redacted", err.Error())
}

func TestDataAccessError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("export: %w", NewDataAccessError("orders", "stream", cause))

	var dae *DataAccessError
	require.ErrorAs(t, err, &dae)
	assert.Equal(t, "orders", dae.Table)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), `table "orders" during stream`)

	// already-wrapped errors are not wrapped twice
	assert.Same(t, dae, NewDataAccessError("other", "x", dae))
	assert.NoError(t, NewDataAccessError("t", "x", nil))
}

func TestFilterRule_Constructors(t *testing.T) {
	assert.Equal(t, RuleIncludeAll, IncludeWhere(True).Kind)
	assert.Equal(t, RuleExcludeAll, IncludeWhere(False).Kind)
	assert.Equal(t, RuleIncludeAll, IncludeWhere(nil).Kind)

	r := IncludeWhere(Eq{Column: "status", Value: "publish"})
	assert.Equal(t, RuleIncludeWhere, r.Kind)
	assert.Equal(t, "IncludeWhere(status = 'publish')", r.String())
	assert.True(t, r.Allows(NewRow([]string{"status"}, []any{"publish"})))
	assert.False(t, r.Allows(NewRow([]string{"status"}, []any{"draft"})))
	assert.Equal(t, False, ExcludeAll().Predicate())
}

func TestParseHelpers(t *testing.T) {
	a, err := ParseRedactAction(" Hash ")
	require.NoError(t, err)
	assert.Equal(t, RedactHash, a)
	_, err = ParseRedactAction("shred")
	assert.Error(t, err)

	c, err := ParseCombine("")
	require.NoError(t, err)
	assert.Equal(t, CombineOr, c)
	_, err = ParseCombine("xor")
	assert.Error(t, err)

	p := &ExportPolicy{CombineTables: map[string]Combine{"comments": CombineAnd}}
	assert.Equal(t, CombineAnd, p.CombineFor("comments"))
	assert.Equal(t, CombineOr, p.CombineFor("posts"))
}
