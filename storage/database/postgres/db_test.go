package pgrepos

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_where(t *testing.T) {
	var w where
	assert.Empty(t, w.String())

	w.add("user_id = ?", "u1")
	w.add("status IN (?, ?)", "new", "review")
	w.add("is_active")
	assert.Equal(t, " WHERE user_id = $1 AND status IN ($2, $3) AND is_active", w.String())
	assert.Equal(t, "$4", w.next(10))
	assert.Equal(t, []interface{}{"u1", "new", "review", 10}, w.args)
}

func Test_ids(t *testing.T) {
	id := newID()
	assert.True(t, validID(id))
	assert.False(t, validID("nope"))
	assert.Equal(t, []string{id}, validIDs([]string{"", id, "42"}))

	assert.True(t, nullID(id).Valid)
	assert.False(t, nullID("").Valid)
	assert.False(t, nullID("not-a-uuid").Valid)
}

func Test_upsertQuery(t *testing.T) {
	q := upsertQuery("test_question_items", []string{"id", "test_id", "question_id", "idx"}, 8)
	assert.True(t, strings.HasPrefix(q, `INSERT INTO test_question_items ("id", "test_id", "question_id", "idx") VALUES `))
	assert.Contains(t, q, "$8")
	assert.NotContains(t, q, "$9")
	assert.True(t, strings.HasSuffix(q, ` ON CONFLICT ("id") DO UPDATE SET "test_id" = EXCLUDED."test_id", `+
		`"question_id" = EXCLUDED."question_id", "idx" = EXCLUDED."idx" `+
		`WHERE test_question_items."test_id" = EXCLUDED."test_id"`))
}
