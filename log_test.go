package xrepo

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryID(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, QueryID(ctx))

	ctx = ensureQueryID(ctx)
	id := QueryID(ctx)
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, id, QueryID(ensureQueryID(ctx)), "an existing id is kept")

	assert.Equal(t, "fixed", QueryID(WithQueryID(context.Background(), "fixed")))
}

func TestSQLEngine_LogsStatements(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	_, db := recordingDB(t, "sqlite", []string{"name"})
	repo := New(db, people, WithLogger(logger))

	ctx := WithQueryID(context.Background(), "q-1")
	_, err := repo.FindAllRows(ctx, nil, ByAttributeNames[Person]("name"), WithHints(StreamingHints(5)))
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "xrepo: list")
	assert.Contains(t, out, "query_id=q-1")
	assert.Contains(t, out, `FROM \"people\"`)
	assert.Contains(t, out, "xrepo: hints")
}
