package rules

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getTestRepo(t *testing.T) *Repository {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping repository tests")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	repo := NewRepository(pool)
	ctx := context.Background()
	require.NoError(t, repo.InitSchema(ctx))
	require.NoError(t, repo.ReplaceAll(ctx, nil))
	return repo
}

func TestRepository_InitSchema_Idempotent(t *testing.T) {
	repo := getTestRepo(t)
	require.NoError(t, repo.InitSchema(context.Background()))
}

func TestRepository_ReplaceAllAndList(t *testing.T) {
	repo := getTestRepo(t)
	ctx := context.Background()

	ruleList := []Rule{
		statusRule("wf-wf1-t1", "open", "pending"),
		statusRule("m1", "pending", "solved"),
	}
	require.NoError(t, repo.ReplaceAll(ctx, ruleList))

	listed, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "wf-wf1-t1", listed[0].ID)
	assert.Equal(t, "m1", listed[1].ID)
	assert.Equal(t, ruleList[0].Conditions, listed[0].Conditions)
	assert.Equal(t, ruleList[0].Actions, listed[0].Actions)
}

func TestRepository_ReplacePrefix(t *testing.T) {
	repo := getTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.ReplaceAll(ctx, []Rule{
		{ID: "m1"}, {ID: "wf-wf1-t1"}, {ID: "wf-wf10-t1"},
	}))

	require.NoError(t, repo.ReplacePrefix(ctx, "wf-wf1-", []Rule{
		statusRule("wf-wf1-t2", "open", "pending"),
	}))

	listed, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Equal(t, "m1", listed[0].ID)
	assert.Equal(t, "wf-wf10-t1", listed[1].ID)
	assert.Equal(t, "wf-wf1-t2", listed[2].ID)
}

func TestRepository_AddAppendsAfterTail(t *testing.T) {
	repo := getTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.ReplaceAll(ctx, []Rule{statusRule("m1", "a", "b")}))

	added, err := repo.Add(ctx, Rule{Name: "manual", Type: TypeAutomation})
	require.NoError(t, err)
	assert.NotEmpty(t, added.ID)

	listed, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, added.ID, listed[1].ID)
}

func TestRepository_AddRejectsDerivedNamespace(t *testing.T) {
	repo := getTestRepo(t)

	_, err := repo.Add(context.Background(), Rule{ID: "wf-wf1-t9"})
	require.Error(t, err)
}

func TestRepository_UpdateAndRemove(t *testing.T) {
	repo := getTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.ReplaceAll(ctx, []Rule{statusRule("m1", "a", "b")}))

	enabled := false
	updated, err := repo.Update(ctx, "m1", Patch{Enabled: &enabled})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.False(t, updated.Enabled)

	missing, err := repo.Update(ctx, "nope", Patch{Enabled: &enabled})
	require.NoError(t, err)
	assert.Nil(t, missing)

	removed, err := repo.Remove(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = repo.Remove(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, removed)
}
