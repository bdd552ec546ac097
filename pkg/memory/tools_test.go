package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySearch(t *testing.T) {
	manager, _, workspace := createTestManager(t)
	writeFile(t, filepath.Join(workspace, "memory", "go.md"), "This is a test document about Go programming.")

	_, err := manager.Sync(context.Background(), SyncRequest{})
	require.NoError(t, err)

	t.Run("successful search", func(t *testing.T) {
		result, err := MemorySearch(context.Background(), manager, MemorySearchParams{
			Query:      "Go programming",
			MaxResults: 10,
		})
		require.NoError(t, err)
		assert.Equal(t, "Go programming", result.Query)
		assert.Equal(t, 1, result.Count)
		assert.Equal(t, "memory/go.md", result.Results[0].Path)
	})

	t.Run("empty query", func(t *testing.T) {
		_, err := MemorySearch(context.Background(), manager, MemorySearchParams{Query: "  "})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "query is required")
	})

	t.Run("min score out of range", func(t *testing.T) {
		_, err := MemorySearch(context.Background(), manager, MemorySearchParams{Query: "go", MinScore: floatPtr(3)})
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("no results", func(t *testing.T) {
		empty, _, _ := createTestManager(t)
		result, err := MemorySearch(context.Background(), empty, MemorySearchParams{Query: "nonexistent query xyz123"})
		require.NoError(t, err)
		assert.Equal(t, 0, result.Count)
		assert.NotNil(t, result.Results)
	})
}

func TestMemoryWrite(t *testing.T) {
	manager, _, workspace := createTestManager(t)
	ctx := context.Background()

	t.Run("create daily note", func(t *testing.T) {
		result, err := MemoryWrite(ctx, manager, MemoryWriteParams{
			Path:    "memory/2026-02-27.md",
			Content: "- canary: qzv91-lime-orbit",
		})
		require.NoError(t, err)
		assert.True(t, result.Created)
		assert.Equal(t, 26, result.BytesWritten)

		content, err := os.ReadFile(filepath.Join(workspace, "memory", "2026-02-27.md"))
		require.NoError(t, err)
		assert.Equal(t, "- canary: qzv91-lime-orbit", string(content))
		assert.True(t, manager.Status().IsDirty)
	})

	t.Run("update existing", func(t *testing.T) {
		result, err := MemoryWrite(ctx, manager, MemoryWriteParams{Path: "memory/2026-02-27.md", Content: "updated"})
		require.NoError(t, err)
		assert.False(t, result.Created)
	})

	t.Run("root memory file", func(t *testing.T) {
		_, err := MemoryWrite(ctx, manager, MemoryWriteParams{Path: "MEMORY.md", Content: "# Memory"})
		require.NoError(t, err)
	})

	t.Run("written note is searchable after sync", func(t *testing.T) {
		_, err := MemoryWrite(ctx, manager, MemoryWriteParams{Path: "memory/ideas.md", Content: "hydroponic basil experiment"})
		require.NoError(t, err)
		_, err = manager.Sync(ctx, SyncRequest{})
		require.NoError(t, err)

		result, err := MemorySearch(ctx, manager, MemorySearchParams{Query: "hydroponic basil"})
		require.NoError(t, err)
		require.NotEmpty(t, result.Results)
		assert.Equal(t, "memory/ideas.md", result.Results[0].Path)
	})

	t.Run("paths outside the document set", func(t *testing.T) {
		for _, path := range []string{"", "../escape.md", "/abs/x.md", "notes/x.md", "memory/x.txt", "README.md"} {
			_, err := MemoryWrite(ctx, manager, MemoryWriteParams{Path: path, Content: "x"})
			assert.Error(t, err, path)
		}
		_, err := os.Stat(filepath.Join(workspace, "README.md"))
		assert.True(t, os.IsNotExist(err))
	})
}

func TestMemoryDelete(t *testing.T) {
	manager, _, workspace := createTestManager(t)
	ctx := context.Background()
	writeFile(t, filepath.Join(workspace, "memory", "old.md"), "stale")

	result, err := MemoryDelete(ctx, manager, MemoryDeleteParams{Path: "memory/old.md"})
	require.NoError(t, err)
	assert.True(t, result.Deleted)
	_, err = os.Stat(filepath.Join(workspace, "memory", "old.md"))
	assert.True(t, os.IsNotExist(err))

	result, err = MemoryDelete(ctx, manager, MemoryDeleteParams{Path: "memory/old.md"})
	require.NoError(t, err)
	assert.False(t, result.Deleted)

	_, err = MemoryDelete(ctx, manager, MemoryDeleteParams{Path: "../escape.md"})
	assert.ErrorIs(t, err, ErrPathNotAllowed)
}

func TestMemoryList(t *testing.T) {
	manager, _, workspace := createTestManager(t)
	ctx := context.Background()

	result, err := MemoryList(ctx, manager, MemoryListParams{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Count)
	assert.NotNil(t, result.Files)

	writeFile(t, filepath.Join(workspace, "MEMORY.md"), "root")
	writeFile(t, filepath.Join(workspace, "memory", "2026-02-26.md"), "a")
	writeFile(t, filepath.Join(workspace, "memory", "2026-02-27.md"), "bb")
	writeFile(t, filepath.Join(workspace, "memory", "skip.txt"), "c")

	result, err = MemoryList(ctx, manager, MemoryListParams{})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Count)

	result, err = MemoryList(ctx, manager, MemoryListParams{Pattern: "memory/2026-02-2*.md"})
	require.NoError(t, err)
	require.Equal(t, 2, result.Count)
	assert.Equal(t, "memory/2026-02-26.md", result.Files[0].Path)
	assert.Equal(t, int64(2), result.Files[1].SizeBytes)

	_, err = MemoryList(ctx, manager, MemoryListParams{Pattern: "["})
	assert.Error(t, err)
}

func TestMemoryTools(t *testing.T) {
	manager, _, workspace := createTestManager(t)
	ctx := context.Background()
	tools := manager.Tools()

	var names []string
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{"memory_search", "memory_get", "memory_write", "memory_delete", "memory_list"}, names)

	t.Run("schema", func(t *testing.T) {
		search, err := ToolByName(tools, "memory_search")
		require.NoError(t, err)
		schema := search.JSONSchema()
		assert.Equal(t, "object", schema["type"])
		assert.Equal(t, []string{"query"}, schema["required"])
		props := schema["properties"].(map[string]interface{})
		assert.Contains(t, props, "max_results")
		assert.Contains(t, props, "min_score")

		_, err = ToolByName(tools, "memory_nope")
		assert.Error(t, err)
	})

	t.Run("validation rejects bad arguments", func(t *testing.T) {
		search, _ := ToolByName(tools, "memory_search")

		_, err := search.Invoke(ctx, map[string]interface{}{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "validation errors")

		_, err = search.Invoke(ctx, map[string]interface{}{"query": "x", "min_score": 2.0})
		assert.Error(t, err)

		_, err = search.Invoke(ctx, map[string]interface{}{"query": "x", "unexpected": true})
		assert.Error(t, err)

		_, err = search.Invoke(ctx, map[string]interface{}{"query": 42})
		assert.Error(t, err)
	})

	t.Run("write then get then search", func(t *testing.T) {
		write, _ := ToolByName(tools, "memory_write")
		_, err := write.Invoke(ctx, map[string]interface{}{
			"path":    "memory/2026-02-27.md",
			"content": "line one\n- canary: qzv91-lime-orbit\nline three",
		})
		require.NoError(t, err)
		assert.FileExists(t, filepath.Join(workspace, "memory", "2026-02-27.md"))

		get, _ := ToolByName(tools, "memory_get")
		out, err := get.Invoke(ctx, map[string]interface{}{"path": "memory/2026-02-27.md", "from": 2, "lines": 1})
		require.NoError(t, err)
		slice := out.(*FileSlice)
		assert.Equal(t, "- canary: qzv91-lime-orbit", slice.Text)

		search, _ := ToolByName(tools, "memory_search")
		out, err = search.Invoke(ctx, map[string]interface{}{"query": "qzv91-lime-orbit", "max_results": 3})
		require.NoError(t, err)
		res := out.(*MemorySearchResult)
		require.NotEmpty(t, res.Results)
		assert.Equal(t, "memory/2026-02-27.md", res.Results[0].Path)
		assert.Equal(t, 1, res.Results[0].StartLine)
		assert.Equal(t, 3, res.Results[0].EndLine)
	})

	t.Run("list and delete", func(t *testing.T) {
		list, _ := ToolByName(tools, "memory_list")
		out, err := list.Invoke(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, out.(*MemoryListResult).Count)

		del, _ := ToolByName(tools, "memory_delete")
		out, err = del.Invoke(ctx, map[string]interface{}{"path": "memory/2026-02-27.md"})
		require.NoError(t, err)
		assert.True(t, out.(*MemoryDeleteResult).Deleted)
	})
}
