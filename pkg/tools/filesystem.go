package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultListLimit    = 200
	defaultReadMaxBytes = 200_000
)

// resolvePath expands a leading "~" and makes path absolute.
func resolvePath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve path %q: %w", path, err)
	}
	return abs, nil
}

type ListFilesTool struct{}

func NewListFilesTool() *ListFilesTool { return &ListFilesTool{} }

func (t *ListFilesTool) Name() string { return "list_files" }

func (t *ListFilesTool) Description() string {
	return "Recursively list files under a directory whose names match a glob pattern."
}

func (t *ListFilesTool) Parameters() map[string]any {
	return schema(map[string]any{
		"path":    prop("string", "Directory to search. Defaults to the working directory."),
		"pattern": prop("string", "Glob matched against file names, e.g. *.go. Defaults to *."),
		"limit":   prop("integer", "Maximum number of paths returned. Defaults to 200."),
	})
}

func (t *ListFilesTool) ConcurrentSafe() bool { return true }

func (t *ListFilesTool) Execute(ctx context.Context, args map[string]any) *ToolResult {
	base, err := resolvePath(stringArg(args, "path", "."))
	if err != nil {
		return ErrorResult(err.Error()).WithError(err)
	}
	pattern := stringArg(args, "pattern", "*")
	if _, err := filepath.Match(pattern, ""); err != nil {
		return ErrorResult(fmt.Sprintf("bad pattern %q: %v", pattern, err)).WithError(err)
	}
	limit := intArg(args, "limit", defaultListLimit)
	if limit <= 0 {
		limit = defaultListLimit
	}

	results := []string{}
	if _, err := os.Stat(base); err != nil {
		return JSONResult(results)
	}

	errLimit := errors.New("limit reached")
	err = filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// unreadable subtrees are skipped
			if d != nil && d.IsDir() && path != base {
				return fs.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			return nil
		}
		if ok, _ := filepath.Match(pattern, d.Name()); !ok {
			return nil
		}
		results = append(results, path)
		if len(results) >= limit {
			return errLimit
		}
		return nil
	})
	if err != nil && !errors.Is(err, errLimit) {
		return ErrorResult(fmt.Sprintf("list %s: %v", base, err)).WithError(err)
	}
	return JSONResult(results)
}

type ReadFileTool struct{}

func NewReadFileTool() *ReadFileTool { return &ReadFileTool{} }

func (t *ReadFileTool) Name() string { return "read_file" }

func (t *ReadFileTool) Description() string {
	return "Read a text file. Returns an empty string when the file does not exist."
}

func (t *ReadFileTool) Parameters() map[string]any {
	return schema(map[string]any{
		"path":      prop("string", "Path to the file to read"),
		"max_bytes": prop("integer", "Maximum bytes to read. Defaults to 200000."),
	}, "path")
}

func (t *ReadFileTool) ConcurrentSafe() bool { return true }

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]any) *ToolResult {
	path, err := resolvePath(stringArg(args, "path", ""))
	if err != nil {
		return ErrorResult(err.Error()).WithError(err)
	}
	maxBytes := intArg(args, "max_bytes", defaultReadMaxBytes)
	if maxBytes <= 0 {
		maxBytes = defaultReadMaxBytes
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewToolResult("")
		}
		return ErrorResult(fmt.Sprintf("failed to read file: %v", err)).WithError(err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, int64(maxBytes)))
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to read file: %v", err)).WithError(err)
	}
	return NewToolResult(strings.ToValidUTF8(string(data), ""))
}

type WriteFileTool struct{}

func NewWriteFileTool() *WriteFileTool { return &WriteFileTool{} }

func (t *WriteFileTool) Name() string { return "write_file" }

func (t *WriteFileTool) Description() string {
	return "Write content to a file, creating parent directories as needed. Overwrites existing files."
}

func (t *WriteFileTool) Parameters() map[string]any {
	return schema(map[string]any{
		"path":    prop("string", "Path to the file to write"),
		"content": prop("string", "Content to write"),
	}, "path", "content")
}

func (t *WriteFileTool) Execute(ctx context.Context, args map[string]any) *ToolResult {
	path, err := resolvePath(stringArg(args, "path", ""))
	if err != nil {
		return ErrorResult(err.Error()).WithError(err)
	}
	content, _ := args["content"].(string)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ErrorResult(fmt.Sprintf("failed to create directory: %v", err)).WithError(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return ErrorResult(fmt.Sprintf("failed to write file: %v", err)).WithError(err)
	}
	return OKResult()
}
