package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type ScreenshotTool struct {
	desktop     Desktop
	defaultPath string
}

// NewScreenshotTool saves captures to dataDir/screen.png unless the caller
// names another path.
func NewScreenshotTool(d Desktop, dataDir string) *ScreenshotTool {
	if dataDir == "" {
		dataDir = "data"
	}
	return &ScreenshotTool{
		desktop:     d,
		defaultPath: filepath.Join(dataDir, "screen.png"),
	}
}

func (t *ScreenshotTool) Name() string { return "screenshot" }

func (t *ScreenshotTool) Description() string {
	return "Capture the desktop to a PNG file and return the saved path."
}

func (t *ScreenshotTool) Parameters() map[string]any {
	return schema(map[string]any{
		"path": prop("string", "Output image path. Defaults to "+t.defaultPath),
	})
}

func (t *ScreenshotTool) Execute(ctx context.Context, args map[string]any) *ToolResult {
	target, err := resolvePath(stringArg(args, "path", t.defaultPath))
	if err != nil {
		return ErrorResult(err.Error()).WithError(err)
	}
	if filepath.Ext(target) == "" {
		target += ".png"
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return ErrorResult(fmt.Sprintf("failed to create screenshot directory: %v", err)).WithError(err)
	}

	if err := t.desktop.Screenshot(ctx, target); err != nil {
		return ErrorResult(fmt.Sprintf("capture desktop screenshot failed: %v", strings.TrimSpace(err.Error()))).WithError(err)
	}

	info, err := os.Stat(target)
	if err != nil {
		return ErrorResult(fmt.Sprintf("screenshot not created: %v", err)).WithError(err)
	}
	if info.Size() == 0 {
		return ErrorResult("screenshot is empty")
	}
	return NewToolResult(target)
}
