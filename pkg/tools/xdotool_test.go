package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedRunner struct {
	calls   []string
	outputs map[string]string
	fail    map[string]bool
}

func (s *scriptedRunner) run(_ context.Context, command string, args ...string) (string, error) {
	line := strings.TrimSpace(command + " " + strings.Join(args, " "))
	s.calls = append(s.calls, line)
	if s.fail[line] {
		return "", errors.New(line + ": exit status 1")
	}
	return s.outputs[line], nil
}

func newScriptedXDoTool(installed ...string) (*XDoTool, *scriptedRunner) {
	runner := &scriptedRunner{outputs: map[string]string{}, fail: map[string]bool{}}
	have := map[string]bool{}
	for _, name := range installed {
		have[name] = true
	}
	x := &XDoTool{
		lookPath: func(name string) (string, error) {
			if have[name] {
				return "/usr/bin/" + name, nil
			}
			return "", errors.New("not found")
		},
		runCommand: runner.run,
	}
	return x, runner
}

func TestXDoTool_NotInstalled(t *testing.T) {
	x, _ := newScriptedXDoTool()
	err := x.MouseMove(context.Background(), 1, 2)
	assert.ErrorIs(t, err, ErrDesktopUnavailable)

	_, err = x.Windows(context.Background())
	assert.ErrorIs(t, err, ErrDesktopUnavailable)
}

func TestXDoTool_PointerAndKeyboard(t *testing.T) {
	x, runner := newScriptedXDoTool("xdotool")
	ctx := context.Background()

	require.NoError(t, x.MouseClick(ctx, &Point{X: 3, Y: 4}, "right", 2))
	require.NoError(t, x.MouseDrag(ctx, 50, 60, "left"))
	require.NoError(t, x.Scroll(ctx, 2))
	require.NoError(t, x.Scroll(ctx, -1))
	require.NoError(t, x.Scroll(ctx, 0))
	require.NoError(t, x.TypeText(ctx, "hi there"))
	require.NoError(t, x.KeyPress(ctx, "Enter"))
	require.NoError(t, x.KeyPress(ctx, "f5"))
	require.NoError(t, x.Hotkey(ctx, []string{"ctrl", "shift", "esc"}))

	assert.Equal(t, []string{
		"xdotool mousemove 3 4",
		"xdotool click --repeat 2 3",
		"xdotool mousedown 1",
		"xdotool mousemove --sync 50 60",
		"xdotool mouseup 1",
		"xdotool click --repeat 2 4",
		"xdotool click --repeat 1 5",
		"xdotool type --delay 10 -- hi there",
		"xdotool key -- Return",
		"xdotool key -- F5",
		"xdotool key -- ctrl+shift+Escape",
	}, runner.calls)
}

func TestXDoTool_DragReleasesButtonOnMoveFailure(t *testing.T) {
	x, runner := newScriptedXDoTool("xdotool")
	runner.fail["xdotool mousemove --sync 1 1"] = true

	err := x.MouseDrag(context.Background(), 1, 1, "middle")
	assert.Error(t, err)
	assert.Equal(t, "xdotool mouseup 2", runner.calls[len(runner.calls)-1])
}

func TestXDoTool_ScreenSize(t *testing.T) {
	x, runner := newScriptedXDoTool("xdotool")
	runner.outputs["xdotool getdisplaygeometry"] = "2560 1440\n"

	size, err := x.ScreenSize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ScreenSize{Width: 2560, Height: 1440}, size)

	runner.outputs["xdotool getdisplaygeometry"] = "garbage"
	_, err = x.ScreenSize(context.Background())
	assert.Error(t, err)
}

func TestXDoTool_Windows(t *testing.T) {
	x, runner := newScriptedXDoTool("xdotool")
	runner.outputs["xdotool search --onlyvisible --name ."] = "101\n202\n"
	runner.outputs["xdotool getactivewindow"] = "202\n"
	runner.outputs["xdotool getwindowname 101"] = "Terminal\n"
	runner.outputs["xdotool getwindowname 202"] = "Editor\n"
	runner.outputs["xdotool getwindowgeometry --shell 101"] = "WINDOW=101\nX=10\nY=20\nWIDTH=640\nHEIGHT=480\nSCREEN=0\n"
	runner.outputs["xdotool getwindowgeometry --shell 202"] = "WINDOW=202\nX=0\nY=0\nWIDTH=1920\nHEIGHT=1080\nSCREEN=0\n"

	windows, err := x.Windows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Window{
		{ID: "101", Title: "Terminal", Left: 10, Top: 20, Width: 640, Height: 480},
		{ID: "202", Title: "Editor", Width: 1920, Height: 1080, IsActive: true},
	}, windows)

	active, err := x.ActiveWindow(context.Background())
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "Editor", active.Title)

	require.NoError(t, x.FocusWindow(context.Background(), "101"))
	assert.Equal(t, "xdotool windowactivate --sync 101", runner.calls[len(runner.calls)-1])
}

func TestXDoTool_NoWindows(t *testing.T) {
	x, runner := newScriptedXDoTool("xdotool")
	runner.fail["xdotool search --onlyvisible --name ."] = true
	runner.fail["xdotool getactivewindow"] = true

	windows, err := x.Windows(context.Background())
	require.NoError(t, err)
	assert.Empty(t, windows)

	active, err := x.ActiveWindow(context.Background())
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestXDoTool_ScreenshotFallsBack(t *testing.T) {
	x, runner := newScriptedXDoTool("grim", "import")
	runner.fail["grim /tmp/s.png"] = true

	require.NoError(t, x.Screenshot(context.Background(), "/tmp/s.png"))
	assert.Equal(t, []string{"grim /tmp/s.png", "import -window root /tmp/s.png"}, runner.calls)
}

func TestXDoTool_ScreenshotNoCommand(t *testing.T) {
	x, _ := newScriptedXDoTool()
	err := x.Screenshot(context.Background(), "/tmp/s.png")
	assert.ErrorIs(t, err, ErrDesktopUnavailable)
	assert.Contains(t, err.Error(), "tried: scrot, grim, import")
}
