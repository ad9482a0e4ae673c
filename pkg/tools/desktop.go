package tools

import (
	"context"
	"fmt"
	"strings"
)

// Point is a screen coordinate in pixels.
type Point struct {
	X int
	Y int
}

type ScreenSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type Window struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Left     int    `json:"left"`
	Top      int    `json:"top"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	IsActive bool   `json:"is_active"`
}

// Desktop is the pointer, keyboard, window and screen capability the
// desktop tools drive. Implementations are not expected to serialize
// concurrent callers.
type Desktop interface {
	ScreenSize(ctx context.Context) (ScreenSize, error)
	MouseMove(ctx context.Context, x, y int) error
	// MouseClick clicks at the current pointer position when at is nil.
	MouseClick(ctx context.Context, at *Point, button string, clicks int) error
	MouseDrag(ctx context.Context, x, y int, button string) error
	// Scroll moves the wheel up for positive amounts and down for negative.
	Scroll(ctx context.Context, amount int) error
	TypeText(ctx context.Context, text string) error
	KeyPress(ctx context.Context, key string) error
	Hotkey(ctx context.Context, keys []string) error
	Windows(ctx context.Context) ([]Window, error)
	// ActiveWindow returns nil when no window has focus.
	ActiveWindow(ctx context.Context) (*Window, error)
	FocusWindow(ctx context.Context, id string) error
	Screenshot(ctx context.Context, path string) error
}

var validButtons = map[string]bool{"left": true, "middle": true, "right": true}

// desktopTool adapts one Desktop operation to the Tool interface.
type desktopTool struct {
	name        string
	description string
	params      map[string]any
	desktop     Desktop
	run         func(ctx context.Context, d Desktop, args map[string]any) *ToolResult
}

func (t *desktopTool) Name() string               { return t.name }
func (t *desktopTool) Description() string        { return t.description }
func (t *desktopTool) Parameters() map[string]any { return t.params }

func (t *desktopTool) Execute(ctx context.Context, args map[string]any) *ToolResult {
	return t.run(ctx, t.desktop, args)
}

func desktopErr(op string, err error) *ToolResult {
	return ErrorResult(fmt.Sprintf("%s: %v", op, err)).WithError(err)
}

func buttonArg(args map[string]any) (string, *ToolResult) {
	button := strings.ToLower(stringArg(args, "button", "left"))
	if !validButtons[button] {
		return "", ErrorResult(fmt.Sprintf("unsupported button %q (use left, middle or right)", button))
	}
	return button, nil
}

// NewDesktopTools returns the pointer, keyboard and window tools bound to d.
func NewDesktopTools(d Desktop) []Tool {
	coords := func(desc string) map[string]any {
		return map[string]any{
			"x": prop("integer", desc+" x coordinate in pixels"),
			"y": prop("integer", desc+" y coordinate in pixels"),
		}
	}
	withButton := func(props map[string]any) map[string]any {
		props["button"] = prop("string", "Mouse button: left, middle or right. Defaults to left.")
		return props
	}

	clickProps := withButton(coords("Optional click"))
	clickProps["clicks"] = prop("integer", "Number of clicks. Defaults to 1.")

	return []Tool{
		&desktopTool{
			name:        "get_screen_size",
			description: "Return the screen size as {width, height}.",
			params:      schema(map[string]any{}),
			desktop:     d,
			run: func(ctx context.Context, d Desktop, _ map[string]any) *ToolResult {
				size, err := d.ScreenSize(ctx)
				if err != nil {
					return desktopErr("screen size", err)
				}
				return JSONResult(size)
			},
		},
		&desktopTool{
			name:        "mouse_move",
			description: "Move the mouse pointer to absolute screen coordinates.",
			params:      schema(coords("Target"), "x", "y"),
			desktop:     d,
			run: func(ctx context.Context, d Desktop, args map[string]any) *ToolResult {
				if err := d.MouseMove(ctx, intArg(args, "x", 0), intArg(args, "y", 0)); err != nil {
					return desktopErr("mouse move", err)
				}
				return OKResult()
			},
		},
		&desktopTool{
			name:        "mouse_click",
			description: "Click a mouse button, at x/y when both are given or at the current pointer position.",
			params:      schema(clickProps),
			desktop:     d,
			run: func(ctx context.Context, d Desktop, args map[string]any) *ToolResult {
				button, bad := buttonArg(args)
				if bad != nil {
					return bad
				}
				clicks := intArg(args, "clicks", 1)
				if clicks < 1 {
					clicks = 1
				}
				var at *Point
				x, hasX := optionalInt(args, "x")
				y, hasY := optionalInt(args, "y")
				if hasX != hasY {
					return ErrorResult("x and y must be given together")
				}
				if hasX {
					at = &Point{X: x, Y: y}
				}
				if err := d.MouseClick(ctx, at, button, clicks); err != nil {
					return desktopErr("mouse click", err)
				}
				return OKResult()
			},
		},
		&desktopTool{
			name:        "mouse_drag",
			description: "Drag from the current pointer position to x/y with a button held.",
			params:      schema(withButton(coords("Drop")), "x", "y"),
			desktop:     d,
			run: func(ctx context.Context, d Desktop, args map[string]any) *ToolResult {
				button, bad := buttonArg(args)
				if bad != nil {
					return bad
				}
				if err := d.MouseDrag(ctx, intArg(args, "x", 0), intArg(args, "y", 0), button); err != nil {
					return desktopErr("mouse drag", err)
				}
				return OKResult()
			},
		},
		&desktopTool{
			name:        "scroll",
			description: "Scroll the mouse wheel. Positive amounts scroll up, negative down.",
			params: schema(map[string]any{
				"amount": prop("integer", "Wheel steps"),
			}, "amount"),
			desktop: d,
			run: func(ctx context.Context, d Desktop, args map[string]any) *ToolResult {
				if err := d.Scroll(ctx, intArg(args, "amount", 0)); err != nil {
					return desktopErr("scroll", err)
				}
				return OKResult()
			},
		},
		&desktopTool{
			name:        "type_text",
			description: "Type text with the keyboard into the focused window.",
			params: schema(map[string]any{
				"text": prop("string", "Text to type"),
			}, "text"),
			desktop: d,
			run: func(ctx context.Context, d Desktop, args map[string]any) *ToolResult {
				text, _ := args["text"].(string)
				if err := d.TypeText(ctx, text); err != nil {
					return desktopErr("type text", err)
				}
				return OKResult()
			},
		},
		&desktopTool{
			name:        "key_press",
			description: "Press and release a single key, e.g. enter, esc, tab, f5.",
			params: schema(map[string]any{
				"key": prop("string", "Key name"),
			}, "key"),
			desktop: d,
			run: func(ctx context.Context, d Desktop, args map[string]any) *ToolResult {
				key := stringArg(args, "key", "")
				if key == "" {
					return ErrorResult("empty key")
				}
				if err := d.KeyPress(ctx, key); err != nil {
					return desktopErr("key press", err)
				}
				return OKResult()
			},
		},
		&desktopTool{
			name:        "hotkey",
			description: "Press a key combination, e.g. [\"ctrl\", \"c\"].",
			params: schema(map[string]any{
				"keys": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Keys pressed together, modifiers first",
				},
			}, "keys"),
			desktop: d,
			run: func(ctx context.Context, d Desktop, args map[string]any) *ToolResult {
				keys := stringsArg(args, "keys")
				if len(keys) == 0 {
					return ErrorResult("no keys")
				}
				if err := d.Hotkey(ctx, keys); err != nil {
					return desktopErr("hotkey", err)
				}
				return OKResult()
			},
		},
		&desktopTool{
			name:        "list_windows",
			description: "List visible windows with their titles and geometry.",
			params:      schema(map[string]any{}),
			desktop:     d,
			run: func(ctx context.Context, d Desktop, _ map[string]any) *ToolResult {
				windows, err := d.Windows(ctx)
				if err != nil {
					return desktopErr("list windows", err)
				}
				titled := make([]Window, 0, len(windows))
				for _, w := range windows {
					if w.Title != "" {
						titled = append(titled, w)
					}
				}
				return JSONResult(titled)
			},
		},
		&desktopTool{
			name:        "get_active_window",
			description: "Describe the focused window, or {} when none has focus.",
			params:      schema(map[string]any{}),
			desktop:     d,
			run: func(ctx context.Context, d Desktop, _ map[string]any) *ToolResult {
				w, err := d.ActiveWindow(ctx)
				if err != nil {
					return desktopErr("active window", err)
				}
				if w == nil {
					return NewToolResult("{}")
				}
				return JSONResult(w)
			},
		},
		&desktopTool{
			name:        "focus_window",
			description: "Focus the first window whose title contains the given text (case-insensitive).",
			params: schema(map[string]any{
				"title_contains": prop("string", "Part of the window title"),
			}, "title_contains"),
			desktop: d,
			run:     focusWindow,
		},
	}
}

func focusWindow(ctx context.Context, d Desktop, args map[string]any) *ToolResult {
	needle := strings.ToLower(stringArg(args, "title_contains", ""))
	if needle == "" {
		return ErrorResult("empty title")
	}
	windows, err := d.Windows(ctx)
	if err != nil {
		return desktopErr("list windows", err)
	}
	for _, w := range windows {
		if w.Title != "" && strings.Contains(strings.ToLower(w.Title), needle) {
			if err := d.FocusWindow(ctx, w.ID); err != nil {
				return desktopErr("focus window", err)
			}
			return OKResult()
		}
	}
	return ErrorResult("window not found")
}
