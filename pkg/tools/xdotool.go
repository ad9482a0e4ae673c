package tools

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

var ErrDesktopUnavailable = errors.New("desktop automation unavailable")

// XDoTool implements Desktop for X11 sessions on top of the xdotool
// binary. Screens are captured with the first working of scrot, grim or
// ImageMagick import.
type XDoTool struct {
	lookPath   func(string) (string, error)
	runCommand func(ctx context.Context, command string, args ...string) (string, error)
}

func NewXDoTool() *XDoTool {
	return &XDoTool{
		lookPath: exec.LookPath,
		runCommand: func(ctx context.Context, command string, args ...string) (string, error) {
			cmd := exec.CommandContext(ctx, command, args...)
			output, err := cmd.CombinedOutput()
			if err != nil {
				return "", fmt.Errorf("%s: %w: %s", command, err, strings.TrimSpace(string(output)))
			}
			return string(output), nil
		},
	}
}

func (x *XDoTool) xdo(ctx context.Context, args ...string) (string, error) {
	if _, err := x.lookPath("xdotool"); err != nil {
		return "", fmt.Errorf("%w: xdotool not installed", ErrDesktopUnavailable)
	}
	return x.runCommand(ctx, "xdotool", args...)
}

var buttonCodes = map[string]string{"left": "1", "middle": "2", "right": "3"}

func buttonCode(button string) string {
	if code, ok := buttonCodes[button]; ok {
		return code
	}
	return "1"
}

func (x *XDoTool) ScreenSize(ctx context.Context) (ScreenSize, error) {
	out, err := x.xdo(ctx, "getdisplaygeometry")
	if err != nil {
		return ScreenSize{}, err
	}
	fields := strings.Fields(out)
	if len(fields) != 2 {
		return ScreenSize{}, fmt.Errorf("unexpected display geometry %q", strings.TrimSpace(out))
	}
	w, errW := strconv.Atoi(fields[0])
	h, errH := strconv.Atoi(fields[1])
	if errW != nil || errH != nil {
		return ScreenSize{}, fmt.Errorf("unexpected display geometry %q", strings.TrimSpace(out))
	}
	return ScreenSize{Width: w, Height: h}, nil
}

func (x *XDoTool) MouseMove(ctx context.Context, px, py int) error {
	_, err := x.xdo(ctx, "mousemove", strconv.Itoa(px), strconv.Itoa(py))
	return err
}

func (x *XDoTool) MouseClick(ctx context.Context, at *Point, button string, clicks int) error {
	if at != nil {
		if err := x.MouseMove(ctx, at.X, at.Y); err != nil {
			return err
		}
	}
	if clicks < 1 {
		clicks = 1
	}
	_, err := x.xdo(ctx, "click", "--repeat", strconv.Itoa(clicks), buttonCode(button))
	return err
}

func (x *XDoTool) MouseDrag(ctx context.Context, px, py int, button string) error {
	code := buttonCode(button)
	if _, err := x.xdo(ctx, "mousedown", code); err != nil {
		return err
	}
	_, moveErr := x.xdo(ctx, "mousemove", "--sync", strconv.Itoa(px), strconv.Itoa(py))
	// release even when the move failed so the button is not left held
	_, upErr := x.xdo(ctx, "mouseup", code)
	return errors.Join(moveErr, upErr)
}

func (x *XDoTool) Scroll(ctx context.Context, amount int) error {
	if amount == 0 {
		return nil
	}
	code := "4"
	if amount < 0 {
		code = "5"
		amount = -amount
	}
	_, err := x.xdo(ctx, "click", "--repeat", strconv.Itoa(amount), code)
	return err
}

func (x *XDoTool) TypeText(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	_, err := x.xdo(ctx, "type", "--delay", "10", "--", text)
	return err
}

// keyNames maps common key spellings to X keysyms.
var keyNames = map[string]string{
	"enter":     "Return",
	"return":    "Return",
	"esc":       "Escape",
	"escape":    "Escape",
	"tab":       "Tab",
	"space":     "space",
	"backspace": "BackSpace",
	"delete":    "Delete",
	"del":       "Delete",
	"insert":    "Insert",
	"home":      "Home",
	"end":       "End",
	"pageup":    "Prior",
	"pagedown":  "Next",
	"up":        "Up",
	"down":      "Down",
	"left":      "Left",
	"right":     "Right",
	"ctrl":      "ctrl",
	"control":   "ctrl",
	"alt":       "alt",
	"shift":     "shift",
	"win":       "super",
	"super":     "super",
	"cmd":       "super",
	"capslock":  "Caps_Lock",
	"print":     "Print",
}

func keysym(key string) string {
	lower := strings.ToLower(strings.TrimSpace(key))
	if sym, ok := keyNames[lower]; ok {
		return sym
	}
	if len(lower) >= 2 && lower[0] == 'f' {
		if n, err := strconv.Atoi(lower[1:]); err == nil && n >= 1 && n <= 24 {
			return "F" + lower[1:]
		}
	}
	return strings.TrimSpace(key)
}

func (x *XDoTool) KeyPress(ctx context.Context, key string) error {
	_, err := x.xdo(ctx, "key", "--", keysym(key))
	return err
}

func (x *XDoTool) Hotkey(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return errors.New("no keys")
	}
	syms := make([]string, 0, len(keys))
	for _, k := range keys {
		syms = append(syms, keysym(k))
	}
	_, err := x.xdo(ctx, "key", "--", strings.Join(syms, "+"))
	return err
}

func (x *XDoTool) Windows(ctx context.Context) ([]Window, error) {
	out, err := x.xdo(ctx, "search", "--onlyvisible", "--name", ".")
	if err != nil {
		if errors.Is(err, ErrDesktopUnavailable) {
			return nil, err
		}
		// xdotool exits non-zero when nothing matches
		return []Window{}, nil
	}
	active, _ := x.activeID(ctx)

	var windows []Window
	for _, id := range strings.Fields(out) {
		w, err := x.describe(ctx, id)
		if err != nil {
			continue
		}
		w.IsActive = id == active
		windows = append(windows, *w)
	}
	return windows, nil
}

func (x *XDoTool) activeID(ctx context.Context) (string, error) {
	out, err := x.xdo(ctx, "getactivewindow")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (x *XDoTool) ActiveWindow(ctx context.Context) (*Window, error) {
	id, err := x.activeID(ctx)
	if err != nil {
		if errors.Is(err, ErrDesktopUnavailable) {
			return nil, err
		}
		return nil, nil
	}
	if id == "" {
		return nil, nil
	}
	w, err := x.describe(ctx, id)
	if err != nil {
		return nil, err
	}
	w.IsActive = true
	return w, nil
}

func (x *XDoTool) describe(ctx context.Context, id string) (*Window, error) {
	title, err := x.xdo(ctx, "getwindowname", id)
	if err != nil {
		return nil, err
	}
	geometry, err := x.xdo(ctx, "getwindowgeometry", "--shell", id)
	if err != nil {
		return nil, err
	}
	w := &Window{ID: id, Title: strings.TrimSpace(title)}
	scanner := bufio.NewScanner(strings.NewReader(geometry))
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			continue
		}
		switch key {
		case "X":
			w.Left = n
		case "Y":
			w.Top = n
		case "WIDTH":
			w.Width = n
		case "HEIGHT":
			w.Height = n
		}
	}
	return w, nil
}

func (x *XDoTool) FocusWindow(ctx context.Context, id string) error {
	_, err := x.xdo(ctx, "windowactivate", "--sync", id)
	return err
}

func (x *XDoTool) Screenshot(ctx context.Context, path string) error {
	type command struct {
		name string
		args []string
	}

	candidates := []command{
		{name: "scrot", args: []string{"--overwrite", path}},
		{name: "grim", args: []string{path}},
		{name: "import", args: []string{"-window", "root", path}},
	}

	var available []command
	for _, candidate := range candidates {
		if _, err := x.lookPath(candidate.name); err == nil {
			available = append(available, candidate)
		}
	}
	if len(available) == 0 {
		return fmt.Errorf("%w: no desktop screenshot command found (tried: scrot, grim, import)", ErrDesktopUnavailable)
	}

	var lastErr error
	for _, cmd := range available {
		if _, err := x.runCommand(ctx, cmd.name, cmd.args...); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return lastErr
}
