package tools

import "time"

// Options selects which built-in tools RegisterBuiltins installs.
type Options struct {
	AllowShell bool
	// Headless leaves out every tool that needs a display.
	Headless bool
	// Desktop defaults to an XDoTool.
	Desktop Desktop
	DataDir string
	Timeout time.Duration
}

// NewBuiltinRegistry returns a registry holding the file, shell and, unless
// headless, desktop tools.
func NewBuiltinRegistry(opts Options) *ToolRegistry {
	r := NewToolRegistry(opts.Timeout)
	RegisterBuiltins(r, opts)
	return r
}

func RegisterBuiltins(r *ToolRegistry, opts Options) {
	r.Register(NewListFilesTool())
	r.Register(NewReadFileTool())
	r.Register(NewWriteFileTool())
	r.Register(NewExecTool(opts.AllowShell))

	if opts.Headless {
		return
	}
	d := opts.Desktop
	if d == nil {
		d = NewXDoTool()
	}
	r.Register(NewScreenshotTool(d, opts.DataDir))
	for _, t := range NewDesktopTools(d) {
		r.Register(t)
	}
}
