// PicoJarvis - personal automation assistant
// License: MIT
//
// Copyright (c) 2026 PicoClaw contributors

// Package router turns raw command strings into control actions on the
// session or into prompts for the selected backend.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/sipeed/picojarvis/pkg/agent"
	"github.com/sipeed/picojarvis/pkg/config"
	"github.com/sipeed/picojarvis/pkg/logger"
	"github.com/sipeed/picojarvis/pkg/packs"
	"github.com/sipeed/picojarvis/pkg/providers"
	"github.com/sipeed/picojarvis/pkg/state"
)

// Event log types written by the router.
const (
	EventCommand  = "command"
	EventReply    = "reply"
	EventFallback = "fallback"
)

const (
	modeUsage = "usage: /mode <name>"
	packUsage = "pack commands: /pack list | /pack add <name> | /pack remove <name> | /pack show <name> | /pack clear"
)

// Snapshot is the session view returned by info and the HTTP status route.
type Snapshot struct {
	Mode           string   `json:"mode"`
	ActivePacks    []string `json:"active_packs"`
	AvailablePacks []string `json:"available_packs"`
	UseOpenAI      bool     `json:"use_openai_like_backend"`
}

// Router is safe for concurrent use; all mutable state lives in the
// session store.
type Router struct {
	cfg      *config.Config
	session  *state.Session
	catalog  *packs.Catalog
	builder  *agent.Builder
	commands *Registry
}

func New(cfg *config.Config, session *state.Session, catalog *packs.Catalog, builder *agent.Builder) *Router {
	r := &Router{
		cfg:     cfg,
		session: session,
		catalog: catalog,
		builder: builder,
	}
	r.commands = NewRegistry([]Definition{
		{
			Name:        "openai",
			Description: "Prefer the hosted agentic backend",
			Usage:       "/openai on|off",
			Handler:     r.handleOpenAI,
		},
		{
			Name:        "mode",
			Description: "Switch the prompt preamble",
			Usage:       modeUsage,
			Handler:     r.handleMode,
		},
		{
			Name:        "pack",
			Description: "Manage active knowledge packs",
			Usage:       packUsage,
			Handler:     r.handlePack,
		},
	})
	return r
}

func (r *Router) Commands() *Registry {
	return r.commands
}

// Handle processes one command and always returns reply text. Failures are
// reported as "error: ..." replies.
func (r *Router) Handle(ctx context.Context, command string) string {
	id := r.begin(ctx, command)

	reply, err := r.dispatch(ctx, command)
	if err != nil {
		logger.ErrorCF("router", "Command failed", map[string]any{
			"id":    id,
			"error": err.Error(),
		})
		reply = "error: " + err.Error()
	}
	r.finish(ctx, id, reply)
	return reply
}

// IsControl reports whether command is answered by the router itself rather
// than by a backend.
func (r *Router) IsControl(command string) bool {
	switch strings.ToLower(strings.TrimSpace(command)) {
	case "ping", "info":
		return true
	}
	name, _, ok := parseCommand(command)
	if !ok {
		return false
	}
	_, found := r.commands.Lookup(name)
	return found
}

// Stream answers command through onChunk. Prompts for the local generate
// backend are forwarded chunk by chunk; everything else arrives as one chunk.
func (r *Router) Stream(ctx context.Context, command string, onChunk func(string) error) error {
	if r.IsControl(command) {
		return onChunk(r.Handle(ctx, command))
	}
	useOpenAI, err := r.session.OpenAIEnabled(ctx)
	if err != nil {
		return onChunk(r.Handle(ctx, command))
	}
	profile := agent.Resolve(r.cfg, useOpenAI)
	if profile.Agentic() {
		return onChunk(r.Handle(ctx, command))
	}

	id := r.begin(ctx, command)
	req, err := r.Compose(ctx, strings.TrimSpace(command))
	if err != nil {
		reply := "error: " + err.Error()
		r.finish(ctx, id, reply)
		return onChunk(reply)
	}

	var out strings.Builder
	gen := agent.NewGenerateBackend(r.builder.Ollama, profile.Model, profile.Timeout)
	err = gen.Stream(ctx, req.Prompt, r.cfg.InteractiveTimeout, func(chunk string) error {
		out.WriteString(chunk)
		return onChunk(chunk)
	})
	if err != nil {
		msg := "error: " + err.Error()
		logger.WarnCF("router", "Streaming generation failed", map[string]any{
			"id":    id,
			"error": err.Error(),
		})
		if out.Len() > 0 {
			msg = "\n" + msg
		}
		out.WriteString(msg)
		r.finish(ctx, id, out.String())
		return onChunk(msg)
	}
	r.finish(ctx, id, out.String())
	return nil
}

// Snapshot reads the current session view.
func (r *Router) Snapshot(ctx context.Context) (*Snapshot, error) {
	mode, err := r.session.Mode(ctx)
	if err != nil {
		return nil, err
	}
	active, err := r.session.ActivePacks(ctx)
	if err != nil {
		return nil, err
	}
	useOpenAI, err := r.session.OpenAIEnabled(ctx)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		Mode:           mode,
		ActivePacks:    active,
		AvailablePacks: r.catalog.Names(),
		UseOpenAI:      useOpenAI,
	}, nil
}

// Compose builds the backend prompt: active pack context, then the mode
// preamble, then the raw text.
func (r *Router) Compose(ctx context.Context, raw string) (agent.Request, error) {
	mode, err := r.session.Mode(ctx)
	if err != nil {
		return agent.Request{}, err
	}
	active, err := r.session.ActivePacks(ctx)
	if err != nil {
		return agent.Request{}, err
	}
	return agent.Request{
		Prompt:      r.catalog.Context(active) + r.catalog.Preamble(mode) + raw,
		Mode:        mode,
		ActivePacks: active,
	}, nil
}

func (r *Router) begin(ctx context.Context, command string) string {
	id := uuid.NewString()
	logger.DebugCF("router", "Command received", map[string]any{
		"id":      id,
		"command": preview(command, 120),
	})
	// A failed append does not block the command; branches that need the
	// store report the failure themselves.
	if err := r.session.Store().AppendEvent(ctx, EventCommand, command); err != nil {
		logger.WarnCF("router", "Failed to record command", map[string]any{
			"id":    id,
			"error": err.Error(),
		})
	}
	return id
}

func (r *Router) finish(ctx context.Context, id, reply string) {
	if err := r.session.Store().AppendEvent(ctx, EventReply, reply); err != nil {
		logger.WarnCF("router", "Failed to record reply", map[string]any{
			"id":    id,
			"error": err.Error(),
		})
	}
	logger.DebugCF("router", "Command answered", map[string]any{
		"id":    id,
		"reply": preview(reply, 120),
	})
}

func (r *Router) dispatch(ctx context.Context, command string) (string, error) {
	trimmed := strings.TrimSpace(command)
	switch strings.ToLower(trimmed) {
	case "ping":
		return "ok", nil
	case "info":
		return r.info(ctx)
	}
	if reply, matched, err := r.commands.dispatch(ctx, trimmed); matched {
		return reply, err
	}
	return r.prompt(ctx, trimmed)
}

func (r *Router) info(ctx context.Context) (string, error) {
	snap, err := r.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("encode info: %w", err)
	}
	return string(data), nil
}

func (r *Router) handleOpenAI(ctx context.Context, args string) (string, error) {
	enabled := false
	switch strings.ToLower(args) {
	case "on", "true", "1":
		enabled = true
	}
	if err := r.session.SetOpenAIEnabled(ctx, enabled); err != nil {
		return "", err
	}
	if enabled {
		return "openai enabled", nil
	}
	return "openai disabled", nil
}

func (r *Router) handleMode(ctx context.Context, args string) (string, error) {
	if args == "" {
		return modeUsage, nil
	}
	if err := r.session.SetMode(ctx, args); err != nil {
		return "", err
	}
	return "mode set: " + args, nil
}

func (r *Router) handlePack(ctx context.Context, args string) (string, error) {
	sub, name, _ := strings.Cut(args, " ")
	name = strings.TrimSpace(name)

	switch {
	case sub == "list" && name == "":
		return "packs: " + strings.Join(r.catalog.Names(), ", "), nil
	case sub == "clear" && name == "":
		if err := r.session.ClearPacks(ctx); err != nil {
			return "", err
		}
		return "packs cleared", nil
	case sub == "add" && name != "":
		if !r.catalog.Has(name) {
			return "unknown pack: " + name, nil
		}
		if _, err := r.session.AddPack(ctx, name); err != nil {
			return "", err
		}
		return "pack added: " + name, nil
	case sub == "remove" && name != "":
		if _, err := r.session.RemovePack(ctx, name); err != nil {
			return "", err
		}
		return "pack removed: " + name, nil
	case sub == "show" && name != "":
		text, ok := r.catalog.Get(name)
		if !ok || text == "" {
			return "unknown pack: " + name, nil
		}
		return text, nil
	}
	return packUsage, nil
}

func (r *Router) prompt(ctx context.Context, raw string) (string, error) {
	req, err := r.Compose(ctx, raw)
	if err != nil {
		return "", err
	}
	useOpenAI, err := r.session.OpenAIEnabled(ctx)
	if err != nil {
		return "", err
	}
	reply, err := r.respond(ctx, agent.Resolve(r.cfg, useOpenAI), req)
	if err != nil {
		return "", err
	}
	return reply.Text, nil
}

// respond calls the backend for profile. An agentic backend failing with a
// quota class error is retried once on a small local model.
func (r *Router) respond(ctx context.Context, profile agent.Profile, req agent.Request) (*agent.Reply, error) {
	reply, err := r.builder.Build(profile).Respond(ctx, req)
	if err == nil {
		if reply.Text == "" {
			reply.Text = "ok"
		}
		return reply, nil
	}
	if !profile.Agentic() || !providers.IsQuotaError(err) {
		return nil, err
	}

	model, ferr := agent.FallbackModel(ctx, r.builder.Ollama)
	if ferr != nil {
		logger.WarnCF("router", "No local fallback model", map[string]any{
			"error": ferr.Error(),
		})
		return nil, err
	}
	logger.WarnCF("router", "Backend quota exhausted, retrying on local model", map[string]any{
		"backend": string(profile.Kind),
		"model":   model,
		"error":   err.Error(),
	})
	if aerr := r.session.Store().AppendEvent(ctx, EventFallback, model); aerr != nil {
		logger.WarnCF("router", "Failed to record fallback", map[string]any{"error": aerr.Error()})
	}

	reply, err = r.builder.Build(agent.SelfHostedProfile(r.cfg, model)).Respond(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fallback %s: %w", model, err)
	}
	if reply.Text == "" {
		reply.Text = "ok"
	}
	reply.Text += " (fallback:" + model + ")"
	reply.UsedFallback = true
	return reply, nil
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
