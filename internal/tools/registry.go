package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/svaddadi/roomagent/internal/backend"
)

// ErrNotFound is returned when a dispatched tool name is not registered.
// The reasoning stage is constrained to the registry menu, so hitting this
// is a programming error rather than a routine classification outcome.
var ErrNotFound = errors.New("tools: tool not found")

// InvalidArgumentsError reports a tool call whose required parameters were
// not all supplied. No network call is made in that case.
type InvalidArgumentsError struct {
	Tool    string
	Missing []string
}

func (e *InvalidArgumentsError) Error() string {
	return fmt.Sprintf("tools: invalid arguments for %s: missing %s", e.Tool, strings.Join(e.Missing, ", "))
}

// CallContext carries per-invocation context not chosen by the model.
type CallContext struct {
	// RefCode correlates the call with backend logs. Generated when empty.
	RefCode string
	// AuthToken authorizes client-data lookups; supplied per call, never
	// process-wide.
	AuthToken string
}

// Outcome is the result variant handed back to the reasoning stage:
// either a payload (structured JSON, or raw text wrapped by the backend
// client) or a failure description. Failures are conversational inputs for
// the model, never user-facing text.
type Outcome struct {
	RefCode string
	Payload map[string]any
	Failure string
}

func (o Outcome) Failed() bool { return o.Failure != "" }

// Report summarizes a completed dispatch for auditing and metrics.
type Report struct {
	RefCode string
	Tool    string
	Outcome string // ok|failure
	Elapsed time.Duration
	At      time.Time
}

// Registry holds the fixed tool set. Register is called during startup;
// afterwards the registry is read-only and safe for concurrent dispatch.
type Registry struct {
	mu        sync.RWMutex
	client    *backend.Client
	bearer    string
	byName    map[string]Descriptor
	observers []func(Report)
}

func NewRegistry(client *backend.Client, bearerToken string) *Registry {
	return &Registry{
		client: client,
		bearer: bearerToken,
		byName: make(map[string]Descriptor),
	}
}

// Observe adds a hook invoked after every dispatch that reached the network.
func (r *Registry) Observe(fn func(Report)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

func (r *Registry) Register(d Descriptor) error {
	if strings.TrimSpace(d.Name) == "" {
		return errors.New("tools: descriptor name must not be empty")
	}
	if strings.TrimSpace(d.Endpoint) == "" {
		return fmt.Errorf("tools: descriptor %s has no endpoint", d.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[d.Name]; exists {
		return fmt.Errorf("tools: duplicate tool %s", d.Name)
	}
	r.byName[d.Name] = d
	return nil
}

func (r *Registry) Resolve(name string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byName[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return d, nil
}

// List returns descriptors in stable name order.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.byName))
	for _, d := range r.byName {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Dispatch validates the call, shapes the endpoint payload and invokes the
// backend. Unknown names and missing required parameters fail before any
// network I/O. Backend failures come back as a failure Outcome so the
// session keeps running.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any, cc CallContext) (Outcome, error) {
	d, err := r.Resolve(name)
	if err != nil {
		return Outcome{}, err
	}

	var missing []string
	for _, p := range d.Params {
		if !p.Required {
			continue
		}
		v, ok := args[p.Name]
		if !ok {
			missing = append(missing, p.Name)
			continue
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			missing = append(missing, p.Name)
		}
	}
	if len(missing) > 0 {
		return Outcome{}, &InvalidArgumentsError{Tool: name, Missing: missing}
	}

	refCode := strings.TrimSpace(cc.RefCode)
	if v, ok := args["app_ref_code"].(string); ok && strings.TrimSpace(v) != "" {
		refCode = strings.TrimSpace(v)
	}
	if refCode == "" {
		refCode = newRefCode()
	}

	payload, err := r.buildPayload(d, args, cc, refCode)
	if err != nil {
		return Outcome{}, err
	}

	started := time.Now()
	result, callErr := r.client.Call(ctx, d.Endpoint, "Bearer "+r.bearer, payload)
	elapsed := time.Since(started)

	out := Outcome{RefCode: refCode}
	status := "ok"
	if callErr != nil {
		out.Failure = callErr.Error()
		status = "failure"
	} else {
		out.Payload = result
	}

	r.notify(Report{
		RefCode: refCode,
		Tool:    name,
		Outcome: status,
		Elapsed: elapsed,
		At:      started,
	})
	return out, nil
}

func (r *Registry) buildPayload(d Descriptor, args map[string]any, cc CallContext, refCode string) (map[string]any, error) {
	prompt, _ := args["prompt"].(string)
	appPrompt := prompt
	if v, ok := args["app_prompt"].(string); ok && strings.TrimSpace(v) != "" {
		appPrompt = v
	}

	payload := map[string]any{
		"app_ref_code": refCode,
		"prompt":       prompt,
		"app_prompt":   appPrompt,
	}

	switch d.Kind {
	case KindGeneralLookup:
	case KindClientData:
		if strings.TrimSpace(cc.AuthToken) == "" {
			return nil, &InvalidArgumentsError{Tool: d.Name, Missing: []string{"auth_token"}}
		}
		payload["auth_token"] = cc.AuthToken
	default:
		return nil, fmt.Errorf("tools: unsupported kind %q for %s", d.Kind, d.Name)
	}
	return payload, nil
}

func (r *Registry) notify(report Report) {
	r.mu.RLock()
	observers := r.observers
	r.mu.RUnlock()
	for _, fn := range observers {
		fn(report)
	}
}

// newRefCode generates a short opaque reference for log correlation.
// It only needs to be unique enough to match a call to its backend entry.
func newRefCode() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
