// Package filegw implements the FileGateway: bind-mounts host paths into
// the container, optionally exporting the resolved path as an environment
// variable and/or creating a symlink to it, with the FileSetting merge
// rule enforced on every SetConfig call.
package filegw

import (
	"context"
	"encoding/json"

	"scagent/internal/gateway"
)

const ID = "file"

// setting mirrors the FileSetting data model.
type setting struct {
	PathHost      string `json:"path-host"`
	PathContainer string `json:"path-container"`
	ReadOnly      bool   `json:"read-only"`
	CreateSymlink bool   `json:"create-symlink"`
	EnvVarName    string `json:"env-var-name"`
	EnvVarPrefix  string `json:"env-var-prefix"`
	EnvVarSuffix  string `json:"env-var-suffix"`
}

func (s setting) valid() bool {
	if s.PathHost == "" || s.PathContainer == "" {
		return false
	}
	if (s.EnvVarPrefix != "" || s.EnvVarSuffix != "") && s.EnvVarName == "" {
		return false
	}
	return true
}

// store holds the accumulated, merge-deduplicated settings for one
// gateway instance, keyed by pathInContainer.
type store struct {
	byContainerPath map[string]int
	settings        []setting
}

func newStore() *store {
	return &store{byContainerPath: make(map[string]int)}
}

// add applies the merge rule: a setting sharing pathInContainer with an
// existing one is accepted only if pathInHost also matches, in which case
// readOnly is merged as logical AND; otherwise it is rejected.
func (st *store) add(s setting) bool {
	if idx, ok := st.byContainerPath[s.PathContainer]; ok {
		existing := st.settings[idx]
		if existing.PathHost != s.PathHost {
			return false
		}
		existing.ReadOnly = existing.ReadOnly && s.ReadOnly
		st.settings[idx] = existing
		return true
	}
	st.byContainerPath[s.PathContainer] = len(st.settings)
	st.settings = append(st.settings, s)
	return true
}

func (st *store) size() int { return len(st.settings) }

// clone returns an independent copy of the store, so a batch of adds can
// be trialed without touching the live settings.
func (st *store) clone() *store {
	c := &store{
		byContainerPath: make(map[string]int, len(st.byContainerPath)),
		settings:        append([]setting(nil), st.settings...),
	}
	for k, v := range st.byContainerPath {
		c.byContainerPath[k] = v
	}
	return c
}

// Gateway implements gateway.Gateway for bind-mounted files/directories.
type Gateway struct {
	gateway.Base
	store *store
}

// New creates an unconfigured FileGateway.
func New() *Gateway {
	return &Gateway{Base: gateway.NewBase(ID), store: newStore()}
}

func (g *Gateway) SetConfig(fragments []json.RawMessage) bool {
	var parsed []setting
	for _, frag := range fragments {
		var batch []setting
		if err := json.Unmarshal(frag, &batch); err != nil {
			return false
		}
		for _, s := range batch {
			if !s.valid() {
				return false
			}
			parsed = append(parsed, s)
		}
	}
	scratch := g.store.clone()
	for _, s := range parsed {
		if !scratch.add(s) {
			return false
		}
	}
	g.store = scratch
	g.MarkConfigured()
	return true
}

func (g *Gateway) Activate(ctx context.Context) bool {
	if !g.CanActivate() {
		g.RefuseActivateWithoutConfig()
		g.Teardown(ctx)
		return false
	}

	rt := g.Container()
	for _, s := range g.store.settings {
		mounted, err := rt.BindMount(ctx, s.PathHost, s.PathContainer, s.ReadOnly)
		if err != nil {
			return false
		}
		if s.EnvVarName != "" {
			value := s.EnvVarPrefix + mounted + s.EnvVarSuffix
			if err := rt.SetEnv(ctx, s.EnvVarName, value); err != nil {
				return false
			}
		}
		if s.CreateSymlink {
			if err := rt.CreateSymlink(ctx, mounted, s.PathContainer); err != nil {
				return false
			}
		}
	}
	g.MarkActivated()
	return true
}

func (g *Gateway) Teardown(ctx context.Context) bool {
	if !g.WasActivated() {
		return g.TeardownNoop()
	}
	g.MarkTornDown()
	return true
}

// Size reports the number of distinct settings held after merging.
func (g *Gateway) Size() int { return g.store.size() }
