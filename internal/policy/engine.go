// Package policy manages versioned per-project policy bundles: bootstrap,
// create with optimistic concurrency, activation, and defaults reset from
// bundled assets.
package policy

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/beadhub/beadhub/internal/apperr"
	"github.com/beadhub/beadhub/internal/database"
	"github.com/beadhub/beadhub/internal/models"
)

//go:embed defaults/bundle.json
var embeddedBundle []byte

// Engine serves policy operations. The default bundle is loaded once at
// startup; Reload re-reads it from the asset dir when one is configured.
type Engine struct {
	db       *database.Database
	assetDir string

	mu       sync.RWMutex
	defaults models.PolicyBundle
}

// NewEngine loads the default bundle, preferring assetDir over the embedded
// copy.
func NewEngine(db *database.Database, assetDir string) (*Engine, error) {
	e := &Engine{db: db, assetDir: assetDir}
	if err := e.Reload(); err != nil {
		return nil, err
	}
	return e, nil
}

// Reload re-reads the default bundle from disk (or the embedded asset when no
// asset dir is configured).
func (e *Engine) Reload() error {
	raw := embeddedBundle
	if e.assetDir != "" {
		path := filepath.Join(e.assetDir, "bundle.json")
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read policy assets from %s: %w", path, err)
		}
		raw = data
	}
	var bundle models.PolicyBundle
	if err := json.Unmarshal(raw, &bundle); err != nil {
		return fmt.Errorf("failed to parse default policy bundle: %w", err)
	}
	e.mu.Lock()
	e.defaults = bundle
	e.mu.Unlock()
	log.Printf("[Policy] Loaded default bundle (%d invariants, %d roles)",
		len(bundle.Invariants), len(bundle.Roles))
	return nil
}

// Defaults returns a deep copy of the default bundle.
func (e *Engine) Defaults() models.PolicyBundle {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return copyBundle(e.defaults)
}

func copyBundle(b models.PolicyBundle) models.PolicyBundle {
	out := models.PolicyBundle{
		Invariants: append([]models.PolicyInvariant(nil), b.Invariants...),
		Roles:      make(map[string]models.PolicyRole, len(b.Roles)),
	}
	for k, v := range b.Roles {
		out.Roles[k] = v
	}
	if b.Adapters != nil {
		out.Adapters = make(map[string]json.RawMessage, len(b.Adapters))
		for k, v := range b.Adapters {
			out.Adapters[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

// Active returns the project's active policy, bootstrapping version 1 from
// the defaults when the project has none yet.
func (e *Engine) Active(ctx context.Context, projectID string) (*models.Policy, error) {
	p, err := e.db.ActivePolicy(ctx, projectID)
	if err == nil {
		return p, nil
	}
	if apperr.KindOf(err) != apperr.NotFound {
		return nil, err
	}

	created, err := e.db.CreatePolicy(ctx, projectID, e.Defaults(), nil, nil)
	if err != nil {
		return nil, err
	}
	if err := e.db.ActivatePolicy(ctx, projectID, created.Policy.ID); err != nil {
		return nil, err
	}
	log.Printf("[Policy] Bootstrapped project %s with default policy v%d", projectID, created.Policy.Version)
	return created.Policy, nil
}

// Get returns one policy version by id, scoped to the caller's project.
func (e *Engine) Get(ctx context.Context, projectID, policyID string) (*models.Policy, error) {
	p, err := e.db.GetPolicy(ctx, policyID)
	if err != nil {
		return nil, err
	}
	if p.ProjectID != projectID {
		return nil, apperr.New(apperr.NotFound, "policy %s not found", policyID)
	}
	return p, nil
}

// History lists versions newest first.
func (e *Engine) History(ctx context.Context, projectID string, limit int) ([]*models.Policy, error) {
	return e.db.PolicyHistory(ctx, projectID, limit)
}

// Create allocates the next version. basePolicyID, when set, must still be
// the active policy or the call conflicts. Identical bundles are idempotent.
func (e *Engine) Create(ctx context.Context, projectID string, bundle models.PolicyBundle, basePolicyID, createdBy *string) (*database.CreatePolicyResult, error) {
	if len(bundle.Invariants) == 0 && len(bundle.Roles) == 0 {
		return nil, apperr.New(apperr.Validation, "policy bundle must carry invariants or roles")
	}
	return e.db.CreatePolicy(ctx, projectID, bundle, basePolicyID, createdBy)
}

// Activate points the project at policyID.
func (e *Engine) Activate(ctx context.Context, projectID, policyID string) error {
	return e.db.ActivatePolicy(ctx, projectID, policyID)
}

// Reset creates a new version from the current default snapshot and activates
// it.
func (e *Engine) Reset(ctx context.Context, projectID string, createdBy *string) (*models.Policy, error) {
	created, err := e.db.CreatePolicy(ctx, projectID, e.Defaults(), nil, createdBy)
	if err != nil {
		return nil, err
	}
	if err := e.db.ActivatePolicy(ctx, projectID, created.Policy.ID); err != nil {
		return nil, err
	}
	return created.Policy, nil
}
