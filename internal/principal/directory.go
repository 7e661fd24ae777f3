// Package principal maps caller identities to their principal kind. Anyone
// not listed as an operator or approver is a gated viewer.
package principal

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/investable/accessgate/internal/accessgate/types"
)

type file struct {
	Operators []string `yaml:"operators"`
	Approvers []string `yaml:"approvers"`
}

type Directory struct {
	path string

	mu    sync.RWMutex
	kinds map[string]types.PrincipalKind
}

// New builds a fixed directory. Approver wins when an identity is listed
// twice.
func New(operators, approvers []string) *Directory {
	d := &Directory{}
	d.set(operators, approvers)
	return d
}

// Load reads a YAML directory from path. Reload re-reads the same file.
func Load(path string) (*Directory, error) {
	d := &Directory{path: path}
	if err := d.Reload(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Directory) Path() string { return d.path }

func (d *Directory) KindOf(identity string) types.PrincipalKind {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if k, ok := d.kinds[types.NormalizeIdentity(identity)]; ok {
		return k
	}
	return types.PrincipalGatedViewer
}

// Reload replaces the directory with the current file contents. On error
// the previous contents stay in effect.
func (d *Directory) Reload() error {
	if d.path == "" {
		return fmt.Errorf("principal directory has no backing file")
	}
	raw, err := os.ReadFile(d.path)
	if err != nil {
		return fmt.Errorf("read principals: %w", err)
	}
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse principals %s: %w", d.path, err)
	}
	d.set(f.Operators, f.Approvers)
	return nil
}

func (d *Directory) set(operators, approvers []string) {
	kinds := make(map[string]types.PrincipalKind, len(operators)+len(approvers))
	for _, id := range operators {
		if id = types.NormalizeIdentity(id); id != "" {
			kinds[id] = types.PrincipalOperator
		}
	}
	for _, id := range approvers {
		if id = types.NormalizeIdentity(id); id != "" {
			kinds[id] = types.PrincipalApprover
		}
	}

	d.mu.Lock()
	d.kinds = kinds
	d.mu.Unlock()
}
