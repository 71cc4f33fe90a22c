package provisioner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/tradeforge/strategy-engine/src/eventmodels"
)

const (
	readyMarkerFilename  = ".ready"
	requirementsFilename = "requirements.txt"
)

type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func defaultCommandRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Provisioner builds and caches one isolated runtime environment per unique
// dependency manifest. Environments live under cacheDir keyed by manifest
// hash; a ready marker file is written last, so a missing marker always
// means "incomplete, rebuild".
type Provisioner struct {
	cacheDir           string
	defaultInterpreter string
	defaultVersion     string

	runCommand commandRunner
	lookPath   func(string) (string, error)

	mu       sync.Mutex
	inflight map[string]*sync.Mutex
}

func NewProvisioner(cacheDir string, defaultInterpreter string) *Provisioner {
	return &Provisioner{
		cacheDir:           cacheDir,
		defaultInterpreter: defaultInterpreter,
		runCommand:         defaultCommandRunner,
		lookPath:           exec.LookPath,
		inflight:           make(map[string]*sync.Mutex),
	}
}

func (p *Provisioner) interpreterPath(envDir string) string {
	return filepath.Join(envDir, "bin", "python3")
}

// defaultInterpreterVersion resolves the host interpreter's version once, for
// manifests without a pin.
func (p *Provisioner) defaultInterpreterVersion(ctx context.Context) string {
	p.mu.Lock()
	cached := p.defaultVersion
	p.mu.Unlock()

	if cached != "" {
		return cached
	}

	output, err := p.runCommand(ctx, p.defaultInterpreter, "--version")
	version := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(string(output)), "Python "))
	if err != nil || version == "" {
		log.Warnf("failed to resolve default interpreter version: %v", err)
		version = "unknown"
	}

	p.mu.Lock()
	p.defaultVersion = version
	p.mu.Unlock()

	return version
}

// envMutex serializes provisioning attempts for one manifest hash within this
// worker process. Cross-worker safety comes from the marker-written-last
// protocol on the shared cache directory.
func (p *Provisioner) envMutex(hash string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()

	m, found := p.inflight[hash]
	if !found {
		m = &sync.Mutex{}
		p.inflight[hash] = m
	}

	return m
}

// isReady trusts a cached environment only if both the ready marker and the
// interpreter binary exist. Directory existence alone can be a half-built
// environment left by a crashed worker.
func (p *Provisioner) isReady(envDir string) bool {
	if _, err := os.Stat(filepath.Join(envDir, readyMarkerFilename)); err != nil {
		return false
	}

	if _, err := os.Stat(p.interpreterPath(envDir)); err != nil {
		return false
	}

	return true
}

// Ensure returns a usable interpreter path for the given manifest, building
// the environment on first use. wasCreated reports whether this call did the
// provisioning. On unrecoverable failure the host's default interpreter path
// is returned alongside the error so the caller can decide whether to run
// degraded or abort.
func (p *Provisioner) Ensure(ctx context.Context, manifestText string) (string, bool, error) {
	manifest := NewManifest(manifestText, p.defaultInterpreterVersion(ctx))

	hash, err := manifest.Hash()
	if err != nil {
		return p.defaultInterpreter, false, &eventmodels.EnvironmentProvisionError{Err: err}
	}

	envDir := filepath.Join(p.cacheDir, hash)

	mutex := p.envMutex(hash)
	mutex.Lock()
	defer mutex.Unlock()

	if p.isReady(envDir) {
		return p.interpreterPath(envDir), false, nil
	}

	log.WithFields(log.Fields{
		"manifest_hash":       hash,
		"interpreter_version": manifest.InterpreterVersion,
	}).Info("provisioning runtime environment")

	if err := p.provision(ctx, envDir, manifest); err != nil {
		return p.defaultInterpreter, false, &eventmodels.EnvironmentProvisionError{ManifestHash: hash, Err: err}
	}

	// Written last: everything before this line succeeded
	marker := filepath.Join(envDir, readyMarkerFilename)
	if err := os.WriteFile(marker, []byte(hash), 0644); err != nil {
		return p.defaultInterpreter, false, &eventmodels.EnvironmentProvisionError{ManifestHash: hash, Err: err}
	}

	return p.interpreterPath(envDir), true, nil
}

func (p *Provisioner) provision(ctx context.Context, envDir string, manifest Manifest) error {
	if err := os.MkdirAll(envDir, 0755); err != nil {
		return fmt.Errorf("failed to create environment directory: %w", err)
	}

	requirementsPath := filepath.Join(envDir, requirementsFilename)
	if err := os.WriteFile(requirementsPath, []byte(manifest.Text), 0644); err != nil {
		return fmt.Errorf("failed to write requirements file: %w", err)
	}

	// Preferred tool first, then the slower universally available chain
	if _, err := p.lookPath("uv"); err == nil {
		if err := p.provisionWithUv(ctx, envDir, requirementsPath, manifest); err == nil {
			return nil
		} else {
			log.Warnf("uv provisioning failed, falling back to venv+pip: %v", err)
		}
	}

	return p.provisionWithVenv(ctx, envDir, requirementsPath)
}

func (p *Provisioner) provisionWithUv(ctx context.Context, envDir string, requirementsPath string, manifest Manifest) error {
	args := []string{"venv", envDir}
	if manifest.InterpreterVersion != "" && manifest.InterpreterVersion != "unknown" {
		args = append(args, "--python", manifest.InterpreterVersion)
	}

	if output, err := p.runCommand(ctx, "uv", args...); err != nil {
		return fmt.Errorf("uv venv failed: %v\n%s", err, output)
	}

	installArgs := []string{"pip", "install", "-r", requirementsPath, "--python", p.interpreterPath(envDir)}
	if output, err := p.runCommand(ctx, "uv", installArgs...); err != nil {
		return fmt.Errorf("uv pip install failed: %v\n%s", err, output)
	}

	return nil
}

func (p *Provisioner) provisionWithVenv(ctx context.Context, envDir string, requirementsPath string) error {
	if output, err := p.runCommand(ctx, p.defaultInterpreter, "-m", "venv", envDir); err != nil {
		return fmt.Errorf("venv creation failed: %v\n%s", err, output)
	}

	pip := filepath.Join(envDir, "bin", "pip")
	if output, err := p.runCommand(ctx, pip, "install", "-r", requirementsPath); err != nil {
		return fmt.Errorf("pip install failed: %v\n%s", err, output)
	}

	return nil
}
