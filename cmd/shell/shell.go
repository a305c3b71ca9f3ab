package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"hoodgram/internal/access"
	"hoodgram/internal/app"
	"hoodgram/internal/authstate"
	"hoodgram/internal/config"
	"hoodgram/internal/platform/logging"
)

// terminalNavigator plays the browser router: it remembers the current page
// and prints every navigation.
type terminalNavigator struct {
	mu   sync.Mutex
	path string
	out  io.Writer
}

func newTerminalNavigator(out io.Writer, path string) *terminalNavigator {
	if path == "" {
		path = access.HomePath
	}
	return &terminalNavigator{path: path, out: out}
}

// Path returns the current page without its query string.
func (n *terminalNavigator) Path() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	path, _, _ := strings.Cut(n.path, "?")
	return path
}

func (n *terminalNavigator) location() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.path
}

func (n *terminalNavigator) Navigate(target string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintf(n.out, "-> %s\n", target)
	// External consent pages leave the app; the client comes back through the callback.
	if strings.HasPrefix(target, "/") {
		n.path = target
	}
}

// savedSession is what the shell keeps between invocations.
type savedSession struct {
	AccessToken string `json:"access_token,omitempty"`
	Path        string `json:"path,omitempty"`
}

type sessionFile struct {
	path string
}

func defaultSessionPath(cfg config.Config) string {
	if cfg.SessionFile != "" {
		return cfg.SessionFile
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".hoodgram-session.json"
	}
	return filepath.Join(home, ".hoodgram", "session.json")
}

// load returns an empty session when the file does not exist yet.
func (f sessionFile) load() (savedSession, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return savedSession{}, nil
	}
	if err != nil {
		return savedSession{}, fmt.Errorf("read session file: %w", err)
	}
	var s savedSession
	if err := json.Unmarshal(data, &s); err != nil {
		return savedSession{}, fmt.Errorf("decode session file %s: %w", f.path, err)
	}
	return s, nil
}

func (f sessionFile) save(s savedSession) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, data, 0o600)
}

// shell hosts one controller for the lifetime of a command.
type shell struct {
	cfg   config.Config
	app   *app.App
	ctrl  *authstate.Controller
	nav   *terminalNavigator
	store *sessionFile
	out   io.Writer

	cancel context.CancelFunc
}

type shellOptions struct {
	path      string
	store     *sessionFile
	configure func(*config.Config)
	appOpts   []app.Option
}

// openShell wires the services, restores the saved session and waits for the
// controller to settle on it.
func openShell(ctx context.Context, out io.Writer, o shellOptions) (*shell, error) {
	cfg, err := loadConfig(o.configure)
	if err != nil {
		return nil, err
	}
	logger := logging.NewWithWriter(os.Stderr, cfg.LogLevel, cfg.Environment)

	application, err := app.New(ctx, cfg, logger, append([]app.Option{app.WithoutGoogle()}, o.appOpts...)...)
	if err != nil {
		return nil, err
	}

	var saved savedSession
	if o.store != nil {
		if saved, err = o.store.load(); err != nil {
			_ = application.Close()
			return nil, err
		}
	}
	path := o.path
	if path == "" {
		path = saved.Path
	}

	runCtx, cancel := context.WithCancel(ctx)
	s := &shell{
		cfg:    cfg,
		app:    application,
		nav:    newTerminalNavigator(out, path),
		store:  o.store,
		out:    out,
		cancel: cancel,
	}
	s.ctrl = application.NewController(s.nav)
	s.ctrl.Start(runCtx)

	if _, err := application.Auth.Restore(ctx, saved.AccessToken); err != nil {
		s.close()
		return nil, fmt.Errorf("restore session: %w", err)
	}
	if err := s.settle(ctx); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

func loadConfig(configure func(*config.Config)) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if configure != nil {
		configure(&cfg)
	}
	return cfg, nil
}

func (s *shell) settle(ctx context.Context) error {
	return s.ctrl.Settle(ctx)
}

// persist saves the current session token and page.
func (s *shell) persist() error {
	if s.store == nil {
		return nil
	}
	saved := savedSession{Path: s.nav.location()}
	if session := s.ctrl.Session(); session != nil {
		saved.AccessToken = session.AccessToken
	}
	return s.store.save(saved)
}

func (s *shell) close() {
	s.cancel()
	<-s.ctrl.Done()
	_ = s.app.Close()
}

func (s *shell) printStatus() {
	snap := s.ctrl.Snapshot()
	fmt.Fprintf(s.out, "state: %s\n", snap.State)
	fmt.Fprintf(s.out, "page:  %s\n", s.nav.location())
	if snap.User == nil {
		return
	}
	fmt.Fprintf(s.out, "user:  %s (%s)\n", displayName(snap.User), snap.User.Email)
}

func displayName(u *authstate.User) string {
	switch {
	case u.Username != nil && u.Name != nil:
		return *u.Name + " @" + *u.Username
	case u.Name != nil:
		return *u.Name
	case u.Username != nil:
		return "@" + *u.Username
	default:
		return "no profile yet"
	}
}
