package agent

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultSystemPrompt is used when no prompt file exists.
const DefaultSystemPrompt = "You are DreamyTin AI, a helpful personal assistant."

// PromptSource serves the system prompt and reloads it when the
// backing file changes, so edits take effect without a restart.
type PromptSource struct {
	path    string
	logger  zerolog.Logger
	watcher *fsnotify.Watcher
	stopCh  chan struct{}

	mu      sync.RWMutex
	current string
}

// NewPromptSource loads the prompt from path, falling back to
// DefaultSystemPrompt when the file is missing or empty. An empty path
// disables file loading entirely.
func NewPromptSource(path string, logger zerolog.Logger) *PromptSource {
	p := &PromptSource{
		path:    path,
		logger:  logger,
		stopCh:  make(chan struct{}),
		current: DefaultSystemPrompt,
	}
	p.reload()
	return p
}

// Current returns the active system prompt.
func (p *PromptSource) Current() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Watch starts watching the prompt file's directory for changes.
// Editors replace files on save, so the directory is watched rather
// than the file itself.
func (p *PromptSource) Watch() error {
	if p.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		watcher.Close()
		return err
	}
	p.watcher = watcher

	go p.run()
	return nil
}

// Close stops the watcher.
func (p *PromptSource) Close() error {
	close(p.stopCh)
	if p.watcher != nil {
		return p.watcher.Close()
	}
	return nil
}

func (p *PromptSource) run() {
	for {
		select {
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(p.path) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) {
				p.logger.Debug().
					Str("file", filepath.Base(event.Name)).
					Str("op", event.Op.String()).
					Msg("System prompt change detected")
				p.reload()
			}

		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error().Err(err).Msg("Prompt watcher error")

		case <-p.stopCh:
			return
		}
	}
}

func (p *PromptSource) reload() {
	prompt := DefaultSystemPrompt

	if p.path != "" {
		data, err := os.ReadFile(p.path)
		switch {
		case err == nil:
			if text := strings.TrimSpace(string(data)); text != "" {
				prompt = text
			}
		case !os.IsNotExist(err):
			p.logger.Warn().Err(err).Str("path", p.path).Msg("Failed to read system prompt file")
		}
	}

	p.mu.Lock()
	p.current = prompt
	p.mu.Unlock()
}
