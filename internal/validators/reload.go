package validators

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Rorqualx/browserctl/internal/coretypes"
)

// LoadOverrides compiles every "<actionType>.schema.json" file found
// directly under dir and, for each one that compiles cleanly, swaps it
// in for the built-in schema of that action type. A bad file is logged
// and skipped rather than aborting the whole load, so one operator
// typo doesn't take every other action type's validation down with it.
func (r *Registry) LoadOverrides(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("validators: read schema dir: %w", err)
	}

	loaded := make(map[coretypes.ActionType]*jsonschema.Schema)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".schema.json") {
			continue
		}
		actionType := coretypes.ActionType(strings.TrimSuffix(entry.Name(), ".schema.json"))
		path := filepath.Join(dir, entry.Name())

		body, err := os.ReadFile(path)
		if err != nil {
			log.Error().Err(err).Str("path", path).Msg("validators: failed to read schema override")
			continue
		}

		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		url := schemaBaseURL + string(actionType) + ".schema.json"
		if err := c.AddResource(url, strings.NewReader(string(body))); err != nil {
			log.Error().Err(err).Str("path", path).Msg("validators: invalid schema override, keeping previous schema")
			continue
		}
		compiled, err := c.Compile(url)
		if err != nil {
			log.Error().Err(err).Str("path", path).Msg("validators: schema override failed to compile, keeping previous schema")
			continue
		}
		loaded[actionType] = compiled
	}

	if len(loaded) == 0 {
		return nil
	}

	r.mu.Lock()
	for actionType, schema := range loaded {
		r.schemas[actionType] = schema
	}
	r.mu.Unlock()

	log.Info().Int("count", len(loaded)).Str("dir", dir).Msg("validators: loaded schema overrides")
	return nil
}

// WatchReload watches dir for create/write events and reloads schema
// overrides from it on every change, until stopCh is closed. It logs
// and continues on watcher errors rather than exiting, since a
// watcher failure shouldn't take down action validation.
func (r *Registry) WatchReload(dir string, stopCh <-chan struct{}) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Error().Err(err).Msg("validators: failed to start schema watcher")
		return
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		log.Error().Err(err).Str("dir", dir).Msg("validators: failed to watch schema dir")
		return
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := r.LoadOverrides(dir); err != nil {
				log.Error().Err(err).Msg("validators: schema reload failed")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("validators: schema watcher error")
		case <-stopCh:
			return
		}
	}
}
