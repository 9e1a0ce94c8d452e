package router

import (
	"encoding/json"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// TableWatcher hot-reloads a synonym-override file into a resolver, so the
// table can be tuned from fallback telemetry without a restart.
type TableWatcher struct {
	path     string
	resolver *Resolver
	watcher  *fsnotify.Watcher
	logger   zerolog.Logger
	debounce time.Duration
	timer    *time.Timer
	stopCh   chan struct{}
}

// LoadTable reads a synonym table from a JSON file: an ordered array of
// {"name": ..., "synonyms": [...]} entries. The array form pins the
// declaration order the substring tie-break depends on.
func LoadTable(path string) ([]SynonymEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var table []SynonymEntry
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, err
	}
	if err := ValidateTable(table); err != nil {
		return nil, err
	}
	return table, nil
}

// NewTableWatcher watches path and applies valid table updates to resolver.
func NewTableWatcher(path string, resolver *Resolver, logger zerolog.Logger) (*TableWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, err
	}

	tw := &TableWatcher{
		path:     path,
		resolver: resolver,
		watcher:  watcher,
		logger:   logger,
		debounce: 500 * time.Millisecond,
		stopCh:   make(chan struct{}),
	}

	go tw.run()

	return tw, nil
}

// Stop stops the watcher.
func (tw *TableWatcher) Stop() error {
	close(tw.stopCh)
	return tw.watcher.Close()
}

func (tw *TableWatcher) run() {
	for {
		select {
		case event, ok := <-tw.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				tw.scheduleReload()
			}
		case err, ok := <-tw.watcher.Errors:
			if !ok {
				return
			}
			tw.logger.Error().Err(err).Msg("Synonym table watcher error")
		case <-tw.stopCh:
			return
		}
	}
}

// scheduleReload debounces bursts of write events into one reload.
func (tw *TableWatcher) scheduleReload() {
	if tw.timer != nil {
		tw.timer.Stop()
	}
	tw.timer = time.AfterFunc(tw.debounce, tw.reload)
}

func (tw *TableWatcher) reload() {
	table, err := LoadTable(tw.path)
	if err != nil {
		// Keep the previous table; a half-written or invalid file must not
		// take routing down.
		tw.logger.Warn().Err(err).Str("path", tw.path).Msg("Ignoring invalid synonym table update")
		return
	}
	tw.resolver.ReplaceTable(table)
	tw.logger.Info().Str("path", tw.path).Int("entries", len(table)).Msg("Synonym table reloaded")
}
