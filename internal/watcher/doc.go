// Package watcher keeps an index live between syncs: it subscribes to
// filesystem changes under a root, coalesces bursts of events per path,
// and hands debounced batches to the indexing pipeline.
//
// Two event sources sit behind one type. HybridWatcher prefers fsnotify;
// where that cannot run (some network mounts, container volumes) it
// falls back to a polling scanner that diffs mtime/size snapshots. Both
// sources feed a single admission pipeline: gitignore and always-ignored
// directories first, then special-event classification (a .gitignore or
// project-config edit becomes a reconciliation trigger instead of a file
// event), then the allow/block policy for creates and modifies, and only
// then the debouncer's two pending sets.
//
// Consumers read batches, not single events:
//
//	w, err := watcher.NewHybridWatcher(watcher.Options{Policy: matcher})
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//	go w.Start(ctx, root)
//	for batch := range w.Events() {
//	    result := sync.ApplyWatchEvents(ctx, root, batch)
//	    ...
//	}
package watcher
