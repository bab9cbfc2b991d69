// Package watch re-parses a configuration file whenever it, or any
// file it includes, changes on disk.
package watch

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/tliron/commonlog"

	"github.com/bastionwaf/bastion/cfgparser"
)

var log = commonlog.GetLogger("bastion.watch")

const defaultDebounce = 250 * time.Millisecond

// Event carries one completed reload: the finished parse session and
// its first error, if any.
type Event struct {
	Parser *cfgparser.Parser
	Err    error
}

// Watcher watches a root configuration file and everything it
// includes. Changes are debounced so editors that write in several
// steps trigger a single reload.
type Watcher struct {
	path     string
	fw       *fsnotify.Watcher
	events   chan Event
	done     chan struct{}
	debounce time.Duration
	files    map[string]bool // watched file set, loop goroutine only
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides the reload debounce interval.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// New parses path once to discover the include set, starts watching
// it and returns the watcher. The initial session is delivered as
// the first event.
func New(path string, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		path:     abs,
		fw:       fw,
		events:   make(chan Event, 1),
		done:     make(chan struct{}),
		debounce: defaultDebounce,
		files:    map[string]bool{},
	}
	for _, opt := range opts {
		opt(w)
	}

	p := cfgparser.New()
	perr := p.ParseFile(abs)
	w.rewatch(p)
	w.events <- Event{Parser: p, Err: perr}

	go w.loop()
	return w, nil
}

// Events delivers one Event per completed reload. The channel is
// closed when the watcher stops.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Close stops watching. Safe to call more than once.
func (w *Watcher) Close() error {
	select {
	case <-w.done:
		return nil
	default:
	}
	close(w.done)
	return w.fw.Close()
}

func (w *Watcher) loop() {
	defer close(w.events)

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			log.Debugf("change on %q (%s)", ev.Name, ev.Op)
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			fire = timer.C

		case <-fire:
			timer, fire = nil, nil
			w.reload()

		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			log.Warningf("watch error: %v", err)

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
		return false
	}
	return w.files[filepath.Clean(ev.Name)]
}

func (w *Watcher) reload() {
	log.Infof("reloading %q", w.path)
	p := cfgparser.New()
	err := p.ParseFile(w.path)
	w.rewatch(p)
	select {
	case w.events <- Event{Parser: p, Err: err}:
	case <-w.done:
	}
}

// rewatch updates the watch set to the files of the latest session.
// Directories are watched rather than the files themselves so that
// rename-and-replace saves keep being seen.
func (w *Watcher) rewatch(p *cfgparser.Parser) {
	files := map[string]bool{}
	collectFiles(p.Root(), files)

	dirs := map[string]bool{}
	for f := range files {
		dirs[filepath.Dir(f)] = true
	}
	for d := range dirs {
		if err := w.fw.Add(d); err != nil {
			log.Warningf("cannot watch %q: %v", d, err)
		}
	}
	w.files = files
}

func collectFiles(n *cfgparser.Node, files map[string]bool) {
	if n.Kind == cfgparser.KindFile {
		if abs, err := filepath.Abs(n.File); err == nil {
			files[abs] = true
		}
	}
	for _, c := range n.Children {
		collectFiles(c, files)
	}
}
