// Package engine is the host side of the configuration subsystem: a
// sensor engine whose state is populated by applying a parsed
// configuration tree through a directive registry.
package engine

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/bastionwaf/bastion/cfgparser"
	"github.com/bastionwaf/bastion/directive"
)

var log = commonlog.GetLogger("bastion.engine")

// AuditParts is the bit set of transaction parts written to the
// audit log.
type AuditParts uint64

const (
	PartRequestHeader AuditParts = 1 << iota
	PartRequestBody
	PartResponseHeader
	PartResponseBody
)

const (
	PartsNone    AuditParts = 0
	PartsMinimal            = PartRequestHeader | PartResponseHeader
	PartsRequest            = PartRequestHeader | PartRequestBody
	PartsAll                = PartRequestHeader | PartRequestBody | PartResponseHeader | PartResponseBody
)

var auditPartFlags = []directive.FlagValue{
	{Name: "none", Value: uint64(PartsNone)},
	{Name: "minimal", Value: uint64(PartsMinimal)},
	{Name: "all", Value: uint64(PartsAll)},
	{Name: "request", Value: uint64(PartsRequest)},
	{Name: "requestheader", Value: uint64(PartRequestHeader)},
	{Name: "requestbody", Value: uint64(PartRequestBody)},
	{Name: "response", Value: uint64(PartResponseHeader | PartResponseBody)},
	{Name: "responseheader", Value: uint64(PartResponseHeader)},
	{Name: "responsebody", Value: uint64(PartResponseBody)},
}

// Location is a path scope inside a site.
type Location struct {
	Path string
}

// Site is a protected site context with its locations.
type Site struct {
	Name      string
	Locations []*Location
}

// Engine holds sensor-wide settings and the site tree. All fields
// are filled by applying a configuration; zero-value defaults match
// an engine that observes but never blocks.
type Engine struct {
	SensorID       uuid.UUID
	SensorName     string
	SensorHostname string

	Protection    bool
	Audit         bool
	AuditParts    AuditParts
	BlockedStatus int
	BlockAction   string

	Sites []*Site

	curSite *Site
	curLoc  *Location
}

// New returns an engine with default settings.
func New() *Engine {
	return &Engine{
		AuditParts:    PartsMinimal,
		BlockedStatus: 403,
		BlockAction:   "block",
	}
}

// Load parses the configuration file at path and applies it to the
// engine. Parse failures are returned before anything is applied.
func (e *Engine) Load(path string) error {
	p := cfgparser.New()
	if err := p.ParseFile(path); err != nil {
		return err
	}
	log.Infof("applying configuration from %q", path)
	return p.Apply(e.Registry())
}

// Registry builds the directive table bound to this engine. Each
// Load or apply pass needs a fresh registry since it tracks block
// scope.
func (e *Engine) Registry() *directive.Registry {
	r := directive.NewRegistry()

	r.MustRegister(&directive.Handler{
		Name: "SensorId", Type: directive.Param1,
		Param1Fn: func(name, p1 string) error {
			id, err := uuid.Parse(p1)
			if err != nil {
				return fmt.Errorf("%s: %q is not a valid UUID: %w", name, p1, err)
			}
			e.SensorID = id
			return nil
		},
	})
	r.MustRegister(&directive.Handler{
		Name: "SensorName", Type: directive.Param1,
		Param1Fn: func(name, p1 string) error {
			e.SensorName = p1
			return nil
		},
	})
	r.MustRegister(&directive.Handler{
		Name: "SensorHostname", Type: directive.Param1,
		Param1Fn: func(name, p1 string) error {
			e.SensorHostname = p1
			return nil
		},
	})
	r.MustRegister(&directive.Handler{
		Name: "ProtectionEngine", Type: directive.OnOff,
		OnOffFn: func(name string, value bool) error {
			e.Protection = value
			return nil
		},
	})
	r.MustRegister(&directive.Handler{
		Name: "AuditEngine", Type: directive.OnOff,
		OnOffFn: func(name string, value bool) error {
			e.Audit = value
			return nil
		},
	})
	r.MustRegister(&directive.Handler{
		Name: "AuditLogParts", Type: directive.Flags,
		FlagValues: auditPartFlags,
		FlagsFn: func(name string, flags, mask uint64) error {
			e.AuditParts = (e.AuditParts &^ AuditParts(mask)) | AuditParts(flags)
			return nil
		},
	})
	r.MustRegister(&directive.Handler{
		Name: "BlockedStatus", Type: directive.Param1,
		Param1Fn: func(name, p1 string) error {
			status, err := strconv.Atoi(p1)
			if err != nil || status < 100 || status > 599 {
				return fmt.Errorf("%s: %q is not an HTTP status code", name, p1)
			}
			e.BlockedStatus = status
			return nil
		},
	})
	r.MustRegister(&directive.Handler{
		Name: "DefaultBlockAction", Type: directive.Param1,
		Param1Fn: func(name, p1 string) error {
			e.BlockAction = p1
			return nil
		},
	})

	r.MustRegister(&directive.Handler{
		Name: "Site", Type: directive.Block,
		BlockStartFn: func(name, p1 string) error {
			if e.curSite != nil {
				return fmt.Errorf("<Site> blocks cannot nest")
			}
			site := &Site{Name: p1}
			e.Sites = append(e.Sites, site)
			e.curSite = site
			log.Debugf("entering site %q", p1)
			return nil
		},
		BlockEndFn: func(name string) error {
			e.curSite = nil
			return nil
		},
	})
	r.MustRegister(&directive.Handler{
		Name: "Location", Type: directive.Block,
		BlockStartFn: func(name, p1 string) error {
			if e.curSite == nil {
				return fmt.Errorf("<Location> is only valid inside a <Site> block")
			}
			if e.curLoc != nil {
				return fmt.Errorf("<Location> blocks cannot nest")
			}
			loc := &Location{Path: p1}
			e.curSite.Locations = append(e.curSite.Locations, loc)
			e.curLoc = loc
			log.Debugf("entering location %q in site %q", p1, e.curSite.Name)
			return nil
		},
		BlockEndFn: func(name string) error {
			e.curLoc = nil
			return nil
		},
	})

	return r
}
