// internal/menu/menu.go
//
// The menu projection mirrors the session into the host's menu. It rebuilds
// the whole tree from every snapshot it is handed and only publishes once the
// host reported that its UI is up.

package menu

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/kingrea/pipectx/internal/pipeline"
	"github.com/kingrea/pipectx/internal/session"
)

const (
	disabledTitle   = "Toolkit is disabled"
	errorTitle      = "[Error - Click for details]"
	otherItemsTitle = "Other Items"
)

// ItemKind tags a menu entry.
type ItemKind string

const (
	ItemCommand   ItemKind = "command"
	ItemSubmenu   ItemKind = "submenu"
	ItemSeparator ItemKind = "separator"
	ItemLabel     ItemKind = "label"
)

// Item is one entry of the menu tree.
type Item struct {
	Kind     ItemKind `json:"kind"`
	Title    string   `json:"title,omitempty"`
	Command  string   `json:"command,omitempty"`
	Hotkey   string   `json:"hotkey,omitempty"`
	Detail   string   `json:"detail,omitempty"`
	Children []Item   `json:"children,omitempty"`
}

// Menu is the root of the tree.
type Menu struct {
	Title string `json:"title"`
	Items []Item `json:"items"`
}

// Favourite pins a command of an app above the grouped commands.
type Favourite struct {
	App  string
	Name string
}

// Build turns a snapshot into a menu.
func Build(title string, favourites []Favourite, snap session.Snapshot) Menu {
	m := Menu{Title: title}
	switch snap.State {
	case session.StateActive:
		m.Items = activeItems(snap, favourites)
	case session.StateDisabled:
		m.Items = []Item{disabledItem(snap.Reason)}
	}
	return m
}

func disabledItem(reason error) Item {
	if errors.Is(reason, pipeline.ErrSessionConstruction) || errors.Is(reason, pipeline.ErrSceneHandling) {
		return Item{Kind: ItemLabel, Title: errorTitle, Detail: reason.Error()}
	}
	detail := "The file you are working on is not recognized by pipectx."
	if reason != nil {
		detail = fmt.Sprintf("%s\n\n%v", detail, reason)
	}
	return Item{Kind: ItemLabel, Title: disabledTitle, Detail: detail}
}

func activeItems(snap session.Snapshot, favourites []Favourite) []Item {
	contextMenu := Item{Kind: ItemSubmenu, Title: snap.Context.String()}
	var rest []session.CommandSpec
	for _, spec := range snap.Commands {
		if spec.Kind == session.KindContextMenu {
			contextMenu.Children = append(contextMenu.Children, commandItem(spec, spec.Name))
			continue
		}
		rest = append(rest, spec)
	}
	items := []Item{contextMenu, {Kind: ItemSeparator}}

	favourite := map[string]bool{}
	added := 0
	for _, fav := range favourites {
		for _, spec := range rest {
			if spec.App == fav.App && spec.Name == fav.Name {
				items = append(items, commandItem(spec, spec.Name))
				favourite[key(spec)] = true
				added++
			}
		}
	}
	if added > 0 {
		items = append(items, Item{Kind: ItemSeparator})
	}

	byApp := map[string][]session.CommandSpec{}
	var apps []string
	var other []session.CommandSpec
	for _, spec := range rest {
		if spec.App == "" {
			other = append(other, spec)
			continue
		}
		if _, ok := byApp[spec.App]; !ok {
			apps = append(apps, spec.App)
		}
		byApp[spec.App] = append(byApp[spec.App], spec)
	}
	sort.Strings(apps)
	for _, app := range apps {
		specs := byApp[app]
		sortByName(specs)
		if len(specs) == 1 {
			if !favourite[key(specs[0])] {
				items = append(items, commandItem(specs[0], specs[0].Name))
			}
			continue
		}
		sub := Item{Kind: ItemSubmenu, Title: app}
		for _, spec := range specs {
			sub.Children = append(sub.Children, commandItem(spec, spec.Name))
		}
		items = append(items, sub)
	}
	if len(other) > 0 {
		sortByName(other)
		sub := Item{Kind: ItemSubmenu, Title: otherItemsTitle}
		for _, spec := range other {
			sub.Children = append(sub.Children, commandItem(spec, spec.Name))
		}
		items = append(items, sub)
	}
	return items
}

func commandItem(spec session.CommandSpec, title string) Item {
	return Item{Kind: ItemCommand, Title: title, Command: spec.Name, Hotkey: spec.Hotkey}
}

func key(spec session.CommandSpec) string {
	return spec.App + "\x00" + spec.Name
}

func sortByName(specs []session.CommandSpec) {
	sort.SliceStable(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
}

// HostReadiness tracks whether the host can show a menu yet.
type HostReadiness int

const (
	NotReady HostReadiness = iota
	Ready
)

func (r HostReadiness) String() string {
	if r == Ready {
		return "ready"
	}
	return "not-ready"
}

// Option customizes a Projection.
type Option func(*Projection)

// WithPublisher sets where finished menus go.
func WithPublisher(publish func(Menu)) Option {
	return func(p *Projection) {
		if publish != nil {
			p.publish = publish
		}
	}
}

// WithFavourites pins commands above the grouped commands.
func WithFavourites(favourites []Favourite) Option {
	return func(p *Projection) {
		p.favourites = append([]Favourite(nil), favourites...)
	}
}

// Projection observes the session manager and publishes menus.
type Projection struct {
	title      string
	favourites []Favourite
	publish    func(Menu)

	mu        sync.Mutex
	readiness HostReadiness
	held      *Menu
	current   Menu
	published int
}

// NewProjection creates a projection that waits for MarkReady.
func NewProjection(title string, opts ...Option) *Projection {
	p := &Projection{title: title, publish: func(Menu) {}, current: Menu{Title: title}}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// SessionChanged implements session.Observer.
func (p *Projection) SessionChanged(snap session.Snapshot) {
	m := Build(p.title, p.favourites, snap)
	p.mu.Lock()
	p.current = m
	if p.readiness != Ready {
		p.held = &m
		p.mu.Unlock()
		return
	}
	p.published++
	p.mu.Unlock()
	p.publish(m)
}

// MarkReady records that the host UI is up and publishes the latest held menu.
func (p *Projection) MarkReady() {
	p.mu.Lock()
	if p.readiness == Ready {
		p.mu.Unlock()
		return
	}
	p.readiness = Ready
	held := p.held
	p.held = nil
	if held != nil {
		p.published++
	}
	p.mu.Unlock()
	if held != nil {
		p.publish(*held)
	}
}

// Readiness returns the host readiness.
func (p *Projection) Readiness() HostReadiness {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readiness
}

// Current returns the menu for the latest snapshot, published or not.
func (p *Projection) Current() Menu {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Published returns how many menus reached the publisher.
func (p *Projection) Published() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published
}
