package plugin

import (
	"context"
	"fmt"

	"github.com/ayusman/camscroll/internal/actuator"
	"github.com/ayusman/camscroll/internal/gesture"
)

// Page scrolls by invoking a plugin. It implements actuator.Page.
type Page struct {
	plugin   *Plugin
	executor *Executor
}

// NewPage looks up name in m and returns a page backed by it. The plugin
// must support the scroll action.
func NewPage(m *Manager, name string, executor *Executor) (*Page, error) {
	p, err := m.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if !p.Manifest.Supports(ActionScroll) {
		return nil, fmt.Errorf("plugin %s does not support %q", name, ActionScroll)
	}
	return &Page{plugin: p, executor: executor}, nil
}

var _ actuator.Page = (*Page)(nil)

// ScrollBy runs the plugin's scroll action.
func (p *Page) ScrollBy(dy int) error {
	_, err := p.executor.Execute(context.Background(), p.plugin, Request{Action: ActionScroll, Dy: dy})
	return err
}

// SetIndicator runs the plugin's indicator action if it has one.
func (p *Page) SetIndicator(d gesture.Direction, visible bool) error {
	if !p.plugin.Manifest.Supports(ActionIndicator) {
		return nil
	}
	_, err := p.executor.Execute(context.Background(), p.plugin, Request{
		Action:    ActionIndicator,
		Direction: string(d),
		Visible:   visible,
	})
	return err
}
