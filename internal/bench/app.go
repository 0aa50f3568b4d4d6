package bench

import (
	"arc-framework/benchd/internal/launcher"
)

const appName = "bench"

// App is the boot component of benchd. Its children are discovered by the
// runtime.
type App struct {
	children []launcher.Component
}

var _ launcher.Parent = (*App)(nil)

// NewApp returns an App over the given child components.
func NewApp(children ...launcher.Component) *App {
	return &App{children: children}
}

func (a *App) Name() string { return appName }

func (a *App) Components() []launcher.Component {
	return append([]launcher.Component(nil), a.children...)
}
