package server

import (
	"context"
	"net"

	"github.com/gin-gonic/gin"
)

// Info describes a started runtime. It is passed to Starter hooks.
type Info struct {
	Addr     net.Addr
	PoolSize int
	Root     string
	Args     []string
}

// Mounter is implemented by components that register routes.
type Mounter interface {
	Mount(r gin.IRouter)
}

// Starter is implemented by components that run once the listener is bound.
// An error aborts startup.
type Starter interface {
	OnStart(ctx context.Context, info Info) error
}

// Stopper is implemented by components that release resources on shutdown.
type Stopper interface {
	OnStop(ctx context.Context) error
}
