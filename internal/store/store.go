// Package store holds the benchmark data model and the World/Fortune
// stores behind the bench routes.
package store

import (
	"context"

	"arc-framework/benchd/internal/health"
)

// World is a row of the world table.
type World struct {
	ID           int32 `json:"id"`
	RandomNumber int32 `json:"randomNumber"`
}

// Fortune is a row of the fortune table.
type Fortune struct {
	ID      int32  `json:"id"`
	Message string `json:"message"`
}

// Store is the storage engine behind one /{engine}/… route group.
type Store interface {
	FindWorlds(ctx context.Context, ids []int32) ([]World, error)
	FindCachedWorlds(ctx context.Context, ids []int32) ([]World, error)
	ReplaceWorlds(ctx context.Context, worlds []World) error
	FindAllFortunes(ctx context.Context) ([]Fortune, error)
	Probe(ctx context.Context) health.ProbeResult
}

// Fortunes is the canonical fortune table content.
var Fortunes = []Fortune{
	{ID: 1, Message: "fortune: No such file or directory"},
	{ID: 2, Message: "A computer scientist is someone who fixes things that aren't broken."},
	{ID: 3, Message: "After enough decimal places, nobody gives a damn."},
	{ID: 4, Message: "A bad random number generator: 1, 1, 1, 1, 1, 4.33e+67, 1, 1, 1"},
	{ID: 5, Message: "A computer program does what you tell it to do, not what you want it to do."},
	{ID: 6, Message: "Emacs is a nice operating system, but I prefer UNIX. — Tom Christaensen"},
	{ID: 7, Message: "Any program that runs right is obsolete."},
	{ID: 8, Message: "A list is only as strong as its weakest link. — Donald Knuth"},
	{ID: 9, Message: "Feature: A bug with seniority."},
	{ID: 10, Message: "Computers make very fast, very accurate mistakes."},
	{ID: 11, Message: `<script>alert("This should not be displayed in a browser alert box.");</script>`},
	{ID: 12, Message: "フレームワークのベンチマーク"},
}
