// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"

	"github.com/utxod/utxod/app/services/node/handlers/v1/private"
	"github.com/utxod/utxod/app/services/node/handlers/v1/public"
	"github.com/utxod/utxod/foundation/blockchain/state"
	"github.com/utxod/utxod/foundation/events"
	"github.com/utxod/utxod/foundation/web"
	"go.uber.org/zap"
)

const version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log   *zap.SugaredLogger
	State *state.State
	Evts  *events.Events
}

// PublicRoutes binds all the version 1 public routes.
func PublicRoutes(app *web.App, cfg Config) {
	pbl := public.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
		Evts:  cfg.Evts,
	}

	app.Handle(http.MethodGet, version, "/events", pbl.Events)
	app.Handle(http.MethodGet, version, "/genesis", pbl.Genesis)
	app.Handle(http.MethodGet, version, "/tip", pbl.Tip)
	app.Handle(http.MethodGet, version, "/coin/:txid/:vout", pbl.Coin)
	app.Handle(http.MethodGet, version, "/cache/stats", pbl.CacheStats)
	app.Handle(http.MethodGet, version, "/store/stats", pbl.StoreStats)
}

// PrivateRoutes binds all the version 1 private routes.
func PrivateRoutes(app *web.App, cfg Config) {
	prv := private.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
	}

	app.Handle(http.MethodPost, version, "/node/headers", prv.Headers)
	app.Handle(http.MethodPost, version, "/node/peers", prv.AddPeer)
	app.Handle(http.MethodPost, version, "/node/flush", prv.FlushCoins)
	app.Handle(http.MethodPost, version, "/node/sync", prv.SyncCoins)
	app.Handle(http.MethodPost, version, "/node/uncache", prv.Uncache)
	app.Handle(http.MethodGet, version, "/node/status", prv.Status)
}
