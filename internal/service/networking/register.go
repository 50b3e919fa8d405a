package networking

import (
	"google.golang.org/grpc"

	"github.com/oggyb/event-network/internal/app"
	"github.com/oggyb/event-network/internal/matching"
)

// Registrar ties the Networking service into the gRPC server
type Registrar struct {
	appCtx *app.AppContext
	job    *matching.Job
}

// NewRegistrar creates a new Registrar for the Networking service
func NewRegistrar(appCtx *app.AppContext, job *matching.Job) *Registrar {
	return &Registrar{appCtx: appCtx, job: job}
}

// Register attaches the Networking service implementation to the gRPC server
func (r *Registrar) Register(s *grpc.Server) {
	RegisterNetworkingServer(s, NewNetworkingService(r.appCtx, r.job))
}
