package hub

import (
	"NeuroBot/internal/model"
)

// DispatchSnapshotter reports the AI queue state; *dispatch.Queue
// satisfies it.
type DispatchSnapshotter interface {
	Snapshot() model.DispatchStats
}

// MonitorService provides methods to gather hub statistics
type MonitorService struct {
	hub      *Hub
	dispatch DispatchSnapshotter
}

// NewMonitorService creates a new monitor service
func NewMonitorService(hub *Hub, dispatch DispatchSnapshotter) *MonitorService {
	return &MonitorService{hub: hub, dispatch: dispatch}
}

// GetStats gathers and returns all hub statistics
func (ms *MonitorService) GetStats() model.MonitorResponse {
	connectionStats := ms.getConnectionStats()
	clients := ms.getClientList()

	var dispatchStats model.DispatchStats
	if ms.dispatch != nil {
		dispatchStats = ms.dispatch.Snapshot()
	}

	// Determine overall health status
	status := "healthy"
	if connectionStats.TotalConnections == 0 {
		status = "idle"
	}

	return model.MonitorResponse{
		Status:      status,
		Connections: connectionStats,
		Dispatch:    dispatchStats,
		Clients:     clients,
	}
}

func (ms *MonitorService) getConnectionStats() model.ConnectionStats {
	users, connections := ms.hub.registry.Count()
	return model.ConnectionStats{
		TotalConnections: connections,
		TotalOnline:      users,
	}
}

// getClientList returns every online user with their connection ids
func (ms *MonitorService) getClientList() []model.ClientInfo {
	online := ms.hub.registry.OnlineUsers()
	clients := make([]model.ClientInfo, 0, len(online))

	for _, userID := range online {
		conns := ms.hub.registry.ConnectionsFor(userID)
		ids := make([]string, 0, len(conns))
		for _, c := range conns {
			ids = append(ids, c.ID())
		}
		clients = append(clients, model.ClientInfo{UserID: userID, ConnectionIDs: ids})
	}

	return clients
}
