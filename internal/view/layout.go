package view

import "github.com/izzyreal/qwatch/internal/protocol"

// DashboardIDs lists every element of the standard dashboard markup.
func DashboardIDs() []string {
	ids := make([]string, 0, len(protocol.QueueStates)+4)
	for _, s := range protocol.QueueStates {
		ids = append(ids, CounterID(s))
	}
	return append(ids, AvgProcessingTime, TotalProcessed, SuccessRate, ServerVersion)
}

// NewDashboardBoard returns a Board with every standard element present.
func NewDashboardBoard() *Board {
	return NewBoard(DashboardIDs()...)
}
