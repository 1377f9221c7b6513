package approval

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/moorebrett0/agentcore/internal/events"
)

// ResolveSubject carries operator decisions published by remote front ends.
const ResolveSubject = events.SubjectPrefix + ".approvals.resolve"

// Resolution is the wire form of an operator decision.
type Resolution struct {
	ID       string `json:"id"`
	Approved bool   `json:"approved"`
	Note     string `json:"note,omitempty"`
}

// Resolver is satisfied by *Gate.
type Resolver interface {
	Resolve(id string, approved bool, note string) bool
}

// ListenNATS feeds resolutions from ResolveSubject into r. If the message has
// a reply subject, the reply says whether the request was still pending.
func ListenNATS(nc *nats.Conn, r Resolver) (*nats.Subscription, error) {
	sub, err := nc.Subscribe(ResolveSubject, func(m *nats.Msg) {
		var res Resolution
		if err := json.Unmarshal(m.Data, &res); err != nil || res.ID == "" {
			slog.Warn("approval: bad resolution message", "err", err)
			return
		}
		ok := r.Resolve(res.ID, res.Approved, res.Note)
		if m.Reply != "" {
			_ = m.Respond([]byte(fmt.Sprintf(`{"accepted":%t}`, ok)))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", ResolveSubject, err)
	}
	return sub, nil
}
