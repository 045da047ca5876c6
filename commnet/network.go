// Package commnet is the relay network: it resolves the control path of
// every registered vessel to the nearest reachable home station.
package commnet

import (
	"fmt"
	"math"
	"sync"

	"github.com/got-is-bad-at-git/Kerbalism/core"
	"github.com/got-is-bad-at-git/Kerbalism/internal/logging"
	"github.com/got-is-bad-at-git/Kerbalism/model"
)

// Home is a ground station on the surface of a body.
type Home struct {
	Name  string
	Body  *model.Body
	Power float64
	// Offset is the station position relative to the body centre.
	Offset model.Vec3
	// MinElevation is the horizon mask in degrees.
	MinElevation float64
}

func (h *Home) position() model.Vec3 {
	if h.Body == nil {
		return h.Offset
	}
	return h.Body.Position.Add(h.Offset)
}

type vesselNode struct {
	vessel   core.Vessel
	position model.Vec3
	transmit float64
	relay    float64
}

type cachedConnection struct {
	epoch uint64
	conn  core.NetworkConnection
}

// Network implements core.NetworkTopology. Connections are computed lazily
// and reused until the next Advance.
type Network struct {
	mu sync.Mutex

	homes   []*Home
	vessels map[model.VesselID]*vesselNode
	order   []model.VesselID
	bodies  []*model.Body
	plasma  map[model.VesselID]bool

	epoch uint64
	cache map[model.VesselID]cachedConnection

	log logging.Logger
}

// NewNetwork constructs an empty network. bodies are used for occlusion.
func NewNetwork(bodies []*model.Body, log logging.Logger) *Network {
	if log == nil {
		log = logging.Noop()
	}
	return &Network{
		vessels: make(map[model.VesselID]*vesselNode),
		bodies:  bodies,
		plasma:  make(map[model.VesselID]bool),
		cache:   make(map[model.VesselID]cachedConnection),
		log:     log,
	}
}

// AddHome registers a ground station.
func (n *Network) AddHome(h *Home) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, existing := range n.homes {
		if existing.Name == h.Name {
			return fmt.Errorf("home station %q already exists", h.Name)
		}
	}
	if h.Power <= 0 {
		return fmt.Errorf("home station %q needs a positive power", h.Name)
	}
	n.homes = append(n.homes, h)
	n.invalidateLocked()
	return nil
}

// Register makes a vessel a network member.
func (n *Network) Register(v core.Vessel) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := v.ID()
	if _, exists := n.vessels[id]; exists {
		return fmt.Errorf("vessel %s already registered", id)
	}
	node := &vesselNode{vessel: v, position: v.Position()}
	node.transmit, node.relay = AntennaPowers(v.Antennas())
	n.vessels[id] = node
	n.order = append(n.order, id)
	n.invalidateLocked()
	return nil
}

// Unregister removes a vessel from the network.
func (n *Network) Unregister(id model.VesselID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.vessels[id]; !ok {
		return
	}
	delete(n.vessels, id)
	delete(n.plasma, id)
	for i, other := range n.order {
		if other == id {
			n.order = append(n.order[:i], n.order[i+1:]...)
			break
		}
	}
	n.invalidateLocked()
}

// SetPosition records the world position of a vessel for the next epoch.
func (n *Network) SetPosition(id model.VesselID, pos model.Vec3) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if node, ok := n.vessels[id]; ok {
		node.position = pos
	}
}

// SetPlasma flags a vessel as being in an entry plasma blackout.
func (n *Network) SetPlasma(id model.VesselID, inPlasma bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if inPlasma {
		n.plasma[id] = true
	} else {
		delete(n.plasma, id)
	}
}

// Advance starts a new epoch: antenna powers are re-read and every cached
// connection is dropped.
func (n *Network) Advance() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, node := range n.vessels {
		node.transmit, node.relay = AntennaPowers(node.vessel.Antennas())
	}
	n.invalidateLocked()
}

// Epoch returns the current topology epoch.
func (n *Network) Epoch() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.epoch
}

func (n *Network) invalidateLocked() {
	n.epoch++
	clear(n.cache)
}

// Connection implements core.NetworkTopology.
func (n *Network) Connection(v core.Vessel) (core.NetworkConnection, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := v.ID()
	if _, ok := n.vessels[id]; !ok {
		return core.NetworkConnection{}, false
	}
	if c, ok := n.cache[id]; ok && c.epoch == n.epoch {
		return c.conn, true
	}
	conn := n.computeLocked(id)
	n.cache[id] = cachedConnection{epoch: n.epoch, conn: conn}
	return conn, true
}

// ForceRefresh implements core.NetworkTopology by discarding the cached
// connection of v.
func (n *Network) ForceRefresh(v core.Vessel) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.cache, v.ID())
}

// IsInPlasmaBlackout implements core.NetworkTopology.
func (n *Network) IsInPlasmaBlackout(v core.Vessel) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.plasma[v.ID()]
}

// AntennaPowers sums the transmit power of every non-internal antenna and
// the relay power of relay antennas.
func AntennaPowers(antennas []model.Antenna) (transmit, relay float64) {
	for _, a := range antennas {
		switch a.Type {
		case model.AntennaDirect:
			transmit += a.TransmitPower
		case model.AntennaRelay:
			transmit += a.TransmitPower
			relay += a.RelayPower
		}
	}
	return transmit, relay
}

// graphNode is a vertex of the routing graph: either a vessel or a home.
type graphNode struct {
	relay core.RelayNode
	home  *Home
}

// computeLocked runs Dijkstra from the vessel on -ln(strength) edge weights,
// which maximises the product of hop strengths. Only the source may
// transmit without relay power and homes are terminal.
func (n *Network) computeLocked(src model.VesselID) core.NetworkConnection {
	if n.plasma[src] {
		return core.NetworkConnection{}
	}

	nodes := make([]graphNode, 0, len(n.order)+len(n.homes))
	srcIdx := -1
	for _, id := range n.order {
		node := n.vessels[id]
		if id != src && n.plasma[id] {
			continue
		}
		if id == src {
			srcIdx = len(nodes)
		}
		nodes = append(nodes, graphNode{relay: core.RelayNode{
			Name:          node.vessel.Name(),
			VesselID:      id,
			Position:      node.position,
			TransmitPower: node.transmit,
			RelayPower:    node.relay,
		}})
	}
	for _, h := range n.homes {
		nodes = append(nodes, graphNode{
			home: h,
			relay: core.RelayNode{
				Name:       h.Name,
				Home:       true,
				Position:   h.position(),
				RelayPower: h.Power,
			},
		})
	}
	if srcIdx < 0 {
		return core.NetworkConnection{}
	}

	dist := make([]float64, len(nodes))
	prev := make([]int, len(nodes))
	done := make([]bool, len(nodes))
	for i := range dist {
		dist[i] = math.Inf(1)
		prev[i] = -1
	}
	dist[srcIdx] = 0

	for {
		u := -1
		for i := range nodes {
			if !done[i] && !math.IsInf(dist[i], 1) && (u < 0 || dist[i] < dist[u]) {
				u = i
			}
		}
		if u < 0 {
			break
		}
		done[u] = true
		if nodes[u].home != nil {
			// First settled home is the best one.
			return n.buildConnection(nodes, prev, u)
		}
		if u != srcIdx && nodes[u].relay.RelayPower <= 0 {
			continue
		}
		for w := range nodes {
			if done[w] || w == u {
				continue
			}
			s := n.edgeStrength(nodes[u], nodes[w])
			if s <= 0 {
				continue
			}
			if alt := dist[u] - math.Log(s); alt < dist[w] {
				dist[w] = alt
				prev[w] = u
			}
		}
	}
	return core.NetworkConnection{}
}

func (n *Network) edgeStrength(from, to graphNode) float64 {
	tx := from.relay.TransmitPower
	if to.home != nil {
		tx += from.relay.RelayPower
	}
	a, b := from.relay.Position, to.relay.Position
	s := core.SignalStrength(a.DistanceTo(b), tx, to.relay.RelayPower)
	if s <= 0 {
		return 0
	}
	if to.home != nil {
		h := to.home
		if h.Body != nil {
			if core.ElevationDegrees(b, a, h.Body.Position) < h.MinElevation {
				return 0
			}
			if !core.LineOfSight(a, b, n.bodies, h.Body.Name) {
				return 0
			}
			return s
		}
	}
	if !core.LineOfSight(a, b, n.bodies) {
		return 0
	}
	return s
}

func (n *Network) buildConnection(nodes []graphNode, prev []int, home int) core.NetworkConnection {
	var path []int
	for i := home; i >= 0; i = prev[i] {
		path = append(path, i)
	}
	// Reverse path (currently [home, ..., src]).
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}

	conn := core.NetworkConnection{Connected: true, Strength: 1}
	for i := 0; i+1 < len(path); i++ {
		from, to := nodes[path[i]], nodes[path[i+1]]
		conn.Strength *= n.edgeStrength(from, to)
		conn.ControlPath = append(conn.ControlPath, core.RelayLink{Start: from.relay, End: to.relay})
	}
	return conn
}
