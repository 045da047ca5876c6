package commnet

import (
	"testing"

	"github.com/got-is-bad-at-git/Kerbalism/core"
	"github.com/got-is-bad-at-git/Kerbalism/model"
)

var kerbin = &model.Body{Name: "Kerbin", Index: 1, Radius: 600_000}

type testVessel struct {
	id       model.VesselID
	name     string
	pos      model.Vec3
	antennas []model.Antenna
}

func newTestVessel(name string, pos model.Vec3, antennas ...model.Antenna) *testVessel {
	return &testVessel{id: model.NewVesselID(), name: name, pos: pos, antennas: antennas}
}

func (v *testVessel) ID() model.VesselID        { return v.id }
func (v *testVessel) Name() string              { return v.name }
func (v *testVessel) Kind() model.VesselKind    { return model.KindShip }
func (v *testVessel) Loaded() bool              { return true }
func (v *testVessel) IsRescue() bool            { return false }
func (v *testVessel) IsDeadEVA() bool           { return false }
func (v *testVessel) Position() model.Vec3      { return v.pos }
func (v *testVessel) Velocity() model.Vec3      { return model.Vec3{} }
func (v *testVessel) MainBody() *model.Body     { return kerbin }
func (v *testVessel) Altitude() float64         { return v.pos.Norm() - kerbin.Radius }
func (v *testVessel) Landed() bool              { return false }
func (v *testVessel) Antennas() []model.Antenna { return v.antennas }

var _ core.Vessel = (*testVessel)(nil)
var _ core.NetworkTopology = (*Network)(nil)

func direct() model.Antenna {
	return model.Antenna{PartID: "dish", Type: model.AntennaDirect, DataRate: 1, TransmitPower: 5e5}
}

func relay() model.Antenna {
	return model.Antenna{PartID: "relay", Type: model.AntennaRelay, DataRate: 1, TransmitPower: 1e9, RelayPower: 1e9}
}

func newTestNetwork(t *testing.T) *Network {
	t.Helper()
	n := NewNetwork([]*model.Body{kerbin}, nil)
	if err := n.AddHome(&Home{Name: "KSC", Body: kerbin, Power: 2e9, Offset: model.Vec3{X: 600_000}}); err != nil {
		t.Fatalf("AddHome: %v", err)
	}
	return n
}

func TestDirectLinkToHome(t *testing.T) {
	n := newTestNetwork(t)
	v := newTestVessel("Probe", model.Vec3{X: 700_000}, direct())
	if err := n.Register(v); err != nil {
		t.Fatalf("Register: %v", err)
	}

	conn, ok := n.Connection(v)
	if !ok || !conn.Connected {
		t.Fatalf("Connection = %+v ok=%v, want connected", conn, ok)
	}
	if len(conn.ControlPath) != 1 {
		t.Fatalf("control path length = %d, want 1", len(conn.ControlPath))
	}
	hop := conn.ControlPath[0]
	if hop.Start.VesselID != v.ID() || !hop.End.Home || hop.End.Name != "KSC" {
		t.Fatalf("hop = %+v, want Probe -> KSC", hop)
	}
	if conn.Strength <= 0 || conn.Strength > 1 {
		t.Fatalf("Strength = %v, want (0,1]", conn.Strength)
	}
}

func TestRelayChainAroundOccludingBody(t *testing.T) {
	n := newTestNetwork(t)
	probe := newTestVessel("Probe", model.Vec3{X: -700_000, Y: 500_000}, direct())
	sat := newTestVessel("Relay", model.Vec3{X: 2_000_000, Y: 2_000_000}, relay())
	for _, v := range []*testVessel{probe, sat} {
		if err := n.Register(v); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	conn, _ := n.Connection(probe)
	if !conn.Connected {
		t.Fatalf("probe not connected")
	}
	if len(conn.ControlPath) != 2 {
		t.Fatalf("control path length = %d, want 2", len(conn.ControlPath))
	}
	if got := conn.ControlPath[0].End.VesselID; got != sat.ID() {
		t.Fatalf("first hop ends at %v, want relay %v", got, sat.ID())
	}
	if !conn.ControlPath[1].End.Home {
		t.Fatalf("last hop should end at a home")
	}

	want := 1.0
	for _, l := range conn.ControlPath {
		tx := l.Start.TransmitPower
		if l.End.Home {
			tx += l.Start.RelayPower
		}
		want *= core.SignalStrength(l.Distance(), tx, l.End.RelayPower)
	}
	if diff := conn.Strength - want; diff > 1e-12 || diff < -1e-12 {
		t.Fatalf("Strength = %v, want product of hops %v", conn.Strength, want)
	}

	// Nodes must not repeat along the path.
	seen := map[string]bool{}
	for _, l := range conn.ControlPath {
		if seen[l.Start.Name] {
			t.Fatalf("node %q visited twice", l.Start.Name)
		}
		seen[l.Start.Name] = true
	}
}

func TestNonRelayVesselDoesNotForward(t *testing.T) {
	n := newTestNetwork(t)
	probe := newTestVessel("Probe", model.Vec3{X: -700_000, Y: 500_000}, direct())
	other := newTestVessel("Lander", model.Vec3{X: 2_000_000, Y: 2_000_000}, direct())
	_ = n.Register(probe)
	_ = n.Register(other)

	if conn, _ := n.Connection(probe); conn.Connected {
		t.Fatalf("probe connected through a vessel without relay power: %+v", conn)
	}
	if conn, _ := n.Connection(other); !conn.Connected {
		t.Fatalf("lander should reach the home directly")
	}
}

func TestOutOfRange(t *testing.T) {
	n := newTestNetwork(t)
	v := newTestVessel("Far", model.Vec3{X: 1e9}, direct())
	_ = n.Register(v)
	if conn, _ := n.Connection(v); conn.Connected {
		t.Fatalf("Connection = %+v, want disconnected beyond max range", conn)
	}
}

func TestMinElevationMasksHome(t *testing.T) {
	n := NewNetwork([]*model.Body{kerbin}, nil)
	_ = n.AddHome(&Home{Name: "KSC", Body: kerbin, Power: 2e9, Offset: model.Vec3{X: 600_000}, MinElevation: 45})
	// Roughly 20 degrees above the horizon.
	v := newTestVessel("Low", model.Vec3{X: 900_000, Y: 800_000}, direct())
	_ = n.Register(v)
	if conn, _ := n.Connection(v); conn.Connected {
		t.Fatalf("vessel below elevation mask should not connect")
	}
}

func TestUnregisteredVessel(t *testing.T) {
	n := newTestNetwork(t)
	v := newTestVessel("Ghost", model.Vec3{X: 700_000}, direct())
	if _, ok := n.Connection(v); ok {
		t.Fatalf("Connection ok = true for unregistered vessel")
	}
	_ = n.Register(v)
	n.Unregister(v.ID())
	if _, ok := n.Connection(v); ok {
		t.Fatalf("Connection ok = true after Unregister")
	}
}

func TestPlasmaBlackout(t *testing.T) {
	n := newTestNetwork(t)
	v := newTestVessel("Capsule", model.Vec3{X: 700_000}, direct())
	_ = n.Register(v)

	n.SetPlasma(v.ID(), true)
	n.Advance()
	if !n.IsInPlasmaBlackout(v) {
		t.Fatalf("IsInPlasmaBlackout = false, want true")
	}
	if conn, _ := n.Connection(v); conn.Connected {
		t.Fatalf("vessel in plasma should not be connected")
	}

	n.SetPlasma(v.ID(), false)
	n.Advance()
	if n.IsInPlasmaBlackout(v) {
		t.Fatalf("IsInPlasmaBlackout = true after clearing")
	}
	if conn, _ := n.Connection(v); !conn.Connected {
		t.Fatalf("vessel should reconnect once plasma clears")
	}
}

func TestConnectionCachedUntilRefresh(t *testing.T) {
	n := newTestNetwork(t)
	v := newTestVessel("Probe", model.Vec3{X: 700_000}, direct())
	_ = n.Register(v)

	if conn, _ := n.Connection(v); !conn.Connected {
		t.Fatalf("expected initial connection")
	}

	n.SetPosition(v.ID(), model.Vec3{X: -700_000})
	if conn, _ := n.Connection(v); !conn.Connected {
		t.Fatalf("cached connection should survive until refresh")
	}

	n.ForceRefresh(v)
	if conn, _ := n.Connection(v); conn.Connected {
		t.Fatalf("ForceRefresh should recompute from the new position")
	}

	n.SetPosition(v.ID(), model.Vec3{X: 700_000})
	before := n.Epoch()
	n.Advance()
	if n.Epoch() == before {
		t.Fatalf("Advance did not bump the epoch")
	}
	if conn, _ := n.Connection(v); !conn.Connected {
		t.Fatalf("Advance should recompute connections")
	}
}

func TestAddHomeValidation(t *testing.T) {
	n := newTestNetwork(t)
	if err := n.AddHome(&Home{Name: "KSC", Power: 1}); err == nil {
		t.Fatalf("AddHome duplicate error = nil")
	}
	if err := n.AddHome(&Home{Name: "Island", Power: 0}); err == nil {
		t.Fatalf("AddHome zero power error = nil")
	}
}

func TestAntennaPowers(t *testing.T) {
	tx, rl := AntennaPowers([]model.Antenna{
		direct(),
		relay(),
		{Type: model.AntennaInternal, TransmitPower: 99, RelayPower: 99},
	})
	if tx != 5e5+1e9 {
		t.Fatalf("transmit = %v, want %v", tx, 5e5+1e9)
	}
	if rl != 1e9 {
		t.Fatalf("relay = %v, want 1e9", rl)
	}
}
