package orbit

import (
	"math"
	"testing"
	"time"

	"github.com/got-is-bad-at-git/Kerbalism/model"
)

const (
	kerbinMu     = 3.5316e12
	kerbinRadius = 600_000.0

	issLine1 = "1 25544U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9990"
	issLine2 = "2 25544  51.6459 115.9059 0001817  61.3028  35.9198 15.49370953257760"
)

func TestFixedNeverMoves(t *testing.T) {
	f := Fixed{Offset: model.Vec3{X: 1, Y: 2, Z: 3}}
	t1 := time.Now().UTC()
	p1, v1 := f.StateAt(t1)
	p2, _ := f.StateAt(t1.Add(time.Hour))
	if p1 != p2 || v1 != (model.Vec3{}) {
		t.Fatalf("fixed state moved: %+v -> %+v", p1, p2)
	}
}

// We don't assert exact orbital values (those belong to go-satellite);
// we just ensure that positions are plausible and change over time.
func TestSGP4ChangesOverTime(t *testing.T) {
	s := NewSGP4(issLine1, issLine2)
	t1 := time.Date(2021, 10, 2, 0, 0, 0, 0, time.UTC)

	p1, v1 := s.StateAt(t1)
	p2, _ := s.StateAt(t1.Add(5 * time.Minute))
	if p1 == p2 {
		t.Fatalf("expected orbital position to change over time, got %+v at both times", p1)
	}
	if r := p1.Norm(); r < 6.5e6 || r > 7.0e6 {
		t.Fatalf("ISS radius = %v m, want roughly 6.8e6", r)
	}
	if speed := v1.Norm(); speed < 7_000 || speed > 8_000 {
		t.Fatalf("ISS speed = %v m/s, want roughly 7.7e3", speed)
	}
	if g := s.GroundPosition(t1); math.Abs(g.Norm()-p1.Norm()) > 1 {
		t.Fatalf("ground position radius %v differs from inertial %v", g.Norm(), p1.Norm())
	}
}

func TestCircularMatchesPeriod(t *testing.T) {
	c := Circular{Radius: 700_000, Mu: kerbinMu, Epoch: time.Unix(0, 0)}
	pos, vel := c.StateAt(c.Epoch)

	want := 2 * math.Pi * math.Sqrt(math.Pow(700_000, 3)/kerbinMu)
	got := OrbitalPeriod(pos, vel, kerbinMu)
	if math.Abs(got-want)/want > 1e-9 {
		t.Fatalf("OrbitalPeriod = %v, want %v", got, want)
	}

	// One full period brings the vessel back to its start.
	end, _ := c.StateAt(c.Epoch.Add(time.Duration(want * float64(time.Second))))
	if d := end.DistanceTo(pos); d > 1 {
		t.Fatalf("position after one period is %v m away", d)
	}
}

func TestOpenOrbit(t *testing.T) {
	pos := model.Vec3{X: 700_000}
	vel := model.Vec3{Y: 10_000} // above escape velocity
	if got := OrbitalPeriod(pos, vel, kerbinMu); !math.IsInf(got, 1) {
		t.Fatalf("OrbitalPeriod = %v, want +Inf", got)
	}
	if got := ShadowPeriod(pos, vel, kerbinMu, kerbinRadius); got != 0 {
		t.Fatalf("ShadowPeriod = %v, want 0", got)
	}
}

func TestShadowPeriod(t *testing.T) {
	c := Circular{Radius: 2 * kerbinRadius, Mu: kerbinMu}
	pos, vel := c.StateAt(c.Epoch)
	period := OrbitalPeriod(pos, vel, kerbinMu)

	// asin(1/2) = pi/6, so a sixth of the orbit is in shadow.
	got := ShadowPeriod(pos, vel, kerbinMu, kerbinRadius)
	if math.Abs(got-period/6) > 1e-6 {
		t.Fatalf("ShadowPeriod = %v, want %v", got, period/6)
	}
}

type capturingUpdater struct {
	positions map[model.VesselID]model.Vec3
	calls     map[model.VesselID]int
}

func (c *capturingUpdater) UpdateState(id model.VesselID, pos, _ model.Vec3) error {
	if c.positions == nil {
		c.positions = make(map[model.VesselID]model.Vec3)
		c.calls = make(map[model.VesselID]int)
	}
	c.positions[id] = pos
	c.calls[id]++
	return nil
}

func TestTrackerAddUpdateAndRemove(t *testing.T) {
	sat := model.NewVesselID()
	ground := model.NewVesselID()
	updater := &capturingUpdater{}
	tr := NewTracker(updater)

	if err := tr.Add(sat, NewSGP4(issLine1, issLine2)); err != nil {
		t.Fatalf("Add sat: %v", err)
	}
	if err := tr.Add(ground, Fixed{Offset: model.Vec3{X: kerbinRadius}}); err != nil {
		t.Fatalf("Add ground: %v", err)
	}
	if err := tr.Add(sat, Fixed{}); err == nil {
		t.Fatalf("expected duplicate Add error")
	}

	t1 := time.Date(2021, 10, 2, 0, 0, 0, 0, time.UTC)
	if err := tr.UpdatePositions(t1); err != nil {
		t.Fatalf("UpdatePositions: %v", err)
	}
	firstSat := updater.positions[sat]
	if err := tr.UpdatePositions(t1.Add(5 * time.Minute)); err != nil {
		t.Fatalf("UpdatePositions: %v", err)
	}
	if updater.positions[sat] == firstSat {
		t.Fatalf("expected satellite position to change")
	}
	if updater.positions[ground] != (model.Vec3{X: kerbinRadius}) {
		t.Fatalf("ground position moved: %+v", updater.positions[ground])
	}

	if err := tr.Remove(ground); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	calls := updater.calls[ground]
	_ = tr.UpdatePositions(t1.Add(10 * time.Minute))
	if updater.calls[ground] != calls {
		t.Fatalf("removed vessel was updated")
	}
}
