package core

import (
	"math"

	"github.com/got-is-bad-at-git/Kerbalism/model"
)

// SegmentClearsSphere reports whether the straight segment between p1 and p2
// stays outside the sphere of the given centre and radius. Positions are
// world-frame metres.
func SegmentClearsSphere(p1, p2, centre model.Vec3, radius float64) bool {
	a := p1.Sub(centre)
	v := p2.Sub(p1)
	vv := v.Dot(v)
	if vv == 0 {
		// Same point: clear only if it is outside the sphere.
		return a.Dot(a) > radius*radius
	}

	// Closest point on the segment to the centre. t minimises |a + t v|^2.
	t := -a.Dot(v) / vv
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	closest := a.Add(v.Scale(t))
	return closest.Dot(closest) > radius*radius
}

// LineOfSight reports whether no body in bodies occludes the segment p1-p2.
// Bodies named in skip are ignored, which lets callers exclude the body a
// ground station sits on.
func LineOfSight(p1, p2 model.Vec3, bodies []*model.Body, skip ...string) bool {
	for _, b := range bodies {
		if b == nil || containsName(skip, b.Name) {
			continue
		}
		if !SegmentClearsSphere(p1, p2, b.Position, b.Radius) {
			return false
		}
	}
	return true
}

// ElevationDegrees returns the elevation of target as seen from an observer
// on the surface of a body centred at centre. 0 is the geometric horizon and
// 90 is overhead.
func ElevationDegrees(observer, target, centre model.Vec3) float64 {
	v := target.Sub(observer)
	vNorm := v.Norm()
	if vNorm == 0 {
		return 90
	}
	up := observer.Sub(centre)
	r := up.Norm()
	if r == 0 {
		return 90
	}

	cosGamma := v.Dot(up) / (vNorm * r)
	if cosGamma > 1 {
		cosGamma = 1
	} else if cosGamma < -1 {
		cosGamma = -1
	}
	return 90.0 - math.Acos(cosGamma)*180.0/math.Pi
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
