package core

import (
	"context"
	"math"

	"github.com/got-is-bad-at-git/Kerbalism/internal/format"
	"github.com/got-is-bad-at-git/Kerbalism/model"
)

// MinimumTransmitRate is the "can transmit" cutoff: 1 bit per second
// expressed in MB/s.
const MinimumTransmitRate = 1.0 / 1024.0 / 1024.0 / 8

const (
	targetNameRunes = 20
	hopNameRunes    = 35
)

// SignalStrength returns the strength of a link of the given length. It is
// 1 at zero distance, 0 at sqrt(txPower*rxPower) and beyond, with a smooth
// falloff in between.
func SignalStrength(distance, txPower, rxPower float64) float64 {
	maxRange := math.Sqrt(txPower * rxPower)
	if maxRange <= 0 || math.IsNaN(maxRange) {
		return 0
	}
	s := 1 - distance/maxRange
	if s < 0 {
		s = 0
	} else if s > 1 {
		s = 1
	}
	return (3 - 2*s) * s * s
}

// RelayRateSource returns the resolved rate of a relay vessel. ok is false
// when the id does not resolve to a live vessel.
type RelayRateSource interface {
	RelayRate(ctx context.Context, id model.VesselID) (rate float64, ok bool, err error)
}

// LinkBudget computes a vessel's connection status from its antennas and the
// network topology.
type LinkBudget struct {
	network NetworkTopology
	parts   PartFieldReader
	relays  RelayRateSource
}

// NewLinkBudget wires a link budget. relays is consulted for the first hop of
// indirect links; a nil source leaves the local rate uncapped.
func NewLinkBudget(network NetworkTopology, parts PartFieldReader, relays RelayRateSource) *LinkBudget {
	return &LinkBudget{network: network, parts: parts, relays: relays}
}

// Evaluate returns the connection status of v. The only error it surfaces
// comes from resolving the relay chain. underStorm does not affect the
// link; a storm is reported through Environment.Blackout.
func (lb *LinkBudget) Evaluate(ctx context.Context, v Vessel, powered, underStorm bool) (ConnectionStatus, error) {
	totals := AggregateAntennas(v, lb.parts)
	out := ConnectionStatus{Status: NoLink, EnergyCost: totals.EnergyCost}

	if !powered || lb.network == nil {
		return out, nil
	}
	if !v.Loaded() {
		lb.network.ForceRefresh(v)
	}
	conn, ok := lb.network.Connection(v)
	if !ok {
		return out, nil
	}
	if !conn.Connected || len(conn.ControlPath) == 0 {
		if lb.network.IsInPlasmaBlackout(v) {
			out.Status = PlasmaBlackout
		}
		return out, nil
	}

	first := conn.ControlPath[0]
	out.Linked = true
	out.Status = IndirectLink
	if first.End.Home {
		out.Status = DirectLink
	}
	out.Strength = clamp01(conn.Strength)
	out.Rate = totals.Rate * out.Strength
	out.TargetName = format.Ellipsis(first.End.Name, targetNameRunes)

	if out.Status == IndirectLink && lb.relays != nil {
		relayRate, found, err := lb.relays.RelayRate(ctx, first.End.VesselID)
		if err != nil {
			return ConnectionStatus{Status: NoLink, EnergyCost: totals.EnergyCost}, err
		}
		if !found {
			return ConnectionStatus{Status: NoLink, EnergyCost: totals.EnergyCost}, nil
		}
		out.Rate = math.Min(out.Rate, relayRate)
	}

	out.Hops = make([]HopDescriptor, 0, len(conn.ControlPath))
	for _, link := range conn.ControlPath {
		out.Hops = append(out.Hops, DescribeHop(link))
	}
	return out, nil
}

// DescribeHop builds the display view of one control-path link.
func DescribeHop(l RelayLink) HopDescriptor {
	distance := l.Distance()
	tx := l.Start.TransmitPower
	if l.End.Home {
		tx += l.Start.RelayPower
	}
	strength := SignalStrength(distance, tx, l.End.RelayPower)
	maxDistance := math.Sqrt((l.Start.TransmitPower + l.Start.RelayPower) * l.End.RelayPower)

	return HopDescriptor{
		Name:         format.Ellipsis(l.End.Name, hopNameRunes),
		Strength:     strength,
		StrengthText: format.CeilPercent(strength),
		Distance:     distance,
		MaxDistance:  maxDistance,
		Tooltip:      "Distance: " + format.Range(distance) + "\nMax Distance: " + format.Range(maxDistance),
	}
}

func clamp01(x float64) float64 {
	switch {
	case math.IsNaN(x), x < 0:
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}
