package core

import "github.com/got-is-bad-at-git/Kerbalism/model"

// AntennaTotals is the aggregated contribution of a vessel's antennas.
type AntennaTotals struct {
	Rate       float64
	EnergyCost float64
}

// AggregateAntennas sums the rate and energy cost of every active antenna.
// Internal antennas only draw energy. parts may be nil, in which case a
// dormant vessel is treated as having no persisted deployment data.
func AggregateAntennas(v Vessel, parts PartFieldReader) AntennaTotals {
	var out AntennaTotals
	loaded := v.Loaded()
	for _, a := range v.Antennas() {
		cost := a.DataResourceCost * a.DataRate
		if a.Type == model.AntennaInternal {
			out.EnergyCost += cost
			continue
		}

		var active bool
		if loaded {
			active = liveAntennaActive(a)
		} else {
			active = persistedAntennaActive(v.ID(), a.PartID, parts)
		}
		if !active {
			continue
		}
		out.Rate += a.DataRate
		out.EnergyCost += cost
	}
	return out
}

func liveAntennaActive(a model.Antenna) bool {
	switch a.Deployer {
	case model.DeployerDeployable:
		return a.DeployState == model.DeployExtended
	case model.DeployerAnimated:
		return a.AnimSpeed > 0
	default:
		return true
	}
}

func persistedAntennaActive(id model.VesselID, partID string, parts PartFieldReader) bool {
	if parts == nil {
		return true
	}
	m, ok := parts.FindModule(id, partID, model.ModuleDeployableAntenna)
	if !ok {
		m, ok = parts.FindModule(id, partID, model.ModuleAnimateGeneric)
	}
	if !ok {
		return true
	}
	if state, ok := m.GetString(model.FieldDeployState); ok && state == string(model.DeployExtended) {
		return true
	}
	speed, ok := m.GetFloat(model.FieldAnimSpeed)
	return ok && speed > 0
}
