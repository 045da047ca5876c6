package model

// HabitatInfo aggregates the life-support view of a vessel. It is computed
// by an external collaborator and only stored on the snapshot.
type HabitatInfo struct {
	Volume        float64 // m^3
	Surface       float64 // m^2
	Pressure      float64 // normalised
	MaxPressure   float64
	Poisoning     float64
	Humidity      float64
	Shielding     float64
	LivingSpace   float64
	VolumePerCrew float64
	EVAs          uint

	FreeCapacity  float64
	TotalCapacity float64
}
