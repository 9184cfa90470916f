package resolve

import "kindred/internal/domain"

// Confidence bands per tier. These are contracts, not tunables: downstream
// consumers key alerting thresholds off them, and the reconciler uses the
// floors as attach thresholds. Tests assert every tier reports inside its
// band.
const (
	FirstPartyFloor = 0.95
	FirstPartyCeil  = 1.0

	ExternalFloor = 0.70
	ExternalCeil  = 0.90

	NameZipFloor = 0.80
	NameZipCeil  = 0.95

	NameCityFloor = 0.60
	NameCityCeil  = 0.75

	FuzzyFloor = 0.40
	FuzzyCeil  = 0.55

	FingerprintFloor = 0.30
	FingerprintCeil  = 0.50

	GeoFloor = 0.05
	GeoCeil  = 0.20
)

var floors = map[domain.Method]float64{
	domain.MethodFirstParty:     FirstPartyFloor,
	domain.MethodExternalLookup: ExternalFloor,
	domain.MethodNameZip:        NameZipFloor,
	domain.MethodNameCity:       NameCityFloor,
	domain.MethodFuzzy:          FuzzyFloor,
	domain.MethodFingerprint:    FingerprintFloor,
	domain.MethodGeoRegion:      GeoFloor,
}

// Floor returns the confidence floor for a method tag; zero for
// unresolved.
func Floor(method domain.Method) float64 {
	return floors[method]
}
