// Package domain holds the deterministic detectors and vocabularies used to
// profile an engineering question before any model is consulted.
package domain

// Domain is the engineering discipline a question belongs to.
type Domain string

const (
	Hydraulic     Domain = "hydraulic"
	Structural    Domain = "structural"
	Electrical    Domain = "electrical"
	Mechanical    Domain = "mechanical"
	Geotechnical  Domain = "geotechnical"
	Environmental Domain = "environmental"
	General       Domain = "general"
)

var domainLabels = map[Domain]string{
	Hydraulic:     "hydraulic engineering",
	Structural:    "structural engineering",
	Electrical:    "electrical engineering",
	Mechanical:    "mechanical engineering",
	Geotechnical:  "geotechnical engineering",
	Environmental: "environmental engineering",
	General:       "engineering",
}

func (d Domain) Label() string {
	if l, ok := domainLabels[d]; ok {
		return l
	}
	return domainLabels[General]
}

func (d Domain) String() string {
	return string(d)
}

// CalculationType names a recognizable calculation a question asks for.
type CalculationType string

const (
	NoCalculation   CalculationType = ""
	PipeSizing      CalculationType = "pipe_sizing"
	HeadLoss        CalculationType = "head_loss"
	FlowRate        CalculationType = "flow_rate"
	PumpPower       CalculationType = "pump_power"
	TankSizing      CalculationType = "tank_sizing"
	WaterHammer     CalculationType = "water_hammer"
	OrificeFlow     CalculationType = "orifice_flow"
	BeamDesign      CalculationType = "beam_design"
	LoadCalculation CalculationType = "load_calculation"
	CableSizing     CalculationType = "cable_sizing"
	VoltageDrop     CalculationType = "voltage_drop"
	BearingCapacity CalculationType = "bearing_capacity"
)

var calculationLabels = map[CalculationType]string{
	PipeSizing:      "pipe sizing",
	HeadLoss:        "head loss",
	FlowRate:        "flow rate",
	PumpPower:       "pump power",
	TankSizing:      "tank sizing",
	WaterHammer:     "water hammer",
	OrificeFlow:     "orifice flow",
	BeamDesign:      "beam design",
	LoadCalculation: "load calculation",
	CableSizing:     "cable sizing",
	VoltageDrop:     "voltage drop",
	BearingCapacity: "bearing capacity",
}

func (c CalculationType) Label() string {
	return calculationLabels[c]
}

func (c CalculationType) String() string {
	return string(c)
}

// Profile is the result of running every detector over one question.
type Profile struct {
	Language        string
	Domain          Domain
	CalculationType CalculationType
	Standards       []string
	Region          string
}

// Detect profiles a question. It is pure and deterministic.
func Detect(question string) Profile {
	return Profile{
		Language:        DetectLanguage(question),
		Domain:          DetectDomain(question),
		CalculationType: DetectCalculationType(question),
		Standards:       DetectStandards(question),
		Region:          DetectRegion(question),
	}
}
