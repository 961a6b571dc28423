package domain

// keywordPack lists lowercase keywords per language.
type keywordPack struct {
	en []string
	es []string
}

func (p keywordPack) all() []string {
	out := make([]string, 0, len(p.en)+len(p.es))
	out = append(out, p.en...)
	return append(out, p.es...)
}

type domainRule struct {
	domain Domain
	pack   keywordPack
}

// domainRules are evaluated in order; the first match wins.
var domainRules = []domainRule{
	{Hydraulic, keywordPack{
		en: []string{
			"pipe", "pipeline", "flow", "head loss", "pump", "water hammer", "hydraulic",
			"darcy", "hazen", "manning", "orifice", "reservoir", "tank", "valve", "pressure",
		},
		es: []string{
			"tubería", "tuberia", "caudal", "pérdida de carga", "perdida de carga", "bomba",
			"golpe de ariete", "hidráulica", "hidráulico", "hidraulica", "tanque", "depósito", "válvula", "presión",
		},
	}},
	{Structural, keywordPack{
		en: []string{"beam", "column", "slab", "truss", "rebar", "reinforced concrete", "steel frame", "deflection", "bending moment"},
		es: []string{"viga", "columna", "losa", "armadura", "hormigón armado", "concreto armado", "flecha", "momento flector"},
	}},
	{Electrical, keywordPack{
		en: []string{"voltage", "cable", "circuit", "breaker", "transformer", "electric current", "amperage", "ampacity", "grounding"},
		es: []string{"tensión", "voltaje", "cable", "circuito", "interruptor", "transformador", "corriente", "puesta a tierra"},
	}},
	{Geotechnical, keywordPack{
		en: []string{"soil", "foundation", "bearing capacity", "settlement", "retaining wall", "pile", "slope stability"},
		es: []string{"suelo", "cimentación", "capacidad portante", "asentamiento", "muro de contención", "pilote", "talud"},
	}},
	{Mechanical, keywordPack{
		en: []string{"gear", "shaft", "bearing", "hvac", "heat exchanger", "compressor", "torque"},
		es: []string{"engranaje", "eje", "rodamiento", "climatización", "intercambiador de calor", "compresor", "par motor"},
	}},
	{Environmental, keywordPack{
		en: []string{"wastewater", "treatment plant", "effluent", "stormwater", "sludge", "emission"},
		es: []string{"aguas residuales", "planta de tratamiento", "efluente", "pluvial", "lodos", "emisiones"},
	}},
}

type calculationRule struct {
	calc CalculationType
	pack keywordPack
}

var calculationRules = []calculationRule{
	{WaterHammer, keywordPack{
		en: []string{"water hammer", "surge pressure", "hydraulic transient"},
		es: []string{"golpe de ariete", "sobrepresión"},
	}},
	{HeadLoss, keywordPack{
		en: []string{"head loss", "friction loss", "pressure drop", "darcy", "hazen-williams", "hazen williams"},
		es: []string{"pérdida de carga", "perdida de carga", "pérdidas por fricción", "caída de presión"},
	}},
	{PipeSizing, keywordPack{
		en: []string{"pipe size", "size a pipe", "size the pipe", "pipe diameter", "pipe sizing"},
		es: []string{"diámetro de tubería", "dimensionar tubería", "dimensionamiento de tubería", "diametro de la tuberia"},
	}},
	{PumpPower, keywordPack{
		en: []string{"pump power", "pump head", "brake horsepower", "pump selection"},
		es: []string{"potencia de la bomba", "potencia de bomba", "altura de bombeo", "selección de bomba"},
	}},
	{TankSizing, keywordPack{
		en: []string{"tank size", "tank volume", "storage volume", "tank sizing"},
		es: []string{"volumen del tanque", "volumen de almacenamiento", "dimensionar tanque"},
	}},
	{OrificeFlow, keywordPack{
		en: []string{"orifice", "discharge coefficient"},
		es: []string{"orificio", "coeficiente de descarga"},
	}},
	{FlowRate, keywordPack{
		en: []string{"flow rate", "discharge", "continuity equation", "velocity"},
		es: []string{"caudal", "ecuación de continuidad", "velocidad"},
	}},
	{BeamDesign, keywordPack{
		en: []string{"beam design", "design a beam", "beam deflection", "bending moment"},
		es: []string{"diseño de viga", "flecha de viga", "momento flector"},
	}},
	{LoadCalculation, keywordPack{
		en: []string{"dead load", "live load", "wind load", "load combination", "snow load"},
		es: []string{"carga muerta", "carga viva", "carga de viento", "combinación de cargas"},
	}},
	{VoltageDrop, keywordPack{
		en: []string{"voltage drop"},
		es: []string{"caída de tensión", "caida de tension"},
	}},
	{CableSizing, keywordPack{
		en: []string{"cable size", "cable sizing", "conductor size", "wire gauge"},
		es: []string{"sección del cable", "calibre del conductor", "dimensionar cable"},
	}},
	{BearingCapacity, keywordPack{
		en: []string{"bearing capacity", "allowable bearing"},
		es: []string{"capacidad portante", "capacidad de carga del suelo"},
	}},
}

// Keywords returns the English then Spanish keywords of d.
func Keywords(d Domain) []string {
	for _, r := range domainRules {
		if r.domain == d {
			return r.pack.all()
		}
	}
	return nil
}

// SearchKeywords returns up to n keywords of d in the given language.
func SearchKeywords(d Domain, language string, n int) []string {
	for _, r := range domainRules {
		if r.domain != d {
			continue
		}
		words := r.pack.en
		if language == "es" {
			words = r.pack.es
		}
		if n > len(words) {
			n = len(words)
		}
		return words[:n]
	}
	return nil
}

// CalculationKeywords returns the English then Spanish keywords of c.
func CalculationKeywords(c CalculationType) []string {
	for _, r := range calculationRules {
		if r.calc == c {
			return r.pack.all()
		}
	}
	return nil
}
