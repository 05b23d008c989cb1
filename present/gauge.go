package present

import "github.com/chop-dbhi/smart-framingham/facts"

// GaugeBand is one colored section of a gauge, From inclusive and To
// exclusive.
type GaugeBand struct {
	Label string  `json:"label"`
	From  float64 `json:"from"`
	To    float64 `json:"to"`
}

// Gauge is a half-dial drawing of one vital against a fixed domain.
// Position is the needle position in [0,1].
type Gauge struct {
	ID       string      `json:"id"`
	Title    string      `json:"title"`
	Unit     string      `json:"unit"`
	Value    float64     `json:"value"`
	Min      float64     `json:"min"`
	Max      float64     `json:"max"`
	Position float64     `json:"position"`
	Band     string      `json:"band"`
	Bands    []GaugeBand `json:"bands"`
}

type gaugeSpec struct {
	id, title, unit string
	min, max        float64
	bands           []GaugeBand
}

var (
	systolicGauge = gaugeSpec{
		id: "sys-gauge", title: "Systolic Blood Pressure", unit: "mmHg", min: 70, max: 190,
		bands: []GaugeBand{
			{"Low (70-90 mmHg)", 70, 90},
			{"Normal (90-120 mmHg)", 90, 120},
			{"Elevated (120-140 mmHg)", 120, 140},
			{"High (140-190 mmHg)", 140, 190},
		},
	}
	totalGauge = gaugeSpec{
		id: "total-gauge", title: "Total Cholesterol", unit: "mg/dL", min: 150, max: 300,
		bands: []GaugeBand{
			{"Normal (under 200 mg/dL)", 150, 200},
			{"Borderline (200-240 mg/dL)", 200, 240},
			{"High (over 240 mg/dL)", 240, 300},
		},
	}
	hdlGauge = gaugeSpec{
		id: "hdl-gauge", title: "HDL Cholesterol", unit: "mg/dL", min: 20, max: 90,
		bands: []GaugeBand{
			{"Low (under 50 mg/dL)", 20, 50},
			{"Borderline (50-59 mg/dL)", 50, 60},
			{"Desirable (over 60 mg/dL)", 60, 90},
		},
	}
)

// Gauges returns the systolic, total cholesterol and HDL gauges, in that
// order.
func Gauges(f *facts.Facts) []Gauge {
	return []Gauge{
		systolicGauge.gauge(f.SystolicBP),
		totalGauge.gauge(f.TotalCholesterol),
		hdlGauge.gauge(f.HDLCholesterol),
	}
}

func (s gaugeSpec) gauge(value float64) Gauge {
	// Values outside the domain pin the needle to the end of the dial
	position := (value - s.min) / (s.max - s.min)
	position = max(0, min(1, position))

	return Gauge{
		ID:       s.id,
		Title:    s.title,
		Unit:     s.unit,
		Value:    value,
		Min:      s.min,
		Max:      s.max,
		Position: position,
		Band:     s.band(value),
		Bands:    append([]GaugeBand(nil), s.bands...),
	}
}

func (s gaugeSpec) band(value float64) string {
	for _, b := range s.bands {
		if value < b.To {
			return b.Label
		}
	}
	return s.bands[len(s.bands)-1].Label
}
