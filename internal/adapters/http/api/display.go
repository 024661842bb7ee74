package api

import (
	service "github.com/okian/spc/internal/app"
	"github.com/okian/spc/internal/domain/capability"
	"github.com/okian/spc/internal/domain/format"
)

// chartResponse is an I-Chart report plus its values rendered for display.
type chartResponse struct {
	service.ChartReport
	Display chartDisplay `json:"display"`
}

type chartDisplay struct {
	Mean         string   `json:"mean"`
	Sigma        string   `json:"sigma"`
	UCL          string   `json:"ucl"`
	LCL          string   `json:"lcl"`
	MRBar        string   `json:"mr_bar"`
	Values       []string `json:"values"`
	MovingRanges []string `json:"moving_ranges"`
}

func newChartResponse(r service.ChartReport) chartResponse {
	c := r.Chart
	return chartResponse{
		ChartReport: r,
		Display: chartDisplay{
			Mean:         format.Float(c.Mean),
			Sigma:        format.Float(c.Sigma),
			UCL:          format.Float(c.UCL),
			LCL:          format.Float(c.LCL),
			MRBar:        format.Float(c.MRBar),
			Values:       format.Floats(c.Values),
			MovingRanges: format.Floats(c.MovingRanges),
		},
	}
}

// capabilityResponse is a capability result plus its statistics rendered
// for display; undefined statistics render as "*".
type capabilityResponse struct {
	capability.Result
	Display capabilityDisplay `json:"display"`
}

type capabilityDisplay struct {
	Mean         string       `json:"mean"`
	SigmaWithin  string       `json:"sigma_within"`
	SigmaOverall string       `json:"sigma_overall"`
	Cp           string       `json:"cp"`
	Cpl          string       `json:"cpl"`
	Cpu          string       `json:"cpu"`
	Cpk          string       `json:"cpk"`
	Pp           string       `json:"pp"`
	Ppl          string       `json:"ppl"`
	Ppu          string       `json:"ppu"`
	Ppk          string       `json:"ppk"`
	Cpm          string       `json:"cpm"`
	PPM          []ppmDisplay `json:"ppm"`
}

type ppmDisplay struct {
	Label           string `json:"label"`
	Observed        string `json:"observed"`
	ExpectedOverall string `json:"expected_overall"`
	ExpectedWithin  string `json:"expected_within"`
}

func newCapabilityResponse(r capability.Result) capabilityResponse {
	rows := make([]ppmDisplay, len(r.PPM))
	for i, row := range r.PPM {
		rows[i] = ppmDisplay{
			Label:           row.Label,
			Observed:        format.Number(row.Observed),
			ExpectedOverall: format.Number(row.ExpectedOverall),
			ExpectedWithin:  format.Number(row.ExpectedWithin),
		}
	}
	return capabilityResponse{
		Result: r,
		Display: capabilityDisplay{
			Mean:         format.Float(r.Mean),
			SigmaWithin:  format.Float(r.Sigma.Within),
			SigmaOverall: format.Float(r.Sigma.Overall),
			Cp:           format.Number(r.Cp),
			Cpl:          format.Number(r.Cpl),
			Cpu:          format.Number(r.Cpu),
			Cpk:          format.Number(r.Cpk),
			Pp:           format.Number(r.Pp),
			Ppl:          format.Number(r.Ppl),
			Ppu:          format.Number(r.Ppu),
			Ppk:          format.Number(r.Ppk),
			Cpm:          format.Number(r.Cpm),
			PPM:          rows,
		},
	}
}
