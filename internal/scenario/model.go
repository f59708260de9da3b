package scenario

import "strconv"

// Diagnosis values reported by the service.
const (
	ResultPending = "pending"
	ResultCovid   = "covid"
	ResultH5N1    = "h5n1"
	ResultHealthy = "healthy"
	ResultFailed  = "failed"
)

// Counter endpoint tags.
const (
	EndpointPostAnalysis = "POST /analysis"
	EndpointGetAnalysis  = "GET /analysis"
	EndpointLabResults   = "GET /labs/results"
	EndpointPatients     = "GET /patients/results"
	EndpointLabSummary   = "GET /labs/results/summary"
)

// Counter scenario tags.
const (
	TagNormal        = "normal circumstances"
	TagCuriosity     = "curiosity killed"
	TagEpidemicEarly = "epidemic early"
	TagEpidemicPeak  = "epidemic peak"

	// batch validations are reported under this tag regardless of scenario
	TagInvalidJSON = "invalid JSON"
)

// Fixture identities.
const (
	PatientRegular  = "36295831522"
	PatientEpidemic = "12345678911"

	LabQML40671 = "QML40671"
	LabQML41203 = "QML41203"
	LabACL42151 = "ACL42151"
)

type analysis struct {
	RequestID string `json:"request_id"`
	LabID     string `json:"lab_id"`
	Result    string `json:"result"`
}

type labResult struct {
	RequestID string `json:"request_id"`
	LabID     string `json:"lab_id"`
	Result    string `json:"result"`
	Urgent    *bool  `json:"urgent"`
}

type labSummary struct {
	Pending int `json:"pending"`
	Covid   int `json:"covid"`
	H5N1    int `json:"h5n1"`
	Healthy int `json:"healthy"`
	Failed  int `json:"failed"`
}

// submitted is the POST /analysis reply; the id may come back as a string
// or a number depending on the backend.
type submitted struct {
	ID any `json:"id"`
}

func (s submitted) taskID() string {
	switch v := s.ID.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}
