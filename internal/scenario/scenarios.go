package scenario

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"diagload/internal/runner"
)

var errMissingID = errors.New("response has no task id")

// submit posts the image fixture for analysis. On failure it records the
// errors event and reports false; the caller must end its iteration.
func (e *Env) submit(ctx context.Context, vu *runner.VU, patient, lab string, urgentProb float64, tag, checkName string) (string, bool) {
	urgent := vu.Rand.Float64() < urgentProb

	q := url.Values{}
	q.Set("patient_id", patient)
	q.Set("lab_id", lab)
	q.Set("urgent", strconv.FormatBool(urgent))

	res := e.API.Post(ctx, "/analysis", q, map[string]string{"image": e.Image})
	e.check(tag, checkName, res.OK(http.StatusCreated))

	var data submitted
	if err := res.JSON(&data); err != nil {
		e.fail(ctx, EndpointPostAnalysis, tag, err)
		return "", false
	}

	id := data.taskID()
	if id == "" {
		e.fail(ctx, EndpointPostAnalysis, tag, errMissingID)
		return "", false
	}
	return id, true
}

// Normal is a gentle background load: few urgent requests and a quarter
// of submissions followed up.
func (e *Env) Normal(ctx context.Context, vu *runner.VU) {
	e.attempted(TagNormal)

	id, ok := e.submit(ctx, vu, PatientRegular, LabQML40671, 0.05, TagNormal, "analysis request status 201")
	if !ok {
		return
	}

	if vu.Rand.Float64() < 0.25 {
		// a minute to finish under low load
		e.GetAnalysis(ctx, 6, id, EndpointGetAnalysis, TagNormal)
	}

	e.pause(ctx, 10*time.Second)
}

// Curiosity seeds a couple of analyses per VU, then hammers the read
// endpoints: mostly patient results, sometimes a whole lab.
func (e *Env) Curiosity(ctx context.Context, vu *runner.VU) {
	e.attempted(TagCuriosity)

	if vu.Iteration < 2 {
		id, ok := e.submit(ctx, vu, PatientRegular, LabQML41203, 0.5, TagCuriosity, "is status 201")
		if !ok {
			return
		}

		if vu.Rand.Float64() < 0.9 {
			e.GetAnalysis(ctx, 12, id, EndpointGetAnalysis, TagCuriosity)
		}
	}

	if vu.Rand.Float64() < 0.2 {
		e.LabResults(ctx, "/labs/results/"+LabQML40671, nil, EndpointLabResults, TagInvalidJSON)
	} else {
		e.LabResults(ctx, "/patients/results", url.Values{"patient_id": {PatientRegular}}, EndpointPatients, TagInvalidJSON)
	}

	e.pause(ctx, 5*time.Second)
}

// EpidemicEarly raises submission volume with more urgent cases and some
// batch queries.
func (e *Env) EpidemicEarly(ctx context.Context, vu *runner.VU) {
	e.attempted(TagEpidemicEarly)

	id, ok := e.submit(ctx, vu, PatientEpidemic, LabACL42151, 0.15, TagEpidemicEarly, "early epidemic POST status 201")
	if !ok {
		return
	}

	p := vu.Rand.Float64()

	if p < 0.25 {
		e.GetAnalysis(ctx, 12, id, EndpointGetAnalysis, TagEpidemicEarly)
	}

	if p > 0.8 {
		e.labFiltered(ctx, LabQML41203, true, ResultCovid, TagEpidemicEarly)
	} else {
		e.LabResults(ctx, "/labs/results/"+LabACL42151, nil, EndpointLabResults, TagInvalidJSON)
	}

	e.pause(ctx, 2*time.Second)
}

// EpidemicPeak is the heaviest mix: filtered and unfiltered lab queries,
// lab summaries, long polls and lab reassignments on top of submissions.
func (e *Env) EpidemicPeak(ctx context.Context, vu *runner.VU) {
	e.attempted(TagEpidemicPeak)

	id, ok := e.submit(ctx, vu, PatientEpidemic, LabACL42151, 0.2, TagEpidemicPeak, "peak POST status 201")
	if !ok {
		return
	}

	p := vu.Rand.Float64()

	if p < 0.1 {
		e.labFiltered(ctx, LabQML41203, false, ResultCovid, TagEpidemicPeak)
	} else if p < 0.2 {
		e.LabResults(ctx, "/labs/results/"+LabACL42151, nil, EndpointLabResults, TagInvalidJSON)
	}

	if p > 0.75 {
		e.labSummary(ctx, LabACL42151, TagEpidemicPeak)
	}

	if p < 0.5 {
		// three minutes under peak load
		e.GetAnalysis(ctx, 18, id, EndpointGetAnalysis, TagEpidemicPeak)
	} else if p < 0.6 {
		e.reassign(ctx, id, LabQML41203, TagEpidemicPeak)
	}

	e.pause(ctx, time.Second)
}

// CoolDown issues nothing; it keeps a VU around while the service drains.
func (e *Env) CoolDown(ctx context.Context, vu *runner.VU) {
	e.pause(ctx, 15*time.Second)
}

// labSummary expects a lab to hold only pending or covid work.
func (e *Env) labSummary(ctx context.Context, lab, tag string) bool {
	res := e.API.Get(ctx, "/labs/results/"+lab+"/summary", nil)
	e.check(tag, "lab summary status 200", res.OK(http.StatusOK))

	var s labSummary
	if err := res.JSON(&s); err != nil {
		e.fail(ctx, EndpointLabSummary, tag, err)
		return false
	}

	ok := s.Pending+s.Covid > 0 && s.H5N1+s.Healthy+s.Failed == 0
	if !e.check(tag, "only pending or covid results", ok) {
		e.fail(ctx, EndpointLabSummary, tag, nil)
		return false
	}
	return true
}

// reassign moves a task to another lab and reads it back.
func (e *Env) reassign(ctx context.Context, taskID, lab, tag string) bool {
	put := e.API.Put(ctx, "/analysis", url.Values{"request_id": {taskID}, "lab_id": {lab}})
	e.check(tag, "reassign PUT status 200", put.OK(http.StatusOK))

	get := e.API.Get(ctx, "/analysis", url.Values{"request_id": {taskID}})

	var a analysis
	if err := get.JSON(&a); err != nil {
		e.fail(ctx, EndpointGetAnalysis, tag, err)
		return false
	}

	ok := get.OK(http.StatusOK) && a.RequestID == taskID && a.LabID == lab
	if !e.check(tag, "reassignment persisted", ok) {
		e.fail(ctx, EndpointGetAnalysis, tag, nil)
		return false
	}
	return true
}
