package syncer

import "time"

// Status is the outcome of one document.
type Status string

// Document outcomes.
const (
	StatusCreated Status = "created"
	StatusUpdated Status = "updated"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Result describes what happened to one document.
type Result struct {
	RunID     string // empty outside a batch
	Index     int
	Path      string
	Checksum  string
	Title     string
	Slug      string
	Action    string // "created" or "updated" once a post call was issued
	Status    Status
	Published bool
	Reason    string
	Err       error
}

// Counts tallies results by status.
type Counts struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Total returns the number of documents counted.
func (c Counts) Total() int {
	return c.Created + c.Updated + c.Skipped + c.Failed
}

// Add counts one result.
func (c *Counts) Add(r Result) {
	switch r.Status {
	case StatusCreated:
		c.Created++
	case StatusUpdated:
		c.Updated++
	case StatusSkipped:
		c.Skipped++
	case StatusFailed:
		c.Failed++
	}
}

// Report collects the results of one batch.
type Report struct {
	RunID      string
	Root       string
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []Result
}

// Counts tallies the report's results.
func (r *Report) Counts() Counts {
	var c Counts
	for _, res := range r.Results {
		c.Add(res)
	}
	return c
}

// Failures returns the failed results in batch order.
func (r *Report) Failures() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			out = append(out, res)
		}
	}
	return out
}
