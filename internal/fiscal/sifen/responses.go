package sifen

// CodeCommFailure marks a transport or parse failure. The authority never
// issues this code, so callers can always distinguish "talked to the
// authority" from "could not talk to the authority".
const CodeCommFailure = "COMM_FAILURE"

// approvedCodes is the closed set of result codes that mean approval.
var approvedCodes = map[string]bool{
	"0260": true,
}

// Approved reports whether a result code is in the approval set.
func Approved(code string) bool {
	return approvedCodes[code]
}

// Response is the outcome of a synchronous document submission.
type Response struct {
	Code     string
	Message  string
	CDC      string
	Protocol string // authorization protocol number, set on approval
}

func (r *Response) Approved() bool {
	return r != nil && approvedCodes[r.Code]
}

func (r *Response) CommFailure() bool {
	return r != nil && r.Code == CodeCommFailure
}

// BatchResponse acknowledges an asynchronous batch submission.
type BatchResponse struct {
	Code        string
	Message     string
	BatchNumber string
}

func (r *BatchResponse) Accepted() bool {
	return r != nil && r.BatchNumber != "" && r.Code != CodeCommFailure
}

func (r *BatchResponse) CommFailure() bool {
	return r != nil && r.Code == CodeCommFailure
}

// StatusResponse is the current authority state of a single document.
type StatusResponse struct {
	Code     string
	Message  string
	Status   string // authority state description, verbatim
	Protocol string
}

func (r *StatusResponse) Approved() bool {
	return r != nil && approvedCodes[r.Code]
}

func (r *StatusResponse) CommFailure() bool {
	return r != nil && r.Code == CodeCommFailure
}

// BatchStatusResponse carries the per-document outcomes of a processed batch.
type BatchStatusResponse struct {
	Code      string
	Message   string
	InProcess bool
	Results   []BatchItemResult
}

type BatchItemResult struct {
	CDC      string
	Code     string
	Message  string
	Protocol string
}

func (r *BatchItemResult) Approved() bool {
	return r != nil && approvedCodes[r.Code]
}

func (r *BatchStatusResponse) CommFailure() bool {
	return r != nil && r.Code == CodeCommFailure
}
