package model

type Status string

const (
	StatusVerified Status = "verified"
	StatusRejected Status = "rejected"
)

// Outcome reports one retrieval. Record fields are empty when the pipeline
// stopped before the ledger read; Error is set exactly when Status is rejected.
type Outcome struct {
	MemoID     uint64      `json:"memo_id"`
	Status     Status      `json:"status"`
	Sender     string      `json:"sender,omitempty"`
	Timestamp  int64       `json:"timestamp,omitempty"`
	ContentURI string      `json:"content_uri,omitempty"`
	GatewayURL string      `json:"gateway_url,omitempty"`
	Digest     string      `json:"digest,omitempty"`
	Rule       string      `json:"rule,omitempty"`
	Bytes      int         `json:"bytes,omitempty"`
	Error      *CodedError `json:"error,omitempty"`
}

// Rejected builds the outcome of a failed retrieval.
func Rejected(memoID uint64, err *CodedError) Outcome {
	return Outcome{MemoID: memoID, Status: StatusRejected, Error: err}
}
