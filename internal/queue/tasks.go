package queue

const TypeIndexBuild = "index:build"

// IndexBuildPayload is carried by an index:build task.
type IndexBuildPayload struct {
	RequestedBy string `json:"requested_by,omitempty"`
	Reason      string `json:"reason,omitempty"`
}
