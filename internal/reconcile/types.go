package reconcile

// Candidate is a local file found by the tree walk.
type Candidate struct {
	RelativePath string `json:"path"` // root-trimmed, forward slashes
	AbsolutePath string `json:"absolutePath"`
	Size         int64  `json:"size"`
	ModTime      int64  `json:"mtime"` // UTC epoch seconds, sub-second part discarded
}

// Record is a remote file as reported by an enumerator.
type Record struct {
	RelativePath string
	ModTime      int64 // UTC epoch seconds
	Size         int64
}

// TotalSize sums the sizes of the given candidates.
func TotalSize(files []Candidate) int64 {
	var total int64
	for _, f := range files {
		total += f.Size
	}
	return total
}
