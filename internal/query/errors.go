package query

import "fmt"

// ScanError wraps a failure that aborted a paginated scan. Records fetched
// before the failure are discarded.
type ScanError struct {
	Target Target
	Filter *CompiledFilter
	Page   int
	Err    error
}

func (e *ScanError) Error() string {
	filter := ""
	if e.Filter != nil {
		filter = e.Filter.Describe()
	}
	return fmt.Sprintf("search of table %s failed on page %d (filter: %s): %v", e.Target, e.Page, filter, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }
