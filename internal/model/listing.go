package model

// ListingEntry is one downloadable file found on a remote index page.
type ListingEntry struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Size string `json:"size"`
}

// ListingResult is returned to callers of the listing endpoint.
type ListingResult struct {
	Success bool           `json:"success"`
	Entries []ListingEntry `json:"entries,omitempty"`
	Error   string         `json:"error,omitempty"`
}
