package types

import (
	"time"
)

// UploadResponse is returned after a file is stored
type UploadResponse struct {
	Container string `json:"container"`
	Name      string `json:"name"`
	URI       string `json:"uri"`
}

// URLResponse carries the anonymous address of a public file
type URLResponse struct {
	URL string `json:"url"`
}

// HealthStatus is the body of the health endpoint
type HealthStatus struct {
	Status    string    `json:"status"`
	Service   string    `json:"service"`
	Storage   string    `json:"storage"`
	Timestamp time.Time `json:"timestamp"`
}
