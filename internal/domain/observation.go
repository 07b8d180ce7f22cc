package domain

import "time"

// GeoPoint is a latitude/longitude pair in decimal degrees.
type GeoPoint struct {
	Latitude  float64
	Longitude float64
}

// Measurements carries the raw speed-test readings exactly as submitted.
// Values are stored as text and only parsed when aggregated.
type Measurements struct {
	Download string
	Upload   string
	Ping     string
	Jitter   string
}

// Observation is one stored speed-test result.
type Observation struct {
	ID             int64
	Timestamp      time.Time
	IP             string
	ISPInfo        string
	ISPName        *string
	Extra          string
	UserAgent      string
	AcceptLanguage string
	Measurements   Measurements
	Log            string
	// Geo is nil when the submission carried no usable coordinates.
	Geo *GeoPoint
}

// ISPStats is the per-descriptor aggregate returned by the storage layer.
type ISPStats struct {
	Descriptor  string
	Count       int64
	AvgDownload float64
	AvgUpload   float64
	AvgPing     float64
}

// SpeedStats is an ungrouped aggregate over a set of observations.
type SpeedStats struct {
	Count       int64
	AvgDownload float64
	AvgUpload   float64
	AvgPing     float64
}
