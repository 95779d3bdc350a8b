package muxer

import (
	"fmt"
	"strconv"
	"time"
)

// MetadataEntry is a key/value datum attached to the container.
type MetadataEntry interface {
	Key() string
	Value() string
	Validate() error
}

// Location is a geographic position, encoded in ISO 6709.
type Location struct {
	Latitude  float64
	Longitude float64
}

// Key implements MetadataEntry.
func (Location) Key() string {
	return "location"
}

// Value implements MetadataEntry.
func (l Location) Value() string {
	return fmt.Sprintf("%+08.4f%+09.4f/", l.Latitude, l.Longitude)
}

// Validate implements MetadataEntry.
func (l Location) Validate() error {
	if l.Latitude < -90 || l.Latitude > 90 {
		return fmt.Errorf("latitude out of range: %v", l.Latitude)
	}
	if l.Longitude < -180 || l.Longitude > 180 {
		return fmt.Errorf("longitude out of range: %v", l.Longitude)
	}
	return nil
}

// Orientation is the clockwise rotation to apply to video frames.
type Orientation struct {
	Degrees int
}

// Key implements MetadataEntry.
func (Orientation) Key() string {
	return "orientation"
}

// Value implements MetadataEntry.
func (o Orientation) Value() string {
	return strconv.FormatInt(int64(o.Degrees), 10)
}

// Validate implements MetadataEntry.
func (o Orientation) Validate() error {
	switch o.Degrees {
	case 0, 90, 180, 270:
		return nil
	}
	return fmt.Errorf("invalid orientation: %d", o.Degrees)
}

// CreationTime is the time at which the content was captured.
type CreationTime struct {
	Time time.Time
}

// Key implements MetadataEntry.
func (CreationTime) Key() string {
	return "creation_time"
}

// Value implements MetadataEntry.
func (c CreationTime) Value() string {
	return c.Time.UTC().Format(time.RFC3339)
}

// Validate implements MetadataEntry.
func (c CreationTime) Validate() error {
	if c.Time.IsZero() {
		return fmt.Errorf("creation time is not set")
	}
	return nil
}

// KeyValue is a generic entry.
type KeyValue struct {
	K string
	V string
}

// Key implements MetadataEntry.
func (kv KeyValue) Key() string {
	return kv.K
}

// Value implements MetadataEntry.
func (kv KeyValue) Value() string {
	return kv.V
}

// Validate implements MetadataEntry.
func (kv KeyValue) Validate() error {
	if kv.K == "" {
		return fmt.Errorf("key is empty")
	}
	return nil
}
