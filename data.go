package main

// data module holds all data representations used in our package
//

import (
	"encoding/json"
	"time"
)

// Artist represents a catalog record of a known artist, the Nama
// natural key matches the classifier label table
type Artist struct {
	Nama      string `json:"nama" bson:"nama"`                               // artist name, natural key
	Message   string `json:"message,omitempty" bson:"-"`                     // resolution notice, never persisted
	Bio       string `json:"bio,omitempty" bson:"bio,omitempty"`             // short biography
	Instagram string `json:"instagram,omitempty" bson:"instagram,omitempty"` // instagram handle
	Twitter   string `json:"twitter,omitempty" bson:"twitter,omitempty"`     // twitter handle
	Pixiv     string `json:"pixiv,omitempty" bson:"pixiv,omitempty"`         // pixiv profile URL
}

// ToJSON provides string representation of Artist record
func (a Artist) ToJSON() string {
	data, _ := json.MarshalIndent(a, "", "    ")
	return string(data)
}

// HistoryRecord represents one persisted inference outcome
type HistoryRecord struct {
	ID        string    `json:"id" bson:"id"`               // generated record identifier
	ImageURL  string    `json:"image_url" bson:"image_url"` // public address of the uploaded image
	Result    string    `json:"result" bson:"result"`       // resolved artist name
	Timestamp time.Time `json:"timestamp" bson:"timestamp"` // time of the pipeline run
}

// User represents a registered user record
type User struct {
	ID       string `json:"user_id" bson:"user_id"`
	Username string `json:"username" bson:"username"`
	Password string `json:"-" bson:"password"`        // bcrypt hash, never serialized
	Token    string `json:"-" bson:"token,omitempty"` // last issued session token
}

// PipelineResult represents the response of one successful pipeline run
type PipelineResult struct {
	URL     string        `json:"url"`     // public address of the uploaded image
	History HistoryRecord `json:"history"` // persisted history record
	Artist  Artist        `json:"artist"`  // resolved artist entity
}

// Prediction represents the outcome of one classifier forward pass
type Prediction struct {
	ClassIndex int     // index of the most probable class
	Confidence float64 // probability of the selected class
}

// Tensor represents a fixed-shape numeric array prepared for inference,
// data is stored flattened in row-major order
type Tensor struct {
	Shape []int     // tensor dimensions, batch first
	Data  []float64 // flattened values
}

// Size returns total number of elements described by tensor shape
func (t *Tensor) Size() int {
	size := 1
	for _, d := range t.Shape {
		size *= d
	}
	return size
}
