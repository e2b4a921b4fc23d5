package models

import "time"

// Screenshot identifies the single retained capture artifact
type Screenshot struct {
	Filename  string    `json:"filename"`
	Path      string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}
