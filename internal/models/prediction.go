package models

import "time"

type Prediction struct {
	ID                int64     `json:"id" db:"id"`
	Datetime          time.Time `json:"datetime" db:"datetime"`
	ModelType         string    `json:"model_type" db:"model_type"`
	RequesterUsername string    `json:"requester_username" db:"requester_username"`
}
