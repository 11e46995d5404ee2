package models

type Credits struct {
	OwnerUsername string `json:"owner_username" db:"owner_username"`
	Amount        int64  `json:"amount" db:"amount"`
}
